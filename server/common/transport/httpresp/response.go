package httpresp

import (
	"s4/server/common/apperr"
)

const (
	CodeUnauthorized = "unauthorized"
	CodeRateLimited  = "rate_limited"

	ErrMissingBearerToken = "bearer token is required"
	ErrInvalidToken       = "invalid token"
	ErrInsufficientRole   = "insufficient permissions"
	ErrTooManyRequests    = "too many requests"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: code, Message: message}
}

// opaqueMessages replaces the error text of classes whose errors carry dependency or
// driver detail.
var opaqueMessages = map[string]string{
	apperr.CodeTransient:      "dependency temporarily unavailable",
	apperr.CodeEventMalformed: "event cannot be processed",
	apperr.CodeInternal:       "internal error",
}

// FromError maps a service error to its HTTP status and body.
func FromError(err error) (int, ErrorResponse) {
	code := apperr.Code(err)
	message, opaque := opaqueMessages[code]
	if !opaque {
		message = err.Error()
	}
	return apperr.HTTPStatus(err), NewErrorResponse(code, message)
}

func NewOKResponse() OKResponse {
	return OKResponse{OK: true}
}

func NewStatusResponse(status string) StatusResponse {
	return StatusResponse{Status: status}
}
