// Package apperr holds the error classes shared by every service and their mapping onto
// HTTP responses.
package apperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/zeebo/errs"
)

var (
	// AuthorizationDenied means the principal may not perform the request as asked.
	AuthorizationDenied = errs.Class("authorization denied")
	// InvalidInput covers malformed keys, bodies and pagination tokens.
	InvalidInput = errs.Class("invalid input")
	// CapabilityExpired means a capability was used at or after its expiry.
	CapabilityExpired = errs.Class("capability expired")
	// TransientDependencyFailure marks storage, bus or table outages. Safe to retry.
	TransientDependencyFailure = errs.Class("transient dependency failure")
	// PermanentEventMalformed marks bus payloads that can never be processed.
	PermanentEventMalformed = errs.Class("event malformed")
	// NotFound covers unknown keys.
	NotFound = errs.Class("not found")
)

const (
	CodeAuthorizationDenied = "authorization_denied"
	CodeInvalidInput        = "invalid_input"
	CodeCapabilityExpired   = "capability_expired"
	CodeTransient           = "transient_dependency_failure"
	CodeEventMalformed      = "event_malformed"
	CodeNotFound            = "not_found"
	CodeInternal            = "internal"
)

type mapping struct {
	class  *errs.Class
	status int
	code   string
}

var mappings = []mapping{
	{&AuthorizationDenied, http.StatusForbidden, CodeAuthorizationDenied},
	{&InvalidInput, http.StatusBadRequest, CodeInvalidInput},
	{&CapabilityExpired, http.StatusGone, CodeCapabilityExpired},
	{&TransientDependencyFailure, http.StatusServiceUnavailable, CodeTransient},
	{&PermanentEventMalformed, http.StatusUnprocessableEntity, CodeEventMalformed},
	{&NotFound, http.StatusNotFound, CodeNotFound},
}

func lookup(err error) (mapping, bool) {
	for _, m := range mappings {
		if m.class.Has(err) {
			return m, true
		}
	}
	return mapping{}, false
}

// HTTPStatus returns the response status for err, 500 for unclassified errors.
func HTTPStatus(err error) int {
	if m, ok := lookup(err); ok {
		return m.status
	}
	return http.StatusInternalServerError
}

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	if m, ok := lookup(err); ok {
		return m.code
	}
	return CodeInternal
}

// Retryable reports whether err is worth retrying unchanged.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if TransientDependencyFailure.Has(err) {
		return true
	}
	// Unclassified errors come from drivers and networks; assume transient.
	_, classified := lookup(err)
	return !classified
}
