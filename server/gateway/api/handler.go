package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"s4/server/common/apperr"
	commonauth "s4/server/common/auth"
	commonlog "s4/server/common/log"
	"s4/server/common/middleware"
	"s4/server/common/transport/httpresp"
	"s4/server/files/domain"
	"s4/server/gateway/service"
)

type fileService interface {
	RequestUploadURL(ctx context.Context, principal, key string) (domain.Capability, error)
	RequestDownloadURL(ctx context.Context, principal, key string) (domain.Capability, error)
	ListFiles(ctx context.Context, principal, pageToken string, limit int) (service.ListResult, error)
	GetRecord(ctx context.Context, principal, key string) (domain.FileRecord, error)
	Delete(ctx context.Context, actor, key string) error
}

type tokenAuth interface {
	ParseAuthContext(token string) (userID, role string, err error)
}

type Handler struct {
	files   fileService
	auth    tokenAuth
	limiter *middleware.PrincipalLimiter
}

func NewHandler(files fileService, auth tokenAuth, limiter *middleware.PrincipalLimiter) *Handler {
	return &Handler{files: files, auth: auth, limiter: limiter}
}

type capabilityResponse struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type keyRequest struct {
	Key string `json:"key" binding:"required"`
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpresp.NewStatusResponse("ok"))
	})

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth), middleware.RateLimit(h.limiter))
	{
		api.POST("/files/upload-url", h.requestUploadURL)
		api.POST("/files/download-url", h.requestDownloadURL)
		api.GET("/files", h.listFiles)
		api.GET("/files/record", h.getRecord)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.RequireRoles(commonauth.RoleAdmin))
	{
		admin.DELETE("/files", h.deleteFile)
	}
}

func (h *Handler) requestUploadURL(c *gin.Context) {
	h.issue(c, h.files.RequestUploadURL)
}

func (h *Handler) requestDownloadURL(c *gin.Context) {
	h.issue(c, h.files.RequestDownloadURL)
}

func (h *Handler) issue(c *gin.Context, request func(ctx context.Context, principal, key string) (domain.Capability, error)) {
	principal, _ := middleware.PrincipalFrom(c)
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(apperr.CodeInvalidInput, err.Error()))
		return
	}
	capability, err := request(c.Request.Context(), principal, req.Key)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, capabilityResponse{
		URL:       capability.URL,
		Key:       capability.Key,
		Method:    string(capability.Method),
		ExpiresAt: capability.ExpiresAt,
	})
}

func (h *Handler) listFiles(c *gin.Context) {
	principal, _ := middleware.PrincipalFrom(c)
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(apperr.CodeInvalidInput, "limit must be an integer"))
			return
		}
		limit = parsed
	}
	result, err := h.files.ListFiles(c.Request.Context(), principal, c.Query("pageToken"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getRecord(c *gin.Context) {
	principal, _ := middleware.PrincipalFrom(c)
	rec, err := h.files.GetRecord(c.Request.Context(), principal, c.Query("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteFile(c *gin.Context) {
	actor, _ := middleware.PrincipalFrom(c)
	if err := h.files.Delete(c.Request.Context(), actor, c.Query("key")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}

func writeError(c *gin.Context, err error) {
	status, body := httpresp.FromError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		commonlog.Errorw("request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, body)
}
