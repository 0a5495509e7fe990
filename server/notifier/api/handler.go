package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"s4/server/common/apperr"
	"s4/server/common/middleware"
	"s4/server/common/transport/httpresp"
	"s4/server/notifier/service"
)

type dispatcher interface {
	Dispatch(ctx context.Context, signals []service.StorageSignal) error
}

type Handler struct {
	notifier     dispatcher
	webhookToken string
}

func NewHandler(notifier dispatcher, webhookToken string) *Handler {
	return &Handler{notifier: notifier, webhookToken: webhookToken}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpresp.NewStatusResponse("ok"))
	})

	hooks := r.Group("/hooks")
	hooks.Use(middleware.StaticBearer(h.webhookToken))
	{
		hooks.POST("/storage", h.storageEvent)
	}
}

// storageEvent answers 503 when anything failed to publish so MinIO retries the batch.
func (h *Handler) storageEvent(c *gin.Context) {
	var payload service.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(apperr.CodeInvalidInput, err.Error()))
		return
	}
	if err := h.notifier.Dispatch(c.Request.Context(), service.SignalsFromMinio(payload.Records)); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, httpresp.NewErrorResponse(apperr.CodeTransient, "event could not be published"))
		return
	}
	c.JSON(http.StatusOK, httpresp.NewOKResponse())
}
