package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"s4/server/common/infra/mq"
	"s4/server/common/infra/object"
	notifierapi "s4/server/notifier/api"
	"s4/server/notifier/service"
)

type Server struct {
	HTTPServer *http.Server
	publisher  *mq.Publisher
}

// NewNotifier builds the dispatcher both the webhook server and the Lambda entrypoint use.
func NewNotifier(cfg Config) (*service.Notifier, *mq.Publisher, error) {
	objects, err := object.NewClient(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize object storage: %w", err)
	}
	publisher := mq.NewPublisher(cfg.AMQPURL, cfg.Topology)
	if err := publisher.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect event bus: %w", err)
	}
	return service.NewNotifier(publisher, objects, cfg.PublishTimeout), publisher, nil
}

func NewServer(cfg Config) (*Server, error) {
	notifier, publisher, err := NewNotifier(cfg)
	if err != nil {
		return nil, err
	}

	r := gin.Default()
	notifierapi.NewHandler(notifier, cfg.WebhookToken).RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{HTTPServer: httpServer, publisher: publisher}, nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.publisher.Close()
	return s.HTTPServer.Shutdown(ctx)
}
