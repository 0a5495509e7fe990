package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	commonauth "s4/server/common/auth"
	"s4/server/common/infra/object"
	"s4/server/common/middleware"
	"s4/server/files/repository"
	gatewayapi "s4/server/gateway/api"
	"s4/server/gateway/service"
)

type Server struct {
	HTTPServer *http.Server
	closeStore func()
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	minioClient, err := object.NewClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initialize object storage: %w", err)
	}
	if err := object.EnsureBucket(ctx, minioClient, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	store, closeStore, err := repository.Open(ctx, cfg.Metadata)
	if err != nil {
		return nil, err
	}

	tokens, err := commonauth.NewPageTokenSigner(cfg.JWTSecret, cfg.PageTokenTTL)
	if err != nil {
		closeStore()
		return nil, err
	}
	fileSvc := service.NewFileService(
		service.NewAuthorizer(store),
		service.NewIssuer(minioClient, cfg.Storage.Bucket, cfg.CapabilityTTL),
		service.NewLister(store, tokens),
		store,
		minioClient,
		cfg.Storage.Bucket,
	)
	authSvc := commonauth.NewService(cfg.JWTSecret, cfg.JWTTTLMinutes)

	r := gin.Default()
	r.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))
	h := gatewayapi.NewHandler(fileSvc, authSvc, middleware.NewPrincipalLimiter(cfg.RateLimitPerMinute))
	h.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{HTTPServer: httpServer, closeStore: closeStore}, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Origin", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.closeStore()
	return s.HTTPServer.Shutdown(ctx)
}
