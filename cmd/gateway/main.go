package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	commonlog "s4/server/common/log"
	gatewayapp "s4/server/gateway/app"
)

func main() {
	cfg := gatewayapp.LoadConfig()
	commonlog.Init(cfg.Log)
	defer commonlog.Sync()

	server, err := gatewayapp.NewServer(cfg)
	if err != nil {
		log.Fatalf("initialize gateway server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		commonlog.Infof("start gateway http server on :%s", cfg.Port)
		if err := server.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("run gateway http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown gateway server gracefully: %v", err)
	}
}
