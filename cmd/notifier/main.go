package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	commonlog "s4/server/common/log"
	notifierapp "s4/server/notifier/app"
)

func main() {
	cfg := notifierapp.LoadConfig()
	commonlog.Init(cfg.Log)
	defer commonlog.Sync()

	server, err := notifierapp.NewServer(cfg)
	if err != nil {
		log.Fatalf("initialize notifier server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		commonlog.Infof("start notifier http server on :%s", cfg.Port)
		if err := server.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("run notifier http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown notifier server gracefully: %v", err)
	}
}
