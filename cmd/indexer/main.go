package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	commonlog "s4/server/common/log"
	indexerapp "s4/server/indexer/app"
)

func main() {
	cfg := indexerapp.LoadConfig()
	commonlog.Init(cfg.Log)
	defer commonlog.Sync()

	server, err := indexerapp.NewServer(cfg)
	if err != nil {
		log.Fatalf("initialize indexer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		commonlog.Infof("start indexer health server on :%s", cfg.Port)
		if err := server.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("run indexer health server: %v", err)
		}
	}()

	// a bus failure ends the process; the supervisor restarts it
	if err := server.Consume(ctx); err != nil {
		commonlog.Errorf("indexer consumer stopped: %v", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown indexer gracefully: %v", err)
	}
}
