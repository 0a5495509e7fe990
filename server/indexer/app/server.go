package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"s4/server/common/infra/cache"
	"s4/server/common/infra/mq"
	commonlog "s4/server/common/log"
	"s4/server/common/transport/httpresp"
	"s4/server/files/repository"
	"s4/server/indexer/service"
)

// Server owns the indexer's consumer loop and its health endpoint.
type Server struct {
	HTTPServer *http.Server
	consumer   *mq.Consumer
	indexer    *service.Indexer
	conn       *amqp.Connection
	redis      *redis.Client
	closeStore func()
}

func NewServer(cfg Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, closeStore, err := repository.Open(ctx, cfg.Metadata)
	if err != nil {
		return nil, err
	}

	redisClient := cache.NewClient(cfg.RedisAddr)
	if err := cache.Ping(ctx, redisClient); err != nil {
		// tracker errors are tolerated per message
		commonlog.Warnf("redis %s unreachable at startup: %v", cfg.RedisAddr, err)
	}

	conn, err := mq.NewConnection(cfg.AMQPURL)
	if err != nil {
		closeStore()
		_ = redisClient.Close()
		return nil, fmt.Errorf("connect event bus: %w", err)
	}

	indexer := service.NewIndexer(store, cache.NewDeliveryTracker(redisClient, "", 0), service.Config{
		MaxDeliveries: cfg.MaxDeliveries,
		HandleTimeout: cfg.HandleTimeout,
	})
	consumer := mq.NewConsumer(conn, cfg.Topology, mq.ConsumerConfig{
		Tag:        "s4-indexer",
		Prefetch:   cfg.Prefetch,
		Workers:    cfg.Workers,
		RetryDelay: cfg.RetryDelay,
	})

	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		if conn.IsClosed() {
			c.JSON(http.StatusServiceUnavailable, httpresp.NewStatusResponse("event bus disconnected"))
			return
		}
		c.JSON(http.StatusOK, httpresp.NewStatusResponse("ok"))
	})

	return &Server{
		HTTPServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		consumer:   consumer,
		indexer:    indexer,
		conn:       conn,
		redis:      redisClient,
		closeStore: closeStore,
	}, nil
}

// Consume blocks until ctx is cancelled or the bus connection fails.
func (s *Server) Consume(ctx context.Context) error {
	return s.consumer.Run(ctx, s.indexer.Handle)
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTPServer.Shutdown(ctx)
	_ = s.conn.Close()
	_ = s.redis.Close()
	s.closeStore()
	return err
}
