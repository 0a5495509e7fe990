package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("INDEXER_WORKERS", "8")
	t.Setenv("INDEXER_PREFETCH", "")
	t.Setenv("INDEXER_MAX_DELIVERIES", "3")
	t.Setenv("INDEXER_HANDLE_TIMEOUT", "2s")
	t.Setenv("EVENT_EXCHANGE", "files")

	cfg := LoadConfig()
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "indexer", cfg.Log.Service)
	assert.Equal(t, 16, cfg.Prefetch)
	assert.Equal(t, 3, cfg.MaxDeliveries)
	assert.Equal(t, 2*time.Second, cfg.HandleTimeout)
	assert.Equal(t, "files", cfg.Topology.Exchange)
	assert.Equal(t, "files.dlx", cfg.Topology.DeadLetterExchange)
	assert.Equal(t, "indexer.file.uploaded", cfg.Topology.Queue)
}
