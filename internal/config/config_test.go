package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "localhost", cfg.Database.Host)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, "rabbitmq", cfg.Queue.Driver)
	require.Equal(t, "order_fulfillment", cfg.Queue.Name)
	require.Equal(t, 5*time.Second, cfg.Engine.PollInterval)
	require.Equal(t, 10, cfg.Engine.BatchSize)
	require.Equal(t, 5*time.Second, cfg.Engine.ReceiveWait)
	require.Equal(t, 24*time.Hour, cfg.Engine.ReprocessWindow)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("QUEUE_DRIVER", "memory")
	t.Setenv("ENGINE_POLL_INTERVAL", "250ms")
	t.Setenv("ENGINE_BATCH_SIZE", "3")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "db.internal", cfg.Database.Host)
	require.Equal(t, 6432, cfg.Database.Port)
	require.Equal(t, "memory", cfg.Queue.Driver)
	require.Equal(t, 250*time.Millisecond, cfg.Engine.PollInterval)
	require.Equal(t, 3, cfg.Engine.BatchSize)
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("ENGINE_POLL_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, 5*time.Second, cfg.Engine.PollInterval)
}

func TestLoadUnknownQueueDriver(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "carrier-pigeon")
	_, err := Load()
	require.Error(t, err)
}
