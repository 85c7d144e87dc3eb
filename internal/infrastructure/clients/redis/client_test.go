package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/hospital-appointment-api/pkg/config"
	apperrors "github.com/zatekoja/hospital-appointment-api/pkg/errors"
)

func TestNewClient_UnreachableServer(t *testing.T) {
	cfg := &config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

	start := time.Now()
	client, err := NewClient(context.Background(), cfg)

	require.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	assert.Contains(t, err.Error(), "127.0.0.1:1")
	assert.Less(t, time.Since(start), connectTimeout+pingTimeout)
}

func TestConnectRetryConfig(t *testing.T) {
	cfg := connectRetryConfig()

	assert.Equal(t, connectAttempts, cfg.MaxAttempts)
	assert.Equal(t, connectTimeout, cfg.MaxTotalTimeout)
	assert.Greater(t, cfg.BackoffFactor, 1.0)
}
