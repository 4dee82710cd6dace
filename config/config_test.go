package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("OTP_MAX_ATTEMPTS", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_STREAM_PREFIX", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Auth.OTPMaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Auth.OTPTTL)
	assert.Equal(t, "refresh_token", cfg.Auth.CookieName)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "", cfg.Streams.StreamName("checkout"))
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_STREAM_PREFIX", "catalog")
	t.Setenv("RECONCILE_INTERVAL", "not-a-duration")

	cfg := Load()

	assert.Equal(t, 3, cfg.Auth.OTPMaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Auth.OTPTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "catalog:checkout", cfg.Streams.StreamName("checkout"))
	assert.Equal(t, time.Minute, cfg.Business.ReconcileInterval)
}
