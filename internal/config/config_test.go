package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, 15*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "*", cfg.CORSAllowedOrigins)
	assert.Equal(t, 20, cfg.DBMaxConnections())
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWT.RefreshTTL)
	assert.Empty(t, cfg.Relay.URL)
	assert.Empty(t, cfg.MediaServiceURL)
	assert.Equal(t, "http://localhost:3000", cfg.ClientURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/agora")
	t.Setenv("DB_MAX_CONNECTIONS", "50")
	t.Setenv("JWT_SECRET", "prod-secret")
	t.Setenv("JWT_ACCESS_TTL_MINUTES", "5")
	t.Setenv("RELAY_URL", "http://relay:8084")
	t.Setenv("RELAY_APP_ID", "app1")
	t.Setenv("MEDIA_SERVICE_URL", "http://media:8083")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "postgres://u:p@db:5432/agora", cfg.DatabaseURL())
	assert.Equal(t, 50, cfg.DBMaxConnections())
	assert.Equal(t, "prod-secret", cfg.JWT.Secret)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, "http://relay:8084", cfg.Relay.URL)
	assert.Equal(t, "app1", cfg.Relay.AppID)
	assert.Equal(t, "http://media:8083", cfg.MediaServiceURL)
}

func TestLoadBadIntFallsBack(t *testing.T) {
	t.Setenv("DB_MAX_CONNECTIONS", "lots")
	cfg := Load()
	assert.Equal(t, 20, cfg.DBMaxConnections())
}
