package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.NoError(t, cfg.Validate())
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, Username: "u", Password: "p", DBName: "x", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=x sslmode=require", db.GetDSN())

	db.URL = "postgres://u:p@db/x"
	assert.Equal(t, "postgres://u:p@db/x", db.GetDSN())
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Host: "localhost", DBName: "exchangedesk"},
		Auth:     AuthConfig{TokenTTL: time.Hour},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg.Auth.JWTSecret = "s"
	cfg.Database = DatabaseConfig{}
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")

	cfg.Database.URL = "postgres://localhost/exchangedesk"
	assert.NoError(t, cfg.Validate())
}
