package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"server": {"port": 9090},
		"market": {
			"registry_owner": "0xowner",
			"engine_address": "0xengine",
			"collateral_markup": "1.5",
			"validators": ["0xv1"]
		},
		"security": {"jwt_secret": "file-secret"}
	}`)

	cfg, err := LoadConfig(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0xowner", cfg.Market.RegistryOwner)
	assert.True(t, cfg.Market.CollateralMarkup.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, cfg.Market.UnitPrice.Equal(decimal.NewFromInt(1)), "unset fields keep defaults")
	assert.Equal(t, []string{"0xv1"}, cfg.Market.Validators)
	assert.Equal(t, 24*time.Hour, cfg.Security.TokenTTL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"market": {"registry_owner": "0xowner", "engine_address": "0xengine"},
		"security": {"jwt_secret": "file-secret"}
	}`)
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("MARKET_UNIT_PRICE", "2.5")
	t.Setenv("MARKET_VALIDATORS", "0xa, 0xb,")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("JWT_TTL", "90m")
	t.Setenv("REPORTS_ARCHIVE_BUCKET", "statements-bucket")

	cfg, err := LoadConfig(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.True(t, cfg.Market.UnitPrice.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, []string{"0xa", "0xb"}, cfg.Market.Validators)
	assert.Equal(t, "env-secret", cfg.Security.JWTSecret)
	assert.Equal(t, 90*time.Minute, cfg.Security.TokenTTL)
	assert.Equal(t, "statements-bucket", cfg.Reports.ArchiveBucket)
	assert.Equal(t, "statements", cfg.Reports.ArchivePrefix)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	env := writeFile(t, ".env", "MARKET_REGISTRY_OWNER=0xdotenv-owner\nMARKET_ENGINE_ADDRESS=0xdotenv-engine\nJWT_SECRET=dotenv-secret\n")
	for _, k := range []string{"MARKET_REGISTRY_OWNER", "MARKET_ENGINE_ADDRESS", "JWT_SECRET"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := LoadConfig("", env)
	require.NoError(t, err)
	assert.Equal(t, "0xdotenv-owner", cfg.Market.RegistryOwner)
	assert.Equal(t, "0xdotenv-engine", cfg.Market.EngineAddress)
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("MARKET_COLLATERAL_MARKUP", "lots")

	_, err := LoadConfig("", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "MARKET_COLLATERAL_MARKUP")
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"server":`)

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Market.RegistryOwner = "0xowner"
		cfg.Market.EngineAddress = "0xengine"
		cfg.Security.JWTSecret = "secret"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no owner", func(c *Config) { c.Market.RegistryOwner = "" }},
		{"no engine", func(c *Config) { c.Market.EngineAddress = "" }},
		{"zero price", func(c *Config) { c.Market.UnitPrice = decimal.Zero }},
		{"negative markup", func(c *Config) { c.Market.CollateralMarkup = decimal.NewFromInt(-1) }},
		{"no secret", func(c *Config) { c.Security.JWTSecret = "" }},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"audit without schedule", func(c *Config) { c.Audit.Schedule = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", db.GetDatabaseURL())

	db.Driver = "sqlite3"
	db.DBName = "file:journal.db"
	assert.Equal(t, "file:journal.db", db.GetDatabaseURL())

	db.DSN = "custom"
	assert.Equal(t, "custom", db.GetDatabaseURL())
}
