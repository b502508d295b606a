package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDataDir, EnvNetwork, EnvIssuerKey, EnvEsploraURL, EnvDebugLevel} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load("", Overrides{DataDir: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, DefaultNetwork, cfg.Network)
	assert.Equal(t, DefaultLevel, cfg.DebugLevel)
	assert.Equal(t, filepath.Join(dir, "logs", "rgbproof.log"), cfg.LogFile)
	assert.Empty(t, cfg.EsploraURL)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yml := "network: testnet\n" +
		"esplora_url: http://file.example/api\n" +
		"explorer_timeout: 3s\n" +
		"debug_level: warn\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yml), 0o600))

	cfg, err := Load("", Overrides{DataDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "testnet", cfg.Network)
	assert.Equal(t, "http://file.example/api", cfg.EsploraURL)
	assert.Equal(t, 3*time.Second, cfg.ExplorerTimeout)
	assert.Equal(t, "warn", cfg.DebugLevel)

	t.Setenv(EnvNetwork, "signet")
	t.Setenv(EnvEsploraURL, "https://env.example")
	cfg, err = Load("", Overrides{DataDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "signet", cfg.Network)
	assert.Equal(t, "https://env.example", cfg.EsploraURL)

	cfg, err = Load("", Overrides{DataDir: dir, Network: "mainnet", DebugLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, "mainnet", cfg.Network)
	assert.Equal(t, "debug", cfg.DebugLevel)
}

func TestLoadDataDirFromEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	cfg, err := Load("", Overrides{})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvIssuerKey)
	dir := t.TempDir()
	key := strings.Repeat("ab", 32)
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(EnvIssuerKey+"="+key+"\n"), 0o600))

	cfg, err := Load(envFile, Overrides{DataDir: dir})
	require.NoError(t, err)
	assert.Equal(t, key, cfg.IssuerKeyHex)
	os.Unsetenv(EnvIssuerKey)

	// A missing .env is not an error.
	_, err = Load(filepath.Join(dir, "missing.env"), Overrides{DataDir: dir})
	require.NoError(t, err)
}

func TestLoadExplicitConfigMustExist(t *testing.T) {
	clearEnv(t)
	_, err := Load("", Overrides{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{DataDir: "/x", Network: "regtest"}
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"ok", func(c *Config) {}, true},
		{"empty dir", func(c *Config) { c.DataDir = "" }, false},
		{"bad network", func(c *Config) { c.Network = "moon" }, false},
		{"short key", func(c *Config) { c.IssuerKeyHex = "abcd" }, false},
		{"good key", func(c *Config) { c.IssuerKeyHex = strings.Repeat("01", 32) }, true},
		{"relative url", func(c *Config) { c.EsploraURL = "example.com/api" }, false},
		{"https url", func(c *Config) { c.EsploraURL = "https://blockstream.info/api" }, true},
		{"negative timeout", func(c *Config) { c.ExplorerTimeout = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
