package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir  = "/tmp/rgb_data"
	DefaultNetwork  = "regtest"
	DefaultLevel    = "info"
	ConfigFileName  = "rgbproof.yaml"
	DefaultLogFiles = 3

	EnvDataDir    = "RGB_DATA_DIR"
	EnvNetwork    = "BITCOIN_NETWORK"
	EnvIssuerKey  = "RGB_ISSUER_KEY"
	EnvEsploraURL = "ESPLORA_URL"
	EnvDebugLevel = "RGB_DEBUG_LEVEL"
)

var networks = map[string]bool{
	"mainnet": true,
	"testnet": true,
	"signet":  true,
	"regtest": true,
}

// Config is the consolidated engine configuration.
type Config struct {
	DataDir         string        `yaml:"data_dir"`
	Network         string        `yaml:"network"`
	IssuerKeyHex    string        `yaml:"issuer_key"`
	EsploraURL      string        `yaml:"esplora_url"`
	ExplorerTimeout time.Duration `yaml:"explorer_timeout"`
	DebugLevel      string        `yaml:"debug_level"`
	LogFile         string        `yaml:"log_file"`
	MaxLogFiles     int           `yaml:"max_log_files"`
}

// Overrides carries CLI values; non-empty fields win over every other source.
type Overrides struct {
	ConfigFile string
	DataDir    string
	Network    string
	EsploraURL string
	DebugLevel string
}

// Load resolves the configuration. Precedence, highest first: overrides,
// environment (after loading envFile if it exists), the YAML config file,
// defaults. envFile may be empty to skip .env loading.
func Load(envFile string, ov Overrides) (*Config, error) {
	if envFile != "" {
		// Existing variables are never overwritten by godotenv.Load.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	dataDir := firstNonEmpty(ov.DataDir, os.Getenv(EnvDataDir), DefaultDataDir)

	cfgPath := ov.ConfigFile
	explicit := cfgPath != ""
	if !explicit {
		cfgPath = filepath.Join(dataDir, ConfigFileName)
	}

	cfg := &Config{}
	b, err := os.ReadFile(cfgPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", cfgPath, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config load: %w", err)
	}

	// The data dir chosen by flag or env beats the one in the file.
	if ov.DataDir != "" || os.Getenv(EnvDataDir) != "" || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	applyEnv(cfg)

	if ov.Network != "" {
		cfg.Network = ov.Network
	}
	if ov.EsploraURL != "" {
		cfg.EsploraURL = ov.EsploraURL
	}
	if ov.DebugLevel != "" {
		cfg.DebugLevel = ov.DebugLevel
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv(EnvNetwork); v != "" {
		c.Network = v
	}
	if v := os.Getenv(EnvIssuerKey); v != "" {
		c.IssuerKeyHex = v
	}
	if v := os.Getenv(EnvEsploraURL); v != "" {
		c.EsploraURL = v
	}
	if v := os.Getenv(EnvDebugLevel); v != "" {
		c.DebugLevel = v
	}
}

func (c *Config) setDefaults() {
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.DebugLevel == "" {
		c.DebugLevel = DefaultLevel
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "logs", "rgbproof.log")
	}
	if c.MaxLogFiles <= 0 {
		c.MaxLogFiles = DefaultLogFiles
	}
	c.IssuerKeyHex = strings.TrimSpace(c.IssuerKeyHex)
	c.EsploraURL = strings.TrimSpace(c.EsploraURL)
}

// Validate checks values that would otherwise only fail deep in the engine.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: empty data dir")
	}
	if !networks[c.Network] {
		return fmt.Errorf("config: unknown network %q", c.Network)
	}
	if c.IssuerKeyHex != "" {
		b, err := hex.DecodeString(c.IssuerKeyHex)
		if err != nil || len(b) != 32 {
			return errors.New("config: issuer key must be 64 hex chars (32 bytes)")
		}
	}
	if c.EsploraURL != "" {
		u, err := url.Parse(c.EsploraURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: esplora url %q must be an absolute http(s) url", c.EsploraURL)
		}
	}
	if c.ExplorerTimeout < 0 {
		return errors.New("config: negative explorer timeout")
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
