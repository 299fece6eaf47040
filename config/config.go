package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"fundvault/crypto"
)

// Config carries the daemon configuration.
type Config struct {
	RPCAddress        string     `toml:"RPCAddress"`
	DataDir           string     `toml:"DataDir"`
	Env               string     `toml:"Env"`
	OwnerAddress      string     `toml:"OwnerAddress"`
	OwnerKeystorePath string     `toml:"OwnerKeystorePath"`
	Feed              FeedConfig `toml:"Feed"`
}

// FeedConfig selects and parameterises the price feed.
type FeedConfig struct {
	Mode               string   `toml:"Mode"` // "http", "manual" or "aggregate"
	Endpoint           string   `toml:"Endpoint"`
	Endpoints          []string `toml:"Endpoints"` // priority order for aggregate mode
	Symbol             string   `toml:"Symbol"`
	Decimals           int      `toml:"Decimals"`
	MaxQuoteAgeSeconds int64    `toml:"MaxQuoteAgeSeconds"`
	ManualPrice        string   `toml:"ManualPrice"` // decimal USD price for manual mode
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./fundvault-data"
	}
	if strings.TrimSpace(cfg.Feed.Mode) == "" {
		cfg.Feed.Mode = "manual"
	}
	cfg.Feed.Mode = strings.ToLower(strings.TrimSpace(cfg.Feed.Mode))
	if strings.TrimSpace(cfg.Feed.Symbol) == "" {
		cfg.Feed.Symbol = "ETH"
	}
	if cfg.Feed.Decimals <= 0 {
		cfg.Feed.Decimals = 8
	}
	if cfg.Feed.MaxQuoteAgeSeconds <= 0 {
		cfg.Feed.MaxQuoteAgeSeconds = 120
	}
	if strings.TrimSpace(cfg.Feed.ManualPrice) == "" {
		cfg.Feed.ManualPrice = "2000"
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.OwnerAddress) == "" {
		return fmt.Errorf("config: OwnerAddress is required")
	}
	if _, err := crypto.DecodeAddress(cfg.OwnerAddress); err != nil {
		return fmt.Errorf("config: invalid OwnerAddress: %w", err)
	}
	switch cfg.Feed.Mode {
	case "manual":
	case "http":
		if strings.TrimSpace(cfg.Feed.Endpoint) == "" {
			return fmt.Errorf("config: Feed.Endpoint is required in http mode")
		}
	case "aggregate":
		if len(cfg.Feed.Endpoints) == 0 {
			return fmt.Errorf("config: Feed.Endpoints is required in aggregate mode")
		}
		for _, endpoint := range cfg.Feed.Endpoints {
			if strings.TrimSpace(endpoint) == "" {
				return fmt.Errorf("config: empty entry in Feed.Endpoints")
			}
		}
	default:
		return fmt.Errorf("config: unknown Feed.Mode %q", cfg.Feed.Mode)
	}
	if cfg.Feed.Decimals > 77 {
		return fmt.Errorf("config: Feed.Decimals out of range")
	}
	return nil
}

// Owner decodes the configured owner address into its raw 20 bytes.
func (c *Config) Owner() ([20]byte, error) {
	addr, err := crypto.DecodeAddress(c.OwnerAddress)
	if err != nil {
		return [20]byte{}, err
	}
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out, nil
}

// MaxQuoteAge returns the configured freshness window as a duration.
func (c FeedConfig) MaxQuoteAge() time.Duration {
	return time.Duration(c.MaxQuoteAgeSeconds) * time.Second
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "owner-keystore.json")
}

func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("config: generate owner key: %w", err)
	}
	// Persist the generated key next to the config. Without it the default
	// owner could never sign a sweep and every contribution would be stuck in
	// the vault forever.
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, fmt.Errorf("config: save owner keystore: %w", err)
	}
	cfg := &Config{
		OwnerAddress:      key.PubKey().Address().String(),
		OwnerKeystorePath: keystorePath,
	}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
