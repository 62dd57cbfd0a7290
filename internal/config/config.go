package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Transfer source modes
const (
	ModeAPI   = "api"   // remote chain-indexing REST service
	ModeIndex = "index" // local pebble transfer index
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pebble   PebbleConfig   `yaml:"pebble"`
	Log      LogConfig      `yaml:"log"`
	Search   SearchConfig   `yaml:"search"`
	Index    IndexConfig    `yaml:"index"`
	Ethereum ProviderConfig `yaml:"ethereum"`
	Solana   ProviderConfig `yaml:"solana"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// PebbleConfig represents the Pebble database configuration
type PebbleConfig struct {
	Path string `yaml:"path"`
}

// LogConfig represents the logger configuration
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty logs to stderr
}

// SearchConfig bounds relationship searches
type SearchConfig struct {
	DefaultHops      int `yaml:"default_hops"`
	MaxHops          int `yaml:"max_hops"`
	FetchConcurrency int `yaml:"fetch_concurrency"` // neighbour fetches in flight per frontier
}

// IndexConfig represents the local transfer index importer configuration
type IndexConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// ProviderConfig represents the configuration for one chain's transfer source
type ProviderConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Mode      string  `yaml:"mode"` // "api" or "index"
	BaseURL   string  `yaml:"base_url"`
	APIKey    string  `yaml:"api_key"`
	PageSize  int     `yaml:"page_size"`
	MaxPages  int     `yaml:"max_pages"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second, 0 disables limiting
	Timeout   int     `yaml:"timeout"`    // per request, in seconds
}

// Default returns the configuration used when no file or environment overrides are present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Pebble: PebbleConfig{
			Path: "./data/pebble",
		},
		Log: LogConfig{
			Level: "info",
		},
		Search: SearchConfig{
			DefaultHops:      2,
			MaxHops:          6,
			FetchConcurrency: 1,
		},
		Index: IndexConfig{
			BatchSize: 500,
		},
		Ethereum: ProviderConfig{
			Enabled:   true,
			Mode:      ModeAPI,
			BaseURL:   "https://api.etherscan.io/api",
			PageSize:  1000,
			MaxPages:  5,
			RateLimit: 5,
			Timeout:   15,
		},
		Solana: ProviderConfig{
			Enabled:   true,
			Mode:      ModeAPI,
			BaseURL:   "https://pro-api.solscan.io/v2.0",
			PageSize:  100,
			MaxPages:  5,
			RateLimit: 5,
			Timeout:   15,
		},
	}
}

// Load loads configuration from a YAML file and environment variables
func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if it exists
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Search.DefaultHops <= 0 {
		return fmt.Errorf("search.default_hops must be positive, got %d", c.Search.DefaultHops)
	}
	if c.Search.MaxHops < c.Search.DefaultHops {
		return fmt.Errorf("search.max_hops (%d) must not be below search.default_hops (%d)",
			c.Search.MaxHops, c.Search.DefaultHops)
	}
	if c.Search.FetchConcurrency <= 0 {
		return fmt.Errorf("search.fetch_concurrency must be positive, got %d", c.Search.FetchConcurrency)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}
	if err := c.Ethereum.validate("ethereum"); err != nil {
		return err
	}
	return c.Solana.validate("solana")
}

func (p *ProviderConfig) validate(name string) error {
	if !p.Enabled {
		return nil
	}
	switch p.Mode {
	case ModeIndex:
		return nil
	case ModeAPI:
	default:
		return fmt.Errorf("%s.mode must be %q or %q, got %q", name, ModeAPI, ModeIndex, p.Mode)
	}
	if p.BaseURL == "" {
		return fmt.Errorf("%s.base_url is required in api mode", name)
	}
	if p.PageSize <= 0 || p.MaxPages <= 0 {
		return fmt.Errorf("%s.page_size and %s.max_pages must be positive", name, name)
	}
	return nil
}

func (c *Config) loadEnv() {
	// Server config
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}

	// Pebble config
	if path := os.Getenv("PEBBLE_PATH"); path != "" {
		c.Pebble.Path = path
	}

	// Log config
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		c.Log.File = file
	}

	// Search config
	if hops := os.Getenv("SEARCH_DEFAULT_HOPS"); hops != "" {
		if h, err := strconv.Atoi(hops); err == nil {
			c.Search.DefaultHops = h
		}
	}
	if hops := os.Getenv("SEARCH_MAX_HOPS"); hops != "" {
		if h, err := strconv.Atoi(hops); err == nil {
			c.Search.MaxHops = h
		}
	}
	if n := os.Getenv("SEARCH_FETCH_CONCURRENCY"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.Search.FetchConcurrency = v
		}
	}

	// Provider config
	c.loadProviderEnv(&c.Ethereum, "ETH")
	c.loadProviderEnv(&c.Solana, "SOL")
}

func (c *Config) loadProviderEnv(p *ProviderConfig, prefix string) {
	if enabled := os.Getenv(prefix + "_ENABLED"); enabled != "" {
		p.Enabled = enabled == "true" || enabled == "1"
	}
	if mode := os.Getenv(prefix + "_MODE"); mode != "" {
		p.Mode = mode
	}
	if baseURL := os.Getenv(prefix + "_BASE_URL"); baseURL != "" {
		p.BaseURL = baseURL
	}
	if apiKey := os.Getenv(prefix + "_API_KEY"); apiKey != "" {
		p.APIKey = apiKey
	}
	if pageSize := os.Getenv(prefix + "_PAGE_SIZE"); pageSize != "" {
		if v, err := strconv.Atoi(pageSize); err == nil {
			p.PageSize = v
		}
	}
	if maxPages := os.Getenv(prefix + "_MAX_PAGES"); maxPages != "" {
		if v, err := strconv.Atoi(maxPages); err == nil {
			p.MaxPages = v
		}
	}
	if rateLimit := os.Getenv(prefix + "_RATE_LIMIT"); rateLimit != "" {
		if v, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			p.RateLimit = v
		}
	}
	if timeout := os.Getenv(prefix + "_TIMEOUT"); timeout != "" {
		if v, err := strconv.Atoi(timeout); err == nil {
			p.Timeout = v
		}
	}
}
