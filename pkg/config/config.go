package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/gherkit/pkg/models"
)

// DefaultPath is the config file looked up when none is given explicitly.
const DefaultPath = "gherkit.yaml"

// Config holds all gherkit configuration.
type Config struct {
	Listen    string        `yaml:"listen" env:"GHERKIT_LISTEN"`
	DBPath    string        `yaml:"db_path" env:"GHERKIT_DB_PATH"`
	OutputDir string        `yaml:"output_dir" env:"GHERKIT_OUTPUT_DIR"`
	LLM       LLMConfig     `yaml:"llm"`
	Browser   BrowserConfig `yaml:"browser"`
	Cache     CacheConfig   `yaml:"cache"`
	Budget    BudgetConfig  `yaml:"budget"`
	Log       LogConfig     `yaml:"log"`
	Server    ServerConfig  `yaml:"server"`
}

// LLMConfig configures the inference service.
type LLMConfig struct {
	APIKey  string `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model   string `yaml:"model" env:"OPENAI_MODEL"`
	BaseURL string `yaml:"base_url" env:"OPENAI_BASE_URL"`
	// Timeout bounds a single inference call.
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxPlanChars      int           `yaml:"max_plan_chars"`
	MaxContextChars   int           `yaml:"max_context_chars"`
}

// BrowserConfig configures the browser-automation driver.
type BrowserConfig struct {
	// Driver is "playwright" (default) or "chromedp".
	Driver   string        `yaml:"driver" env:"GHERKIT_BROWSER_DRIVER"`
	Headless bool          `yaml:"headless"`
	Install  bool          `yaml:"install"`
	Timeout  time.Duration `yaml:"timeout"`
	// Settle is how long to wait after navigation or an action for the page to stabilise.
	Settle time.Duration `yaml:"settle"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLE_CACHE"`
	TTL     time.Duration `yaml:"ttl"`
	// TTLHours overrides TTL when set through CACHE_TTL_HOURS.
	TTLHours      int           `yaml:"-" env:"CACHE_TTL_HOURS"`
	Backend       string        `yaml:"backend"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"GHERKIT_REDIS_ADDR"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BudgetConfig controls token budget enforcement on inference calls.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"GHERKIT_LOG_LEVEL"`
	Format string `yaml:"format"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:    ":8000",
		DBPath:    "gherkit.db",
		OutputDir: "output",
		LLM: LLMConfig{
			Model:           "gpt-4-turbo-preview",
			Timeout:         2 * time.Minute,
			MaxPlanChars:    50000,
			MaxContextChars: 10000,
		},
		Browser: BrowserConfig{
			Driver:   "playwright",
			Headless: true,
			Timeout:  30 * time.Second,
			Settle:   2 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
			Backend: "sqlite",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "gherkit:cache:",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxUploadBytes:  1 << 20,
		},
	}
}

// Load reads a YAML config file, expands environment variables in it and
// applies environment overrides. When optional is true a missing file yields
// the defaults instead of an error.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(cfg, nil); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overlays environment variables onto cfg. A nil environment means the process environment.
func applyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if cfg.Cache.TTLHours > 0 {
		cfg.Cache.TTL = time.Duration(cfg.Cache.TTLHours) * time.Hour
	}
	return nil
}

// Validate rejects configurations the rest of the program cannot run with.
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "playwright", "chromedp":
	default:
		return fmt.Errorf("browser.driver: unknown driver %q", c.Browser.Driver)
	}
	switch c.Cache.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Prefix == "" {
		return fmt.Errorf("cache.redis.prefix: must not be empty")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl: must not be negative")
	}
	for i, p := range c.Budget.Policies {
		if p.MaxTokens <= 0 {
			return fmt.Errorf("budget.policies[%d]: max_tokens must be positive", i)
		}
		if p.Period != models.BudgetDaily && p.Period != models.BudgetMonthly {
			return fmt.Errorf("budget.policies[%d]: unknown period %q", i, p.Period)
		}
	}
	return nil
}
