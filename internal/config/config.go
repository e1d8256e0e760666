package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for moneychat
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Currency CurrencyConfig `mapstructure:"currency"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
	CLI      CLIConfig      `mapstructure:"cli"`

	v    *viper.Viper
	file string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address         string `mapstructure:"address"`
	Port            int    `mapstructure:"port"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	MaxMessageBytes int    `mapstructure:"max_message_bytes"`
}

// LLMConfig holds language model settings
type LLMConfig struct {
	DefaultProvider string              `mapstructure:"default_provider"`
	Fallbacks       []string            `mapstructure:"fallbacks"`
	Providers       map[string]Provider `mapstructure:"providers"`
	RatePerMinute   int                 `mapstructure:"rate_per_minute"`
	Burst           int                 `mapstructure:"burst"`
	Breaker         BreakerConfig       `mapstructure:"breaker"`
}

// Provider holds individual LLM provider configuration.
// Type is "openai" for any OpenAI-compatible endpoint or "gemini".
type Provider struct {
	Type      string `mapstructure:"type"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	Timeout   int    `mapstructure:"timeout"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// BreakerConfig tunes the circuit breakers around remote calls
type BreakerConfig struct {
	MaxFailures uint32 `mapstructure:"max_failures"`
	OpenSeconds int    `mapstructure:"open_seconds"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
	GCSchedule string `mapstructure:"gc_schedule"`
}

// LedgerConfig holds ledger behaviour settings
type LedgerConfig struct {
	DefaultCurrency string `mapstructure:"default_currency"`
	HistoryLimit    int    `mapstructure:"history_limit"`
}

// CurrencyConfig holds exchange-rate service settings
type CurrencyConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         int           `mapstructure:"timeout"`
	CacheTTLMinutes int           `mapstructure:"cache_ttl_minutes"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	AuthEnabled   bool     `mapstructure:"auth_enabled"`
	JWTSecret     string   `mapstructure:"jwt_secret"`
	AdminPassword string   `mapstructure:"admin_password"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// CLIConfig holds settings for CLI mode
type CLIConfig struct {
	UserID string `mapstructure:"user_id"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "moneychat.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "moneychat.yaml")
	}

	file := ""
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		file = configPath
	}

	// MONEYCHAT_SERVER_PORT, MONEYCHAT_LEDGER_DEFAULT_CURRENCY, ...
	v.SetEnvPrefix("MONEYCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.v = v
	cfg.file = file

	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Viper doesn't handle nested maps well with env vars
	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)
	v.SetDefault("server.max_message_bytes", 2*1024*1024)

	v.SetDefault("llm.default_provider", "gemini")
	v.SetDefault("llm.rate_per_minute", 120)
	v.SetDefault("llm.burst", 10)
	v.SetDefault("llm.breaker.max_failures", 5)
	v.SetDefault("llm.breaker.open_seconds", 30)

	v.SetDefault("llm.providers.gemini.type", "gemini")
	v.SetDefault("llm.providers.gemini.model", "gemini-2.0-flash")
	v.SetDefault("llm.providers.gemini.timeout", 30)

	v.SetDefault("llm.providers.openai.type", "openai")
	v.SetDefault("llm.providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.providers.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.providers.openai.timeout", 30)
	v.SetDefault("llm.providers.openai.max_tokens", 1024)

	v.SetDefault("llm.providers.openrouter.type", "openai")
	v.SetDefault("llm.providers.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.providers.openrouter.model", "google/gemini-2.0-flash-001")
	v.SetDefault("llm.providers.openrouter.timeout", 30)
	v.SetDefault("llm.providers.openrouter.max_tokens", 1024)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.gc_schedule", "@every 10m")

	v.SetDefault("ledger.default_currency", "USD")
	v.SetDefault("ledger.history_limit", 200)

	v.SetDefault("currency.base_url", "https://api.frankfurter.app")
	v.SetDefault("currency.timeout", 10)
	v.SetDefault("currency.cache_ttl_minutes", 60)
	v.SetDefault("currency.breaker.max_failures", 3)
	v.SetDefault("currency.breaker.open_seconds", 60)

	v.SetDefault("security.auth_enabled", false)
	v.SetDefault("security.allow_origins", []string{"*"})

	v.SetDefault("log.level", "info")

	v.SetDefault("cli.user_id", "default")
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "moneychat")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "moneychat")
}

// loadEnvOverrides loads provider keys that Viper can't reach through nested maps
func loadEnvOverrides(cfg *Config) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]Provider)
	}

	if p := ResolveEnvWithAliases("MONEYCHAT_LLM_DEFAULT_PROVIDER"); p != "" {
		cfg.LLM.DefaultProvider = p
	}

	for name, p := range cfg.LLM.Providers {
		prefix := "MONEYCHAT_LLM_PROVIDERS_" + strings.ToUpper(name) + "_"
		if key := ResolveEnvWithAliases(prefix + "API_KEY"); key != "" {
			p.APIKey = key
		}
		p.BaseURL = GetEnvDefault(prefix+"BASE_URL", p.BaseURL)
		p.Model = GetEnvDefault(prefix+"MODEL", p.Model)
		cfg.LLM.Providers[name] = p
	}

	if secret := ResolveEnvWithAliases("MONEYCHAT_SECURITY_JWT_SECRET"); secret != "" {
		cfg.Security.JWTSecret = secret
	}
	if pw := ResolveEnvWithAliases("MONEYCHAT_SECURITY_ADMIN_PASSWORD"); pw != "" {
		cfg.Security.AdminPassword = pw
	}
}

func validate(cfg *Config) error {
	if cfg.LLM.DefaultProvider == "" {
		return fmt.Errorf("llm.default_provider is required")
	}

	for name, p := range cfg.LLM.Providers {
		switch p.Type {
		case "openai", "gemini":
		case "":
			p.Type = "openai"
			cfg.LLM.Providers[name] = p
		default:
			return fmt.Errorf("llm.providers.%s.type %q is not supported", name, p.Type)
		}
	}

	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}

	cfg.Ledger.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.Ledger.DefaultCurrency))
	if len(cfg.Ledger.DefaultCurrency) != 3 {
		return fmt.Errorf("ledger.default_currency must be a 3-letter ISO code")
	}
	if cfg.Ledger.HistoryLimit <= 0 {
		cfg.Ledger.HistoryLimit = 200
	}

	if cfg.Security.AuthEnabled {
		if cfg.Security.JWTSecret == "" {
			return fmt.Errorf("security.jwt_secret is required when auth is enabled")
		}
		if cfg.Security.AdminPassword == "" {
			return fmt.Errorf("security.admin_password is required when auth is enabled")
		}
	}

	return nil
}

// GetProvider returns the provider configuration by name
func (c *Config) GetProvider(name string) (Provider, bool) {
	p, ok := c.LLM.Providers[name]
	return p, ok
}

// DefaultProvider returns the default provider configuration
func (c *Config) DefaultProvider() (Provider, error) {
	p, ok := c.LLM.Providers[c.LLM.DefaultProvider]
	if !ok {
		return Provider{}, fmt.Errorf("default provider %s not found", c.LLM.DefaultProvider)
	}
	return p, nil
}

// HasCredentials reports whether at least the default provider has an API key.
// Missing credentials are reported per request rather than at startup.
func (c *Config) HasCredentials() bool {
	p, err := c.DefaultProvider()
	return err == nil && p.APIKey != ""
}

// ProviderOrder returns the default provider followed by the configured fallbacks
// that have credentials.
func (c *Config) ProviderOrder() []string {
	order := []string{c.LLM.DefaultProvider}
	seen := map[string]bool{c.LLM.DefaultProvider: true}
	for _, name := range c.LLM.Fallbacks {
		if seen[name] {
			continue
		}
		if p, ok := c.LLM.Providers[name]; ok && p.APIKey != "" {
			order = append(order, name)
			seen[name] = true
		}
	}
	return order
}

// Watch re-reads the config file on change and hands the new values to onChange.
// It is a no-op when no config file was loaded.
func (c *Config) Watch(onChange func(*Config, error)) {
	if c.v == nil || c.file == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(c.v)
		if err == nil {
			next.v = c.v
			next.file = c.file
		}
		onChange(next, err)
	})
	c.v.WatchConfig()
}

// File returns the config file in use, if any
func (c *Config) File() string {
	return c.file
}
