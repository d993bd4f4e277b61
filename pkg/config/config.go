package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig                 `mapstructure:"app" yaml:"app"`
	Gateways   map[string]GatewayConfig  `mapstructure:"gateways" yaml:"gateways"`
	Providers  map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Memory     MemoryConfig              `mapstructure:"memory" yaml:"memory"`
	Browser    BrowserConfig             `mapstructure:"browser" yaml:"browser"`
	Completion CompletionConfig          `mapstructure:"completion" yaml:"completion"`
	Engine     EngineConfig              `mapstructure:"engine" yaml:"engine"`
	Server     ServerConfig              `mapstructure:"server" yaml:"server"`
	Policy     PolicyConfig              `mapstructure:"policy" yaml:"policy"`
	Logger     LoggerConfig              `mapstructure:"logger" yaml:"logger"`
}

type AppConfig struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Workspace  string `mapstructure:"workspace" yaml:"workspace"`
	PromptsDir string `mapstructure:"prompts_dir" yaml:"prompts_dir"`
}

type GatewayConfig struct {
	Token   string `mapstructure:"token" yaml:"token"`
	ChatID  string `mapstructure:"chat_id" yaml:"chat_id"`
	Verbose bool   `mapstructure:"verbose" yaml:"verbose"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	Model      string `mapstructure:"model" yaml:"model"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIVersion string `mapstructure:"api_version" yaml:"api_version,omitempty"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

// MemoryConfig selects the memoization backend. The sqlite database at Path
// also holds the request records, whatever the memo type.
type MemoryConfig struct {
	Type       string `mapstructure:"type" yaml:"type"`
	Path       string `mapstructure:"path" yaml:"path"`
	PlanFile   string `mapstructure:"plan_file" yaml:"plan_file"`
	ActionFile string `mapstructure:"action_file" yaml:"action_file"`
}

type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Width             int           `mapstructure:"width" yaml:"width"`
	Height            int           `mapstructure:"height" yaml:"height"`
	FullPage          bool          `mapstructure:"full_page" yaml:"full_page"`
	IncludeLinks      bool          `mapstructure:"include_links" yaml:"include_links"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	ChromePath        string        `mapstructure:"chrome_path" yaml:"chrome_path"`
	PageText          bool          `mapstructure:"page_text" yaml:"page_text"`
	// PageTextLimit caps the page digest in bytes.
	PageTextLimit int `mapstructure:"page_text_limit" yaml:"page_text_limit"`
}

type CompletionConfig struct {
	Temperature   float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	TopP          float64 `mapstructure:"top_p" yaml:"top_p"`
	RatePerMinute int     `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
}

type EngineConfig struct {
	Workers    int           `mapstructure:"workers" yaml:"workers"`
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type PolicyConfig struct {
	DenySchemes  []string `mapstructure:"deny_schemes" yaml:"deny_schemes"`
	DenyPatterns []string `mapstructure:"deny_patterns" yaml:"deny_patterns"`
	Rules        []string `mapstructure:"rules" yaml:"rules"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	LLMLogFile  string `mapstructure:"llm_log_file" yaml:"llm_log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// providerOrder fixes which provider wins when several are enabled.
var providerOrder = []string{"azure", "openai", "openrouter", "gemini"}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "webpilot")
	v.SetDefault("app.workspace", ".")

	v.SetDefault("memory.type", "sqlite")
	v.SetDefault("memory.path", "webpilot.db")
	v.SetDefault("memory.plan_file", "cache/action_plan_cache.json")
	v.SetDefault("memory.action_file", "cache/browser_actions_cache.json")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 800)
	v.SetDefault("browser.full_page", false)
	v.SetDefault("browser.include_links", true)
	v.SetDefault("browser.settle_delay", "5s")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.screenshot_dir", "screenshots")
	v.SetDefault("browser.page_text", false)
	v.SetDefault("browser.page_text_limit", 4000)

	v.SetDefault("completion.temperature", 0.3)
	v.SetDefault("completion.max_tokens", 300)
	v.SetDefault("completion.top_p", 0.95)
	v.SetDefault("completion.rate_per_minute", 60)
	v.SetDefault("completion.burst", 5)

	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.stale_after", "30m")

	v.SetDefault("server.addr", ":5000")

	v.SetDefault("policy.deny_schemes", []string{"file", "chrome", "javascript", "data"})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "webpilot")
	v.SetDefault("logger.llm_log_file", "logs/llm.jsonl")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
}

// BindSecrets maps the conventional provider environment variables onto the
// provider sections so keys can live in .env instead of the config file.
func BindSecrets(v *viper.Viper) {
	_ = v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("providers.azure.api_key", "AZURE_OPENAI_API_KEY", "OPENAI_AZURE_API_KEY")
	_ = v.BindEnv("providers.azure.base_url", "AZURE_OPENAI_ENDPOINT", "OPENAI_AZURE_ENDPOINT")
	_ = v.BindEnv("providers.azure.api_version", "AZURE_OPENAI_API_VERSION", "OPENAI_AZURE_API_VERSION")
	_ = v.BindEnv("providers.azure.model", "AZURE_OPENAI_DEPLOYMENT", "OPENAI_AZURE_DEPLOYMENT")
	_ = v.BindEnv("providers.openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("providers.gemini.api_key", "GOOGLE_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("gateways.telegram.token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("gateways.discord.token", "DISCORD_BOT_TOKEN")
}

// NewViper returns a viper instance with defaults, env binding and the config
// search path set up. path may be empty.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.webpilot")
		}
	}

	v.SetEnvPrefix("WEBPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSecrets(v)
	return v
}

// LoadConfig reads .env, then the config file at path (or the first config.*
// found on the search path), then the environment.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := NewViper(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper decodes, expands and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	// Nested map keys are not reached by AutomaticEnv, so fill the
	// env-bound provider secrets in explicitly.
	for _, name := range providerOrder {
		p := cfg.Providers[name]
		if key := v.GetString("providers." + name + ".api_key"); key != "" && p.APIKey == "" {
			p.APIKey = key
		}
		if name == "azure" {
			if p.BaseURL == "" {
				p.BaseURL = v.GetString("providers.azure.base_url")
			}
			if p.APIVersion == "" {
				p.APIVersion = v.GetString("providers.azure.api_version")
			}
			if p.Model == "" {
				p.Model = v.GetString("providers.azure.model")
			}
		}
		if p != (ProviderConfig{}) {
			if cfg.Providers == nil {
				cfg.Providers = make(map[string]ProviderConfig)
			}
			cfg.Providers[name] = p
		}
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	paths := []*string{
		&c.App.Workspace, &c.App.PromptsDir,
		&c.Memory.Path, &c.Memory.PlanFile, &c.Memory.ActionFile,
		&c.Browser.ScreenshotDir, &c.Browser.ChromePath,
		&c.Logger.LogFile, &c.Logger.LLMLogFile,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.Memory.Type {
	case "sqlite", "jsonfile":
	default:
		return fmt.Errorf("memory.type must be sqlite or jsonfile, got %q", c.Memory.Type)
	}
	if c.Memory.Path == "" {
		return fmt.Errorf("memory.path is required")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be a positive integer")
	}
	if c.Browser.SettleDelay < 0 {
		return fmt.Errorf("browser.settle_delay must not be negative")
	}
	if c.Browser.PageTextLimit < 0 {
		return fmt.Errorf("browser.page_text_limit must not be negative")
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("completion.max_tokens must be a positive integer")
	}
	if c.Completion.TopP < 0 || c.Completion.TopP > 1 {
		return fmt.Errorf("completion.top_p must be within [0, 1]")
	}
	return nil
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for _, name := range providerOrder {
		if p, ok := c.Providers[name]; ok && p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	return c.gateway("telegram")
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (GatewayConfig, bool) {
	return c.gateway("discord")
}

func (c *Config) gateway(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
