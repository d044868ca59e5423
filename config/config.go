package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Research  ResearchConfig  `mapstructure:"research"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Streams   StreamsConfig   `mapstructure:"streams"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// BrowserConfig controls the browser session manager.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	PersistentProfile bool          `mapstructure:"persistent_profile"`
	AppName           string        `mapstructure:"app_name"`
	ProfileDir        string        `mapstructure:"profile_dir"` // overrides the per-user application data path
	ExecPath          string        `mapstructure:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent"`
	LaunchAttempts    int           `mapstructure:"launch_attempts"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	LockStaleAfter    time.Duration `mapstructure:"lock_stale_after"`
	LockWait          time.Duration `mapstructure:"lock_wait"`
	LockPollInterval  time.Duration `mapstructure:"lock_poll_interval"`
	TempProfileMaxAge time.Duration `mapstructure:"temp_profile_max_age"`
	SearchURL         string        `mapstructure:"search_url"`
	SearchWait        time.Duration `mapstructure:"search_wait"`
}

// Normalize fills zero values with the defaults the session manager relies on.
func (b BrowserConfig) Normalize() BrowserConfig {
	if strings.TrimSpace(b.AppName) == "" {
		b.AppName = "Researcher"
	}
	if strings.TrimSpace(b.UserAgent) == "" {
		b.UserAgent = DefaultUserAgent
	}
	if b.LaunchAttempts <= 0 {
		b.LaunchAttempts = 3
	}
	if b.NavigationTimeout <= 0 {
		b.NavigationTimeout = 5 * time.Second
	}
	if b.SettleDelay < 0 {
		b.SettleDelay = 0
	}
	if b.LockStaleAfter <= 0 {
		b.LockStaleAfter = 300 * time.Second
	}
	if b.LockWait <= 0 {
		b.LockWait = 30 * time.Second
	}
	if b.LockPollInterval <= 0 {
		b.LockPollInterval = 5 * time.Second
	}
	if b.TempProfileMaxAge <= 0 {
		b.TempProfileMaxAge = time.Hour
	}
	if strings.TrimSpace(b.SearchURL) == "" {
		b.SearchURL = "https://www.google.com/search?q="
	}
	if b.SearchWait < 0 {
		b.SearchWait = 0
	}
	return b
}

// DefaultUserAgent is a desktop Chrome user agent shared by the browser and HTTP clients.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// SearchConfig configures the HTTP search fallback.
type SearchConfig struct {
	Provider   string        `mapstructure:"provider"` // duckduckgo, brave, serper
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	Cache      string        `mapstructure:"cache"` // memory, redis, none
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "", "duckduckgo":
	case "brave", "serper":
		if strings.TrimSpace(s.APIKey) == "" {
			return fmt.Errorf("search.api_key required for provider %q", s.Provider)
		}
	default:
		return fmt.Errorf("search.provider %q not supported", s.Provider)
	}
	switch s.Cache {
	case "", "none", "memory", "redis":
	default:
		return fmt.Errorf("search.cache %q not supported", s.Cache)
	}
	return nil
}

// FetchConfig configures the content extractor.
type FetchConfig struct {
	Type     string        `mapstructure:"type"` // http, chromedp
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// LLMConfig contains the language model provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ResearchConfig tunes the research pipeline.
type ResearchConfig struct {
	UseLLMPlanner          bool          `mapstructure:"use_llm_planner"`
	DisableFallbackPlanner bool          `mapstructure:"disable_fallback_planner"`
	ResultsPerSubtask      int           `mapstructure:"results_per_subtask"`
	ScrapeConcurrency      int           `mapstructure:"scrape_concurrency"`
	ProgressInterval       time.Duration `mapstructure:"progress_interval"`
	ExtractMaxChars        int           `mapstructure:"extract_max_chars"`
	FallbackExcerptChars   int           `mapstructure:"fallback_excerpt_chars"`
	EventBuffer            int           `mapstructure:"event_buffer"`
	FailOnEmpty            bool          `mapstructure:"fail_on_empty"`
}

// Normalize clamps research knobs into usable ranges.
func (r ResearchConfig) Normalize() ResearchConfig {
	if r.ResultsPerSubtask <= 0 {
		r.ResultsPerSubtask = 3
	}
	if r.ScrapeConcurrency <= 0 {
		r.ScrapeConcurrency = 1
	}
	if r.ProgressInterval <= 0 {
		r.ProgressInterval = 500 * time.Millisecond
	}
	if r.ExtractMaxChars <= 0 {
		r.ExtractMaxChars = 5000
	}
	if r.FallbackExcerptChars <= 0 {
		r.FallbackExcerptChars = 500
	}
	if r.EventBuffer <= 0 {
		r.EventBuffer = 100
	}
	return r
}

// StorageConfig holds storage back ends
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	port := strings.TrimSpace(r.Port)
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", strings.TrimSpace(r.Host), port)
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// StreamsConfig controls mirroring of research events to Redis Streams.
type StreamsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ProgressStream string `mapstructure:"progress_stream"`
	ResultStream   string `mapstructure:"result_stream"`
	MaxLen         int64  `mapstructure:"max_len"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address       string `mapstructure:"address"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	AuthEnabled   bool   `mapstructure:"auth_enabled"`
	StreamEnabled bool   `mapstructure:"stream_enabled"`
}

func (s ServerConfig) Validate() error {
	if s.AuthEnabled && strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret required when server.auth_enabled is true")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port must be >= 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.persistent_profile", false)
	v.SetDefault("browser.app_name", "Researcher")
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.launch_attempts", 3)
	v.SetDefault("browser.navigation_timeout", 5*time.Second)
	v.SetDefault("browser.settle_delay", 500*time.Millisecond)
	v.SetDefault("browser.lock_stale_after", 300*time.Second)
	v.SetDefault("browser.lock_wait", 30*time.Second)
	v.SetDefault("browser.lock_poll_interval", 5*time.Second)
	v.SetDefault("browser.temp_profile_max_age", time.Hour)
	v.SetDefault("browser.search_url", "https://www.google.com/search?q=")
	v.SetDefault("browser.search_wait", 3*time.Second)

	v.SetDefault("search.provider", "duckduckgo")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.user_agent", DefaultUserAgent)
	v.SetDefault("search.cache", "memory")
	v.SetDefault("search.cache_ttl", 10*time.Minute)

	v.SetDefault("fetch.type", "http")
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_chars", 20000)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("research.use_llm_planner", true)
	v.SetDefault("research.disable_fallback_planner", false)
	v.SetDefault("research.results_per_subtask", 3)
	v.SetDefault("research.scrape_concurrency", 1)
	v.SetDefault("research.progress_interval", 500*time.Millisecond)
	v.SetDefault("research.extract_max_chars", 5000)
	v.SetDefault("research.fallback_excerpt_chars", 500)
	v.SetDefault("research.event_buffer", 100)

	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)

	v.SetDefault("streams.progress_stream", "research.progress")
	v.SetDefault("streams.result_stream", "research.results")
	v.SetDefault("streams.max_len", 10000)

	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.stream_enabled", true)

	v.SetDefault("telemetry.service_name", "researcher")
}

// LoadConfig loads config from file, defaults and RESEARCHER_* environment variables.
// A missing config file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)                                // bin/
			v.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("RESEARCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (RESEARCHER_*)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Browser = cfg.Browser.Normalize()
	cfg.Research = cfg.Research.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-section constraints.
func (c *Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if c.Streams.Enabled || c.Search.Cache == "redis" {
		if err := c.Storage.Redis.Validate(); err != nil {
			return fmt.Errorf("redis required by streams/search cache: %w", err)
		}
	}
	return nil
}
