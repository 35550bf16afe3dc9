// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	URL      string `yaml:"url"` // redis://, rediss:// or host:port
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	EncryptionKey string        `yaml:"encryption_key"` // 16/24/32 bytes; empty stores plaintext
}

type QueueConfig struct {
	Prefix       string        `yaml:"prefix"`
	ReceiptTTL   time.Duration `yaml:"receipt_ttl"`   // how long a finished job stays pollable
	AbandonAfter time.Duration `yaml:"abandon_after"` // lifetime of a job that is never acked
	DequeueBlock time.Duration `yaml:"dequeue_block"`
	// SampleEvery is how often queue depth is published to metrics.
	SampleEvery time.Duration `yaml:"sample_every"`
}

type WorkerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Concurrency   int           `yaml:"concurrency"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
}

type ProxyConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Server         string `yaml:"server"`
	UsernamePrefix string `yaml:"username_prefix"`
	Password       string `yaml:"password"`
	PoolSize       int    `yaml:"pool_size"`
}

type BrowserConfig struct {
	Headless      bool     `yaml:"headless"`
	ExecPath      string   `yaml:"exec_path"`
	Locale        string   `yaml:"locale"`
	UserAgents    []string `yaml:"user_agents"`
	ScreenshotDir string   `yaml:"screenshot_dir"`
}

type StabilityConfig struct {
	Interval time.Duration `yaml:"interval"`
	Window   time.Duration `yaml:"window"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ProvidersConfig struct {
	Timezone          string          `yaml:"timezone"`
	NavigationTimeout time.Duration   `yaml:"navigation_timeout"`
	ElementTimeout    time.Duration   `yaml:"element_timeout"`
	ResponseTimeout   time.Duration   `yaml:"response_timeout"`
	TypingDelay       time.Duration   `yaml:"typing_delay"`
	Stability         StabilityConfig `yaml:"stability"`
	LatamURL          string          `yaml:"latam_url"`
	GolURL            string          `yaml:"gol_url"`
	AzulURL           string          `yaml:"azul_url"`
}

type APIConfig struct {
	SubmitLimit  int           `yaml:"submit_limit"` // per requester per window, 0 disables
	SubmitWindow time.Duration `yaml:"submit_window"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Browser   BrowserConfig   `yaml:"browser"`
	Providers ProvidersConfig `yaml:"providers"`
	API       APIConfig       `yaml:"api"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the optional YAML file at path, applies environment
// overrides (a .env file is honoured) and fills defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	cfg, err := LoadLocal(path, dev)
	if err != nil {
		return nil, err
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url (REDIS_URL) is required")
	}
	if cfg.Proxy.Enabled && cfg.Proxy.Server == "" {
		return nil, errors.New("proxy.server (PROXY_SERVER) is required unless DISABLE_PROXY=true")
	}
	return cfg, nil
}

// LoadLocal is LoadConfig without the checks for the service's external
// dependencies. Tools that drive a browser directly use it.
func LoadLocal(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Worker:  WorkerConfig{Enabled: true},
		Proxy:   ProxyConfig{Enabled: true},
		Browser: BrowserConfig{Headless: true},
	}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// environment-only deployment
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	envString("REDIS_URL", &cfg.Redis.URL)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envString("CACHE_ENCRYPTION_KEY", &cfg.Cache.EncryptionKey)
	envInt("PORT", &cfg.Server.Port)
	envBool("ENABLE_WORKER", &cfg.Worker.Enabled)
	envInt("WORKER_CONCURRENCY", &cfg.Worker.Concurrency)
	envString("PROXY_SERVER", &cfg.Proxy.Server)
	envString("PROXY_PASSWORD", &cfg.Proxy.Password)
	envString("PROXY_USERNAME_PREFIX", &cfg.Proxy.UsernamePrefix)
	envInt("TOTAL_PROXIES", &cfg.Proxy.PoolSize)
	if v, ok := os.LookupEnv("DISABLE_PROXY"); ok {
		cfg.Proxy.Enabled = !parseBool(v)
	}
	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)
	envBool("BROWSER_HEADLESS", &cfg.Browser.Headless)
	envString("CHROME_PATH", &cfg.Browser.ExecPath)
	envString("SCREENSHOT_DIR", &cfg.Browser.ScreenshotDir)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 300 * time.Second
	}
	if cfg.Queue.Prefix == "" {
		cfg.Queue.Prefix = "scrape"
	}
	if cfg.Queue.ReceiptTTL <= 0 {
		cfg.Queue.ReceiptTTL = cfg.Cache.TTL
	}
	if cfg.Queue.AbandonAfter <= 0 {
		cfg.Queue.AbandonAfter = time.Hour
	}
	if cfg.Queue.DequeueBlock <= 0 {
		cfg.Queue.DequeueBlock = time.Second
	}
	if cfg.Queue.SampleEvery <= 0 {
		cfg.Queue.SampleEvery = 15 * time.Second
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 1
	}
	if cfg.Worker.RatePerSecond <= 0 {
		cfg.Worker.RatePerSecond = 5
	}
	if cfg.Worker.Burst <= 0 {
		cfg.Worker.Burst = 1
	}
	if cfg.Worker.JobTimeout <= 0 {
		cfg.Worker.JobTimeout = 3 * time.Minute
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = cfg.Worker.JobTimeout + 15*time.Second
	}
	if cfg.Proxy.PoolSize <= 0 {
		cfg.Proxy.PoolSize = 250
	}
	if cfg.Browser.Locale == "" {
		cfg.Browser.Locale = "pt-BR"
	}

	p := &cfg.Providers
	if p.Timezone == "" {
		p.Timezone = "America/Sao_Paulo"
	}
	if p.NavigationTimeout <= 0 {
		p.NavigationTimeout = 60 * time.Second
	}
	if p.ElementTimeout <= 0 {
		p.ElementTimeout = 30 * time.Second
	}
	if p.ResponseTimeout <= 0 {
		p.ResponseTimeout = 30 * time.Second
	}
	if p.TypingDelay <= 0 {
		p.TypingDelay = 300 * time.Millisecond
	}
	if p.Stability.Interval <= 0 {
		p.Stability.Interval = 500 * time.Millisecond
	}
	if p.Stability.Window <= 0 {
		p.Stability.Window = 2 * time.Second
	}
	if p.Stability.Timeout <= 0 {
		p.Stability.Timeout = 40 * time.Second
	}
	if p.LatamURL == "" {
		p.LatamURL = "https://www.latamairlines.com/br/pt/minhas-viagens"
	}
	if p.GolURL == "" {
		p.GolURL = "https://b2c.voegol.com.br/minhas-viagens/encontrar-viagem"
	}
	if p.AzulURL == "" {
		p.AzulURL = "https://www.voeazul.com.br/br/pt/home/minhas-viagens"
	}

	if cfg.API.SubmitWindow <= 0 {
		cfg.API.SubmitWindow = time.Minute
	}
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = parseBool(v)
	}
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}
