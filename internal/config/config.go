package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Feed      FeedConfig      `yaml:"feed"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	TokenMeta TokenMetaConfig `yaml:"token_meta"`
	Stream    StreamConfig    `yaml:"stream"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type FeedConfig struct {
	Token     string        `yaml:"token"`
	PoolID    int64         `yaml:"pool_id"`
	Lookback  time.Duration `yaml:"lookback"`
	MaxTrades int           `yaml:"max_trades"`
}

type UpstreamConfig struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	APIKey         string        `yaml:"api_key"`
	WSURL          string        `yaml:"ws_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type TokenMetaConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type StreamConfig struct {
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	DSN    string                 `yaml:"dsn"`
	Writer ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnv lets the deployment override upstream endpoints and secrets
// without touching the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("ZIGFEED_API_BASE_URL"); v != "" {
		c.Upstream.APIBaseURL = v
	}
	if v := os.Getenv("ZIGFEED_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv("ZIGFEED_WS_URL"); v != "" {
		c.Upstream.WSURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Feed.Lookback <= 0 {
		c.Feed.Lookback = 7 * 24 * time.Hour
	}
	if c.Feed.MaxTrades <= 0 {
		c.Feed.MaxTrades = 500
	}
	if c.Upstream.RequestTimeout <= 0 {
		c.Upstream.RequestTimeout = 15 * time.Second
	}
	if c.TokenMeta.TTL <= 0 {
		c.TokenMeta.TTL = 5 * time.Minute
	}
	if c.Stream.ReconnectMin <= 0 {
		c.Stream.ReconnectMin = time.Second
	}
	if c.Stream.ReconnectMax <= 0 {
		c.Stream.ReconnectMax = 30 * time.Second
	}
	if c.Stream.MaxAttempts <= 0 {
		c.Stream.MaxAttempts = 5
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 10 * time.Second
	}
}
