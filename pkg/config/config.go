package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8000"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       float64       `yaml:"rate_limit" default:"20"`
		RateBurst       int           `yaml:"rate_burst" default:"40"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"3"`
		MaxAgeDays int    `yaml:"max_age_days" default:"7"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Market struct {
		WSBase         string        `yaml:"ws_base" default:"wss://fstream.binance.com"`
		Symbols        []string      `yaml:"symbols"`
		AutoSubscribe  bool          `yaml:"auto_subscribe" default:"true"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
		HandshakeTTL   time.Duration `yaml:"handshake_timeout" default:"10s"`
		BackoffInitial time.Duration `yaml:"backoff_initial" default:"1s"`
		BackoffMax     time.Duration `yaml:"backoff_max" default:"60s"`
	} `yaml:"market"`
	Buffer struct {
		Capacity int `yaml:"capacity" default:"10000"`
	} `yaml:"buffer"`
	Resample struct {
		Timeframes []string      `yaml:"timeframes"`
		Interval   time.Duration `yaml:"interval" default:"60s"`
		CacheTTL   time.Duration `yaml:"cache_ttl" default:"60s"`
	} `yaml:"resample"`
	Analytics struct {
		DefaultWindow     int           `yaml:"default_window" default:"60"`
		DefaultRegression string        `yaml:"default_regression" default:"OLS"`
		DefaultTimeframe  string        `yaml:"default_timeframe" default:"1m"`
		ProcessorInterval time.Duration `yaml:"processor_interval" default:"10s"`
		CacheTTL          time.Duration `yaml:"cache_ttl" default:"30s"`
	} `yaml:"analytics"`
	Alerts struct {
		PollInterval time.Duration `yaml:"poll_interval" default:"500ms"`
		HistoryLimit int           `yaml:"history_limit" default:"1000"`
		Timeframe    string        `yaml:"timeframe" default:"1m"`
		Window       int           `yaml:"window" default:"60"`
	} `yaml:"alerts"`
	Backend struct {
		Type         string        `yaml:"type" default:"none"`
		BatchSize    int           `yaml:"batch_size" default:"200"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		QueueSize    int           `yaml:"queue_size" default:"10000"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"market.ticks"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		Table            string        `yaml:"table" default:"ticks"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	SQLite struct {
		Path string `yaml:"path" default:"data/market_data.db"`
	} `yaml:"sqlite"`
	Redis struct {
		Enabled       bool   `yaml:"enabled"`
		Addr          string `yaml:"addr" default:"localhost:6379"`
		Password      string `yaml:"password"`
		DB            int    `yaml:"db"`
		EventsChannel string `yaml:"events_channel" default:"quantpulse.events"`
	} `yaml:"redis"`
}

var (
	defaultSymbols    = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "ADAUSDT"}
	defaultTimeframes = []string{"1s", "1m", "5m"}
	knownTimeframes   = map[string]bool{"1s": true, "1m": true, "5m": true, "15m": true, "1h": true, "1d": true}
)

// Default returns a configuration populated only from struct defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	c.applySliceDefaults()
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applySliceDefaults()
	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv()
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Market.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("WS_BASE"); v != "" {
		c.Market.WSBase = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applySliceDefaults() {
	if len(c.Market.Symbols) == 0 {
		c.Market.Symbols = append([]string(nil), defaultSymbols...)
	}
	if len(c.Resample.Timeframes) == 0 {
		c.Resample.Timeframes = append([]string(nil), defaultTimeframes...)
	}
}

func (c *Config) normalize() {
	syms := make([]string, 0, len(c.Market.Symbols))
	for _, s := range c.Market.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			syms = append(syms, s)
		}
	}
	c.Market.Symbols = syms
	c.Market.WSBase = strings.TrimRight(c.Market.WSBase, "/")
	c.Backend.Type = strings.ToLower(strings.TrimSpace(c.Backend.Type))
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Backend.Type {
	case "none", "kafka", "clickhouse", "sqlite":
	default:
		return fmt.Errorf("backend.type must be one of none, kafka, clickhouse, sqlite, got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when backend.type is kafka")
	}
	if c.Market.WSBase == "" {
		return fmt.Errorf("market.ws_base is required")
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("market.symbols cannot be empty")
	}
	if c.Market.BackoffInitial <= 0 || c.Market.BackoffMax < c.Market.BackoffInitial {
		return fmt.Errorf("market backoff must satisfy 0 < backoff_initial <= backoff_max")
	}
	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer.capacity must be positive, got %d", c.Buffer.Capacity)
	}
	for _, tf := range c.Resample.Timeframes {
		if !knownTimeframes[tf] {
			return fmt.Errorf("resample.timeframes: unsupported timeframe '%s'", tf)
		}
	}
	if c.Resample.Interval <= 0 {
		return fmt.Errorf("resample.interval must be positive")
	}
	if c.Analytics.DefaultWindow < 2 {
		return fmt.Errorf("analytics.default_window must be >= 2, got %d", c.Analytics.DefaultWindow)
	}
	if c.Alerts.PollInterval <= 0 {
		return fmt.Errorf("alerts.poll_interval must be positive")
	}
	if c.Alerts.Window < 2 {
		return fmt.Errorf("alerts.window must be >= 2, got %d", c.Alerts.Window)
	}
	if c.Alerts.HistoryLimit < 0 {
		return fmt.Errorf("alerts.history_limit cannot be negative")
	}
	return nil
}
