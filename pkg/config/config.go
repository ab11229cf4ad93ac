package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/labstack/gommon/bytes"
	"gopkg.in/yaml.v3"
)

// KindDefaults are the fallback parameters of one windowed strategy.
type KindDefaults struct {
	C      float64 `yaml:"c"`
	Window string  `yaml:"window"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Service     struct {
		Name    string `yaml:"name" default:"uniad"`
		Version string `yaml:"version" default:"dev"`
	} `yaml:"service"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		BodyLimit       string        `yaml:"body_limit" default:"16M"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
		File   struct {
			Path       string `yaml:"path" default:"logs/uniad.log"`
			MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
			MaxBackups int    `yaml:"max_backups" default:"5"`
			MaxAgeDays int    `yaml:"max_age_days" default:"14"`
			Compress   bool   `yaml:"compress"`
		} `yaml:"file"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Detection struct {
		Kernel    string `yaml:"kernel" default:"local"`
		MaxPoints int    `yaml:"max_points" default:"200000"`
		// Timeout bounds one detection run on every transport; 0 disables it.
		Timeout  time.Duration `yaml:"timeout" default:"25s"`
		Defaults struct {
			Persist         KindDefaults `yaml:"persist"`
			LevelShift      KindDefaults `yaml:"levelshift"`
			VolatilityShift KindDefaults `yaml:"volatilityshift"`
		} `yaml:"defaults"`
		Remote struct {
			URL     string        `yaml:"url"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
			Retries int           `yaml:"retries" default:"3"`
		} `yaml:"remote"`
	} `yaml:"detection"`
	RateLimit struct {
		Enabled bool          `yaml:"enabled"`
		RPS     float64       `yaml:"rps" default:"50"`
		Burst   int           `yaml:"burst" default:"100"`
		TTL     time.Duration `yaml:"ttl" default:"10m"`
	} `yaml:"rate_limit"`
	Cache struct {
		Enabled bool          `yaml:"enabled"`
		TTL     time.Duration `yaml:"ttl" default:"5m"`
		Size    int           `yaml:"size" default:"1024"`
		Redis   struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"uniad:"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequestTopic string   `yaml:"request_topic" default:"detection.requests"`
		ResultTopic  string   `yaml:"result_topic" default:"detection.results"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"uniad-detector"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"detection.requests.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"uniad"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

// Default returns a configuration populated from struct defaults only.
func Default() *Config {
	var c Config
	c.Environment = "development"
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	c.Detection.Defaults.Persist = KindDefaults{C: 3.0, Window: "28D"}
	c.Detection.Defaults.LevelShift = KindDefaults{C: 20.0, Window: "60S"}
	c.Detection.Defaults.VolatilityShift = KindDefaults{C: 20.0, Window: "60S"}
	return &c
}

// Load reads and parses a YAML configuration file on top of Default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Default()
	c.Environment = ""
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("DETECTION_KERNEL"); v != "" {
		c.Detection.Kernel = v
	}
	if v := getenv("REMOTE_KERNEL_URL"); v != "" {
		c.Detection.Remote.URL = v
	}
	if v := getenv("KAFKA_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KAFKA_ENABLED: %w", err)
		}
		c.Kafka.Enabled = enabled
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got '%s'", c.Logging.Format)
	}
	if c.Logging.Output != "stdout" && c.Logging.Output != "file" {
		return fmt.Errorf("logging.output must be 'stdout' or 'file', got '%s'", c.Logging.Output)
	}
	switch c.Detection.Kernel {
	case "local":
	case "remote":
		if c.Detection.Remote.URL == "" {
			return fmt.Errorf("detection.remote.url is required for the remote kernel")
		}
	default:
		return fmt.Errorf("detection.kernel must be 'local' or 'remote', got '%s'", c.Detection.Kernel)
	}
	if c.Server.BodyLimit != "" {
		if _, err := bytes.Parse(c.Server.BodyLimit); err != nil {
			return fmt.Errorf("server.body_limit: %w", err)
		}
	}
	if c.Detection.Timeout < 0 {
		return fmt.Errorf("detection.timeout cannot be negative")
	}
	if c.Detection.MaxPoints < 0 {
		return fmt.Errorf("detection.max_points cannot be negative")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be positive")
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty")
		}
		if c.Kafka.RequestTopic == "" || c.Kafka.ResultTopic == "" {
			return fmt.Errorf("kafka.request_topic and kafka.result_topic are required")
		}
	}
	if c.ClickHouse.Enabled && (c.ClickHouse.Host == "" || c.ClickHouse.Database == "") {
		return fmt.Errorf("clickhouse.host and clickhouse.database are required")
	}
	return nil
}
