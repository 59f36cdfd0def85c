package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	// Backend selects where bars, rollups and snapshots live.
	Backend struct {
		Type string `yaml:"type" default:"clickhouse" validate:"oneof=memory clickhouse"`
	} `yaml:"backend"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fxrollup"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"60s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"120s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"fxrollup"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		RefreshTopic string   `yaml:"refresh_topic" default:"fx.snapshot.refresh"`
		ReportTopic  string   `yaml:"report_topic" default:"fx.snapshot.reports"`
		BarsTopic    string   `yaml:"bars_topic"`
		BarsBatch    struct {
			MaxBars int           `yaml:"max_bars" default:"5000" validate:"gte=1"`
			Linger  time.Duration `yaml:"linger" default:"200ms"`
		} `yaml:"bars_batch"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"fxrollup"`
			Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	SQLite struct {
		// Path of the session definition database; empty keeps sessions in memory.
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Rollup struct {
		RefreshTimeout    time.Duration    `yaml:"refresh_timeout" default:"5m"`
		ExpectedCacheSize int              `yaml:"expected_cache_size" default:"100000" validate:"gte=1"`
		Policies          []PolicyOverride `yaml:"policies" validate:"dive"`
	} `yaml:"rollup"`
	Snapshot struct {
		// RefreshEvery of 0 leaves refresh_all to an external scheduler.
		RefreshEvery  time.Duration `yaml:"refresh_every" default:"5m"`
		LockTTL       time.Duration `yaml:"lock_ttl" default:"10m"`
		QueryCacheTTL time.Duration `yaml:"query_cache_ttl" default:"1m"`
		RefreshRate   int           `yaml:"refresh_rate_per_minute" default:"6" validate:"gte=1"`
		ExportDir     string        `yaml:"export_dir"`
	} `yaml:"snapshot"`
	Quality struct {
		SkipWeekends bool `yaml:"skip_weekends" default:"true"`
	} `yaml:"quality"`
	Sessions []SessionSeed `yaml:"sessions"`
}

// PolicyOverride replaces the non-zero fields of one stock rollup policy.
type PolicyOverride struct {
	Resolution string        `yaml:"resolution" validate:"oneof=5m 15m 1h 4h 1d"`
	Mode       string        `yaml:"mode" validate:"oneof=plain session"`
	Lag        time.Duration `yaml:"lag"`
	Every      time.Duration `yaml:"every"`
	Horizon    time.Duration `yaml:"horizon"`
}

// SessionSeed is a session definition declared in the config file. Seeds
// already persisted are ignored on load.
type SessionSeed struct {
	ID           int64    `yaml:"id"`
	Symbol       string   `yaml:"symbol" default:"*"`
	Name         string   `yaml:"name"`
	Timezone     string   `yaml:"tz"`
	Start        string   `yaml:"start"`
	End          string   `yaml:"end"`
	Enabled      *bool    `yaml:"enabled"`
	MinFillRatio *float64 `yaml:"min_fill_ratio"`
	MinBarsAbs   int      `yaml:"min_bars_abs"`
}

const defaultMinFillRatio = 0.95

// IsEnabled treats an omitted enabled flag as true.
func (s SessionSeed) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// FillRatio returns the configured ratio, or 0.95 when the key is omitted.
// An explicit zero is kept so validation can reject it.
func (s SessionSeed) FillRatio() float64 {
	if s.MinFillRatio == nil {
		return defaultMinFillRatio
	}
	return *s.MinFillRatio
}

var validate = validator.New()

// Load reads a YAML file over the tag defaults and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	for i := range c.Sessions {
		if err := defaults.Set(&c.Sessions[i]); err != nil {
			return nil, fmt.Errorf("session seed defaults: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present) and path, then applies environment
// overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := envInt("HTTP_PORT"); v > 0 {
		c.Server.Port = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %s %s", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Backend.Type == "clickhouse" && c.ClickHouse.Host == "" {
		return errors.New("clickhouse.host is required")
	}
	for i, s := range c.Sessions {
		if s.Name == "" || s.Timezone == "" || s.Start == "" || s.End == "" {
			return fmt.Errorf("sessions[%d]: name, tz, start and end are required", i)
		}
		if r := s.FillRatio(); r <= 0 || r > 1 {
			return fmt.Errorf("sessions[%d]: min_fill_ratio %v must be in (0, 1]", i, r)
		}
	}
	return nil
}
