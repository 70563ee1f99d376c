package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"BrentShift/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Data struct {
		Backend        string `yaml:"backend" default:"memory" validate:"oneof=memory clickhouse"`
		Series         string `yaml:"series" default:"brent" validate:"required"`
		PricesCSV      string `yaml:"prices_csv" default:"data/BrentOilPrices.csv"`
		EventsCSV      string `yaml:"events_csv"`
		SeedClickHouse bool   `yaml:"seed_clickhouse" default:"true"`
	} `yaml:"data"`
	Sampler struct {
		Iterations     int     `yaml:"iterations" default:"20000" validate:"gt=0"`
		BurnIn         int     `yaml:"burn_in" default:"5000" validate:"gte=0,ltfield=Iterations"`
		Chains         int     `yaml:"chains" default:"4" validate:"gte=1,lte=64"`
		Seed           uint64  `yaml:"seed" default:"42"`
		StepMu         float64 `yaml:"step_mu" default:"0.001" validate:"gt=0"`
		StepSigma      float64 `yaml:"step_sigma" default:"0.001" validate:"gt=0"`
		StepTau        int     `yaml:"step_tau" default:"10" validate:"gte=1"`
		TauJumpProb    float64 `yaml:"tau_jump_prob" default:"0.1" validate:"gte=0,lt=1"`
		Adapt          bool    `yaml:"adapt" default:"true"`
		AcceptanceLow  float64 `yaml:"acceptance_low" default:"0.05" validate:"gte=0,lt=1"`
		AcceptanceHigh float64 `yaml:"acceptance_high" default:"0.7" validate:"gtfield=AcceptanceLow,lte=1"`
		CredibleLevel  float64 `yaml:"credible_level" default:"0.95" validate:"gt=0,lte=1"`
		RHatThreshold  float64 `yaml:"rhat_threshold" default:"1.1" validate:"gt=1"`
		MinESS         float64 `yaml:"min_ess" validate:"gte=0"`
	} `yaml:"sampler"`
	Priors struct {
		Model      string  `yaml:"model" default:"full" validate:"oneof=full mean_shift volatility_shift"`
		MuScale    float64 `yaml:"mu_scale" default:"0.1" validate:"gt=0"`
		SigmaScale float64 `yaml:"sigma_scale" default:"0.1" validate:"gt=0"`
	} `yaml:"priors"`
	Segmentation struct {
		Enabled         bool    `yaml:"enabled" default:"true"`
		MinSegment      int     `yaml:"min_segment" default:"100" validate:"gte=4"`
		MaxChangePoints int     `yaml:"max_change_points" default:"8" validate:"gte=1"`
		DiffuseFraction float64 `yaml:"diffuse_fraction" default:"0.25" validate:"gt=0,lte=1"`
		MinEffect       float64 `yaml:"min_effect" default:"0.1" validate:"gte=0"`
	} `yaml:"segmentation"`
	Association struct {
		ToleranceDays int `yaml:"tolerance_days" default:"30" validate:"gt=0"`
	} `yaml:"association"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"brentshift"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		BatchSize        int           `yaml:"batch_size" default:"5000" validate:"gt=0"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		ResultsTopic string   `yaml:"results_topic" default:"brent.changepoints"`
		PricesTopic  string   `yaml:"prices_topic" default:"brent.prices"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"brentshift-ingest"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"brent.prices.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"brentshift"`
	} `yaml:"redis"`
	Cache struct {
		TTL           time.Duration `yaml:"ttl" default:"24h"`
		MemoryEntries int           `yaml:"memory_entries" default:"256" validate:"gt=0"`
	} `yaml:"cache"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Name       string        `yaml:"name" default:"analyses"`
		Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
		MaxRetries int           `yaml:"max_retries" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		JobTimeout time.Duration `yaml:"job_timeout" default:"30m"`
	} `yaml:"queue"`
	RateLimit struct {
		RPS   float64 `yaml:"rps" default:"0.5" validate:"gt=0"`
		Burst int     `yaml:"burst" default:"3" validate:"gte=1"`
	} `yaml:"rate_limit"`
}

var validate = validator.New()

// Default returns a configuration populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, unmarshals YAML on top and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
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
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment lookup function.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	c.Server.Port = util.ParseIntDefault(getenv("SERVER_PORT"), c.Server.Port)
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("DATA_BACKEND"); v != "" {
		c.Data.Backend = v
	}
	if v := getenv("PRICES_CSV"); v != "" {
		c.Data.PricesCSV = v
	}
	if v := getenv("EVENTS_CSV"); v != "" {
		c.Data.EventsCSV = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	c.Sampler.Seed = util.ParseUint64Default(getenv("SAMPLER_SEED"), c.Sampler.Seed)
}

// Validate checks field constraints and cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Data.Backend == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required for the clickhouse backend")
	}
	if c.Data.Backend == "memory" && c.Data.PricesCSV == "" {
		return fmt.Errorf("data.prices_csv is required for the memory backend")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis to be enabled")
	}
	return nil
}
