package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const DateLayout = "2006-01-02"

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level            string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format           string        `yaml:"format" default:"json" validate:"oneof=json console"`
		Output           string        `yaml:"output" default:"stdout"`
		CollectTopic     string        `yaml:"collect_topic"`
		CollectInterval  time.Duration `yaml:"collect_interval" default:"30s"`
		CollectThreshold int           `yaml:"collect_threshold" default:"100"`
		IncludeWarnings  bool          `yaml:"include_warnings"`
	} `yaml:"logging"`
	Pipeline struct {
		Tickers                []string `yaml:"tickers"`
		Start                  string   `yaml:"start"`
		End                    string   `yaml:"end"`
		Interval               string   `yaml:"interval" default:"1D"`
		Indicators             []string `yaml:"indicators" default:"[\"macd\",\"boll_ub\",\"boll_lb\",\"rsi_30\",\"cci_30\",\"dx_30\",\"close_30_sma\",\"close_60_sma\"]"`
		Lookback               int      `yaml:"lookback" default:"252" validate:"gte=2"`
		UseVolatilityProxy     bool     `yaml:"use_volatility_proxy"`
		ProxyTicker            string   `yaml:"proxy_ticker" default:"VIXY" validate:"required"`
		Workers                int      `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
		OnInsufficientCoverage string   `yaml:"on_insufficient_coverage" default:"fail" validate:"oneof=fail zero"`
		Session                struct {
			Location string `yaml:"location" default:"Europe/London"`
			Open     string `yaml:"open" default:"08:00"`
			Steps    int    `yaml:"steps" default:"510" validate:"gte=1,lte=1440"`
		} `yaml:"session"`
		Schedule struct {
			Cron       string        `yaml:"cron"`
			Window     time.Duration `yaml:"window" default:"8760h" validate:"gte=0"`
			Publish    bool          `yaml:"publish" default:"true"`
			RunOnStart bool          `yaml:"run_on_start"`
			Timeout    time.Duration `yaml:"timeout" default:"30m"`
		} `yaml:"schedule"`
	} `yaml:"pipeline"`
	Calendar struct {
		Closures []string `yaml:"closures"`
	} `yaml:"calendar"`
	Provider struct {
		Type      string        `yaml:"type" default:"yahoo" validate:"oneof=yahoo clickhouse"`
		Cache     string        `yaml:"cache" default:"memory" validate:"oneof=none memory redis layered"`
		CacheTTL  time.Duration `yaml:"cache_ttl" default:"1h"`
		CacheSize int           `yaml:"cache_size" default:"1000"`
		Yahoo     struct {
			BaseURL       string            `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
			Timeout       time.Duration     `yaml:"timeout" default:"15s"`
			RatePerSecond float64           `yaml:"rate_per_second" default:"2"`
			Burst         int               `yaml:"burst" default:"2"`
			UserAgent     string            `yaml:"user_agent" default:"Mozilla/5.0"`
			IntradayDays  int               `yaml:"intraday_days" default:"7" validate:"gte=1"`
			Intervals     map[string]string `yaml:"intervals"`
		} `yaml:"yahoo"`
	} `yaml:"provider"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"market"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		MaxConnections   int           `yaml:"max_connections" default:"10"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		InitSchema       bool          `yaml:"init_schema"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix" default:"finprep"`
	} `yaml:"redis"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Consume    bool          `yaml:"consume" default:"true"`
		Workers    int           `yaml:"workers" default:"2" validate:"gte=1,lte=64"`
		RetryLimit int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		KeyPrefix  string        `yaml:"key_prefix" default:"finprep:queue"`
	} `yaml:"queue"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		JobsTopic    string   `yaml:"jobs_topic" default:"finprep.jobs"`
		ArraysTopic  string   `yaml:"arrays_topic" default:"finprep.arrays"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"10485760"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"finprep"`
			Workers    int           `yaml:"workers" default:"2"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"10s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"finprep.jobs.dlq"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
}

// Load reads a YAML file over the struct defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, then the YAML document, then validation.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
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
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("FINPREP_TICKERS"); v != "" {
		c.Pipeline.Tickers = splitList(v)
	}
	if v := getenv("FINPREP_INTERVAL"); v != "" {
		c.Pipeline.Interval = v
	}
	if v := getenv("PROVIDER"); v != "" {
		c.Provider.Type = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("QUEUE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("QUEUE_ENABLED: %w", err)
		}
		c.Queue.Enabled = b
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("SERVER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, _, err := c.SessionOpen(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Pipeline.Session.Location); err != nil {
		return fmt.Errorf("pipeline.session.location: %w", err)
	}
	start, end, err := c.PipelineRange()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("pipeline.end %s is before pipeline.start %s", c.Pipeline.End, c.Pipeline.Start)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Pipeline.Schedule.Cron != "" && len(c.Pipeline.Tickers) == 0 {
		return fmt.Errorf("pipeline.schedule.cron requires pipeline.tickers")
	}
	if c.Queue.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("queue requires kafka to publish job results")
	}
	if c.Logging.CollectTopic != "" && !c.Kafka.Enabled {
		return fmt.Errorf("logging.collect_topic requires kafka")
	}
	return nil
}

// SessionOpen parses pipeline.session.open as HH:MM.
func (c *Config) SessionOpen() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.Pipeline.Session.Open)
	if err != nil {
		return 0, 0, fmt.Errorf("pipeline.session.open must be HH:MM, got %q", c.Pipeline.Session.Open)
	}
	return t.Hour(), t.Minute(), nil
}

// PipelineRange parses the optional batch date range; empty values stay zero.
func (c *Config) PipelineRange() (start, end time.Time, err error) {
	if c.Pipeline.Start != "" {
		if start, err = time.Parse(DateLayout, c.Pipeline.Start); err != nil {
			return start, end, fmt.Errorf("pipeline.start: %w", err)
		}
	}
	if c.Pipeline.End != "" {
		if end, err = time.Parse(DateLayout, c.Pipeline.End); err != nil {
			return start, end, fmt.Errorf("pipeline.end: %w", err)
		}
	}
	return start, end, nil
}
