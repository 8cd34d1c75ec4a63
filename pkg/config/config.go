package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string   `yaml:"environment" default:"development" validate:"required"`
	Symbols     []string `yaml:"symbols" validate:"required,min=1,dive,required"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		// Aggregated error logs are shipped to Kafka when set.
		CollectorTopic string `yaml:"collector_topic"`
	} `yaml:"log"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Exchange struct {
		BaseURL     string        `yaml:"base_url" validate:"required,url"`
		APIKey      string        `yaml:"api_key"`
		Timeout     time.Duration `yaml:"timeout" default:"5s"`
		TradesLimit int           `yaml:"trades_limit" default:"200" validate:"gt=0"`
		DepthLimit  int           `yaml:"depth_limit" default:"20" validate:"gt=0"`
		OHLCVLimit  int           `yaml:"ohlcv_limit" default:"120" validate:"gt=1"`
		OHLCVTF     string        `yaml:"ohlcv_timeframe" default:"1m" validate:"oneof=1m 5m 15m 1h"`
		// gateway serves OHLCV from the REST gateway, clickhouse from stored candles.
		OHLCVSource string `yaml:"ohlcv_source" default:"gateway" validate:"oneof=gateway clickhouse"`
	} `yaml:"exchange"`

	Executor ExecutorConfig `yaml:"executor"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Polling  PollingConfig  `yaml:"polling"`

	Resources  ResourcesConfig  `yaml:"resources"`
	Confluence ConfluenceConfig `yaml:"confluence"`
	Cache      CacheConfig      `yaml:"cache"`

	Stream struct {
		// websocket reads ticks from a push feed, kafka from the tick topic, none relies on polled trades.
		Source            string        `yaml:"source" default:"none" validate:"oneof=websocket kafka none"`
		WebSocketURL      string        `yaml:"websocket_url" validate:"required_if=Source websocket"`
		APIKey            string        `yaml:"api_key"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay" default:"3s"`
		PingInterval      time.Duration `yaml:"ping_interval" default:"20s"`
		MaxTicksPerSecond int           `yaml:"max_ticks_per_second" default:"50"`
		BufferSize        int           `yaml:"buffer_size" default:"2000"`
	} `yaml:"stream"`

	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		SignalTopic  string        `yaml:"signal_topic" default:"confluence.signals"`
		TickTopic    string        `yaml:"tick_topic" default:"market.ticks"`
		GroupID      string        `yaml:"group_id" default:"confluence"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
		Workers      int           `yaml:"workers" default:"2" validate:"gt=0"`
		RetryMax     int           `yaml:"retry_max" default:"3"`
		BackoffMin   time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax   time.Duration `yaml:"backoff_max" default:"2s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"confluence"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		CandleTable  string        `yaml:"candle_table" default:"candles_1m"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecution time.Duration `yaml:"max_execution_time" default:"10s"`
	} `yaml:"clickhouse"`
}

type ExecutorConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" default:"5" validate:"gt=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" default:"30s" validate:"gt=0"`
	MaxRetries       int           `yaml:"max_retries" default:"3" validate:"gte=0"`
	BaseDelay        time.Duration `yaml:"base_delay" default:"500ms" validate:"gt=0"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout" default:"5s" validate:"gt=0"`
}

type ThrottleConfig struct {
	MaxRequests int           `yaml:"max_requests" default:"10" validate:"gt=0"`
	Window      time.Duration `yaml:"window" default:"1s" validate:"gt=0"`
}

type PollingConfig struct {
	MinInterval     time.Duration `yaml:"min_interval" default:"1s" validate:"gt=0"`
	DefaultInterval time.Duration `yaml:"default_interval" default:"5s" validate:"gtefield=MinInterval"`
	MaxInterval     time.Duration `yaml:"max_interval" default:"30s" validate:"gtefield=DefaultInterval"`

	HighVolumeThreshold     float64 `yaml:"high_volume_threshold" default:"2.0" validate:"gtefield=LowVolumeThreshold"`
	LowVolumeThreshold      float64 `yaml:"low_volume_threshold" default:"0.5" validate:"gte=0"`
	HighVolatilityThreshold float64 `yaml:"high_volatility_threshold" default:"2.0" validate:"gtefield=LowVolatilityThreshold"`
	LowVolatilityThreshold  float64 `yaml:"low_volatility_threshold" default:"0.5" validate:"gte=0"`

	Multipliers map[string]float64 `yaml:"multipliers" default:"{\"ticker\":1.0,\"orderbook\":1.0,\"trades\":1.0,\"ohlcv\":2.0}"`
	HistorySize int                `yaml:"history_size" default:"100" validate:"gt=0"`
	// Recent activity window compared against the baseline lookback.
	RecentWindow   time.Duration `yaml:"recent_window" default:"1m" validate:"gt=0"`
	BaselineWindow time.Duration `yaml:"baseline_window" default:"15m" validate:"gtfield=RecentWindow"`
}

type ResourcesConfig struct {
	HeadroomPercent   float64       `yaml:"headroom_percent" default:"20" validate:"gte=0,lt=100"`
	MaxOps            int           `yaml:"max_ops" default:"16" validate:"gt=0"`
	ReleaseTimeout    time.Duration `yaml:"release_timeout" default:"60s" validate:"gt=0"`
	StaleAfter        time.Duration `yaml:"stale_after" default:"10m" validate:"gt=0"`
	SweepInterval     time.Duration `yaml:"sweep_interval" default:"1m" validate:"gt=0"`
	RecomputeInterval time.Duration `yaml:"recompute_interval" default:"30s" validate:"gt=0"`
}

type ConfluenceConfig struct {
	Weights              map[string]float64 `yaml:"weights" default:"{\"technical\":0.30,\"volume\":0.20,\"orderflow\":0.20,\"orderbook\":0.15,\"price_structure\":0.10,\"sentiment\":0.05}"`
	ConfThreshold        float64            `yaml:"conf_threshold" default:"0.50" validate:"gte=0,lt=1"`
	ConsThreshold        float64            `yaml:"cons_threshold" default:"0.75" validate:"gte=0,lte=1"`
	BuyThreshold         float64            `yaml:"buy_threshold" default:"60" validate:"gt=50,lte=100"`
	SellThreshold        float64            `yaml:"sell_threshold" default:"40" validate:"gte=0,lt=50"`
	ConsensusSensitivity float64            `yaml:"consensus_sensitivity" default:"2" validate:"gt=0"`
	MaxAmplification     float64            `yaml:"max_amplification" default:"0.15" validate:"gte=0,lte=1"`
	Dampening            float64            `yaml:"dampening" default:"0.05" validate:"gte=0,lt=1"`
	Publish              bool               `yaml:"publish"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
	Prefix   string `yaml:"prefix" default:"confluence"`
}

type CacheConfig struct {
	Primary  RedisConfig `yaml:"primary"`
	Fallback struct {
		Type       string      `yaml:"type" default:"memory" validate:"oneof=memory redis"`
		Redis      RedisConfig `yaml:"redis"`
		MaxEntries int         `yaml:"max_entries" default:"10000" validate:"gt=0"`
	} `yaml:"fallback"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout" default:"250ms" validate:"gt=0"`
	Retries        int           `yaml:"retries" default:"2" validate:"gte=0"`
	TTL            struct {
		Confluence time.Duration `yaml:"confluence" default:"60s" validate:"gt=0"`
		Breakdown  time.Duration `yaml:"breakdown" default:"60s" validate:"gt=0"`
		Fused      time.Duration `yaml:"fused" default:"15s" validate:"gt=0"`
	} `yaml:"ttl"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, fills defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML into a validated Config.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults only fill zero values, so YAML always wins
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
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
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Primary.Addr = v
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		c.Exchange.BaseURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks struct tags and the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	var sum float64
	for name, w := range c.Confluence.Weights {
		if w < 0 {
			return fmt.Errorf("confluence.weights.%s must be >= 0", name)
		}
		sum += w
	}
	if sum <= 0 {
		return errors.New("confluence.weights must contain a positive weight")
	}
	for kind, m := range c.Polling.Multipliers {
		if m <= 0 {
			return fmt.Errorf("polling.multipliers.%s must be > 0", kind)
		}
	}
	if c.Stream.Source == "kafka" && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers required when stream.source is kafka")
	}
	if c.Confluence.Publish && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers required when confluence.publish is set")
	}
	if c.Exchange.OHLCVSource == "clickhouse" && c.ClickHouse.Host == "" {
		return errors.New("clickhouse.host required when exchange.ohlcv_source is clickhouse")
	}
	return nil
}
