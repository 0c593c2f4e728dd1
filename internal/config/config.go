package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings such as "5s" or "500ms" into a
// time.Duration. Bare integers are taken as nanoseconds.
type Duration time.Duration

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Config captures the settings required to boot the anomaly engine.
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Sink    SinkConfig    `yaml:"sink"`
	NER     NERConfig     `yaml:"ner"`
	Model   ModelConfig   `yaml:"model"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// BrokerConfig locates the queue the engine consumes from.
type BrokerConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Queue      string        `yaml:"queue"`
	RetryDelay Duration `yaml:"retryDelay"`
}

// URL renders the broker address as an AMQP URI.
func (b BrokerConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(b.Username, b.Password),
		Host:   fmt.Sprintf("%s:%d", b.Host, b.Port),
		Path:   "/",
	}
	return u.String()
}

// SinkConfig locates the downstream API that receives analysis results.
type SinkConfig struct {
	BaseURL  string   `yaml:"baseURL"`
	LogsPath string   `yaml:"logsPath"`
	Timeout  Duration `yaml:"timeout"`
}

// NERConfig configures the optional named-entity recognition service. An
// empty endpoint disables NER enrichment.
type NERConfig struct {
	Endpoint string   `yaml:"endpoint"`
	APIKey   string   `yaml:"apiKey"`
	Timeout  Duration `yaml:"timeout"`
	CacheTTL Duration `yaml:"cacheTTL"`
}

// ModelConfig controls the anomaly model's sample window.
type ModelConfig struct {
	WindowCapacity int `yaml:"windowCapacity"`
	TrainThreshold int `yaml:"trainThreshold"`
}

// CacheConfig controls the Valkey-backed NER annotation cache. When disabled
// an in-process cache is used instead.
type CacheConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Addr         string   `yaml:"addr"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	DialTimeout  Duration `yaml:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
	TLS          bool     `yaml:"tls"`
}

// ServerConfig controls the operational HTTP listener (metrics + health).
type ServerConfig struct {
	MetricsAddress  string   `yaml:"metricsAddress"`
	GracefulTimeout Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ANOMALY_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Broker: BrokerConfig{
			Host:       "rabbitmq",
			Port:       5672,
			Username:   "guest",
			Password:   "guest",
			Queue:      "mongodb_logs",
			RetryDelay: Duration(5 * time.Second),
		},
		Sink: SinkConfig{
			BaseURL:  "http://localhost:3001",
			LogsPath: "/api/logs",
			Timeout:  Duration(5 * time.Second),
		},
		NER: NERConfig{
			Timeout:  Duration(5 * time.Second),
			CacheTTL: Duration(10 * time.Minute),
		},
		Model: ModelConfig{
			WindowCapacity: 500,
			TrainThreshold: 50,
		},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  Duration(2 * time.Second),
			ReadTimeout:  Duration(500 * time.Millisecond),
			WriteTimeout: Duration(500 * time.Millisecond),
		},
		Server: ServerConfig{
			MetricsAddress:  ":2112",
			GracefulTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RABBITMQ_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("RABBITMQ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("RABBITMQ_USER"); v != "" {
		cfg.Broker.Username = v
	}
	if v := os.Getenv("RABBITMQ_PASS"); v != "" {
		cfg.Broker.Password = v
	}
	if v := os.Getenv("RABBITMQ_QUEUE"); v != "" {
		cfg.Broker.Queue = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Sink.BaseURL = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_SINK_LOGS_PATH"); v != "" {
		cfg.Sink.LogsPath = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_NER_URL"); v != "" {
		cfg.NER.Endpoint = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_NER_API_KEY"); v != "" {
		cfg.NER.APIKey = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_WINDOW_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.WindowCapacity = n
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_TRAIN_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.TrainThreshold = n
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("ANOMALY_ENGINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
