package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration from a .env file and the
// environment. Environment variables win over the file.
type Config struct {
	HTTPPort      string `mapstructure:"PORT"`
	DeploymentEnv string `mapstructure:"RAILWAY_ENVIRONMENT"`

	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	DBPoolSize  int           `mapstructure:"DB_POOL_SIZE"`
	DBTimeout   time.Duration `mapstructure:"DB_TIMEOUT"`
	DBTable     string        `mapstructure:"DB_TABLE"`

	TasksFile   string        `mapstructure:"TASKS_FILE"`
	LockTimeout time.Duration `mapstructure:"LOCK_TIMEOUT"`

	RedisURL      string        `mapstructure:"REDIS_URL"`
	RedisPoolSize int           `mapstructure:"REDIS_POOL_SIZE"`
	CacheTTL      time.Duration `mapstructure:"CACHE_TTL"`

	KafkaBrokers       []string `mapstructure:"KAFKA_BROKERS"`
	KafkaEventsTopic   string   `mapstructure:"KAFKA_EVENTS_TOPIC"`
	KafkaCommandsTopic string   `mapstructure:"KAFKA_COMMANDS_TOPIC"`
	KafkaGroupID       string   `mapstructure:"KAFKA_GROUP_ID"`
	KafkaPartitions    int      `mapstructure:"KAFKA_PARTITIONS"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	portExplicit bool
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"RAILWAY_ENVIRONMENT":  "",
	"DATABASE_URL":         "",
	"DB_POOL_SIZE":         10,
	"DB_TIMEOUT":           "10s",
	"DB_TABLE":             "tasks",
	"TASKS_FILE":           "tasks.json",
	"LOCK_TIMEOUT":         "5s",
	"REDIS_URL":            "",
	"REDIS_POOL_SIZE":      10,
	"CACHE_TTL":            "60s",
	"KAFKA_BROKERS":        "",
	"KAFKA_EVENTS_TOPIC":   "task-events",
	"KAFKA_COMMANDS_TOPIC": "task-commands",
	"KAFKA_GROUP_ID":       "taskd-workers",
	"KAFKA_PARTITIONS":     3,
	"LOG_LEVEL":            "info",
	"LOG_FILE":             "",
}

var (
	cfg     *Config
	cfgErr  error
	cfgOnce sync.Once
)

// Get returns the application config, loading ./.env and the environment once.
func Get() (*Config, error) {
	cfgOnce.Do(func() {
		cfg, cfgErr = Load(".")
	})
	return cfg, cfgErr
}

// Load reads dir/.env if present, then the environment.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; settings then come from the environment.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.KafkaBrokers = splitBrokers(c.KafkaBrokers)
	_, envPort := os.LookupEnv("PORT")
	c.portExplicit = envPort || v.InConfig("port")
	return &c, nil
}

// IsDeployment reports whether a hosting platform marker is present: an
// explicit PORT or RAILWAY_ENVIRONMENT.
func (c *Config) IsDeployment() bool {
	return c.portExplicit || c.DeploymentEnv != ""
}

// CacheEnabled reports whether a Redis URL is configured.
func (c *Config) CacheEnabled() bool { return c.RedisURL != "" }

// KafkaEnabled reports whether any broker is configured.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func splitBrokers(in []string) []string {
	var out []string
	for _, item := range in {
		for _, b := range strings.Split(item, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
