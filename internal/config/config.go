package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Fanout   FanoutConfig   `mapstructure:"fanout"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	OpsToken     string        `mapstructure:"ops_token"` // guards /ops; empty disables it
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  Topics   `mapstructure:"topics"`
	GroupID string   `mapstructure:"group_id"`
}

type Topics struct {
	UserEvents string `mapstructure:"user_events"`
	FeedEvents string `mapstructure:"feed_events"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_time"`
}

// FeedConfig controls pagination and the post cache used when resolving feed pages.
type FeedConfig struct {
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	PostCacheTTL    time.Duration `mapstructure:"post_cache_ttl"`
	SearchLimit     int           `mapstructure:"search_limit"`
}

// FanoutConfig tunes the fan-out engine and its retry sweeper.
type FanoutConfig struct {
	Inline         bool          `mapstructure:"inline"`
	Concurrency    int           `mapstructure:"concurrency"`
	WriteAttempts  int           `mapstructure:"write_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	MaxJobAttempts int           `mapstructure:"max_job_attempts"`
	RetryInterval  time.Duration `mapstructure:"retry_interval"`
	RetryBatchSize int           `mapstructure:"retry_batch_size"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
}

type GraphConfig struct {
	Driver string `mapstructure:"driver"` // postgres | neo4j
}

type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// a missing file is fine, defaults and FEED_* env vars cover it
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.ops_token", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "feeduser")
	v.SetDefault("database.password", "feedpass")
	v.SetDefault("database.dbname", "photofeed")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.user_events", "user-events")
	v.SetDefault("kafka.topics.feed_events", "feed-events")
	v.SetDefault("kafka.group_id", "fanout-worker-group")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expire_time", 24*time.Hour)

	v.SetDefault("feed.default_page_size", 12)
	v.SetDefault("feed.max_page_size", 100)
	v.SetDefault("feed.post_cache_ttl", time.Hour)
	v.SetDefault("feed.search_limit", 20)

	v.SetDefault("fanout.inline", true)
	v.SetDefault("fanout.concurrency", 16)
	v.SetDefault("fanout.write_attempts", 3)
	v.SetDefault("fanout.initial_backoff", 50*time.Millisecond)
	v.SetDefault("fanout.max_backoff", 5*time.Minute)
	v.SetDefault("fanout.max_job_attempts", 10)
	v.SetDefault("fanout.retry_interval", 30*time.Second)
	v.SetDefault("fanout.retry_batch_size", 100)
	v.SetDefault("fanout.stale_after", 5*time.Minute)

	v.SetDefault("graph.driver", "postgres")
	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.user", "")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("log.level", "info")
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret must be set")
	}
	switch c.Graph.Driver {
	case "postgres":
	case "neo4j":
		if c.Neo4j.URI == "" {
			return errors.New("neo4j.uri must be set when graph.driver is neo4j")
		}
	default:
		return fmt.Errorf("unknown graph driver %q", c.Graph.Driver)
	}
	if c.Fanout.Concurrency < 1 {
		return errors.New("fanout.concurrency must be positive")
	}
	if c.Fanout.RetryInterval <= 0 {
		return errors.New("fanout.retry_interval must be positive")
	}
	if c.Feed.DefaultPageSize < 1 || c.Feed.DefaultPageSize > c.Feed.MaxPageSize {
		return errors.New("feed.default_page_size must be between 1 and feed.max_page_size")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
