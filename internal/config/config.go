package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"FORMAT"`     // json|console
	Sampling bool   `yaml:"sampling" env:"SAMPLING"` // enable sampling in prod
}

type AdminConfig struct {
	Port int `yaml:"port" env:"PORT"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"URL"`
	MaxConns        int32         `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns        int32         `yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

type RedisConfig struct {
	URL      string `yaml:"url" env:"URL"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
}

type AMQPConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type StorageConfig struct {
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	Region    string `yaml:"region" env:"REGION"`
	UseSSL    bool   `yaml:"use_ssl" env:"USE_SSL"`
}

type WorkerConfig struct {
	Consumers      int           `yaml:"consumers" env:"CONSUMERS"`
	ScratchDir     string        `yaml:"scratch_dir" env:"SCRATCH_DIR"`
	LockTTL        time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
	DedupTTL       time.Duration `yaml:"dedup_ttl" env:"DEDUP_TTL"`
	MaxAttempts    int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay      time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay       time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	RelayInterval  time.Duration `yaml:"relay_interval" env:"RELAY_INTERVAL"`
	RelayBatch     int           `yaml:"relay_batch" env:"RELAY_BATCH"`
	Retention      time.Duration `yaml:"retention" env:"RETENTION"`
	ExpiryInterval time.Duration `yaml:"expiry_interval" env:"EXPIRY_INTERVAL"`
	ExpiryBatch    int           `yaml:"expiry_batch" env:"EXPIRY_BATCH"`
}

type CodecConfig struct {
	FFmpegPath string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
	FPS        int           `yaml:"fps" env:"FPS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type Config struct {
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Admin    AdminConfig    `yaml:"admin" envPrefix:"ADMIN_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	AMQP     AMQPConfig     `yaml:"amqp" envPrefix:"AMQP_"`
	Storage  StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Worker   WorkerConfig   `yaml:"worker" envPrefix:"WORKER_"`
	Codec    CodecConfig    `yaml:"codec" envPrefix:"CODEC_"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Load reads the yaml file at path (skipped when empty), then applies
// environment overrides. A .env file in the working directory is loaded
// first if present; variables already set in the process win.
func Load(path string, dev bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 9090
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "videos"
	}
	if cfg.Worker.Consumers <= 0 {
		cfg.Worker.Consumers = 1
	}
	if cfg.Worker.ScratchDir == "" {
		cfg.Worker.ScratchDir = os.TempDir()
	}
	cfg.Worker.LockTTL = orDefault(cfg.Worker.LockTTL, 30*time.Minute)
	cfg.Worker.DedupTTL = orDefault(cfg.Worker.DedupTTL, time.Hour)
	if cfg.Worker.MaxAttempts <= 0 {
		cfg.Worker.MaxAttempts = 3
	}
	cfg.Worker.BaseDelay = orDefault(cfg.Worker.BaseDelay, 30*time.Second)
	cfg.Worker.MaxDelay = orDefault(cfg.Worker.MaxDelay, 300*time.Second)
	cfg.Worker.RelayInterval = orDefault(cfg.Worker.RelayInterval, time.Second)
	if cfg.Worker.RelayBatch <= 0 {
		cfg.Worker.RelayBatch = 100
	}
	cfg.Worker.Retention = orDefault(cfg.Worker.Retention, 7*24*time.Hour)
	cfg.Worker.ExpiryInterval = orDefault(cfg.Worker.ExpiryInterval, time.Hour)
	if cfg.Worker.ExpiryBatch <= 0 {
		cfg.Worker.ExpiryBatch = 100
	}
	if cfg.Codec.FFmpegPath == "" {
		cfg.Codec.FFmpegPath = "ffmpeg"
	}
	if cfg.Codec.FPS <= 0 {
		cfg.Codec.FPS = 1
	}
	cfg.Codec.Timeout = orDefault(cfg.Codec.Timeout, 10*time.Minute)
}

// Validate checks the settings the worker cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.AMQP.URL == "" {
		return errors.New("amqp.url is required")
	}
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint is required")
	}
	if c.Worker.MaxDelay < c.Worker.BaseDelay {
		return fmt.Errorf("worker.max_delay (%s) must not be below worker.base_delay (%s)",
			c.Worker.MaxDelay, c.Worker.BaseDelay)
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
