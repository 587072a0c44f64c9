package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"edujudge/internal/common/cache"
	"edujudge/internal/common/db"
	"edujudge/internal/common/mq"
	"edujudge/internal/common/storage"
	"edujudge/internal/judge/sandbox/engine"
	"edujudge/internal/judge/sandbox/profile"
	"edujudge/internal/judge/sandbox/runner"
	"edujudge/pkg/utils/logger"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 6 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultVerdictTopic    = "judge.verdict"
	defaultConsumerGroup   = "edujudge-recompute"
	defaultArchiveBucket   = "edujudge-submissions"
	defaultTrialPerMinute  = 10

	envPrefix = "EDUJUDGE_"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// DatabaseConfig selects the SQL dialect.
type DatabaseConfig struct {
	Driver      string        `yaml:"driver"` // mysql or postgres
	DSN         string        `yaml:"dsn"`
	AutoMigrate bool          `yaml:"autoMigrate"`
	Pool        db.PoolConfig `yaml:"pool"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	RequiredAcks  int           `yaml:"requiredAcks"`
	Compression   string        `yaml:"compression"`
	VerdictTopic  string        `yaml:"verdictTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Concurrency   int           `yaml:"concurrency"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
	DeadLetter    string        `yaml:"deadLetterTopic"`
}

// SandboxConfig holds runner and engine settings.
type SandboxConfig struct {
	WorkRoot         string        `yaml:"workRoot"`
	CompileTimeout   time.Duration `yaml:"compileTimeout"`
	MaxTimeLimit     time.Duration `yaml:"maxTimeLimit"`
	DefaultTimeLimit time.Duration `yaml:"defaultTimeLimit"`
	CompileMemoryMB  int64         `yaml:"compileMemoryMB"`
	OutputMB         int64         `yaml:"outputMB"`
	PIDs             int64         `yaml:"pids"`
	HelperPath       string        `yaml:"helperPath"`
	SeccompProfile   string        `yaml:"seccompProfile"`
	EnableSeccomp    bool          `yaml:"enableSeccomp"`
	EnforceMemory    bool          `yaml:"enforceMemory"`
	EnableCgroup     bool          `yaml:"enableCgroup"`
	CgroupRoot       string        `yaml:"cgroupRoot"`
	OutputMaxBytes   int64         `yaml:"outputMaxBytes"`
}

// JudgeConfig holds submission pipeline settings.
type JudgeConfig struct {
	WorkerPoolSize    int           `yaml:"workerPoolSize"`
	QueueWait         time.Duration `yaml:"queueWait"`
	MaxCodeBytes      int           `yaml:"maxCodeBytes"`
	GradeTimeout      time.Duration `yaml:"gradeTimeout"`
	SideEffectTimeout time.Duration `yaml:"sideEffectTimeout"`
	LockTTL           time.Duration `yaml:"lockTTL"`
	LockWait          time.Duration `yaml:"lockWait"`
	StatusTTL         time.Duration `yaml:"statusTTL"`
}

// TrialConfig holds trial run throttling.
type TrialConfig struct {
	MaxPerMinute int `yaml:"maxPerMinute"`
}

// CacheConfig holds read-through cache TTLs.
type CacheConfig struct {
	ProblemTTL time.Duration `yaml:"problemTTL"`
	EmptyTTL   time.Duration `yaml:"emptyTTL"`
}

// ArchiveConfig holds submission archive settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server    ServerConfig                 `yaml:"server"`
	Logger    logger.Config                `yaml:"logger"`
	Database  DatabaseConfig               `yaml:"database"`
	Redis     cache.RedisConfig            `yaml:"redis"`
	Kafka     KafkaConfig                  `yaml:"kafka"`
	MinIO     storage.MinIOConfig          `yaml:"minio"`
	Archive   ArchiveConfig                `yaml:"archive"`
	Sandbox   SandboxConfig                `yaml:"sandbox"`
	Languages map[string]profile.Toolchain `yaml:"languages"`
	Judge     JudgeConfig                  `yaml:"judge"`
	Trial     TrialConfig                  `yaml:"trial"`
	Cache     CacheConfig                  `yaml:"cache"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// loadAppConfig reads the YAML file, applies EDUJUDGE_* overrides and fills defaults.
// A .env file next to the working directory is loaded first when present.
func loadAppConfig(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg, os.LookupEnv)

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if cfg.Database.Driver != "mysql" && cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	applyRedisDefaults(&cfg.Redis)
	applyServerDefaults(&cfg.Server)
	applyKafkaDefaults(&cfg.Kafka)
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = defaultArchiveBucket
	}
	if cfg.Archive.Enabled {
		cfg.MinIO.Bucket = cfg.Archive.Bucket
		if err := cfg.MinIO.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Trial.MaxPerMinute == 0 {
		cfg.Trial.MaxPerMinute = defaultTrialPerMinute
	}
	return &cfg, nil
}

// applyEnvOverrides replaces secrets and addresses from the environment.
func applyEnvOverrides(cfg *AppConfig, lookup func(string) (string, bool)) {
	set := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("HTTP_ADDR", &cfg.Server.Addr)
	set("DB_DRIVER", &cfg.Database.Driver)
	set("DB_DSN", &cfg.Database.DSN)
	set("REDIS_ADDR", &cfg.Redis.Addr)
	set("REDIS_PASSWORD", &cfg.Redis.Password)
	set("MINIO_ENDPOINT", &cfg.MinIO.Endpoint)
	set("MINIO_ACCESS_KEY", &cfg.MinIO.AccessKey)
	set("MINIO_SECRET_KEY", &cfg.MinIO.SecretKey)
	set("LOG_LEVEL", &cfg.Logger.Level)

	var brokers string
	set("KAFKA_BROKERS", &brokers)
	if brokers != "" {
		cfg.Kafka.Brokers = cfg.Kafka.Brokers[:0]
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Addr == "" {
		cfg.Addr = defaultHTTPAddr
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
}

func applyKafkaDefaults(cfg *KafkaConfig) {
	if cfg.VerdictTopic == "" {
		cfg.VerdictTopic = defaultVerdictTopic
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = defaultConsumerGroup
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
		RequiredAcks: kafka.RequiredAcks(k.RequiredAcks),
		Compression:  parseCompression(k.Compression),
	}
}

func (k KafkaConfig) subscribeOptions() *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   k.ConsumerGroup,
		Concurrency:     k.Concurrency,
		MaxRetries:      k.MaxRetries,
		RetryDelay:      k.RetryDelay,
		DeadLetterTopic: k.DeadLetter,
	}
}

func parseCompression(raw string) kafka.Compression {
	switch strings.ToLower(raw) {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

func (s SandboxConfig) toEngineConfig() engine.Config {
	return engine.Config{
		HelperPath:     s.HelperPath,
		SeccompProfile: s.SeccompProfile,
		EnableSeccomp:  s.EnableSeccomp,
		EnforceMemory:  s.EnforceMemory,
		EnableCgroup:   s.EnableCgroup,
		CgroupRoot:     s.CgroupRoot,
		OutputMaxBytes: s.OutputMaxBytes,
	}
}

func (s SandboxConfig) toRunnerConfig() runner.Config {
	return runner.Config{
		WorkRoot:         s.WorkRoot,
		CompileTimeout:   s.CompileTimeout,
		MaxTimeLimit:     s.MaxTimeLimit,
		DefaultTimeLimit: s.DefaultTimeLimit,
		CompileMemoryMB:  s.CompileMemoryMB,
		OutputMB:         s.OutputMB,
		PIDs:             s.PIDs,
	}
}
