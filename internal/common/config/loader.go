// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "notification-pipeline/internal/common/errors"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	OverflowDropOldest = "drop_oldest"
	OverflowDisconnect = "disconnect"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top
// and applies environment overrides (database.redis.address -> DATABASE_REDIS_ADDRESS).
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// booleans cannot be defaulted from their zero value
	v.SetDefault("notifications.email.enabled", true)
	v.SetDefault("notifications.push.enabled", true)
	v.SetDefault("database.postgres.auto_migrate", true)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Database.Redis.Address = val
		}
	}
	if cfg.Notifications.AWS.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Notifications.AWS.Region = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "notification-service"
	}

	// Server defaults
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 20
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 40
	}

	// Database defaults
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Stream defaults
	if cfg.Stream.Name == "" {
		cfg.Stream.Name = "booking-requests"
	}
	if cfg.Stream.Group == "" {
		cfg.Stream.Group = "notification-service"
	}
	if cfg.Stream.Consumer == "" {
		cfg.Stream.Consumer = defaultConsumerName()
	}
	if cfg.Stream.PayloadField == "" {
		cfg.Stream.PayloadField = "payload"
	}
	if cfg.Stream.BatchSize == 0 {
		cfg.Stream.BatchSize = 16
	}
	if cfg.Stream.BlockMs == 0 {
		cfg.Stream.BlockMs = 2000
	}
	if cfg.Stream.RedeliverInterval == 0 {
		cfg.Stream.RedeliverInterval = 30000
	}
	if cfg.Stream.MaxDeliveries == 0 {
		cfg.Stream.MaxDeliveries = 10
	}
	if cfg.Stream.DeadLetterStream == "" {
		cfg.Stream.DeadLetterStream = cfg.Stream.Name + ":dead"
	}

	// Pipeline defaults
	if cfg.Pipeline.Concurrency == 0 {
		cfg.Pipeline.Concurrency = 8
	}
	if cfg.Pipeline.DefaultChannel == "" {
		cfg.Pipeline.DefaultChannel = "IN_APP"
	}
	if cfg.Pipeline.PersistTimeout == 0 {
		cfg.Pipeline.PersistTimeout = 5000
	}
	if cfg.Pipeline.PersistMaxRetries == 0 {
		cfg.Pipeline.PersistMaxRetries = apperrors.GetRetryCount(apperrors.ErrCodePersistenceFailed)
	}
	if cfg.Pipeline.PersistRetryBaseDelay == 0 {
		cfg.Pipeline.PersistRetryBaseDelay = 200
	}
	if cfg.Pipeline.PersistRetryMaxDelay == 0 {
		cfg.Pipeline.PersistRetryMaxDelay = 5000
	}
	if cfg.Pipeline.AckMaxRetries == 0 {
		cfg.Pipeline.AckMaxRetries = apperrors.GetRetryCount(apperrors.ErrCodeCommitFailed)
	}
	if cfg.Pipeline.DispatchTimeout == 0 {
		cfg.Pipeline.DispatchTimeout = 10000
	}

	// Broadcast defaults
	if cfg.Broadcast.BufferSize == 0 {
		cfg.Broadcast.BufferSize = 256
	}
	if cfg.Broadcast.OverflowPolicy == "" {
		cfg.Broadcast.OverflowPolicy = OverflowDropOldest
	}
	if cfg.Broadcast.KeepAliveInterval == 0 {
		cfg.Broadcast.KeepAliveInterval = 30000
	}

	// Channel defaults
	for _, ch := range []*ChannelConfig{&cfg.Notifications.Email.ChannelConfig, &cfg.Notifications.Push.ChannelConfig} {
		if ch.Provider == "" {
			ch.Provider = ProviderMock
		}
		if ch.Timeout == 0 {
			ch.Timeout = 5000
		}
		if ch.Latency == 0 {
			ch.Latency = 100
		}
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func defaultConsumerName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "consumer-" + uuid.NewString()
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.Database.Driver)
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Stream.BatchSize < 0 || cfg.Pipeline.Concurrency < 0 {
		return fmt.Errorf("stream.batch_size and pipeline.concurrency must be positive")
	}

	switch cfg.Pipeline.DefaultChannel {
	case "IN_APP", "EMAIL", "PUSH", "SMS":
	default:
		return fmt.Errorf("pipeline.default_channel %q is not a known channel", cfg.Pipeline.DefaultChannel)
	}

	switch cfg.Broadcast.OverflowPolicy {
	case OverflowDropOldest, OverflowDisconnect:
	default:
		return fmt.Errorf("broadcast.overflow_policy must be %q or %q", OverflowDropOldest, OverflowDisconnect)
	}

	if p := cfg.Notifications.Email.Provider; p != ProviderMock && p != ProviderSES {
		return fmt.Errorf("notifications.email.provider must be %q or %q", ProviderMock, ProviderSES)
	}
	if p := cfg.Notifications.Push.Provider; p != ProviderMock && p != ProviderSNS {
		return fmt.Errorf("notifications.push.provider must be %q or %q", ProviderMock, ProviderSNS)
	}

	usesAWS := (cfg.Notifications.Email.Enabled && cfg.Notifications.Email.Provider == ProviderSES) ||
		(cfg.Notifications.Push.Enabled && cfg.Notifications.Push.Provider == ProviderSNS)
	if usesAWS && cfg.Notifications.AWS.Region == "" {
		return fmt.Errorf("notifications.aws.region is required for ses/sns providers")
	}
	if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.Provider == ProviderSES && cfg.Notifications.Email.FromEmail == "" {
		return fmt.Errorf("notifications.email.from_email is required for the ses provider")
	}
	if usesAWS && cfg.Database.Driver != DriverPostgres {
		return fmt.Errorf("ses/sns providers resolve recipient contacts from postgres")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
