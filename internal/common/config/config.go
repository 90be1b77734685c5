// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Stream        StreamConfig       `mapstructure:"stream"`
	Pipeline      PipelineConfig     `mapstructure:"pipeline"`
	Broadcast     BroadcastConfig    `mapstructure:"broadcast"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string  `mapstructure:"address"`
	ShutdownTimeout int     `mapstructure:"shutdown_timeout"` // milliseconds
	RateLimit       float64 `mapstructure:"rate_limit"`       // requests per second per client IP
	RateBurst       int     `mapstructure:"rate_burst"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // "postgres" or "memory"
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StreamConfig describes the booking event log (a Redis stream consumed through a group).
type StreamConfig struct {
	Name              string `mapstructure:"name"`
	Group             string `mapstructure:"group"`
	Consumer          string `mapstructure:"consumer"`
	PayloadField      string `mapstructure:"payload_field"`
	BatchSize         int    `mapstructure:"batch_size"`
	BlockMs           int    `mapstructure:"block_ms"`
	RedeliverInterval int    `mapstructure:"redeliver_interval"` // milliseconds
	MaxDeliveries     int    `mapstructure:"max_deliveries"`
	DeadLetterStream  string `mapstructure:"dead_letter_stream"`
}

// PipelineConfig controls per-record processing.
type PipelineConfig struct {
	Concurrency           int    `mapstructure:"concurrency"`
	DefaultChannel        string `mapstructure:"default_channel"`
	PersistTimeout        int    `mapstructure:"persist_timeout"` // milliseconds
	PersistMaxRetries     int    `mapstructure:"persist_max_retries"`
	PersistRetryBaseDelay int    `mapstructure:"persist_retry_base_delay"` // milliseconds
	PersistRetryMaxDelay  int    `mapstructure:"persist_retry_max_delay"`  // milliseconds
	AckMaxRetries         int    `mapstructure:"ack_max_retries"`
	DispatchTimeout       int    `mapstructure:"dispatch_timeout"` // milliseconds
}

// BroadcastConfig controls the in-process live fan-out.
type BroadcastConfig struct {
	BufferSize        int    `mapstructure:"buffer_size"`
	OverflowPolicy    string `mapstructure:"overflow_policy"`     // "drop_oldest" or "disconnect"
	KeepAliveInterval int    `mapstructure:"keep_alive_interval"` // milliseconds
}

const (
	ProviderMock = "mock"
	ProviderSES  = "ses"
	ProviderSNS  = "sns"
)

// ChannelConfig holds settings for one delivery channel.
type ChannelConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"` // "mock", "ses" (email) or "sns" (push)
	Timeout  int    `mapstructure:"timeout"`  // milliseconds
	Latency  int    `mapstructure:"latency"`  // milliseconds, mock provider only
}

// NotificationConfig holds settings for the delivery channels.
type NotificationConfig struct {
	Email struct {
		ChannelConfig `mapstructure:",squash"`
		FromEmail     string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	Push struct {
		ChannelConfig `mapstructure:",squash"`
	} `mapstructure:"push"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
