package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	POP3      POP3Config      `mapstructure:"pop3"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"`
}

// POP3Config describes the shared mailbox server every account is polled on.
type POP3Config struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	TLS                 bool   `mapstructure:"tls"`
	MaxFetch            int    `mapstructure:"max_fetch"`
	ConnectionTimeoutMs int    `mapstructure:"connection_timeout_ms"`
	ReadTimeoutMs       int    `mapstructure:"read_timeout_ms"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// WorkerConfig sizes the polling worker pool.
type WorkerConfig struct {
	CoreSize      int           `mapstructure:"core_size"`
	MaxSize       int           `mapstructure:"max_size"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	NamePrefix    string        `mapstructure:"name_prefix"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
	KeepAlive     time.Duration `mapstructure:"keep_alive"`
}

// CryptoConfig holds the base64 encoded secretbox key used for stored POP3 passwords.
type CryptoConfig struct {
	Key string `mapstructure:"key"`
}

// NotifierConfig selects and configures the notification transport
type NotifierConfig struct {
	Type              string `mapstructure:"type"`
	SlackToken        string `mapstructure:"slack_token"`
	SlackAPIURL       string `mapstructure:"slack_api_url"`
	GmailClientID     string `mapstructure:"gmail_client_id"`
	GmailClientSecret string `mapstructure:"gmail_client_secret"`
	GmailRefreshToken string `mapstructure:"gmail_refresh_token"`
	GmailSender       string `mapstructure:"gmail_sender"`
}

// RedisConfig holds the enrichment queue connection
type RedisConfig struct {
	URL             string `mapstructure:"url"`
	EnrichmentQueue string `mapstructure:"enrichment_queue"`
}

// LogConfig holds logrus settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	NotifierSlack = "slack"
	NotifierGmail = "gmail"
	NotifierNone  = "none"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("database.driver", DriverMySQL)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.path", "mailbox-poller.db")

	viper.SetDefault("pop3.host", "pop.whoisworks.com")
	viper.SetDefault("pop3.port", 995)
	viper.SetDefault("pop3.tls", true)
	viper.SetDefault("pop3.max_fetch", 10)
	viper.SetDefault("pop3.connection_timeout_ms", 10000)
	viper.SetDefault("pop3.read_timeout_ms", 10000)

	viper.SetDefault("scheduler.poll_interval_ms", 30000)

	viper.SetDefault("worker.core_size", 10)
	viper.SetDefault("worker.max_size", 20)
	viper.SetDefault("worker.queue_capacity", 50)
	viper.SetDefault("worker.name_prefix", "mail-poll-")
	viper.SetDefault("worker.drain_timeout", "60s")
	viper.SetDefault("worker.keep_alive", "60s")

	viper.SetDefault("notifier.type", NotifierSlack)
	viper.SetDefault("notifier.slack_api_url", "https://slack.com/api")

	viper.SetDefault("redis.enrichment_queue", "mail-enrichment")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	viper.BindEnv("database.driver", "DB_DRIVER")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
	viper.BindEnv("database.path", "DB_PATH")

	// POP3
	viper.BindEnv("pop3.host", "POP3_HOST")
	viper.BindEnv("pop3.port", "POP3_PORT")
	viper.BindEnv("pop3.tls", "POP3_TLS")
	viper.BindEnv("pop3.max_fetch", "POP3_MAX_FETCH")
	viper.BindEnv("pop3.connection_timeout_ms", "POP3_CONNECTION_TIMEOUT_MS")
	viper.BindEnv("pop3.read_timeout_ms", "POP3_READ_TIMEOUT_MS")

	// Scheduler and workers
	viper.BindEnv("scheduler.poll_interval_ms", "SCHEDULER_POLL_INTERVAL_MS")
	viper.BindEnv("worker.core_size", "WORKER_CORE_SIZE")
	viper.BindEnv("worker.max_size", "WORKER_MAX_SIZE")
	viper.BindEnv("worker.queue_capacity", "WORKER_QUEUE_CAPACITY")
	viper.BindEnv("worker.name_prefix", "WORKER_NAME_PREFIX")
	viper.BindEnv("worker.drain_timeout", "WORKER_DRAIN_TIMEOUT")
	viper.BindEnv("worker.keep_alive", "WORKER_KEEP_ALIVE")

	viper.BindEnv("crypto.key", "CREDENTIAL_KEY")

	// Notifier
	viper.BindEnv("notifier.type", "NOTIFIER_TYPE")
	viper.BindEnv("notifier.slack_token", "SLACK_BOT_TOKEN")
	viper.BindEnv("notifier.slack_api_url", "SLACK_API_URL")
	viper.BindEnv("notifier.gmail_client_id", "GMAIL_CLIENT_ID")
	viper.BindEnv("notifier.gmail_client_secret", "GMAIL_CLIENT_SECRET")
	viper.BindEnv("notifier.gmail_refresh_token", "GMAIL_REFRESH_TOKEN")
	viper.BindEnv("notifier.gmail_sender", "GMAIL_SENDER")

	// Redis
	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("redis.enrichment_queue", "REDIS_ENRICHMENT_QUEUE")

	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// PollInterval returns the scheduler tick interval.
func (c *SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *POP3Config) ConnectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeoutMs) * time.Millisecond
}

func (c *POP3Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case DriverMySQL:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.POP3.Host == "" || c.POP3.Port <= 0 {
		return fmt.Errorf("pop3 host and port are required")
	}
	if c.POP3.MaxFetch <= 0 {
		return fmt.Errorf("pop3 max_fetch must be greater than 0")
	}

	if c.Scheduler.PollIntervalMs <= 0 {
		return fmt.Errorf("scheduler poll interval must be greater than 0")
	}

	if c.Worker.CoreSize < 1 {
		return fmt.Errorf("worker core size must be at least 1")
	}
	if c.Worker.MaxSize < c.Worker.CoreSize {
		return fmt.Errorf("worker max size (%d) must not be smaller than core size (%d)", c.Worker.MaxSize, c.Worker.CoreSize)
	}
	if c.Worker.QueueCapacity < 0 {
		return fmt.Errorf("worker queue capacity must not be negative")
	}

	if c.Crypto.Key == "" {
		return fmt.Errorf("credential key is required")
	}

	switch c.Notifier.Type {
	case NotifierSlack:
		if c.Notifier.SlackToken == "" {
			return fmt.Errorf("slack token is required when notifier type is slack")
		}
	case NotifierGmail:
		if c.Notifier.GmailClientID == "" || c.Notifier.GmailClientSecret == "" || c.Notifier.GmailRefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when notifier type is gmail")
		}
	case NotifierNone:
	default:
		return fmt.Errorf("unsupported notifier type %q", c.Notifier.Type)
	}

	return nil
}
