package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Database: DatabaseConfig{
			Driver: DriverMySQL,
			Host:   "localhost",
			User:   "test",
			DBName: "test",
		},
		POP3: POP3Config{
			Host:     "pop.example.com",
			Port:     995,
			MaxFetch: 10,
		},
		Scheduler: SchedulerConfig{PollIntervalMs: 30000},
		Worker: WorkerConfig{
			CoreSize:      10,
			MaxSize:       20,
			QueueCapacity: 50,
		},
		Crypto:   CryptoConfig{Key: "key"},
		Notifier: NotifierConfig{Type: NotifierSlack, SlackToken: "xoxb-test"},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }},
		{"mysql without host", func(c *Config) { c.Database.Host = "" }},
		{"sqlite without path", func(c *Config) { c.Database = DatabaseConfig{Driver: DriverSQLite} }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }},
		{"zero max fetch", func(c *Config) { c.POP3.MaxFetch = 0 }},
		{"zero poll interval", func(c *Config) { c.Scheduler.PollIntervalMs = 0 }},
		{"no core workers", func(c *Config) { c.Worker.CoreSize = 0 }},
		{"max below core", func(c *Config) { c.Worker.MaxSize = 5 }},
		{"negative queue", func(c *Config) { c.Worker.QueueCapacity = -1 }},
		{"missing credential key", func(c *Config) { c.Crypto.Key = "" }},
		{"slack without token", func(c *Config) { c.Notifier.SlackToken = "" }},
		{"gmail without oauth", func(c *Config) { c.Notifier.Type = NotifierGmail }},
		{"unknown notifier", func(c *Config) { c.Notifier.Type = "pager" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigValidationNoneNotifier(t *testing.T) {
	cfg := validConfig()
	cfg.Notifier = NotifierConfig{Type: NotifierNone}
	cfg.Database = DatabaseConfig{Driver: DriverSQLite, Path: "test.db"}
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	config := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	assert.Equal(t, expected, config.GetDSN())
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("POP3_MAX_FETCH", "25")
	t.Setenv("WORKER_DRAIN_TIMEOUT", "5s")
	t.Setenv("CREDENTIAL_KEY", "c2VjcmV0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "pop.whoisworks.com", cfg.POP3.Host)
	assert.Equal(t, 995, cfg.POP3.Port)
	assert.True(t, cfg.POP3.TLS)
	assert.Equal(t, 25, cfg.POP3.MaxFetch)
	assert.Equal(t, 10*time.Second, cfg.POP3.ConnectionTimeout())
	assert.Equal(t, 10*time.Second, cfg.POP3.ReadTimeout())
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval())
	assert.Equal(t, 10, cfg.Worker.CoreSize)
	assert.Equal(t, 20, cfg.Worker.MaxSize)
	assert.Equal(t, 50, cfg.Worker.QueueCapacity)
	assert.Equal(t, "mail-poll-", cfg.Worker.NamePrefix)
	assert.Equal(t, 5*time.Second, cfg.Worker.DrainTimeout)
	assert.Equal(t, "c2VjcmV0", cfg.Crypto.Key)
	assert.Equal(t, NotifierSlack, cfg.Notifier.Type)
	assert.Equal(t, "mail-enrichment", cfg.Redis.EnrichmentQueue)
}
