package app

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailbox-poller/internal/config"
	"mailbox-poller/internal/enrichment"
	"mailbox-poller/internal/notifier"
)

func TestConfigureLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetFormatter(&logrus.JSONFormatter{})

	require.NoError(t, configureLogging(config.LogConfig{Level: "debug", Format: "text"}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logrus.StandardLogger().Formatter)

	require.NoError(t, configureLogging(config.LogConfig{Level: "warn", Format: "json"}))
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	assert.Error(t, configureLogging(config.LogConfig{Level: "chatty"}))
}

func TestNewSender(t *testing.T) {
	ctx := context.Background()

	s, err := newSender(ctx, config.NotifierConfig{Type: config.NotifierSlack, SlackToken: "xoxb"})
	require.NoError(t, err)
	assert.IsType(t, &notifier.SlackSender{}, s)

	s, err = newSender(ctx, config.NotifierConfig{Type: config.NotifierNone})
	require.NoError(t, err)
	assert.IsType(t, notifier.NopSender{}, s)
}

func TestNewEnqueuerWithoutRedis(t *testing.T) {
	e, closer, err := newEnqueuer(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, enrichment.LogEnqueuer{}, e)
	assert.NoError(t, closer.Close())
}

func TestNewEnqueuerRejectsBadURL(t *testing.T) {
	_, _, err := newEnqueuer(context.Background(), config.RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}
