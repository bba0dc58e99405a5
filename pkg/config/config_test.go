package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type windowConfig struct {
	Days      int     `env:"WINDOW_DAYS" envDefault:"30"`
	Threshold float64 `env:"THRESHOLD" envDefault:"95"`
	Enabled   bool    `env:"ENABLED"`
}

func (c *windowConfig) Validate() error {
	if c.Days < 1 {
		return errBadWindow
	}
	return nil
}

var errBadWindow = errors.New("window must be positive")

func TestLoad_Defaults(t *testing.T) {
	var cfg windowConfig
	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{})))

	assert.Equal(t, 30, cfg.Days)
	assert.Equal(t, 95.0, cfg.Threshold)
	assert.False(t, cfg.Enabled)
}

func TestLoad_Prefix(t *testing.T) {
	var cfg windowConfig
	err := Load(&cfg,
		WithPrefix("CRISIS_"),
		WithEnvironment(map[string]string{"CRISIS_WINDOW_DAYS": "7", "WINDOW_DAYS": "99", "CRISIS_ENABLED": "true"}),
	)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Days)
	assert.True(t, cfg.Enabled)
}

func TestLoad_ProcessEnvironment(t *testing.T) {
	t.Setenv("THRESHOLD", "99.5")

	var cfg windowConfig
	require.NoError(t, Load(&cfg))
	assert.Equal(t, 99.5, cfg.Threshold)
}

func TestLoad_ParseError(t *testing.T) {
	var cfg windowConfig
	err := Load(&cfg, WithEnvironment(map[string]string{"WINDOW_DAYS": "a week"}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_ValidationErrorUnwrapped(t *testing.T) {
	var cfg windowConfig
	err := Load(&cfg, WithEnvironment(map[string]string{"WINDOW_DAYS": "0"}))

	assert.Same(t, errBadWindow, err)
}

func TestLoad_RequiredField(t *testing.T) {
	var cfg struct {
		Brokers []string `env:"BROKERS,required"`
	}
	err := Load(&cfg, WithEnvironment(map[string]string{}))
	require.Error(t, err)

	require.NoError(t, Load(&cfg, WithEnvironment(map[string]string{"BROKERS": "a:9092,b:9092"})))
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers)
}
