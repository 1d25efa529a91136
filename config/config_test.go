package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/errors"
)

func writeLayer(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func testLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.getenv = func(k string) string { return env[k] }
	return l
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"udp"}, cfg.EnabledTransports())
	assert.Equal(t, ":8080", cfg.HTTP.Listen())
	assert.Equal(t, 5*time.Second, cfg.Reconnect.Delay)
}

func TestLoader_LayersDeepMerge(t *testing.T) {
	base := writeLayer(t, "base.json", `{
		"tcp": {"enabled": true, "address": "10.0.0.5:2000"},
		"store": {"max_age": "2d", "cache_file": "/var/lib/seatrack/cache"}
	}`)
	site := writeLayer(t, "site.json", `{
		"udp": {"enabled": false},
		"reconnect": {"delay": "250ms"},
		"store": {"purge_interval": "1m"}
	}`)

	l := testLoader(nil)
	l.AddLayer(base)
	l.AddLayer(site)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.True(t, cfg.TCP.Enabled)
	assert.Equal(t, "10.0.0.5:2000", cfg.TCP.Address)
	assert.False(t, cfg.UDP.Enabled)
	assert.Equal(t, 10110, cfg.UDP.Port, "untouched fields keep defaults")
	assert.Equal(t, 48*time.Hour, cfg.Store.MaxAge)
	assert.Equal(t, time.Minute, cfg.Store.PurgeInterval)
	assert.Equal(t, "/var/lib/seatrack/cache", cfg.Store.CacheFile)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconnect.Delay)
	assert.Equal(t, []string{"tcp"}, cfg.EnabledTransports())
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := testLoader(map[string]string{
		"SEATRACK_UDP_PORT":      "2000",
		"SEATRACK_TCP_ADDRESS":   "ais.local:5631",
		"SEATRACK_SERIAL_PORT":   "/dev/ttyS1",
		"SEATRACK_CACHE_FILE":    "/tmp/cache",
		"SEATRACK_NATS_URLS":     "nats://a:4222, nats://b:4222",
		"SEATRACK_KAFKA_BROKERS": "k1:9092,k2:9092,",
		"SEATRACK_FEED_URL":      "https://feed.example/vessels",
		"SEATRACK_WEBSOCKET_URL": "wss://ais.example/stream",
		"SEATRACK_NATS_USER":     "tracker",
		"SEATRACK_NATS_PASSWORD": "pw",
	})
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 2000, cfg.UDP.Port)
	assert.Equal(t, "ais.local:5631", cfg.TCP.Address)
	assert.Equal(t, "/dev/ttyS1", cfg.Serial.Port)
	assert.Equal(t, "/tmp/cache", cfg.Store.CacheFile)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "https://feed.example/vessels", cfg.Feed.URL)
	assert.Equal(t, "wss://ais.example/stream", cfg.WebSocket.URL)
	assert.False(t, cfg.WebSocket.Enabled)
	assert.Equal(t, "tracker", cfg.NATS.User)
	assert.Equal(t, "pw", cfg.NATS.Password)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoader_BadEnvValue(t *testing.T) {
	_, err := testLoader(map[string]string{"SEATRACK_UDP_PORT": "tenten"}).Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "SEATRACK_UDP_PORT")
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		file string
	}{
		{"bad duration", `{"reconnect": {"delay": "soon"}}`, "c.json"},
		{"bad json", `{"udp": `, "c.json"},
		{"not json extension", `{}`, "c.yaml"},
		{"invalid result", `{"tcp": {"enabled": true, "address": "nohost"}}`, "c.json"},
		{"too deep", strings.Repeat("[", 40) + strings.Repeat("]", 40), "c.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testLoader(nil)
			l.AddLayer(writeLayer(t, tt.file, tt.body))
			_, err := l.Load()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestLoader_MissingLayer(t *testing.T) {
	l := testLoader(nil)
	l.AddLayer(filepath.Join(t.TempDir(), "absent.json"))
	_, err := l.Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"serial without port", func(c *Config) { c.Serial.Enabled = true; c.Serial.Port = "" }},
		{"udp port range", func(c *Config) { c.UDP.Port = 70000 }},
		{"udp bind", func(c *Config) { c.UDP.Bind = "everywhere" }},
		{"websocket scheme", func(c *Config) { c.WebSocket.Enabled = true; c.WebSocket.URL = "http://relay:10111/ws" }},
		{"zero delay", func(c *Config) { c.Reconnect.Delay = 0 }},
		{"purge without interval", func(c *Config) { c.Store.PurgeInterval = 0 }},
		{"feed without url", func(c *Config) { c.Feed.Enabled = true }},
		{"nats password without user", func(c *Config) { c.NATS.Password = "pw" }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
		{"http port", func(c *Config) { c.HTTP.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
		})
	}
}

func TestValidateConfigPath(t *testing.T) {
	assert.NoError(t, validateConfigPath("/etc/seatrack/site.json"))
	assert.Error(t, validateConfigPath(""))
	assert.Error(t, validateConfigPath("../secrets.json"))
	assert.Error(t, validateConfigPath("config.yaml"))
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Feed.Token = "s3cret"
	cfg.WebSocket.Token = "s3cret"
	cfg.NATS.User = "tracker"
	cfg.NATS.Password = "s3cret"
	assert.NotContains(t, cfg.String(), "s3cret")
	assert.Contains(t, cfg.String(), "tracker")
	assert.Equal(t, "s3cret", cfg.Feed.Token)
}

func TestConfig_SaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.json")
	cfg := Default()
	cfg.TCP.Enabled = true
	require.NoError(t, cfg.SaveToFile(path))

	l := testLoader(nil)
	l.AddLayer(path)
	loaded, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
