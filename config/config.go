// Package config loads seatrack configuration: built-in defaults, then JSON
// file layers deep-merged in order, then SEATRACK_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/seatrack/errors"
)

// Config represents the complete application configuration
type Config struct {
	Serial    SerialConfig    `json:"serial"`
	UDP       UDPConfig       `json:"udp"`
	TCP       TCPConfig       `json:"tcp"`
	WebSocket WebSocketConfig `json:"websocket"`
	Reconnect ReconnectConfig `json:"reconnect"`
	Store     StoreConfig     `json:"store"`
	Feed      FeedConfig      `json:"feed"`
	Record    RecordConfig    `json:"record"`
	Relay     RelayConfig     `json:"relay"`
	NATS      NATSConfig      `json:"nats"`
	Kafka     KafkaConfig     `json:"kafka"`
	HTTP      HTTPConfig      `json:"http"`
}

// SerialConfig configures the serial transport
type SerialConfig struct {
	Enabled  bool   `json:"enabled"`
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate"`
}

// UDPConfig configures the UDP transport
type UDPConfig struct {
	Enabled bool   `json:"enabled"`
	Bind    string `json:"bind"`
	Port    int    `json:"port"`
}

// TCPConfig configures the TCP client transport
type TCPConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// WebSocketConfig configures the WebSocket client transport
type WebSocketConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Token   string `json:"token,omitempty"`
}

// ReconnectConfig holds timings shared by every transport
type ReconnectConfig struct {
	Delay          time.Duration `json:"delay"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout"`
}

// StoreConfig configures contact aging and the label cache
type StoreConfig struct {
	MaxAge        time.Duration `json:"max_age"`
	PurgeInterval time.Duration `json:"purge_interval"`
	CacheFile     string        `json:"cache_file"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// FeedConfig configures the upstream JSON polling feed
type FeedConfig struct {
	Enabled  bool          `json:"enabled"`
	URL      string        `json:"url"`
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
	Token    string        `json:"token,omitempty"`
}

// RecordConfig configures the raw line recorder
type RecordConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	Format  string `json:"format"`
}

// RelayConfig configures the WebSocket line relay
type RelayConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// NATSConfig configures the NATS contact sink
type NATSConfig struct {
	Enabled bool     `json:"enabled"`
	URLs    []string `json:"urls"`
	Subject string   `json:"subject"`
	Token   string   `json:"token,omitempty"`
	// User and Password authenticate when User is set.
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// KafkaConfig configures the Kafka contact sink
type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// HTTPConfig configures the HTTP gateway
type HTTPConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Listen returns the gateway listen address.
func (h HTTPConfig) Listen() string {
	return fmt.Sprintf(":%d", h.Port)
}

// Default returns the built-in configuration. Only UDP and the HTTP
// gateway are enabled.
func Default() *Config {
	return &Config{
		Serial:    SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 38400},
		UDP:       UDPConfig{Enabled: true, Bind: "0.0.0.0", Port: 10110},
		TCP:       TCPConfig{Address: "localhost:10110"},
		WebSocket: WebSocketConfig{URL: "ws://localhost:10111/ws"},
		Reconnect: ReconnectConfig{
			Delay:          5 * time.Second,
			ConnectTimeout: 5 * time.Second,
			ReadTimeout:    time.Second,
		},
		Store: StoreConfig{
			MaxAge:        10 * time.Minute,
			PurgeInterval: 30 * time.Second,
			CacheFile:     "seatrack-contacts.cache",
			FlushInterval: 5 * time.Minute,
		},
		Feed: FeedConfig{
			Interval: 60 * time.Second,
			Timeout:  10 * time.Second,
		},
		Record: RecordConfig{Path: "seatrack-record.nmea", Format: "raw"},
		Relay:  RelayConfig{Listen: ":10111"},
		NATS: NATSConfig{
			URLs:    []string{"nats://localhost:4222"},
			Subject: "seatrack.contacts",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "seatrack.contacts",
		},
		HTTP: HTTPConfig{Enabled: true, Port: 8080},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Serial.Enabled {
		if c.Serial.Port == "" {
			return invalid("serial.port is required")
		}
		if c.Serial.BaudRate <= 0 {
			return invalid("serial.baud_rate must be positive")
		}
	}
	if c.UDP.Enabled {
		if c.UDP.Port < 0 || c.UDP.Port > 65535 {
			return invalid(fmt.Sprintf("udp.port %d out of range", c.UDP.Port))
		}
		if net.ParseIP(c.UDP.Bind) == nil {
			return invalid(fmt.Sprintf("udp.bind %q is not an IP address", c.UDP.Bind))
		}
	}
	if c.WebSocket.Enabled {
		if !strings.HasPrefix(c.WebSocket.URL, "ws://") && !strings.HasPrefix(c.WebSocket.URL, "wss://") {
			return invalid(fmt.Sprintf("websocket.url %q must be ws:// or wss://", c.WebSocket.URL))
		}
	}
	if c.TCP.Enabled {
		if _, _, err := net.SplitHostPort(c.TCP.Address); err != nil {
			return invalid(fmt.Sprintf("tcp.address %q: %v", c.TCP.Address, err))
		}
	}

	if c.Reconnect.Delay <= 0 {
		return invalid("reconnect.delay must be positive")
	}
	if c.Reconnect.ConnectTimeout <= 0 || c.Reconnect.ReadTimeout <= 0 {
		return invalid("reconnect timeouts must be positive")
	}

	if c.Store.MaxAge < 0 {
		return invalid("store.max_age cannot be negative")
	}
	if c.Store.MaxAge > 0 && c.Store.PurgeInterval <= 0 {
		return invalid("store.purge_interval must be positive when max_age is set")
	}
	if c.Store.CacheFile != "" && c.Store.FlushInterval <= 0 {
		return invalid("store.flush_interval must be positive when cache_file is set")
	}

	if c.Feed.Enabled {
		if c.Feed.URL == "" {
			return invalid("feed.url is required")
		}
		if c.Feed.Interval <= 0 {
			return invalid("feed.interval must be positive")
		}
	}
	if c.Record.Enabled && c.Record.Path == "" {
		return invalid("record.path is required")
	}
	if c.Relay.Enabled && c.Relay.Listen == "" {
		return invalid("relay.listen is required")
	}
	if c.NATS.Enabled && len(c.NATS.URLs) == 0 {
		return invalid("nats.urls is required")
	}
	if (c.NATS.User == "") != (c.NATS.Password == "") {
		return invalid("nats.user and nats.password must be set together")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return invalid("kafka.brokers is required")
	}
	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		return invalid(fmt.Sprintf("http.port %d out of range", c.HTTP.Port))
	}

	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", "Validate", "check fields")
}

// EnabledTransports returns the names of the enabled transports.
func (c *Config) EnabledTransports() []string {
	var names []string
	if c.Serial.Enabled {
		names = append(names, "serial")
	}
	if c.UDP.Enabled {
		names = append(names, "udp")
	}
	if c.TCP.Enabled {
		names = append(names, "tcp")
	}
	if c.WebSocket.Enabled {
		names = append(names, "websocket")
	}
	return names
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Feed.Token != "" {
		masked.Feed.Token = "***"
	}
	if masked.WebSocket.Token != "" {
		masked.WebSocket.Token = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// durationKeys are the JSON keys whose string values are durations.
var durationKeys = map[string]bool{
	"delay":           true,
	"connect_timeout": true,
	"read_timeout":    true,
	"max_age":         true,
	"purge_interval":  true,
	"flush_interval":  true,
	"interval":        true,
	"timeout":         true,
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "SEATRACK",
		getenv:     os.Getenv,
	}
}

// AddLayer adds a configuration file layer. Later layers win.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("load %s", path))
		}
		cfg, err = mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", fmt.Sprintf("merge %s", path))
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRawJSON loads configuration from a JSON file as a map
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap overrides only the fields present in override.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// parseDurations rewrites duration strings as nanoseconds at any depth.
func parseDurations(data map[string]any) error {
	for k, v := range data {
		switch val := v.(type) {
		case map[string]any:
			if err := parseDurations(val); err != nil {
				return err
			}
		case string:
			if !durationKeys[k] {
				continue
			}
			d, err := parseDurationWithDays(val)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			data[k] = d.Nanoseconds()
		}
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "2d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(name string) (string, error) {
		key := l.envPrefix + "_" + name
		val := l.getenv(key)
		if err := validateEnvVar(key, val); err != nil {
			return "", errors.WrapInvalid(err, "Loader", "applyEnvOverrides", key)
		}
		return val, nil
	}

	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"SERIAL_PORT", func(v string) error { cfg.Serial.Port = v; return nil }},
		{"UDP_PORT", func(v string) error {
			port, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			cfg.UDP.Port = port
			return nil
		}},
		{"TCP_ADDRESS", func(v string) error { cfg.TCP.Address = v; return nil }},
		{"WEBSOCKET_URL", func(v string) error { cfg.WebSocket.URL = v; return nil }},
		{"WEBSOCKET_TOKEN", func(v string) error { cfg.WebSocket.Token = v; return nil }},
		{"CACHE_FILE", func(v string) error { cfg.Store.CacheFile = v; return nil }},
		{"NATS_URLS", func(v string) error { cfg.NATS.URLs = splitList(v); return nil }},
		{"NATS_USER", func(v string) error { cfg.NATS.User = v; return nil }},
		{"NATS_PASSWORD", func(v string) error { cfg.NATS.Password = v; return nil }},
		{"KAFKA_BROKERS", func(v string) error { cfg.Kafka.Brokers = splitList(v); return nil }},
		{"FEED_URL", func(v string) error { cfg.Feed.URL = v; return nil }},
		{"FEED_TOKEN", func(v string) error { cfg.Feed.Token = v; return nil }},
	}

	for _, o := range overrides {
		val, err := get(o.name)
		if err != nil {
			return err
		}
		if val == "" {
			continue
		}
		if err := o.apply(val); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%s_%s: %w", l.envPrefix, o.name, err),
				"Loader", "applyEnvOverrides", "parse value")
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
