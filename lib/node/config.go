package node

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/project-dy/Essentials/lib/coord"
	"github.com/project-dy/Essentials/lib/daemon"
	"github.com/project-dy/Essentials/lib/logger"
	"github.com/spf13/viper"
)

// Config holds everything a node needs to start.
type Config struct {
	// DataDir holds the default store file
	DataDir string
	// Database is the database location (path, file://, tcp://, unix://,
	// redis://). Empty uses DataDir/database.
	Database string

	// Coordination enables the Owner/Subordinate election
	Coordination bool
	Host         string
	Port         int

	// ReconnectBackoff and ReconnectAttempts shape the Subordinate's reconnect rounds
	ReconnectBackoff  time.Duration
	ReconnectAttempts int

	// DataEndpoint is where the Owner serves its store (empty disables it)
	DataEndpoint string
	// Transport of the data endpoint (tcp, unix) and its Serializer (json, gob)
	Transport     string
	Serializer    string
	TimeoutSecond int

	// Workers of the daemon scheduler, clamped to [2, 8]
	Workers       int
	ShutdownGrace time.Duration
	// MaintenanceInterval of the store flush and cache refresh tasks
	MaintenanceInterval time.Duration

	// ConfigFile is watched and hot reloaded when set
	ConfigFile string
	LogLevel   string

	// AdminEndpoint serves /status, /broadcast and /metrics (empty disables it)
	AdminEndpoint string

	// BlockIP asks for the sudo password used to block addresses in the host firewall
	BlockIP bool

	RedisKeyPrefix string
	// Locale gives the region of local players, empty reads $LANG
	Locale string
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		DataDir:             "data",
		Coordination:        true,
		Host:                coord.DefaultHost,
		Port:                coord.DefaultPort,
		ReconnectBackoff:    time.Second,
		ReconnectAttempts:   10,
		Transport:           "tcp",
		Serializer:          "json",
		TimeoutSecond:       5,
		Workers:             daemon.MaxWorkers,
		ShutdownGrace:       5 * time.Second,
		MaintenanceInterval: time.Minute,
		LogLevel:            "info",
		RedisKeyPrefix:      "essentials",
	}
}

// DatabasePath is the default store file of this node
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "database")
}

// Validate checks the values a node can not start without
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if c.Coordination && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("invalid coordination port %d", c.Port)
	}
	if c.ReconnectAttempts < 1 {
		return fmt.Errorf("reconnect-attempts must be at least 1")
	}
	if c.MaintenanceInterval <= 0 {
		return fmt.Errorf("maintenance-interval must be positive")
	}
	switch c.Transport {
	case "tcp", "unix":
	default:
		return fmt.Errorf("invalid transport %s (expected tcp or unix)", c.Transport)
	}
	switch c.Serializer {
	case "json", "gob":
	default:
		return fmt.Errorf("invalid serializer %s (expected json or gob)", c.Serializer)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// FromViper reads the configuration keys (the flag names of the serve
// command) from v, unset keys keep their defaults
func FromViper(v *viper.Viper) Config {
	c := DefaultConfig()

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	setString("data-dir", &c.DataDir)
	setString("database", &c.Database)
	setBool("coordination", &c.Coordination)
	setString("host", &c.Host)
	setInt("port", &c.Port)
	setDuration("reconnect-backoff", &c.ReconnectBackoff)
	setInt("reconnect-attempts", &c.ReconnectAttempts)
	setString("data-endpoint", &c.DataEndpoint)
	setString("transport", &c.Transport)
	setString("serializer", &c.Serializer)
	setInt("timeout", &c.TimeoutSecond)
	setInt("workers", &c.Workers)
	setDuration("shutdown-grace", &c.ShutdownGrace)
	setDuration("maintenance-interval", &c.MaintenanceInterval)
	setString("config", &c.ConfigFile)
	setString("log-level", &c.LogLevel)
	setString("admin-endpoint", &c.AdminEndpoint)
	setBool("block-ip", &c.BlockIP)
	setString("redis-prefix", &c.RedisKeyPrefix)
	setString("locale", &c.Locale)

	return c
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orDisabled := func(value string) string {
		if value == "" {
			return "disabled"
		}
		return value
	}

	database := c.Database
	if database == "" {
		database = c.DatabasePath() + " (default)"
	}

	addSection("Database")
	addField("Location", database)
	addField("Data Dir", c.DataDir)

	addSection("Coordination")
	addField("Enabled", strconv.FormatBool(c.Coordination))
	addField("Address", fmt.Sprintf("%s:%d", c.Host, c.Port))
	addField("Reconnect", fmt.Sprintf("%d x %s", c.ReconnectAttempts, c.ReconnectBackoff))

	addSection("Data Endpoint")
	addField("Endpoint", orDisabled(c.DataEndpoint))
	addField("Transport", c.Transport)
	addField("Serializer", c.Serializer)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Daemon")
	addField("Workers", strconv.Itoa(c.Workers))
	addField("Shutdown Grace", c.ShutdownGrace.String())
	addField("Maintenance Interval", c.MaintenanceInterval.String())
	addField("Config File", orDisabled(c.ConfigFile))

	addSection("Misc")
	addField("Admin Endpoint", orDisabled(c.AdminEndpoint))
	addField("Block IP", strconv.FormatBool(c.BlockIP))
	addField("Log Level", c.LogLevel)

	return sb.String()
}
