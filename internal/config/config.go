package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cyvasse-online/server/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Workers   WorkersConfig   `json:"workers" yaml:"workers"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	NATS      NATSConfig      `json:"nats" yaml:"nats"`
	Logging   logging.Config  `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" validate:"min=0"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`
	// PidFile, if set, receives the process id while the server runs.
	PidFile string `json:"pid_file" yaml:"pid_file"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// WorkersConfig sizes the message worker pool.
type WorkersConfig struct {
	Count    int    `json:"count" yaml:"count" validate:"min=1,max=1024"`
	Ordering string `json:"ordering" yaml:"ordering" validate:"oneof=pinned shared"`
}

// TransportConfig tunes websocket connections.
type TransportConfig struct {
	MaxMessageSize int64         `json:"max_message_size" yaml:"max_message_size" validate:"min=1024"`
	PingInterval   time.Duration `json:"ping_interval" yaml:"ping_interval" validate:"gt=0"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout" validate:"gtfield=PingInterval"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	SendBuffer     int           `json:"send_buffer" yaml:"send_buffer" validate:"min=1"`
}

// DatabaseConfig enables match persistence when URL is set.
type DatabaseConfig struct {
	URL       string `json:"url" yaml:"url" validate:"omitempty,url"`
	Migrate   bool   `json:"migrate" yaml:"migrate"`
	QueueSize int    `json:"queue_size" yaml:"queue_size" validate:"min=1"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

// NATSConfig enables event forwarding when URL is set.
type NATSConfig struct {
	URL           string `json:"url" yaml:"url" validate:"omitempty,url"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix" validate:"required_with=URL"`
}

// Enabled reports whether a NATS server is configured.
func (n NATSConfig) Enabled() bool { return n.URL != "" }

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            2516,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Workers: WorkersConfig{
			Count:    4,
			Ordering: "pinned",
		},
		Transport: TransportConfig{
			MaxMessageSize: 64 * 1024,
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			SendBuffer:     256,
		},
		Database: DatabaseConfig{
			Migrate:   true,
			QueueSize: 1024,
		},
		NATS: NATSConfig{
			SubjectPrefix: "cyvasse",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field '%s': %s", e.Field, e.Message)
}
