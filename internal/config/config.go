// Package config defines the loan-engine configuration and loads it from a
// YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iwvelando/loan-engine/pkg/constants"
	"github.com/iwvelando/loan-engine/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for loan-engine.
type Configuration struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging,omitempty"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output,omitempty"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server,omitempty"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage,omitempty"`
	Events  EventsConfig  `mapstructure:"events" yaml:"events,omitempty"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level,omitempty"`           // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format,omitempty"`         // json, console
	OutputFile string `mapstructure:"outputFile" yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format,omitempty"` // pretty, csv, yaml
}

// ServerConfig defines runtime parameters for the HTTP server.
type ServerConfig struct {
	Address      string        `mapstructure:"address" yaml:"address,omitempty"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout,omitempty"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout,omitempty"`
	MaxBodySize  string        `mapstructure:"maxBodySize" yaml:"maxBodySize,omitempty"`
}

// MaxBodyBytes returns MaxBodySize in bytes, falling back to the default when
// unset or invalid.
func (s ServerConfig) MaxBodyBytes() int64 {
	n, err := ParseSize(s.MaxBodySize)
	if err != nil || n <= 0 {
		return constants.DefaultMaxBodyBytes
	}
	return n
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend,omitempty"` // memory, sqlite
	SQLitePath string `mapstructure:"sqlitePath" yaml:"sqlitePath,omitempty"`
}

// EventsConfig configures the AMQP event publisher.
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	AMQPURL  string `mapstructure:"amqpURL" yaml:"amqpURL,omitempty"`
	Exchange string `mapstructure:"exchange" yaml:"exchange,omitempty"`
	Queue    string `mapstructure:"queue" yaml:"queue,omitempty"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("server.address", constants.DefaultServerAddress)
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.maxBodySize", "64K")
	v.SetDefault("storage.backend", constants.StorageMemory)
	v.SetDefault("storage.sqlitePath", constants.DefaultSQLitePath)
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.amqpURL", constants.DefaultAMQPURL)
	v.SetDefault("events.exchange", constants.DefaultAMQPExchange)
	v.SetDefault("events.queue", constants.DefaultAMQPQueue)
	v.SetDefault("metrics.enabled", true)
	return v
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	return &configuration, nil
}

// Defaults returns the configuration used when no file is given, with
// environment overrides applied.
func Defaults() (*Configuration, error) {
	return decode(newViper())
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. An empty path yields Defaults.
func LoadConfiguration(configPath string) (*Configuration, error) {
	if configPath == "" {
		return Defaults()
	}

	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads YAML configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}
	return decode(v)
}

// Validate reports every invalid setting in the configuration.
func (c *Configuration) Validate() error {
	var errs []error

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level: %s", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Logging.Format))
	}

	if c.Output.Format != "" {
		if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Server.Address) == "" {
		errs = append(errs, errors.New("server address must not be empty"))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if c.Server.MaxBodySize != "" {
		if _, err := ParseSize(c.Server.MaxBodySize); err != nil {
			errs = append(errs, fmt.Errorf("server maxBodySize: %w", err))
		}
	}

	switch c.Storage.Backend {
	case constants.StorageMemory:
	case constants.StorageSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			errs = append(errs, errors.New("storage sqlitePath is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("expected storage backend of %s or %s, got %q",
			constants.StorageMemory, constants.StorageSQLite, c.Storage.Backend))
	}

	if c.Events.Enabled {
		if c.Events.AMQPURL == "" {
			errs = append(errs, errors.New("events amqpURL is required when events are enabled"))
		}
		if c.Events.Exchange == "" {
			errs = append(errs, errors.New("events exchange is required when events are enabled"))
		}
	}

	return errors.Join(errs...)
}
