// Package config loads the server configuration.
//
// The YAML file is rendered as a text/template over the environment first,
// so values such as {{.JWT_SECRET}} can be injected without committing
// them. Defaults fill every field left empty, and a few environment
// variables override the file directly.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds all configuration details.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Media         MediaConfig         `yaml:"media"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LoggingConfig selects the log level and output format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// DatabaseConfig defines the document store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite file.
	Path string `yaml:"path"`
	// URI and Name select the MongoDB deployment and database.
	URI  string `yaml:"uri"`
	Name string `yaml:"name"`
}

// AuthConfig defines token signing.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwtSecret"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
}

// Media backends.
const (
	MediaLocal = "local"
	MediaS3    = "s3"
)

// MediaConfig defines where uploaded images are kept.
type MediaConfig struct {
	Backend string   `yaml:"backend"`
	Dir     string   `yaml:"dir"`
	BaseURL string   `yaml:"baseURL"`
	S3      S3Config `yaml:"s3"`
}

// S3Config defines the image bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	PublicURL       string `yaml:"publicURL"`
}

// Notification backends.
const (
	PushLog    = "log"
	PushFCM    = "fcm"
	PushPulsar = "pulsar"
)

// NotificationsConfig selects the push transport.
type NotificationsConfig struct {
	Backend string       `yaml:"backend"`
	FCM     FCMConfig    `yaml:"fcm"`
	Pulsar  PulsarConfig `yaml:"pulsar"`
}

// FCMConfig defines the Firebase project.
type FCMConfig struct {
	ProjectID       string `yaml:"projectId"`
	CredentialsFile string `yaml:"credentialsFile"`
}

// PulsarConfig defines the messaging system connection details.
type PulsarConfig struct {
	URL   string `yaml:"url"`
	Topic string `yaml:"topic"`
}

// Load reads the config file at path. An empty path yields the defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		tmpl, err := template.New(filepath.Base(path)).Option("missingkey=zero").ParseFiles(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config template: %w", err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, loadEnvVars()); err != nil {
			return nil, fmt.Errorf("failed to render config template: %w", err)
		}

		if err := yaml.UnmarshalStrict(buf.Bytes(), cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate checks the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverMongo:
		if c.Database.URI == "" {
			return fmt.Errorf("database.uri is required for driver %q", DriverMongo)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Media.Backend {
	case MediaLocal:
	case MediaS3:
		if c.Media.S3.Bucket == "" {
			return fmt.Errorf("media.s3.bucket is required for backend %q", MediaS3)
		}
	default:
		return fmt.Errorf("unknown media backend %q", c.Media.Backend)
	}

	switch c.Notifications.Backend {
	case PushLog:
	case PushFCM:
		if c.Notifications.FCM.ProjectID == "" {
			return fmt.Errorf("notifications.fcm.projectId is required for backend %q", PushFCM)
		}
	case PushPulsar:
		if c.Notifications.Pulsar.URL == "" || c.Notifications.Pulsar.Topic == "" {
			return fmt.Errorf("notifications.pulsar.url and topic are required for backend %q", PushPulsar)
		}
	default:
		return fmt.Errorf("unknown notifications backend %q", c.Notifications.Backend)
	}
	return nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Server.Port, 8080)
	setDefault(&c.Server.ShutdownTimeout, 15*time.Second)
	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "text")
	setDefault(&c.Database.Driver, DriverSQLite)
	setDefault(&c.Database.Path, "./data/splitledger.db")
	setDefault(&c.Database.Name, "splitledger")
	setDefault(&c.Auth.JWTSecret, "dev-secret-change-me")
	setDefault(&c.Auth.TokenTTL, 2*time.Hour)
	setDefault(&c.Media.Backend, MediaLocal)
	setDefault(&c.Media.Dir, "./data/media")
	setDefault(&c.Media.BaseURL, "/media")
	setDefault(&c.Notifications.Backend, PushLog)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// loadEnvVars loads environment variables into a map.
func loadEnvVars() map[string]string {
	envVars := make(map[string]string)
	for _, env := range os.Environ() {
		if k, v, ok := strings.Cut(env, "="); ok {
			envVars[k] = v
		}
	}
	return envVars
}
