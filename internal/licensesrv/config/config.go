// Package config loads and validates the activation server configuration.
// Configuration comes from a TOML file; secrets (database password, RSA
// signing key) may be overridden from the environment so they stay out of
// the config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Version is the supported config file format version.
const Version = "0.1"

// SigningConfig holds signing key configuration. The private key itself is
// loaded by the license package; this only says where to find it.
type SigningConfig struct {
	PrivateKeyFile string `toml:"private_key_file"` // Path to a PEM-encoded RSA private key
	DevMode        bool   `toml:"dev_mode"`         // Allow ephemeral dev keypair when no key is configured
}

// AdminConfig holds configuration for the administrative API. Real admin
// authentication lives in the front-end collaborator; the API token is a
// shared secret gating direct access to the admin endpoints.
type AdminConfig struct {
	APIToken string `toml:"api_token"`
}

// ConfigParam holds all configuration parameters for the activation server.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"` // Version of this configuration file format

	// Server configuration
	ServerHostName     string   `toml:"server_hostname"`       // Hostname for the server
	ServerPort         string   `toml:"server_port"`           // Port for the activation server
	HandleCORS         bool     `toml:"handle_cors"`           // Whether to handle CORS
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // Origins allowed when CORS handling is on
	MaxRequestBodySize int64    `toml:"max_request_body_size"` // Maximum size of request body in bytes
	RequestTimeout     string   `toml:"request_timeout"`       // Per-request handling timeout, e.g. "10s"
	SupportTLS         bool     `toml:"support_tls"`           // Whether to serve TLS
	TLSCertFile        string   `toml:"tls_cert_file"`         // Path to TLS certificate file
	TLSKeyFile         string   `toml:"tls_key_file"`          // Path to TLS key file

	// Signing configuration
	Signing SigningConfig `toml:"signing"`

	// Admin API configuration
	Admin AdminConfig `toml:"admin"`

	// Database configuration
	DB struct {
		Host     string `toml:"host"`     // Database host
		Port     int    `toml:"port"`     // Database port
		DBName   string `toml:"dbname"`   // Database name
		User     string `toml:"user"`     // Database user
		Password string `toml:"password"` // Database password, env LICENSEDB_PASSWORD overrides
		SSLMode  string `toml:"sslmode"`  // SSL mode for database connection
	} `toml:"db"`
}

var cfg *ConfigParam

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

// DSN returns the database connection string.
func (c *ConfigParam) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode)
}

// LicenseDBDSN returns the DSN for the license database.
func LicenseDBDSN() string {
	return cfg.DSN()
}

// GetRequestTimeout returns the per-request timeout as a time.Duration, or
// panics if the configured value is invalid. ValidateConfig checks the value
// first, so a panic here indicates the config was never validated.
func (c *ConfigParam) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		panic(fmt.Sprintf("invalid request timeout: %v", err))
	}
	return d
}

// LoadConfig loads configuration from a file and validates it.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	cfg = &ConfigParam{}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	// Secrets from the environment take precedence over the config file.
	if passwd := os.Getenv("LICENSEDB_PASSWORD"); passwd != "" {
		cfg.DB.Password = passwd
	}
	if token := os.Getenv("ADMIN_API_TOKEN"); token != "" {
		cfg.Admin.APIToken = token
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	return nil
}

// ValidateConfig checks if all required configuration values are present and valid.
func ValidateConfig(cfg *ConfigParam) error {
	if err := validateConfigFormatVersion(cfg); err != nil {
		return err
	}
	if err := validateServerConfig(cfg); err != nil {
		return err
	}
	if err := validateDBConfig(cfg); err != nil {
		return err
	}
	if err := validateTLSConfig(cfg); err != nil {
		return err
	}
	return nil
}

func validateConfigFormatVersion(cfg *ConfigParam) error {
	if cfg.FormatVersion != Version {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}
	return nil
}

func validateServerConfig(cfg *ConfigParam) error {
	if cfg.ServerPort == "" {
		return fmt.Errorf("server_port is required")
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 1 << 20
	}
	if cfg.RequestTimeout == "" {
		cfg.RequestTimeout = "10s"
	}
	if _, err := time.ParseDuration(cfg.RequestTimeout); err != nil {
		return fmt.Errorf("invalid request_timeout: %v", err)
	}
	if cfg.HandleCORS && len(cfg.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("cors_allowed_origins is required when handle_cors is set")
	}
	return nil
}

func validateDBConfig(cfg *ConfigParam) error {
	if cfg.DB.Host == "" {
		return fmt.Errorf("db.host is required")
	}
	if cfg.DB.Port <= 0 {
		return fmt.Errorf("db.port must be positive")
	}
	if cfg.DB.DBName == "" {
		return fmt.Errorf("db.dbname is required")
	}
	if cfg.DB.User == "" {
		return fmt.Errorf("db.user is required")
	}
	if cfg.DB.Password == "" {
		return fmt.Errorf("db.password is required")
	}
	if cfg.DB.SSLMode == "" {
		return fmt.Errorf("db.sslmode is required")
	}
	return nil
}

func validateTLSConfig(cfg *ConfigParam) error {
	if cfg.SupportTLS {
		if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
			return fmt.Errorf("tls_cert_file and tls_key_file are required when support_tls is set")
		}
	}
	return nil
}

var isTest = false

// IsTest reports whether the process is running under the test harness.
func IsTest() bool {
	return isTest
}

// SetTestMode toggles test mode.
func SetTestMode(test bool) {
	isTest = test
}

// TestInit loads the sample config from the project root for tests.
func TestInit() {
	isTest = true
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	// Walk up to the project root, identified by go.mod.
	projectRoot := wd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			panic("could not find project root (go.mod)")
		}
		projectRoot = parent
	}
	if err := LoadConfig(filepath.Join(projectRoot, "activationsrv.conf")); err != nil {
		panic(fmt.Errorf("error loading config: %v", err))
	}
	// Tests always run with a generated signing key.
	cfg.Signing.DevMode = true
}
