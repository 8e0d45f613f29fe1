package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort           = 5173
	DefaultHost           = "127.0.0.1"
	DefaultBackendURL     = "http://localhost:8080"
	DefaultLogLevel       = "info"
	DefaultMaxUploadSize  = 100 * 1024 * 1024 // 100MB
	DefaultRequestTimeout = 60 * time.Second

	// EnvPrefix is shared by the server binary and the terminal client.
	EnvPrefix = "PDF_PLAYGROUND"

	// EnvFile is loaded from the working directory when present.
	EnvFile = ".env"
)

// Config holds all configuration for the PDF playground front-end
type Config struct {
	// Server configuration
	Mode string // "server" (browser front-end) or "stdio" (MCP tools)
	Host string
	Port int

	// Backend configuration
	BackendURL     string
	RequestTimeout time.Duration
	RateLimit      float64 // backend requests per second, 0 disables limiting

	// Application configuration
	Version       string
	ServerName    string
	LogLevel      string
	MaxUploadSize int64 // Maximum multipart upload accepted by the web front-end
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeServer,
		Host:           DefaultHost,
		Port:           DefaultPort,
		BackendURL:     DefaultBackendURL,
		RequestTimeout: DefaultRequestTimeout,
		Version:        "1.0.0",
		ServerName:     "pdf-playground",
		LogLevel:       DefaultLogLevel,
		MaxUploadSize:  DefaultMaxUploadSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	loadEnvFile()
	setupViperEnvironment(viper.GetViper(), cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(viper.GetViper(), cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a configuration from the environment only. The terminal
// client uses it and layers its own flags on top.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()

	loadEnvFile()
	v := viper.New()
	setupViperEnvironment(v, cfg)
	populateConfigFromViper(v, cfg)

	if err := cfg.ValidateBackend(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadEnvFile loads .env into the process environment. Variables that are
// already set win, and a missing file is not an error.
func loadEnvFile() {
	if _, err := os.Stat(EnvFile); err == nil {
		_ = godotenv.Load(EnvFile)
	}
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("backend_url", cfg.BackendURL)
	v.SetDefault("timeout", cfg.RequestTimeout)
	v.SetDefault("rate_limit", cfg.RateLimit)
	v.SetDefault("loglevel", cfg.LogLevel)
	v.SetDefault("max_upload_size", cfg.MaxUploadSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Mode: 'server' for the browser front-end, 'stdio' for MCP tools")
	pflag.String("host", cfg.Host, "Listen address (server mode only)")
	pflag.Int("port", cfg.Port, "Listen port (server mode only)")
	pflag.String("backend", cfg.BackendURL, "Base URL of the PDF form backend")
	pflag.Duration("timeout", cfg.RequestTimeout, "Timeout for each backend request (0 disables)")
	pflag.Float64("rate-limit", cfg.RateLimit, "Maximum backend requests per second (0 disables)")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("max-upload-size", cfg.MaxUploadSize, "Maximum upload size in bytes accepted by the web front-end")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	_ = viper.BindPFlag("mode", pflag.Lookup("mode"))
	_ = viper.BindPFlag("host", pflag.Lookup("host"))
	_ = viper.BindPFlag("port", pflag.Lookup("port"))
	_ = viper.BindPFlag("backend_url", pflag.Lookup("backend"))
	_ = viper.BindPFlag("timeout", pflag.Lookup("timeout"))
	_ = viper.BindPFlag("rate_limit", pflag.Lookup("rate-limit"))
	_ = viper.BindPFlag("loglevel", pflag.Lookup("loglevel"))
	_ = viper.BindPFlag("max_upload_size", pflag.Lookup("max-upload-size"))
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nPDF Playground - upload a PDF, view its form fields, fill one and download the result\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                              "+
			"# browser front-end on 127.0.0.1:5173 (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --backend=http://pdf-api:8080                "+
			"# custom backend\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=stdio                                 # MCP tools over stdio\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from %s):\n", EnvFile)
		fmt.Fprintf(os.Stderr, "  PDF_PLAYGROUND_MODE             Mode\n")
		fmt.Fprintf(os.Stderr, "  PDF_PLAYGROUND_HOST             Listen host\n")
		fmt.Fprintf(os.Stderr, "  PDF_PLAYGROUND_PORT             Listen port\n")
		fmt.Fprintf(os.Stderr, "  PDF_PLAYGROUND_BACKEND_URL      Backend base URL\n")
		fmt.Fprintf(os.Stderr, "  PDF_PLAYGROUND_TIMEOUT          Backend request timeout\n")
		fmt.Fprintf(os.Stderr, "  PDF_PLAYGROUND_RATE_LIMIT       Backend requests per second\n")
		fmt.Fprintf(os.Stderr, "  PDF_PLAYGROUND_LOGLEVEL         Log level\n")
		fmt.Fprintf(os.Stderr, "  PDF_PLAYGROUND_MAX_UPLOAD_SIZE  Maximum upload size\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(v *viper.Viper, cfg *Config) {
	cfg.Mode = v.GetString("mode")
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.BackendURL = v.GetString("backend_url")
	cfg.RequestTimeout = v.GetDuration("timeout")
	cfg.RateLimit = v.GetFloat64("rate_limit")
	cfg.LogLevel = v.GetString("loglevel")
	cfg.MaxUploadSize = v.GetInt64("max_upload_size")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if err := c.ValidateBackend(); err != nil {
		return err
	}

	if c.MaxUploadSize <= 0 {
		return errors.New("maximum upload size must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ValidateBackend checks only the settings the backend client depends on.
func (c *Config) ValidateBackend() error {
	if c.BackendURL == "" {
		return errors.New("backend URL cannot be empty")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend URL %q: %w", c.BackendURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend URL %q must use http or https", c.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("backend URL %q has no host", c.BackendURL)
	}
	if c.RequestTimeout < 0 {
		return errors.New("request timeout cannot be negative")
	}
	if c.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}
	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, BackendURL: %s, RequestTimeout: %s, "+
		"RateLimit: %g, LogLevel: %s, MaxUploadSize: %d}",
		c.Mode, c.Host, c.Port, c.BackendURL, c.RequestTimeout, c.RateLimit, c.LogLevel, c.MaxUploadSize)
}

// IsServerMode returns true if the browser front-end should be served
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the MCP tools are served over stdio
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
