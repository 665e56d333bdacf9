// Package config provides YAML-based configuration management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Upload processing configuration
	Upload UploadConfig `yaml:"upload"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Logging options
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                 int    `yaml:"port"`
	BindAddress          string `yaml:"bindAddress"`
	EnableCORS           bool   `yaml:"enableCORS"`
	AllowOrigins         string `yaml:"allowOrigins"`
	ReadTimeout          int    `yaml:"readTimeoutSeconds"`
	WriteTimeout         int    `yaml:"writeTimeoutSeconds"`
	IdleTimeout          int    `yaml:"idleTimeoutSeconds"`
	BodyLimit            string `yaml:"bodyLimit"`
	EnableCompression    bool   `yaml:"enableCompression"`
	CompressionLevel     int    `yaml:"compressionLevel"`
	EnableRequestLogging bool   `yaml:"enableRequestLogging"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	UploadsDirectory    string `yaml:"uploadsDirectory"`
	IndexFile           string `yaml:"indexFile"`
	BundleDirectory     string `yaml:"bundleDirectory"`
	BundleMaxAgeMinutes int    `yaml:"bundleMaxAgeMinutes"`
	BundleSweepSchedule string `yaml:"bundleSweepSchedule"`
}

// UploadConfig contains image ingestion settings
type UploadConfig struct {
	AllowedExtensions  []string `yaml:"allowedExtensions"`
	DefaultExtension   string   `yaml:"defaultExtension"`
	HashTimeoutSeconds int      `yaml:"hashTimeoutSeconds"`
	HashWorkers        int      `yaml:"hashWorkers"`
	MaxPixels          int64    `yaml:"maxPixels"`
}

// SecurityConfig contains the download secret. Exactly one form is needed;
// the bcrypt hash wins when both are set.
type SecurityConfig struct {
	DownloadPassword       string `yaml:"downloadPassword"`
	DownloadPasswordBcrypt string `yaml:"downloadPasswordBcrypt"`
}

// LoggingConfig contains log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8000,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         120,
			IdleTimeout:          120,
			BodyLimit:            "70M",
			EnableCompression:    true,
			CompressionLevel:     5,
			EnableRequestLogging: true,
		},
		Storage: StorageConfig{
			UploadsDirectory:    "./uploads",
			IndexFile:           "hash_index.json",
			BundleDirectory:     "./bundles",
			BundleMaxAgeMinutes: 30,
			BundleSweepSchedule: "@every 10m",
		},
		Upload: UploadConfig{
			AllowedExtensions:  []string{"png", "jpg", "jpeg", "gif"},
			DefaultExtension:   ".jpg",
			HashTimeoutSeconds: 10,
			HashWorkers:        4,
			MaxPixels:          50_000_000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with defaults. Variables from a .env file next to the config (if any) are
// loaded before environment overrides are applied.
func LoadConfig(configPath string) (*AppConfig, error) {
	configDir := filepath.Dir(configPath)
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(configDir)

	return config, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Photo Gallery Configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
		c.Server.BindAddress = addr
	}
	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		c.Storage.UploadsDirectory = dir
	}
	if dir := os.Getenv("BUNDLE_DIR"); dir != "" {
		c.Storage.BundleDirectory = dir
	}
	if pw := os.Getenv("DOWNLOAD_PASSWORD"); pw != "" {
		c.Security.DownloadPassword = pw
	}
	if hash := os.Getenv("DOWNLOAD_PASSWORD_BCRYPT"); hash != "" {
		c.Security.DownloadPasswordBcrypt = hash
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
	if !filepath.IsAbs(c.Storage.BundleDirectory) {
		c.Storage.BundleDirectory = filepath.Join(configDir, c.Storage.BundleDirectory)
	}
}

// Validate checks the settings the server cannot start without.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Security.DownloadPassword == "" && c.Security.DownloadPasswordBcrypt == "" {
		errs = append(errs, errors.New("no download secret: set security.downloadPassword, DOWNLOAD_PASSWORD or DOWNLOAD_PASSWORD_BCRYPT"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("upload.allowedExtensions is empty"))
	}
	if c.Upload.HashTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("upload.hashTimeoutSeconds must be positive"))
	}
	if c.Upload.HashWorkers <= 0 {
		errs = append(errs, errors.New("upload.hashWorkers must be positive"))
	}
	name := c.Storage.IndexFile
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		errs = append(errs, fmt.Errorf("storage.indexFile must be a plain file name, got %q", name))
	}

	return errors.Join(errs...)
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetIndexPath returns the hash index file path inside the uploads directory
func (c *AppConfig) GetIndexPath() string {
	return filepath.Join(c.Storage.UploadsDirectory, c.Storage.IndexFile)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// HashTimeout returns the per-file hashing deadline
func (c *AppConfig) HashTimeout() time.Duration {
	return time.Duration(c.Upload.HashTimeoutSeconds) * time.Second
}

// BundleMaxAge returns how long an unserved bundle may stay on disk
func (c *AppConfig) BundleMaxAge() time.Duration {
	return time.Duration(c.Storage.BundleMaxAgeMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.UploadsDirectory,
		c.Storage.BundleDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
