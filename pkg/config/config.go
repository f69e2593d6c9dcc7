package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Config represents the API server configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Biometrics BiometricsConfig `mapstructure:"biometrics"`
	DID        DIDConfig        `mapstructure:"did"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host" default:"0.0.0.0"`
	Port            int           `mapstructure:"port" default:"8080"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"30s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"30s"`
}

// BiometricsConfig contains quantization parameters shared by enrollment
// and verification. Both sides must use identical values or reproduced
// codewords drift beyond the correction capacity.
type BiometricsConfig struct {
	GridSize  float64 `mapstructure:"grid_size"`
	AngleBins uint32  `mapstructure:"angle_bins"`
}

// DIDConfig contains DID construction settings
type DIDConfig struct {
	Network       string `mapstructure:"network"`
	Mode          string `mapstructure:"mode"`
	MetadataLabel uint32 `mapstructure:"metadata_label"`
}

// StorageConfig selects the helper-data backend
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	File     FileConfig     `mapstructure:"file"`
	IPFS     IPFSConfig     `mapstructure:"ipfs"`
	Database DatabaseConfig `mapstructure:"database"`
}

// FileConfig contains settings for the file-backed helper store
type FileConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// IPFSConfig contains settings for the content-addressed helper store
type IPFSConfig struct {
	APIURL  string        `mapstructure:"api_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// AuthConfig holds JWT validation configuration for the API surface
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	JWKSURL string `mapstructure:"jwks_url"`
	Issuer  string `mapstructure:"issuer"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply struct defaults: %w", err)
	}
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Quantization defaults match the reference enrollment pipeline.
	viper.SetDefault("biometrics.grid_size", 10.0)
	viper.SetDefault("biometrics.angle_bins", 16)

	// DID defaults
	viper.SetDefault("did.network", "mainnet")
	viper.SetDefault("did.mode", "deterministic")
	viper.SetDefault("did.metadata_label", 1990)

	// Storage defaults
	viper.SetDefault("storage.backend", "inline")
	viper.SetDefault("storage.file.data_dir", "./data/helpers")
	viper.SetDefault("storage.ipfs.api_url", "localhost:5001")
	viper.SetDefault("storage.ipfs.timeout", "30s")
	viper.SetDefault("storage.database.host", "localhost")
	viper.SetDefault("storage.database.port", 5432)
	viper.SetDefault("storage.database.ssl_mode", "disable")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Biometrics.GridSize <= 0 {
		return fmt.Errorf("biometrics.grid_size must be positive")
	}
	if config.Biometrics.AngleBins == 0 {
		return fmt.Errorf("biometrics.angle_bins must be positive")
	}
	if config.DID.Network == "" {
		return fmt.Errorf("did.network is required")
	}
	switch config.DID.Mode {
	case "deterministic", "legacy":
	default:
		return fmt.Errorf("did.mode must be \"deterministic\" or \"legacy\", got %q", config.DID.Mode)
	}
	switch config.Storage.Backend {
	case "inline", "file", "ipfs", "postgres":
	default:
		return fmt.Errorf("unknown storage.backend %q", config.Storage.Backend)
	}
	if config.Storage.Backend == "postgres" && config.Storage.Database.Host == "" {
		return fmt.Errorf("storage.database.host is required for the postgres backend")
	}
	if config.Auth.Enabled && config.Auth.JWKSURL == "" {
		return fmt.Errorf("auth.jwks_url is required when auth is enabled")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}
