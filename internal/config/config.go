// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Device   DeviceConfig   `mapstructure:"device"`
	Timeouts TimeoutConfig  `mapstructure:"timeouts"`
	Storage  StorageConfig  `mapstructure:"storage"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host" validate:"required"`
	Port         string        `mapstructure:"port" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// SerialConfig represents the wheel serial line settings
type SerialConfig struct {
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	StopBits    int           `mapstructure:"stop_bits"`
	Parity      string        `mapstructure:"parity"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// DeviceConfig represents connection behaviour at startup
type DeviceConfig struct {
	Port             string `mapstructure:"port"`
	AutoConnect      bool   `mapstructure:"auto_connect"`
	Simulate         bool   `mapstructure:"simulate"`
	DemoMode         bool   `mapstructure:"demo_mode"`
	SyncPolicy       string `mapstructure:"sync_policy"`
	TelemetryEnabled bool   `mapstructure:"telemetry_enabled"`
}

// TimeoutConfig holds per-command deadlines and protocol pacing
type TimeoutConfig struct {
	FieldWrite      time.Duration `mapstructure:"field_write"`
	Rotation        time.Duration `mapstructure:"rotation"`
	Center          time.Duration `mapstructure:"center"`
	BulkRead        time.Duration `mapstructure:"bulk_read"`
	Save            time.Duration `mapstructure:"save"`
	Info            time.Duration `mapstructure:"info"`
	Version         time.Duration `mapstructure:"version"`
	Attempts        int           `mapstructure:"attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	SuppressSettle  time.Duration `mapstructure:"suppress_settle"`
	RestoreSettle   time.Duration `mapstructure:"restore_settle"`
	ReloadAfterSave time.Duration `mapstructure:"reload_after_save"`
}

// StorageConfig locates the on-disk state
type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	ProfilesDir  string `mapstructure:"profiles_dir"`
	SnapshotsDir string `mapstructure:"snapshots_dir"`
	SettingsFile string `mapstructure:"settings_file"`
	BackupFile   string `mapstructure:"backup_file"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Load loads configuration from the default search paths and environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from an explicit file, or from the default
// search paths when path is empty. A missing config file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.ffb-control")
	}

	// Environment variable support
	v.SetEnvPrefix("FFB_CONTROL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Default returns the configuration built from defaults only
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls.enabled", false)

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 20)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 14)
	v.SetDefault("logging.compress", true)

	// Serial defaults (firmware runs 115200 8N1)
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.settle_delay", "150ms")

	// Device defaults
	v.SetDefault("device.port", "")
	v.SetDefault("device.auto_connect", false)
	v.SetDefault("device.simulate", false)
	v.SetDefault("device.demo_mode", false)
	v.SetDefault("device.sync_policy", "wheel")
	v.SetDefault("device.telemetry_enabled", true)

	// Timeout defaults
	v.SetDefault("timeouts.field_write", "1200ms")
	v.SetDefault("timeouts.rotation", "1500ms")
	v.SetDefault("timeouts.center", "1500ms")
	v.SetDefault("timeouts.bulk_read", "1600ms")
	v.SetDefault("timeouts.save", "1600ms")
	v.SetDefault("timeouts.info", "600ms")
	v.SetDefault("timeouts.version", "1200ms")
	v.SetDefault("timeouts.attempts", 2)
	v.SetDefault("timeouts.retry_delay", "120ms")
	v.SetDefault("timeouts.suppress_settle", "120ms")
	v.SetDefault("timeouts.restore_settle", "60ms")
	v.SetDefault("timeouts.reload_after_save", "120ms")

	// Storage defaults
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.profiles_dir", "./data/profiles")
	v.SetDefault("storage.snapshots_dir", "./data/snapshots")
	v.SetDefault("storage.settings_file", "./data/settings.json")
	v.SetDefault("storage.backup_file", "./data/settings-backup.json")

	// App defaults
	v.SetDefault("app.name", "ffb-control-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	if config.Timeouts.Attempts < 1 {
		return fmt.Errorf("timeouts.attempts must be at least 1")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	validPolicies := []string{"wheel", "profile"}
	if !contains(validPolicies, config.Device.SyncPolicy) {
		return fmt.Errorf("device.sync_policy must be one of: %v", validPolicies)
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}
