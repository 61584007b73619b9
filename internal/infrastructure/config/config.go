package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for AccessGuard Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Intrusion IntrusionConfig `yaml:"intrusion"`
	Backup    BackupConfig    `yaml:"backup"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	TLS    MQTTTLSConfig    `yaml:"tls"`
	QoS    int              `yaml:"qos"`

	// ResponseQoS is used for replies published to devices.
	// Devices time out and retry on a lost reply, so 0 is the default.
	ResponseQoS int `yaml:"response_qos"`

	// Topic is the readings topic. Control messages arrive on Topic + "/control"
	// and every reply goes to "<inbound topic>/response".
	Topic string `yaml:"topic"`

	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig contains certificate paths for the broker connection.
// CAFile pins the broker CA; CertFile/KeyFile enable client certificate auth.
type MQTTTLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings for the admin API.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// IntrusionConfig tunes the rate heuristic of the intrusion detector.
type IntrusionConfig struct {
	// Window is the trailing period over which plain readings are counted.
	Window time.Duration `yaml:"window"`

	// Threshold is the reading count that must be exceeded to flag a card.
	Threshold int `yaml:"threshold"`
}

// BackupConfig contains snapshot, storage and retention settings.
type BackupConfig struct {
	// Dir is the local directory holding backup files.
	Dir string `yaml:"dir"`

	// Compress writes zstd-compressed files (.json.zst) instead of plain JSON.
	Compress bool `yaml:"compress"`

	// Storage selects where backup files go: "local" or "s3".
	Storage string `yaml:"storage"`

	S3        S3Config              `yaml:"s3"`
	Schedule  BackupScheduleConfig  `yaml:"schedule"`
	Retention BackupRetentionConfig `yaml:"retention"`

	// HandoffTimeout bounds how long a registry mutation waits for its
	// event-triggered backup to finish.
	HandoffTimeout time.Duration `yaml:"handoff_timeout"`

	// QueueSize is the capacity of the backup request queue.
	QueueSize int `yaml:"queue_size"`
}

// S3Config contains S3 (or compatible) settings for off-site backup files.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// BackupScheduleConfig contains the wall-clock triggers for scheduled backups.
type BackupScheduleConfig struct {
	DailyHour   int    `yaml:"daily_hour"`
	DailyMinute int    `yaml:"daily_minute"`
	WeeklyDay   string `yaml:"weekly_day"`
	MonthlyDay  int    `yaml:"monthly_day"`
}

// BackupRetentionConfig bounds how long or how many backups are kept per type.
type BackupRetentionConfig struct {
	DailyDays      int `yaml:"daily_days"`
	WeeklyWeeks    int `yaml:"weekly_weeks"`
	MonthlyMonths  int `yaml:"monthly_months"`
	CardChangeKeep int `yaml:"card_change_keep"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ACCESSGUARD_SECTION_KEY
// For example: ACCESSGUARD_DATABASE_PATH, ACCESSGUARD_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "AccessGuard",
		},
		Database: DatabaseConfig{
			Path:        "./data/accessguard.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     8883,
				TLS:      true,
				ClientID: "accessguard-core",
			},
			QoS:         1,
			ResponseQoS: 0,
			Topic:       "rfid/readings",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Intrusion: IntrusionConfig{
			Window:    5 * time.Minute,
			Threshold: 5,
		},
		Backup: BackupConfig{
			Dir:     "backups",
			Storage: StorageLocal,
			Schedule: BackupScheduleConfig{
				DailyHour:   2,
				DailyMinute: 0,
				WeeklyDay:   "sunday",
				MonthlyDay:  1,
			},
			Retention: BackupRetentionConfig{
				DailyDays:      7,
				WeeklyWeeks:    4,
				MonthlyMonths:  12,
				CardChangeKeep: 5,
			},
			HandoffTimeout: 5 * time.Second,
			QueueSize:      64,
		},
	}
}

// Backup storage kinds.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ACCESSGUARD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ACCESSGUARD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("ACCESSGUARD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ACCESSGUARD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ACCESSGUARD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("ACCESSGUARD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Always override the JWT secret in production.
	if v := os.Getenv("ACCESSGUARD_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("ACCESSGUARD_BACKUP_DIR"); v != "" {
		cfg.Backup.Dir = v
	}
	if v := os.Getenv("ACCESSGUARD_S3_ACCESS_KEY"); v != "" {
		cfg.Backup.S3.AccessKey = v
	}
	if v := os.Getenv("ACCESSGUARD_S3_SECRET_KEY"); v != "" {
		cfg.Backup.S3.SecretKey = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error { //nolint:gocognit,gocyclo // flat list of independent checks
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.ResponseQoS < 0 || c.MQTT.ResponseQoS > 2 {
		errs = append(errs, "mqtt.response_qos must be 0, 1, or 2")
	}
	if strings.TrimSpace(c.MQTT.Topic) == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if (c.MQTT.TLS.CertFile == "") != (c.MQTT.TLS.KeyFile == "") {
		errs = append(errs, "mqtt.tls.cert_file and mqtt.tls.key_file must be set together")
	}

	// API and its JWT secret. An admin surface that controls door access
	// must never run with a forgeable token.
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when the API is enabled (set ACCESSGUARD_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	// Intrusion heuristic
	if c.Intrusion.Window <= 0 {
		errs = append(errs, "intrusion.window must be positive")
	}
	if c.Intrusion.Threshold < 1 {
		errs = append(errs, "intrusion.threshold must be at least 1")
	}

	errs = append(errs, c.Backup.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate returns every problem in the backup section.
func (b BackupConfig) validate() []string {
	var errs []string

	switch b.Storage {
	case StorageLocal:
		if b.Dir == "" {
			errs = append(errs, "backup.dir is required for local storage")
		}
	case StorageS3:
		if b.S3.Bucket == "" {
			errs = append(errs, "backup.s3.bucket is required for s3 storage")
		}
	default:
		errs = append(errs, fmt.Sprintf("backup.storage must be %q or %q", StorageLocal, StorageS3))
	}

	s := b.Schedule
	if s.DailyHour < 0 || s.DailyHour > 23 {
		errs = append(errs, "backup.schedule.daily_hour must be between 0 and 23")
	}
	if s.DailyMinute < 0 || s.DailyMinute > 59 {
		errs = append(errs, "backup.schedule.daily_minute must be between 0 and 59")
	}
	if _, ok := ParseWeekday(s.WeeklyDay); !ok {
		errs = append(errs, fmt.Sprintf("backup.schedule.weekly_day %q is not a weekday name", s.WeeklyDay))
	}
	// Days beyond 28 would silently skip short months.
	if s.MonthlyDay < 1 || s.MonthlyDay > 28 {
		errs = append(errs, "backup.schedule.monthly_day must be between 1 and 28")
	}

	r := b.Retention
	if r.DailyDays < 1 || r.WeeklyWeeks < 1 || r.MonthlyMonths < 1 || r.CardChangeKeep < 1 {
		errs = append(errs, "backup.retention values must be positive")
	}

	if b.HandoffTimeout <= 0 {
		errs = append(errs, "backup.handoff_timeout must be positive")
	}
	if b.QueueSize < 1 {
		errs = append(errs, "backup.queue_size must be at least 1")
	}

	return errs
}

// ParseWeekday converts a weekday name ("monday", "Sun", ...) to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || (len(n) == 3 && strings.HasPrefix(full, n)) {
			return d, true
		}
	}
	return time.Sunday, false
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
