package stashbase

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config consolidates the settings for the collection store and its adapters.
type Config struct {
	Database DatabaseConfig `yaml:"database" json:"database"`
	Query    QueryConfig    `yaml:"query" json:"query"`
	Export   ExportConfig   `yaml:"export" json:"export"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	HTTP     HTTPConfig     `yaml:"http" json:"http"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"sslMode"`
	MaxConnections  int           `yaml:"max_connections" json:"maxConnections"`
	MinConnections  int           `yaml:"min_connections" json:"minConnections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"connMaxLifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"connMaxIdleTime"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	// UseIAMAuth generates the connection password as an AWS DSQL auth token
	// instead of using Password.
	UseIAMAuth bool   `yaml:"use_iam_auth" json:"useIAMAuth"`
	AWSRegion  string `yaml:"aws_region" json:"awsRegion"`
	// MetaTable is the reserved system table holding collection metadata.
	MetaTable string `yaml:"meta_table" json:"metaTable"`
}

// ConnString renders a postgres:// connection string from the config.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// QueryConfig contains collection query settings.
type QueryConfig struct {
	// DefaultLimit applies when a query supplies no limit.
	DefaultLimit int `yaml:"default_limit" json:"defaultLimit"`
	// MaxLimit caps the effective limit of any query.
	MaxLimit int `yaml:"max_limit" json:"maxLimit"`
}

// ExportConfig contains snapshot export settings.
type ExportConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	S3Bucket string `yaml:"s3_bucket" json:"s3Bucket"`
	S3Prefix string `yaml:"s3_prefix" json:"s3Prefix"`
	S3Region string `yaml:"s3_region" json:"s3Region"`
	// S3AccessKey/S3SecretKey override the ambient AWS credential chain,
	// for MinIO-style endpoints. Both must be set together.
	S3AccessKey string `yaml:"s3_access_key" json:"s3AccessKey"`
	S3SecretKey string `yaml:"s3_secret_key" json:"s3SecretKey"`
	// DuckDBPath is the working database for snapshot staging; empty means
	// in-memory.
	DuckDBPath string `yaml:"duckdb_path" json:"duckdbPath"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// HTTPConfig contains HTTP adapter settings.
type HTTPConfig struct {
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdownTimeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in zero-valued settings.
func (c *Config) ApplyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Database == "" {
		c.Database.Database = "stashbase"
	}
	if c.Database.Username == "" {
		c.Database.Username = "postgres"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConnections == 0 {
		c.Database.MaxConnections = 10
	}
	if c.Database.MinConnections == 0 {
		c.Database.MinConnections = 1
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.Database.Timeout == 0 {
		c.Database.Timeout = 30 * time.Second
	}
	if c.Database.MetaTable == "" {
		c.Database.MetaTable = "_collections_meta"
	}
	if c.Query.DefaultLimit == 0 {
		c.Query.DefaultLimit = 20
	}
	if c.Query.MaxLimit == 0 {
		c.Query.MaxLimit = 100
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks the configuration for fatal misconfiguration. Failures
// here are fatal at process start, never per-request.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return &ConfigError{Field: "database.host", Message: "must not be empty"}
	}
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.max_connections", Message: "must be greater than 0"}
	}
	if c.Database.UseIAMAuth && c.Database.AWSRegion == "" {
		return &ConfigError{Field: "database.aws_region", Message: "required when use_iam_auth is set"}
	}
	if c.Query.DefaultLimit <= 0 {
		return &ConfigError{Field: "query.default_limit", Message: "must be greater than 0"}
	}
	if c.Query.MaxLimit < c.Query.DefaultLimit {
		return &ConfigError{Field: "query.max_limit", Message: "must be greater than or equal to default_limit"}
	}
	if c.Export.Enabled && c.Export.S3Bucket == "" {
		return &ConfigError{Field: "export.s3_bucket", Message: "required when export is enabled"}
	}
	if (c.Export.S3AccessKey == "") != (c.Export.S3SecretKey == "") {
		return &ConfigError{Field: "export.s3_access_key", Message: "access key and secret key must be set together"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${VAR} references with environment values.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// LoadConfig reads a YAML configuration file, expands ${VAR} environment
// references, applies defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
