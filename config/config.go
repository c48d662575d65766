package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"bytebuddy/internal/usage"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Server    ServerConfig    `json:"server" envPrefix:"SERVER_"`
	Auth      AuthConfig      `json:"auth" envPrefix:"AUTH_"`
	Database  DatabaseConfig  `json:"database" envPrefix:"DATABASE_"`
	Mongo     MongoConfig     `json:"mongo" envPrefix:"MONGO_"`
	Redis     RedisConfig     `json:"redis" envPrefix:"REDIS_"`
	Vault     VaultConfig     `json:"vault" envPrefix:"VAULT_"`
	Logging   LoggingConfig   `json:"logging" envPrefix:"LOG_"`
	Quota     QuotaConfig     `json:"quota" envPrefix:"QUOTA_"`
	RateLimit RateLimitConfig `json:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

type ServerConfig struct {
	Port            int    `json:"port" env:"PORT"`
	Host            string `json:"host" env:"HOST"`
	AllowedOrigins  string `json:"allowed_origins" env:"ALLOWED_ORIGINS"` // comma separated
	ReadTimeout     int    `json:"read_timeout" env:"READ_TIMEOUT"`       // Seconds
	WriteTimeout    int    `json:"write_timeout" env:"WRITE_TIMEOUT"`     // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Origins splits AllowedOrigins
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret         string        `json:"jwt_secret" env:"JWT_SECRET"`
	TokenDuration     time.Duration `json:"token_duration" env:"TOKEN_DURATION"`
	Issuer            string        `json:"issuer" env:"ISSUER"`
	BcryptCost        int           `json:"bcrypt_cost" env:"BCRYPT_COST"`
	MinPasswordLength int           `json:"min_password_length" env:"MIN_PASSWORD_LENGTH"`
}

// DatabaseConfig selects and configures the account store
type DatabaseConfig struct {
	Driver   string `json:"driver" env:"DRIVER"`
	Host     string `json:"host" env:"HOST"`
	Port     int    `json:"port" env:"PORT"`
	User     string `json:"user" env:"USER"`
	Password string `json:"password" env:"PASSWORD"`
	Name     string `json:"name" env:"NAME"`
	SSLMode  string `json:"ssl_mode" env:"SSL_MODE"`
	MaxConns int32  `json:"max_conns" env:"MAX_CONNS"`
}

// MongoConfig is used when Database.Driver is "mongo"
type MongoConfig struct {
	URI      string `json:"uri" env:"URI"`
	Database string `json:"database" env:"DATABASE"`
}

// RedisConfig holds Redis configuration for the principal cache
type RedisConfig struct {
	Enabled      bool          `json:"enabled" env:"ENABLED"`
	Address      string        `json:"address" env:"ADDRESS"`
	Password     string        `json:"password" env:"PASSWORD"`
	DB           int           `json:"db" env:"DB"`
	PoolSize     int           `json:"pool_size" env:"POOL_SIZE"`
	PrincipalTTL time.Duration `json:"principal_ttl" env:"PRINCIPAL_TTL"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled" env:"ENABLED"`
	Address    string `json:"address" env:"ADDR"`
	Token      string `json:"token" env:"TOKEN"`
	MountPath  string `json:"mount_path" env:"MOUNT_PATH"`   // KV v2 mount
	SecretPath string `json:"secret_path" env:"SECRET_PATH"` // path of the server secrets
}

type LoggingConfig struct {
	Level       string `json:"level" env:"LEVEL"`   // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output" env:"OUTPUT"` // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format" env:"JSON_FORMAT"`
	IncludeFile bool   `json:"include_file" env:"INCLUDE_FILE"`
}

// QuotaConfig adjusts the default quota table
type QuotaConfig struct {
	// Overrides is "tier.feature=limit,..."
	Overrides string `json:"overrides" env:"OVERRIDES"`
}

// RateLimitConfig bounds unauthenticated auth attempts per client IP
type RateLimitConfig struct {
	AuthRequests int           `json:"auth_requests" env:"AUTH_REQUESTS"`
	AuthWindow   time.Duration `json:"auth_window" env:"AUTH_WINDOW"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			Host:            "0.0.0.0",
			AllowedOrigins:  "http://localhost:3000",
			ReadTimeout:     15,
			WriteTimeout:    30,
			ShutdownTimeout: 30,
		},
		Auth: AuthConfig{
			TokenDuration:     30 * 24 * time.Hour,
			Issuer:            "bytebuddy",
			BcryptCost:        10,
			MinPasswordLength: 6,
		},
		Database: DatabaseConfig{
			Driver:   DriverMemory,
			Host:     "localhost",
			Port:     5432,
			User:     "bytebuddy",
			Name:     "bytebuddy",
			SSLMode:  "disable",
			MaxConns: 25,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "bytebuddy",
		},
		Redis: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			PrincipalTTL: 5 * time.Minute,
		},
		Vault: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "bytebuddy/server",
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		RateLimit: RateLimitConfig{
			AuthRequests: 20,
			AuthWindow:   time.Minute,
		},
	}
}

// Load reads config.json (or $BYTEBUDDY_CONFIG) over the defaults, then
// applies environment variables, which take precedence.
func Load() (*Config, error) {
	path := os.Getenv("BYTEBUDDY_CONFIG")
	if path == "" {
		path = "config.json"
	}
	return LoadFrom(path, nil)
}

// LoadFrom is Load with an explicit file and environment. A nil environ
// uses the process environment.
func LoadFrom(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if err := loadFromFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

func loadFromFile(filename string, cfg *Config) error {
	if filename == "" {
		return os.ErrNotExist
	}
	file, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := json.Unmarshal(file, cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

// Validate checks the settings the server cannot start without. The JWT
// secret may still be empty here when Vault is expected to supply it.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Auth.TokenDuration <= 0 {
		return errors.New("auth token duration must be positive")
	}
	if c.Auth.JWTSecret == "" && !c.Vault.Enabled {
		return errors.New("AUTH_JWT_SECRET is required when Vault is disabled")
	}
	if _, err := c.QuotaPolicy(); err != nil {
		return err
	}
	return nil
}

// QuotaPolicy builds the quota table with any configured overrides
func (c *Config) QuotaPolicy() (*usage.Policy, error) {
	overrides, err := usage.ParseOverrides(c.Quota.Overrides)
	if err != nil {
		return nil, fmt.Errorf("invalid quota overrides: %w", err)
	}
	return usage.DefaultPolicy().WithOverrides(overrides)
}

// PostgresDSN renders the PostgreSQL connection string
func (c *Config) PostgresDSN() string {
	d := c.Database
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}
