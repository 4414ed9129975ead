package config

import (
	"fmt"     // Error formatting
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"strings" // Splitting list values
	"time"    // Durations

	"github.com/joho/godotenv" // For loading .env files
	"gopkg.in/yaml.v3"         // Optional config file

	"banker_api/internal/retry" // Retry policy
)

// Config holds the application configuration
type Config struct {
	AppPort    string        `yaml:"app_port"`      // Application port
	DBDriver   string        `yaml:"db_driver"`     // "mysql" or "sqlite"
	DBUser     string        `yaml:"db_user"`       // Database user
	DBPassword string        `yaml:"db_password"`   // Database password
	DBHost     string        `yaml:"db_host"`       // Database host
	DBPort     string        `yaml:"db_port"`       // Database port
	DBName     string        `yaml:"db_name"`       // Database name
	SQLitePath string        `yaml:"sqlite_path"`   // SQLite file when DBDriver is sqlite
	DBPool     DBPool        `yaml:"db_pool"`       // Connection pool and connect retries
	JWTSecret  string        `yaml:"jwt_secret"`    // JWT secret key
	RedisAddr  string        `yaml:"redis_addr"`    // Redis server address, empty disables the cache
	RedisPass  string        `yaml:"redis_pass"`    // Redis password
	RedisDB    int           `yaml:"redis_db"`      // Redis database number
	CacheTTL   time.Duration `yaml:"cache_ttl"`     // Balance cache lifetime
	KafkaAddrs []string      `yaml:"kafka_brokers"` // Kafka brokers, empty disables ledger events
	KafkaTopic string        `yaml:"kafka_topic"`   // Topic for ledger events
	BankerID   string        `yaml:"banker_id"`     // System account for give/fine/deposit
	BankerKey  string        `yaml:"banker_secret"` // Secret of the banker app, seeded by migrate
	Retry      retry.Policy  `yaml:"retry"`         // CAS retry budget
	OpTimeout  time.Duration `yaml:"op_timeout"`    // Deadline for each top-level operation
	IsProd     bool          `yaml:"is_prod"`       // Is production environment
}

// DBPool tunes the database connection pool
type DBPool struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`    // Maximum open connections
	MaxIdleConns    int           `yaml:"max_idle_conns"`    // Maximum idle connections
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"` // Maximum connection lifetime
	ConnectRetries  int           `yaml:"connect_retries"`   // Connection attempts at startup
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		AppPort:    "3001",      // Legacy default port
		DBDriver:   "mysql",     // Production database
		DBPort:     "3306",      // Default MySQL port
		SQLitePath: "banker.db", // Local database file
		DBPool: DBPool{
			MaxOpenConns:    25,               // Bounded pool
			MaxIdleConns:    5,                // Idle connections kept warm
			ConnMaxLifetime: 30 * time.Minute, // Recycle connections
			ConnectRetries:  10,               // Wait for the database on startup
		},
		CacheTTL:   30 * time.Second, // Short, mutations invalidate anyway
		KafkaTopic: "ledger_entries", // Ledger event topic
		Retry:      retry.Default(),  // CAS retry budget
		OpTimeout:  10 * time.Second, // Per request deadline
	}
}

// LoadConfig loads configuration from an optional YAML file (CONFIG_FILE)
// and then environment variables, which win.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays values from a YAML file
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path) // Read the whole file
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// loadEnv overlays values from environment variables that are set
func (c *Config) loadEnv() error {
	setString(&c.AppPort, "APP_PORT")
	setString(&c.DBDriver, "DB_DRIVER")
	setString(&c.DBUser, "DB_USER")
	setString(&c.DBPassword, "DB_PASSWORD")
	setString(&c.DBHost, "DB_HOST")
	setString(&c.DBPort, "DB_PORT")
	setString(&c.DBName, "DB_NAME")
	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPass, "REDIS_PASS")
	setString(&c.KafkaTopic, "KAFKA_TOPIC")
	setString(&c.BankerID, "BANKER_ID")
	setString(&c.BankerKey, "BANKER_SECRET")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaAddrs = splitList(v) // Comma separated broker list
	}
	if v := os.Getenv("IS_PROD"); v != "" {
		c.IsProd = v == "true" // Is production environment
	}

	// Numeric and duration values
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.RedisDB = n
	}
	for key, dst := range map[string]*int{
		"MAX_RETRIES":        &c.Retry.MaxRetries,
		"DB_MAX_OPEN_CONNS":  &c.DBPool.MaxOpenConns,
		"DB_MAX_IDLE_CONNS":  &c.DBPool.MaxIdleConns,
		"DB_CONNECT_RETRIES": &c.DBPool.ConnectRetries,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	for key, dst := range map[string]*time.Duration{
		"BASE_BACKOFF":         &c.Retry.BaseBackoff,
		"MAX_BACKOFF":          &c.Retry.MaxBackoff,
		"CACHE_TTL":            &c.CacheTTL,
		"OP_TIMEOUT":           &c.OpTimeout,
		"DB_CONN_MAX_LIFETIME": &c.DBPool.ConnMaxLifetime,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("db_driver must be mysql or sqlite, got %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.BankerID == "" {
		return fmt.Errorf("banker_id is required")
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("retry.max_retries must be at least 1")
	}
	if c.Retry.BaseBackoff < 0 || c.Retry.MaxBackoff < c.Retry.BaseBackoff {
		return fmt.Errorf("retry backoff must satisfy 0 <= base_backoff <= max_backoff")
	}
	return nil
}

// DSN builds the MySQL Data Source Name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
