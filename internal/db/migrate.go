package db

import (
	"context" // Migration context
	"errors"  // Error matching
	"fmt"     // Error wrapping
	"time"    // Connect retry interval

	"banker_api/internal/auth"           // Banker app seeding
	"banker_api/internal/config"         // Connection settings
	"banker_api/internal/domain"         // Error kinds
	"banker_api/internal/store/sqlstore" // Records table

	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/driver/mysql"       // MySQL driver for GORM
	"gorm.io/driver/sqlite"      // SQLite driver for GORM
	"gorm.io/gorm"               // GORM ORM library
	"gorm.io/gorm/logger"        // GORM logger levels
)

// connectRetryInterval is the pause between connection attempts
const connectRetryInterval = 2 * time.Second

// Open connects to the database selected by cfg.DBDriver, retrying while the
// database is not yet reachable, and configures the connection pool
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN()) // Production database
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath) // Local database file
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
	level := logger.Info // Verbose SQL logs in development
	if cfg.IsProd {
		level = logger.Warn // Only slow queries and errors in production
	}
	gormConfig := &gorm.Config{
		SkipDefaultTransaction: true, // Every write is a single statement
		TranslateError:         true, // Unique violations become gorm.ErrDuplicatedKey
		Logger:                 logger.Default.LogMode(level),
	}

	attempts := max(cfg.DBPool.ConnectRetries, 1)
	var (
		gdb *gorm.DB
		err error
	)
	for i := 0; i < attempts; i++ {
		gdb, err = gorm.Open(dialector, gormConfig)
		if err == nil {
			// Ping to ensure the connection is actually alive
			if err = Ping(context.Background(), gdb); err == nil {
				break
			}
		}
		if i < attempts-1 {
			logrus.WithFields(logrus.Fields{
				"driver":  cfg.DBDriver, // Database driver
				"attempt": i + 1,        // Failed attempt
				"error":   err.Error(),  // Connection error
			}).Warn("Database not reachable, retrying")
			time.Sleep(connectRetryInterval)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s after %d attempts: %w", cfg.DBDriver, attempts, err)
	}

	sqlDB, err := gdb.DB() // Underlying pool
	if err != nil {
		return nil, err
	}
	if cfg.DBDriver == "sqlite" {
		sqlDB.SetMaxOpenConns(1) // SQLite allows a single writer
	} else {
		sqlDB.SetMaxOpenConns(cfg.DBPool.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBPool.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.DBPool.ConnMaxLifetime)
	return gdb, nil
}

// Migrate performs automatic migration for the database schema
func Migrate(ctx context.Context, gdb *gorm.DB) error {
	// AutoMigrate will create the records table, its columns and indexes
	if err := sqlstore.New(gdb).Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}

// SeedBanker registers the banker app if it does not exist yet
func SeedBanker(ctx context.Context, apps *auth.AppStore, bankerID, secret string) error {
	if secret == "" {
		logrus.WithField("app_id", bankerID).Warn("No banker secret configured, banker app not seeded")
		return nil
	}
	_, err := apps.Find(ctx, bankerID)
	if err == nil {
		return nil // Already seeded
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, err := apps.Register(ctx, bankerID, secret, nil); err != nil {
		if _, ferr := apps.Find(ctx, bankerID); ferr == nil {
			return nil // Seeded concurrently
		}
		return fmt.Errorf("seed banker app: %w", err)
	}
	logrus.WithField("app_id", bankerID).Info("Banker app seeded")
	return nil
}

// Ping checks that the database answers
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB() // Underlying connection pool
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
