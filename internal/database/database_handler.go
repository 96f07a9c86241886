package database

import (
	"errors"
	"fmt"
	"time"

	"warnlist/internal/domain"
	"warnlist/internal/support"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB *gorm.DB

	ErrNotInitialised = errors.New("database not initialised")
)

type Config struct {
	Dialector  gorm.Dialector
	Logger     logger.Interface
	Migrations []any
}

type Option func(*Config)

// SetupDB opens the warninglist database and migrates its models. Without
// options it connects to Postgres using the DB_* environment variables.
func SetupDB(opts ...Option) (*gorm.DB, error) {
	cfg := Config{Logger: silentLogger(), Migrations: DefaultMigrations()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Dialector == nil {
		cfg.Dialector = postgres.Open(buildDSN())
	}

	db, err := gorm.Open(cfg.Dialector, &gorm.Config{Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("database: open connection: %w", err)
	}
	if err := readPoolSettings().apply(db); err != nil {
		log.Warn("database: connection pool left at driver defaults", "error", err)
	}

	if len(cfg.Migrations) > 0 {
		if err := db.AutoMigrate(cfg.Migrations...); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
		log.Debug("Warninglist schema migrated", "models", len(cfg.Migrations))
	}

	DB = db
	return db, nil
}

func WithDialector(d gorm.Dialector) Option {
	return func(cfg *Config) { cfg.Dialector = d }
}

func WithLogger(l logger.Interface) Option {
	return func(cfg *Config) { cfg.Logger = l }
}

// WithMigrations replaces the migrated models. No models disables migration.
func WithMigrations(models ...any) Option {
	return func(cfg *Config) { cfg.Migrations = append([]any(nil), models...) }
}

// DefaultMigrations lists every model owned by the warninglist store.
func DefaultMigrations() []any {
	return []any{
		domain.Warninglist{},
		domain.WarninglistEntry{},
		domain.WarninglistType{},
	}
}

func buildDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		support.GetEnv("DB_HOST", "localhost"),
		support.GetEnv("DB_PORT", "5432"),
		support.GetEnv("DB_USERNAME", "admin"),
		support.GetEnv("DB_PASSWORD", "admin"),
		support.GetEnv("DB_NAME", "warnlist"),
	)
}

func silentLogger() logger.Interface {
	return logger.New(log.Default(), logger.Config{LogLevel: logger.Silent})
}

// poolSettings bounds the connections held while imports and lookups overlap.
type poolSettings struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

func readPoolSettings() poolSettings {
	ps := poolSettings{
		maxOpen:     support.GetEnvInt("DB_MAX_OPEN_CONNS", 16),
		maxLifetime: time.Duration(support.GetEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		maxIdleTime: time.Duration(support.GetEnvInt("DB_CONN_MAX_IDLE_TIME", 60)) * time.Second,
	}
	ps.maxIdle = support.GetEnvInt("DB_MAX_IDLE_CONNS", ps.maxOpen)
	if ps.maxOpen > 0 && ps.maxIdle > ps.maxOpen {
		ps.maxIdle = ps.maxOpen
	}
	return ps
}

func (ps poolSettings) apply(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if ps.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(ps.maxOpen)
	}
	if ps.maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(ps.maxIdle)
	}
	if ps.maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(ps.maxLifetime)
	}
	if ps.maxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(ps.maxIdleTime)
	}
	return nil
}
