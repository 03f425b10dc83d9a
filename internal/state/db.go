package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create the event journal
// tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS price_observations (
			observation_id SERIAL PRIMARY KEY,
			index_id BIGINT NOT NULL,
			price NUMERIC(78, 0) NOT NULL,
			proof_hash TEXT,
			observed_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_price_observations_index ON price_observations(index_id, observed_at DESC);

		CREATE TABLE IF NOT EXISTS swap_events (
			swap_id SERIAL PRIMARY KEY,
			pool_id BIGINT NOT NULL,
			token_in VARCHAR(32) NOT NULL,
			token_out VARCHAR(32) NOT NULL,
			amount_in NUMERIC(78, 0) NOT NULL,
			amount_out NUMERIC(78, 0) NOT NULL,
			fee NUMERIC(78, 0) NOT NULL,
			admin_fee NUMERIC(78, 0) NOT NULL,
			recipient TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_swap_events_pool ON swap_events(pool_id, recorded_at DESC);

		CREATE TABLE IF NOT EXISTS liquidity_events (
			event_id SERIAL PRIMARY KEY,
			pool_id BIGINT NOT NULL,
			kind VARCHAR(16) NOT NULL,
			shares NUMERIC(78, 0) NOT NULL,
			primary_amount NUMERIC(78, 0) NOT NULL,
			complement_amount NUMERIC(78, 0) NOT NULL,
			recipient TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_liquidity_events_pool ON liquidity_events(pool_id, recorded_at DESC);

		CREATE TABLE IF NOT EXISTS system_events (
			event_id SERIAL PRIMARY KEY,
			kind VARCHAR(64) NOT NULL,
			payload JSONB NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_system_events_kind ON system_events(kind, recorded_at DESC);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
