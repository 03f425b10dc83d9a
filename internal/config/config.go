package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables. Populated
// at startup by LoadConfig.
var (
	// WebPort is the listen port for the HTTP API.
	WebPort string

	// TwapPoints is the moving-average window for oracle price feeds,
	// in datapoints.
	TwapPoints uint64

	// OwnerAccount is the ledger account that administers the oracle,
	// protocols and controller.
	OwnerAccount string
	// TreasuryAccount receives collected pool shares and admin fees.
	TreasuryAccount string

	// PersistEvents toggles the postgres event journal. When false the
	// daemon keeps events in memory only.
	PersistEvents bool

	// Database connection parameters, used when PersistEvents is set.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. Database variables are only required when event
// persistence is enabled.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	WebPort = getEnvOr("WEB_PORT", "8080")

	TwapPoints, err = getEnvAsUint64Or("TWAP_POINTS", 180)
	if err != nil {
		return err
	}
	if TwapPoints == 0 {
		return errors.New("environment variable TWAP_POINTS must be positive")
	}

	OwnerAccount, err = getEnv("OWNER_ACCOUNT")
	if err != nil {
		return err
	}
	TreasuryAccount = getEnvOr("TREASURY_ACCOUNT", OwnerAccount)

	PersistEvents = getEnvOr("PERSIST_EVENTS", "false") == "true"
	if PersistEvents {
		DBHost = getEnvOr("DB_HOST", "localhost")
		DBPort, err = getEnvAsIntOr("DB_PORT", 5432)
		if err != nil {
			return err
		}
		DBUser, err = getEnv("DB_USER")
		if err != nil {
			return err
		}
		DBPassword = getEnvOr("DB_PASSWORD", "")
		DBName, err = getEnv("DB_NAME")
		if err != nil {
			return err
		}
		DBSSLMode = getEnvOr("DB_SSLMODE", "disable")
	}

	log.Debug().
		Str("WebPort", WebPort).
		Uint64("TwapPoints", TwapPoints).
		Bool("PersistEvents", PersistEvents).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable with a fallback.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsUint64Or retrieves an environment variable as a uint64 with a
// fallback. Returns error if set but invalid.
func getEnvAsUint64Or(key string, fallback uint64) (uint64, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsIntOr retrieves an environment variable as an int with a
// fallback. Returns error if set but invalid.
func getEnvAsIntOr(key string, fallback int) (int, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}
