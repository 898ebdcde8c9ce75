package config

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the HTTP API.
	WebPort string

	// DBEnabled turns on the Postgres-backed journal, stats and cycle history. It defaults to
	// true when DB_HOST is set and is forced on by STORE_BACKEND=postgres.
	DBEnabled bool
	DBHost    string
	DBPort    int
	DBUser    string
	DBPass    string
	DBName    string
	DBSSLMode string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	DBHost = getEnvOrDefault("DB_HOST", "")
	DBEnabled, err = getEnvAsBool("DB_ENABLED", DBHost != "")
	if err != nil {
		return err
	}
	if StoreBackend == StoreBackendPostgres {
		DBEnabled = true
	}

	port, err := getEnvAsUint64OrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	if port == 0 || port > 65535 {
		return fmt.Errorf("environment variable DB_PORT must be a valid port, got: %d", port)
	}
	DBPort = int(port)
	DBUser = getEnvOrDefault("DB_USER", "postgres")
	DBPass = getEnvOrDefault("DB_PASSWORD", "")
	DBName = getEnvOrDefault("DB_NAME", "yieldvault")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	if DBEnabled && DBHost == "" {
		return fmt.Errorf("environment variable DB_HOST is required when the database is enabled")
	}

	log.Debug().
		Str("WebPort", WebPort).
		Bool("DBEnabled", DBEnabled).
		Str("DBHost", DBHost).
		Int("DBPort", DBPort).
		Str("DBName", DBName).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
