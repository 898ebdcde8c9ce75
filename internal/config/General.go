package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"
)

const (
	StoreBackendLevelDB  = "leveldb"
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// OwnerAddress is the bech32 address recorded as owner when the ledger is first initialised.
	OwnerAddress string
	// ManagementFeeBp is the fee recorded at initialisation, in basis points.
	ManagementFeeBp uint32
	// Bech32Prefix is the account address prefix.
	Bech32Prefix string

	// StoreBackend selects the ledger store: leveldb, postgres or memory.
	StoreBackend string
	// LevelDBPath is the directory of the leveldb store.
	LevelDBPath string

	// AVMMode is live, dry-run or off.
	AVMMode string
	// AVMLoopInterval is the time between AVM cycles.
	AVMLoopInterval time.Duration

	// AssetDecimals converts base units to display units for metrics.
	AssetDecimals int

	// LogLevel and LogFormat configure the global logger.
	LogLevel  string
	LogFormat string
	// LogFile, when set, receives a copy of the log output.
	LogFile string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// OWNER_ADDRESS is required; every other key has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Bech32Prefix = getEnvOrDefault("BECH32_PREFIX", sdk.Bech32MainPrefix)

	OwnerAddress, err = getEnv("OWNER_ADDRESS")
	if err != nil {
		return err
	}

	fee, err := getEnvAsUint64OrDefault("MANAGEMENT_FEE_BP", 0)
	if err != nil {
		return err
	}
	if fee > 10_000 {
		return fmt.Errorf("environment variable MANAGEMENT_FEE_BP must be at most 10000, got: %d", fee)
	}
	ManagementFeeBp = uint32(fee)

	StoreBackend = strings.ToLower(getEnvOrDefault("STORE_BACKEND", StoreBackendLevelDB))
	switch StoreBackend {
	case StoreBackendLevelDB, StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("environment variable STORE_BACKEND must be leveldb, postgres or memory, got: %s", StoreBackend)
	}
	LevelDBPath = expandHome(getEnvOrDefault("LEVELDB_PATH", "./data/ledger"))

	AVMMode = strings.ToLower(getEnvOrDefault("AVM_MODE", "dry-run"))
	AVMLoopInterval, err = getEnvAsDurationOrDefault("AVM_LOOP_INTERVAL", 10*time.Minute)
	if err != nil {
		return err
	}

	decimals, err := getEnvAsUint64OrDefault("ASSET_DECIMALS", 6)
	if err != nil {
		return err
	}
	if decimals > 18 {
		return fmt.Errorf("environment variable ASSET_DECIMALS must be at most 18, got: %d", decimals)
	}
	AssetDecimals = int(decimals)

	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")
	LogFile = expandHome(getEnvOrDefault("LOG_FILE", ""))

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	ApplyBech32Prefix(Bech32Prefix)
	if _, err := sdk.AccAddressFromBech32(OwnerAddress); err != nil {
		return fmt.Errorf("environment variable OWNER_ADDRESS is not a valid %s address: %w", Bech32Prefix, err)
	}

	log.Debug().
		Str("Owner", OwnerAddress).
		Str("StoreBackend", StoreBackend).
		Str("AVMMode", AVMMode).
		Dur("AVMLoopInterval", AVMLoopInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// ApplyBech32Prefix sets the account prefixes on the SDK's global address config.
func ApplyBech32Prefix(prefix string) {
	cfg := sdk.GetConfig()
	cfg.SetBech32PrefixForAccount(prefix, prefix+sdk.PrefixPublic)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func isSet(key string) bool {
	value, exists := os.LookupEnv(key)
	return exists && value != ""
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsUint64OrDefault(key string, def uint64) (uint64, error) {
	if !isSet(key) {
		return def, nil
	}
	return getEnvAsUint64(key)
}

// getEnvAsFloat64 retrieves an environment variable as a float64. Returns error if not set or invalid.
func getEnvAsFloat64(key string) (float64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid float64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an environment variable as a bool, falling back to def when unset.
func getEnvAsBool(key string, def bool) (bool, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return def, nil
	}
	if secs, err := strconv.ParseUint(valueStr, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil || d <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return d, nil
}
