package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldvault/internal/avm"
	"github.com/elys-network/yieldvault/internal/config"
	"github.com/elys-network/yieldvault/internal/events"
	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/logger"
	"github.com/elys-network/yieldvault/internal/metrics"
	"github.com/elys-network/yieldvault/internal/state"
	"github.com/elys-network/yieldvault/internal/vault"
	"github.com/elys-network/yieldvault/internal/web"
)

var version = "dev"

// main is the entry point of the vault service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if config.LogFile != "" {
		logFile, err := logger.FileWriter(config.LogFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", config.LogFile).Msg("Failed to open log file")
		}
		defer logFile.Close()
		logger.Initialize(config.LogLevel, config.LogFormat, logFile)
	} else {
		logger.Initialize(config.LogLevel, config.LogFormat)
	}
	log.Info().Str("version", version).Msg("Yield vault starting...")

	if config.DBEnabled {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPass,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	} else {
		log.Warn().Msg("Database disabled: no journal, stats or cycle history will be recorded")
	}

	// --- 2. Ledger ---
	store, closeStore, err := openStore()
	if err != nil {
		log.Fatal().Err(err).Str("backend", config.StoreBackend).Msg("Failed to open ledger store")
	}
	defer closeStore()

	vaultMetrics := metrics.New(prometheus.DefaultRegisterer, config.AssetDecimals)
	sinks := ledger.MultiSink{events.NewLogSink(), vaultMetrics}

	var journal *state.Journal
	if config.DBEnabled {
		journal, err = state.NewJournal(state.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create event journal")
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}

	l, err := openLedger(store, sinks)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open vault ledger")
	}
	l.SetObserver(vaultMetrics)

	// --- 3. Scoring Parameters ---
	scoringParams, err := config.ScoringParametersFromEnv(config.DefaultScoringParameters)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scoring parameter override")
	}
	if config.DBEnabled {
		scoringParams, _, err = state.EnsureActiveScoringParameters(avm.DEFAULT_SCORING_CONFIG_NAME, scoringParams)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load active scoring parameters")
		}
	}
	log.Info().Msg("Scoring parameters loaded successfully.")

	// --- 4. AVM ---
	client, err := vault.NewLedgerClient(l)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ledger client")
	}
	mode, err := avm.ParseMode(config.AVMMode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid AVM_MODE")
	}
	if mode == avm.ModeLive {
		log.Warn().Msg("Initializing AVM in LIVE mode. Rebalance moves will be committed to the ledger.")
	}

	avmConfig := avm.Config{
		VaultManager:  client,
		ScoringParams: &scoringParams,
		ConfigName:    avm.DEFAULT_SCORING_CONFIG_NAME,
		ConfigVersion: avm.DEFAULT_SCORING_CONFIG_VERSION,
		Mode:          mode,
		Metrics:       vaultMetrics,
	}
	if config.DBEnabled {
		recorder, err := state.NewDBRecorder(avm.DEFAULT_SCORING_CONFIG_NAME)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create cycle recorder")
		}
		avmConfig.Recorder = recorder
	}

	avmInstance, err := avm.NewAVM(avmConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AVM instance")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go avmInstance.RunLoop(ctx, config.AVMLoopInterval)

	// --- 5. Web Server ---
	opts := web.Options{
		Port:       config.WebPort,
		Ledger:     l,
		DBEnabled:  config.DBEnabled,
		ConfigName: avm.DEFAULT_SCORING_CONFIG_NAME,
		Gatherer:   prometheus.DefaultGatherer,
		Version:    version,
	}
	if journal != nil {
		opts.History = journal
	}
	server := web.NewWebServer(opts).Server()
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vault API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
}

// openStore returns the configured ledger store and a function releasing it.
func openStore() (ledger.Store, func(), error) {
	switch config.StoreBackend {
	case config.StoreBackendMemory:
		log.Warn().Msg("Using in-memory ledger store, state is lost on exit")
		return state.NewMemStore(), func() {}, nil
	case config.StoreBackendPostgres:
		s, err := state.NewPostgresStore(state.DB)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		s, err := state.OpenLevelStore(config.LevelDBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close leveldb store")
			}
		}, nil
	}
}

// openLedger re-opens an initialised store, or initialises it with the configured owner.
func openLedger(store ledger.Store, sink ledger.EventSink) (*ledger.Ledger, error) {
	l, err := ledger.Open(store, sink)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, ledger.ErrNotInitialized) {
		return nil, err
	}

	owner, err := sdk.AccAddressFromBech32(config.OwnerAddress)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("owner", config.OwnerAddress).
		Uint32("managementFeeBp", config.ManagementFeeBp).
		Msg("Initialising new vault ledger")
	return ledger.Init(store, sink, ledger.NewSystemEnv(owner), config.ManagementFeeBp)
}
