package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/me2d/cmlsync/internal/config"
	"github.com/me2d/cmlsync/internal/daemon"
	"github.com/me2d/cmlsync/internal/domain"
	"github.com/me2d/cmlsync/internal/infra"
	"github.com/me2d/cmlsync/internal/state"
	"github.com/me2d/cmlsync/internal/usecase"
)

// app holds the components constructed once per invocation and passed explicitly.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	records    *infra.EncryptedStore
	legacy     *infra.LegacyPrefs
	migrator   *usecase.LegacyMigrator
	history    *usecase.HistoryTracker
	resolver   *usecase.EndpointResolver
	hub        *state.Hub
	client     *usecase.CommandClient
	dispatcher *daemon.Dispatcher
}

// loadConfig resolves the data directory and config file from flags.
func loadConfig() (*config.Config, error) {
	dataDir := dataDirFlag
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	path := configFlag
	if path == "" {
		path = config.Path(dataDir)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if verboseFlag {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp wires every component. toFile selects the JSON file logger used by long-running commands.
func newApp(ctx context.Context, toFile bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := createLogger(cfg, toFile)

	records, err := infra.OpenStateStore(cfg.DataDir)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, records: records}

	// The legacy store only exists on devices upgraded from the previous app.
	legacyDir := filepath.Join(cfg.DataDir, infra.LegacyPrefsDir)
	if _, statErr := os.Stat(legacyDir); statErr == nil {
		a.legacy, err = infra.OpenLegacyPrefs(infra.LegacyPrefsOptions{Dir: legacyDir, Logger: logger})
		if err != nil {
			logger.Warn("legacy store unavailable, skipping migration", zap.Error(err))
		} else {
			a.migrator = usecase.NewLegacyMigrator(a.legacy, logger)
		}
	}

	store := usecase.NewPersistentStateStore(records, a.migrator, logger)
	a.hub = state.NewHub(ctx, store, logger)
	a.history = usecase.NewHistoryTracker()
	a.resolver = usecase.NewEndpointResolver(wifiObserver(cfg, logger), logger)

	api := infra.NewHTTPRemoteAPI(cfg.HTTPTimeout, "cmlsync/"+Version, logger)
	a.client = usecase.NewCommandClient(api, infra.NewRSACredentials(), a.resolver, a.history, a.hub, logger)
	a.dispatcher = daemon.NewDispatcher(ctx, a.client, a.hub, cfg.Workers, logger)
	return a, nil
}

// Close waits for in-flight operations and releases stores.
func (a *app) Close() {
	_ = a.dispatcher.Wait()
	if a.legacy != nil {
		if err := a.legacy.Close(); err != nil {
			a.logger.Warn("failed to close legacy store", zap.Error(err))
		}
	}
	if err := a.records.Close(); err != nil {
		a.logger.Warn("failed to close state store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// wifiObserver honors --wifi / --no-wifi before falling back to the system.
func wifiObserver(cfg *config.Config, logger *zap.Logger) domain.WifiObserver {
	switch {
	case noWifiFlag:
		return infra.StaticWifiObserver{}
	case wifiFlag != "":
		return infra.StaticWifiObserver{Name: wifiFlag}
	default:
		return infra.NewSystemWifiObserver(cfg.SSIDCommand, logger)
	}
}

func createLogger(cfg *config.Config, toFile bool) *zap.Logger {
	level, _ := cfg.Level()

	if !toFile || cfg.LogFile == "" {
		zc := zap.NewDevelopmentConfig()
		if !verboseFlag && level < zapcore.WarnLevel {
			level = zapcore.WarnLevel
		}
		zc.Level = zap.NewAtomicLevelAt(level)
		logger, err := zc.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{cfg.LogFile}
	zc.ErrorOutputPaths = []string{cfg.LogFile}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// runOperation submits one operation, waits for it, and reports the terminal call state.
func (a *app) runOperation(submit func()) error {
	submit()
	if err := a.dispatcher.Wait(); err != nil {
		return err
	}
	call := a.hub.Call()
	printCall(call)
	if call.Status == domain.CallError {
		return fmt.Errorf("%s did not succeed", call.Operation)
	}
	return nil
}

func printCall(call domain.CallState) {
	if call.Status == domain.CallIdle {
		fmt.Println("Status: IDLE")
		return
	}
	fmt.Printf("[%s] %s: %s\n", call.Status, call.Operation, call.Message)
}
