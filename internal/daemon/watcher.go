package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
	"github.com/me2d/cmlsync/internal/state"
	"github.com/me2d/cmlsync/internal/usecase"
)

// WatcherConfig holds watcher configuration.
type WatcherConfig struct {
	DismissDelay      time.Duration // How long a finished call stays visible (default 10s)
	WifiCheckInterval time.Duration // How often to re-resolve the endpoint (default 30s)
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		DismissDelay:      10 * time.Second,
		WifiCheckInterval: 30 * time.Second,
	}
}

// Watcher observes the hub. It clears a finished call after the dismiss delay,
// forwards every snapshot to OnChange, and logs when the selected endpoint changes.
// It never mutates the aggregate state.
type Watcher struct {
	config   WatcherConfig
	hub      *state.Hub
	resolver *usecase.EndpointResolver
	logger   *zap.Logger

	// OnChange, if set, is called from the watcher goroutine for every snapshot.
	OnChange func(state.Snapshot)
}

// NewWatcher creates a new watcher. resolver may be nil to disable endpoint tracking.
func NewWatcher(config WatcherConfig, hub *state.Hub, resolver *usecase.EndpointResolver, logger *zap.Logger) *Watcher {
	return &Watcher{
		config:   config,
		hub:      hub,
		resolver: resolver,
		logger:   logger,
	}
}

// Run starts the watcher loop.
// This blocks until context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	updates, cancel := w.hub.Subscribe(8)
	defer cancel()

	w.logger.Info("watcher started",
		zap.Duration("dismiss_delay", w.config.DismissDelay))

	dismissTimer := time.NewTimer(w.config.DismissDelay)
	stopTimer(dismissTimer)
	var pendingSeq uint64
	pending := false

	wifiTicker := time.NewTicker(w.config.WifiCheckInterval)
	defer func() {
		dismissTimer.Stop()
		wifiTicker.Stop()
	}()

	lastEndpoint := w.checkEndpoint(ctx, "")

	// A call may have finished before we subscribed.
	if snap := w.hub.Snapshot(); snap.Call.Status.IsTerminal() {
		pendingSeq, pending = snap.CallSeq, true
		dismissTimer.Reset(w.config.DismissDelay)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return ctx.Err()

		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			if w.OnChange != nil {
				w.OnChange(snap)
			}
			stopTimer(dismissTimer)
			pending = false
			if snap.Call.Status.IsTerminal() {
				pendingSeq, pending = snap.CallSeq, true
				dismissTimer.Reset(w.config.DismissDelay)
			}

		case <-dismissTimer.C:
			if pending && w.hub.DismissCallIf(pendingSeq) {
				w.logger.Debug("call state auto-dismissed")
			}
			pending = false

		case <-wifiTicker.C:
			lastEndpoint = w.checkEndpoint(ctx, lastEndpoint)
		}
	}
}

// checkEndpoint resolves the endpoint for the current settings and logs changes.
func (w *Watcher) checkEndpoint(ctx context.Context, last string) string {
	if w.resolver == nil {
		return last
	}
	settings := w.hub.State().Settings
	if settings == (domain.Settings{}) {
		return last
	}
	endpoint := w.resolver.ResolveCurrent(ctx, settings)
	if endpoint != last {
		w.logger.Info("endpoint selected", zap.String("url", endpoint))
	}
	return endpoint
}

// stopTimer stops t and drains its channel so Reset is safe.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
