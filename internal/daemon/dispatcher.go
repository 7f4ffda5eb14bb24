// Package daemon runs operations in the background and keeps the call state tidy.
package daemon

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/me2d/cmlsync/internal/domain"
	"github.com/me2d/cmlsync/internal/state"
	"github.com/me2d/cmlsync/internal/usecase"
)

// Dispatcher submits CommandClient operations fire-and-forget onto a bounded
// worker pool. Outcomes are observed through the hub, never returned.
type Dispatcher struct {
	client *usecase.CommandClient
	hub    *state.Hub
	group  *errgroup.Group
	ctx    context.Context
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher running at most workers operations at once.
// Operations inherit ctx; canceling it aborts in-flight requests.
func NewDispatcher(ctx context.Context, client *usecase.CommandClient, hub *state.Hub, workers int, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	group := &errgroup.Group{}
	group.SetLimit(workers)
	return &Dispatcher{
		client: client,
		hub:    hub,
		group:  group,
		ctx:    ctx,
		logger: logger,
	}
}

// Register starts a registration with the current settings.
func (d *Dispatcher) Register() {
	d.submit(domain.OpRegister, func(ctx context.Context) {
		d.client.Register(ctx, d.hub.State().Settings)
	})
}

// FetchCommands starts a command-list refresh.
func (d *Dispatcher) FetchCommands() {
	d.submit(domain.OpFetchCommands, func(ctx context.Context) {
		s := d.hub.State()
		d.client.FetchCommands(ctx, s.Settings, s.PrivateKeyEncoded)
	})
}

// ExecuteCommand starts execution of command number.
func (d *Dispatcher) ExecuteCommand(number int) {
	d.submit(domain.OpExecuteCommand, func(ctx context.Context) {
		s := d.hub.State()
		d.client.ExecuteCommand(ctx, s.Settings, s.PrivateKeyEncoded, number)
	})
}

// Wait blocks until every submitted operation has finished.
// Operations never fail the group, so the dispatcher stays usable afterwards.
func (d *Dispatcher) Wait() error {
	return d.group.Wait()
}

// submit blocks only while the pool is full. A panicking operation is
// reported as an ERROR call state instead of crashing the process.
func (d *Dispatcher) submit(op string, fn func(ctx context.Context)) {
	d.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("operation panicked",
					zap.String("operation", op),
					zap.Any("panic", r))
				d.hub.FailCall(op, fmt.Sprintf("%s failed unexpectedly", op))
			}
		}()
		fn(d.ctx)
		return nil
	})
}
