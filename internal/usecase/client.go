package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
	"github.com/me2d/cmlsync/internal/state"
)

// CommandClient runs the remote operations and reports their outcome only
// through the hub's call state; none of its operations return an error.
type CommandClient struct {
	api         domain.RemoteAPI
	credentials domain.CredentialManager
	resolver    *EndpointResolver
	history     *HistoryTracker
	hub         *state.Hub
	now         func() time.Time
	logger      *zap.Logger
}

// NewCommandClient wires a command client.
func NewCommandClient(
	api domain.RemoteAPI,
	credentials domain.CredentialManager,
	resolver *EndpointResolver,
	history *HistoryTracker,
	hub *state.Hub,
	logger *zap.Logger,
) *CommandClient {
	return &CommandClient{
		api:         api,
		credentials: credentials,
		resolver:    resolver,
		history:     history,
		hub:         hub,
		now:         time.Now,
		logger:      logger,
	}
}

// WithClock overrides the clock used for registration timestamps (for testing).
func (c *CommandClient) WithClock(now func() time.Time) *CommandClient {
	c.now = now
	return c
}

// Register generates a new key pair and registers its public key with the server.
// The credential is stored only if the server accepts it.
func (c *CommandClient) Register(ctx context.Context, settings domain.Settings) {
	const op = domain.OpRegister
	c.hub.BeginCall(op)
	c.logger.Info("starting register call")

	baseURL, err := c.baseURL(ctx, settings)
	if err != nil {
		c.fail(op, "Registration failed", err)
		return
	}

	cred, err := c.credentials.GenerateKeyPair()
	if err != nil {
		c.fail(op, "Registration failed", err)
		return
	}

	resp, err := c.api.Register(ctx, baseURL, domain.RegisterRequest{
		Key:     cred.PublicKeyPEM(),
		Message: settings.AccountID,
	})
	if err != nil {
		c.fail(op, "Registration failed", err)
		return
	}

	privateKey := cred.PrivateKeyBase64()
	registeredAt := c.now().UTC()
	err = c.hub.Update(ctx, func(s domain.AggregateState) domain.AggregateState {
		s.PrivateKeyEncoded = privateKey
		s.RegistrationTimestamp = &registeredAt
		return s
	})
	if err != nil {
		c.fail(op, "Registration failed", err)
		return
	}

	c.logger.Info("register successful")
	c.hub.SucceedCall(op, resp.Status)
}

// FetchCommands replaces the stored command list with the server's.
func (c *CommandClient) FetchCommands(ctx context.Context, settings domain.Settings, privateKeyEncoded string) {
	const op = domain.OpFetchCommands
	c.hub.BeginCall(op)

	baseURL, err := c.baseURL(ctx, settings)
	if err != nil {
		c.fail(op, "Fetching commands failed", err)
		return
	}
	token, err := c.credentials.SignAssertion(domain.SubjectCommands, privateKeyEncoded)
	if err != nil {
		c.fail(op, "Fetching commands failed", err)
		return
	}

	remote, err := c.api.ListCommands(ctx, baseURL, token)
	if err != nil {
		c.fail(op, "Fetching commands failed", err)
		return
	}

	commands := make([]domain.Command, 0, len(remote))
	for _, rc := range remote {
		commands = append(commands, domain.Command{Number: rc.Number, Name: rc.Description})
	}
	err = c.hub.Update(ctx, func(s domain.AggregateState) domain.AggregateState {
		s.Commands = commands
		return s
	})
	if err != nil {
		c.fail(op, "Fetching commands failed", err)
		return
	}

	c.logger.Info("commands fetched", zap.Int("count", len(commands)))
	c.hub.SucceedCall(op, fmt.Sprintf("Loaded %d commands", len(commands)))
}

// ExecuteCommand asks the server to run number. Only a successful execution is
// recorded in the history ledger.
func (c *CommandClient) ExecuteCommand(ctx context.Context, settings domain.Settings, privateKeyEncoded string, number int) {
	const op = domain.OpExecuteCommand
	c.hub.BeginCall(op)
	prefix := fmt.Sprintf("Command %d failed", number)

	baseURL, err := c.baseURL(ctx, settings)
	if err != nil {
		c.fail(op, prefix, err)
		return
	}
	token, err := c.credentials.SignAssertion(domain.SubjectExecuteCommand, privateKeyEncoded)
	if err != nil {
		c.fail(op, prefix, err)
		return
	}

	if err := c.api.ExecuteCommand(ctx, baseURL, token, number); err != nil {
		c.fail(op, prefix, err)
		return
	}

	err = c.hub.Update(ctx, func(s domain.AggregateState) domain.AggregateState {
		s.History = c.history.Record(number, s.History)
		return s
	})
	if err != nil {
		c.fail(op, fmt.Sprintf("Command %d executed but history was not saved", number), err)
		return
	}

	c.logger.Info("command executed", zap.Int("number", number))
	c.hub.SucceedCall(op, fmt.Sprintf("Command %d executed", number))
}

// baseURL resolves the endpoint and checks it is an absolute http(s) URL.
func (c *CommandClient) baseURL(ctx context.Context, settings domain.Settings) (string, error) {
	base := c.resolver.ResolveCurrent(ctx, settings)
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errNoEndpoint
	}
	c.logger.Debug("selected base URL", zap.String("url", base))
	return base, nil
}

var errNoEndpoint = errors.New("no valid server URL configured")

// fail converts err into an ERROR call state with a user-facing message.
func (c *CommandClient) fail(op, prefix string, err error) {
	msg := FailureMessage(prefix, err)
	c.logger.Warn("operation failed",
		zap.String("operation", op),
		zap.String("message", msg),
		zap.Error(err))
	c.hub.FailCall(op, msg)
}

// FailureMessage renders err for the user without internal detail such as URLs.
func FailureMessage(prefix string, err error) string {
	var httpErr *domain.HTTPError
	var netErr *domain.NetworkError
	var credErr *domain.CredentialError

	switch {
	case errors.As(err, &httpErr):
		return fmt.Sprintf("%s with HTTP %d", prefix, httpErr.StatusCode)
	case errors.As(err, &credErr):
		return fmt.Sprintf("%s: %s", prefix, credErr.Reason)
	case errors.As(err, &netErr):
		var urlErr *url.Error
		if errors.As(netErr.Err, &urlErr) {
			return fmt.Sprintf("%s: %v", prefix, urlErr.Err)
		}
		return fmt.Sprintf("%s: %v", prefix, netErr.Err)
	default:
		return fmt.Sprintf("%s: %v", prefix, err)
	}
}
