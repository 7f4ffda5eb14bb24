package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
)

const (
	// DefaultAPITimeout bounds a single request, including reading the body.
	DefaultAPITimeout = 30 * time.Second

	// maxErrorBody caps how much of a failed response body is kept for logs.
	maxErrorBody = 4 << 10
)

// HTTPRemoteAPI implements domain.RemoteAPI over net/http.
type HTTPRemoteAPI struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewHTTPRemoteAPI creates a remote API client with the given request timeout.
func NewHTTPRemoteAPI(timeout time.Duration, userAgent string, logger *zap.Logger) *HTTPRemoteAPI {
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	return NewHTTPRemoteAPIWithClient(&http.Client{Timeout: timeout}, userAgent, logger)
}

// NewHTTPRemoteAPIWithClient creates a remote API client around an existing http.Client (for testing).
func NewHTTPRemoteAPIWithClient(client *http.Client, userAgent string, logger *zap.Logger) *HTTPRemoteAPI {
	return &HTTPRemoteAPI{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Register posts the device public key to the clients endpoint.
func (a *HTTPRemoteAPI) Register(ctx context.Context, baseURL string, body domain.RegisterRequest) (*domain.RegisterResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode register request: %w", err)
	}

	var resp domain.RegisterResponse
	if err := a.do(ctx, http.MethodPost, baseURL+"clients", "", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListCommands fetches the commands available to this device.
func (a *HTTPRemoteAPI) ListCommands(ctx context.Context, baseURL, token string) ([]domain.RemoteCommand, error) {
	var commands []domain.RemoteCommand
	if err := a.do(ctx, http.MethodGet, baseURL+"commands", token, nil, &commands); err != nil {
		return nil, err
	}
	return commands, nil
}

// ExecuteCommand asks the server to run a command. The response body is ignored.
func (a *HTTPRemoteAPI) ExecuteCommand(ctx context.Context, baseURL, token string, number int) error {
	return a.do(ctx, http.MethodPost, baseURL+"commands/"+strconv.Itoa(number), token, nil, nil)
}

// do sends one request and decodes a JSON response into out when out is non-nil.
func (a *HTTPRemoteAPI) do(ctx context.Context, method, url, token string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &domain.NetworkError{URL: url, Err: err}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.String("request_id", requestID),
			zap.Error(err))
		return &domain.NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	a.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("url", url),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.HTTPError{URL: url, StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.NetworkError{URL: url, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", url, err)
	}
	return nil
}

var _ domain.RemoteAPI = (*HTTPRemoteAPI)(nil)
