// Package gateway is the HTTP surface the rest of the admin console calls
// through. It attaches the current access token to every outbound request,
// recovers from expired-token failures via the refresh coordinator, and
// replays the original request exactly once with the fresh token.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/paystream/go-session-client/api"
	"github.com/paystream/go-session-client/tokenstore"
)

const offlineSignalTimeout = 2 * time.Second

// Authorizer blocks until a valid access token is available or refreshing is
// known to be impossible. Implemented by refresh.Coordinator.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// StatusError is a non-2xx backend response, carrying the decoded error
// envelope when the backend sent one.
type StatusError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *StatusError) Error() string {
	if e.Response.Error != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Response.Error)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// IsAuthError reports whether the response means the access token was
// rejected. Only these failures enter the refresh-and-replay path; every
// other class passes through to the caller untouched.
func (e *StatusError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Config holds the gateway's transport settings.
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	UserAgent   string
}

// Gateway issues requests against the billing platform backend on behalf of
// the console. All authenticated traffic goes through Send; login, refresh
// and other pre-auth calls go through SendPublic.
type Gateway struct {
	config Config
	client *http.Client
	store  tokenstore.Store
	logger zerolog.Logger

	lock             sync.Mutex
	authorizer       Authorizer
	onInvalidSession func()
}

// New creates a gateway. The refresh authorizer and the invalid-session
// callback are attached afterwards by the session controller, which owns
// both ends of that wiring.
func New(config Config, store tokenstore.Store, logger zerolog.Logger) (*Gateway, error) {
	if config.BaseURL == "" {
		return nil, errors.New("[gateway.New] BaseURL is required")
	}
	if store == nil {
		return nil, errors.New("[gateway.New] store is required")
	}
	timeout := config.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{
		config: config,
		client: &http.Client{Timeout: timeout},
		store:  store,
		logger: logger.With().Str("component", "gateway").Logger(),
	}, nil
}

// UseAuthorizer attaches the refresh coordinator consulted on authorization
// failures. Without one, authorization failures are terminal.
func (g *Gateway) UseAuthorizer(authorizer Authorizer) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.authorizer = authorizer
}

// OnInvalidSession registers the callback fired when a request fails
// authorization and the refresh exchange cannot recover it.
func (g *Gateway) OnInvalidSession(fn func()) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.onInvalidSession = fn
}

// Send issues an authenticated request. The current access token is attached
// as a bearer credential. A 401/403 response is routed through the refresh
// coordinator and the request is replayed exactly once with the new token; a
// second authorization failure is terminal. All other failures propagate
// unchanged from the first attempt.
func (g *Gateway) Send(ctx context.Context, method, path string, body, out any) error {
	payload, err := marshalBody(body)
	if err != nil {
		return err
	}

	err = g.attempt(ctx, method, path, payload, out, true)
	statusErr, ok := asStatusError(err)
	if !ok || !statusErr.IsAuthError() {
		return err
	}

	authorizer, onInvalid := g.callbacks()
	if authorizer == nil {
		return err
	}
	if authErr := authorizer.Authorize(ctx); authErr != nil {
		g.logger.Warn().Err(authErr).Str("path", path).Msg("session unrecoverable")
		if onInvalid != nil {
			onInvalid()
		}
		return err
	}

	g.logger.Debug().Str("path", path).Msg("replaying request with refreshed token")
	return g.attempt(ctx, method, path, payload, out, true)
}

// GetJSON is shorthand for an authenticated GET decoding a JSON response.
func (g *Gateway) GetJSON(ctx context.Context, path string, out any) error {
	return g.Send(ctx, http.MethodGet, path, nil, out)
}

// PostJSON is shorthand for an authenticated POST with a JSON body.
func (g *Gateway) PostJSON(ctx context.Context, path string, body, out any) error {
	return g.Send(ctx, http.MethodPost, path, body, out)
}

// SendPublic issues a request without a bearer credential and without the
// refresh-and-replay path. Used for login and the refresh exchange itself.
func (g *Gateway) SendPublic(ctx context.Context, method, path string, body, out any) error {
	payload, err := marshalBody(body)
	if err != nil {
		return err
	}
	return g.attempt(ctx, method, path, payload, out, false)
}

// ExchangeRefreshToken implements the refresh.Exchanger contract on top of
// the backend's refresh endpoint.
func (g *Gateway) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*api.RefreshResponse, error) {
	var response api.RefreshResponse
	if err := g.SendPublic(ctx, http.MethodPost, api.RouteAuthRefresh, api.RefreshRequest{RefreshToken: refreshToken}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// FireAndForget posts without blocking the caller or surfacing the result,
// the teardown analogue of a beacon. The request carries the current bearer
// credential and is bounded by a short timeout so it cannot delay shutdown.
func (g *Gateway) FireAndForget(path string, body any) {
	payload, err := marshalBody(body)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), offlineSignalTimeout)
		defer cancel()
		if err := g.attempt(ctx, http.MethodPost, path, payload, nil, true); err != nil {
			g.logger.Debug().Err(err).Str("path", path).Msg("fire-and-forget signal dropped")
		}
	}()
}

func (g *Gateway) callbacks() (Authorizer, func()) {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.authorizer, g.onInvalidSession
}

// attempt performs one request/response cycle.
func (g *Gateway) attempt(ctx context.Context, method, path string, payload []byte, out any, authorized bool) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	url := strings.TrimSuffix(g.config.BaseURL, "/") + path
	request, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return errors.Wrapf(err, "[gateway] build request %s %s", method, path)
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if g.config.UserAgent != "" {
		request.Header.Set("User-Agent", g.config.UserAgent)
	}
	if authorized {
		if state, err := g.store.Load(); err == nil && state.AccessToken != "" {
			request.Header.Set("Authorization", "Bearer "+state.AccessToken)
		}
	}

	response, err := g.client.Do(request)
	if err != nil {
		return errors.Wrapf(err, "[gateway] %s %s", method, path)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: response.StatusCode}
		_ = json.NewDecoder(response.Body).Decode(&statusErr.Response)
		return statusErr
	}

	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "[gateway] decode response %s %s", method, path)
		}
	}
	return nil
}

func marshalBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "[gateway] marshal request body")
	}
	return payload, nil
}

func asStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
