// Package recordstore implements the HTTP client of the Aura Hub record store.
// It satisfies reconcile.RemoteStore, so a device-side reconciler can talk to
// a running server exactly as it talks to an in-process fake.
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aura-hub/aura-hub/internal/application/reconcile"
	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/checkin"
	"github.com/aura-hub/aura-hub/internal/domain/leaderboard"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/internal/domain/user"
	"github.com/aura-hub/aura-hub/pkg/circuitbreaker"
	"github.com/aura-hub/aura-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the record store client.
type ClientConfig struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// MaxAttempts includes the first attempt. Only transient failures are retried.
	MaxAttempts int

	// RequestsPerSecond and Burst shape outbound traffic. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		Timeout:           10 * time.Second,
		MaxAttempts:       3,
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the record store HTTP client.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	logger         *slog.Logger
	limiter        *rate.Limiter
	retrier        *retry.Retrier
	circuitBreaker *circuitbreaker.CircuitBreaker
}

var _ reconcile.RemoteStore = (*Client)(nil)

// NewClient creates a new record store client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	logger := config.Logger.With("component", "recordstore_client")

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	breaker := circuitbreaker.RecordStoreBreaker(shared.IsTransient, func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	})

	return &Client{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		httpClient:     httpClient,
		logger:         logger,
		limiter:        limiter,
		retrier:        retry.RecordStoreRetrier(config.MaxAttempts, shared.IsTransient),
		circuitBreaker: breaker,
	}
}

// State returns the circuit breaker state.
func (c *Client) State() circuitbreaker.State {
	return c.circuitBreaker.State()
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ListChallengesForUser fetches the user's challenges with participant edges.
func (c *Client) ListChallengesForUser(ctx context.Context, userID shared.UserID) ([]challenge.Membership, error) {
	var out []challenge.Membership
	path := fmt.Sprintf("/api/v1/users/%s/challenges", url.PathEscape(userID.String()))
	if err := c.doRequest(ctx, "ListChallengesForUser", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecordsByUser fetches all of the user's completion records.
func (c *Client) ListRecordsByUser(ctx context.Context, userID shared.UserID) ([]checkin.Record, error) {
	var out []checkin.Record
	path := fmt.Sprintf("/api/v1/users/%s/checks", url.PathEscape(userID.String()))
	if err := c.doRequest(ctx, "ListRecordsByUser", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecordsByChallenge fetches all completion records of the challenge.
func (c *Client) ListRecordsByChallenge(ctx context.Context, challengeID shared.ChallengeID) ([]checkin.Record, error) {
	var out []checkin.Record
	path := fmt.Sprintf("/api/v1/challenges/%s/checks", url.PathEscape(challengeID.String()))
	if err := c.doRequest(ctx, "ListRecordsByChallenge", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// UpsertUser registers the user or renames it when displayName is not blank.
func (c *Client) UpsertUser(ctx context.Context, userID shared.UserID, displayName string) (*user.User, error) {
	body := upsertUserRequest{UserID: userID, DisplayName: displayName}
	var out user.User
	if err := c.doRequest(ctx, "UpsertUser", http.MethodPost, "/api/v1/users", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertRecord writes the record by natural key and returns the stored one.
func (c *Client) UpsertRecord(ctx context.Context, rec checkin.Record) (*checkin.Record, error) {
	completed := rec.Completed
	body := recordCheckRequest{
		ID:          rec.ID,
		UserID:      rec.UserID,
		ChallengeID: rec.ChallengeID,
		Date:        rec.Date,
		Completed:   &completed,
	}
	var out recordCheckResponse
	if err := c.doRequest(ctx, "UpsertRecord", http.MethodPost, "/api/v1/checks", body, &out); err != nil {
		return nil, err
	}
	if out.Record == nil {
		return nil, shared.NewDomainError("sync", "UpsertRecord", shared.ErrServiceUnavailable, "empty record in response")
	}
	return out.Record, nil
}

// CreateChallenge creates a challenge; the server assigns id, invite code and creation time.
func (c *Client) CreateChallenge(ctx context.Context, p challenge.NewChallengeParams) (*challenge.Challenge, error) {
	body := createChallengeRequest{
		OwnerID:      p.OwnerID,
		Title:        p.Title,
		Description:  p.Description,
		DurationDays: p.DurationDays,
		IsPrivate:    p.IsPrivate,
		IsLongTerm:   p.IsLongTerm,
		PointsConfig: p.PointsConfig,
	}
	var out challenge.Challenge
	if err := c.doRequest(ctx, "CreateChallenge", http.MethodPost, "/api/v1/challenges", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinChallenge joins by invite code.
func (c *Client) JoinChallenge(ctx context.Context, code challenge.InviteCode, userID shared.UserID) (*challenge.Challenge, error) {
	body := joinChallengeRequest{InviteCode: code.String(), UserID: userID}
	var out joinChallengeResponse
	if err := c.doRequest(ctx, "JoinChallenge", http.MethodPost, "/api/v1/challenges/join", body, &out); err != nil {
		return nil, err
	}
	if out.Challenge == nil {
		return nil, shared.NewDomainError("sync", "JoinChallenge", shared.ErrServiceUnavailable, "empty challenge in response")
	}
	return out.Challenge, nil
}

// LeaveChallenge removes the user's participation.
func (c *Client) LeaveChallenge(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID) error {
	path := fmt.Sprintf("/api/v1/challenges/%s/participants/%s",
		url.PathEscape(challengeID.String()), url.PathEscape(userID.String()))
	return c.doRequest(ctx, "LeaveChallenge", http.MethodDelete, path, nil, nil)
}

// CompleteChallenge marks a long-term challenge completed. It returns the
// completion time and the completed record the server stored with it; the
// record is nil when the server does not send one.
func (c *Client) CompleteChallenge(ctx context.Context, challengeID shared.ChallengeID, userID shared.UserID) (time.Time, *checkin.Record, error) {
	path := fmt.Sprintf("/api/v1/challenges/%s/complete", url.PathEscape(challengeID.String()))
	var out completeChallengeResponse
	if err := c.doRequest(ctx, "CompleteChallenge", http.MethodPost, path, completeChallengeRequest{UserID: userID}, &out); err != nil {
		return time.Time{}, nil, err
	}
	return out.CompletedAt, out.Record, nil
}

// GetRanking returns the server-built ranking of a challenge, best first.
// Every participant is present, including those without records.
func (c *Client) GetRanking(ctx context.Context, challengeID shared.ChallengeID) ([]*leaderboard.Entry, error) {
	path := fmt.Sprintf("/api/v1/challenges/%s/ranking", url.PathEscape(challengeID.String()))
	var out rankingResponse
	if err := c.doRequest(ctx, "GetRanking", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest runs one logical call: retries wrap the breaker, the breaker
// wraps the limiter and the HTTP round trip.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = data
	}

	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return shared.WrapError("sync", op, shared.ErrRateLimited, "outbound limiter", err)
				}
			}
			return c.doSingleRequest(ctx, op, method, path, payload, result)
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return retry.Permanent(shared.WrapError("sync", op, shared.ErrServiceUnavailable, "record store unavailable", err))
		}
		return err
	})
	if err != nil {
		c.logger.Debug("record store call failed", "op", op, "error", err)
	}
	return err
}

// doSingleRequest performs one HTTP round trip and decodes the envelope.
func (c *Client) doSingleRequest(ctx context.Context, op, method, path string, payload []byte, result any) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return shared.WrapError("sync", op, shared.ErrTimeout, "request cancelled", err)
		}
		return shared.WrapError("sync", op, shared.ErrServiceUnavailable, "record store unreachable", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return shared.WrapError("sync", op, shared.ErrServiceUnavailable, "read response", err)
	}

	var envelope apiResponse
	decodeErr := json.Unmarshal(respBody, &envelope)

	if resp.StatusCode >= 400 {
		return statusError(op, resp.StatusCode, envelope.Error)
	}
	if decodeErr != nil {
		return shared.WrapError("sync", op, shared.ErrServiceUnavailable, "malformed response", decodeErr)
	}

	if result != nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return shared.WrapError("sync", op, shared.ErrServiceUnavailable, "malformed response data", err)
		}
	}
	return nil
}

// statusError maps an HTTP failure back onto the shared error kinds.
func statusError(op string, status int, apiErr *apiError) error {
	message := http.StatusText(status)
	var cause error
	if apiErr != nil && apiErr.Message != "" {
		message = apiErr.Message
		cause = apiErr
	}

	var kind error
	switch {
	case status == http.StatusBadRequest:
		kind = shared.ErrValidation
	case status == http.StatusNotFound:
		kind = shared.ErrNotFound
	case status == http.StatusConflict:
		kind = shared.ErrConflict
	case status == http.StatusTooManyRequests:
		kind = shared.ErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = shared.ErrTimeout
	case status < http.StatusInternalServerError:
		kind = shared.ErrValidation
	default:
		kind = shared.ErrServiceUnavailable
	}

	if cause != nil {
		return shared.WrapError("sync", op, kind, message, cause)
	}
	return shared.NewDomainError("sync", op, kind, message)
}
