package esim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"reflect"
	"strings"
	"sync"
	"time"

	"esim_battle_cache/internal/app"
	"esim_battle_cache/internal/config"
	"esim_battle_cache/internal/metrics"

	"github.com/rs/zerolog/log"
)

// maxErrorBody caps how much of an error response is kept in HTTPStatusError
const maxErrorBody = 512

type Client struct {
	baseURL      string
	client       *http.Client
	retry        config.RetryConfig
	metrics      *metrics.SyncMetrics
	sleep        func(ctx context.Context, d time.Duration) error
	apiCallCount int64
	apiCallMutex sync.Mutex
}

// ClientOption customizes a Client
type ClientOption func(*Client)

// WithRetryConfig overrides the retry budget and the HTTP timeout
func WithRetryConfig(retry config.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = retry
		c.client.Timeout = retry.Timeout
	}
}

// WithMetrics records request outcomes on m
func WithMetrics(m *metrics.SyncMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a client for one game server, e.g. "https://alpha.e-sim.org"
func NewClient(baseURL string, opts ...ClientOption) *Client {
	retry := config.DefaultResilienceConfig.APIRequest
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: retry.Timeout,
			// Redirects are classified, never followed
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		retry: retry,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IncrementAPICall safely increments the API call counter
func (c *Client) IncrementAPICall() {
	c.apiCallMutex.Lock()
	c.apiCallCount++
	c.apiCallMutex.Unlock()
}

// GetAPICallCount returns the current API call count
func (c *Client) GetAPICallCount() int64 {
	c.apiCallMutex.Lock()
	defer c.apiCallMutex.Unlock()
	return c.apiCallCount
}

// ResetAPICallCount resets the API call counter to zero
func (c *Client) ResetAPICallCount() {
	c.apiCallMutex.Lock()
	c.apiCallCount = 0
	c.apiCallMutex.Unlock()
}

// FetchOption tunes a single FetchJSON call
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	immediate bool
	validate  func() error
	onRequest func()
}

// Immediate disables retries: the first failure is returned unchanged
func Immediate() FetchOption {
	return func(o *fetchOptions) {
		o.immediate = true
	}
}

// OnRequest calls fn once for every HTTP request that gets a response,
// retries included. It is how callers keep their own call tallies in step
// with GetAPICallCount.
func OnRequest(fn func()) FetchOption {
	return func(o *fetchOptions) {
		o.onRequest = fn
	}
}

// RequestHook returns the OnRequest callback carried by opts, or a no-op.
// Test doubles call it once per simulated request.
func RequestHook(opts ...FetchOption) func() {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.onRequest == nil {
		return func() {}
	}
	return o.onRequest
}

// withValidation runs validate after a successful decode. A validation
// failure counts as a malformed response and is retried like one.
func withValidation(validate func() error) FetchOption {
	return func(o *fetchOptions) {
		o.validate = validate
	}
}

// FetchJSON GETs rawURL and decodes the JSON body into out, retrying
// transient and malformed responses within the retry budget.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, out any, opts ...FetchOption) error {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	endpoint := endpointName(rawURL)
	attempts := c.retry.MaxAttempts
	if attempts < 1 || o.immediate {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.fetchOnce(ctx, rawURL, out, &o)
		if err == nil {
			c.metrics.RecordRequest(endpoint, metrics.OutcomeOK)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if o.immediate || !IsRetryable(err) {
			c.metrics.RecordRequest(endpoint, metrics.OutcomeFatal)
			return err
		}

		lastErr = err
		if attempt == attempts {
			break
		}
		c.metrics.RecordRequest(endpoint, metrics.OutcomeRetry)

		wait := c.retry.Backoff(attempt)
		log.Debug().
			Err(err).
			Str("url", rawURL).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Upstream request failed, retrying")

		c.metrics.RecordRetry(endpoint)
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}

	c.metrics.RecordRequest(endpoint, metrics.OutcomeExhausted)
	log.Warn().
		Err(lastErr).
		Str("url", rawURL).
		Int("attempts", attempts).
		Msg("Upstream request exhausted retries")

	return &ExhaustedRetriesError{URL: rawURL, Attempts: attempts, Err: lastErr}
}

// fetchOnce performs a single attempt and classifies its failure
func (c *Client) fetchOnce(ctx context.Context, rawURL string, out any, o *fetchOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	c.IncrementAPICall()
	if o.onRequest != nil {
		o.onRequest()
	}

	switch {
	case isRedirect(resp.StatusCode):
		return classifyRedirect(resp.Header.Get("Location"))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %w", ErrTransient, err)
	}

	if err := decodeFresh(body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if o.validate != nil {
		if err := o.validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}

	return nil
}

// GetBattle fetches the current snapshot of a battle
func (c *Client) GetBattle(ctx context.Context, battleID uint64, opts ...FetchOption) (*app.BattleResponse, error) {
	rawURL := fmt.Sprintf("%s/apiBattles.html?battleId=%d", c.baseURL, battleID)

	log.Debug().Uint64("battle_id", battleID).Msg("Fetching battle")

	var resp app.BattleResponse
	opts = append(opts, withValidation(func() error {
		return validateBattle(battleID, &resp)
	}))
	if err := c.FetchJSON(ctx, rawURL, &resp, opts...); err != nil {
		return nil, unavailable(err, battleID, 0)
	}

	log.Debug().
		Uint64("battle_id", resp.BattleID).
		Uint16("current_round", resp.CurrentRound).
		Uint8("attacker_score", resp.AttackerScore).
		Uint8("defender_score", resp.DefenderScore).
		Bool("frozen", resp.Frozen).
		Msg("Successfully fetched battle")

	return &resp, nil
}

// GetRoundFights fetches the hits of one round, newest first as upstream sends them
func (c *Client) GetRoundFights(ctx context.Context, battleID uint64, roundID uint16, opts ...FetchOption) ([]app.FightHit, error) {
	rawURL := fmt.Sprintf("%s/apiFights.html?battleId=%d&roundId=%d", c.baseURL, battleID, roundID)

	log.Debug().
		Uint64("battle_id", battleID).
		Uint16("round_id", roundID).
		Msg("Fetching round fights")

	var hits []app.FightHit
	opts = append(opts, withValidation(func() error {
		return validateHits(hits)
	}))
	if err := c.FetchJSON(ctx, rawURL, &hits, opts...); err != nil {
		return nil, unavailable(err, battleID, roundID)
	}

	log.Debug().
		Uint64("battle_id", battleID).
		Uint16("round_id", roundID).
		Int("hits", len(hits)).
		Msg("Successfully fetched round fights")

	return hits, nil
}

// decodeFresh unmarshals body into a zero value of out's element type and
// then replaces *out with it, so keys absent from body never keep values
// decoded by an earlier attempt into the same target.
func decodeFresh(body []byte, out any) error {
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", out)
	}

	fresh := reflect.New(target.Type().Elem())
	if err := json.Unmarshal(body, fresh.Interface()); err != nil {
		return err
	}
	target.Elem().Set(fresh.Elem())
	return nil
}

func validateBattle(battleID uint64, resp *app.BattleResponse) error {
	if resp.BattleID != battleID {
		return fmt.Errorf("expected battle %d, got %d", battleID, resp.BattleID)
	}
	if resp.AttackerScore > app.TerminalScore || resp.DefenderScore > app.TerminalScore {
		return fmt.Errorf("score %d:%d out of range", resp.AttackerScore, resp.DefenderScore)
	}
	if resp.AttackerScore == app.TerminalScore && resp.DefenderScore == app.TerminalScore {
		return fmt.Errorf("both sides at terminal score")
	}
	return nil
}

func validateHits(hits []app.FightHit) error {
	for i, hit := range hits {
		if hit.Weapon >= app.WeaponTiers {
			return fmt.Errorf("hit %d: weapon tier %d out of range", i, hit.Weapon)
		}
		if hit.CitizenID <= app.SentinelCitizenID {
			return fmt.Errorf("hit %d: invalid citizen id %d", i, hit.CitizenID)
		}
		if _, err := ParseHitTime(hit.Time); err != nil {
			return fmt.Errorf("hit %d: %w", i, err)
		}
	}
	return nil
}

// unavailable turns a malformed-body failure into a DataUnavailableError
// naming the battle and round. Other errors pass through.
func unavailable(err error, battleID uint64, roundID uint16) error {
	if IsMalformed(err) {
		return &DataUnavailableError{BattleID: battleID, RoundID: roundID, Err: err}
	}
	return err
}

// IsMalformed reports whether err stems from an undecodable or invalid body
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

func isRedirect(code int) bool {
	return code == http.StatusFound || code == http.StatusSeeOther || code == http.StatusTemporaryRedirect || code == http.StatusMovedPermanently || code == http.StatusPermanentRedirect
}

// classifyRedirect maps a redirect target to the error taxonomy
func classifyRedirect(location string) error {
	target := strings.ToLower(location)
	switch {
	case strings.Contains(target, "login"):
		return fmt.Errorf("%w: redirected to %q", ErrAuthRequired, location)
	case strings.Contains(target, "error"):
		return fmt.Errorf("%w: redirected to %q", ErrBlocked, location)
	default:
		return fmt.Errorf("%w: %w: redirected to %q", ErrTransient, ErrSoftBlocked, location)
	}
}

// endpointName returns the last path element of rawURL, used as a metric label
func endpointName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	return path.Base(u.Path)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
