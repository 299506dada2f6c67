package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"wallet-activity/internal/activity"
	"wallet-activity/internal/metrics"
	"wallet-activity/internal/version"
)

const (
	statusOK = "1"

	phraseNoTransactions = "no transactions found"
)

var rateLimitPhrases = []string{"rate limit", "max rate"}

// Timer lets tests observe backoff waits without sleeping.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

// ExplorerOptions parameterise the explorer fetcher.
type ExplorerOptions struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint
	RetryDelay time.Duration
	UserAgent  string
	Timer      Timer
}

// Explorer calls the explorer proxy and retries rate-limited responses with
// exponential backoff.
type Explorer struct {
	opts    ExplorerOptions
	logger  zerolog.Logger
	client  *http.Client
	metrics *metrics.Metrics
}

// NewExplorer constructs an explorer fetcher.
func NewExplorer(opts ExplorerOptions, logger zerolog.Logger, m *metrics.Metrics) *Explorer {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = version.UserAgent("walletactivity")
	}

	return &Explorer{
		opts:    opts,
		logger:  logger.With().Str("component", "explorer_fetcher").Logger(),
		client:  &http.Client{Timeout: opts.Timeout},
		metrics: m,
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Fetch returns the raw history for address. Rate-limited responses are
// retried MaxRetries times with delays RetryDelay·2^n; every other failure
// returns at once.
func (e *Explorer) Fetch(ctx context.Context, address string) ([]activity.RawTransaction, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrMissingInput
	}

	options := []retry.Option{
		retry.Attempts(e.opts.MaxRetries + 1),
		retry.Delay(e.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return isRateLimited(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			if n >= e.opts.MaxRetries {
				return
			}
			e.metrics.RecordRetry()
			e.logger.Info().Uint("attempt", n+1).
				Dur("delay", e.opts.RetryDelay<<n).
				Str("address", address).
				Msg("explorer rate limited, backing off")
		}),
	}
	if e.opts.Timer != nil {
		options = append(options, retry.WithTimer(e.opts.Timer))
	}

	records, err := retry.DoWithData(func() ([]activity.RawTransaction, error) {
		return e.fetchOnce(ctx, address)
	}, options...)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (e *Explorer) fetchOnce(ctx context.Context, address string) ([]activity.RawTransaction, error) {
	start := time.Now()

	endpoint, err := url.Parse(e.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %w", ErrUpstream, err)
	}
	query := endpoint.Query()
	query.Set("address", address)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", e.opts.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		e.metrics.RecordExplorerCall("error", time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: request: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		e.metrics.RecordExplorerCall("error", time.Since(start))
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}

	records, outcome, err := e.interpret(resp.StatusCode, payload)
	e.metrics.RecordExplorerCall(outcome, time.Since(start))
	return records, err
}

func (e *Explorer) interpret(status int, payload []byte) ([]activity.RawTransaction, string, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		e.logger.Warn().Int("http_status", status).Err(err).Msg("explorer returned undecodable body")
		return nil, "error", fmt.Errorf("%w: decode envelope: %w", ErrUpstream, err)
	}

	if env.Status == statusOK {
		return decodeResult(env.Result), "ok", nil
	}

	message := strings.ToLower(env.Message + " " + resultText(env.Result))

	switch {
	case status == http.StatusBadRequest:
		e.logger.Warn().Str("upstream_message", env.Message).Msg("explorer proxy rejected request")
		return nil, "error", ErrMissingInput
	case strings.Contains(message, phraseNoTransactions):
		return []activity.RawTransaction{}, "empty", nil
	case containsAny(message, rateLimitPhrases):
		e.metrics.RecordRateLimitHit()
		return nil, "rate_limited", ErrRateLimited
	case status >= http.StatusInternalServerError && strings.Contains(message, "not configured"):
		e.logger.Error().Str("upstream_message", env.Message).Msg("explorer proxy has no credentials")
		return nil, "error", ErrUpstreamUnavailable
	default:
		e.logger.Warn().Int("http_status", status).
			Str("upstream_status", env.Status).
			Str("upstream_message", env.Message).
			Msg("explorer returned an error status")
		return nil, "error", ErrUpstream
	}
}

// decodeResult treats anything other than a list of records as an empty list.
func decodeResult(raw json.RawMessage) []activity.RawTransaction {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []activity.RawTransaction{}
	}
	var records []activity.RawTransaction
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return []activity.RawTransaction{}
	}
	return records
}

func resultText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return ""
	}
	return text
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func isRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

var _ HistoryFetcher = (*Explorer)(nil)
