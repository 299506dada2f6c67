package fetcher

import (
	"context"
	"errors"

	"wallet-activity/internal/activity"
)

// HistoryFetcher retrieves the raw explorer history of one address.
type HistoryFetcher interface {
	Fetch(ctx context.Context, address string) ([]activity.RawTransaction, error)
}

var (
	// ErrMissingInput means the proxy was called without an address.
	ErrMissingInput = errors.New("explorer: missing address")
	// ErrUpstreamUnavailable means the proxy has no explorer credentials.
	ErrUpstreamUnavailable = errors.New("explorer: upstream unavailable")
	// ErrRateLimited means every retry hit the explorer rate limit.
	ErrRateLimited = errors.New("explorer: rate limited")
	// ErrUpstream covers every other non-ok explorer response.
	ErrUpstream = errors.New("explorer: upstream error")
)

const (
	// MsgRetryLater is shown when rate limiting outlasted the retries.
	MsgRetryLater = "Unable to load history right now. Please try again."
	// MsgUnavailable is shown for every other fetch failure.
	MsgUnavailable = "Unable to load transaction history"
)

// UserMessage maps any fetch error onto a fixed display string. Raw upstream
// text never leaves this package.
func UserMessage(err error) string {
	if errors.Is(err, ErrRateLimited) {
		return MsgRetryLater
	}
	return MsgUnavailable
}
