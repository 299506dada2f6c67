package reconcile

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"wallet-activity/internal/activity"
	"wallet-activity/internal/cache"
	"wallet-activity/internal/fetcher"
	"wallet-activity/internal/metrics"
)

// LoadError is returned when a load could not fetch the history. Message is
// the only text that may be shown to a user; Err keeps the typed cause.
type LoadError struct {
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Option customises an Engine.
type Option func(*Engine)

// WithCoalescing lets concurrent loads of the same address share one fetch.
// Without it every load that misses the cache issues its own network call.
func WithCoalescing() Option {
	return func(e *Engine) {
		e.group = &singleflight.Group{}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine coordinates cache lookup, fetch, classification and cache store.
// One Engine is shared by every view in the process.
type Engine struct {
	cache      *cache.Store
	fetcher    fetcher.HistoryFetcher
	classifier *activity.Classifier
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	group      *singleflight.Group
}

// NewEngine wires an engine from its collaborators.
func NewEngine(store *cache.Store, f fetcher.HistoryFetcher, classifier *activity.Classifier, logger zerolog.Logger, opts ...Option) *Engine {
	if store == nil {
		store = cache.New(cache.DefaultTTL)
	}
	e := &Engine{
		cache:      store,
		fetcher:    f,
		classifier: classifier,
		logger:     logger.With().Str("component", "reconcile").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Coalescing reports whether concurrent loads share fetches.
func (e *Engine) Coalescing() bool {
	return e.group != nil
}

// Load returns the classified history of address. Unless force is set, a
// fresh cache entry is returned without touching the network.
func (e *Engine) Load(ctx context.Context, address string, force bool) ([]activity.ClassifiedTransaction, error) {
	key := cache.Key(address)
	if key == "" {
		return nil, &LoadError{Message: fetcher.UserMessage(fetcher.ErrMissingInput), Err: fetcher.ErrMissingInput}
	}

	if !force {
		records, hit := e.cache.Get(key)
		e.metrics.RecordCacheLookup(hit)
		if hit {
			e.logger.Debug().Str("address", key).Int("records", len(records)).Msg("cache hit")
			return records, nil
		}
	}

	if e.group == nil {
		return e.fetchAndStore(ctx, address, key)
	}

	v, err, shared := e.group.Do(key, func() (any, error) {
		return e.fetchAndStore(ctx, address, key)
	})
	if shared {
		e.logger.Debug().Str("address", key).Msg("joined in-flight load")
	}
	if err != nil {
		return nil, err
	}
	return v.([]activity.ClassifiedTransaction), nil
}

func (e *Engine) fetchAndStore(ctx context.Context, address, key string) ([]activity.ClassifiedTransaction, error) {
	raws, err := e.fetcher.Fetch(ctx, strings.TrimSpace(address))
	if err != nil {
		e.logger.Warn().Err(err).Str("address", key).Msg("history fetch failed")
		return nil, &LoadError{Message: fetcher.UserMessage(err), Err: err}
	}

	records := e.classifier.ClassifyAll(raws)
	e.cache.Put(key, records)

	e.logger.Debug().Str("address", key).
		Int("raw", len(raws)).
		Int("classified", len(records)).
		Msg("history loaded")
	return records, nil
}
