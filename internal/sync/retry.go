package sync

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/dukkanapp/syncengine/internal/cache"
	apperrors "github.com/dukkanapp/syncengine/pkg/errors"
	"github.com/dukkanapp/syncengine/pkg/logger"
	"github.com/dukkanapp/syncengine/pkg/metrics"
)

const (
	// DefaultMaxRetries bounds the retry budget after the first attempt.
	DefaultMaxRetries = 3

	defaultBackoffBase = time.Second
)

// RemoteCall performs one attempt against the remote store.
type RemoteCall func(ctx context.Context) (json.RawMessage, error)

// FetchOptions tune a single Fetch.
type FetchOptions struct {
	// ForceFresh bypasses the freshness cache for this read.
	ForceFresh bool
	// MaxRetries overrides the orchestrator default when positive.
	MaxRetries int
}

// Orchestrator wraps remote reads with cache read-through, exponential
// backoff on transient failure, and fallback to durable data on exhaustion.
// Fetch never fails the caller: the worst case is an empty result.
type Orchestrator struct {
	cache        *cache.Cache
	store        Storage
	connectivity Connectivity

	maxRetries  int
	backoffBase time.Duration
	sleep       func(time.Duration)
	log         *zap.Logger
}

// OrchestratorOption customises the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxRetries overrides the default retry budget.
func WithMaxRetries(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBackoffBase overrides the first backoff delay.
func WithBackoffBase(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.backoffBase = d
		}
	}
}

// WithSleep overrides the delay function, primarily for testing.
func WithSleep(sleep func(time.Duration)) OrchestratorOption {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(c *cache.Cache, store Storage, connectivity Connectivity, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		cache:        c,
		store:        store,
		connectivity: connectivity,
		maxRetries:   DefaultMaxRetries,
		backoffBase:  defaultBackoffBase,
		sleep:        time.Sleep,
		log:          logger.WithModule("retry"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Fetch resolves a read for the given query key. Fresh cache entries are
// returned without a remote call. Otherwise the remote call is attempted up
// to maxRetries+1 times, with exponential backoff between transient
// failures; permanent failures stop immediately. On success the result is
// cached and persisted best-effort. On exhaustion the last durable value is
// served, or an empty JSON array so callers iterating the result never fail.
func (o *Orchestrator) Fetch(ctx context.Context, key string, call RemoteCall, opts FetchOptions) json.RawMessage {
	if !opts.ForceFresh {
		if data, ok := o.cache.Get(key); ok {
			return data
		}
	}

	retries := o.maxRetries
	if opts.MaxRetries > 0 {
		retries = opts.MaxRetries
	}

	for attempt := 0; attempt <= retries; attempt++ {
		data, err := call(ctx)
		if err == nil && data != nil {
			metrics.RemoteAttempts.WithLabelValues("success").Inc()
			o.cache.Set(key, data)
			if perr := o.store.PutData(ctx, key, data); perr != nil {
				// Persisting is an optimisation; it must never fail the read.
				o.log.Debug("failed to persist fetched data", zap.String("key", key), zap.Error(perr))
			}
			return data
		}

		if err == nil {
			// No error but no data either; try again without backing off.
			continue
		}

		transient := !o.connectivity.Online() || apperrors.IsTransient(err)
		if transient {
			metrics.RemoteAttempts.WithLabelValues("transient").Inc()
			if attempt < retries {
				o.sleep(o.backoffBase << attempt)
				continue
			}
		} else {
			metrics.RemoteAttempts.WithLabelValues("permanent").Inc()
		}
		break
	}

	metrics.DegradedReads.Inc()

	if data, found, err := o.store.GetData(ctx, key); err == nil && found {
		o.log.Info("serving last known data after remote failure", zap.String("key", key))
		return data
	}

	return json.RawMessage("[]")
}
