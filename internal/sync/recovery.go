package sync

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dukkanapp/syncengine/internal/cache"
	"github.com/dukkanapp/syncengine/pkg/logger"
	"github.com/dukkanapp/syncengine/pkg/metrics"
)

// Recovery states.
const (
	StateNormal int32 = iota
	StateFaulted
)

const defaultSettleDelay = time.Second

// Reloader restarts the application after local state has been cleared. The
// daemon installs a process restart; tests install a no-op.
type Reloader func()

// Recovery is the last-resort controller for corrupted local state. Once
// tripped it stays faulted: a full reload through the Reloader is the only
// way back to normal operation, so half-cleared state is never served.
type Recovery struct {
	cache  *cache.Cache
	store  Storage
	reload Reloader

	state  atomic.Int32
	settle time.Duration
	sleep  func(time.Duration)
	log    *zap.Logger
}

// RecoveryOption customises the Recovery controller.
type RecoveryOption func(*Recovery)

// WithSettleDelay overrides the pause between a successful clear and the
// reload, giving the store time to flush.
func WithSettleDelay(d time.Duration) RecoveryOption {
	return func(r *Recovery) {
		if d >= 0 {
			r.settle = d
		}
	}
}

// WithRecoverySleep overrides the delay function, primarily for testing.
func WithRecoverySleep(sleep func(time.Duration)) RecoveryOption {
	return func(r *Recovery) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewRecovery constructs a Recovery controller.
func NewRecovery(c *cache.Cache, store Storage, reload Reloader, opts ...RecoveryOption) *Recovery {
	r := &Recovery{
		cache:  c,
		store:  store,
		reload: reload,
		settle: defaultSettleDelay,
		sleep:  time.Sleep,
		log:    logger.WithModule("recovery"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Faulted reports whether an unrecoverable error has been observed.
func (r *Recovery) Faulted() bool {
	return r.state.Load() == StateFaulted
}

// Trip records an unrecoverable error and moves the controller to the
// faulted state. Normal operation must not resume until Recover reloads.
func (r *Recovery) Trip(err error) {
	r.state.Store(StateFaulted)
	r.log.Error("unrecoverable error, entering faulted state", zap.Error(err))
}

// Recover wipes all local state and reloads. Cache, durable data, queued
// operations and preferences are all cleared together: partial state after a
// fault is worse than no state, since it may be the corruption that caused
// the fault. If clearing itself fails the reload still happens — a restart
// against intact-but-stale state beats staying wedged.
func (r *Recovery) Recover(ctx context.Context) {
	r.log.Info("clearing local state for recovery")

	r.cache.Purge()

	err := multierr.Append(
		r.store.ClearAll(ctx),
		r.store.ClearPreferences(ctx),
	)
	if err != nil {
		r.log.Error("failed to clear local state, reloading anyway", zap.Error(err))
		metrics.RecoveryRuns.WithLabelValues("reload_only").Inc()
		r.reload()
		return
	}

	metrics.RecoveryRuns.WithLabelValues("cleared").Inc()
	r.sleep(r.settle)
	r.reload()
}
