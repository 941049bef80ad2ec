package sync

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/dukkanapp/syncengine/internal/cache"
	apperrors "github.com/dukkanapp/syncengine/pkg/errors"
	"github.com/dukkanapp/syncengine/pkg/logger"
	"github.com/dukkanapp/syncengine/pkg/metrics"
)

// actionTables maps each save action to the remote table it writes. Queued
// operations that recorded an explicit table name take precedence.
var actionTables = map[Action]string{
	ActionSaveSale:            "sales",
	ActionSavePurchase:        "purchases",
	ActionSaveCustomer:        "customers",
	ActionSaveSupplier:        "suppliers",
	ActionSaveVoucher:         "vouchers",
	ActionSaveExpense:         "expenses",
	ActionSaveCategory:        "categories",
	ActionReturnSale:          "sale_returns",
	ActionReturnPurchase:      "purchase_returns",
	ActionUpdateSettings:      "settings",
	ActionSaveWaste:           "waste_records",
	ActionSaveOpeningBalance:  "opening_balances",
	ActionSaveExpenseTemplate: "expense_templates",
	ActionSaveNotification:    "notifications",
}

// Engine groups the sync components behind one facade: cached reads through
// the Orchestrator, writes through the Writer, and queue replay through the
// Processor. The host application owns connectivity signalling and calls
// ProcessOfflineQueue when it believes the network is back.
type Engine struct {
	Cache     *cache.Cache
	Store     Storage
	Reads     *Orchestrator
	Writes    *Writer
	Queue     *Queue
	Processor *Processor
	Recovery  *Recovery

	remote       RemoteStore
	identity     Identity
	connectivity Connectivity
	registry     *Registry
	readOpts     []OrchestratorOption
	onQueueCount func(int64)
	log          *zap.Logger
}

// EngineOption customises the Engine.
type EngineOption func(*Engine)

// OnQueueCountChange installs a callback invoked with the pending-operation
// count after every enqueue and every drain, so the host can surface a
// "N changes waiting to sync" indicator.
func OnQueueCountChange(fn func(count int64)) EngineOption {
	return func(e *Engine) { e.onQueueCount = fn }
}

// WithRegistry replaces the default replay registry.
func WithRegistry(r *Registry) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithReadOptions forwards options to the read orchestrator, wiring the
// configured retry budget and backoff into Fetch.
func WithReadOptions(opts ...OrchestratorOption) EngineOption {
	return func(e *Engine) {
		e.readOpts = append(e.readOpts, opts...)
	}
}

// NewEngine wires the sync components together. The default registry replays
// every catalogued action through the Writer's online path.
func NewEngine(c *cache.Cache, store Storage, remote RemoteStore, identity Identity, connectivity Connectivity, recovery *Recovery, opts ...EngineOption) *Engine {
	queue := NewQueue(store)
	writer := NewWriter(remote, c, identity, connectivity, queue)

	e := &Engine{
		Cache:        c,
		Store:        store,
		Writes:       writer,
		Queue:        queue,
		Processor:    NewProcessor(store),
		Recovery:     recovery,
		remote:       remote,
		identity:     identity,
		connectivity: connectivity,
		registry:     DefaultRegistry(writer),
		log:          logger.WithModule("sync-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.Reads = NewOrchestrator(c, store, connectivity, e.readOpts...)
	return e
}

// DefaultRegistry binds the full action catalogue to the writer. Save and
// return actions upsert into their table; deleteRecord removes the original
// row. Replay handlers always skip the queue so a failed replay stays in its
// existing entry.
func DefaultRegistry(w *Writer) *Registry {
	registry := NewRegistry()

	for action, table := range actionTables {
		action, table := action, table
		_ = registry.Register(action, func(ctx context.Context, op QueuedOp) error {
			target := op.TableName
			if target == "" {
				target = table
			}
			_, err := w.Upsert(ctx, target, op.Payload, op.Action, WriteOptions{SkipQueue: true})
			return err
		})
	}

	_ = registry.Register(ActionDeleteRecord, func(ctx context.Context, op QueuedOp) error {
		id := op.OriginalID
		if id == "" {
			id, _ = op.Payload["id"].(string)
		}
		table := op.TableName
		if table == "" {
			table, _ = op.Payload["table_name"].(string)
		}
		if table == "" {
			return errors.New("deleteRecord: missing table name")
		}
		imageURL, _ := op.Payload["imageUrl"].(string)
		recordType, _ := op.Payload["record_type_for_image"].(string)
		return w.Delete(ctx, table, id, DeleteOptions{
			ImageURL:   imageURL,
			RecordType: recordType,
			SkipQueue:  true,
		})
	})

	return registry
}

// FetchTable resolves the read flow for one table: fresh cache entry first,
// then the remote store with retries, then the durable fallback. Like every
// read it degrades to an empty result rather than failing; the only error is
// a missing user identity.
func (e *Engine) FetchTable(ctx context.Context, table string, opts FetchOptions) (json.RawMessage, error) {
	userID, err := e.identity.CurrentUserID(ctx)
	if err != nil || userID == "" {
		return nil, apperrors.ErrSessionExpired
	}

	data := e.Reads.Fetch(ctx, table, func(ctx context.Context) (json.RawMessage, error) {
		return e.remote.Select(ctx, table, userID)
	}, opts)
	return data, nil
}

// DeleteRecord removes a record through the write path and refreshes the
// pending count, since an offline delete enqueues a replay operation.
func (e *Engine) DeleteRecord(ctx context.Context, table, id string, opts DeleteOptions) error {
	err := e.Writes.Delete(ctx, table, id, opts)
	e.RefreshQueueCount(ctx)
	return err
}

// ProcessOfflineQueue drains the current user's queued operations. Without a
// signed-in user or a network there is nothing useful to do, so both cases
// return an empty Stats rather than an error.
func (e *Engine) ProcessOfflineQueue(ctx context.Context) (Stats, error) {
	userID, err := e.identity.CurrentUserID(ctx)
	if err != nil || userID == "" {
		return Stats{}, nil
	}
	if !e.connectivity.Online() {
		return Stats{}, nil
	}

	stats, err := e.Processor.ProcessQueue(ctx, userID, e.registry)
	if err != nil {
		return stats, err
	}
	if stats.Applied > 0 {
		e.log.Info("offline queue drained",
			zap.Int("applied", stats.Applied),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped))
	}
	e.RefreshQueueCount(ctx)
	return stats, nil
}

// PendingCount returns the number of queued operations for the current user.
func (e *Engine) PendingCount(ctx context.Context) (int64, error) {
	userID, err := e.identity.CurrentUserID(ctx)
	if err != nil || userID == "" {
		return 0, nil
	}
	return e.Store.CountOperations(ctx, userID)
}

// RefreshQueueCount recounts pending operations, updates the queue-depth
// gauge and notifies the host's callback.
func (e *Engine) RefreshQueueCount(ctx context.Context) {
	count, err := e.PendingCount(ctx)
	if err != nil {
		e.log.Debug("failed to count pending operations", zap.Error(err))
		return
	}
	metrics.QueueDepth.Set(float64(count))
	if e.onQueueCount != nil {
		e.onQueueCount(count)
	}
}

// EnqueueWrite queues a mutation for the current user and refreshes the
// pending count. It is the engine-level entry point for hosts that decide
// offline handling themselves rather than going through Writes.
func (e *Engine) EnqueueWrite(ctx context.Context, action Action, table string, payload map[string]any) (map[string]any, error) {
	userID, err := e.identity.CurrentUserID(ctx)
	if err != nil || userID == "" {
		return nil, apperrors.ErrSessionExpired
	}
	optimistic, err := e.Queue.Enqueue(ctx, EnqueueInput{
		UserID:    userID,
		Action:    action,
		TableName: table,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	e.RefreshQueueCount(ctx)
	return optimistic, nil
}
