package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dukkanapp/syncengine/internal/models"
	"github.com/dukkanapp/syncengine/pkg/logger"
	"github.com/dukkanapp/syncengine/pkg/metrics"
)

// QueuedOp is the decoded form of a pending operation handed to handlers.
// SkipQueue is always true during replay: handlers must write through the
// online path and never re-enqueue into the queue being drained.
type QueuedOp struct {
	ID         string
	UserID     string
	Action     Action
	TempID     string
	OriginalID string
	TableName  string
	Payload    map[string]any
	CreatedAt  time.Time
	SkipQueue  bool
}

// Handler applies one queued operation against the live write path. Handlers
// must be idempotent: replay guarantees at-least-once invocation.
type Handler func(ctx context.Context, op QueuedOp) error

// Registry maps actions to their replay handlers.
type Registry struct {
	handlers map[Action]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Action]Handler)}
}

// Register binds a handler to an action, replacing any previous binding.
func (r *Registry) Register(action Action, h Handler) error {
	if !action.Known() {
		return errors.New("sync registry: unknown action " + string(action))
	}
	if h == nil {
		return errors.New("sync registry: handler is required")
	}
	r.handlers[action] = h
	return nil
}

// Resolve looks up the handler for an action.
func (r *Registry) Resolve(action Action) (Handler, bool) {
	h, ok := r.handlers[action]
	return h, ok
}

// Stats summarises one drain pass.
type Stats struct {
	Applied int
	Failed  int
	Skipped int
}

// Processor drains the offline queue once connectivity is confirmed.
type Processor struct {
	store   Storage
	running atomic.Bool
	log     *zap.Logger
}

// NewProcessor constructs a Processor over the durable store.
func NewProcessor(store Storage) *Processor {
	return &Processor{
		store: store,
		log:   logger.WithModule("sync-processor"),
	}
}

// ProcessQueue replays the user's queued operations in enqueue order. Each
// operation is deleted only after its handler confirms success; failures are
// logged and left in place for a later pass without blocking the rest of the
// queue. Only one drain runs at a time — a concurrent call returns
// immediately, which keeps replay effects from being duplicated.
func (p *Processor) ProcessQueue(ctx context.Context, userID string, registry *Registry) (Stats, error) {
	if userID == "" {
		return Stats{}, errors.New("sync processor: user id is required")
	}
	if registry == nil {
		return Stats{}, errors.New("sync processor: registry is required")
	}

	if !p.running.CompareAndSwap(false, true) {
		p.log.Debug("queue drain already in progress")
		return Stats{}, nil
	}
	defer p.running.Store(false)

	ops, err := p.store.ListOperations(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, op := range ops {
		queued, decodeErr := decodeOperation(op)
		if decodeErr != nil {
			p.log.Error("skipping undecodable queued operation",
				zap.String("op_id", op.ID), zap.Error(decodeErr))
			metrics.QueueReplays.WithLabelValues("skipped").Inc()
			stats.Skipped++
			continue
		}

		handler, ok := registry.Resolve(queued.Action)
		if !ok {
			p.log.Warn("no handler registered for queued action",
				zap.String("op_id", op.ID), zap.String("action", string(queued.Action)))
			metrics.QueueReplays.WithLabelValues("skipped").Inc()
			stats.Skipped++
			continue
		}

		if err := handler(ctx, queued); err != nil {
			// Leave the operation queued for a later pass.
			p.log.Error("queued operation failed to replay",
				zap.String("op_id", op.ID),
				zap.String("action", string(queued.Action)),
				zap.Error(err))
			metrics.QueueReplays.WithLabelValues("failed").Inc()
			stats.Failed++
			continue
		}

		if err := p.store.DeleteOperation(ctx, op.ID); err != nil {
			// The handler succeeded; the idempotent replay makes the
			// leftover row safe until the next pass removes it.
			p.log.Error("failed to delete replayed operation",
				zap.String("op_id", op.ID), zap.Error(err))
			metrics.QueueReplays.WithLabelValues("failed").Inc()
			stats.Failed++
			continue
		}

		metrics.QueueReplays.WithLabelValues("applied").Inc()
		stats.Applied++
	}

	return stats, nil
}

func decodeOperation(op models.PendingOperation) (QueuedOp, error) {
	var payload map[string]any
	if len(op.Payload) > 0 {
		if err := json.Unmarshal(op.Payload, &payload); err != nil {
			return QueuedOp{}, err
		}
	}

	return QueuedOp{
		ID:         op.ID,
		UserID:     op.UserID,
		Action:     Action(op.Action),
		TempID:     op.TempID,
		OriginalID: op.OriginalID,
		TableName:  op.TableName,
		Payload:    payload,
		CreatedAt:  op.CreatedAt,
		SkipQueue:  true,
	}, nil
}
