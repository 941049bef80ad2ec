package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/dukkanapp/syncengine/internal/models"
	apperrors "github.com/dukkanapp/syncengine/pkg/errors"
	"github.com/dukkanapp/syncengine/pkg/logger"
	"github.com/dukkanapp/syncengine/pkg/validator"
)

// EnqueueInput describes a mutation to defer until connectivity returns.
type EnqueueInput struct {
	UserID     string         `json:"user_id" validate:"required"`
	Action     Action         `json:"action" validate:"required"`
	TableName  string         `json:"table_name"`
	OriginalID string         `json:"original_id"`
	Payload    map[string]any `json:"payload"`
}

// Queue records mutations that could not reach the remote store. Entries are
// persisted before the caller sees success; losing one silently would mean
// the mutation never reaches the server.
type Queue struct {
	store Storage
	now   func() time.Time
	log   *zap.Logger
}

// NewQueue constructs a Queue over the durable store.
func NewQueue(store Storage) *Queue {
	return &Queue{
		store: store,
		now:   time.Now,
		log:   logger.WithModule("offline-queue"),
	}
}

// Enqueue persists the operation and returns an optimistic representation of
// the record as if it had been saved: the payload with a stable temp id, a
// creation timestamp, and the offline marker so the caller can flag the row
// as not yet confirmed.
func (q *Queue) Enqueue(ctx context.Context, input EnqueueInput) (map[string]any, error) {
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewBadRequest(err.Error())
	}
	if !input.Action.Known() {
		return nil, apperrors.NewBadRequest("unknown action " + string(input.Action))
	}

	tempID := tempIDFor(input.Payload)

	stored := make(map[string]any, len(input.Payload)+2)
	for key, value := range input.Payload {
		stored[key] = value
	}
	stored["id"] = tempID
	stored["user_id"] = input.UserID

	payload, err := json.Marshal(stored)
	if err != nil {
		return nil, apperrors.NewBadRequest("payload is not serialisable").WithInternal(err)
	}

	op := &models.PendingOperation{
		UserID:     input.UserID,
		Action:     string(input.Action),
		TempID:     tempID,
		OriginalID: input.OriginalID,
		TableName:  input.TableName,
		Payload:    datatypes.JSON(payload),
		CreatedAt:  q.now().UTC(),
	}

	if err := q.store.EnqueueOperation(ctx, op); err != nil {
		q.log.Error("failed to queue offline operation",
			zap.String("action", string(input.Action)),
			zap.Error(err))
		return nil, apperrors.ErrLocalStorage.WithInternal(err)
	}

	optimistic := make(map[string]any, len(input.Payload)+3)
	for key, value := range input.Payload {
		optimistic[key] = value
	}
	optimistic["id"] = tempID
	optimistic["created_at"] = op.CreatedAt.Format(time.RFC3339)
	optimistic["_offline"] = true

	return optimistic, nil
}

// tempIDFor reuses a real identifier already present on the payload and
// generates a fresh one for new records (missing id or the "new" placeholder).
func tempIDFor(payload map[string]any) string {
	if id, ok := payload["id"].(string); ok && id != "" && id != "new" {
		return id
	}
	return uuid.NewString()
}
