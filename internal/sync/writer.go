package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/dukkanapp/syncengine/internal/cache"
	apperrors "github.com/dukkanapp/syncengine/pkg/errors"
	"github.com/dukkanapp/syncengine/pkg/logger"
)

// WriteOptions tune a single Upsert.
type WriteOptions struct {
	// SkipQueue forces the online path: on failure the error is returned
	// instead of the mutation being queued. Queue replay sets this so a
	// failed replay stays in the existing queue entry rather than
	// re-enqueueing itself.
	SkipQueue bool
}

// DeleteOptions tune a single Delete.
type DeleteOptions struct {
	// ImageURL, when set, is carried on the queued payload so replay can
	// remove the associated stored image as well.
	ImageURL string
	// RecordType tells replay which storage bucket the image lives in.
	RecordType string
	SkipQueue  bool
}

// Writer routes mutations to the remote store when online and to the offline
// queue otherwise. Remote failures while offline fall back to the queue too,
// so a connection dropping mid-request does not lose the write.
type Writer struct {
	remote       RemoteStore
	cache        *cache.Cache
	identity     Identity
	connectivity Connectivity
	queue        *Queue
	log          *zap.Logger
}

// NewWriter constructs a Writer.
func NewWriter(remote RemoteStore, c *cache.Cache, identity Identity, connectivity Connectivity, queue *Queue) *Writer {
	return &Writer{
		remote:       remote,
		cache:        c,
		identity:     identity,
		connectivity: connectivity,
		queue:        queue,
		log:          logger.WithModule("sync-writer"),
	}
}

// Upsert saves a record to the remote table, sanitising client-only fields
// and stamping ownership first. When offline the mutation is queued under the
// given action and an optimistic record is returned in place of the saved
// row. Cached reads for the table are invalidated on success.
func (w *Writer) Upsert(ctx context.Context, table string, payload map[string]any, action Action, opts WriteOptions) (map[string]any, error) {
	userID, err := w.identity.CurrentUserID(ctx)
	if err != nil || userID == "" {
		return nil, apperrors.ErrSessionExpired
	}

	if !w.connectivity.Online() && !opts.SkipQueue {
		return w.queue.Enqueue(ctx, EnqueueInput{
			UserID:    userID,
			Action:    action,
			TableName: table,
			Payload:   payload,
		})
	}

	record := CleanPayload(payload)
	record["user_id"] = userID

	saved, err := w.remote.Upsert(ctx, table, record)
	if err != nil {
		if !w.connectivity.Online() && !opts.SkipQueue {
			// The connection dropped mid-request; queue instead of failing.
			w.log.Warn("upsert failed while offline, queueing",
				zap.String("table", table),
				zap.String("action", string(action)),
				zap.Error(err))
			return w.queue.Enqueue(ctx, EnqueueInput{
				UserID:    userID,
				Action:    action,
				TableName: table,
				Payload:   payload,
			})
		}
		return nil, err
	}

	w.cache.Invalidate(table)
	return saved, nil
}

// Delete removes a record from the remote table, scoped to the current user.
// Unsaved records (empty id or the "new" placeholder) are a no-op. When
// offline the deletion is queued, carrying any image references so replay can
// clean those up too. An online failure is returned as-is: the record still
// exists remotely and the caller should surface that rather than pretend it
// is gone.
func (w *Writer) Delete(ctx context.Context, table, id string, opts DeleteOptions) error {
	if id == "" || id == "new" {
		return nil
	}

	userID, err := w.identity.CurrentUserID(ctx)
	if err != nil || userID == "" {
		return apperrors.ErrSessionExpired
	}

	if !w.connectivity.Online() && !opts.SkipQueue {
		payload := map[string]any{"id": id, "table_name": table}
		if opts.ImageURL != "" {
			payload["imageUrl"] = opts.ImageURL
		}
		if opts.RecordType != "" {
			payload["record_type_for_image"] = opts.RecordType
		}
		_, err := w.queue.Enqueue(ctx, EnqueueInput{
			UserID:     userID,
			Action:     ActionDeleteRecord,
			TableName:  table,
			OriginalID: id,
			Payload:    payload,
		})
		return err
	}

	if err := w.remote.Delete(ctx, table, id, userID); err != nil {
		w.log.Error("failed to delete record",
			zap.String("table", table),
			zap.String("id", id),
			zap.Error(err))
		return err
	}

	w.cache.Invalidate(table)
	return nil
}
