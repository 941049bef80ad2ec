package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dukkanapp/syncengine/internal/database/testutil"
	"github.com/dukkanapp/syncengine/internal/models"
	"github.com/dukkanapp/syncengine/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.DurableStore {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	s, err := store.New(db)
	require.NoError(t, err)
	return s
}

// fakeRemote records writes and delegates behaviour to the func fields,
// defaulting to echoing the record back.
type fakeRemote struct {
	upsertFn func(ctx context.Context, table string, record map[string]any) (map[string]any, error)
	deleteFn func(ctx context.Context, table, id, ownerID string) error
	selectFn func(ctx context.Context, table, ownerID string) (json.RawMessage, error)

	upserts []remoteUpsert
	deletes []remoteDelete
	selects []string
}

type remoteUpsert struct {
	table  string
	record map[string]any
}

type remoteDelete struct {
	table   string
	id      string
	ownerID string
}

func (f *fakeRemote) Upsert(ctx context.Context, table string, record map[string]any) (map[string]any, error) {
	f.upserts = append(f.upserts, remoteUpsert{table: table, record: record})
	if f.upsertFn != nil {
		return f.upsertFn(ctx, table, record)
	}
	return record, nil
}

func (f *fakeRemote) Delete(ctx context.Context, table, id, ownerID string) error {
	f.deletes = append(f.deletes, remoteDelete{table: table, id: id, ownerID: ownerID})
	if f.deleteFn != nil {
		return f.deleteFn(ctx, table, id, ownerID)
	}
	return nil
}

func (f *fakeRemote) Select(ctx context.Context, table, ownerID string) (json.RawMessage, error) {
	f.selects = append(f.selects, table)
	if f.selectFn != nil {
		return f.selectFn(ctx, table, ownerID)
	}
	return json.RawMessage(`[]`), nil
}

// brokenStorage wraps a Storage and forces errors on selected methods.
type brokenStorage struct {
	Storage
	enqueueErr error
	clearErr   error
	deleteErr  error
}

func (b *brokenStorage) EnqueueOperation(ctx context.Context, op *models.PendingOperation) error {
	if b.enqueueErr != nil {
		return b.enqueueErr
	}
	return b.Storage.EnqueueOperation(ctx, op)
}

func (b *brokenStorage) ClearAll(ctx context.Context) error {
	if b.clearErr != nil {
		return b.clearErr
	}
	return b.Storage.ClearAll(ctx)
}

func (b *brokenStorage) DeleteOperation(ctx context.Context, id string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.Storage.DeleteOperation(ctx, id)
}
