package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukkanapp/syncengine/internal/cache"
	apperrors "github.com/dukkanapp/syncengine/pkg/errors"
)

func newTestWriter(t *testing.T, remote *fakeRemote, online bool) (*Writer, *cache.Cache, Storage) {
	t.Helper()

	c := cache.New(cache.DefaultTTL)
	s := newTestStore(t)
	w := NewWriter(remote, c, StaticIdentity("user-1"), NewOnlineFlag(online), NewQueue(s))
	return w, c, s
}

func TestWriterUpsertOnline(t *testing.T) {
	remote := &fakeRemote{}
	w, c, s := newTestWriter(t, remote, true)
	c.Set("sales", []byte(`[{"id":"stale"}]`))

	saved, err := w.Upsert(context.Background(), "sales", map[string]any{
		"id":       "s1",
		"total":    9.5,
		"_offline": true,
		"tempId":   "tmp-1",
	}, ActionSaveSale, WriteOptions{})
	require.NoError(t, err)

	require.Len(t, remote.upserts, 1)
	sent := remote.upserts[0].record
	assert.Equal(t, "user-1", sent["user_id"])
	assert.NotContains(t, sent, "_offline")
	assert.NotContains(t, sent, "tempId")
	assert.Equal(t, sent, saved)

	// Table cache is invalidated so the next read sees the new row.
	_, ok := c.Get("sales")
	assert.False(t, ok)

	count, err := s.CountOperations(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWriterUpsertOfflineQueues(t *testing.T) {
	remote := &fakeRemote{}
	w, _, s := newTestWriter(t, remote, false)

	optimistic, err := w.Upsert(context.Background(), "sales", map[string]any{"total": 5.0}, ActionSaveSale, WriteOptions{})
	require.NoError(t, err)

	assert.Empty(t, remote.upserts)
	assert.Equal(t, true, optimistic["_offline"])

	count, err := s.CountOperations(context.Background(), "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestWriterUpsertCatchAndQueue(t *testing.T) {
	flag := NewOnlineFlag(true)
	remote := &fakeRemote{
		upsertFn: func(context.Context, string, map[string]any) (map[string]any, error) {
			// The connection drops mid-request.
			flag.SetOnline(false)
			return nil, apperrors.ErrOffline
		},
	}
	c := cache.New(cache.DefaultTTL)
	s := newTestStore(t)
	w := NewWriter(remote, c, StaticIdentity("user-1"), flag, NewQueue(s))

	optimistic, err := w.Upsert(context.Background(), "sales", map[string]any{"total": 5.0}, ActionSaveSale, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, true, optimistic["_offline"])

	count, err := s.CountOperations(context.Background(), "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestWriterUpsertSkipQueueReturnsError(t *testing.T) {
	remote := &fakeRemote{
		upsertFn: func(context.Context, string, map[string]any) (map[string]any, error) {
			return nil, apperrors.ErrUpstreamUnavailable
		},
	}
	w, _, s := newTestWriter(t, remote, false)

	_, err := w.Upsert(context.Background(), "sales", map[string]any{"total": 5.0}, ActionSaveSale, WriteOptions{SkipQueue: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUpstreamUnavailable))

	count, err := s.CountOperations(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWriterUpsertNoUser(t *testing.T) {
	w := NewWriter(&fakeRemote{}, cache.New(cache.DefaultTTL), StaticIdentity(""), NewOnlineFlag(true), NewQueue(newTestStore(t)))

	_, err := w.Upsert(context.Background(), "sales", map[string]any{}, ActionSaveSale, WriteOptions{})
	assert.True(t, errors.Is(err, apperrors.ErrSessionExpired))
}

func TestWriterDeleteOnline(t *testing.T) {
	remote := &fakeRemote{}
	w, c, _ := newTestWriter(t, remote, true)
	c.Set("sales", []byte(`[{"id":"s1"}]`))

	require.NoError(t, w.Delete(context.Background(), "sales", "s1", DeleteOptions{}))

	require.Len(t, remote.deletes, 1)
	assert.Equal(t, remoteDelete{table: "sales", id: "s1", ownerID: "user-1"}, remote.deletes[0])

	_, ok := c.Get("sales")
	assert.False(t, ok)
}

func TestWriterDeleteUnsavedRecordNoOp(t *testing.T) {
	remote := &fakeRemote{}
	w, _, _ := newTestWriter(t, remote, true)

	require.NoError(t, w.Delete(context.Background(), "sales", "", DeleteOptions{}))
	require.NoError(t, w.Delete(context.Background(), "sales", "new", DeleteOptions{}))
	assert.Empty(t, remote.deletes)
}

func TestWriterDeleteOfflineQueuesWithImageRefs(t *testing.T) {
	remote := &fakeRemote{}
	w, _, s := newTestWriter(t, remote, false)

	err := w.Delete(context.Background(), "sales", "s1", DeleteOptions{
		ImageURL:   "https://cdn.example/receipt.png",
		RecordType: "sale",
	})
	require.NoError(t, err)
	assert.Empty(t, remote.deletes)

	ops, err := s.ListOperations(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, string(ActionDeleteRecord), ops[0].Action)
	assert.Equal(t, "s1", ops[0].OriginalID)
	assert.Contains(t, string(ops[0].Payload), "receipt.png")
}

func TestWriterDeleteOnlineFailureSurfaces(t *testing.T) {
	remote := &fakeRemote{
		deleteFn: func(context.Context, string, string, string) error {
			return apperrors.ErrForbidden
		},
	}
	w, _, s := newTestWriter(t, remote, true)

	err := w.Delete(context.Background(), "sales", "s1", DeleteOptions{})
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	// Online failures are not queued: the record still exists remotely.
	count, err := s.CountOperations(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}
