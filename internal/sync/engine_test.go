package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukkanapp/syncengine/internal/cache"
	apperrors "github.com/dukkanapp/syncengine/pkg/errors"
)

func newTestEngine(t *testing.T, remote *fakeRemote, online bool, opts ...EngineOption) *Engine {
	t.Helper()

	c := cache.New(cache.DefaultTTL)
	s := newTestStore(t)
	recovery := NewRecovery(c, s, func() {})
	return NewEngine(c, s, remote, StaticIdentity("user-1"), NewOnlineFlag(online), recovery, opts...)
}

func TestEngineEnqueueWriteNotifiesQueueCount(t *testing.T) {
	var counts []int64
	e := newTestEngine(t, &fakeRemote{}, false,
		OnQueueCountChange(func(n int64) { counts = append(counts, n) }))

	ctx := context.Background()
	_, err := e.EnqueueWrite(ctx, ActionSaveSale, "sales", map[string]any{"total": 1.0})
	require.NoError(t, err)
	_, err = e.EnqueueWrite(ctx, ActionSaveExpense, "expenses", map[string]any{"total": 2.0})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, counts)
}

func TestEngineProcessOfflineQueueReplaysThroughRemote(t *testing.T) {
	remote := &fakeRemote{}
	var counts []int64
	e := newTestEngine(t, remote, false,
		OnQueueCountChange(func(n int64) { counts = append(counts, n) }))

	ctx := context.Background()
	_, err := e.EnqueueWrite(ctx, ActionSaveSale, "sales", map[string]any{"total": 3.0})
	require.NoError(t, err)

	// Network comes back.
	e.connectivity.(*OnlineFlag).SetOnline(true)

	stats, err := e.ProcessOfflineQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Applied: 1}, stats)

	require.Len(t, remote.upserts, 1)
	assert.Equal(t, "sales", remote.upserts[0].table)
	assert.Equal(t, "user-1", remote.upserts[0].record["user_id"])

	// Counts went 1 on enqueue, 0 after drain.
	assert.Equal(t, []int64{1, 0}, counts)
}

func TestEngineProcessOfflineQueueNoOpWhileOffline(t *testing.T) {
	remote := &fakeRemote{}
	e := newTestEngine(t, remote, false)

	ctx := context.Background()
	_, err := e.EnqueueWrite(ctx, ActionSaveSale, "sales", map[string]any{"total": 3.0})
	require.NoError(t, err)

	stats, err := e.ProcessOfflineQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, remote.upserts)

	count, err := e.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestEngineProcessOfflineQueueNoOpWithoutUser(t *testing.T) {
	c := cache.New(cache.DefaultTTL)
	s := newTestStore(t)
	e := NewEngine(c, s, &fakeRemote{}, StaticIdentity(""), NewOnlineFlag(true), NewRecovery(c, s, func() {}))

	stats, err := e.ProcessOfflineQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestDefaultRegistryReplaysDelete(t *testing.T) {
	remote := &fakeRemote{}
	e := newTestEngine(t, remote, false)

	ctx := context.Background()
	require.NoError(t, e.Writes.Delete(ctx, "sales", "s1", DeleteOptions{ImageURL: "https://cdn.example/r.png"}))

	e.connectivity.(*OnlineFlag).SetOnline(true)

	stats, err := e.ProcessOfflineQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Applied: 1}, stats)

	require.Len(t, remote.deletes, 1)
	assert.Equal(t, remoteDelete{table: "sales", id: "s1", ownerID: "user-1"}, remote.deletes[0])
}

func TestEngineFetchTableCachesResult(t *testing.T) {
	remote := &fakeRemote{
		selectFn: func(context.Context, string, string) (json.RawMessage, error) {
			return json.RawMessage(`[{"id":"s1"}]`), nil
		},
	}
	e := newTestEngine(t, remote, true)

	ctx := context.Background()
	first, err := e.FetchTable(ctx, "sales", FetchOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"s1"}]`, string(first))

	// A second read within the TTL is served from the cache.
	second, err := e.FetchTable(ctx, "sales", FetchOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"s1"}]`, string(second))
	assert.Len(t, remote.selects, 1)
}

func TestEngineFetchTableDegradesToDurableData(t *testing.T) {
	remote := &fakeRemote{
		selectFn: func(context.Context, string, string) (json.RawMessage, error) {
			return nil, apperrors.ErrForbidden
		},
	}
	e := newTestEngine(t, remote, true)

	ctx := context.Background()
	require.NoError(t, e.Store.PutData(ctx, "sales", []byte(`[{"id":"last-known"}]`)))

	data, err := e.FetchTable(ctx, "sales", FetchOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"last-known"}]`, string(data))
}

func TestEngineFetchTableRequiresUser(t *testing.T) {
	c := cache.New(cache.DefaultTTL)
	s := newTestStore(t)
	e := NewEngine(c, s, &fakeRemote{}, StaticIdentity(""), NewOnlineFlag(true), NewRecovery(c, s, func() {}))

	_, err := e.FetchTable(context.Background(), "sales", FetchOptions{})
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestEngineReadOptionsLimitRetries(t *testing.T) {
	calls := 0
	remote := &fakeRemote{
		selectFn: func(context.Context, string, string) (json.RawMessage, error) {
			calls++
			return nil, apperrors.ErrUpstreamUnavailable
		},
	}
	e := newTestEngine(t, remote, true, WithReadOptions(WithMaxRetries(0)))

	data, err := e.FetchTable(context.Background(), "sales", FetchOptions{})
	require.NoError(t, err)

	// A zero retry budget means a single attempt before degrading.
	assert.Equal(t, 1, calls)
	assert.JSONEq(t, `[]`, string(data))
}

func TestEngineDeleteRecordNotifiesQueueCount(t *testing.T) {
	var counts []int64
	e := newTestEngine(t, &fakeRemote{}, false,
		OnQueueCountChange(func(n int64) { counts = append(counts, n) }))

	err := e.DeleteRecord(context.Background(), "sales", "s1", DeleteOptions{})
	require.NoError(t, err)

	// The offline delete was queued and the count callback fired.
	assert.Equal(t, []int64{1}, counts)
}

func TestDefaultRegistryCoversCatalogue(t *testing.T) {
	registry := DefaultRegistry(nil)

	for _, action := range Actions() {
		_, ok := registry.Resolve(action)
		assert.True(t, ok, "action %s has no default handler", action)
	}
}
