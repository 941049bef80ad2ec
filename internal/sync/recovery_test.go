package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukkanapp/syncengine/internal/cache"
)

func TestRecoveryTripEntersFaultedState(t *testing.T) {
	r := NewRecovery(cache.New(cache.DefaultTTL), newTestStore(t), func() {})

	assert.False(t, r.Faulted())
	r.Trip(errors.New("corrupted state"))
	assert.True(t, r.Faulted())

	// Only a reload leaves the faulted state; a second Trip is harmless.
	r.Trip(errors.New("again"))
	assert.True(t, r.Faulted())
}

func TestRecoveryClearsEverythingThenReloads(t *testing.T) {
	c := cache.New(cache.DefaultTTL)
	c.Set("sales", []byte(`[{"id":"s1"}]`))
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutData(ctx, "sales", []byte(`[]`)))
	require.NoError(t, s.PutPreference(ctx, "theme", "dark"))
	_, err := NewQueue(s).Enqueue(ctx, EnqueueInput{UserID: "user-1", Action: ActionSaveSale})
	require.NoError(t, err)

	reloaded := false
	var slept time.Duration
	r := NewRecovery(c, s, func() { reloaded = true },
		WithSettleDelay(250*time.Millisecond),
		WithRecoverySleep(func(d time.Duration) { slept = d }))

	r.Recover(ctx)

	assert.True(t, reloaded)
	assert.Equal(t, 250*time.Millisecond, slept)
	assert.Zero(t, c.Len())

	_, found, err := s.GetData(ctx, "sales")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = s.GetPreference(ctx, "theme")
	require.NoError(t, err)
	assert.False(t, found)

	count, err := s.CountOperations(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecoveryReloadsEvenWhenClearFails(t *testing.T) {
	c := cache.New(cache.DefaultTTL)
	broken := &brokenStorage{Storage: newTestStore(t), clearErr: errors.New("io error")}

	reloaded := false
	r := NewRecovery(c, broken, func() { reloaded = true },
		WithRecoverySleep(func(time.Duration) {
			t.Fatal("no settle delay expected when clearing fails")
		}))

	r.Recover(context.Background())

	assert.True(t, reloaded)
}
