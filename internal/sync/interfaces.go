package sync

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/dukkanapp/syncengine/internal/models"
)

// Storage is the narrow durable-store contract the engine depends on. Every
// method must be crash-safe: a crash mid-write never corrupts previously
// committed entries.
type Storage interface {
	PutData(ctx context.Context, key string, value []byte) error
	GetData(ctx context.Context, key string) ([]byte, bool, error)
	EnqueueOperation(ctx context.Context, op *models.PendingOperation) error
	ListOperations(ctx context.Context, userID string) ([]models.PendingOperation, error)
	DeleteOperation(ctx context.Context, id string) error
	CountOperations(ctx context.Context, userID string) (int64, error)
	ClearPreferences(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

// RemoteStore is the per-table surface of the remote backend. Errors carry a
// status classifiable through apperrors.IsTransient.
type RemoteStore interface {
	Upsert(ctx context.Context, table string, record map[string]any) (map[string]any, error)
	Delete(ctx context.Context, table, id, ownerID string) error
	Select(ctx context.Context, table, ownerID string) (json.RawMessage, error)
}

// Identity resolves the current user. Failures are treated as "no user".
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// Connectivity reports whether the client currently believes it is online.
// The engine polls it at decision points; reconnect handling is triggered by
// the surrounding application calling ProcessQueue.
type Connectivity interface {
	Online() bool
}

// OnlineFlag is a Connectivity implementation backed by an atomic flag,
// toggled by whatever network monitor the host application runs.
type OnlineFlag struct {
	offline atomic.Bool
}

// NewOnlineFlag returns a flag in the given initial state.
func NewOnlineFlag(online bool) *OnlineFlag {
	f := &OnlineFlag{}
	f.SetOnline(online)
	return f
}

// Online reports the current state.
func (f *OnlineFlag) Online() bool { return !f.offline.Load() }

// SetOnline updates the state.
func (f *OnlineFlag) SetOnline(online bool) { f.offline.Store(!online) }

// StaticIdentity is an Identity that always resolves to a fixed user,
// used by single-tenant deployments of the sync daemon.
type StaticIdentity string

// CurrentUserID implements Identity.
func (s StaticIdentity) CurrentUserID(context.Context) (string, error) {
	return string(s), nil
}
