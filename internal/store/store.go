package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dukkanapp/syncengine/internal/models"
)

// DurableStore persists cached query results, the offline operation queue
// and client preferences in the local SQL database. It is the single source
// of truth for anything that must survive a crash: every write goes through
// a committed transaction before the caller sees success.
type DurableStore struct {
	db  *gorm.DB
	now func() time.Time
}

// Option customises the DurableStore.
type Option func(*DurableStore)

// WithNow overrides the clock, primarily for testing.
func WithNow(now func() time.Time) Option {
	return func(s *DurableStore) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a DurableStore on top of an opened database handle.
func New(db *gorm.DB, opts ...Option) (*DurableStore, error) {
	if db == nil {
		return nil, errors.New("durable store: db is required")
	}

	s := &DurableStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PutData upserts the last-known-good value for a query key.
func (s *DurableStore) PutData(ctx context.Context, key string, value []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}

	record := models.CacheRecord{
		Key:       key,
		Value:     value,
		FetchedAt: s.now().UTC(),
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "fetched_at", "updated_at"}),
		}).Create(&record).Error
}

// GetData retrieves the last-known-good value for a query key.
func (s *DurableStore) GetData(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var record models.CacheRecord
	err := s.db.WithContext(ctx).Take(&record, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return record.Value, true, nil
}

// EnqueueOperation appends a pending operation to the offline queue.
func (s *DurableStore) EnqueueOperation(ctx context.Context, op *models.PendingOperation) error {
	if op == nil {
		return errors.New("durable store: operation is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if op.CreatedAt.IsZero() {
		op.CreatedAt = s.now().UTC()
	}

	return s.db.WithContext(ctx).Create(op).Error
}

// ListOperations returns the queued operations for a user in enqueue order.
func (s *DurableStore) ListOperations(ctx context.Context, userID string) ([]models.PendingOperation, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var ops []models.PendingOperation
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// DeleteOperation removes a replayed operation from the queue.
func (s *DurableStore) DeleteOperation(ctx context.Context, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx).Delete(&models.PendingOperation{}, "id = ?", id).Error
}

// CountOperations reports how many operations are queued for a user.
func (s *DurableStore) CountOperations(ctx context.Context, userID string) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.PendingOperation{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// PutPreference stores a client display preference.
func (s *DurableStore) PutPreference(ctx context.Context, key, value string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	pref := models.Preference{Key: key, Value: value}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&pref).Error
}

// GetPreference retrieves a client display preference.
func (s *DurableStore) GetPreference(ctx context.Context, key string) (string, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var pref models.Preference
	err := s.db.WithContext(ctx).Take(&pref, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return pref.Value, true, nil
}

// ClearPreferences removes all stored display preferences.
func (s *DurableStore) ClearPreferences(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&models.Preference{}).Error
}

// ClearAll wipes cached data, the offline queue and preferences in a single
// transaction so a crash mid-clear cannot leave partial state behind.
func (s *DurableStore) ClearAll(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.CacheRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("1 = 1").Delete(&models.PendingOperation{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&models.Preference{}).Error
	})
}
