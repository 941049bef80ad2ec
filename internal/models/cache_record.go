package models

import (
	"time"
)

// CacheRecord is the durable last-known-good result for a query key. It is
// the read path's final fallback once remote retries are exhausted.
type CacheRecord struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	FetchedAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
