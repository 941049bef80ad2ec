package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PendingOperation is a mutation recorded while the remote store was
// unreachable. Rows are append-only: replay deletes them after the handler
// confirms success, they are never updated in place.
type PendingOperation struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string         `gorm:"index:idx_pending_user_created,priority:1;size:64" json:"user_id"`
	Action     string         `gorm:"size:64" json:"action"`
	TempID     string         `gorm:"size:64" json:"temp_id"`
	OriginalID string         `gorm:"size:64" json:"original_id,omitempty"`
	TableName  string         `gorm:"size:128" json:"table_name,omitempty"`
	Payload    datatypes.JSON `json:"payload"`
	CreatedAt  time.Time      `gorm:"index:idx_pending_user_created,priority:2" json:"created_at"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (op *PendingOperation) BeforeCreate(tx *gorm.DB) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	return nil
}
