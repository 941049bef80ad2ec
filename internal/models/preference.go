package models

import "time"

// Preference holds client display preferences (theme and similar). The
// recovery controller wipes this table together with the cached data, since
// a corrupt preference can be what keeps the client from rendering.
type Preference struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"size:1024"`
	UpdatedAt time.Time
}
