// Key-value row used by the SQL-backed conversation store
package db

import "time"

// KVEntry stores one serialized value under a namespaced key.
type KVEntry struct {
	Key       string    `json:"key" gorm:"primaryKey;size:191"`
	Value     []byte    `json:"value" gorm:"type:blob"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
