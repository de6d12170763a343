package models

import "time"

// FounderSlotCounterID is the primary key of the single counter row.
const FounderSlotCounterID = 1

// FounderSlot is the denormalised founder counter. The authoritative count is the
// number of tenants flagged as founding members.
type FounderSlot struct {
	ID        int       `gorm:"column:id;primaryKey"`
	UsedCount int       `gorm:"column:used_count;not null;default:0"`
	MaxSlots  int       `gorm:"column:max_slots;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
