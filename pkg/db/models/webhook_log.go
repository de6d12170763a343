package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autevo/filmtechos-backend/pkg/enums"
)

// WebhookLog is the audit and replay record of an inbound provider event.
type WebhookLog struct {
	ID          uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Provider    enums.WebhookProvider `gorm:"column:provider;not null;uniqueIndex:webhook_logs_provider_event_key"`
	EventID     string                `gorm:"column:event_id;not null;uniqueIndex:webhook_logs_provider_event_key"`
	EventType   string                `gorm:"column:event_type;not null"`
	Status      enums.WebhookStatus   `gorm:"column:status;not null;default:'received'"`
	Attempts    int                   `gorm:"column:attempts;not null;default:0"`
	LastError   *string               `gorm:"column:last_error"`
	Payload     json.RawMessage       `gorm:"column:payload;type:jsonb"`
	ProcessedAt *time.Time            `gorm:"column:processed_at"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *WebhookLog) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
