package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxErrorLength = 2000

// Repository records every webhook delivery keyed by provider and event id.
type Repository interface {
	Record(ctx context.Context, provider enums.WebhookProvider, eventID, eventType string, payload []byte) (*models.WebhookLog, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkIgnored(ctx context.Context, id uuid.UUID, reason string) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
	Find(ctx context.Context, provider enums.WebhookProvider, eventID string) (*models.WebhookLog, error)
}

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: time.Now}
}

// Record inserts the delivery or bumps the attempt count of an earlier one, then
// returns the stored row.
func (r *repository) Record(ctx context.Context, provider enums.WebhookProvider, eventID, eventType string, payload []byte) (*models.WebhookLog, error) {
	entry := &models.WebhookLog{
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
		Status:    enums.WebhookStatusReceived,
		Attempts:  1,
	}
	if json.Valid(payload) {
		entry.Payload = json.RawMessage(payload)
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"attempts":   gorm.Expr("webhook_logs.attempts + 1"),
				"updated_at": r.now().UTC(),
			}),
		}).
		Create(entry).Error
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, provider, eventID)
}

func (r *repository) Find(ctx context.Context, provider enums.WebhookProvider, eventID string) (*models.WebhookLog, error) {
	var entry models.WebhookLog
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	now := r.now().UTC()
	return r.update(ctx, id, map[string]any{
		"status":       enums.WebhookStatusProcessed,
		"last_error":   nil,
		"processed_at": now,
		"updated_at":   now,
	})
}

func (r *repository) MarkIgnored(ctx context.Context, id uuid.UUID, reason string) error {
	now := r.now().UTC()
	fields := map[string]any{
		"status":       enums.WebhookStatusIgnored,
		"processed_at": now,
		"updated_at":   now,
	}
	if reason != "" {
		fields["last_error"] = truncate(reason)
	}
	return r.update(ctx, id, fields)
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return r.update(ctx, id, map[string]any{
		"status":     enums.WebhookStatusFailed,
		"last_error": truncate(msg),
		"updated_at": r.now().UTC(),
	})
}

func (r *repository) update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookLog{}).
		Where("id = ?", id).
		UpdateColumns(fields).Error
}

func truncate(msg string) string {
	if len(msg) <= maxErrorLength {
		return msg
	}
	return msg[:maxErrorLength]
}
