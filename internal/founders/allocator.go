package founders

import (
	"context"
	"errors"

	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMaxSlots is the founder-program ceiling.
const DefaultMaxSlots = 15

// ErrNoSlots is returned when every founder slot has been granted.
var ErrNoSlots = errors.New("no founder slots available")

type foundingMemberCounter interface {
	CountFoundingMembers(ctx context.Context) (int64, error)
}

// Snapshot describes founder-slot usage.
type Snapshot struct {
	MaxSlots  int `json:"max_slots"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
	Counter   int `json:"counter"`
}

// Allocator guards the founder ceiling. Reads derive usage from flagged tenants; grants
// go through a conditional increment on the counter row so concurrent grants cannot
// overshoot the ceiling.
type Allocator struct {
	db       *gorm.DB
	tenants  foundingMemberCounter
	maxSlots int
}

func NewAllocator(db *gorm.DB, tenants foundingMemberCounter, maxSlots int) (*Allocator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if tenants == nil {
		return nil, errors.New("tenant counter is required")
	}
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}
	return &Allocator{db: db, tenants: tenants, maxSlots: maxSlots}, nil
}

func (a *Allocator) MaxSlots() int {
	return a.maxSlots
}

// Used returns the number of founding-member tenants.
func (a *Allocator) Used(ctx context.Context) (int, error) {
	count, err := a.tenants.CountFoundingMembers(ctx)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Remaining returns the number of grantable slots, never negative.
func (a *Allocator) Remaining(ctx context.Context) (int, error) {
	used, err := a.Used(ctx)
	if err != nil {
		return 0, err
	}
	return remaining(a.maxSlots, used), nil
}

func (a *Allocator) Snapshot(ctx context.Context) (*Snapshot, error) {
	used, err := a.Used(ctx)
	if err != nil {
		return nil, err
	}
	counter, err := a.counter(ctx, a.db)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		MaxSlots:  a.maxSlots,
		Used:      used,
		Remaining: remaining(a.maxSlots, used),
		Counter:   counter.UsedCount,
	}, nil
}

// EnsureCounter creates the counter row if missing and aligns its ceiling with configuration.
func (a *Allocator) EnsureCounter(ctx context.Context) error {
	row := models.FounderSlot{ID: models.FounderSlotCounterID, MaxSlots: a.maxSlots}
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"max_slots"}),
		}).
		Create(&row).Error
}

// Grant claims one slot inside tx. It returns ErrNoSlots when the ceiling is reached.
func (a *Allocator) Grant(ctx context.Context, tx *gorm.DB) error {
	res := a.conn(tx).WithContext(ctx).
		Model(&models.FounderSlot{}).
		Where("id = ? AND used_count < ?", models.FounderSlotCounterID, a.maxSlots).
		Where("(SELECT COUNT(*) FROM tenants WHERE is_founding_member = ?) < ?", true, a.maxSlots).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoSlots
	}
	return nil
}

// Release returns one slot inside tx. Releasing an empty counter is a no-op.
func (a *Allocator) Release(ctx context.Context, tx *gorm.DB) error {
	return a.conn(tx).WithContext(ctx).
		Model(&models.FounderSlot{}).
		Where("id = ? AND used_count > 0", models.FounderSlotCounterID).
		UpdateColumn("used_count", gorm.Expr("used_count - 1")).Error
}

// Recount resets the counter row to the number of founding-member tenants.
func (a *Allocator) Recount(ctx context.Context) (*Snapshot, error) {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var used int64
		if err := tx.Model(&models.Tenant{}).Where("is_founding_member = ?", true).Count(&used).Error; err != nil {
			return err
		}
		return tx.Model(&models.FounderSlot{}).
			Where("id = ?", models.FounderSlotCounterID).
			UpdateColumn("used_count", used).Error
	})
	if err != nil {
		return nil, err
	}
	return a.Snapshot(ctx)
}

func (a *Allocator) counter(ctx context.Context, db *gorm.DB) (*models.FounderSlot, error) {
	var row models.FounderSlot
	if err := db.WithContext(ctx).First(&row, models.FounderSlotCounterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.FounderSlot{ID: models.FounderSlotCounterID, MaxSlots: a.maxSlots}, nil
		}
		return nil, err
	}
	return &row, nil
}

func (a *Allocator) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func remaining(maxSlots, used int) int {
	if used >= maxSlots {
		return 0
	}
	return maxSlots - used
}
