package founders

import (
	"context"
	"sync"
	"testing"

	"github.com/autevo/filmtechos-backend/internal/tenants"
	"github.com/autevo/filmtechos-backend/pkg/db/dbtest"
	"github.com/autevo/filmtechos-backend/pkg/db/models"
	"github.com/autevo/filmtechos-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newAllocator(t *testing.T, db *gorm.DB, max int) *Allocator {
	t.Helper()
	alloc, err := NewAllocator(db, tenants.NewRepository(db), max)
	require.NoError(t, err)
	require.NoError(t, alloc.EnsureCounter(context.Background()))
	return alloc
}

func seedFounders(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, db.Create(&models.Tenant{
			Name:             "Founder",
			Status:           enums.TenantStatusActive,
			IsFoundingMember: true,
		}).Error)
	}
}

func TestGrantStopsAtCeiling(t *testing.T) {
	db := dbtest.Open(t)
	alloc := newAllocator(t, db, 2)
	ctx := context.Background()

	require.NoError(t, alloc.Grant(ctx, nil))
	require.NoError(t, alloc.Grant(ctx, nil))
	assert.ErrorIs(t, alloc.Grant(ctx, nil), ErrNoSlots)

	snap, err := alloc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Counter)
	assert.Equal(t, 2, snap.MaxSlots)
}

func TestGrantRespectsTenantProjection(t *testing.T) {
	db := dbtest.Open(t)
	alloc := newAllocator(t, db, 3)
	seedFounders(t, db, 3)

	assert.ErrorIs(t, alloc.Grant(context.Background(), nil), ErrNoSlots)
}

func TestGrantsAreSerialisedByTheCounter(t *testing.T) {
	db := dbtest.Open(t)
	alloc := newAllocator(t, db, DefaultMaxSlots)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := alloc.Grant(ctx, nil); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, DefaultMaxSlots, granted)
}

func TestRemainingNeverNegative(t *testing.T) {
	db := dbtest.Open(t)
	alloc := newAllocator(t, db, 2)
	seedFounders(t, db, 3)

	remaining, err := alloc.Remaining(context.Background())
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestReleaseAndRecount(t *testing.T) {
	db := dbtest.Open(t)
	alloc := newAllocator(t, db, 5)
	ctx := context.Background()

	require.NoError(t, alloc.Release(ctx, nil))
	snap, err := alloc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Counter)

	require.NoError(t, alloc.Grant(ctx, nil))
	require.NoError(t, alloc.Grant(ctx, nil))
	seedFounders(t, db, 1)

	snap, err = alloc.Recount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Counter)
	assert.Equal(t, 1, snap.Used)
	assert.Equal(t, 4, snap.Remaining)
}

func TestGrantRollsBackWithTransaction(t *testing.T) {
	db := dbtest.Open(t)
	alloc := newAllocator(t, db, 5)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, alloc.Grant(ctx, tx))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	snap, err := alloc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Counter)
}
