package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreybb/xianyu-autodeliver/models"
)

// backend opens a store at a fixed location inside dir so tests can reopen it.
type backend struct {
	name string
	open func(t *testing.T, dir string) DeliveryStore
}

func backends() []backend {
	return []backend{
		{
			name: DriverSQLite,
			open: func(t *testing.T, dir string) DeliveryStore {
				store, err := OpenSQLite(context.Background(), filepath.Join(dir, "deliveries.db"))
				require.NoError(t, err)
				return store
			},
		},
		{
			name: DriverJSONFile,
			open: func(t *testing.T, dir string) DeliveryStore {
				store, err := OpenJSONFile(filepath.Join(dir, "processed_orders.json"))
				require.NoError(t, err)
				return store
			},
		},
	}
}

func newRecord(orderID string, plan models.PlanDuration, at time.Time) *models.DeliveryRecord {
	return &models.DeliveryRecord{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Title:       "VIP服务 " + plan.Label(),
		Plan:        plan,
		DeliveredAt: at,
		Success:     true,
	}
}

func TestDeliveryStore_PutAndHas(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t, t.TempDir())
			defer store.Close()

			has, err := store.Has(ctx, "O1")
			require.NoError(t, err)
			assert.False(t, has)

			at := time.Date(2026, time.October, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, store.Put(ctx, newRecord("O1", models.PlanThreeMonths, at)))

			has, err = store.Has(ctx, "O1")
			require.NoError(t, err)
			assert.True(t, has)

			got, err := store.Get(ctx, "O1")
			require.NoError(t, err)
			assert.Equal(t, "O1", got.OrderID)
			assert.Equal(t, models.PlanThreeMonths, got.Plan)
			assert.True(t, got.Success)
			assert.True(t, at.Equal(got.DeliveredAt))
		})
	}
}

func TestDeliveryStore_RejectsSecondSuccess(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t, t.TempDir())
			defer store.Close()

			require.NoError(t, store.Put(ctx, newRecord("O1", models.PlanOneMonth, time.Now())))
			err := store.Put(ctx, newRecord("O1", models.PlanOneMonth, time.Now()))
			assert.ErrorIs(t, err, ErrAlreadyDelivered)
			assert.NotErrorIs(t, err, ErrStorageWrite)

			all, err := store.LoadAll(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestDeliveryStore_RejectsInvalidRecords(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t, t.TempDir())
			defer store.Close()

			failed := newRecord("O1", models.PlanOneMonth, time.Now())
			failed.Success = false
			assert.ErrorIs(t, store.Put(ctx, failed), ErrInvalidRecord)
			assert.ErrorIs(t, store.Put(ctx, nil), ErrInvalidRecord)
			assert.ErrorIs(t, store.Put(ctx, newRecord("", models.PlanOneMonth, time.Now())), ErrInvalidRecord)

			has, err := store.Has(ctx, "O1")
			require.NoError(t, err)
			assert.False(t, has)
		})
	}
}

func TestDeliveryStore_GetMissing(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t, t.TempDir())
			defer store.Close()

			_, err := store.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDeliveryStore_RestartConsistency(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			want := map[string]struct{}{}

			// Interleave deliveries with reopenings of the same store.
			for i, id := range []string{"A", "B", "C", "D", "E"} {
				store := b.open(t, dir)
				require.NoError(t, store.Put(ctx, newRecord(id, models.PlanSixMonths, time.Now().Add(time.Duration(i)*time.Second))))
				want[id] = struct{}{}
				require.NoError(t, store.Close())
			}

			for restart := 0; restart < 3; restart++ {
				store := b.open(t, dir)
				got, err := store.LoadAll(ctx)
				require.NoError(t, err)
				assert.Equal(t, want, got)
				require.NoError(t, store.Close())
			}
		})
	}
}

func TestDeliveryStore_ListNewestFirst(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t, t.TempDir())
			defer store.Close()

			base := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
			require.NoError(t, store.Put(ctx, newRecord("old", models.PlanOneMonth, base)))
			require.NoError(t, store.Put(ctx, newRecord("new", models.PlanOneMonth, base.Add(time.Hour))))
			require.NoError(t, store.Put(ctx, newRecord("mid", models.PlanOneMonth, base.Add(time.Minute))))

			records, err := store.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "new", records[0].OrderID)
			assert.Equal(t, "mid", records[1].OrderID)
		})
	}
}

func TestDeliveryStore_Attempts(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.open(t, t.TempDir())
			defer store.Close()

			for _, status := range []models.DeliveryAttemptStatus{
				models.DeliveryAttemptFailed,
				models.DeliveryAttemptFailed,
				models.DeliveryAttemptDelivered,
			} {
				require.NoError(t, store.RecordAttempt(ctx, &models.DeliveryAttempt{
					ID:           uuid.NewString(),
					OrderID:      "O1",
					CreatedAt:    time.Now(),
					Status:       status,
					ErrorMessage: "send timed out",
				}))
			}

			count, err := store.CountFailedAttempts(ctx, "O1")
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			count, err = store.CountFailedAttempts(ctx, "O2")
			require.NoError(t, err)
			assert.Equal(t, 0, count)

			err = store.RecordAttempt(ctx, &models.DeliveryAttempt{ID: uuid.NewString(), OrderID: "O1", Status: "bogus"})
			assert.Error(t, err)
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongodb", "x")
	assert.Error(t, err)
}

func TestOpen_SQLiteRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), DriverSQLite, " ")
	assert.Error(t, err)
}
