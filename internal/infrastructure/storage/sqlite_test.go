package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerwatch/internal/domain"
)

// openTestStore creates a migrated in-memory store for testing.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestLoadHistory_UnknownSource_Empty(t *testing.T) {
	store := openTestStore(t)

	history, err := store.LoadHistory(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestReplaceHistory_Roundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	updated := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	history := domain.SourceHistory{
		"k1": {
			Offer:        domain.Offer{Name: "box", CPU: "i5", RAM: "16GB", Storage: "256GB", Stock: domain.StockIn},
			LastNotified: domain.NotifiedInStock,
			LastUpdated:  updated,
		},
		"k2": {
			Offer:        domain.Offer{Name: "other", CPU: "E3", RAM: "8GB", Storage: "1TB", Stock: domain.StockOut},
			LastNotified: domain.NotifiedNever,
			LastUpdated:  updated,
		},
	}

	require.NoError(t, store.ReplaceHistory(ctx, "hetzner", history))

	got, err := store.LoadHistory(ctx, "hetzner")
	require.NoError(t, err)
	assert.Equal(t, history, got)
}

func TestReplaceHistory_ReplacesWholesale(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	first := domain.SourceHistory{
		"gone": {Offer: domain.Offer{Name: "a"}, LastNotified: domain.NotifiedRemoved, LastUpdated: now},
	}
	require.NoError(t, store.ReplaceHistory(ctx, "src", first))

	second := domain.SourceHistory{
		"kept": {Offer: domain.Offer{Name: "b"}, LastNotified: domain.NotifiedInStock, LastUpdated: now},
	}
	require.NoError(t, store.ReplaceHistory(ctx, "src", second))

	got, err := store.LoadHistory(ctx, "src")
	require.NoError(t, err)
	assert.NotContains(t, got, domain.RecordKey("gone"))
	assert.Contains(t, got, domain.RecordKey("kept"))
}

func TestReplaceHistory_SourcesIsolated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second).UTC()

	require.NoError(t, store.ReplaceHistory(ctx, "a", domain.SourceHistory{
		"ka": {Offer: domain.Offer{Name: "a"}, LastNotified: domain.NotifiedNever, LastUpdated: now},
	}))
	require.NoError(t, store.ReplaceHistory(ctx, "b", domain.SourceHistory{}))

	got, err := store.LoadHistory(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got, 1, "clearing source b must not touch source a")
}

func TestSnapshotCache_Roundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	none, err := store.LoadSnapshot(ctx, "src")
	require.NoError(t, err)
	assert.Nil(t, none)

	offers := []domain.Offer{{Name: "box", CPU: "i5", RAM: "16GB", Storage: "256GB", Stock: domain.StockIn}}
	require.NoError(t, store.SaveSnapshot(ctx, "src", offers))

	got, err := store.LoadSnapshot(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, offers, got)

	// upsert replaces
	require.NoError(t, store.SaveSnapshot(ctx, "src", nil))
	got, err = store.LoadSnapshot(ctx, "src")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNotificationLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	last, err := store.LastNotified(ctx, "src")
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	at := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.RecordNotified(ctx, "src", at))

	last, err = store.LastNotified(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, at, last)

	// upsert moves the timestamp forward
	later := at.Add(time.Hour)
	require.NoError(t, store.RecordNotified(ctx, "src", later))
	last, err = store.LastNotified(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, later, last)
}
