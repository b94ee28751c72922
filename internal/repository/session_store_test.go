package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshomebg/dshome-docker-sub001/internal/mapping"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
	"github.com/dshomebg/dshome-docker-sub001/internal/spreadsheet"
)

func testSession() *mapping.Session {
	sheet := &spreadsheet.Sheet{
		Name: "Sheet1",
		Columns: []spreadsheet.Column{
			{Index: 0, Header: "Ref"},
			{Index: 1, Header: "Stock-A"},
		},
		Rows: []spreadsheet.Row{
			{Number: 2, Cells: map[string]string{"Ref": "SKU1", "Stock-A": "5"}},
		},
	}
	s := mapping.NewSession("session-1", testTenant, "stock.xlsx", sheet, mapping.DefaultWarehouseSlots)
	s.Mapping["Ref"] = mapping.SKU
	s.Mapping["Stock-A"] = mapping.WarehouseQty(1)
	return s
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisSessionStore_RoundTrip(t *testing.T) {
	_, client := setupRedis(t)
	store := NewRedisSessionStore(client, time.Hour)
	ctx := context.Background()

	session := testSession()
	require.NoError(t, session.Confirm())
	require.NoError(t, session.StartProcessing())
	require.NoError(t, session.Complete(&models.ImportResult{
		Success:   false,
		TotalRows: 1,
		Errors:    []models.ImportRowOutcome{{RowNumber: 2, SKU: "SKU1", Code: models.OutcomeProductNotFound, Reason: "product not found"}},
	}))
	require.NoError(t, store.Save(ctx, session))

	loaded, err := store.Get(ctx, testTenant, "session-1")
	require.NoError(t, err)

	assert.Equal(t, mapping.StepResults, loaded.Step)
	assert.Equal(t, session.Mapping, loaded.Mapping)
	assert.Equal(t, session.Sheet, loaded.Sheet)
	assert.Equal(t, session.Result, loaded.Result)
	assert.NoError(t, store.Ping(ctx))
}

func TestRedisSessionStore_TTLAndTenantScope(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewRedisSessionStore(client, 30*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))

	_, err := store.Get(ctx, "other-tenant", "session-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	mr.FastForward(31 * time.Minute)
	_, err = store.Get(ctx, testTenant, "session-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	swept, err := store.Sweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestRedisSessionStore_Delete(t *testing.T) {
	_, client := setupRedis(t)
	store := NewRedisSessionStore(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))
	require.NoError(t, store.Delete(ctx, testTenant, "session-1"))
	assert.ErrorIs(t, store.Delete(ctx, testTenant, "session-1"), ErrSessionNotFound)
}

func TestMemorySessionStore_IsolatesCallers(t *testing.T) {
	store := NewMemorySessionStore(time.Hour)
	ctx := context.Background()

	session := testSession()
	require.NoError(t, store.Save(ctx, session))

	session.Mapping["Ref"] = mapping.Ignore
	loaded, err := store.Get(ctx, testTenant, "session-1")
	require.NoError(t, err)
	assert.Equal(t, mapping.SKU, loaded.Mapping["Ref"])
}

func TestMemorySessionStore_ExpiryAndSweep(t *testing.T) {
	store := NewMemorySessionStore(time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession()))
	other := testSession()
	other.ID = "session-2"
	now = now.Add(30 * time.Minute)
	require.NoError(t, store.Save(ctx, other))

	now = now.Add(45 * time.Minute)
	_, err := store.Get(ctx, testTenant, "session-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(ctx, testTenant, "session-2")
	assert.NoError(t, err)

	removed, err := store.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.ErrorIs(t, store.Delete(ctx, testTenant, "session-1"), ErrSessionNotFound)
	assert.NoError(t, store.Delete(ctx, testTenant, "session-2"))
}
