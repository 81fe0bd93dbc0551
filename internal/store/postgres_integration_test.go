//go:build postgres_integration

package store

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickbatch/internal/batching"
	"pickbatch/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer p.Close()
	ctx := t.Context()
	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Migrate(ctx))
	require.NoError(t, p.Migrate(ctx), "second run is a no-op")

	wave := "wave-" + uuid.NewString()
	orders := []batching.Order{
		{ID: "o1", Items: []batching.Item{{Aisle: "3a"}}},
		{ID: "o2", Items: []batching.Item{{Aisle: "3b"}, {Aisle: "4"}}},
		{ID: "o1", Items: []batching.Item{{Aisle: "9"}}},
	}
	_, created, skipped, err := p.CreateOrders(ctx, "t_it", wave, orders)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, skipped)

	got, err := p.WaveOrders(ctx, "t_it", wave)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "o1", got[0].ID)
	assert.Equal(t, "3a", got[0].Items[0].Aisle)

	plan := model.BatchPlan{ID: uuid.NewString(), TenantID: "t_it", WaveID: wave, Strategy: "greedy", TotalAisles: 3, CreatedAt: time.Now().UTC()}
	require.NoError(t, p.SavePlan(ctx, plan))
	back, err := p.GetPlan(ctx, "t_it", plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Strategy, back.Strategy)
	_, err = p.GetPlan(ctx, "other", plan.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
