package store

import (
	"encoding/hex"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"x"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	if computeDedupKey(body) != got {
		t.Fatalf("hash key not stable")
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty -> nil expected")
	}
	if v := nullIfEmpty("s"); v != "s" {
		t.Fatalf("non-empty passed through, got %v", v)
	}
}

func TestBindNumbersPlaceholders(t *testing.T) {
	args := []any{"t1"}
	q := `WHERE tenant_id=$1 AND wave_id=` + bind(&args, "w1") + ` LIMIT ` + bind(&args, 10)
	assert.Equal(t, `WHERE tenant_id=$1 AND wave_id=$2 LIMIT $3`, q)
	assert.Equal(t, []any{"t1", "w1", 10}, args)
}

func TestCursorRoundTrip(t *testing.T) {
	n, err := parseCursor("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = parseCursor(formatCursor(42))
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	for _, bad := range []string{"abc", "-1", "1.5"} {
		_, err := parseCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 100, clampLimit(0))
	assert.Equal(t, 100, clampLimit(-3))
	assert.Equal(t, 100, clampLimit(501))
	assert.Equal(t, 25, clampLimit(25))
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	body, err := migrations.ReadFile(names[0])
	require.NoError(t, err)
	for _, table := range []string{"orders", "batch_plans", "planner_config", "subscriptions", "webhook_deliveries", "webhook_dlq"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table+" ", table)
	}
	assert.True(t, strings.Contains(string(body), "UNIQUE (tenant_id, event_type, url, dedup_key)"))
}
