package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidenceledger/oadrvtn/internal/database"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

func TestCachedLookup(t *testing.T) {
	calls := 0
	records := map[string]*models.VenRecord{
		"ven_001": {VenID: "ven_001", Fingerprint: "AA", RegistrationID: "reg"},
	}
	next := Func(func(_ context.Context, venID string) (*models.VenRecord, error) {
		calls++
		return records[venID], nil
	})

	c := NewCached(next, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ven, err := c.Lookup(ctx, "ven_001")
		require.NoError(t, err)
		assert.Equal(t, "AA", ven.Fingerprint)
	}
	assert.Equal(t, 1, calls)

	ven, err := c.Lookup(ctx, "ven_404")
	require.NoError(t, err)
	assert.Nil(t, ven)
	_, _ = c.Lookup(ctx, "ven_404")
	assert.Equal(t, 2, calls, "unknown VENs are cached")

	records["ven_001"] = &models.VenRecord{VenID: "ven_001", Fingerprint: "BB"}
	c.Invalidate("ven_001")
	ven, err = c.Lookup(ctx, "ven_001")
	require.NoError(t, err)
	assert.Equal(t, "BB", ven.Fingerprint)
	assert.Equal(t, 3, calls)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	calls := 0
	c := NewCached(Func(func(context.Context, string) (*models.VenRecord, error) {
		calls++
		return nil, errors.New("store down")
	}), time.Minute)

	_, err := c.Lookup(context.Background(), "ven_001")
	assert.Error(t, err)
	_, err = c.Lookup(context.Background(), "ven_001")
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestFromDatabase(t *testing.T) {
	db := database.New(filepath.Join(t.TempDir(), "vtn.db"))
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.SaveVen(ctx, &models.VenRecord{VenID: "ven_001", Fingerprint: "AA"}))

	port := FromDatabase(db)
	ven, err := port.Lookup(ctx, "ven_001")
	require.NoError(t, err)
	require.NotNil(t, ven)
	assert.False(t, ven.Registered())

	ven, err = port.Lookup(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, ven)
}
