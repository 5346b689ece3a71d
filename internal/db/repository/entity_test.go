package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripstore/internal/db"
	"tripstore/internal/domain"
)

func newTestEntityStore(t *testing.T) *EntityStore {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	return NewEntityStore(writeDB)
}

func TestUpsertLocation_DeduplicatesByExternalID(t *testing.T) {
	es := newTestEntityStore(t)
	ctx := context.Background()

	loc := stationLocation("900100001", "Alexanderplatz")

	first, err := es.UpsertLocation(ctx, testNetwork, loc)
	require.NoError(t, err)
	require.NotZero(t, first)

	// Same identity, different descriptive fields: must resolve to the
	// existing row.
	changed := loc
	changed.Name = "Alexanderplatz Bhf"
	second, err := es.UpsertLocation(ctx, testNetwork, changed)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUpsertLocation_DifferentNetworksDoNotCollide(t *testing.T) {
	es := newTestEntityStore(t)
	ctx := context.Background()

	loc := stationLocation("900100001", "Alexanderplatz")

	first, err := es.UpsertLocation(ctx, "DB", loc)
	require.NoError(t, err)
	second, err := es.UpsertLocation(ctx, "VBB", loc)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestUpsertLocation_NoIDAlwaysInsertsFresh(t *testing.T) {
	es := newTestEntityStore(t)
	ctx := context.Background()

	loc := domain.Location{Type: domain.LocationTypeAddress, Lat: 1, Lon: 2, Name: "Somewhere"}

	first, err := es.UpsertLocation(ctx, testNetwork, loc)
	require.NoError(t, err)
	second, err := es.UpsertLocation(ctx, testNetwork, loc)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "locations without an id never deduplicate")
}

func TestUpsertLine_Deduplicates(t *testing.T) {
	es := newTestEntityStore(t)
	ctx := context.Background()

	first, err := es.UpsertLine(ctx, testNetwork, testLine("s5", "S5"))
	require.NoError(t, err)
	second, err := es.UpsertLine(ctx, testNetwork, testLine("s5", "S5"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	third, err := es.UpsertLine(ctx, testNetwork, testLine("u2", "U2"))
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestInsertStop_NeverDeduplicates(t *testing.T) {
	writeDB, _ := db.OpenTestSQLite(t)
	es := NewEntityStore(writeDB)
	ctx := context.Background()

	locID, err := es.UpsertLocation(ctx, testNetwork, stationLocation("900100001", "Alexanderplatz"))
	require.NoError(t, err)

	stop := domain.Stop{
		Location:             stationLocation("900100001", "Alexanderplatz"),
		PlannedArrivalTime:   tsPtr(1_700_000_000_000),
		PlannedDepartureTime: tsPtr(1_700_000_060_000),
	}

	first, err := es.InsertStop(ctx, stop, locID)
	require.NoError(t, err)
	second, err := es.InsertStop(ctx, stop, locID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "stops are leg-scoped rows")
}
