package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripstore/internal/domain"
)

func TestAddFavoriteLocation_InsertThenBump(t *testing.T) {
	repo := newTestSearchRepo(t)
	ctx := context.Background()

	loc := stationLocation("900100001", "Alexanderplatz")

	first, err := repo.AddFavoriteLocation(ctx, testNetwork, loc, domain.FavLocationFrom)
	require.NoError(t, err)
	require.NotZero(t, first)

	second, err := repo.AddFavoriteLocation(ctx, testNetwork, loc, domain.FavLocationFrom)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var fromCount, toCount int
	err = repo.db.QueryRow(`SELECT fromCount, toCount FROM favorite_locations WHERE uid = ?`, first).
		Scan(&fromCount, &toCount)
	require.NoError(t, err)
	assert.Equal(t, 2, fromCount)
	assert.Equal(t, 0, toCount)
}

func TestAddFavoriteLocation_SlotCountersAreIndependent(t *testing.T) {
	repo := newTestSearchRepo(t)
	ctx := context.Background()

	loc := stationLocation("900100001", "Alexanderplatz")

	uid, err := repo.AddFavoriteLocation(ctx, testNetwork, loc, domain.FavLocationFrom)
	require.NoError(t, err)
	_, err = repo.AddFavoriteLocation(ctx, testNetwork, loc, domain.FavLocationTo)
	require.NoError(t, err)

	var fromCount, viaCount, toCount int
	err = repo.db.QueryRow(`SELECT fromCount, viaCount, toCount FROM favorite_locations WHERE uid = ?`, uid).
		Scan(&fromCount, &viaCount, &toCount)
	require.NoError(t, err)
	assert.Equal(t, 1, fromCount)
	assert.Equal(t, 0, viaCount)
	assert.Equal(t, 1, toCount)
}

func TestAddFavoriteLocation_CoordsAreNotStored(t *testing.T) {
	repo := newTestSearchRepo(t)

	uid, err := repo.AddFavoriteLocation(context.Background(), testNetwork,
		domain.Location{Type: domain.LocationTypeCoord, Lat: 52521918, Lon: 13413215},
		domain.FavLocationFrom)
	require.NoError(t, err)
	assert.Zero(t, uid)
	assert.Equal(t, int64(0), countFavorites(t, repo))
}

func TestAddFavoriteLocation_MatchesByDescriptiveIdentityWithoutID(t *testing.T) {
	repo := newTestSearchRepo(t)
	ctx := context.Background()

	addr := domain.Location{Type: domain.LocationTypeAddress, Lat: 1, Lon: 2, Place: "Berlin", Name: "Home"}

	first, err := repo.AddFavoriteLocation(ctx, testNetwork, addr, domain.FavLocationFrom)
	require.NoError(t, err)
	second, err := repo.AddFavoriteLocation(ctx, testNetwork, addr, domain.FavLocationFrom)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other := addr
	other.Name = "Work"
	third, err := repo.AddFavoriteLocation(ctx, testNetwork, other, domain.FavLocationFrom)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestStoreSearch_InsertThenRefresh(t *testing.T) {
	repo := newTestSearchRepo(t)
	ctx := context.Background()

	fromID, err := repo.AddFavoriteLocation(ctx, testNetwork, stationLocation("1", "A"), domain.FavLocationFrom)
	require.NoError(t, err)
	toID, err := repo.AddFavoriteLocation(ctx, testNetwork, stationLocation("2", "B"), domain.FavLocationTo)
	require.NoError(t, err)

	first, err := repo.StoreSearch(ctx, testNetwork, fromID, nil, toID)
	require.NoError(t, err)
	second, err := repo.StoreSearch(ctx, testNetwork, fromID, nil, toID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int
	err = repo.db.QueryRow(`SELECT count FROM searches WHERE uid = ?`, first).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStoreSearch_ViaDistinguishesSearches(t *testing.T) {
	repo := newTestSearchRepo(t)
	ctx := context.Background()

	fromID, err := repo.AddFavoriteLocation(ctx, testNetwork, stationLocation("1", "A"), domain.FavLocationFrom)
	require.NoError(t, err)
	viaID, err := repo.AddFavoriteLocation(ctx, testNetwork, stationLocation("2", "B"), domain.FavLocationVia)
	require.NoError(t, err)
	toID, err := repo.AddFavoriteLocation(ctx, testNetwork, stationLocation("3", "C"), domain.FavLocationTo)
	require.NoError(t, err)

	direct, err := repo.StoreSearch(ctx, testNetwork, fromID, nil, toID)
	require.NoError(t, err)
	routed, err := repo.StoreSearch(ctx, testNetwork, fromID, &viaID, toID)
	require.NoError(t, err)
	assert.NotEqual(t, direct, routed)
}

func TestStoreSearch_RejectsUnstoredEndpoints(t *testing.T) {
	repo := newTestSearchRepo(t)

	_, err := repo.StoreSearch(context.Background(), testNetwork, 0, nil, 5)
	require.Error(t, err)

	var state *domain.StateError
	assert.ErrorAs(t, err, &state)
}

func TestSetFavorite_RoundTrip(t *testing.T) {
	repo := newTestSearchRepo(t)
	ctx := context.Background()

	fromID, err := repo.AddFavoriteLocation(ctx, testNetwork, stationLocation("1", "A"), domain.FavLocationFrom)
	require.NoError(t, err)
	toID, err := repo.AddFavoriteLocation(ctx, testNetwork, stationLocation("2", "B"), domain.FavLocationTo)
	require.NoError(t, err)
	searchID, err := repo.StoreSearch(ctx, testNetwork, fromID, nil, toID)
	require.NoError(t, err)

	fav, err := repo.IsFavorite(ctx, searchID)
	require.NoError(t, err)
	assert.False(t, fav)

	require.NoError(t, repo.SetFavorite(ctx, searchID, true))
	fav, err = repo.IsFavorite(ctx, searchID)
	require.NoError(t, err)
	assert.True(t, fav)
}

func TestSetFavorite_NotFound(t *testing.T) {
	repo := newTestSearchRepo(t)

	err := repo.SetFavorite(context.Background(), 12345, true)
	require.Error(t, err)

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func countFavorites(t *testing.T, repo *SearchRepo) int64 {
	t.Helper()
	var n int64
	if err := repo.db.QueryRow(`SELECT COUNT(*) FROM favorite_locations`).Scan(&n); err != nil {
		t.Fatalf("count favorites: %v", err)
	}
	return n
}
