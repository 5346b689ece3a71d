package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripstore/internal/domain"
	"tripstore/internal/metrics"
)

type fakeProvider struct {
	mu      sync.Mutex
	queryFn func(ctx context.Context, q domain.TripQuery) (*domain.QueryTripsResult, error)
	moreFn  func(ctx context.Context, qc domain.QueryContext, later bool) (*domain.QueryTripsResult, error)
	calls   int
}

func (p *fakeProvider) QueryTrips(ctx context.Context, q domain.TripQuery) (*domain.QueryTripsResult, error) {
	p.mu.Lock()
	p.calls++
	fn := p.queryFn
	p.mu.Unlock()
	return fn(ctx, q)
}

func (p *fakeProvider) QueryMoreTrips(ctx context.Context, qc domain.QueryContext, later bool) (*domain.QueryTripsResult, error) {
	p.mu.Lock()
	fn := p.moreFn
	p.mu.Unlock()
	if fn == nil {
		panic("unexpected QueryMoreTrips call")
	}
	return fn(ctx, qc, later)
}

type fakeTripStore struct {
	mu      sync.Mutex
	written map[string]*domain.Trip
}

func newFakeTripStore() *fakeTripStore {
	return &fakeTripStore{written: make(map[string]*domain.Trip)}
}

func (s *fakeTripStore) WriteTrip(_ context.Context, t *domain.Trip, _ domain.NetworkID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written[t.ID] = t
	return int64(len(s.written)), nil
}

func (s *fakeTripStore) GetTripByID(_ context.Context, id string) (*domain.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.written[id]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound("trip %q not in cache", id)
}

func (s *fakeTripStore) DeleteTrip(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.written[id]; !ok {
		return domain.ErrNotFound("trip %q not in cache", id)
	}
	delete(s.written, id)
	return nil
}

func (s *fakeTripStore) DeleteTripsArrivingBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeTripStore) Cleanup(context.Context) (domain.CleanupStats, error) {
	return domain.CleanupStats{}, nil
}

func (s *fakeTripStore) writtenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

type fakeSearchStore struct {
	mu        sync.Mutex
	favorites map[string]int64
	searches  map[int64]bool // search id -> favorite flag
	nextID    int64
}

func newFakeSearchStore() *fakeSearchStore {
	return &fakeSearchStore{favorites: make(map[string]int64), searches: make(map[int64]bool)}
}

func (s *fakeSearchStore) AddFavoriteLocation(_ context.Context, _ domain.NetworkID, l domain.Location, _ domain.FavLocationType) (int64, error) {
	if l.Type == domain.LocationTypeCoord {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := l.ID + "/" + l.Name
	if id, ok := s.favorites[key]; ok {
		return id, nil
	}
	s.nextID++
	s.favorites[key] = s.nextID
	return s.nextID, nil
}

func (s *fakeSearchStore) StoreSearch(_ context.Context, _ domain.NetworkID, fromID int64, _ *int64, toID int64) (int64, error) {
	if fromID == 0 || toID == 0 {
		return 0, domain.ErrState("from and to must be stored favorites")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.searches[s.nextID] = false
	return s.nextID, nil
}

func (s *fakeSearchStore) IsFavorite(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches[id], nil
}

func (s *fakeSearchStore) SetFavorite(_ context.Context, id int64, fav bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.searches[id]; !ok {
		return domain.ErrNotFound("stored search %d not found", id)
	}
	s.searches[id] = fav
	return nil
}

type fakeCursor struct {
	earlier bool
	later   bool
}

func (c *fakeCursor) CanQueryEarlier() bool { return c.earlier }
func (c *fakeCursor) CanQueryLater() bool   { return c.later }

func okResult(qc domain.QueryContext, trips ...*domain.Trip) *domain.QueryTripsResult {
	return &domain.QueryTripsResult{Status: domain.StatusOK, Trips: trips, Context: qc}
}

func testQuery() domain.TripQuery {
	return domain.TripQuery{
		From:      domain.Location{ID: "1", Type: domain.LocationTypeStation, Name: "A"},
		To:        domain.Location{ID: "2", Type: domain.LocationTypeStation, Name: "B"},
		Time:      matchBase,
		Departure: true,
	}
}

func newTestCoordinator(p domain.TripProvider, trips domain.TripStore, searches domain.SearchStore) *Coordinator {
	return NewCoordinator(p, trips, searches, "DB", slog.Default(), metrics.NewCollector())
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestSearch_DeliversThenPersists(t *testing.T) {
	trip := publicTrip("t1", "S5", matchBase)
	provider := &fakeProvider{
		queryFn: func(context.Context, domain.TripQuery) (*domain.QueryTripsResult, error) {
			return okResult(&fakeCursor{earlier: true, later: true}, trip), nil
		},
	}
	store := newFakeTripStore()
	c := newTestCoordinator(provider, store, newFakeSearchStore())

	c.Search(testQuery())

	waitFor(t, func() bool { return len(c.Trips()) == 1 }, "trip delivered")
	assert.Equal(t, domain.QueryMoreBoth, c.MoreState())

	waitFor(t, func() bool { return store.writtenCount() == 1 }, "trip persisted")
}

func TestSearch_SupersededSearchNeverPublishes(t *testing.T) {
	stale := publicTrip("stale", "S5", matchBase)
	fresh := publicTrip("fresh", "S7", matchBase.Add(time.Hour))

	release := make(chan struct{})
	provider := &fakeProvider{}
	provider.queryFn = func(ctx context.Context, q domain.TripQuery) (*domain.QueryTripsResult, error) {
		if q.From.Name == "slow" {
			// Simulate a slow provider that responds after being
			// superseded.
			<-ctx.Done()
			close(release)
			return okResult(nil, stale), nil
		}
		return okResult(nil, fresh), nil
	}
	store := newFakeTripStore()
	c := newTestCoordinator(provider, store, newFakeSearchStore())

	slowQuery := testQuery()
	slowQuery.From.Name = "slow"
	c.Search(slowQuery)
	c.Search(testQuery())

	<-release
	waitFor(t, func() bool { return len(c.Trips()) == 1 }, "second search delivered")

	trips := c.Trips()
	require.Len(t, trips, 1)
	assert.Equal(t, "fresh", trips[0].ID, "the superseded result must never surface")

	waitFor(t, func() bool { return store.writtenCount() == 1 }, "only the fresh trip persisted")
}

func TestSearch_ClearsPreviousResults(t *testing.T) {
	provider := &fakeProvider{
		queryFn: func(context.Context, domain.TripQuery) (*domain.QueryTripsResult, error) {
			return okResult(nil, publicTrip("t1", "S5", matchBase)), nil
		},
	}
	c := newTestCoordinator(provider, newFakeTripStore(), newFakeSearchStore())

	c.Search(testQuery())
	waitFor(t, func() bool { return len(c.Trips()) == 1 }, "first search delivered")

	// Block the second search so the cleared state is observable.
	hold := make(chan struct{})
	provider.mu.Lock()
	provider.queryFn = func(ctx context.Context, q domain.TripQuery) (*domain.QueryTripsResult, error) {
		<-hold
		return okResult(nil, publicTrip("t2", "S7", matchBase)), nil
	}
	provider.mu.Unlock()

	c.Search(testQuery())
	assert.Empty(t, c.Trips(), "new search clears the previous result set")
	assert.Equal(t, domain.QueryMoreNone, c.MoreState())
	close(hold)
}

func TestSearch_ProviderStatusPublishesError(t *testing.T) {
	provider := &fakeProvider{
		queryFn: func(context.Context, domain.TripQuery) (*domain.QueryTripsResult, error) {
			return &domain.QueryTripsResult{Status: domain.StatusServiceDown}, nil
		},
	}
	c := newTestCoordinator(provider, newFakeTripStore(), newFakeSearchStore())

	c.Search(testQuery())

	select {
	case e := <-c.Errors():
		assert.Equal(t, ScopeQuery, e.Scope)
		assert.Equal(t, "trip_error_service_down", e.MessageKey)
	case <-time.After(2 * time.Second):
		t.Fatal("no error published")
	}
	assert.Empty(t, c.Trips())
}

func TestSearch_AfterFailureNothingCountsAsCancelled(t *testing.T) {
	provider := &fakeProvider{
		queryFn: func(context.Context, domain.TripQuery) (*domain.QueryTripsResult, error) {
			return nil, errors.New("provider exploded")
		},
	}
	collector := metrics.NewCollector()
	c := NewCoordinator(provider, newFakeTripStore(), newFakeSearchStore(), "DB", slog.Default(), collector)

	c.Search(testQuery())
	select {
	case <-c.Errors():
	case <-time.After(2 * time.Second):
		t.Fatal("no error published")
	}
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return !c.searching
	}, "failed search clears the in-flight flag")

	// The next search finds nothing in flight to cancel.
	c.Search(testQuery())
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.SearchesCancelled))
}

func TestSearchMore_WithoutSearchFailsLoudly(t *testing.T) {
	c := newTestCoordinator(&fakeProvider{}, newFakeTripStore(), newFakeSearchStore())

	err := c.SearchMore(true)
	require.Error(t, err)

	var state *domain.StateError
	assert.ErrorAs(t, err, &state)
}

func TestSearchMore_DisallowedDirection(t *testing.T) {
	provider := &fakeProvider{
		queryFn: func(context.Context, domain.TripQuery) (*domain.QueryTripsResult, error) {
			return okResult(&fakeCursor{later: true}, publicTrip("t1", "S5", matchBase)), nil
		},
	}
	c := newTestCoordinator(provider, newFakeTripStore(), newFakeSearchStore())

	c.Search(testQuery())
	waitFor(t, func() bool { return len(c.Trips()) == 1 }, "search delivered")

	err := c.SearchMore(false)
	require.Error(t, err)

	var direction *domain.DirectionError
	require.ErrorAs(t, err, &direction)
	assert.False(t, direction.Later)

	assert.Len(t, c.Trips(), 1, "failed pagination leaves the set untouched")
}

func TestSearchMore_MergesAndDeduplicates(t *testing.T) {
	t1 := publicTrip("t1", "S5", matchBase)
	t2 := publicTrip("t2", "S7", matchBase.Add(10*time.Minute))
	t2next := publicTrip("t2-again", "S7", matchBase.Add(10*time.Minute))
	t3 := publicTrip("t3", "S5", matchBase.Add(20*time.Minute))

	provider := &fakeProvider{
		queryFn: func(context.Context, domain.TripQuery) (*domain.QueryTripsResult, error) {
			return okResult(&fakeCursor{later: true}, t1, t2), nil
		},
		moreFn: func(_ context.Context, _ domain.QueryContext, later bool) (*domain.QueryTripsResult, error) {
			return okResult(&fakeCursor{later: true}, t2next, t3), nil
		},
	}
	c := newTestCoordinator(provider, newFakeTripStore(), newFakeSearchStore())

	c.Search(testQuery())
	waitFor(t, func() bool { return len(c.Trips()) == 2 }, "initial page delivered")

	require.NoError(t, c.SearchMore(true))
	waitFor(t, func() bool { return len(c.Trips()) == 3 }, "next page merged without duplicates")

	trips := c.Trips()
	require.Len(t, trips, 3)
	assert.Equal(t, "t1", trips[0].ID)
	assert.Equal(t, "t2", trips[1].ID, "the duplicate from the next page is dropped")
	assert.Equal(t, "t3", trips[2].ID)
}

func TestSearchMore_StalePageAfterNewSearchIsDropped(t *testing.T) {
	first := publicTrip("t1", "S5", matchBase)
	second := publicTrip("t2", "S7", matchBase.Add(time.Hour))
	late := publicTrip("late", "S5", matchBase.Add(10*time.Minute))

	hold := make(chan struct{})
	done := make(chan struct{})
	provider := &fakeProvider{
		queryFn: func(_ context.Context, q domain.TripQuery) (*domain.QueryTripsResult, error) {
			if q.From.Name == "second" {
				return okResult(&fakeCursor{later: true}, second), nil
			}
			return okResult(&fakeCursor{later: true}, first), nil
		},
		moreFn: func(context.Context, domain.QueryContext, bool) (*domain.QueryTripsResult, error) {
			// The page arrives only after a newer search replaced the set.
			<-hold
			defer close(done)
			return okResult(&fakeCursor{later: true}, late), nil
		},
	}
	c := newTestCoordinator(provider, newFakeTripStore(), newFakeSearchStore())

	c.Search(testQuery())
	waitFor(t, func() bool { return len(c.Trips()) == 1 }, "first search delivered")
	require.NoError(t, c.SearchMore(true))

	secondQuery := testQuery()
	secondQuery.From.Name = "second"
	c.Search(secondQuery)
	waitFor(t, func() bool {
		trips := c.Trips()
		return len(trips) == 1 && trips[0].ID == "t2"
	}, "second search delivered")

	close(hold)
	<-done
	time.Sleep(20 * time.Millisecond)

	trips := c.Trips()
	require.Len(t, trips, 1, "the stale page must not leak into the new search")
	assert.Equal(t, "t2", trips[0].ID)
}

func TestFindTripByID_MemoryFirstThenCache(t *testing.T) {
	trip := publicTrip("t1", "S5", matchBase)
	provider := &fakeProvider{
		queryFn: func(context.Context, domain.TripQuery) (*domain.QueryTripsResult, error) {
			return okResult(nil, trip), nil
		},
	}
	store := newFakeTripStore()
	cached := publicTrip("cached", "S7", matchBase.Add(time.Hour))
	_, err := store.WriteTrip(context.Background(), cached, "DB")
	require.NoError(t, err)

	c := newTestCoordinator(provider, store, newFakeSearchStore())
	c.Search(testQuery())
	waitFor(t, func() bool { return len(c.Trips()) == 1 }, "search delivered")

	got, err := c.FindTripByID(context.Background(), "t1")
	require.NoError(t, err)
	assert.Same(t, trip, got, "in-memory set wins")

	got, err = c.FindTripByID(context.Background(), "cached")
	require.NoError(t, err)
	assert.Same(t, cached, got, "falls back to the cache")

	_, err = c.FindTripByID(context.Background(), "missing")
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestToggleFavorite(t *testing.T) {
	provider := &fakeProvider{
		queryFn: func(context.Context, domain.TripQuery) (*domain.QueryTripsResult, error) {
			return okResult(nil, publicTrip("t1", "S5", matchBase)), nil
		},
	}
	searches := newFakeSearchStore()
	c := newTestCoordinator(provider, newFakeTripStore(), searches)

	// Toggling before any search is stored is a contract violation.
	_, err := c.ToggleFavorite(context.Background())
	var state *domain.StateError
	require.ErrorAs(t, err, &state)

	c.Search(testQuery())
	waitFor(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.searchID != 0
	}, "search stored")

	fav, err := c.ToggleFavorite(context.Background())
	require.NoError(t, err)
	assert.True(t, fav)
	assert.True(t, c.IsFavorite())

	fav, err = c.ToggleFavorite(context.Background())
	require.NoError(t, err)
	assert.False(t, fav)
}
