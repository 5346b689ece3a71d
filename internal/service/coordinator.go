package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripstore/internal/domain"
	"tripstore/internal/metrics"
)

// QueryErrorScope says which flow produced a published error.
type QueryErrorScope string

const (
	ScopeQuery     QueryErrorScope = "query"
	ScopeQueryMore QueryErrorScope = "query_more"
)

// QueryError is a user-facing error published on the coordinator's error
// feed. MessageKey is a localisation key for known failures; Detail
// carries raw diagnostic text for everything else.
type QueryError struct {
	Scope      QueryErrorScope
	MessageKey string
	Detail     string
}

// Coordinator orchestrates trip searches against the remote provider:
// single-flight cancellation, pagination merge, background persistence,
// and observable result publication. All mutable search state lives here,
// guarded by mu; observers only ever read snapshots.
type Coordinator struct {
	provider domain.TripProvider
	trips    domain.TripStore
	searches domain.SearchStore
	network  domain.NetworkID
	logger   *slog.Logger
	metrics  *metrics.Collector

	mu           sync.Mutex
	cancelSearch context.CancelFunc // cancels exactly the in-flight search task
	searching    bool
	tripSet      []*domain.Trip
	moreState    domain.QueryMoreState
	queryCtx     domain.QueryContext
	lastQuery    *domain.TripQuery
	searchID     int64 // stored search row id, 0 until bookkeeping ran
	isFavorite   bool

	errs    chan QueryError
	updates chan struct{}
}

// NewCoordinator wires a coordinator with its dependencies injected.
func NewCoordinator(provider domain.TripProvider, trips domain.TripStore, searches domain.SearchStore, network domain.NetworkID, logger *slog.Logger, collector *metrics.Collector) *Coordinator {
	return &Coordinator{
		provider:  provider,
		trips:     trips,
		searches:  searches,
		network:   network,
		logger:    logger.With("component", "coordinator"),
		metrics:   collector,
		moreState: domain.QueryMoreNone,
		errs:      make(chan QueryError, 8),
		updates:   make(chan struct{}, 1),
	}
}

// Trips returns a snapshot of the current observable trip set.
func (c *Coordinator) Trips() []*domain.Trip {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.Trip, len(c.tripSet))
	copy(out, c.tripSet)
	return out
}

// MoreState returns which pagination directions are currently available.
func (c *Coordinator) MoreState() domain.QueryMoreState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moreState
}

// IsFavorite reports whether the current stored search is a favorite.
func (c *Coordinator) IsFavorite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isFavorite
}

// Network returns the provider network this coordinator writes under.
func (c *Coordinator) Network() domain.NetworkID {
	return c.network
}

// LastQuery returns the query of the most recent search, if any.
func (c *Coordinator) LastQuery() (domain.TripQuery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastQuery == nil {
		return domain.TripQuery{}, false
	}
	return *c.lastQuery, true
}

// Errors is the coordinator's error feed. The channel is buffered; when
// nobody listens the oldest entry is dropped.
func (c *Coordinator) Errors() <-chan QueryError { return c.errs }

// Updates ticks whenever the observable state changed. At most one tick
// is pending.
func (c *Coordinator) Updates() <-chan struct{} { return c.updates }

// Search starts a new trip search. Any in-flight search task is
// cancelled; its result will never be published. The previous result set
// is cleared immediately.
func (c *Coordinator) Search(q domain.TripQuery) {
	c.mu.Lock()
	if c.cancelSearch != nil {
		c.cancelSearch()
		if c.searching {
			c.metrics.SearchesCancelled.Inc()
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelSearch = cancel
	c.searching = true
	c.clearStateLocked()
	c.lastQuery = &q
	c.mu.Unlock()

	c.metrics.SearchesStarted.Inc()
	c.notify()

	tag := uuid.NewString()[:8]
	go c.runSearch(ctx, tag, q)
}

// Stop cancels any in-flight search task.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelSearch != nil {
		c.cancelSearch()
	}
}

func (c *Coordinator) clearStateLocked() {
	c.tripSet = nil
	c.moreState = domain.QueryMoreNone
	c.queryCtx = nil
	c.searchID = 0
	c.isFavorite = false
}

func (c *Coordinator) runSearch(ctx context.Context, tag string, q domain.TripQuery) {
	log := c.logger.With("search", tag)
	log.Info("querying trips",
		"from", q.From.Name, "to", q.To.Name,
		"time", q.Time, "departure", q.Departure)

	res, err := c.provider.QueryTrips(ctx, q)
	if err != nil {
		c.finishSearch(ctx)
		c.publishFailure(ctx, ScopeQuery, err, log)
		return
	}

	if res.Status != domain.StatusOK || len(res.Trips) == 0 {
		if ctx.Err() != nil {
			return // superseded while the provider was responding
		}
		c.finishSearch(ctx)
		log.Info("search failed", "status", res.Status)
		c.metrics.QueryErrors.WithLabelValues("provider").Inc()
		c.pushError(QueryError{Scope: ScopeQuery, MessageKey: res.Status.MessageKey()})
		return
	}

	// Deliver the result first so observers are not gated on disk I/O.
	if !c.publishResult(func() bool { return ctx.Err() != nil }, res, log) {
		return
	}

	// Bookkeeping and persistence run detached: a newer search must not
	// cancel the write-back of an already-delivered result.
	go c.persistResult(context.Background(), q, res, log)
}

// finishSearch clears the in-flight flag unless a newer search already
// took over.
func (c *Coordinator) finishSearch(ctx context.Context) {
	c.mu.Lock()
	if ctx.Err() == nil {
		c.searching = false
	}
	c.mu.Unlock()
}

// publishResult merges the result into the observable set. The superseded
// guard is evaluated under the lock; when it fires nothing is published
// and false is returned.
func (c *Coordinator) publishResult(superseded func() bool, res *domain.QueryTripsResult, log *slog.Logger) bool {
	c.mu.Lock()
	if superseded != nil && superseded() {
		c.mu.Unlock()
		return false
	}
	c.searching = false
	c.queryCtx = res.Context
	c.moreState = domain.QueryMoreStateFromContext(res.Context)
	c.tripSet = mergeTrips(c.tripSet, res.Trips)
	total := len(c.tripSet)
	c.mu.Unlock()

	c.metrics.ResultsDelivered.Inc()
	c.notify()
	log.Info("delivered trips", "new", len(res.Trips), "total", total)
	return true
}

// persistResult stores favorite locations, the search row, and every
// returned trip. Failures here are logged and swallowed; they never roll
// back an already-delivered result.
func (c *Coordinator) persistResult(ctx context.Context, q domain.TripQuery, res *domain.QueryTripsResult, log *slog.Logger) {
	fromID, err := c.searches.AddFavoriteLocation(ctx, c.network, q.From, domain.FavLocationFrom)
	if err != nil {
		log.Warn("store favorite from failed", "error", err)
	}
	var viaID *int64
	if q.Via != nil {
		id, err := c.searches.AddFavoriteLocation(ctx, c.network, *q.Via, domain.FavLocationVia)
		if err != nil {
			log.Warn("store favorite via failed", "error", err)
		} else if id != 0 {
			viaID = &id
		}
	}
	toID, err := c.searches.AddFavoriteLocation(ctx, c.network, q.To, domain.FavLocationTo)
	if err != nil {
		log.Warn("store favorite to failed", "error", err)
	}

	if fromID != 0 && toID != 0 {
		searchID, err := c.searches.StoreSearch(ctx, c.network, fromID, viaID, toID)
		if err != nil {
			log.Warn("store search failed", "error", err)
		} else {
			fav, err := c.searches.IsFavorite(ctx, searchID)
			if err != nil {
				log.Warn("read favorite state failed", "error", err)
			}
			c.mu.Lock()
			c.searchID = searchID
			c.isFavorite = fav
			c.mu.Unlock()
			c.notify()
		}
	}

	for _, t := range res.Trips {
		if _, err := c.trips.WriteTrip(ctx, t, c.network); err != nil {
			log.Warn("cache write failed", "trip", t.ID, "error", err)
			c.metrics.PersistErrors.Inc()
			continue
		}
		c.metrics.TripsPersisted.Inc()
	}
}

// SearchMore fetches earlier or later trips for the current search and
// merges them into the observable set. Calling it without a prior search
// is a caller-contract violation; asking for a direction the cursor
// disallows fails without touching the trip set.
func (c *Coordinator) SearchMore(later bool) error {
	c.mu.Lock()
	qc := c.queryCtx
	c.mu.Unlock()

	if qc == nil {
		return domain.ErrState("no query context: search first")
	}
	if later && !qc.CanQueryLater() {
		return &domain.DirectionError{Later: true}
	}
	if !later && !qc.CanQueryEarlier() {
		return &domain.DirectionError{Later: false}
	}

	go func() {
		log := c.logger.With("later", later)
		res, err := c.provider.QueryMoreTrips(context.Background(), qc, later)
		if err != nil {
			c.publishFailure(context.Background(), ScopeQueryMore, err, log)
			return
		}
		if res.Status != domain.StatusOK || len(res.Trips) == 0 {
			c.metrics.QueryErrors.WithLabelValues("provider").Inc()
			c.pushError(QueryError{Scope: ScopeQueryMore, MessageKey: res.Status.MessageKey()})
			return
		}
		// A search started after this page was requested owns the trip
		// set now; merging a stale page into it would mix results.
		if !c.publishResult(func() bool { return c.queryCtx != qc }, res, log) {
			log.Debug("pagination superseded")
			return
		}
		go c.persistTrips(context.Background(), res.Trips, log)
	}()
	return nil
}

func (c *Coordinator) persistTrips(ctx context.Context, trips []*domain.Trip, log *slog.Logger) {
	for _, t := range trips {
		if _, err := c.trips.WriteTrip(ctx, t, c.network); err != nil {
			log.Warn("cache write failed", "trip", t.ID, "error", err)
			c.metrics.PersistErrors.Inc()
			continue
		}
		c.metrics.TripsPersisted.Inc()
	}
}

// FindTripByID checks the in-memory result set first, then falls back to
// the cache.
func (c *Coordinator) FindTripByID(ctx context.Context, id string) (*domain.Trip, error) {
	c.mu.Lock()
	for _, t := range c.tripSet {
		if t.ID == id {
			c.mu.Unlock()
			c.metrics.CacheHits.Inc()
			return t, nil
		}
	}
	c.mu.Unlock()

	t, err := c.trips.GetTripByID(ctx, id)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			c.metrics.CacheMisses.Inc()
		}
		return nil, err
	}
	c.metrics.CacheHits.Inc()
	return t, nil
}

// ToggleFavorite flips the favorite flag of the current stored search.
// Fails loudly when no search has been stored yet.
func (c *Coordinator) ToggleFavorite(ctx context.Context) (bool, error) {
	c.mu.Lock()
	searchID, fav := c.searchID, c.isFavorite
	c.mu.Unlock()

	if searchID == 0 {
		return false, domain.ErrState("no stored search to favorite")
	}
	if err := c.searches.SetFavorite(ctx, searchID, !fav); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.isFavorite = !fav
	c.mu.Unlock()
	c.notify()
	return !fav, nil
}

// publishFailure classifies a failed provider call and publishes a
// user-facing error. Cancellation is silent: it means the task was
// superseded on purpose.
func (c *Coordinator) publishFailure(ctx context.Context, scope QueryErrorScope, err error, log *slog.Logger) {
	if errors.Is(err, context.Canceled) || (ctx != nil && ctx.Err() != nil) {
		log.Debug("search cancelled")
		return
	}

	c.metrics.QueryErrors.WithLabelValues("network").Inc()

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		log.Warn("provider timeout", "error", err)
		c.pushError(QueryError{Scope: scope, MessageKey: "error_connection_failure"})
	case isConnectivityError(err):
		log.Warn("no connectivity", "error", err)
		c.pushError(QueryError{Scope: scope, MessageKey: "error_no_internet"})
	default:
		log.Warn("provider call failed", "error", err)
		c.pushError(QueryError{Scope: scope, Detail: err.Error()})
	}
}

func isConnectivityError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// pushError delivers on the buffered error feed, dropping the oldest
// entry when the buffer is full.
func (c *Coordinator) pushError(e QueryError) {
	for {
		select {
		case c.errs <- e:
			return
		default:
			select {
			case <-c.errs:
			default:
			}
		}
	}
}

func (c *Coordinator) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// mergeTrips is a set union over the dedup key. Providers like VVO return
// duplicate trips across pages; trips with the same departure and arrival
// times and the same lines count as duplicates.
func mergeTrips(existing, incoming []*domain.Trip) []*domain.Trip {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]*domain.Trip, 0, len(existing)+len(incoming))
	for _, t := range existing {
		key := tripDedupKey(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, t)
	}
	for _, t := range incoming {
		key := tripDedupKey(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, t)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].FirstDepartureTime().Before(merged[j].FirstDepartureTime())
	})
	return merged
}

func tripDedupKey(t *domain.Trip) string {
	var b strings.Builder
	b.WriteString(t.FirstDepartureTime().UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(t.LastArrivalTime().UTC().Format(time.RFC3339Nano))
	for _, leg := range t.Legs {
		b.WriteByte('|')
		if pl, ok := leg.(*domain.PublicLeg); ok && pl.Line.Name != nil {
			b.WriteString(*pl.Line.Name)
		}
	}
	return b.String()
}
