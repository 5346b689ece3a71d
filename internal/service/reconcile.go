// Package service contains the query coordinator, trip reconciliation,
// and cache expiry around the persistence layer.
package service

import (
	"time"

	"tripstore/internal/domain"
)

// tripKeys is the set of comparison keys the reconciliation heuristic
// works on, extracted once per trip so the six-way match is a single
// data comparison instead of scattered nil checks.
type tripKeys struct {
	numChanges      int
	legCount        int
	plannedDuration time.Duration

	hasPublicLeg   bool
	firstPublicDep *time.Time // planned departure of first public leg
	lastPublicArr  *time.Time // planned arrival of last public leg
	firstLineLabel *string
	lastLineLabel  *string

	firstDeparture time.Time // raw, used only without public legs
	lastArrival    time.Time
}

const noPlannedDuration = time.Duration(-1) * time.Millisecond

func extractTripKeys(t *domain.Trip) tripKeys {
	k := tripKeys{
		numChanges:     t.NumChanges,
		legCount:       len(t.Legs),
		firstDeparture: t.FirstDepartureTime(),
		lastArrival:    t.LastArrivalTime(),
	}

	first := t.FirstPublicLeg()
	last := t.LastPublicLeg()
	if first != nil {
		k.hasPublicLeg = true
		k.firstPublicDep = first.PlannedDepartureTime()
		k.firstLineLabel = first.Line.Label
	}
	if last != nil {
		k.lastPublicArr = last.PlannedArrivalTime()
		k.lastLineLabel = last.Line.Label
	}

	k.plannedDuration = plannedDuration(t, first, last)
	return k
}

// plannedDuration is the trip's duration on planned times: last public
// leg's planned arrival minus first public leg's planned departure, with
// the raw first/last leg times as fallback when a side has no public
// leg. The precedence is deliberate; provider data quality varies and
// the fallback order matters for matching.
func plannedDuration(t *domain.Trip, first, last *domain.PublicLeg) time.Duration {
	var start, end *time.Time
	if first != nil {
		start = first.PlannedDepartureTime()
	}
	if start == nil {
		if v := t.FirstDepartureTime(); !v.IsZero() {
			start = &v
		}
	}
	if last != nil {
		end = last.PlannedArrivalTime()
	}
	if end == nil {
		if v := t.LastArrivalTime(); !v.IsZero() {
			end = &v
		}
	}
	if start == nil || end == nil {
		return noPlannedDuration
	}
	return end.Sub(*start)
}

// IsSameTrip reports whether candidate is "the same" trip as old.
// Provider trip ids are too generic to rely on across independent
// queries, so the match is heuristic: equal number of changes, leg
// count, planned duration, planned first-departure and last-arrival
// times, and first/last line labels. Planned times are compared so a
// realtime delay does not break the match.
func IsSameTrip(old, candidate *domain.Trip) bool {
	a, b := extractTripKeys(old), extractTripKeys(candidate)

	if a.numChanges != b.numChanges {
		return false
	}
	if a.legCount != b.legCount {
		return false
	}
	if a.plannedDuration != b.plannedDuration {
		return false
	}
	if !equalTimePtr(a.firstPublicDep, b.firstPublicDep) {
		return false
	}
	if !equalTimePtr(a.lastPublicArr, b.lastPublicArr) {
		return false
	}
	if !equalStringPtr(a.firstLineLabel, b.firstLineLabel) {
		return false
	}
	if !equalStringPtr(a.lastLineLabel, b.lastLineLabel) {
		return false
	}
	if !a.hasPublicLeg && !a.firstDeparture.Equal(b.firstDeparture) {
		return false
	}
	if !a.hasPublicLeg && !a.lastArrival.Equal(b.lastArrival) {
		return false
	}
	return true
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
