package domain

import "time"

// Optimize selects what the provider should optimise routes for.
type Optimize string

const (
	OptimizeLeastDuration Optimize = "least_duration"
	OptimizeLeastChanges  Optimize = "least_changes"
	OptimizeLeastWalking  Optimize = "least_walking"
)

// WalkSpeed tunes walking-leg duration estimates.
type WalkSpeed string

const (
	WalkSpeedSlow   WalkSpeed = "slow"
	WalkSpeedNormal WalkSpeed = "normal"
	WalkSpeedFast   WalkSpeed = "fast"
)

// TripQuery describes one trip search.
type TripQuery struct {
	From      Location  `json:"from"`
	Via       *Location `json:"via,omitempty"`
	To        Location  `json:"to"`
	Time      time.Time `json:"time"`
	Departure bool      `json:"departure"` // Time is a departure time; otherwise an arrival time
	Products  []Product `json:"products,omitempty"`
	Optimize  Optimize  `json:"optimize,omitempty"`
	WalkSpeed WalkSpeed `json:"walkSpeed,omitempty"`
}

// QueryStatus is the provider-level outcome of a trip query.
type QueryStatus string

const (
	StatusOK                  QueryStatus = "OK"
	StatusAmbiguous           QueryStatus = "AMBIGUOUS"
	StatusTooClose            QueryStatus = "TOO_CLOSE"
	StatusUnknownFrom         QueryStatus = "UNKNOWN_FROM"
	StatusUnknownVia          QueryStatus = "UNKNOWN_VIA"
	StatusUnknownTo           QueryStatus = "UNKNOWN_TO"
	StatusUnknownLocation     QueryStatus = "UNKNOWN_LOCATION"
	StatusUnresolvableAddress QueryStatus = "UNRESOLVABLE_ADDRESS"
	StatusNoTrips             QueryStatus = "NO_TRIPS"
	StatusInvalidDate         QueryStatus = "INVALID_DATE"
	StatusServiceDown         QueryStatus = "SERVICE_DOWN"
)

// MessageKey maps a non-OK status to the localised user message key shown
// for it. StatusOK with zero trips maps to the no-trips key.
func (s QueryStatus) MessageKey() string {
	switch s {
	case StatusAmbiguous:
		return "trip_error_ambiguous"
	case StatusTooClose:
		return "trip_error_too_close"
	case StatusUnknownFrom, StatusUnknownLocation:
		return "trip_error_unknown_from"
	case StatusUnknownVia:
		return "trip_error_unknown_via"
	case StatusUnknownTo:
		return "trip_error_unknown_to"
	case StatusUnresolvableAddress:
		return "trip_error_unresolvable_address"
	case StatusInvalidDate:
		return "trip_error_invalid_date"
	case StatusServiceDown:
		return "trip_error_service_down"
	default:
		return "trip_error_no_trips"
	}
}

// QueryContext is the provider's pagination cursor for a delivered result.
type QueryContext interface {
	CanQueryEarlier() bool
	CanQueryLater() bool
}

// QueryTripsResult is what the provider returns for a trip query.
type QueryTripsResult struct {
	Status  QueryStatus
	Trips   []*Trip
	Context QueryContext
}

// QueryMoreState describes which pagination directions are available.
type QueryMoreState string

const (
	QueryMoreEarlier QueryMoreState = "EARLIER"
	QueryMoreLater   QueryMoreState = "LATER"
	QueryMoreBoth    QueryMoreState = "BOTH"
	QueryMoreNone    QueryMoreState = "NONE"
)

// QueryMoreStateFromContext derives the pagination state from a cursor.
func QueryMoreStateFromContext(qc QueryContext) QueryMoreState {
	if qc == nil {
		return QueryMoreNone
	}
	switch {
	case qc.CanQueryEarlier() && qc.CanQueryLater():
		return QueryMoreBoth
	case qc.CanQueryEarlier():
		return QueryMoreEarlier
	case qc.CanQueryLater():
		return QueryMoreLater
	default:
		return QueryMoreNone
	}
}
