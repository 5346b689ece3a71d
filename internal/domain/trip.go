// Package domain defines the core trip cache types, ports, and errors.
package domain

import "time"

// NetworkID identifies the transit network a record belongs to (e.g. "DB").
type NetworkID string

// LocationType classifies a Location.
type LocationType string

const (
	LocationTypeStation LocationType = "station"
	LocationTypeAddress LocationType = "address"
	LocationTypePOI     LocationType = "poi"
	LocationTypeCoord   LocationType = "coord"
)

// Point is a geographic coordinate scaled by 1e6.
type Point struct {
	Lat int `json:"lat"`
	Lon int `json:"lon"`
}

// Location is a named or geographic place. Locations are globally
// deduplicated in storage by (Network, ID) when ID is set.
type Location struct {
	Network NetworkID    `json:"network,omitempty"`
	ID      string       `json:"id,omitempty"` // external provider id, empty when the provider gave none
	Type    LocationType `json:"type"`
	Lat     int          `json:"lat,omitempty"` // 1e6 scaled, 0 when unknown
	Lon     int          `json:"lon,omitempty"`
	Place   string       `json:"place,omitempty"`
	Name    string       `json:"name,omitempty"`
}

// HasID reports whether the location carries a provider identity and can
// therefore be deduplicated.
func (l Location) HasID() bool { return l.ID != "" }

// HasCoords reports whether the location carries coordinates.
func (l Location) HasCoords() bool { return l.Lat != 0 || l.Lon != 0 }

// Position is a platform or track position at a stop.
type Position struct {
	Name string `json:"name"`
}

// Stop is a leg-scoped arrival/departure event at a Location. Unlike
// Location and Line, a Stop row is never shared between legs.
type Stop struct {
	Location Location `json:"location"`

	PlannedArrivalTime         *time.Time `json:"plannedArrivalTime,omitempty"`
	PredictedArrivalTime       *time.Time `json:"predictedArrivalTime,omitempty"`
	PlannedArrivalPosition     *Position  `json:"plannedArrivalPosition,omitempty"`
	PredictedArrivalPosition   *Position  `json:"predictedArrivalPosition,omitempty"`
	ArrivalCancelled           bool       `json:"arrivalCancelled,omitempty"`
	PlannedDepartureTime       *time.Time `json:"plannedDepartureTime,omitempty"`
	PredictedDepartureTime     *time.Time `json:"predictedDepartureTime,omitempty"`
	PlannedDeparturePosition   *Position  `json:"plannedDeparturePosition,omitempty"`
	PredictedDeparturePosition *Position  `json:"predictedDeparturePosition,omitempty"`
	DepartureCancelled         bool       `json:"departureCancelled,omitempty"`
}

// DepartureTime returns the stop's departure time. With preferPlan the
// planned time wins when present; otherwise the predicted time wins.
func (s Stop) DepartureTime(preferPlan bool) *time.Time {
	if preferPlan && s.PlannedDepartureTime != nil {
		return s.PlannedDepartureTime
	}
	if s.PredictedDepartureTime != nil {
		return s.PredictedDepartureTime
	}
	return s.PlannedDepartureTime
}

// ArrivalTime returns the stop's arrival time, analogous to DepartureTime.
func (s Stop) ArrivalTime(preferPlan bool) *time.Time {
	if preferPlan && s.PlannedArrivalTime != nil {
		return s.PlannedArrivalTime
	}
	if s.PredictedArrivalTime != nil {
		return s.PredictedArrivalTime
	}
	return s.PlannedArrivalTime
}

// Product is the transport product category of a Line.
type Product string

const (
	ProductHighSpeedTrain Product = "high_speed_train"
	ProductRegionalTrain  Product = "regional_train"
	ProductSuburbanTrain  Product = "suburban_train"
	ProductSubway         Product = "subway"
	ProductTram           Product = "tram"
	ProductBus            Product = "bus"
	ProductFerry          Product = "ferry"
	ProductCablecar       Product = "cablecar"
	ProductOnDemand       Product = "on_demand"
)

// Style carries display colours and shape for a Line.
type Style struct {
	Shape           string `json:"shape,omitempty"`
	BackgroundColor int    `json:"bg,omitempty"`
	ForegroundColor int    `json:"fg,omitempty"`
	BorderColor     int    `json:"border,omitempty"`
}

// Line is a transit service identity, shared across many legs and trips.
// Lines are deduplicated in storage by external ID.
type Line struct {
	Network NetworkID `json:"network,omitempty"`
	ID      string    `json:"id"`
	Product Product   `json:"product,omitempty"`
	Label   *string   `json:"label,omitempty"`
	Name    *string   `json:"name,omitempty"`
	Style   *Style    `json:"style,omitempty"`
	Message string    `json:"message,omitempty"`
	AltName string    `json:"altName,omitempty"`
}

// IndividualType tags a non-public leg with its mode of travel.
type IndividualType string

const (
	IndividualWalk     IndividualType = "walk"
	IndividualBike     IndividualType = "bike"
	IndividualCar      IndividualType = "car"
	IndividualTransfer IndividualType = "transfer"
)

// Leg is one segment of a Trip: either a PublicLeg or an IndividualLeg.
type Leg interface {
	DepartureLocation() Location
	ArrivalLocation() Location
	// DepartureTime and ArrivalTime are always present, preferring
	// predicted over planned times for public legs.
	DepartureTime() time.Time
	ArrivalTime() time.Time
	Path() []Point
}

// PublicLeg is a ride on a public transport Line between two Stops.
type PublicLeg struct {
	Line              Line      `json:"line"`
	Destination       *Location `json:"destination,omitempty"`
	DepartureStop     Stop      `json:"departureStop"`
	ArrivalStop       Stop      `json:"arrivalStop"`
	IntermediateStops []Stop    `json:"intermediateStops,omitempty"`
	Message           string    `json:"message,omitempty"`
	Points            []Point   `json:"path,omitempty"`
}

func (l *PublicLeg) DepartureLocation() Location { return l.DepartureStop.Location }
func (l *PublicLeg) ArrivalLocation() Location   { return l.ArrivalStop.Location }

func (l *PublicLeg) DepartureTime() time.Time {
	if t := l.DepartureStop.DepartureTime(false); t != nil {
		return *t
	}
	return time.Time{}
}

func (l *PublicLeg) ArrivalTime() time.Time {
	if t := l.ArrivalStop.ArrivalTime(false); t != nil {
		return *t
	}
	return time.Time{}
}

// PlannedDepartureTime returns the departure time preferring the planned
// timetable over realtime predictions.
func (l *PublicLeg) PlannedDepartureTime() *time.Time {
	return l.DepartureStop.DepartureTime(true)
}

// PlannedArrivalTime returns the arrival time preferring the planned
// timetable over realtime predictions.
func (l *PublicLeg) PlannedArrivalTime() *time.Time {
	return l.ArrivalStop.ArrivalTime(true)
}

func (l *PublicLeg) Path() []Point {
	if len(l.Points) > 0 {
		return l.Points
	}
	return InterpolatePath(l.DepartureStop.Location, l.IntermediateStops, l.ArrivalStop.Location)
}

// IndividualLeg is a walk or other self-powered segment between two
// Locations.
type IndividualLeg struct {
	Type      IndividualType `json:"type"`
	From      Location       `json:"from"`
	To        Location       `json:"to"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Points    []Point        `json:"path,omitempty"`
	Min       int            `json:"min,omitempty"`      // duration in minutes
	Distance  int            `json:"distance,omitempty"` // metres
}

func (l *IndividualLeg) DepartureLocation() Location { return l.From }
func (l *IndividualLeg) ArrivalLocation() Location   { return l.To }
func (l *IndividualLeg) DepartureTime() time.Time    { return l.StartTime }
func (l *IndividualLeg) ArrivalTime() time.Time      { return l.EndTime }

func (l *IndividualLeg) Path() []Point {
	if len(l.Points) > 0 {
		return l.Points
	}
	return InterpolatePath(l.From, nil, l.To)
}

// InterpolatePath builds a straight-line path through the locations that
// actually carry coordinates. Used when a stored leg has no path.
func InterpolatePath(from Location, intermediates []Stop, to Location) []Point {
	path := make([]Point, 0, len(intermediates)+2)
	if from.HasCoords() {
		path = append(path, Point{Lat: from.Lat, Lon: from.Lon})
	}
	for _, s := range intermediates {
		if s.Location.HasCoords() {
			path = append(path, Point{Lat: s.Location.Lat, Lon: s.Location.Lon})
		}
	}
	if to.HasCoords() {
		path = append(path, Point{Lat: to.Lat, Lon: to.Lon})
	}
	return path
}

// Trip is one complete itinerary from an origin to a destination. The ID
// comes from the remote provider and is neither globally unique nor stable
// across independent queries.
type Trip struct {
	ID         string
	From       Location
	To         Location
	Legs       []Leg
	Capacity   []int
	NumChanges int
	Network    NetworkID
}

// FirstPublicLeg returns the first public leg, or nil if the trip has none.
func (t *Trip) FirstPublicLeg() *PublicLeg {
	for _, leg := range t.Legs {
		if pl, ok := leg.(*PublicLeg); ok {
			return pl
		}
	}
	return nil
}

// LastPublicLeg returns the last public leg, or nil if the trip has none.
func (t *Trip) LastPublicLeg() *PublicLeg {
	for i := len(t.Legs) - 1; i >= 0; i-- {
		if pl, ok := t.Legs[i].(*PublicLeg); ok {
			return pl
		}
	}
	return nil
}

// FirstDepartureTime is the departure time of the first leg.
func (t *Trip) FirstDepartureTime() time.Time {
	if len(t.Legs) == 0 {
		return time.Time{}
	}
	return t.Legs[0].DepartureTime()
}

// LastArrivalTime is the arrival time of the last leg.
func (t *Trip) LastArrivalTime() time.Time {
	if len(t.Legs) == 0 {
		return time.Time{}
	}
	return t.Legs[len(t.Legs)-1].ArrivalTime()
}
