// Package model contains domain models for the route planning core.
// These structs map to the PostgreSQL schema in pkg/db/schema.go.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ─── Enums ──────────────────────────────────────────────────

type RouteStatus string

const (
	RouteDraft      RouteStatus = "DRAFT"
	RouteActive     RouteStatus = "ACTIVE"
	RouteSimulating RouteStatus = "SIMULATION"
	RouteArchived   RouteStatus = "ARCHIVED"
)

// Valid reports whether s is a known route status.
func (s RouteStatus) Valid() bool {
	switch s {
	case RouteDraft, RouteActive, RouteSimulating, RouteArchived:
		return true
	}
	return false
}

type StopType string

const (
	StopPickup   StopType = "PICKUP"
	StopDelivery StopType = "DELIVERY"
)

func (t StopType) Valid() bool {
	return t == StopPickup || t == StopDelivery
}

type StopStatus string

const (
	StopPending   StopStatus = "PENDING"
	StopEnRoute   StopStatus = "EN_ROUTE"
	StopArrived   StopStatus = "ARRIVED"
	StopLoading   StopStatus = "LOADING"
	StopUnloading StopStatus = "UNLOADING"
	StopCompleted StopStatus = "COMPLETED"
	StopSkipped   StopStatus = "SKIPPED"
)

func (s StopStatus) Valid() bool {
	switch s {
	case StopPending, StopEnRoute, StopArrived, StopLoading, StopUnloading, StopCompleted, StopSkipped:
		return true
	}
	return false
}

// MetricsState tells whether a plan's cached metrics match its current stops.
type MetricsState string

const (
	MetricsStale MetricsState = "STALE"
	MetricsFresh MetricsState = "FRESH"
)

// SimulationState is derived from a RouteSimulation, never stored.
type SimulationState string

const (
	SimulationCreated  SimulationState = "CREATED"
	SimulationMeasured SimulationState = "MEASURED"
	SimulationApplied  SimulationState = "APPLIED"
)

// ─── Location ───────────────────────────────────────────────

// Location represents a WGS-84 geographic point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ─── Route Plan ─────────────────────────────────────────────

// RouteMetrics are the cached totals of a route. Every field stays nil until
// the metrics have been computed at least once.
type RouteMetrics struct {
	TotalDistanceKm     *float64            `json:"totalDistanceKm"`
	TotalTimeMinutes    *int                `json:"totalTimeMinutes"`
	EstimatedFuelLiters *float64            `json:"estimatedFuelLiters"`
	FuelCost            decimal.NullDecimal `json:"fuelCost"`
	TotalRevenue        decimal.NullDecimal `json:"totalRevenue"`
	EstimatedMargin     decimal.NullDecimal `json:"estimatedMargin"`
	PricePerKm          decimal.NullDecimal `json:"pricePerKm"`
}

// RoutePlan maps to the `route_plans` table.
type RoutePlan struct {
	ID                uuid.UUID    `json:"id"`
	Name              *string      `json:"name"`
	Status            RouteStatus  `json:"status"`
	VanID             *uuid.UUID   `json:"vanId"`
	DepartureDate     *time.Time   `json:"departureDate"`
	ArrivalDate       *time.Time   `json:"arrivalDate"`
	Metrics           RouteMetrics `json:"metrics"`
	MetricsState      MetricsState `json:"metricsState"`
	MetricsComputedAt *time.Time   `json:"metricsComputedAt"`
	Notes             *string      `json:"notes"`
	Version           int          `json:"version"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	Stops             []RouteStop  `json:"stops"`
}

// FreshMetrics returns the cached metrics only when they were computed
// against the current stop list.
func (p *RoutePlan) FreshMetrics() (RouteMetrics, bool) {
	if p.MetricsState != MetricsFresh {
		return RouteMetrics{}, false
	}
	return p.Metrics, true
}

// MarkStale flags the cached metrics as out of date. The values are kept so
// callers can still show the last known totals.
func (p *RoutePlan) MarkStale() {
	p.MetricsState = MetricsStale
}

// SetMetrics stores freshly computed metrics.
func (p *RoutePlan) SetMetrics(m RouteMetrics, at time.Time) {
	p.Metrics = m
	p.MetricsState = MetricsFresh
	p.MetricsComputedAt = &at
}

// DisplayName returns the plan name, falling back to its id.
func (p *RoutePlan) DisplayName() string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	return p.ID.String()
}

// ─── Route Stop ─────────────────────────────────────────────

// RouteStop maps to the `route_stops` table.
type RouteStop struct {
	ID          uuid.UUID  `json:"id"`
	RoutePlanID uuid.UUID  `json:"routePlanId"`
	LoadID      uuid.UUID  `json:"loadId"`
	StopType    StopType   `json:"stopType"`
	Status      StopStatus `json:"status"`
	OrderIndex  int        `json:"orderIndex"`
	GroupID     *uuid.UUID `json:"groupId"`

	Address  string   `json:"address"`
	City     string   `json:"city"`
	Postcode string   `json:"postcode"`
	Country  string   `json:"country"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`

	ETA                 *time.Time `json:"eta"`
	ETD                 *time.Time `json:"etd"`
	ActualArrival       *time.Time `json:"actualArrival"`
	ActualDeparture     *time.Time `json:"actualDeparture"`
	TimeWindowFrom      *time.Time `json:"timeWindowFrom"`
	TimeWindowTo        *time.Time `json:"timeWindowTo"`
	TimeWindowViolation bool       `json:"timeWindowViolation"`

	DistanceToNextKm         *float64 `json:"distanceToNextKm"`
	DrivingTimeToNextMinutes *int     `json:"drivingTimeToNextMinutes"`

	Pallets  *int     `json:"pallets"`
	WeightKg *float64 `json:"weightKg"`
	Notes    *string  `json:"notes"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy of the stop attached to planID under a fresh identity.
// The copy is taken from the whole struct so fields added later are carried
// without touching this method.
func (s RouteStop) Clone(planID uuid.UUID) RouteStop {
	c := s
	c.ID = uuid.New()
	c.RoutePlanID = planID
	c.CreatedAt = time.Time{}
	c.UpdatedAt = time.Time{}
	return c
}

// Location returns the stop coordinates when both are known.
func (s *RouteStop) Location() (Location, bool) {
	if s.Lat == nil || s.Lng == nil {
		return Location{}, false
	}
	return Location{Lat: *s.Lat, Lon: *s.Lng}, true
}

// ─── Simulation ─────────────────────────────────────────────

// RouteSimulation maps to the `route_simulations` table.
type RouteSimulation struct {
	ID               uuid.UUID           `json:"id"`
	SourceRouteID    uuid.UUID           `json:"sourceRouteId"`
	SimulatedRouteID uuid.UUID           `json:"simulatedRouteId"`
	Name             *string             `json:"name"`
	DeltaDistanceKm  *float64            `json:"deltaDistanceKm"`
	DeltaTimeMinutes *int                `json:"deltaTimeMinutes"`
	DeltaFuelLiters  *float64            `json:"deltaFuelLiters"`
	DeltaMargin      decimal.NullDecimal `json:"deltaMargin"`
	Warnings         []string            `json:"warnings"`
	MeasuredAt       *time.Time          `json:"measuredAt"`
	IsApplied        bool                `json:"isApplied"`
	AppliedAt        *time.Time          `json:"appliedAt"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// State reports where the simulation is in its lifecycle.
func (s *RouteSimulation) State() SimulationState {
	switch {
	case s.IsApplied:
		return SimulationApplied
	case s.MeasuredAt != nil:
		return SimulationMeasured
	default:
		return SimulationCreated
	}
}

// ─── Cargo Placement ────────────────────────────────────────

// Rect is an axis-aligned rectangle on the cargo floor, in centimetres.
type Rect struct {
	XCm      int `json:"xCm"`
	YCm      int `json:"yCm"`
	WidthCm  int `json:"widthCm"`
	HeightCm int `json:"heightCm"`
}

// Intersects reports a strictly positive overlap area. Touching edges do not count.
func (r Rect) Intersects(o Rect) bool {
	return r.XCm < o.XCm+o.WidthCm && o.XCm < r.XCm+r.WidthCm &&
		r.YCm < o.YCm+o.HeightCm && o.YCm < r.YCm+r.HeightCm
}

// Within reports whether r lies inside a width x length area anchored at the origin.
func (r Rect) Within(width, length int) bool {
	return r.XCm >= 0 && r.YCm >= 0 &&
		r.XCm+r.WidthCm <= width && r.YCm+r.HeightCm <= length
}

// CargoPlacement maps to the `cargo_placements` table.
type CargoPlacement struct {
	ID          uuid.UUID  `json:"id"`
	RoutePlanID uuid.UUID  `json:"routePlanId"`
	LoadID      uuid.UUID  `json:"loadId"`
	PalletID    *uuid.UUID `json:"palletId"`
	Label       *string    `json:"label"`
	XCm         int        `json:"xCm"`
	YCm         int        `json:"yCm"`
	WidthCm     int        `json:"widthCm"`
	HeightCm    int        `json:"heightCm"`
	Rotated     bool       `json:"rotated"`
	HasConflict bool       `json:"hasConflict"`
	IsOverflow  bool       `json:"isOverflow"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Footprint returns the rectangle the item occupies, with width and depth
// swapped when it is rotated.
func (p *CargoPlacement) Footprint() Rect {
	w, h := p.WidthCm, p.HeightCm
	if p.Rotated {
		w, h = h, w
	}
	return Rect{XCm: p.XCm, YCm: p.YCm, WidthCm: w, HeightCm: h}
}

// ─── External records ───────────────────────────────────────

// Van is the read-only view of a vehicle the route core needs.
type Van struct {
	ID                      uuid.UUID `json:"id"`
	Name                    string    `json:"name"`
	LicensePlate            string    `json:"licensePlate"`
	CargoLengthCm           int       `json:"cargoLengthCm"`
	CargoWidthCm            int       `json:"cargoWidthCm"`
	CargoHeightCm           int       `json:"cargoHeightCm"`
	MaxWeightKg             *float64  `json:"maxWeightKg"`
	MaxPallets              *int      `json:"maxPallets"`
	FuelConsumptionPer100Km *float64  `json:"fuelConsumptionPer100Km"`
}

// Load is the read-only view of a freight load the route core needs.
type Load struct {
	ID        uuid.UUID           `json:"id"`
	Reference string              `json:"reference"`
	WeightKg  *float64            `json:"weightKg"`
	Pallets   *int                `json:"pallets"`
	Price     decimal.NullDecimal `json:"price"`
	Currency  string              `json:"currency"`
}
