package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shiva/freightroute/internal/cargo"
	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/repository"
	"github.com/shiva/freightroute/pkg/geo"
)

// ─── Cost model ─────────────────────────────────────────────

// CostModel holds the parameters of the route cost estimate.
type CostModel struct {
	FuelPricePerLiter       decimal.Decimal // price of one litre of diesel
	FuelConsumptionPer100Km float64         // used when the van has no figure of its own
	AverageSpeedKmph        float64         // used for legs without a planned driving time
}

// DefaultCostModel returns the figures used when nothing is configured.
func DefaultCostModel() CostModel {
	return CostModel{
		FuelPricePerLiter:       decimal.RequireFromString("1.85"),
		FuelConsumptionPer100Km: 11.0,
		AverageSpeedKmph:        geo.DefaultSpeedKmph,
	}
}

// ─── MetricCalculator ───────────────────────────────────────

// MetricCalculator derives RouteMetrics from a plan's stops.
//
// Formula:
//
//	distance = Σ legs (planned distanceToNextKm, else road estimate from coordinates)
//	time     = Σ legs (planned drivingTimeToNextMinutes, else distance / speed)
//	fuel     = distance × consumption / 100
//	cost     = fuel × fuel price
//	revenue  = Σ price of every load picked up on the route
//	margin   = revenue − cost
//
// A leg with neither a planned distance nor coordinates on both ends makes
// the distance unknown, and every figure derived from it stays null.
type MetricCalculator struct {
	dir  repository.Directory
	cost CostModel
}

// NewMetricCalculator creates a calculator reading vans and loads from dir.
func NewMetricCalculator(dir repository.Directory, cost CostModel) *MetricCalculator {
	return &MetricCalculator{dir: dir, cost: cost}
}

// Compute returns fresh metrics for plan. It never writes anything.
func (c *MetricCalculator) Compute(ctx context.Context, plan *model.RoutePlan) (model.RouteMetrics, error) {
	var m model.RouteMetrics
	stops := cargo.Sorted(plan.Stops)

	// ── Step 1: Van consumption ─────────────────────────
	consumption := c.cost.FuelConsumptionPer100Km
	if plan.VanID != nil {
		van, err := c.dir.GetVan(ctx, *plan.VanID)
		switch {
		case err == nil:
			if van.FuelConsumptionPer100Km != nil {
				consumption = *van.FuelConsumptionPer100Km
			}
		case errors.Is(err, repository.ErrNotFound):
			return m, fmt.Errorf("metrics: %w", ErrVanNotFound)
		default:
			return m, fmt.Errorf("metrics: van %s: %w", *plan.VanID, err)
		}
	}

	// ── Step 2: Distance & time ─────────────────────────
	distance, minutes := c.legs(stops)
	m.TotalDistanceKm = distance
	m.TotalTimeMinutes = minutes

	// ── Step 3: Fuel & cost ─────────────────────────────
	if distance != nil {
		fuel := round(*distance*consumption/100, 2)
		m.EstimatedFuelLiters = &fuel
		m.FuelCost = decimal.NewNullDecimal(
			decimal.NewFromFloat(fuel).Mul(c.cost.FuelPricePerLiter).Round(2))
	}

	// ── Step 4: Revenue & margin ────────────────────────
	revenue, err := c.revenue(ctx, stops)
	if err != nil {
		return m, err
	}
	m.TotalRevenue = decimal.NewNullDecimal(revenue)
	if m.FuelCost.Valid {
		m.EstimatedMargin = decimal.NewNullDecimal(revenue.Sub(m.FuelCost.Decimal))
	}
	if distance != nil && *distance > 0 {
		m.PricePerKm = decimal.NewNullDecimal(revenue.Div(decimal.NewFromFloat(*distance)).Round(4))
	}
	return m, nil
}

// legs sums leg distances and driving times over stops sorted by orderIndex.
func (c *MetricCalculator) legs(stops []model.RouteStop) (*float64, *int) {
	km, minutes := 0.0, 0
	distanceKnown, timeKnown := true, true

	points := make([]*model.Location, len(stops))
	for i := range stops {
		if loc, ok := stops[i].Location(); ok {
			points[i] = &loc
		}
	}
	estimates := geo.LegKm(points)

	for i := 0; i < len(stops)-1; i++ {
		from := &stops[i]

		leg := from.DistanceToNextKm
		if leg == nil {
			leg = estimates[i]
		}

		if leg == nil {
			distanceKnown = false
		} else {
			km += *leg
		}

		switch {
		case from.DrivingTimeToNextMinutes != nil:
			minutes += *from.DrivingTimeToNextMinutes
		case leg != nil:
			minutes += geo.DriveMinutes(*leg, c.cost.AverageSpeedKmph)
		default:
			timeKnown = false
		}
	}

	var dOut *float64
	var tOut *int
	if distanceKnown {
		v := round(km, 2)
		dOut = &v
	}
	if timeKnown {
		tOut = &minutes
	}
	return dOut, tOut
}

// revenue adds up the price of every distinct load picked up on the route.
// Loads without a price contribute nothing.
func (c *MetricCalculator) revenue(ctx context.Context, stops []model.RouteStop) (decimal.Decimal, error) {
	total := decimal.Zero
	seen := map[uuid.UUID]bool{}
	for _, s := range stops {
		if s.StopType != model.StopPickup || seen[s.LoadID] {
			continue
		}
		seen[s.LoadID] = true

		load, err := c.dir.GetLoad(ctx, s.LoadID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return total, fmt.Errorf("metrics: load %s: %w", s.LoadID, ErrLoadNotFound)
			}
			return total, fmt.Errorf("metrics: load %s: %w", s.LoadID, err)
		}
		if load.Price.Valid {
			total = total.Add(load.Price.Decimal)
		}
	}
	return total, nil
}

// ─── Deltas ─────────────────────────────────────────────────

// applyDeltas stores simulated − source for every metric, null when either
// side is null.
func applyDeltas(sim *model.RouteSimulation, source, simulated model.RouteMetrics) {
	sim.DeltaDistanceKm = subFloat(simulated.TotalDistanceKm, source.TotalDistanceKm)
	sim.DeltaFuelLiters = subFloat(simulated.EstimatedFuelLiters, source.EstimatedFuelLiters)

	sim.DeltaTimeMinutes = nil
	if simulated.TotalTimeMinutes != nil && source.TotalTimeMinutes != nil {
		d := *simulated.TotalTimeMinutes - *source.TotalTimeMinutes
		sim.DeltaTimeMinutes = &d
	}

	sim.DeltaMargin = decimal.NullDecimal{}
	if simulated.EstimatedMargin.Valid && source.EstimatedMargin.Valid {
		sim.DeltaMargin = decimal.NewNullDecimal(simulated.EstimatedMargin.Decimal.Sub(source.EstimatedMargin.Decimal))
	}
}

func subFloat(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := round(*a-*b, 2)
	return &d
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
