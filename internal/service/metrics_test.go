package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/repository"
	"github.com/shiva/freightroute/pkg/geo"
)

func TestMetricCalculator_CoordinateFallback(t *testing.T) {
	ctx := context.Background()
	dir := repository.NewMemoryStore()
	load := model.Load{ID: uuid.New(), Price: decimal.NewNullDecimal(decimal.NewFromInt(250))}
	require.NoError(t, dir.UpsertLoad(ctx, &load))

	leeds := model.Location{Lat: 53.7997, Lon: -1.5492}
	york := model.Location{Lat: 53.9590, Lon: -1.0815}
	plan := &model.RoutePlan{Stops: []model.RouteStop{
		// Stored out of order on purpose.
		{OrderIndex: 1, LoadID: load.ID, StopType: model.StopDelivery, Lat: &york.Lat, Lng: &york.Lon},
		{OrderIndex: 0, LoadID: load.ID, StopType: model.StopPickup, Lat: &leeds.Lat, Lng: &leeds.Lon},
	}}

	m, err := NewMetricCalculator(dir, DefaultCostModel()).Compute(ctx, plan)
	require.NoError(t, err)

	wantKm := geo.RoadKm(leeds, york)
	require.NotNil(t, m.TotalDistanceKm)
	assert.InDelta(t, wantKm, *m.TotalDistanceKm, 0.01)
	require.NotNil(t, m.TotalTimeMinutes)
	assert.Equal(t, geo.DriveMinutes(wantKm, geo.DefaultSpeedKmph), *m.TotalTimeMinutes)
	require.NotNil(t, m.EstimatedFuelLiters)
	assert.InDelta(t, wantKm*11/100, *m.EstimatedFuelLiters, 0.01)
	assert.Equal(t, "250", m.TotalRevenue.Decimal.String())
	assert.True(t, m.EstimatedMargin.Valid)
}

func TestMetricCalculator_MixedLegs(t *testing.T) {
	ctx := context.Background()
	dir := repository.NewMemoryStore()
	a, b := model.Load{ID: uuid.New()}, model.Load{ID: uuid.New()}
	require.NoError(t, dir.UpsertLoad(ctx, &a))
	require.NoError(t, dir.UpsertLoad(ctx, &b))

	leeds := model.Location{Lat: 53.7997, Lon: -1.5492}
	york := model.Location{Lat: 53.9590, Lon: -1.0815}
	harrogate := model.Location{Lat: 53.9921, Lon: -1.5418}
	plan := &model.RoutePlan{Stops: []model.RouteStop{
		{OrderIndex: 0, LoadID: a.ID, StopType: model.StopPickup, Lat: &leeds.Lat, Lng: &leeds.Lon,
			DistanceToNextKm: ptr(10.0), DrivingTimeToNextMinutes: ptr(15)},
		{OrderIndex: 1, LoadID: b.ID, StopType: model.StopPickup, Lat: &york.Lat, Lng: &york.Lon},
		{OrderIndex: 2, LoadID: a.ID, StopType: model.StopDelivery, Lat: &harrogate.Lat, Lng: &harrogate.Lon},
	}}

	m, err := NewMetricCalculator(dir, DefaultCostModel()).Compute(ctx, plan)
	require.NoError(t, err)

	estimated := geo.RoadKm(york, harrogate)
	require.NotNil(t, m.TotalDistanceKm)
	assert.InDelta(t, 10+estimated, *m.TotalDistanceKm, 0.01)
	require.NotNil(t, m.TotalTimeMinutes)
	assert.Equal(t, 15+geo.DriveMinutes(estimated, geo.DefaultSpeedKmph), *m.TotalTimeMinutes)
}

func TestMetricCalculator_UnknownLegLeavesNulls(t *testing.T) {
	ctx := context.Background()
	dir := repository.NewMemoryStore()
	unpriced := model.Load{ID: uuid.New()}
	require.NoError(t, dir.UpsertLoad(ctx, &unpriced))

	plan := &model.RoutePlan{Stops: []model.RouteStop{
		{OrderIndex: 0, LoadID: unpriced.ID, StopType: model.StopPickup},
		{OrderIndex: 1, LoadID: unpriced.ID, StopType: model.StopDelivery},
	}}
	m, err := NewMetricCalculator(dir, DefaultCostModel()).Compute(ctx, plan)
	require.NoError(t, err)

	assert.Nil(t, m.TotalDistanceKm)
	assert.Nil(t, m.TotalTimeMinutes)
	assert.Nil(t, m.EstimatedFuelLiters)
	assert.False(t, m.FuelCost.Valid)
	assert.False(t, m.EstimatedMargin.Valid)
	assert.False(t, m.PricePerKm.Valid)
	require.True(t, m.TotalRevenue.Valid)
	assert.True(t, m.TotalRevenue.Decimal.IsZero())
}

func TestMetricCalculator_EmptyPlan(t *testing.T) {
	m, err := NewMetricCalculator(repository.NewMemoryStore(), DefaultCostModel()).
		Compute(context.Background(), &model.RoutePlan{})
	require.NoError(t, err)

	require.NotNil(t, m.TotalDistanceKm)
	assert.Zero(t, *m.TotalDistanceKm)
	assert.False(t, m.PricePerKm.Valid)
}

func TestMetricCalculator_MissingRecords(t *testing.T) {
	ctx := context.Background()
	calc := NewMetricCalculator(repository.NewMemoryStore(), DefaultCostModel())

	_, err := calc.Compute(ctx, &model.RoutePlan{VanID: ptr(uuid.New())})
	assert.ErrorIs(t, err, ErrVanNotFound)

	ghost := uuid.New()
	_, err = calc.Compute(ctx, &model.RoutePlan{Stops: []model.RouteStop{
		{LoadID: ghost, StopType: model.StopPickup},
	}})
	assert.ErrorIs(t, err, ErrLoadNotFound)
}

func TestApplyDeltas(t *testing.T) {
	src := model.RouteMetrics{
		TotalDistanceKm:     ptr(100.0),
		TotalTimeMinutes:    ptr(90),
		EstimatedFuelLiters: ptr(11.0),
		EstimatedMargin:     decimal.NewNullDecimal(decimal.RequireFromString("400.50")),
	}
	sim := model.RouteMetrics{
		TotalDistanceKm:     ptr(120.5),
		TotalTimeMinutes:    nil,
		EstimatedFuelLiters: ptr(13.26),
		EstimatedMargin:     decimal.NewNullDecimal(decimal.RequireFromString("380.25")),
	}

	var out model.RouteSimulation
	out.DeltaTimeMinutes = ptr(42)
	applyDeltas(&out, src, sim)

	assert.InDelta(t, 20.5, *out.DeltaDistanceKm, 1e-9)
	assert.InDelta(t, 2.26, *out.DeltaFuelLiters, 1e-9)
	assert.Nil(t, out.DeltaTimeMinutes, "stale delta is cleared when one side is unknown")
	assert.Equal(t, "-20.25", out.DeltaMargin.Decimal.String())
}
