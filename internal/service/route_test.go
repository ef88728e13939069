package service

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/freightroute/internal/events"
	"github.com/shiva/freightroute/internal/model"
)

func TestRouteService_CreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "  Leeds run  ")

	assert.Equal(t, "Leeds run", *p.Name)
	assert.Equal(t, model.RouteDraft, p.Status)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, model.MetricsStale, p.MetricsState)
	require.Len(t, p.Stops, 4)
	for i, s := range p.Stops {
		assert.Equal(t, i, s.OrderIndex)
		assert.Equal(t, model.StopPending, s.Status)
		assert.Equal(t, "GB", s.Country)
		assert.NotEqual(t, uuid.Nil, s.ID)
	}
	assert.Equal(t, []events.Kind{events.RouteCreated}, env.events.kinds())
}

func TestRouteService_CreateKeepsCallerOrder(t *testing.T) {
	env := newTestEnv(t)
	in := env.standardStops()
	// Reverse the slice but number the stops so the route stays A↑ B↑ A↓ B↓.
	ordered := []StopInput{in[3], in[2], in[1], in[0]}
	for i, idx := range []int{30, 20, 10, 0} {
		ordered[i].OrderIndex = ptr(idx)
	}

	p, err := env.routes.Create(env.ctx, CreateRoutePlanInput{Stops: ordered})
	require.NoError(t, err)

	require.Len(t, p.Stops, 4)
	assert.Equal(t, env.loadA, p.Stops[0].LoadID)
	assert.Equal(t, model.StopPickup, p.Stops[0].StopType)
	assert.Equal(t, env.loadB, p.Stops[3].LoadID)
	assert.Equal(t, 3, p.Stops[3].OrderIndex)
}

func TestRouteService_CreateRejects(t *testing.T) {
	env := newTestEnv(t)
	sim := model.RouteSimulating

	tests := []struct {
		name string
		in   CreateRoutePlanInput
		want error
	}{
		{"simulation status", CreateRoutePlanInput{Status: &sim}, ErrValidation},
		{"unknown status", CreateRoutePlanInput{Status: ptr(model.RouteStatus("PAUSED"))}, ErrValidation},
		{"long name", CreateRoutePlanInput{Name: ptr(strings.Repeat("x", 101))}, ErrValidation},
		{"arrival before departure", CreateRoutePlanInput{
			DepartureDate: ptr(testNow),
			ArrivalDate:   ptr(testNow.Add(-time.Hour)),
		}, ErrValidation},
		{"unknown van", CreateRoutePlanInput{VanID: ptr(uuid.New())}, ErrVanNotFound},
		{"mismatched loads", CreateRoutePlanInput{Stops: []StopInput{
			stopIn(model.StopPickup, uuid.New()), stopIn(model.StopDelivery, uuid.New()),
		}}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.routes.Create(env.ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRouteService_CreateUnknownLoad(t *testing.T) {
	env := newTestEnv(t)
	ghost := uuid.New()
	_, err := env.routes.Create(env.ctx, CreateRoutePlanInput{Stops: []StopInput{
		stopIn(model.StopPickup, ghost), stopIn(model.StopDelivery, ghost),
	}})
	assert.ErrorIs(t, err, ErrLoadNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRouteService_StopValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("collects every problem", func(t *testing.T) {
		bad := stopIn(model.StopPickup, env.loadA)
		bad.City = " "
		bad.Country = "GBRXYZ"
		bad.Lat = ptr(91.0)
		bad.Pallets = ptr(-1)
		bad.TimeWindowFrom = ptr(testNow.Add(time.Hour))
		bad.TimeWindowTo = ptr(testNow)

		_, err := env.routes.Create(env.ctx, CreateRoutePlanInput{Stops: []StopInput{
			bad, stopIn(model.StopDelivery, env.loadA),
		}})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Problems, "stops[0].city: required")
		assert.Contains(t, verr.Problems, "stops[0].country: at most 5 characters")
		assert.Contains(t, verr.Problems, "stops[0].lat: out of range")
		assert.Contains(t, verr.Problems, "stops[0].pallets: must not be negative")
		assert.Contains(t, verr.Problems, "stops[0].timeWindowFrom: must not be after timeWindowTo")
	})

	t.Run("orderIndex on some stops only", func(t *testing.T) {
		in := env.standardStops()
		in[0].OrderIndex = ptr(0)
		_, err := env.routes.Create(env.ctx, CreateRoutePlanInput{Stops: in})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("duplicate orderIndex", func(t *testing.T) {
		in := env.standardStops()
		for i := range in {
			in[i].OrderIndex = ptr(i)
		}
		in[3].OrderIndex = ptr(2)
		_, err := env.routes.Create(env.ctx, CreateRoutePlanInput{Stops: in})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("delivery before pickup", func(t *testing.T) {
		_, err := env.routes.Create(env.ctx, CreateRoutePlanInput{Stops: []StopInput{
			stopIn(model.StopDelivery, env.loadA), stopIn(model.StopPickup, env.loadA),
		}})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown stop type", func(t *testing.T) {
		_, err := env.routes.Create(env.ctx, CreateRoutePlanInput{Stops: []StopInput{
			stopIn(model.StopType("DROP"), env.loadA),
		}})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestRouteService_GetMissing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.routes.Get(env.ctx, uuid.New())
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestRouteService_ListByVan(t *testing.T) {
	env := newTestEnv(t)
	later, sooner := testNow.Add(48*time.Hour), testNow.Add(24*time.Hour)
	active := ptr(model.RouteActive)

	undated, err := env.routes.Create(env.ctx, CreateRoutePlanInput{VanID: &env.van.ID, Status: active})
	require.NoError(t, err)
	second, err := env.routes.Create(env.ctx, CreateRoutePlanInput{VanID: &env.van.ID, DepartureDate: &later, Status: active})
	require.NoError(t, err)
	first, err := env.routes.Create(env.ctx, CreateRoutePlanInput{VanID: &env.van.ID, DepartureDate: &sooner, Status: active})
	require.NoError(t, err)
	draft, err := env.routes.Create(env.ctx, CreateRoutePlanInput{VanID: &env.van.ID})
	require.NoError(t, err)
	_, err = env.routes.Create(env.ctx, CreateRoutePlanInput{})
	require.NoError(t, err)

	listed, err := env.routes.ListByVan(env.ctx, env.van.ID, nil)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID, undated.ID}, []uuid.UUID{listed[0].ID, listed[1].ID, listed[2].ID})

	drafts, err := env.routes.ListByVan(env.ctx, env.van.ID, ptr(model.RouteDraft))
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)

	_, err = env.routes.ListByVan(env.ctx, env.van.ID, ptr(model.RouteStatus("PAUSED")))
	assert.ErrorIs(t, err, ErrValidation)

	none, err := env.routes.ListByVan(env.ctx, uuid.New(), nil)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRouteService_ListByVanSkipsSandboxes(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")
	_, err := env.routes.SetStatus(env.ctx, p.ID, model.RouteActive, false)
	require.NoError(t, err)

	for range 2 {
		_, err := env.sims.Create(env.ctx, p.ID, nil)
		require.NoError(t, err)
	}

	listed, err := env.routes.ListByVan(env.ctx, env.van.ID, nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, p.ID, listed[0].ID)

	sandboxes, err := env.routes.ListByVan(env.ctx, env.van.ID, ptr(model.RouteSimulating))
	require.NoError(t, err)
	assert.Len(t, sandboxes, 2)
}

func TestRouteService_UpdatePartial(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")

	notes := "call ahead"
	got, err := env.routes.Update(env.ctx, p.ID, UpdateRoutePlanInput{Notes: &notes, Version: ptr(1)})
	require.NoError(t, err)

	assert.Equal(t, "Leeds run", *got.Name)
	assert.Equal(t, notes, *got.Notes)
	assert.Equal(t, 2, got.Version)
	assert.Len(t, got.Stops, 4)
}

func TestRouteService_UpdateReplacesStops(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")

	stops := []StopInput{stopIn(model.StopPickup, env.loadB), stopIn(model.StopDelivery, env.loadB)}
	got, err := env.routes.Update(env.ctx, p.ID, UpdateRoutePlanInput{Stops: &stops})
	require.NoError(t, err)

	require.Len(t, got.Stops, 2)
	assert.Len(t, env.plan(t, p.ID).Stops, 2)
}

func TestRouteService_UpdateStaleVersion(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")

	_, err := env.routes.Update(env.ctx, p.ID, UpdateRoutePlanInput{Notes: ptr("first")})
	require.NoError(t, err)

	_, err = env.routes.Update(env.ctx, p.ID, UpdateRoutePlanInput{Notes: ptr("second"), Version: ptr(1)})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, "first", *env.plan(t, p.ID).Notes)
}

func TestRouteService_UpdateRejectsSimulationStatus(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")

	_, err := env.routes.Update(env.ctx, p.ID, UpdateRoutePlanInput{Status: ptr(model.RouteSimulating)})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRouteService_ReplaceStops(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")
	_, err := env.routes.RecomputeMetrics(env.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.MetricsFresh, env.plan(t, p.ID).MetricsState)

	got, err := env.routes.ReplaceStops(env.ctx, p.ID, []StopInput{
		stopIn(model.StopPickup, env.loadA), stopIn(model.StopDelivery, env.loadA),
	}, ptr(2))
	require.NoError(t, err)

	assert.Equal(t, 3, got.Version)
	assert.Equal(t, model.MetricsStale, got.MetricsState)
	assert.Equal(t, []int{0, 1}, []int{got.Stops[0].OrderIndex, got.Stops[1].OrderIndex})

	_, err = env.routes.ReplaceStops(env.ctx, p.ID, nil, ptr(2))
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestRouteService_SetStatus(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")

	got, err := env.routes.SetStatus(env.ctx, p.ID, model.RouteActive, false)
	require.NoError(t, err)
	assert.Equal(t, model.RouteActive, got.Status)

	_, err = env.routes.SetStatus(env.ctx, p.ID, model.RouteSimulating, false)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = env.routes.SetStatus(env.ctx, p.ID, model.RouteArchived, false)
	require.NoError(t, err)

	_, err = env.routes.SetStatus(env.ctx, p.ID, model.RouteDraft, false)
	assert.ErrorIs(t, err, ErrRouteArchived)

	got, err = env.routes.SetStatus(env.ctx, p.ID, model.RouteDraft, true)
	require.NoError(t, err)
	assert.Equal(t, model.RouteDraft, got.Status)
}

func TestRouteService_ArchivedStopsFrozen(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")
	_, err := env.routes.SetStatus(env.ctx, p.ID, model.RouteArchived, false)
	require.NoError(t, err)

	_, err = env.routes.ReplaceStops(env.ctx, p.ID, nil, nil)
	assert.ErrorIs(t, err, ErrRouteArchived)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRouteService_DeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")
	_, err := env.layout.Place(env.ctx, p.ID, PlaceCargoInput{LoadID: env.loadA, WidthCm: 120, HeightCm: 80})
	require.NoError(t, err)
	sim, err := env.sims.Create(env.ctx, p.ID, nil)
	require.NoError(t, err)

	require.NoError(t, env.routes.Delete(env.ctx, p.ID))

	_, err = env.routes.Get(env.ctx, p.ID)
	assert.ErrorIs(t, err, ErrRouteNotFound)
	_, err = env.routes.Get(env.ctx, sim.SimulatedRouteID)
	assert.ErrorIs(t, err, ErrRouteNotFound)
	_, err = env.sims.Get(env.ctx, sim.ID)
	assert.ErrorIs(t, err, ErrSimulationNotFound)

	assert.ErrorIs(t, env.routes.Delete(env.ctx, p.ID), ErrRouteNotFound)
}

func TestRouteService_CargoAt(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")

	at := func(i int) []uuid.UUID {
		ids, err := env.routes.CargoAt(env.ctx, p.ID, i)
		require.NoError(t, err)
		return ids
	}
	assert.Empty(t, at(-1))
	assert.Equal(t, []uuid.UUID{env.loadA}, at(0))
	assert.Equal(t, []uuid.UUID{env.loadA, env.loadB}, at(1))
	assert.Equal(t, []uuid.UUID{env.loadB}, at(2))
	assert.Empty(t, at(3))
	assert.Empty(t, at(99))

	frames, err := env.routes.Timeline(env.ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, frames, 4)
	assert.Equal(t, []uuid.UUID{env.loadA, env.loadB}, frames[1].OnBoard)
}

func TestRouteService_RemovingOneLoadChangesCargo(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")

	// Dropping only B's pickup would leave a delivery without a pickup.
	std := env.standardStops()
	_, err := env.routes.ReplaceStops(env.ctx, p.ID, []StopInput{std[0], std[2], std[3]}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.routes.ReplaceStops(env.ctx, p.ID, []StopInput{std[0], std[2]}, nil)
	require.NoError(t, err)

	ids, err := env.routes.CargoAt(env.ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{env.loadA}, ids)
	ids, err = env.routes.CargoAt(env.ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRouteService_RecomputeMetrics(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")

	got, err := env.routes.RecomputeMetrics(env.ctx, p.ID)
	require.NoError(t, err)

	m := got.Metrics
	assert.Equal(t, model.MetricsFresh, got.MetricsState)
	require.NotNil(t, got.MetricsComputedAt)
	assert.True(t, got.MetricsComputedAt.Equal(testNow))
	assert.InDelta(t, 180.0, *m.TotalDistanceKm, 1e-9)
	assert.Equal(t, 145, *m.TotalTimeMinutes)
	assert.InDelta(t, 18.0, *m.EstimatedFuelLiters, 1e-9)
	assert.Equal(t, "33.3", m.FuelCost.Decimal.String())
	assert.Equal(t, "800", m.TotalRevenue.Decimal.String())
	assert.Equal(t, "766.7", m.EstimatedMargin.Decimal.String())
	assert.Equal(t, "4.4444", m.PricePerKm.Decimal.String())

	assert.Contains(t, env.events.kinds(), events.RouteMetricsComputed)
}

func TestRouteService_DeleteLocksSimulationsBeforePlan(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")
	sim, err := env.sims.Create(env.ctx, p.ID, nil)
	require.NoError(t, err)

	trace := &lockTraceStore{MemoryStore: env.mem}
	routes := NewRouteService(Options{Store: trace, Directory: env.mem})

	t.Run("source", func(t *testing.T) {
		trace.locks = nil
		require.NoError(t, routes.Delete(env.ctx, p.ID))
		assert.Equal(t, []string{"sim:" + sim.ID.String(), "plan:" + p.ID.String()}, trace.locks)
	})

	t.Run("sandbox", func(t *testing.T) {
		other := env.createPlan(t, "York run")
		sim, err := env.sims.Create(env.ctx, other.ID, nil)
		require.NoError(t, err)

		trace.locks = nil
		require.NoError(t, routes.Delete(env.ctx, sim.SimulatedRouteID))
		assert.Equal(t, []string{"sim:" + sim.ID.String(), "plan:" + sim.SimulatedRouteID.String()}, trace.locks)

		_, err = env.sims.Get(env.ctx, sim.ID)
		assert.ErrorIs(t, err, ErrSimulationNotFound)
	})
}

func TestSimulationService_ApplyLocksSimulationFirst(t *testing.T) {
	env := newTestEnv(t)
	p := env.createPlan(t, "Leeds run")
	sim, err := env.sims.Create(env.ctx, p.ID, nil)
	require.NoError(t, err)

	trace := &lockTraceStore{MemoryStore: env.mem}
	_, err = NewSimulationService(Options{Store: trace, Directory: env.mem}).Apply(env.ctx, sim.ID)
	require.NoError(t, err)
	require.NotEmpty(t, trace.locks)
	assert.Equal(t, "sim:"+sim.ID.String(), trace.locks[0])
	assert.Len(t, trace.locks, 3)
}
