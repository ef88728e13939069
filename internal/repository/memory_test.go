package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/freightroute/internal/model"
)

func seedPlan(t *testing.T, s *MemoryStore, loads ...uuid.UUID) *model.RoutePlan {
	t.Helper()
	p := &model.RoutePlan{Status: model.RouteDraft}
	for i, l := range loads {
		p.Stops = append(p.Stops,
			model.RouteStop{LoadID: l, StopType: model.StopPickup, Status: model.StopPending, OrderIndex: 2 * i},
			model.RouteStop{LoadID: l, StopType: model.StopDelivery, Status: model.StopPending, OrderIndex: 2*i + 1},
		)
	}
	require.NoError(t, s.InsertPlan(context.Background(), p))
	return p
}

func TestMemoryStore_InsertAssignsIdentity(t *testing.T) {
	s := NewMemoryStore()
	p := seedPlan(t, s, uuid.New())

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, model.MetricsStale, p.MetricsState)
	for _, st := range p.Stops {
		assert.NotEqual(t, uuid.Nil, st.ID)
		assert.Equal(t, p.ID, st.RoutePlanID)
	}

	got, err := s.GetPlan(context.Background(), p.ID, false)
	require.NoError(t, err)
	assert.Len(t, got.Stops, 2)
}

func TestMemoryStore_UpdatePlanChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedPlan(t, s)

	first, _ := s.GetPlan(ctx, p.ID, false)
	second, _ := s.GetPlan(ctx, p.ID, false)

	require.NoError(t, s.UpdatePlan(ctx, first))
	assert.Equal(t, 2, first.Version)

	err := s.UpdatePlan(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)

	second.ID = uuid.New()
	assert.ErrorIs(t, s.UpdatePlan(ctx, second), ErrNotFound)
}

func TestMemoryStore_UnknownVanIsMissingReference(t *testing.T) {
	s := NewMemoryStore()
	van := uuid.New()
	err := s.InsertPlan(context.Background(), &model.RoutePlan{Status: model.RouteDraft, VanID: &van})
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestMemoryStore_InTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedPlan(t, s, uuid.New())
	boom := errors.New("boom")

	err := s.InTx(ctx, func(q Querier) error {
		got, err := q.GetPlan(ctx, p.ID, true)
		require.NoError(t, err)
		notes := "changed"
		got.Notes = &notes
		require.NoError(t, q.UpdatePlan(ctx, got))
		require.NoError(t, q.ReplaceStops(ctx, p.ID, nil))
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := s.GetPlan(ctx, p.ID, false)
	require.NoError(t, err)
	assert.Nil(t, after.Notes)
	assert.Equal(t, 1, after.Version)
	assert.Len(t, after.Stops, 2)
}

func TestMemoryStore_InTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedPlan(t, s, uuid.New())

	require.NoError(t, s.InTx(ctx, func(q Querier) error {
		return q.ReplaceStops(ctx, p.ID, nil)
	}))

	after, _ := s.GetPlan(ctx, p.ID, false)
	assert.Empty(t, after.Stops)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedPlan(t, s, uuid.New())

	got, _ := s.GetPlan(ctx, p.ID, false)
	got.Stops[0].OrderIndex = 99

	again, _ := s.GetPlan(ctx, p.ID, false)
	assert.Equal(t, 0, again.Stops[0].OrderIndex)
}

func TestMemoryStore_DuplicateOrderIndex(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedPlan(t, s)

	err := s.ReplaceStops(ctx, p.ID, []model.RouteStop{
		{LoadID: uuid.New(), StopType: model.StopPickup, OrderIndex: 0},
		{LoadID: uuid.New(), StopType: model.StopPickup, OrderIndex: 0},
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryStore_DeletePlanCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	load := uuid.New()
	src := seedPlan(t, s, load)
	sim := seedPlan(t, s, load)

	rec := &model.RouteSimulation{SourceRouteID: src.ID, SimulatedRouteID: sim.ID}
	require.NoError(t, s.InsertSimulation(ctx, rec))
	require.NoError(t, s.InsertPlacement(ctx, &model.CargoPlacement{RoutePlanID: src.ID, LoadID: load, WidthCm: 10, HeightCm: 10}))

	require.NoError(t, s.DeletePlan(ctx, src.ID))

	_, err := s.GetSimulation(ctx, rec.ID, false)
	assert.ErrorIs(t, err, ErrNotFound)
	ps, err := s.ListPlacements(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, ps)

	// The simulated plan itself is a plain plan and survives.
	_, err = s.GetPlan(ctx, sim.ID, false)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.DeletePlan(ctx, src.ID), ErrNotFound)
}

func TestMemoryStore_Placements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a, b := uuid.New(), uuid.New()
	p := seedPlan(t, s, a, b)

	for _, l := range []uuid.UUID{a, b, a} {
		require.NoError(t, s.InsertPlacement(ctx, &model.CargoPlacement{RoutePlanID: p.ID, LoadID: l, WidthCm: 10, HeightCm: 10}))
	}

	byA, err := s.ListPlacementsByLoad(ctx, p.ID, a)
	require.NoError(t, err)
	assert.Len(t, byA, 2)

	moved := byA[0]
	moved.XCm = 50
	moved.LoadID = b // ignored: a placement never changes load
	require.NoError(t, s.UpdatePlacement(ctx, &moved))
	byA, _ = s.ListPlacementsByLoad(ctx, p.ID, a)
	assert.Len(t, byA, 2)

	other := uuid.New()
	assert.ErrorIs(t, s.DeletePlacement(ctx, other, moved.ID), ErrNotFound)

	n, err := s.DeletePlacementsByLoad(ctx, p.ID, a)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	all, _ := s.ListPlacements(ctx, p.ID)
	require.Len(t, all, 1)
	assert.Equal(t, b, all[0].LoadID)
}

func TestMemoryStore_ListPlansOrdersByDeparture(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	van := uuid.New()
	require.NoError(t, s.UpsertVan(ctx, &model.Van{ID: van}))

	early := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)
	for _, d := range []*time.Time{&late, nil, &early} {
		require.NoError(t, s.InsertPlan(ctx, &model.RoutePlan{Status: model.RouteDraft, VanID: &van, DepartureDate: d}))
	}

	plans, err := s.ListPlans(ctx, PlanFilter{VanID: van})
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.True(t, plans[0].DepartureDate.Equal(early))
	assert.True(t, plans[1].DepartureDate.Equal(late))
	assert.Nil(t, plans[2].DepartureDate)

	archived := model.RouteArchived
	none, err := s.ListPlans(ctx, PlanFilter{VanID: van, Status: &archived})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_InTxCanReadDirectory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	van := &model.Van{ID: uuid.New(), CargoWidthCm: 220}
	require.NoError(t, s.UpsertVan(ctx, van))

	require.NoError(t, s.InTx(ctx, func(Querier) error {
		got, err := s.GetVan(ctx, van.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 220, got.CargoWidthCm)
		return nil
	}))
}
