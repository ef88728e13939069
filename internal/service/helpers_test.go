package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shiva/freightroute/internal/events"
	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/repository"
)

var errInjected = errors.New("injected failure")

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// recorder keeps every published event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// faultyStore hands transactions a Querier that fails on one method.
type faultyStore struct {
	*repository.MemoryStore
	failOn string
}

func (f *faultyStore) InTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return f.MemoryStore.InTx(ctx, func(q repository.Querier) error {
		return fn(faultyQuerier{Querier: q, failOn: f.failOn})
	})
}

type faultyQuerier struct {
	repository.Querier
	failOn string
}

func (q faultyQuerier) UpdatePlan(ctx context.Context, p *model.RoutePlan) error {
	if q.failOn == "UpdatePlan" {
		return errInjected
	}
	return q.Querier.UpdatePlan(ctx, p)
}

func (q faultyQuerier) UpdateSimulation(ctx context.Context, s *model.RouteSimulation) error {
	if q.failOn == "UpdateSimulation" {
		return errInjected
	}
	return q.Querier.UpdateSimulation(ctx, s)
}

func (q faultyQuerier) InsertSimulation(ctx context.Context, s *model.RouteSimulation) error {
	if q.failOn == "InsertSimulation" {
		return errInjected
	}
	return q.Querier.InsertSimulation(ctx, s)
}

func (q faultyQuerier) InsertPlacement(ctx context.Context, p *model.CargoPlacement) error {
	if q.failOn == "InsertPlacement" {
		return errInjected
	}
	return q.Querier.InsertPlacement(ctx, p)
}

// lockTraceStore records the row locks taken inside its transactions.
type lockTraceStore struct {
	*repository.MemoryStore
	mu    sync.Mutex
	locks []string
}

func (s *lockTraceStore) InTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return s.MemoryStore.InTx(ctx, func(q repository.Querier) error {
		return fn(lockTracer{Querier: q, store: s})
	})
}

func (s *lockTraceStore) record(kind string, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks = append(s.locks, kind+":"+id.String())
}

type lockTracer struct {
	repository.Querier
	store *lockTraceStore
}

func (q lockTracer) GetPlan(ctx context.Context, id uuid.UUID, lock bool) (*model.RoutePlan, error) {
	if lock {
		q.store.record("plan", id)
	}
	return q.Querier.GetPlan(ctx, id, lock)
}

func (q lockTracer) GetSimulation(ctx context.Context, id uuid.UUID, lock bool) (*model.RouteSimulation, error) {
	if lock {
		q.store.record("sim", id)
	}
	return q.Querier.GetSimulation(ctx, id, lock)
}

// testEnv wires every service onto one in-memory store.
type testEnv struct {
	ctx    context.Context
	mem    *repository.MemoryStore
	events *recorder
	routes *RouteService
	sims   *SimulationService
	layout *PlacementService

	van   model.Van
	loadA uuid.UUID
	loadB uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, "")
}

// newTestEnvWithStore builds the env; a non-empty failOn makes every
// transaction fail on that Querier method.
func newTestEnvWithStore(t *testing.T, failOn string) *testEnv {
	t.Helper()
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	mem.SetClock(func() time.Time { return testNow })

	maxPallets, maxWeight, consumption := 8, 1200.0, 10.0
	env := &testEnv{
		ctx:    ctx,
		mem:    mem,
		events: &recorder{},
		van: model.Van{
			ID:                      uuid.New(),
			Name:                    "Sprinter 1",
			LicensePlate:            "LS12 ABC",
			CargoLengthCm:           420,
			CargoWidthCm:            220,
			CargoHeightCm:           190,
			MaxPallets:              &maxPallets,
			MaxWeightKg:             &maxWeight,
			FuelConsumptionPer100Km: &consumption,
		},
		loadA: uuid.New(),
		loadB: uuid.New(),
	}
	require.NoError(t, mem.UpsertVan(ctx, &env.van))
	env.addLoad(t, env.loadA, "LD-A", "500", 2, 400)
	env.addLoad(t, env.loadB, "LD-B", "300", 3, 600)

	var store repository.Store = mem
	if failOn != "" {
		store = &faultyStore{MemoryStore: mem, failOn: failOn}
	}
	opts := Options{
		Store:     store,
		Directory: mem,
		Events:    env.events,
		Now:       func() time.Time { return testNow },
	}
	env.routes = NewRouteService(opts)
	env.sims = NewSimulationService(opts)
	env.layout = NewPlacementService(opts)
	return env
}

func (e *testEnv) addLoad(t *testing.T, id uuid.UUID, ref, price string, pallets int, weight float64) {
	t.Helper()
	require.NoError(t, e.mem.UpsertLoad(e.ctx, &model.Load{
		ID:        id,
		Reference: ref,
		Pallets:   &pallets,
		WeightKg:  &weight,
		Price:     decimal.NewNullDecimal(decimal.RequireFromString(price)),
		Currency:  "EUR",
	}))
}

func stopIn(t model.StopType, load uuid.UUID) StopInput {
	return StopInput{
		LoadID:   load,
		StopType: t,
		Address:  "1 Dock Road",
		City:     "Leeds",
		Postcode: "LS1 1AA",
		Country:  "gb",
	}
}

func withDistance(s StopInput, km float64, minutes int) StopInput {
	s.DistanceToNextKm = &km
	s.DrivingTimeToNextMinutes = &minutes
	return s
}

func ptr[T any](v T) *T { return &v }

// standardStops is A↑ B↑ A↓ B↓ with planned legs of 100, 50 and 30 km.
func (e *testEnv) standardStops() []StopInput {
	return []StopInput{
		withDistance(stopIn(model.StopPickup, e.loadA), 100, 80),
		withDistance(stopIn(model.StopPickup, e.loadB), 50, 40),
		withDistance(stopIn(model.StopDelivery, e.loadA), 30, 25),
		stopIn(model.StopDelivery, e.loadB),
	}
}

func (e *testEnv) createPlan(t *testing.T, name string) *model.RoutePlan {
	t.Helper()
	p, err := e.routes.Create(e.ctx, CreateRoutePlanInput{
		Name:  &name,
		VanID: &e.van.ID,
		Stops: e.standardStops(),
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) plan(t *testing.T, id uuid.UUID) *model.RoutePlan {
	t.Helper()
	p, err := e.mem.GetPlan(e.ctx, id, false)
	require.NoError(t, err)
	return p
}
