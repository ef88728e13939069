package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/freightroute/internal/cargo"
	"github.com/shiva/freightroute/internal/events"
	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/repository"
)

// SimulationService runs what-if copies of route plans.
//
// Lifecycle:
//
//	Create   → source cloned into a SIMULATION plan, source untouched
//	Measure  → ComputeDeltas stores simulated − source and warnings
//	Apply    → source ARCHIVED, simulated plan ACTIVE, record applied
//	Discard  → simulated plan and record deleted
type SimulationService struct {
	core
}

// NewSimulationService creates a simulation service.
func NewSimulationService(o Options) *SimulationService {
	return &SimulationService{core: newCore(o)}
}

// Create clones a DRAFT or ACTIVE plan into a new SIMULATION plan together
// with its stops and placements, and records the simulation.
func (s *SimulationService) Create(ctx context.Context, sourceID uuid.UUID, name *string) (*model.RouteSimulation, error) {
	const op = "create_simulation"
	start := time.Now()

	var errs problems
	validateName(&errs, name)
	if err := errs.err(); err != nil {
		return nil, s.read(op, start, err)
	}

	var sim *model.RouteSimulation
	var simulated *model.RoutePlan
	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		// ── Step 1: Read the source under its lock ──────────
		source, err := lockPlan(ctx, q, sourceID)
		if err != nil {
			return err
		}
		if source.Status != model.RouteDraft && source.Status != model.RouteActive {
			return ErrSourceNotSimulatable
		}

		// ── Step 2: Clone plan and stops ────────────────────
		simName := trimmed(name)
		if simName == nil {
			n := "Simulation of " + source.DisplayName()
			simName = &n
		}
		simulated = &model.RoutePlan{
			ID:                uuid.New(),
			Name:              simName,
			Status:            model.RouteSimulating,
			VanID:             source.VanID,
			DepartureDate:     source.DepartureDate,
			ArrivalDate:       source.ArrivalDate,
			Notes:             source.Notes,
			Metrics:           source.Metrics,
			MetricsState:      source.MetricsState,
			MetricsComputedAt: source.MetricsComputedAt,
		}
		simulated.Stops = make([]model.RouteStop, len(source.Stops))
		for i, st := range source.Stops {
			simulated.Stops[i] = st.Clone(simulated.ID)
		}
		if err := q.InsertPlan(ctx, simulated); err != nil {
			return err
		}

		// ── Step 3: Clone placements ────────────────────────
		placements, err := q.ListPlacements(ctx, source.ID)
		if err != nil {
			return err
		}
		for _, p := range placements {
			c := p
			c.ID = uuid.Nil
			c.RoutePlanID = simulated.ID
			if err := q.InsertPlacement(ctx, &c); err != nil {
				return err
			}
		}

		// ── Step 4: Record the simulation ───────────────────
		sim = &model.RouteSimulation{
			SourceRouteID:    source.ID,
			SimulatedRouteID: simulated.ID,
			Name:             simName,
			Warnings:         []string{},
		}
		return q.InsertSimulation(ctx, sim)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("simulation %s created from route %s as route %s", sim.ID, sourceID, simulated.ID)
	s.publishSim(events.SimulationCreated, sourceID, sim, map[string]any{"simulatedRouteId": simulated.ID})
	return sim, nil
}

// Get returns one simulation record.
func (s *SimulationService) Get(ctx context.Context, id uuid.UUID) (*model.RouteSimulation, error) {
	start := time.Now()
	sim, err := s.store.GetSimulation(ctx, id, false)
	if err != nil {
		return nil, s.read("get_simulation", start, notFoundAs(err, ErrSimulationNotFound))
	}
	s.read("get_simulation", start, nil)
	return sim, nil
}

// List returns the simulations created from a source plan, oldest first.
func (s *SimulationService) List(ctx context.Context, sourceID uuid.UUID) ([]model.RouteSimulation, error) {
	start := time.Now()
	if _, err := s.store.GetPlan(ctx, sourceID, false); err != nil {
		return nil, s.read("list_simulations", start, notFoundAs(err, ErrRouteNotFound))
	}
	sims, err := s.store.ListSimulationsBySource(ctx, sourceID)
	return nonNil(sims), s.read("list_simulations", start, err)
}

// ComputeDeltas measures the simulated plan against its source. The
// simulated plan's metrics are stored FRESH; the source is only read, its
// metrics computed in memory when its cached ones are stale.
func (s *SimulationService) ComputeDeltas(ctx context.Context, id uuid.UUID) (*model.RouteSimulation, error) {
	const op = "compute_deltas"
	var sim *model.RouteSimulation

	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		var err error
		if sim, err = q.GetSimulation(ctx, id, true); err != nil {
			return notFoundAs(err, ErrSimulationNotFound)
		}
		if sim.IsApplied {
			return ErrSimulationAlreadyApplied
		}

		// ── Step 1: Simulated metrics (persisted) ───────────
		simulated, err := lockPlan(ctx, q, sim.SimulatedRouteID)
		if err != nil {
			return err
		}
		if err := s.refreshMetrics(ctx, q, simulated); err != nil {
			return err
		}

		// ── Step 2: Source metrics (read only) ──────────────
		source, err := q.GetPlan(ctx, sim.SourceRouteID, false)
		if err != nil {
			return notFoundAs(err, ErrRouteNotFound)
		}
		sourceMetrics, fresh := source.FreshMetrics()
		if !fresh {
			if sourceMetrics, err = s.calc.Compute(ctx, source); err != nil {
				return err
			}
		}

		// ── Step 3: Deltas & warnings ───────────────────────
		applyDeltas(sim, sourceMetrics, simulated.Metrics)
		if sim.Warnings, err = s.warnings(ctx, q, simulated); err != nil {
			return err
		}
		now := s.now().UTC()
		sim.MeasuredAt = &now
		return q.UpdateSimulation(ctx, sim)
	})
	if err != nil {
		return nil, err
	}

	s.rec.SimulationWarnings(len(sim.Warnings))
	s.publishSim(events.SimulationMeasured, sim.SourceRouteID, sim, map[string]any{"warnings": len(sim.Warnings)})
	return sim, nil
}

// Apply promotes the simulated plan: the source becomes ARCHIVED, the
// simulated plan ACTIVE and the record applied. All three writes land in one
// transaction. It returns the promoted plan.
func (s *SimulationService) Apply(ctx context.Context, id uuid.UUID) (*model.RoutePlan, error) {
	const op = "apply_simulation"
	start := time.Now()
	var sim *model.RouteSimulation
	var promoted *model.RoutePlan

	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		// ── Step 1: Lock the record ─────────────────────────
		var err error
		if sim, err = q.GetSimulation(ctx, id, true); err != nil {
			return notFoundAs(err, ErrSimulationNotFound)
		}
		if sim.IsApplied {
			return ErrSimulationAlreadyApplied
		}

		// ── Step 2: Lock both plans in a stable order ───────
		plans, err := lockPlans(ctx, q, sim.SourceRouteID, sim.SimulatedRouteID)
		if err != nil {
			return err
		}
		source, simulated := plans[sim.SourceRouteID], plans[sim.SimulatedRouteID]
		if source.Status != model.RouteDraft && source.Status != model.RouteActive {
			return ErrSourceSuperseded
		}
		if simulated.Status != model.RouteSimulating {
			return fmt.Errorf("%w: simulated route is %s", ErrInvalidState, simulated.Status)
		}

		// ── Step 3: Swap ────────────────────────────────────
		source.Status = model.RouteArchived
		if err := q.UpdatePlan(ctx, source); err != nil {
			return err
		}
		simulated.Status = model.RouteActive
		if err := q.UpdatePlan(ctx, simulated); err != nil {
			return err
		}
		now := s.now().UTC()
		sim.IsApplied = true
		sim.AppliedAt = &now
		if err := q.UpdateSimulation(ctx, sim); err != nil {
			return err
		}
		promoted = simulated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.rec.SimulationApplied(time.Since(start))
	s.log.Infof("simulation %s applied: route %s archived, route %s active", sim.ID, sim.SourceRouteID, promoted.ID)
	s.publishSim(events.SimulationApplied, sim.SourceRouteID, sim, map[string]any{"activeRouteId": promoted.ID})
	return promoted, nil
}

// Discard deletes an unapplied simulation and its simulated plan. The source
// is not touched.
func (s *SimulationService) Discard(ctx context.Context, id uuid.UUID) error {
	const op = "discard_simulation"
	var sim *model.RouteSimulation

	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		var err error
		if sim, err = q.GetSimulation(ctx, id, true); err != nil {
			return notFoundAs(err, ErrSimulationNotFound)
		}
		if sim.IsApplied {
			return ErrSimulationAlreadyApplied
		}
		if _, err := lockPlan(ctx, q, sim.SimulatedRouteID); err != nil {
			return err
		}
		if err := q.DeleteSimulation(ctx, sim.ID); err != nil {
			return notFoundAs(err, ErrSimulationNotFound)
		}
		return q.DeletePlan(ctx, sim.SimulatedRouteID)
	})
	if err != nil {
		return err
	}

	s.log.Infof("simulation %s discarded", id)
	s.publishSim(events.SimulationDiscarded, sim.SourceRouteID, sim, nil)
	return nil
}

// ─── Helpers ────────────────────────────────────────────────

// lockPlans locks plans in ascending id order so two transactions touching
// the same pair never wait on each other crosswise.
func lockPlans(ctx context.Context, q repository.Querier, ids ...uuid.UUID) (map[uuid.UUID]*model.RoutePlan, error) {
	ordered := append([]uuid.UUID(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	out := make(map[uuid.UUID]*model.RoutePlan, len(ordered))
	for _, id := range ordered {
		p, err := lockPlan(ctx, q, id)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

// warnings lists what would go wrong if the plan were driven as is.
func (s *SimulationService) warnings(ctx context.Context, q repository.Querier, p *model.RoutePlan) ([]string, error) {
	out := []string{}
	stops := cargo.Sorted(p.Stops)

	// ── Time windows ────────────────────────────────────
	for _, st := range stops {
		switch {
		case st.TimeWindowViolation:
			out = append(out, fmt.Sprintf("stop %d: time window violation flagged", st.OrderIndex))
		case st.ETA != nil && st.TimeWindowFrom != nil && st.ETA.Before(*st.TimeWindowFrom):
			out = append(out, fmt.Sprintf("stop %d: eta %s before time window opens at %s",
				st.OrderIndex, st.ETA.UTC().Format(time.RFC3339), st.TimeWindowFrom.UTC().Format(time.RFC3339)))
		case st.ETA != nil && st.TimeWindowTo != nil && st.ETA.After(*st.TimeWindowTo):
			out = append(out, fmt.Sprintf("stop %d: eta %s after time window closes at %s",
				st.OrderIndex, st.ETA.UTC().Format(time.RFC3339), st.TimeWindowTo.UTC().Format(time.RFC3339)))
		}
	}

	van, err := s.ensureVan(ctx, p.VanID)
	if err != nil {
		return nil, err
	}

	// ── Capacity ────────────────────────────────────────
	if van != nil && (van.MaxPallets != nil || van.MaxWeightKg != nil) {
		sizes, err := s.loadSizes(ctx, stops)
		if err != nil {
			return nil, err
		}
		for _, f := range cargo.Timeline(stops) {
			pallets, weight := 0, 0.0
			for _, id := range f.OnBoard {
				pallets += sizes[id].pallets
				weight += sizes[id].weightKg
			}
			if van.MaxPallets != nil && pallets > *van.MaxPallets {
				out = append(out, fmt.Sprintf("after stop %d: %d pallets on board exceed van capacity of %d",
					f.OrderIndex, pallets, *van.MaxPallets))
			}
			if van.MaxWeightKg != nil && weight > *van.MaxWeightKg {
				out = append(out, fmt.Sprintf("after stop %d: %.1f kg on board exceed van capacity of %.1f kg",
					f.OrderIndex, weight, *van.MaxWeightKg))
			}
		}
	}

	// ── Layout ──────────────────────────────────────────
	placements, err := q.ListPlacements(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	for _, pl := range cargo.Revalidate(placements, van) {
		name := pl.ID.String()
		if pl.Label != nil && *pl.Label != "" {
			name = *pl.Label
		}
		if pl.HasConflict {
			out = append(out, fmt.Sprintf("placement %s overlaps another placement", name))
		}
		if pl.IsOverflow {
			out = append(out, fmt.Sprintf("placement %s extends beyond the cargo floor", name))
		}
	}
	return out, nil
}

type loadSize struct {
	pallets  int
	weightKg float64
}

// loadSizes returns pallets and weight per load, taken from the pickup stop
// when it carries them and from the load record otherwise.
func (s *SimulationService) loadSizes(ctx context.Context, stops []model.RouteStop) (map[uuid.UUID]loadSize, error) {
	out := map[uuid.UUID]loadSize{}
	for _, st := range stops {
		if st.StopType != model.StopPickup {
			continue
		}
		if _, done := out[st.LoadID]; done {
			continue
		}

		var size loadSize
		pallets, weight := st.Pallets, st.WeightKg
		if pallets == nil || weight == nil {
			load, err := s.dir.GetLoad(ctx, st.LoadID)
			if err != nil {
				return nil, notFoundAs(err, ErrLoadNotFound)
			}
			if pallets == nil {
				pallets = load.Pallets
			}
			if weight == nil {
				weight = load.WeightKg
			}
		}
		if pallets != nil {
			size.pallets = *pallets
		}
		if weight != nil {
			size.weightKg = *weight
		}
		out[st.LoadID] = size
	}
	return out, nil
}
