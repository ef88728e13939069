package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/freightroute/internal/cargo"
	"github.com/shiva/freightroute/internal/events"
	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/repository"
)

// ─── Inputs ─────────────────────────────────────────────────

// CreateRoutePlanInput is the payload of Create.
type CreateRoutePlanInput struct {
	Name          *string            `json:"name"`
	Status        *model.RouteStatus `json:"status"`
	VanID         *uuid.UUID         `json:"vanId"`
	DepartureDate *time.Time         `json:"departureDate"`
	ArrivalDate   *time.Time         `json:"arrivalDate"`
	Notes         *string            `json:"notes"`
	Stops         []StopInput        `json:"stops"`
}

// UpdateRoutePlanInput is a partial update. Nil fields are left untouched;
// Stops, when present, replaces the whole list. Version, when present, must
// match the stored version.
type UpdateRoutePlanInput struct {
	Name          *string            `json:"name"`
	Status        *model.RouteStatus `json:"status"`
	VanID         *uuid.UUID         `json:"vanId"`
	DepartureDate *time.Time         `json:"departureDate"`
	ArrivalDate   *time.Time         `json:"arrivalDate"`
	Notes         *string            `json:"notes"`
	Stops         *[]StopInput       `json:"stops"`
	Version       *int               `json:"version"`
}

// ─── RouteService ───────────────────────────────────────────

// RouteService manages route plans and their stop ledger.
type RouteService struct {
	core
}

// NewRouteService creates a route service.
func NewRouteService(o Options) *RouteService {
	return &RouteService{core: newCore(o)}
}

// Create stores a new plan. Status defaults to DRAFT; SIMULATION plans are
// only ever created by the simulation engine.
func (s *RouteService) Create(ctx context.Context, in CreateRoutePlanInput) (*model.RoutePlan, error) {
	const op = "create_route"
	start := time.Now()

	// ── Step 1: Validate outside the transaction ────────
	var errs problems
	status := model.RouteDraft
	if in.Status != nil {
		status = *in.Status
		if !status.Valid() {
			errs.addf("status: unknown value %q", status)
		} else if status == model.RouteSimulating {
			errs.addf("status: SIMULATION plans are created through simulations")
		}
	}
	validateName(&errs, in.Name)
	validateDates(&errs, in.DepartureDate, in.ArrivalDate)
	if err := errs.err(); err != nil {
		return nil, s.read(op, start, err)
	}

	stops, err := buildStops(in.Stops)
	if err != nil {
		return nil, s.read(op, start, err)
	}
	if err := s.ensureLoads(ctx, stops); err != nil {
		return nil, s.read(op, start, err)
	}
	if _, err := s.ensureVan(ctx, in.VanID); err != nil {
		return nil, s.read(op, start, err)
	}

	// ── Step 2: Insert ──────────────────────────────────
	p := &model.RoutePlan{
		Name:          trimmed(in.Name),
		Status:        status,
		VanID:         in.VanID,
		DepartureDate: in.DepartureDate,
		ArrivalDate:   in.ArrivalDate,
		Notes:         in.Notes,
		MetricsState:  model.MetricsStale,
		Stops:         stops,
	}
	err = s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		return q.InsertPlan(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("created route %s (%s) with %d stops", p.ID, p.Status, len(p.Stops))
	s.publish(events.RouteCreated, p, map[string]any{"stops": len(p.Stops)})
	return p, nil
}

// Get returns a plan with its stops ordered by orderIndex.
func (s *RouteService) Get(ctx context.Context, id uuid.UUID) (*model.RoutePlan, error) {
	start := time.Now()
	p, err := s.store.GetPlan(ctx, id, false)
	if err != nil {
		return nil, s.read("get_route", start, notFoundAs(err, ErrRouteNotFound))
	}
	s.read("get_route", start, nil)
	return p, nil
}

// ListByVan returns the plans of a van ordered by departure date, undated
// plans last. A nil status lists ACTIVE plans only, so archived plans and
// simulation sandboxes sharing the van stay out of the fleet view.
func (s *RouteService) ListByVan(ctx context.Context, vanID uuid.UUID, status *model.RouteStatus) ([]model.RoutePlan, error) {
	start := time.Now()
	if status == nil {
		active := model.RouteActive
		status = &active
	} else if !status.Valid() {
		return nil, s.read("list_routes", start, invalidf("status: unknown value %q", *status))
	}
	plans, err := s.store.ListPlans(ctx, repository.PlanFilter{VanID: vanID, Status: status})
	if err != nil {
		return nil, s.read("list_routes", start, err)
	}
	if plans == nil {
		plans = []model.RoutePlan{}
	}
	s.read("list_routes", start, nil)
	return plans, nil
}

// Update applies a partial update.
func (s *RouteService) Update(ctx context.Context, id uuid.UUID, in UpdateRoutePlanInput) (*model.RoutePlan, error) {
	const op = "update_route"
	start := time.Now()

	// ── Step 1: Validate outside the transaction ────────
	var errs problems
	if in.Status != nil && !in.Status.Valid() {
		errs.addf("status: unknown value %q", *in.Status)
	}
	validateName(&errs, in.Name)
	if err := errs.err(); err != nil {
		return nil, s.read(op, start, err)
	}

	var stops []model.RouteStop
	if in.Stops != nil {
		var err error
		if stops, err = buildStops(*in.Stops); err != nil {
			return nil, s.read(op, start, err)
		}
		if err := s.ensureLoads(ctx, stops); err != nil {
			return nil, s.read(op, start, err)
		}
	}
	if _, err := s.ensureVan(ctx, in.VanID); err != nil {
		return nil, s.read(op, start, err)
	}

	// ── Step 2: Apply under the plan lock ───────────────
	var p *model.RoutePlan
	var revalidated int
	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		var err error
		if p, err = lockPlan(ctx, q, id); err != nil {
			return err
		}
		if err := checkExpectedVersion(p, in.Version); err != nil {
			return err
		}

		if in.Status != nil {
			if err := checkTransition(p.Status, *in.Status, false); err != nil {
				return err
			}
		}
		// Archived plans only move through SetStatus with override.
		if err := checkMutable(ctx, q, p); err != nil {
			return err
		}

		if in.Name != nil {
			p.Name = trimmed(in.Name)
		}
		if in.Notes != nil {
			p.Notes = in.Notes
		}
		if in.DepartureDate != nil {
			p.DepartureDate = in.DepartureDate
		}
		if in.ArrivalDate != nil {
			p.ArrivalDate = in.ArrivalDate
		}
		if err := datesErr(p.DepartureDate, p.ArrivalDate); err != nil {
			return err
		}
		if in.Status != nil {
			p.Status = *in.Status
		}
		vanChanged := in.VanID != nil && (p.VanID == nil || *p.VanID != *in.VanID)
		if in.VanID != nil {
			p.VanID = in.VanID
		}
		if vanChanged {
			// Fuel consumption comes from the van.
			p.MarkStale()
		}

		if in.Stops != nil {
			if err := replaceStops(ctx, q, p, stops); err != nil {
				return err
			}
		}
		if err := q.UpdatePlan(ctx, p); err != nil {
			return err
		}

		if vanChanged {
			n, err := s.revalidate(ctx, q, p)
			if err != nil {
				return err
			}
			revalidated = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("updated route %s to version %d", p.ID, p.Version)
	s.publish(events.RouteUpdated, p, map[string]any{"stopsReplaced": in.Stops != nil})
	if revalidated > 0 {
		s.publish(events.PlacementsRevalidated, p, map[string]any{"changed": revalidated})
	}
	return p, nil
}

// ReplaceStops replaces the whole stop list of a plan. Stops without an
// orderIndex are indexed by position. Metrics become STALE.
func (s *RouteService) ReplaceStops(ctx context.Context, id uuid.UUID, in []StopInput, expectedVersion *int) (*model.RoutePlan, error) {
	const op = "replace_stops"
	start := time.Now()

	stops, err := buildStops(in)
	if err != nil {
		return nil, s.read(op, start, err)
	}
	if err := s.ensureLoads(ctx, stops); err != nil {
		return nil, s.read(op, start, err)
	}

	var p *model.RoutePlan
	err = s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		var err error
		if p, err = lockPlan(ctx, q, id); err != nil {
			return err
		}
		if err := checkExpectedVersion(p, expectedVersion); err != nil {
			return err
		}
		if err := checkMutable(ctx, q, p); err != nil {
			return err
		}
		if err := replaceStops(ctx, q, p, stops); err != nil {
			return err
		}
		return q.UpdatePlan(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.log.Infof("replaced stops of route %s (%d stops, version %d)", p.ID, len(p.Stops), p.Version)
	s.publish(events.RouteStopsReplaced, p, map[string]any{"stops": len(p.Stops)})
	return p, nil
}

// SetStatus changes the plan status. ARCHIVED is terminal unless override is
// set. SIMULATION can neither be entered nor left here: only the simulation
// engine moves plans in and out of it.
func (s *RouteService) SetStatus(ctx context.Context, id uuid.UUID, status model.RouteStatus, override bool) (*model.RoutePlan, error) {
	const op = "set_status"
	start := time.Now()
	if !status.Valid() {
		return nil, s.read(op, start, invalidf("status: unknown value %q", status))
	}

	var p *model.RoutePlan
	var from model.RouteStatus
	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		var err error
		if p, err = lockPlan(ctx, q, id); err != nil {
			return err
		}
		from = p.Status
		if err := checkTransition(p.Status, status, override); err != nil {
			return err
		}
		if p.Status == status {
			return nil
		}
		p.Status = status
		return q.UpdatePlan(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	if from != status {
		s.log.Infof("route %s status %s → %s", p.ID, from, status)
		s.publish(events.RouteStatusChanged, p, map[string]any{"from": from, "to": status})
	}
	return p, nil
}

// Delete removes a plan with its stops and placements. Simulation records
// that reference it go too, and so do the simulated plans of its unapplied
// simulations.
func (s *RouteService) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "delete_route"
	var p *model.RoutePlan
	var dropped []uuid.UUID

	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		// ── Step 1: Lock simulation rows before the plan ────
		// Apply, ComputeDeltas and Discard lock the simulation first too.
		if err := lockSimulationsOf(ctx, q, id); err != nil {
			return err
		}

		// ── Step 2: Lock the plan ───────────────────────────
		var err error
		if p, err = lockPlan(ctx, q, id); err != nil {
			return err
		}

		// ── Step 3: Drop unapplied sandboxes, then the plan ─
		// Re-read under the plan lock: no simulation can be created now.
		sims, err := q.ListSimulationsBySource(ctx, id)
		if err != nil {
			return err
		}
		for _, sim := range sims {
			if sim.IsApplied {
				continue
			}
			if err := q.DeletePlan(ctx, sim.SimulatedRouteID); err != nil {
				return fmt.Errorf("drop simulated route %s: %w", sim.SimulatedRouteID, err)
			}
			dropped = append(dropped, sim.SimulatedRouteID)
		}
		return q.DeletePlan(ctx, id)
	})
	if err != nil {
		return err
	}

	s.log.Infof("deleted route %s and %d simulated routes", id, len(dropped))
	s.publish(events.RouteDeleted, p, map[string]any{"simulatedRoutes": dropped})
	return nil
}

// lockSimulationsOf locks every simulation row that references the plan, as
// source or as sandbox, in id order.
func lockSimulationsOf(ctx context.Context, q repository.Querier, planID uuid.UUID) error {
	sims, err := q.ListSimulationsBySource(ctx, planID)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, 0, len(sims)+1)
	for _, sim := range sims {
		ids = append(ids, sim.ID)
	}
	if own, err := q.GetSimulationBySimulatedRoute(ctx, planID); err == nil {
		ids = append(ids, own.ID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, simID := range ids {
		if _, err := q.GetSimulation(ctx, simID, true); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	return nil
}

// RecomputeMetrics recalculates and stores the plan metrics as FRESH.
func (s *RouteService) RecomputeMetrics(ctx context.Context, id uuid.UUID) (*model.RoutePlan, error) {
	const op = "recompute_metrics"
	var p *model.RoutePlan
	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		var err error
		if p, err = lockPlan(ctx, q, id); err != nil {
			return err
		}
		return s.refreshMetrics(ctx, q, p)
	})
	if err != nil {
		return nil, err
	}

	s.publish(events.RouteMetricsComputed, p, nil)
	return p, nil
}

// refreshMetrics computes and persists fresh metrics on a locked plan.
func (c *core) refreshMetrics(ctx context.Context, q repository.Querier, p *model.RoutePlan) error {
	m, err := c.calc.Compute(ctx, p)
	if err != nil {
		return err
	}
	p.SetMetrics(m, c.now().UTC())
	return q.UpdatePlan(ctx, p)
}

// CargoAt returns the loads on board after the stop at stopIndex.
func (s *RouteService) CargoAt(ctx context.Context, id uuid.UUID, stopIndex int) ([]uuid.UUID, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return cargo.OnBoardAt(p.Stops, stopIndex), nil
}

// Timeline returns the on-board set after every stop of the plan.
func (s *RouteService) Timeline(ctx context.Context, id uuid.UUID) ([]cargo.Frame, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return cargo.Timeline(p.Stops), nil
}

// ─── Rules ──────────────────────────────────────────────────

// checkTransition enforces the status lifecycle for explicit status changes.
func checkTransition(from, to model.RouteStatus, override bool) error {
	if from == to {
		return nil
	}
	if from == model.RouteSimulating || to == model.RouteSimulating {
		return ErrIllegalTransition
	}
	if from == model.RouteArchived && !override {
		return ErrRouteArchived
	}
	return nil
}

func validateName(errs *problems, name *string) {
	if name != nil && len(strings.TrimSpace(*name)) > maxNameLen {
		errs.addf("name: at most %d characters", maxNameLen)
	}
}

func validateDates(errs *problems, departure, arrival *time.Time) {
	if departure != nil && arrival != nil && arrival.Before(*departure) {
		errs.addf("arrivalDate: must not be before departureDate")
	}
}

func datesErr(departure, arrival *time.Time) error {
	var errs problems
	validateDates(&errs, departure, arrival)
	return errs.err()
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
