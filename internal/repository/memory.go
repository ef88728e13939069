package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/freightroute/internal/model"
)

// MemoryStore is an in-process Store and Directory. Transactions run one at a
// time against a private copy of the state that replaces the live state only
// when fn succeeds, so a failing transaction leaves nothing behind.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time

	// Vans and loads sit behind their own lock so directory reads made
	// inside InTx do not wait on the transaction lock.
	dirMu sync.RWMutex
	vans  map[uuid.UUID]model.Van
	loads map[uuid.UUID]model.Load
}

type memState struct {
	now         func() time.Time
	hasVan      func(id uuid.UUID) bool
	plans       map[uuid.UUID]model.RoutePlan // stored without stops
	stops       map[uuid.UUID][]model.RouteStop
	simulations map[uuid.UUID]model.RouteSimulation
	placements  map[uuid.UUID]model.CargoPlacement
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		now:   time.Now,
		vans:  map[uuid.UUID]model.Van{},
		loads: map[uuid.UUID]model.Load{},
	}
	s.state = &memState{
		now:         func() time.Time { return s.now() },
		hasVan:      s.hasVan,
		plans:       map[uuid.UUID]model.RoutePlan{},
		stops:       map[uuid.UUID][]model.RouteStop{},
		simulations: map[uuid.UUID]model.RouteSimulation{},
		placements:  map[uuid.UUID]model.CargoPlacement{},
	}
	return s
}

// SetClock replaces the time source. Used by tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) hasVan(id uuid.UUID) bool {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	_, ok := s.vans[id]
	return ok
}

func (st *memState) clone() *memState {
	c := &memState{
		now:         st.now,
		hasVan:      st.hasVan,
		plans:       make(map[uuid.UUID]model.RoutePlan, len(st.plans)),
		stops:       make(map[uuid.UUID][]model.RouteStop, len(st.stops)),
		simulations: make(map[uuid.UUID]model.RouteSimulation, len(st.simulations)),
		placements:  make(map[uuid.UUID]model.CargoPlacement, len(st.placements)),
	}
	for k, v := range st.plans {
		c.plans[k] = v
	}
	for k, v := range st.stops {
		c.stops[k] = append([]model.RouteStop(nil), v...)
	}
	for k, v := range st.simulations {
		v.Warnings = append([]string(nil), v.Warnings...)
		c.simulations[k] = v
	}
	for k, v := range st.placements {
		c.placements[k] = v
	}
	return c
}

// InTx runs fn against a copy of the state and publishes the copy on success.
func (s *MemoryStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("route tx: begin: %w", err)
	}
	work := s.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("route tx: commit: %w", err)
	}
	s.state = work
	return nil
}

func locked[T any](s *MemoryStore, fn func(st *memState) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

func lockedErr(s *MemoryStore, fn func(st *memState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// ─── Store methods outside a transaction ────────────────────

func (s *MemoryStore) GetPlan(ctx context.Context, id uuid.UUID, lock bool) (*model.RoutePlan, error) {
	return locked(s, func(st *memState) (*model.RoutePlan, error) { return st.GetPlan(ctx, id, lock) })
}

func (s *MemoryStore) ListPlans(ctx context.Context, f PlanFilter) ([]model.RoutePlan, error) {
	return locked(s, func(st *memState) ([]model.RoutePlan, error) { return st.ListPlans(ctx, f) })
}

func (s *MemoryStore) InsertPlan(ctx context.Context, p *model.RoutePlan) error {
	return lockedErr(s, func(st *memState) error { return st.InsertPlan(ctx, p) })
}

func (s *MemoryStore) UpdatePlan(ctx context.Context, p *model.RoutePlan) error {
	return lockedErr(s, func(st *memState) error { return st.UpdatePlan(ctx, p) })
}

func (s *MemoryStore) ReplaceStops(ctx context.Context, planID uuid.UUID, stops []model.RouteStop) error {
	return lockedErr(s, func(st *memState) error { return st.ReplaceStops(ctx, planID, stops) })
}

func (s *MemoryStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	return lockedErr(s, func(st *memState) error { return st.DeletePlan(ctx, id) })
}

func (s *MemoryStore) GetSimulation(ctx context.Context, id uuid.UUID, lock bool) (*model.RouteSimulation, error) {
	return locked(s, func(st *memState) (*model.RouteSimulation, error) { return st.GetSimulation(ctx, id, lock) })
}

func (s *MemoryStore) GetSimulationBySimulatedRoute(ctx context.Context, planID uuid.UUID) (*model.RouteSimulation, error) {
	return locked(s, func(st *memState) (*model.RouteSimulation, error) {
		return st.GetSimulationBySimulatedRoute(ctx, planID)
	})
}

func (s *MemoryStore) ListSimulationsBySource(ctx context.Context, sourceID uuid.UUID) ([]model.RouteSimulation, error) {
	return locked(s, func(st *memState) ([]model.RouteSimulation, error) {
		return st.ListSimulationsBySource(ctx, sourceID)
	})
}

func (s *MemoryStore) InsertSimulation(ctx context.Context, sim *model.RouteSimulation) error {
	return lockedErr(s, func(st *memState) error { return st.InsertSimulation(ctx, sim) })
}

func (s *MemoryStore) UpdateSimulation(ctx context.Context, sim *model.RouteSimulation) error {
	return lockedErr(s, func(st *memState) error { return st.UpdateSimulation(ctx, sim) })
}

func (s *MemoryStore) DeleteSimulation(ctx context.Context, id uuid.UUID) error {
	return lockedErr(s, func(st *memState) error { return st.DeleteSimulation(ctx, id) })
}

func (s *MemoryStore) ListPlacements(ctx context.Context, routeID uuid.UUID) ([]model.CargoPlacement, error) {
	return locked(s, func(st *memState) ([]model.CargoPlacement, error) { return st.ListPlacements(ctx, routeID) })
}

func (s *MemoryStore) ListPlacementsByLoad(ctx context.Context, routeID, loadID uuid.UUID) ([]model.CargoPlacement, error) {
	return locked(s, func(st *memState) ([]model.CargoPlacement, error) {
		return st.ListPlacementsByLoad(ctx, routeID, loadID)
	})
}

func (s *MemoryStore) InsertPlacement(ctx context.Context, p *model.CargoPlacement) error {
	return lockedErr(s, func(st *memState) error { return st.InsertPlacement(ctx, p) })
}

func (s *MemoryStore) UpdatePlacement(ctx context.Context, p *model.CargoPlacement) error {
	return lockedErr(s, func(st *memState) error { return st.UpdatePlacement(ctx, p) })
}

func (s *MemoryStore) DeletePlacement(ctx context.Context, routeID, id uuid.UUID) error {
	return lockedErr(s, func(st *memState) error { return st.DeletePlacement(ctx, routeID, id) })
}

func (s *MemoryStore) DeletePlacementsByLoad(ctx context.Context, routeID, loadID uuid.UUID) (int64, error) {
	return locked(s, func(st *memState) (int64, error) { return st.DeletePlacementsByLoad(ctx, routeID, loadID) })
}

// ─── Directory ──────────────────────────────────────────────

func (s *MemoryStore) GetVan(_ context.Context, id uuid.UUID) (*model.Van, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	v, ok := s.vans[id]
	if !ok {
		return nil, fmt.Errorf("get van %s: %w", id, ErrNotFound)
	}
	return &v, nil
}

func (s *MemoryStore) GetLoad(_ context.Context, id uuid.UUID) (*model.Load, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	l, ok := s.loads[id]
	if !ok {
		return nil, fmt.Errorf("get load %s: %w", id, ErrNotFound)
	}
	return &l, nil
}

func (s *MemoryStore) UpsertVan(_ context.Context, v *model.Van) error {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.vans[v.ID] = *v
	return nil
}

func (s *MemoryStore) UpsertLoad(_ context.Context, l *model.Load) error {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.loads[l.ID] = *l
	return nil
}

// ─── memState implements Querier ────────────────────────────

func (st *memState) GetPlan(_ context.Context, id uuid.UUID, _ bool) (*model.RoutePlan, error) {
	p, ok := st.plans[id]
	if !ok {
		return nil, fmt.Errorf("get plan %s: %w", id, ErrNotFound)
	}
	p.Stops = append([]model.RouteStop{}, st.stops[id]...)
	return &p, nil
}

func (st *memState) ListPlans(_ context.Context, f PlanFilter) ([]model.RoutePlan, error) {
	var out []model.RoutePlan
	for _, p := range st.plans {
		if p.VanID == nil || *p.VanID != f.VanID {
			continue
		}
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		p.Stops = append([]model.RouteStop{}, st.stops[p.ID]...)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].DepartureDate, out[j].DepartureDate
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (st *memState) InsertPlan(ctx context.Context, p *model.RoutePlan) error {
	now := st.now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, ok := st.plans[p.ID]; ok {
		return fmt.Errorf("insert plan %s: %w", p.ID, ErrDuplicate)
	}
	if p.VanID != nil {
		if !st.hasVan(*p.VanID) {
			return fmt.Errorf("insert plan %s: van %s: %w", p.ID, *p.VanID, ErrMissingReference)
		}
	}
	if p.MetricsState == "" {
		p.MetricsState = model.MetricsStale
	}
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now

	row := *p
	row.Stops = nil
	st.plans[p.ID] = row
	return st.ReplaceStops(ctx, p.ID, p.Stops)
}

func (st *memState) UpdatePlan(_ context.Context, p *model.RoutePlan) error {
	cur, ok := st.plans[p.ID]
	if !ok {
		return fmt.Errorf("update plan %s: %w", p.ID, ErrNotFound)
	}
	if cur.Version != p.Version {
		return fmt.Errorf("update plan %s at version %d: %w", p.ID, p.Version, ErrVersionConflict)
	}
	if p.VanID != nil {
		if !st.hasVan(*p.VanID) {
			return fmt.Errorf("update plan %s: van %s: %w", p.ID, *p.VanID, ErrMissingReference)
		}
	}
	p.Version++
	p.UpdatedAt = st.now().UTC()

	row := *p
	row.Stops = nil
	row.CreatedAt = cur.CreatedAt
	st.plans[p.ID] = row
	return nil
}

func (st *memState) ReplaceStops(_ context.Context, planID uuid.UUID, stops []model.RouteStop) error {
	if _, ok := st.plans[planID]; !ok {
		return fmt.Errorf("replace stops of %s: %w", planID, ErrMissingReference)
	}
	now := st.now().UTC()
	seen := make(map[int]bool, len(stops))
	out := make([]model.RouteStop, 0, len(stops))
	for i := range stops {
		s := &stops[i]
		if seen[s.OrderIndex] {
			return fmt.Errorf("replace stops of %s: order_index %d: %w", planID, s.OrderIndex, ErrDuplicate)
		}
		seen[s.OrderIndex] = true
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.RoutePlanID = planID
		s.CreatedAt, s.UpdatedAt = now, now
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	st.stops[planID] = out
	return nil
}

func (st *memState) DeletePlan(_ context.Context, id uuid.UUID) error {
	if _, ok := st.plans[id]; !ok {
		return fmt.Errorf("delete plan %s: %w", id, ErrNotFound)
	}
	delete(st.plans, id)
	delete(st.stops, id)
	for pid, p := range st.placements {
		if p.RoutePlanID == id {
			delete(st.placements, pid)
		}
	}
	for sid, s := range st.simulations {
		if s.SourceRouteID == id || s.SimulatedRouteID == id {
			delete(st.simulations, sid)
		}
	}
	return nil
}

func (st *memState) GetSimulation(_ context.Context, id uuid.UUID, _ bool) (*model.RouteSimulation, error) {
	s, ok := st.simulations[id]
	if !ok {
		return nil, fmt.Errorf("get simulation %s: %w", id, ErrNotFound)
	}
	s.Warnings = append([]string{}, s.Warnings...)
	return &s, nil
}

func (st *memState) GetSimulationBySimulatedRoute(_ context.Context, planID uuid.UUID) (*model.RouteSimulation, error) {
	for _, s := range st.simulations {
		if s.SimulatedRouteID == planID {
			s.Warnings = append([]string{}, s.Warnings...)
			return &s, nil
		}
	}
	return nil, fmt.Errorf("get simulation of plan %s: %w", planID, ErrNotFound)
}

func (st *memState) ListSimulationsBySource(_ context.Context, sourceID uuid.UUID) ([]model.RouteSimulation, error) {
	out := []model.RouteSimulation{}
	for _, s := range st.simulations {
		if s.SourceRouteID == sourceID {
			s.Warnings = append([]string{}, s.Warnings...)
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (st *memState) InsertSimulation(_ context.Context, s *model.RouteSimulation) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	for _, ref := range []uuid.UUID{s.SourceRouteID, s.SimulatedRouteID} {
		if _, ok := st.plans[ref]; !ok {
			return fmt.Errorf("insert simulation %s: plan %s: %w", s.ID, ref, ErrMissingReference)
		}
	}
	if s.Warnings == nil {
		s.Warnings = []string{}
	}
	now := st.now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	row := *s
	row.Warnings = append([]string{}, s.Warnings...)
	st.simulations[s.ID] = row
	return nil
}

func (st *memState) UpdateSimulation(_ context.Context, s *model.RouteSimulation) error {
	cur, ok := st.simulations[s.ID]
	if !ok {
		return fmt.Errorf("update simulation %s: %w", s.ID, ErrNotFound)
	}
	s.UpdatedAt = st.now().UTC()
	row := *s
	row.SourceRouteID, row.SimulatedRouteID, row.CreatedAt = cur.SourceRouteID, cur.SimulatedRouteID, cur.CreatedAt
	row.Warnings = append([]string{}, s.Warnings...)
	st.simulations[s.ID] = row
	return nil
}

func (st *memState) DeleteSimulation(_ context.Context, id uuid.UUID) error {
	if _, ok := st.simulations[id]; !ok {
		return fmt.Errorf("delete simulation %s: %w", id, ErrNotFound)
	}
	delete(st.simulations, id)
	return nil
}

func (st *memState) ListPlacements(_ context.Context, routeID uuid.UUID) ([]model.CargoPlacement, error) {
	out := []model.CargoPlacement{}
	for _, p := range st.placements {
		if p.RoutePlanID == routeID {
			out = append(out, p)
		}
	}
	sortPlacements(out)
	return out, nil
}

func (st *memState) ListPlacementsByLoad(ctx context.Context, routeID, loadID uuid.UUID) ([]model.CargoPlacement, error) {
	all, _ := st.ListPlacements(ctx, routeID)
	out := []model.CargoPlacement{}
	for _, p := range all {
		if p.LoadID == loadID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (st *memState) InsertPlacement(_ context.Context, p *model.CargoPlacement) error {
	if _, ok := st.plans[p.RoutePlanID]; !ok {
		return fmt.Errorf("insert placement: plan %s: %w", p.RoutePlanID, ErrMissingReference)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := st.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	st.placements[p.ID] = *p
	return nil
}

func (st *memState) UpdatePlacement(_ context.Context, p *model.CargoPlacement) error {
	cur, ok := st.placements[p.ID]
	if !ok || cur.RoutePlanID != p.RoutePlanID {
		return fmt.Errorf("update placement %s: %w", p.ID, ErrNotFound)
	}
	p.UpdatedAt = st.now().UTC()
	row := *p
	row.LoadID, row.CreatedAt = cur.LoadID, cur.CreatedAt
	st.placements[p.ID] = row
	return nil
}

func (st *memState) DeletePlacement(_ context.Context, routeID, id uuid.UUID) error {
	cur, ok := st.placements[id]
	if !ok || cur.RoutePlanID != routeID {
		return fmt.Errorf("delete placement %s: %w", id, ErrNotFound)
	}
	delete(st.placements, id)
	return nil
}

func (st *memState) DeletePlacementsByLoad(_ context.Context, routeID, loadID uuid.UUID) (int64, error) {
	var n int64
	for id, p := range st.placements {
		if p.RoutePlanID == routeID && p.LoadID == loadID {
			delete(st.placements, id)
			n++
		}
	}
	return n, nil
}

func sortPlacements(ps []model.CargoPlacement) {
	sort.Slice(ps, func(i, j int) bool {
		if c := compareUUID(ps[i].LoadID, ps[j].LoadID); c != 0 {
			return c < 0
		}
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return compareUUID(ps[i].ID, ps[j].ID) < 0
	})
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
