package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/freightroute/internal/cargo"
	"github.com/shiva/freightroute/internal/events"
	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/repository"
)

// PlaceCargoInput describes one item on the cargo floor. Conflict and
// overflow flags are always derived, never accepted from callers.
type PlaceCargoInput struct {
	LoadID   uuid.UUID  `json:"loadId"`
	PalletID *uuid.UUID `json:"palletId"`
	Label    *string    `json:"label"`
	XCm      int        `json:"xCm"`
	YCm      int        `json:"yCm"`
	WidthCm  int        `json:"widthCm"`
	HeightCm int        `json:"heightCm"`
	Rotated  bool       `json:"rotated"`
}

// MoveCargoInput moves, resizes or rotates a placement. Nil fields keep their value.
type MoveCargoInput struct {
	XCm      *int    `json:"xCm"`
	YCm      *int    `json:"yCm"`
	WidthCm  *int    `json:"widthCm"`
	HeightCm *int    `json:"heightCm"`
	Rotated  *bool   `json:"rotated"`
	Label    *string `json:"label"`
}

// PlacementService manages the cargo floor layout of route plans.
type PlacementService struct {
	core
}

// NewPlacementService creates a placement service.
func NewPlacementService(o Options) *PlacementService {
	return &PlacementService{core: newCore(o)}
}

// Place adds an item to the route layout and returns it with its flags.
func (s *PlacementService) Place(ctx context.Context, routeID uuid.UUID, in PlaceCargoInput) (*model.CargoPlacement, error) {
	const op = "place_cargo"
	start := time.Now()

	var errs problems
	if in.LoadID == uuid.Nil {
		errs.addf("loadId: required")
	}
	validateSize(&errs, in.WidthCm, in.HeightCm)
	if err := errs.err(); err != nil {
		return nil, s.read(op, start, err)
	}
	if err := s.ensureLoads(ctx, []model.RouteStop{{LoadID: in.LoadID}}); err != nil {
		return nil, s.read(op, start, err)
	}

	placed := &model.CargoPlacement{
		RoutePlanID: routeID,
		LoadID:      in.LoadID,
		PalletID:    in.PalletID,
		Label:       in.Label,
		XCm:         in.XCm,
		YCm:         in.YCm,
		WidthCm:     in.WidthCm,
		HeightCm:    in.HeightCm,
		Rotated:     in.Rotated,
	}
	var changed int
	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		p, err := s.lockForLayout(ctx, q, routeID)
		if err != nil {
			return err
		}
		if err := q.InsertPlacement(ctx, placed); err != nil {
			return err
		}
		changed, err = s.revalidate(ctx, q, p)
		if err != nil {
			return err
		}
		return refreshPlacement(ctx, q, placed)
	})
	if err != nil {
		return nil, err
	}

	s.log.Debugf("placed %s on route %s (conflict=%t overflow=%t)",
		placed.ID, routeID, placed.HasConflict, placed.IsOverflow)
	s.publishLayout(routeID, changed, map[string]any{"placed": placed.ID})
	return placed, nil
}

// Move changes the position, size or rotation of a placement.
func (s *PlacementService) Move(ctx context.Context, routeID, placementID uuid.UUID, in MoveCargoInput) (*model.CargoPlacement, error) {
	const op = "move_cargo"
	var moved *model.CargoPlacement
	var changed int

	err := s.write(ctx, op, func(ctx context.Context, q repository.Querier) error {
		p, err := s.lockForLayout(ctx, q, routeID)
		if err != nil {
			return err
		}
		if moved, err = findPlacement(ctx, q, routeID, placementID); err != nil {
			return err
		}

		if in.XCm != nil {
			moved.XCm = *in.XCm
		}
		if in.YCm != nil {
			moved.YCm = *in.YCm
		}
		if in.WidthCm != nil {
			moved.WidthCm = *in.WidthCm
		}
		if in.HeightCm != nil {
			moved.HeightCm = *in.HeightCm
		}
		if in.Rotated != nil {
			moved.Rotated = *in.Rotated
		}
		if in.Label != nil {
			moved.Label = in.Label
		}
		var errs problems
		validateSize(&errs, moved.WidthCm, moved.HeightCm)
		if err := errs.err(); err != nil {
			return err
		}

		if err := q.UpdatePlacement(ctx, moved); err != nil {
			return notFoundAs(err, ErrPlacementNotFound)
		}
		if changed, err = s.revalidate(ctx, q, p); err != nil {
			return err
		}
		return refreshPlacement(ctx, q, moved)
	})
	if err != nil {
		return nil, err
	}

	s.publishLayout(routeID, changed, map[string]any{"moved": placementID})
	return moved, nil
}

// Remove deletes one placement.
func (s *PlacementService) Remove(ctx context.Context, routeID, placementID uuid.UUID) error {
	var changed int
	err := s.write(ctx, "remove_cargo", func(ctx context.Context, q repository.Querier) error {
		p, err := s.lockForLayout(ctx, q, routeID)
		if err != nil {
			return err
		}
		if err := q.DeletePlacement(ctx, routeID, placementID); err != nil {
			return notFoundAs(err, ErrPlacementNotFound)
		}
		changed, err = s.revalidate(ctx, q, p)
		return err
	})
	if err != nil {
		return err
	}

	s.publishLayout(routeID, changed, map[string]any{"removed": placementID})
	return nil
}

// RemoveByLoad deletes every placement of a load and returns how many went.
func (s *PlacementService) RemoveByLoad(ctx context.Context, routeID, loadID uuid.UUID) (int64, error) {
	var removed int64
	var changed int
	err := s.write(ctx, "remove_cargo_by_load", func(ctx context.Context, q repository.Querier) error {
		p, err := s.lockForLayout(ctx, q, routeID)
		if err != nil {
			return err
		}
		if removed, err = q.DeletePlacementsByLoad(ctx, routeID, loadID); err != nil {
			return err
		}
		changed, err = s.revalidate(ctx, q, p)
		return err
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.publishLayout(routeID, changed, map[string]any{"load": loadID, "removed": removed})
	}
	return removed, nil
}

// List returns the route's placements ordered by load.
func (s *PlacementService) List(ctx context.Context, routeID uuid.UUID) ([]model.CargoPlacement, error) {
	start := time.Now()
	if _, err := s.store.GetPlan(ctx, routeID, false); err != nil {
		return nil, s.read("list_cargo", start, notFoundAs(err, ErrRouteNotFound))
	}
	out, err := s.store.ListPlacements(ctx, routeID)
	return nonNil(out), s.read("list_cargo", start, err)
}

// ListByLoad returns the placements of one load on the route.
func (s *PlacementService) ListByLoad(ctx context.Context, routeID, loadID uuid.UUID) ([]model.CargoPlacement, error) {
	start := time.Now()
	if _, err := s.store.GetPlan(ctx, routeID, false); err != nil {
		return nil, s.read("list_cargo", start, notFoundAs(err, ErrRouteNotFound))
	}
	out, err := s.store.ListPlacementsByLoad(ctx, routeID, loadID)
	return nonNil(out), s.read("list_cargo", start, err)
}

// LayoutAt returns the placements of the loads on board after the stop at
// stopIndex.
func (s *PlacementService) LayoutAt(ctx context.Context, routeID uuid.UUID, stopIndex int) ([]model.CargoPlacement, error) {
	start := time.Now()
	p, err := s.store.GetPlan(ctx, routeID, false)
	if err != nil {
		return nil, s.read("layout_at", start, notFoundAs(err, ErrRouteNotFound))
	}
	all, err := s.store.ListPlacements(ctx, routeID)
	if err != nil {
		return nil, s.read("layout_at", start, err)
	}
	s.read("layout_at", start, nil)
	return cargo.OnBoardPlacements(all, cargo.OnBoardAt(p.Stops, stopIndex)), nil
}

// ─── Helpers ────────────────────────────────────────────────

// lockForLayout locks the plan and checks that its layout may change.
func (s *PlacementService) lockForLayout(ctx context.Context, q repository.Querier, routeID uuid.UUID) (*model.RoutePlan, error) {
	p, err := lockPlan(ctx, q, routeID)
	if err != nil {
		return nil, err
	}
	if err := checkMutable(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

// revalidate recomputes the flags of every placement of a locked plan and
// persists the ones that changed. It returns how many changed.
func (c *core) revalidate(ctx context.Context, q repository.Querier, p *model.RoutePlan) (int, error) {
	placements, err := q.ListPlacements(ctx, p.ID)
	if err != nil {
		return 0, err
	}
	if len(placements) == 0 {
		return 0, nil
	}
	van, err := c.ensureVan(ctx, p.VanID)
	if err != nil {
		return 0, err
	}

	diff := cargo.Changed(placements, cargo.Revalidate(placements, van))
	for i := range diff {
		if err := q.UpdatePlacement(ctx, &diff[i]); err != nil {
			return 0, err
		}
	}
	c.rec.Revalidated(len(placements), len(diff))
	return len(diff), nil
}

// findPlacement returns a placement of the route by id.
func findPlacement(ctx context.Context, q repository.Querier, routeID, id uuid.UUID) (*model.CargoPlacement, error) {
	all, err := q.ListPlacements(ctx, routeID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, ErrPlacementNotFound
}

// refreshPlacement reloads p after revalidation changed its flags.
func refreshPlacement(ctx context.Context, q repository.Querier, p *model.CargoPlacement) error {
	fresh, err := findPlacement(ctx, q, p.RoutePlanID, p.ID)
	if err != nil {
		return err
	}
	*p = *fresh
	return nil
}

func validateSize(errs *problems, width, height int) {
	if width <= 0 {
		errs.addf("widthCm: must be positive")
	}
	if height <= 0 {
		errs.addf("heightCm: must be positive")
	}
}

func (c *core) publishLayout(routeID uuid.UUID, changed int, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["changed"] = changed
	c.bus.Publish(events.Event{Kind: events.PlacementsRevalidated, RouteID: routeID, At: c.now().UTC(), Data: data})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
