// Package repository provides storage for route plans, their stops,
// simulations and cargo placements.
//
// Every multi-record write goes through Store.InTx so it commits or rolls
// back as a unit. Plan rows carry a version counter: UpdatePlan only writes
// when the caller's version still matches the stored one.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/freightroute/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when a plan write targets a stale version.
	ErrVersionConflict = errors.New("stale version")

	// ErrDuplicate is returned on a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")

	// ErrMissingReference is returned when a foreign key points nowhere.
	ErrMissingReference = errors.New("referenced record does not exist")
)

// DefaultWriteTimeout bounds a single route write transaction, lock waits included.
const DefaultWriteTimeout = 5 * time.Second

// PlanFilter narrows ListPlansByVan.
type PlanFilter struct {
	VanID  uuid.UUID
	Status *model.RouteStatus
}

// Querier is the set of operations available both on the store and inside a
// transaction.
type Querier interface {
	// GetPlan returns the plan with its stops ordered by order_index. When
	// lock is set and the call runs inside InTx, the plan row stays locked
	// until the transaction ends.
	GetPlan(ctx context.Context, id uuid.UUID, lock bool) (*model.RoutePlan, error)
	ListPlans(ctx context.Context, f PlanFilter) ([]model.RoutePlan, error)
	// InsertPlan stores the plan and its stops. It sets Version to 1 and
	// fills timestamps on p and on every stop.
	InsertPlan(ctx context.Context, p *model.RoutePlan) error
	// UpdatePlan writes the plan columns (not its stops) when p.Version
	// matches the stored version, then increments p.Version.
	UpdatePlan(ctx context.Context, p *model.RoutePlan) error
	// ReplaceStops deletes every stop of the plan and inserts stops.
	ReplaceStops(ctx context.Context, planID uuid.UUID, stops []model.RouteStop) error
	// DeletePlan removes the plan with its stops, placements and every
	// simulation record that references it.
	DeletePlan(ctx context.Context, id uuid.UUID) error

	GetSimulation(ctx context.Context, id uuid.UUID, lock bool) (*model.RouteSimulation, error)
	GetSimulationBySimulatedRoute(ctx context.Context, planID uuid.UUID) (*model.RouteSimulation, error)
	ListSimulationsBySource(ctx context.Context, sourceID uuid.UUID) ([]model.RouteSimulation, error)
	InsertSimulation(ctx context.Context, s *model.RouteSimulation) error
	UpdateSimulation(ctx context.Context, s *model.RouteSimulation) error
	DeleteSimulation(ctx context.Context, id uuid.UUID) error

	// ListPlacements returns a route's placements ordered by load then creation.
	ListPlacements(ctx context.Context, routeID uuid.UUID) ([]model.CargoPlacement, error)
	ListPlacementsByLoad(ctx context.Context, routeID, loadID uuid.UUID) ([]model.CargoPlacement, error)
	InsertPlacement(ctx context.Context, p *model.CargoPlacement) error
	UpdatePlacement(ctx context.Context, p *model.CargoPlacement) error
	DeletePlacement(ctx context.Context, routeID, id uuid.UUID) error
	DeletePlacementsByLoad(ctx context.Context, routeID, loadID uuid.UUID) (int64, error)
}

// Store is a Querier that can also open transactions.
type Store interface {
	Querier
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// Directory reads the van and load records owned by other modules.
type Directory interface {
	GetVan(ctx context.Context, id uuid.UUID) (*model.Van, error)
	GetLoad(ctx context.Context, id uuid.UUID) (*model.Load, error)
}

// DirectoryWriter is used by fixtures to seed vans and loads.
type DirectoryWriter interface {
	UpsertVan(ctx context.Context, v *model.Van) error
	UpsertLoad(ctx context.Context, l *model.Load) error
}
