// Package service implements the route planning operations: the route plan
// aggregate with its stop ledger, the simulation engine and the cargo
// placement layout.
//
// Concurrency model:
//   - Every write runs inside one Store.InTx transaction.
//   - Rows are locked with SELECT ... FOR UPDATE, simulation rows before
//     plan rows and several rows of one kind in id order, so concurrent
//     writers on the same plan serialize without lock-order deadlocks.
//   - Plan updates are conditional on the version read under the lock, and
//     callers may pass the version they last saw to detect lost updates.
//   - A deadline (WriteTimeout) bounds lock waits.
//   - Events are published only after the transaction has committed.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shiva/freightroute/internal/events"
	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/repository"
	"github.com/shiva/freightroute/internal/telemetry"
	"github.com/shiva/freightroute/pkg/logger"
)

// Options carries the dependencies shared by every service.
type Options struct {
	Store        repository.Store
	Directory    repository.Directory
	Calculator   *MetricCalculator
	Events       events.Publisher
	Telemetry    telemetry.Recorder
	Logger       logger.Logger
	WriteTimeout time.Duration
	Now          func() time.Time
}

// core holds the dependencies and the helpers every service uses.
type core struct {
	store   repository.Store
	dir     repository.Directory
	calc    *MetricCalculator
	bus     events.Publisher
	rec     telemetry.Recorder
	log     logger.Logger
	timeout time.Duration
	now     func() time.Time
}

func newCore(o Options) core {
	c := core{
		store:   o.Store,
		dir:     o.Directory,
		calc:    o.Calculator,
		bus:     o.Events,
		rec:     o.Telemetry,
		log:     o.Logger,
		timeout: o.WriteTimeout,
		now:     o.Now,
	}
	if c.calc == nil {
		c.calc = NewMetricCalculator(o.Directory, DefaultCostModel())
	}
	if c.bus == nil {
		c.bus = events.NopPublisher{}
	}
	if c.rec == nil {
		c.rec = telemetry.Nop{}
	}
	if c.log == nil {
		c.log = logger.Nop{}
	}
	if c.timeout <= 0 {
		c.timeout = repository.DefaultWriteTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// write runs fn in one transaction bounded by the write timeout, classifies
// the error and records the outcome.
func (c *core) write(ctx context.Context, op string, fn func(ctx context.Context, q repository.Querier) error) error {
	start := time.Now()
	txCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.store.InTx(txCtx, func(q repository.Querier) error {
		return fn(txCtx, q)
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		c.log.Warnf("%s: postgres %s: %s (constraint %q)", op, pgErr.Code, pgErr.Message, pgErr.ConstraintName)
	}
	err = classifyError(op, err)
	c.rec.Operation(op, outcome(err), time.Since(start))
	return err
}

// read records the outcome of a read-only call.
func (c *core) read(op string, start time.Time, err error) error {
	err = classifyError(op, err)
	c.rec.Operation(op, outcome(err), time.Since(start))
	return err
}

// lockPlan loads a plan under its row lock.
func lockPlan(ctx context.Context, q repository.Querier, id uuid.UUID) (*model.RoutePlan, error) {
	p, err := q.GetPlan(ctx, id, true)
	if err != nil {
		return nil, notFoundAs(err, ErrRouteNotFound)
	}
	return p, nil
}

// checkExpectedVersion compares a caller-supplied version with the locked row.
func checkExpectedVersion(p *model.RoutePlan, expected *int) error {
	if expected != nil && *expected != p.Version {
		return ErrVersionConflict
	}
	return nil
}

// checkMutable rejects changes to the content of plans that are frozen:
// archived plans and simulated plans whose simulation was applied.
func checkMutable(ctx context.Context, q repository.Querier, p *model.RoutePlan) error {
	switch p.Status {
	case model.RouteArchived:
		return ErrRouteArchived
	case model.RouteSimulating:
		sim, err := q.GetSimulationBySimulatedRoute(ctx, p.ID)
		if err != nil {
			return notFoundAs(err, ErrSimulationNotFound)
		}
		if sim.IsApplied {
			return ErrRouteFrozen
		}
	}
	return nil
}

func (c *core) publish(kind events.Kind, p *model.RoutePlan, data map[string]any) {
	c.bus.Publish(events.Event{Kind: kind, RouteID: p.ID, Version: p.Version, At: c.now().UTC(), Data: data})
}

func (c *core) publishSim(kind events.Kind, routeID uuid.UUID, sim *model.RouteSimulation, data map[string]any) {
	id := sim.ID
	c.bus.Publish(events.Event{Kind: kind, RouteID: routeID, SimulationID: &id, At: c.now().UTC(), Data: data})
}
