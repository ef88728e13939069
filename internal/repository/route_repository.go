package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/freightroute/internal/model"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore is the PostgreSQL-backed Store.
type PostgresStore struct {
	pgQuerier
	pool *pgxpool.Pool
}

// pgQuerier runs every Querier method against db, which is either the pool
// or an open transaction.
type pgQuerier struct {
	db  dbtx
	now func() time.Time
}

// NewPostgresStore creates a store over the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pgQuerier: pgQuerier{db: pool, now: time.Now},
		pool:      pool,
	}
}

// InTx runs fn inside a READ COMMITTED transaction.
//
// Row locks taken with GetPlan/GetSimulation(lock=true) are held until fn
// returns, so concurrent writers on the same plan serialize here. The context
// deadline bounds lock waits as well as the statements themselves.
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("route tx: begin: %w", err)
	}
	// Rollback is a no-op once the transaction has committed.
	defer tx.Rollback(ctx)

	if err := fn(pgQuerier{db: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("route tx: commit: %w", translate(err))
	}
	return nil
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrMissingReference, pgErr.ConstraintName)
		}
	}
	return err
}

// ─── Plans ──────────────────────────────────────────────────

const planColumns = `
	id, name, status, van_id, departure_date, arrival_date,
	total_distance_km, total_time_minutes, estimated_fuel_liters,
	fuel_cost, total_revenue, estimated_margin, price_per_km,
	metrics_state, metrics_computed_at, notes, version, created_at, updated_at`

func scanPlan(row pgx.Row) (*model.RoutePlan, error) {
	p := &model.RoutePlan{}
	m := &p.Metrics
	err := row.Scan(
		&p.ID, &p.Name, &p.Status, &p.VanID, &p.DepartureDate, &p.ArrivalDate,
		&m.TotalDistanceKm, &m.TotalTimeMinutes, &m.EstimatedFuelLiters,
		&m.FuelCost, &m.TotalRevenue, &m.EstimatedMargin, &m.PricePerKm,
		&p.MetricsState, &p.MetricsComputedAt, &p.Notes, &p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (q pgQuerier) GetPlan(ctx context.Context, id uuid.UUID, lock bool) (*model.RoutePlan, error) {
	sql := `SELECT` + planColumns + ` FROM route_plans WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	p, err := scanPlan(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", id, translate(err))
	}
	p.Stops, err = q.listStops(ctx, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (q pgQuerier) ListPlans(ctx context.Context, f PlanFilter) ([]model.RoutePlan, error) {
	rows, err := q.db.Query(ctx, `
		SELECT`+planColumns+`
		FROM route_plans
		WHERE van_id = $1
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY departure_date ASC NULLS LAST, created_at ASC
	`, f.VanID, f.Status)
	if err != nil {
		return nil, fmt.Errorf("list plans for van %s: %w", f.VanID, err)
	}
	defer rows.Close()

	var plans []model.RoutePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("list plans: scan: %w", err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	for i := range plans {
		if plans[i].Stops, err = q.listStops(ctx, plans[i].ID); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

func (q pgQuerier) InsertPlan(ctx context.Context, p *model.RoutePlan) error {
	now := q.now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.MetricsState == "" {
		p.MetricsState = model.MetricsStale
	}
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now

	m := &p.Metrics
	_, err := q.db.Exec(ctx, `
		INSERT INTO route_plans (`+planColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		p.ID, p.Name, p.Status, p.VanID, p.DepartureDate, p.ArrivalDate,
		m.TotalDistanceKm, m.TotalTimeMinutes, m.EstimatedFuelLiters,
		m.FuelCost, m.TotalRevenue, m.EstimatedMargin, m.PricePerKm,
		p.MetricsState, p.MetricsComputedAt, p.Notes, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert plan %s: %w", p.ID, translate(err))
	}
	return q.insertStops(ctx, p.ID, p.Stops)
}

func (q pgQuerier) UpdatePlan(ctx context.Context, p *model.RoutePlan) error {
	now := q.now().UTC()
	m := &p.Metrics
	tag, err := q.db.Exec(ctx, `
		UPDATE route_plans
		SET name = $3, status = $4, van_id = $5, departure_date = $6, arrival_date = $7,
		    total_distance_km = $8, total_time_minutes = $9, estimated_fuel_liters = $10,
		    fuel_cost = $11, total_revenue = $12, estimated_margin = $13, price_per_km = $14,
		    metrics_state = $15, metrics_computed_at = $16, notes = $17,
		    version = version + 1, updated_at = $18
		WHERE id = $1 AND version = $2
	`,
		p.ID, p.Version, p.Name, p.Status, p.VanID, p.DepartureDate, p.ArrivalDate,
		m.TotalDistanceKm, m.TotalTimeMinutes, m.EstimatedFuelLiters,
		m.FuelCost, m.TotalRevenue, m.EstimatedMargin, m.PricePerKm,
		p.MetricsState, p.MetricsComputedAt, p.Notes, now,
	)
	if err != nil {
		return fmt.Errorf("update plan %s: %w", p.ID, translate(err))
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or someone else bumped the version first.
		var exists bool
		if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM route_plans WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update plan %s: %w", p.ID, err)
		}
		if !exists {
			return fmt.Errorf("update plan %s: %w", p.ID, ErrNotFound)
		}
		return fmt.Errorf("update plan %s at version %d: %w", p.ID, p.Version, ErrVersionConflict)
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}

func (q pgQuerier) DeletePlan(ctx context.Context, id uuid.UUID) error {
	// Stops and placements go with the plan through ON DELETE CASCADE.
	if _, err := q.db.Exec(ctx, `
		DELETE FROM route_simulations
		WHERE source_route_id = $1 OR simulated_route_id = $1
	`, id); err != nil {
		return fmt.Errorf("delete plan %s: simulations: %w", id, err)
	}
	tag, err := q.db.Exec(ctx, `DELETE FROM route_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", id, translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete plan %s: %w", id, ErrNotFound)
	}
	return nil
}

// ─── Stops ──────────────────────────────────────────────────

const stopColumns = `
	id, route_plan_id, load_id, stop_type, status, order_index, group_id,
	address, city, postcode, country, lat, lng,
	eta, etd, actual_arrival, actual_departure, time_window_from, time_window_to, time_window_violation,
	distance_to_next_km, driving_time_to_next_minutes, pallets, weight_kg, notes,
	created_at, updated_at`

func (q pgQuerier) listStops(ctx context.Context, planID uuid.UUID) ([]model.RouteStop, error) {
	rows, err := q.db.Query(ctx, `
		SELECT`+stopColumns+`
		FROM route_stops
		WHERE route_plan_id = $1
		ORDER BY order_index ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list stops of %s: %w", planID, err)
	}
	defer rows.Close()

	stops := []model.RouteStop{}
	for rows.Next() {
		var s model.RouteStop
		if err := rows.Scan(
			&s.ID, &s.RoutePlanID, &s.LoadID, &s.StopType, &s.Status, &s.OrderIndex, &s.GroupID,
			&s.Address, &s.City, &s.Postcode, &s.Country, &s.Lat, &s.Lng,
			&s.ETA, &s.ETD, &s.ActualArrival, &s.ActualDeparture, &s.TimeWindowFrom, &s.TimeWindowTo, &s.TimeWindowViolation,
			&s.DistanceToNextKm, &s.DrivingTimeToNextMinutes, &s.Pallets, &s.WeightKg, &s.Notes,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("list stops of %s: scan: %w", planID, err)
		}
		stops = append(stops, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stops of %s: %w", planID, err)
	}
	return stops, nil
}

// insertStops batches every INSERT into one round trip.
func (q pgQuerier) insertStops(ctx context.Context, planID uuid.UUID, stops []model.RouteStop) error {
	if len(stops) == 0 {
		return nil
	}
	now := q.now().UTC()
	batch := &pgx.Batch{}
	for i := range stops {
		s := &stops[i]
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.RoutePlanID = planID
		s.CreatedAt, s.UpdatedAt = now, now
		batch.Queue(`
			INSERT INTO route_stops (`+stopColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		`,
			s.ID, s.RoutePlanID, s.LoadID, s.StopType, s.Status, s.OrderIndex, s.GroupID,
			s.Address, s.City, s.Postcode, s.Country, s.Lat, s.Lng,
			s.ETA, s.ETD, s.ActualArrival, s.ActualDeparture, s.TimeWindowFrom, s.TimeWindowTo, s.TimeWindowViolation,
			s.DistanceToNextKm, s.DrivingTimeToNextMinutes, s.Pallets, s.WeightKg, s.Notes,
			s.CreatedAt, s.UpdatedAt,
		)
	}

	br := q.db.SendBatch(ctx, batch)
	defer br.Close()
	for range stops {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert stops of %s: %w", planID, translate(err))
		}
	}
	return nil
}

func (q pgQuerier) ReplaceStops(ctx context.Context, planID uuid.UUID, stops []model.RouteStop) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM route_stops WHERE route_plan_id = $1`, planID); err != nil {
		return fmt.Errorf("replace stops of %s: delete: %w", planID, err)
	}
	return q.insertStops(ctx, planID, stops)
}
