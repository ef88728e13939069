package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiva/freightroute/internal/model"
)

const simulationColumns = `
	id, source_route_id, simulated_route_id, name,
	delta_distance_km, delta_time_minutes, delta_fuel_liters, delta_margin,
	warnings, measured_at, is_applied, applied_at, created_at, updated_at`

func scanSimulation(row pgx.Row) (*model.RouteSimulation, error) {
	s := &model.RouteSimulation{}
	err := row.Scan(
		&s.ID, &s.SourceRouteID, &s.SimulatedRouteID, &s.Name,
		&s.DeltaDistanceKm, &s.DeltaTimeMinutes, &s.DeltaFuelLiters, &s.DeltaMargin,
		&s.Warnings, &s.MeasuredAt, &s.IsApplied, &s.AppliedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if s.Warnings == nil {
		s.Warnings = []string{}
	}
	return s, nil
}

func (q pgQuerier) GetSimulation(ctx context.Context, id uuid.UUID, lock bool) (*model.RouteSimulation, error) {
	sql := `SELECT` + simulationColumns + ` FROM route_simulations WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	s, err := scanSimulation(q.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, fmt.Errorf("get simulation %s: %w", id, translate(err))
	}
	return s, nil
}

func (q pgQuerier) GetSimulationBySimulatedRoute(ctx context.Context, planID uuid.UUID) (*model.RouteSimulation, error) {
	s, err := scanSimulation(q.db.QueryRow(ctx, `
		SELECT`+simulationColumns+`
		FROM route_simulations
		WHERE simulated_route_id = $1
	`, planID))
	if err != nil {
		return nil, fmt.Errorf("get simulation of plan %s: %w", planID, translate(err))
	}
	return s, nil
}

func (q pgQuerier) ListSimulationsBySource(ctx context.Context, sourceID uuid.UUID) ([]model.RouteSimulation, error) {
	rows, err := q.db.Query(ctx, `
		SELECT`+simulationColumns+`
		FROM route_simulations
		WHERE source_route_id = $1
		ORDER BY created_at ASC
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list simulations of %s: %w", sourceID, err)
	}
	defer rows.Close()

	sims := []model.RouteSimulation{}
	for rows.Next() {
		s, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("list simulations of %s: scan: %w", sourceID, err)
		}
		sims = append(sims, *s)
	}
	return sims, rows.Err()
}

func (q pgQuerier) InsertSimulation(ctx context.Context, s *model.RouteSimulation) error {
	now := q.now().UTC()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Warnings == nil {
		s.Warnings = []string{}
	}
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := q.db.Exec(ctx, `
		INSERT INTO route_simulations (`+simulationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		s.ID, s.SourceRouteID, s.SimulatedRouteID, s.Name,
		s.DeltaDistanceKm, s.DeltaTimeMinutes, s.DeltaFuelLiters, s.DeltaMargin,
		s.Warnings, s.MeasuredAt, s.IsApplied, s.AppliedAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert simulation %s: %w", s.ID, translate(err))
	}
	return nil
}

func (q pgQuerier) UpdateSimulation(ctx context.Context, s *model.RouteSimulation) error {
	now := q.now().UTC()
	tag, err := q.db.Exec(ctx, `
		UPDATE route_simulations
		SET name = $2, delta_distance_km = $3, delta_time_minutes = $4, delta_fuel_liters = $5,
		    delta_margin = $6, warnings = $7, measured_at = $8, is_applied = $9, applied_at = $10,
		    updated_at = $11
		WHERE id = $1
	`,
		s.ID, s.Name, s.DeltaDistanceKm, s.DeltaTimeMinutes, s.DeltaFuelLiters,
		s.DeltaMargin, s.Warnings, s.MeasuredAt, s.IsApplied, s.AppliedAt, now,
	)
	if err != nil {
		return fmt.Errorf("update simulation %s: %w", s.ID, translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update simulation %s: %w", s.ID, ErrNotFound)
	}
	s.UpdatedAt = now
	return nil
}

func (q pgQuerier) DeleteSimulation(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM route_simulations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete simulation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete simulation %s: %w", id, ErrNotFound)
	}
	return nil
}
