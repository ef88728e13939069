package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements create the route planning tables. Every statement is
// idempotent so Migrate can run on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS vans (
		id                          UUID PRIMARY KEY,
		name                        TEXT NOT NULL DEFAULT '',
		license_plate               TEXT NOT NULL DEFAULT '',
		cargo_length_cm             INTEGER NOT NULL DEFAULT 0,
		cargo_width_cm              INTEGER NOT NULL DEFAULT 0,
		cargo_height_cm             INTEGER NOT NULL DEFAULT 0,
		max_weight_kg               DOUBLE PRECISION,
		max_pallets                 INTEGER,
		fuel_consumption_per_100km  DOUBLE PRECISION
	)`,

	`CREATE TABLE IF NOT EXISTS loads (
		id         UUID PRIMARY KEY,
		reference  TEXT NOT NULL DEFAULT '',
		weight_kg  DOUBLE PRECISION,
		pallets    INTEGER,
		price      NUMERIC(12, 2),
		currency   TEXT NOT NULL DEFAULT 'EUR'
	)`,

	`CREATE TABLE IF NOT EXISTS route_plans (
		id                     UUID PRIMARY KEY,
		name                   TEXT,
		status                 TEXT NOT NULL CHECK (status IN ('DRAFT', 'ACTIVE', 'SIMULATION', 'ARCHIVED')),
		van_id                 UUID REFERENCES vans (id) ON DELETE SET NULL,
		departure_date         TIMESTAMPTZ,
		arrival_date           TIMESTAMPTZ,
		total_distance_km      DOUBLE PRECISION,
		total_time_minutes     INTEGER,
		estimated_fuel_liters  DOUBLE PRECISION,
		fuel_cost              NUMERIC(12, 2),
		total_revenue          NUMERIC(12, 2),
		estimated_margin       NUMERIC(12, 2),
		price_per_km           NUMERIC(12, 4),
		metrics_state          TEXT NOT NULL DEFAULT 'STALE' CHECK (metrics_state IN ('STALE', 'FRESH')),
		metrics_computed_at    TIMESTAMPTZ,
		notes                  TEXT,
		version                INTEGER NOT NULL DEFAULT 1,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_route_plans_van ON route_plans (van_id, departure_date)`,

	`CREATE TABLE IF NOT EXISTS route_stops (
		id                            UUID PRIMARY KEY,
		route_plan_id                 UUID NOT NULL REFERENCES route_plans (id) ON DELETE CASCADE,
		load_id                       UUID NOT NULL,
		stop_type                     TEXT NOT NULL CHECK (stop_type IN ('PICKUP', 'DELIVERY')),
		status                        TEXT NOT NULL DEFAULT 'PENDING',
		order_index                   INTEGER NOT NULL CHECK (order_index >= 0),
		group_id                      UUID,
		address                       TEXT NOT NULL DEFAULT '',
		city                          TEXT NOT NULL DEFAULT '',
		postcode                      TEXT NOT NULL DEFAULT '',
		country                       TEXT NOT NULL DEFAULT '',
		lat                           DOUBLE PRECISION,
		lng                           DOUBLE PRECISION,
		eta                           TIMESTAMPTZ,
		etd                           TIMESTAMPTZ,
		actual_arrival                TIMESTAMPTZ,
		actual_departure              TIMESTAMPTZ,
		time_window_from              TIMESTAMPTZ,
		time_window_to                TIMESTAMPTZ,
		time_window_violation         BOOLEAN NOT NULL DEFAULT FALSE,
		distance_to_next_km           DOUBLE PRECISION,
		driving_time_to_next_minutes  INTEGER,
		pallets                       INTEGER,
		weight_kg                     DOUBLE PRECISION,
		notes                         TEXT,
		created_at                    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (route_plan_id, order_index)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_route_stops_load ON route_stops (load_id)`,

	`CREATE TABLE IF NOT EXISTS route_simulations (
		id                  UUID PRIMARY KEY,
		source_route_id     UUID NOT NULL REFERENCES route_plans (id) ON DELETE CASCADE,
		simulated_route_id  UUID NOT NULL UNIQUE REFERENCES route_plans (id) ON DELETE CASCADE,
		name                TEXT,
		delta_distance_km   DOUBLE PRECISION,
		delta_time_minutes  INTEGER,
		delta_fuel_liters   DOUBLE PRECISION,
		delta_margin        NUMERIC(12, 2),
		warnings            TEXT[] NOT NULL DEFAULT '{}',
		measured_at         TIMESTAMPTZ,
		is_applied          BOOLEAN NOT NULL DEFAULT FALSE,
		applied_at          TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_route_simulations_source ON route_simulations (source_route_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS cargo_placements (
		id             UUID PRIMARY KEY,
		route_plan_id  UUID NOT NULL REFERENCES route_plans (id) ON DELETE CASCADE,
		load_id        UUID NOT NULL,
		pallet_id      UUID,
		label          TEXT,
		x_cm           INTEGER NOT NULL,
		y_cm           INTEGER NOT NULL,
		width_cm       INTEGER NOT NULL CHECK (width_cm > 0),
		height_cm      INTEGER NOT NULL CHECK (height_cm > 0),
		rotated        BOOLEAN NOT NULL DEFAULT FALSE,
		has_conflict   BOOLEAN NOT NULL DEFAULT FALSE,
		is_overflow    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cargo_placements_route_load ON cargo_placements (route_plan_id, load_id)`,
}

// Migrate creates the schema inside one transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("migrate: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migrate: commit tx: %w", err)
	}
	return nil
}
