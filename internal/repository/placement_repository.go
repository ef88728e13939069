package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiva/freightroute/internal/model"
)

const placementColumns = `
	id, route_plan_id, load_id, pallet_id, label,
	x_cm, y_cm, width_cm, height_cm, rotated, has_conflict, is_overflow,
	created_at, updated_at`

func (q pgQuerier) queryPlacements(ctx context.Context, sql string, args ...any) ([]model.CargoPlacement, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CargoPlacement, error) {
		var p model.CargoPlacement
		err := row.Scan(
			&p.ID, &p.RoutePlanID, &p.LoadID, &p.PalletID, &p.Label,
			&p.XCm, &p.YCm, &p.WidthCm, &p.HeightCm, &p.Rotated, &p.HasConflict, &p.IsOverflow,
			&p.CreatedAt, &p.UpdatedAt,
		)
		return p, err
	})
}

func (q pgQuerier) ListPlacements(ctx context.Context, routeID uuid.UUID) ([]model.CargoPlacement, error) {
	out, err := q.queryPlacements(ctx, `
		SELECT`+placementColumns+`
		FROM cargo_placements
		WHERE route_plan_id = $1
		ORDER BY load_id ASC, created_at ASC, id ASC
	`, routeID)
	if err != nil {
		return nil, fmt.Errorf("list placements of %s: %w", routeID, err)
	}
	return out, nil
}

func (q pgQuerier) ListPlacementsByLoad(ctx context.Context, routeID, loadID uuid.UUID) ([]model.CargoPlacement, error) {
	out, err := q.queryPlacements(ctx, `
		SELECT`+placementColumns+`
		FROM cargo_placements
		WHERE route_plan_id = $1 AND load_id = $2
		ORDER BY created_at ASC, id ASC
	`, routeID, loadID)
	if err != nil {
		return nil, fmt.Errorf("list placements of %s/%s: %w", routeID, loadID, err)
	}
	return out, nil
}

func (q pgQuerier) InsertPlacement(ctx context.Context, p *model.CargoPlacement) error {
	now := q.now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := q.db.Exec(ctx, `
		INSERT INTO cargo_placements (`+placementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		p.ID, p.RoutePlanID, p.LoadID, p.PalletID, p.Label,
		p.XCm, p.YCm, p.WidthCm, p.HeightCm, p.Rotated, p.HasConflict, p.IsOverflow,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert placement %s: %w", p.ID, translate(err))
	}
	return nil
}

func (q pgQuerier) UpdatePlacement(ctx context.Context, p *model.CargoPlacement) error {
	now := q.now().UTC()
	tag, err := q.db.Exec(ctx, `
		UPDATE cargo_placements
		SET pallet_id = $3, label = $4, x_cm = $5, y_cm = $6, width_cm = $7, height_cm = $8,
		    rotated = $9, has_conflict = $10, is_overflow = $11, updated_at = $12
		WHERE id = $1 AND route_plan_id = $2
	`,
		p.ID, p.RoutePlanID, p.PalletID, p.Label, p.XCm, p.YCm, p.WidthCm, p.HeightCm,
		p.Rotated, p.HasConflict, p.IsOverflow, now,
	)
	if err != nil {
		return fmt.Errorf("update placement %s: %w", p.ID, translate(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update placement %s: %w", p.ID, ErrNotFound)
	}
	p.UpdatedAt = now
	return nil
}

func (q pgQuerier) DeletePlacement(ctx context.Context, routeID, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM cargo_placements WHERE id = $1 AND route_plan_id = $2`, id, routeID)
	if err != nil {
		return fmt.Errorf("delete placement %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete placement %s: %w", id, ErrNotFound)
	}
	return nil
}

func (q pgQuerier) DeletePlacementsByLoad(ctx context.Context, routeID, loadID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM cargo_placements WHERE route_plan_id = $1 AND load_id = $2`, routeID, loadID)
	if err != nil {
		return 0, fmt.Errorf("delete placements of %s/%s: %w", routeID, loadID, err)
	}
	return tag.RowsAffected(), nil
}
