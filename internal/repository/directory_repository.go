package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/pkg/logger"
)

// PostgresDirectory reads vans and loads from the tables owned by the fleet
// and load modules.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a directory over the given pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) GetVan(ctx context.Context, id uuid.UUID) (*model.Van, error) {
	v := &model.Van{}
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, license_plate, cargo_length_cm, cargo_width_cm, cargo_height_cm,
		       max_weight_kg, max_pallets, fuel_consumption_per_100km
		FROM vans
		WHERE id = $1
	`, id).Scan(
		&v.ID, &v.Name, &v.LicensePlate, &v.CargoLengthCm, &v.CargoWidthCm, &v.CargoHeightCm,
		&v.MaxWeightKg, &v.MaxPallets, &v.FuelConsumptionPer100Km,
	)
	if err != nil {
		return nil, fmt.Errorf("get van %s: %w", id, translate(err))
	}
	return v, nil
}

func (d *PostgresDirectory) GetLoad(ctx context.Context, id uuid.UUID) (*model.Load, error) {
	l := &model.Load{}
	err := d.pool.QueryRow(ctx, `
		SELECT id, reference, weight_kg, pallets, price, currency
		FROM loads
		WHERE id = $1
	`, id).Scan(&l.ID, &l.Reference, &l.WeightKg, &l.Pallets, &l.Price, &l.Currency)
	if err != nil {
		return nil, fmt.Errorf("get load %s: %w", id, translate(err))
	}
	return l, nil
}

func (d *PostgresDirectory) UpsertVan(ctx context.Context, v *model.Van) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO vans (id, name, license_plate, cargo_length_cm, cargo_width_cm, cargo_height_cm,
		                  max_weight_kg, max_pallets, fuel_consumption_per_100km)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, license_plate = EXCLUDED.license_plate,
		    cargo_length_cm = EXCLUDED.cargo_length_cm, cargo_width_cm = EXCLUDED.cargo_width_cm,
		    cargo_height_cm = EXCLUDED.cargo_height_cm, max_weight_kg = EXCLUDED.max_weight_kg,
		    max_pallets = EXCLUDED.max_pallets,
		    fuel_consumption_per_100km = EXCLUDED.fuel_consumption_per_100km
	`, v.ID, v.Name, v.LicensePlate, v.CargoLengthCm, v.CargoWidthCm, v.CargoHeightCm,
		v.MaxWeightKg, v.MaxPallets, v.FuelConsumptionPer100Km)
	if err != nil {
		return fmt.Errorf("upsert van %s: %w", v.ID, translate(err))
	}
	return nil
}

func (d *PostgresDirectory) UpsertLoad(ctx context.Context, l *model.Load) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO loads (id, reference, weight_kg, pallets, price, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET reference = EXCLUDED.reference, weight_kg = EXCLUDED.weight_kg,
		    pallets = EXCLUDED.pallets, price = EXCLUDED.price, currency = EXCLUDED.currency
	`, l.ID, l.Reference, l.WeightKg, l.Pallets, l.Price, l.Currency)
	if err != nil {
		return fmt.Errorf("upsert load %s: %w", l.ID, translate(err))
	}
	return nil
}

// ─── Redis-backed read-through cache ────────────────────────

const (
	redisVanKeyPrefix  = "route:van:"
	redisLoadKeyPrefix = "route:load:"
)

// CachedDirectory serves van and load lookups from Redis and falls back to
// the wrapped Directory on a miss. Redis failures degrade to the slow path
// instead of failing the request.
type CachedDirectory struct {
	next  Directory
	redis *redis.Client
	ttl   time.Duration
	log   logger.Logger
}

// NewCachedDirectory wraps next with a Redis cache holding entries for ttl.
func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedDirectory {
	return &CachedDirectory{next: next, redis: client, ttl: ttl, log: log}
}

func (c *CachedDirectory) GetVan(ctx context.Context, id uuid.UUID) (*model.Van, error) {
	return readThrough(ctx, c, redisVanKeyPrefix+id.String(), func() (*model.Van, error) {
		return c.next.GetVan(ctx, id)
	})
}

func (c *CachedDirectory) GetLoad(ctx context.Context, id uuid.UUID) (*model.Load, error) {
	return readThrough(ctx, c, redisLoadKeyPrefix+id.String(), func() (*model.Load, error) {
		return c.next.GetLoad(ctx, id)
	})
}

// errReadOnlyDirectory is returned by the Upsert methods when the wrapped
// directory cannot write.
var errReadOnlyDirectory = errors.New("directory: wrapped directory is read-only")

// UpsertVan writes through to the wrapped directory and drops the cached copy.
func (c *CachedDirectory) UpsertVan(ctx context.Context, v *model.Van) error {
	w, ok := c.next.(DirectoryWriter)
	if !ok {
		return errReadOnlyDirectory
	}
	if err := w.UpsertVan(ctx, v); err != nil {
		return err
	}
	c.InvalidateVan(ctx, v.ID)
	return nil
}

// UpsertLoad writes through to the wrapped directory and drops the cached copy.
func (c *CachedDirectory) UpsertLoad(ctx context.Context, l *model.Load) error {
	w, ok := c.next.(DirectoryWriter)
	if !ok {
		return errReadOnlyDirectory
	}
	if err := w.UpsertLoad(ctx, l); err != nil {
		return err
	}
	c.InvalidateLoad(ctx, l.ID)
	return nil
}

// InvalidateVan drops a cached van, e.g. after its cargo dimensions changed.
func (c *CachedDirectory) InvalidateVan(ctx context.Context, id uuid.UUID) {
	_ = c.redis.Del(ctx, redisVanKeyPrefix+id.String()).Err()
}

// InvalidateLoad drops a cached load.
func (c *CachedDirectory) InvalidateLoad(ctx context.Context, id uuid.UUID) {
	_ = c.redis.Del(ctx, redisLoadKeyPrefix+id.String()).Err()
}

func readThrough[T any](ctx context.Context, c *CachedDirectory, key string, load func() (*T, error)) (*T, error) {
	// ── Fast path: Redis ────────────────────────────────
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var v T
		if jerr := json.Unmarshal(raw, &v); jerr == nil {
			return &v, nil
		}
		c.log.Warnf("cache: corrupt entry %s, refetching", key)
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warnf("cache: get %s: %v", key, err)
	}

	// ── Slow path: backing directory ────────────────────
	v, err := load()
	if err != nil {
		return nil, err
	}

	// Fire-and-forget; a failed write only costs a later miss.
	if buf, jerr := json.Marshal(v); jerr == nil {
		if serr := c.redis.Set(ctx, key, buf, c.ttl).Err(); serr != nil {
			c.log.Debugf("cache: set %s: %v", key, serr)
		}
	}
	return v, nil
}
