// Package fixture loads demo vans, loads and route plans from YAML and seeds
// them into a store.
package fixture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/repository"
	"github.com/shiva/freightroute/internal/service"
)

type VanDef struct {
	ID                      uuid.UUID `yaml:"id"`
	Name                    string    `yaml:"name"`
	LicensePlate            string    `yaml:"license_plate"`
	CargoLengthCm           int       `yaml:"cargo_length_cm"`
	CargoWidthCm            int       `yaml:"cargo_width_cm"`
	CargoHeightCm           int       `yaml:"cargo_height_cm"`
	MaxWeightKg             *float64  `yaml:"max_weight_kg,omitempty"`
	MaxPallets              *int      `yaml:"max_pallets,omitempty"`
	FuelConsumptionPer100Km *float64  `yaml:"fuel_consumption_per_100km,omitempty"`
}

func (v VanDef) ToModel() model.Van {
	return model.Van{
		ID:                      v.ID,
		Name:                    v.Name,
		LicensePlate:            v.LicensePlate,
		CargoLengthCm:           v.CargoLengthCm,
		CargoWidthCm:            v.CargoWidthCm,
		CargoHeightCm:           v.CargoHeightCm,
		MaxWeightKg:             v.MaxWeightKg,
		MaxPallets:              v.MaxPallets,
		FuelConsumptionPer100Km: v.FuelConsumptionPer100Km,
	}
}

type LoadDef struct {
	ID        uuid.UUID `yaml:"id"`
	Reference string    `yaml:"reference"`
	WeightKg  *float64  `yaml:"weight_kg,omitempty"`
	Pallets   *int      `yaml:"pallets,omitempty"`
	Price     string    `yaml:"price,omitempty"`
	Currency  string    `yaml:"currency,omitempty"`
}

func (l LoadDef) ToModel() (model.Load, error) {
	out := model.Load{
		ID:        l.ID,
		Reference: l.Reference,
		WeightKg:  l.WeightKg,
		Pallets:   l.Pallets,
		Currency:  l.Currency,
	}
	if l.Price != "" {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return out, fmt.Errorf("load %s: price %q: %w", l.Reference, l.Price, err)
		}
		out.Price = decimal.NewNullDecimal(price)
	}
	return out, nil
}

type StopDef struct {
	Load           string     `yaml:"load"` // load reference
	Type           string     `yaml:"type"`
	Address        string     `yaml:"address"`
	City           string     `yaml:"city"`
	Postcode       string     `yaml:"postcode"`
	Country        string     `yaml:"country"`
	Lat            *float64   `yaml:"lat,omitempty"`
	Lng            *float64   `yaml:"lng,omitempty"`
	ETA            *time.Time `yaml:"eta,omitempty"`
	TimeWindowFrom *time.Time `yaml:"time_window_from,omitempty"`
	TimeWindowTo   *time.Time `yaml:"time_window_to,omitempty"`
	DistanceKm     *float64   `yaml:"distance_to_next_km,omitempty"`
	DrivingMinutes *int       `yaml:"driving_minutes_to_next,omitempty"`
	Pallets        *int       `yaml:"pallets,omitempty"`
	WeightKg       *float64   `yaml:"weight_kg,omitempty"`
}

type PlacementDef struct {
	Load     string `yaml:"load"`
	Label    string `yaml:"label,omitempty"`
	XCm      int    `yaml:"x_cm"`
	YCm      int    `yaml:"y_cm"`
	WidthCm  int    `yaml:"width_cm"`
	HeightCm int    `yaml:"height_cm"`
	Rotated  bool   `yaml:"rotated,omitempty"`
}

type RouteDef struct {
	Name       string         `yaml:"name"`
	Van        string         `yaml:"van"` // van name
	Status     string         `yaml:"status,omitempty"`
	Departure  *time.Time     `yaml:"departure,omitempty"`
	Arrival    *time.Time     `yaml:"arrival,omitempty"`
	Notes      string         `yaml:"notes,omitempty"`
	Stops      []StopDef      `yaml:"stops"`
	Placements []PlacementDef `yaml:"placements,omitempty"`
}

// File is the root of a fixture document.
type File struct {
	Vans   []VanDef   `yaml:"vans"`
	Loads  []LoadDef  `yaml:"loads"`
	Routes []RouteDef `yaml:"routes"`
}

// Load reads a fixture file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a fixture document. Vans and loads without an id get a
// fresh one.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	for i := range f.Vans {
		if f.Vans[i].ID == uuid.Nil {
			f.Vans[i].ID = uuid.New()
		}
	}
	for i := range f.Loads {
		if f.Loads[i].ID == uuid.Nil {
			f.Loads[i].ID = uuid.New()
		}
	}
	return &f, nil
}

// Services are the write paths Seed goes through.
type Services struct {
	Directory repository.DirectoryWriter
	Routes    *service.RouteService
	Layout    *service.PlacementService
}

// Result lists what Seed created.
type Result struct {
	Vans   int
	Loads  int
	Routes []uuid.UUID
}

// Seed upserts the vans and loads, then creates every route through the
// route service so the usual validation applies.
func Seed(ctx context.Context, f *File, svc Services) (Result, error) {
	var res Result

	vans := make(map[string]uuid.UUID, len(f.Vans))
	for _, def := range f.Vans {
		v := def.ToModel()
		if err := svc.Directory.UpsertVan(ctx, &v); err != nil {
			return res, fmt.Errorf("seed van %s: %w", def.Name, err)
		}
		vans[def.Name] = v.ID
		res.Vans++
	}

	loads := make(map[string]uuid.UUID, len(f.Loads))
	for _, def := range f.Loads {
		l, err := def.ToModel()
		if err != nil {
			return res, err
		}
		if err := svc.Directory.UpsertLoad(ctx, &l); err != nil {
			return res, fmt.Errorf("seed load %s: %w", def.Reference, err)
		}
		loads[def.Reference] = l.ID
		res.Loads++
	}

	for _, def := range f.Routes {
		in, err := def.input(vans, loads)
		if err != nil {
			return res, err
		}
		plan, err := svc.Routes.Create(ctx, in)
		if err != nil {
			return res, fmt.Errorf("seed route %q: %w", def.Name, err)
		}
		for _, p := range def.Placements {
			loadID, ok := loads[p.Load]
			if !ok {
				return res, fmt.Errorf("seed route %q: placement references unknown load %q", def.Name, p.Load)
			}
			place := service.PlaceCargoInput{
				LoadID: loadID, XCm: p.XCm, YCm: p.YCm, WidthCm: p.WidthCm, HeightCm: p.HeightCm, Rotated: p.Rotated,
			}
			if p.Label != "" {
				label := p.Label
				place.Label = &label
			}
			if _, err := svc.Layout.Place(ctx, plan.ID, place); err != nil {
				return res, fmt.Errorf("seed route %q placement: %w", def.Name, err)
			}
		}
		res.Routes = append(res.Routes, plan.ID)
	}
	return res, nil
}

func (r RouteDef) input(vans, loads map[string]uuid.UUID) (service.CreateRoutePlanInput, error) {
	in := service.CreateRoutePlanInput{
		DepartureDate: r.Departure,
		ArrivalDate:   r.Arrival,
	}
	if r.Name != "" {
		name := r.Name
		in.Name = &name
	}
	if r.Notes != "" {
		notes := r.Notes
		in.Notes = &notes
	}
	if r.Status != "" {
		status := model.RouteStatus(r.Status)
		in.Status = &status
	}
	if r.Van != "" {
		id, ok := vans[r.Van]
		if !ok {
			return in, fmt.Errorf("route %q: unknown van %q", r.Name, r.Van)
		}
		in.VanID = &id
	}

	for i, s := range r.Stops {
		loadID, ok := loads[s.Load]
		if !ok {
			return in, fmt.Errorf("route %q stop %d: unknown load %q", r.Name, i, s.Load)
		}
		in.Stops = append(in.Stops, service.StopInput{
			LoadID:                   loadID,
			StopType:                 model.StopType(s.Type),
			Address:                  s.Address,
			City:                     s.City,
			Postcode:                 s.Postcode,
			Country:                  s.Country,
			Lat:                      s.Lat,
			Lng:                      s.Lng,
			ETA:                      s.ETA,
			TimeWindowFrom:           s.TimeWindowFrom,
			TimeWindowTo:             s.TimeWindowTo,
			DistanceToNextKm:         s.DistanceKm,
			DrivingTimeToNextMinutes: s.DrivingMinutes,
			Pallets:                  s.Pallets,
			WeightKg:                 s.WeightKg,
		})
	}
	return in, nil
}
