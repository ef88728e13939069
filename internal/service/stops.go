package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/freightroute/internal/cargo"
	"github.com/shiva/freightroute/internal/model"
	"github.com/shiva/freightroute/internal/repository"
)

const (
	maxNameLen    = 100
	maxCountryLen = 5
)

// StopInput is one stop as supplied by a caller. OrderIndex is optional: when
// no stop carries one, stops are indexed by position.
type StopInput struct {
	LoadID     uuid.UUID         `json:"loadId"`
	StopType   model.StopType    `json:"stopType"`
	Status     *model.StopStatus `json:"status"`
	OrderIndex *int              `json:"orderIndex"`
	GroupID    *uuid.UUID        `json:"groupId"`

	Address  string   `json:"address"`
	City     string   `json:"city"`
	Postcode string   `json:"postcode"`
	Country  string   `json:"country"`
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`

	ETA                 *time.Time `json:"eta"`
	ETD                 *time.Time `json:"etd"`
	ActualArrival       *time.Time `json:"actualArrival"`
	ActualDeparture     *time.Time `json:"actualDeparture"`
	TimeWindowFrom      *time.Time `json:"timeWindowFrom"`
	TimeWindowTo        *time.Time `json:"timeWindowTo"`
	TimeWindowViolation bool       `json:"timeWindowViolation"`

	DistanceToNextKm         *float64 `json:"distanceToNextKm"`
	DrivingTimeToNextMinutes *int     `json:"drivingTimeToNextMinutes"`

	Pallets  *int     `json:"pallets"`
	WeightKg *float64 `json:"weightKg"`
	Notes    *string  `json:"notes"`
}

// buildStops validates the caller's stops and turns them into ledger rows
// ordered by orderIndex and re-indexed densely from 0.
func buildStops(in []StopInput) ([]model.RouteStop, error) {
	var errs problems

	withIndex := 0
	for _, s := range in {
		if s.OrderIndex != nil {
			withIndex++
		}
	}
	if withIndex != 0 && withIndex != len(in) {
		errs.addf("stops: orderIndex must be given on every stop or on none")
	}

	seen := map[int]int{}
	stops := make([]model.RouteStop, len(in))
	for i, s := range in {
		validateStop(&errs, i, &s)

		idx := i
		if s.OrderIndex != nil {
			idx = *s.OrderIndex
			if idx < 0 {
				errs.addf("stops[%d].orderIndex: must not be negative", i)
			}
			if j, dup := seen[idx]; dup {
				errs.addf("stops[%d].orderIndex: %d already used by stops[%d]", i, idx, j)
			}
			seen[idx] = i
		}

		status := model.StopPending
		if s.Status != nil {
			status = *s.Status
		}
		stops[i] = model.RouteStop{
			LoadID:                   s.LoadID,
			StopType:                 s.StopType,
			Status:                   status,
			OrderIndex:               idx,
			GroupID:                  s.GroupID,
			Address:                  strings.TrimSpace(s.Address),
			City:                     strings.TrimSpace(s.City),
			Postcode:                 strings.TrimSpace(s.Postcode),
			Country:                  strings.ToUpper(strings.TrimSpace(s.Country)),
			Lat:                      s.Lat,
			Lng:                      s.Lng,
			ETA:                      s.ETA,
			ETD:                      s.ETD,
			ActualArrival:            s.ActualArrival,
			ActualDeparture:          s.ActualDeparture,
			TimeWindowFrom:           s.TimeWindowFrom,
			TimeWindowTo:             s.TimeWindowTo,
			TimeWindowViolation:      s.TimeWindowViolation,
			DistanceToNextKm:         s.DistanceToNextKm,
			DrivingTimeToNextMinutes: s.DrivingTimeToNextMinutes,
			Pallets:                  s.Pallets,
			WeightKg:                 s.WeightKg,
			Notes:                    s.Notes,
		}
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	sort.SliceStable(stops, func(i, j int) bool { return stops[i].OrderIndex < stops[j].OrderIndex })
	for i := range stops {
		stops[i].OrderIndex = i
	}

	for _, v := range cargo.CheckPairing(stops) {
		errs.addf("stops: %s", v)
	}
	return stops, errs.err()
}

func validateStop(errs *problems, i int, s *StopInput) {
	if s.LoadID == uuid.Nil {
		errs.addf("stops[%d].loadId: required", i)
	}
	if !s.StopType.Valid() {
		errs.addf("stops[%d].stopType: must be PICKUP or DELIVERY", i)
	}
	if s.Status != nil && !s.Status.Valid() {
		errs.addf("stops[%d].status: unknown value %q", i, *s.Status)
	}

	for _, f := range [...]struct{ name, value string }{
		{"address", s.Address}, {"city", s.City}, {"postcode", s.Postcode}, {"country", s.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			errs.addf("stops[%d].%s: required", i, f.name)
		}
	}
	if len(strings.TrimSpace(s.Country)) > maxCountryLen {
		errs.addf("stops[%d].country: at most %d characters", i, maxCountryLen)
	}
	if s.Lat != nil && (*s.Lat < -90 || *s.Lat > 90) {
		errs.addf("stops[%d].lat: out of range", i)
	}
	if s.Lng != nil && (*s.Lng < -180 || *s.Lng > 180) {
		errs.addf("stops[%d].lng: out of range", i)
	}

	if s.TimeWindowFrom != nil && s.TimeWindowTo != nil && s.TimeWindowFrom.After(*s.TimeWindowTo) {
		errs.addf("stops[%d].timeWindowFrom: must not be after timeWindowTo", i)
	}
	if s.Pallets != nil && *s.Pallets < 0 {
		errs.addf("stops[%d].pallets: must not be negative", i)
	}
	if s.WeightKg != nil && *s.WeightKg < 0 {
		errs.addf("stops[%d].weightKg: must not be negative", i)
	}
	if s.DistanceToNextKm != nil && *s.DistanceToNextKm < 0 {
		errs.addf("stops[%d].distanceToNextKm: must not be negative", i)
	}
	if s.DrivingTimeToNextMinutes != nil && *s.DrivingTimeToNextMinutes < 0 {
		errs.addf("stops[%d].drivingTimeToNextMinutes: must not be negative", i)
	}
}

// ensureLoads checks that every load referenced by stops exists.
func (c *core) ensureLoads(ctx context.Context, stops []model.RouteStop) error {
	checked := map[uuid.UUID]bool{}
	for _, s := range stops {
		if checked[s.LoadID] {
			continue
		}
		checked[s.LoadID] = true
		if _, err := c.dir.GetLoad(ctx, s.LoadID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrLoadNotFound
			}
			return err
		}
	}
	return nil
}

// ensureVan checks that a referenced van exists and returns it.
func (c *core) ensureVan(ctx context.Context, id *uuid.UUID) (*model.Van, error) {
	if id == nil {
		return nil, nil
	}
	van, err := c.dir.GetVan(ctx, *id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVanNotFound
		}
		return nil, err
	}
	return van, nil
}

// replaceStops writes a validated stop list into a locked plan and marks its
// metrics stale.
func replaceStops(ctx context.Context, q repository.Querier, p *model.RoutePlan, stops []model.RouteStop) error {
	if err := q.ReplaceStops(ctx, p.ID, stops); err != nil {
		return err
	}
	p.Stops = stops
	p.MarkStale()
	return nil
}
