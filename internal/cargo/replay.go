// Package cargo derives cargo state from a route's stop ledger and its
// placement records. Nothing here touches storage: every result is
// recomputed from its inputs on each call.
package cargo

import (
	"sort"

	"github.com/google/uuid"

	"github.com/shiva/freightroute/internal/model"
)

// Frame is the on-board set right after the stop at OrderIndex was served.
type Frame struct {
	OrderIndex int            `json:"orderIndex"`
	StopID     uuid.UUID      `json:"stopId"`
	StopType   model.StopType `json:"stopType"`
	LoadID     uuid.UUID      `json:"loadId"`
	OnBoard    []uuid.UUID    `json:"onBoard"`
}

// onBoard is an insertion-ordered set of load ids.
type onBoard struct {
	ids []uuid.UUID
	pos map[uuid.UUID]int
}

func newOnBoard() *onBoard {
	return &onBoard{pos: make(map[uuid.UUID]int)}
}

func (b *onBoard) add(id uuid.UUID) {
	if _, ok := b.pos[id]; ok {
		return
	}
	b.pos[id] = len(b.ids)
	b.ids = append(b.ids, id)
}

func (b *onBoard) remove(id uuid.UUID) {
	i, ok := b.pos[id]
	if !ok {
		return
	}
	b.ids = append(b.ids[:i], b.ids[i+1:]...)
	delete(b.pos, id)
	for j := i; j < len(b.ids); j++ {
		b.pos[b.ids[j]] = j
	}
}

func (b *onBoard) apply(s *model.RouteStop) {
	switch s.StopType {
	case model.StopPickup:
		b.add(s.LoadID)
	case model.StopDelivery:
		b.remove(s.LoadID)
	}
}

func (b *onBoard) snapshot() []uuid.UUID {
	out := make([]uuid.UUID, len(b.ids))
	copy(out, b.ids)
	return out
}

// Sorted returns the stops ordered by OrderIndex without touching the input.
func Sorted(stops []model.RouteStop) []model.RouteStop {
	out := make([]model.RouteStop, len(stops))
	copy(out, stops)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}

// OnBoardAt returns the loads on board after every stop with an OrderIndex up
// to and including targetIndex has been served. Loads are listed in the order
// they were picked up.
//
// A PICKUP of a load already on board and a DELIVERY of a load that is not on
// board are both no-ops. A negative targetIndex yields an empty set, and a
// targetIndex past the last stop yields the terminal state of the route.
//
// Complexity: O(S log S) for the sort, O(S) for the replay.
func OnBoardAt(stops []model.RouteStop, targetIndex int) []uuid.UUID {
	set := newOnBoard()
	for _, s := range Sorted(stops) {
		if s.OrderIndex > targetIndex {
			break
		}
		set.apply(&s)
	}
	return set.snapshot()
}

// Timeline replays the whole route once and returns one frame per stop.
func Timeline(stops []model.RouteStop) []Frame {
	ordered := Sorted(stops)
	set := newOnBoard()
	frames := make([]Frame, 0, len(ordered))
	for i := range ordered {
		s := &ordered[i]
		set.apply(s)
		frames = append(frames, Frame{
			OrderIndex: s.OrderIndex,
			StopID:     s.ID,
			StopType:   s.StopType,
			LoadID:     s.LoadID,
			OnBoard:    set.snapshot(),
		})
	}
	return frames
}
