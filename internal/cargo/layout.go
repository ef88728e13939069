package cargo

import (
	"github.com/google/uuid"

	"github.com/shiva/freightroute/internal/model"
)

// Revalidate recomputes the conflict and overflow flags of every placement of
// one route and returns the updated copies, in input order.
//
// A placement conflicts when its footprint overlaps another placement's
// footprint anywhere on the route. It overflows when its footprint leaves the
// van's cargo floor (width along X, length along Y). Without a van there is
// no floor to check against and nothing overflows.
//
// Complexity: O(P²) pairwise checks; P stays small for a single van.
func Revalidate(placements []model.CargoPlacement, van *model.Van) []model.CargoPlacement {
	out := make([]model.CargoPlacement, len(placements))
	copy(out, placements)

	rects := make([]model.Rect, len(out))
	for i := range out {
		rects[i] = out[i].Footprint()
		out[i].HasConflict = false
		out[i].IsOverflow = van != nil && !rects[i].Within(van.CargoWidthCm, van.CargoLengthCm)
	}

	for i := 0; i < len(rects); i++ {
		for j := i + 1; j < len(rects); j++ {
			if rects[i].Intersects(rects[j]) {
				out[i].HasConflict = true
				out[j].HasConflict = true
			}
		}
	}
	return out
}

// Changed returns the placements whose flags differ between before and after.
// Both slices must come from Revalidate over the same input.
func Changed(before, after []model.CargoPlacement) []model.CargoPlacement {
	var diff []model.CargoPlacement
	for i := range after {
		if i >= len(before) ||
			before[i].HasConflict != after[i].HasConflict ||
			before[i].IsOverflow != after[i].IsOverflow {
			diff = append(diff, after[i])
		}
	}
	return diff
}

// OnBoardPlacements keeps the placements whose load is in onBoard.
func OnBoardPlacements(placements []model.CargoPlacement, onBoard []uuid.UUID) []model.CargoPlacement {
	present := make(map[uuid.UUID]struct{}, len(onBoard))
	for _, id := range onBoard {
		present[id] = struct{}{}
	}
	out := make([]model.CargoPlacement, 0, len(placements))
	for _, p := range placements {
		if _, ok := present[p.LoadID]; ok {
			out = append(out, p)
		}
	}
	return out
}
