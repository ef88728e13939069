package cargo

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/shiva/freightroute/internal/model"
)

// PairingViolation describes a stop that breaks pickup/delivery pairing.
type PairingViolation struct {
	OrderIndex int
	LoadID     uuid.UUID
	Reason     string
}

func (v PairingViolation) String() string {
	return fmt.Sprintf("stop %d (load %s): %s", v.OrderIndex, v.LoadID, v.Reason)
}

// CheckPairing replays the stops and reports every stop where the ledger
// would be inconsistent: a DELIVERY with the load not on board, a second
// PICKUP while the load is still on board, and loads left on board once the
// route ends. The replay itself tolerates all three; this check is what write
// paths enforce.
func CheckPairing(stops []model.RouteStop) []PairingViolation {
	var out []PairingViolation
	ordered := Sorted(stops)
	set := newOnBoard()
	last := -1

	for i := range ordered {
		s := &ordered[i]
		_, present := set.pos[s.LoadID]
		switch s.StopType {
		case model.StopPickup:
			if present {
				out = append(out, PairingViolation{s.OrderIndex, s.LoadID, "picked up while already on board"})
			}
		case model.StopDelivery:
			if !present {
				out = append(out, PairingViolation{s.OrderIndex, s.LoadID, "delivered before being picked up"})
			}
		}
		set.apply(s)
		last = s.OrderIndex
	}

	for _, id := range set.ids {
		out = append(out, PairingViolation{last, id, "still on board at the end of the route"})
	}
	return out
}
