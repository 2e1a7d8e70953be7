package ledger

import (
	"context"

	"github.com/movaght/cinema-booking/internal/model"
)

// SeatMapEntry is one seat of a showing's seat map as served to
// clients: layout joined with the live reservation state.
type SeatMapEntry struct {
	SeatID       uint64           `json:"seat_id"`
	Row          string           `json:"row"`
	Number       uint32           `json:"number"`
	Status       model.SeatStatus `json:"status"`
	IsAccessible bool             `json:"is_accessible"`
	PriceCents   uint32           `json:"price_cents"`
}

// SeatMap projects the full seat map of a showing by joining the
// static room layout with its active reservations.  The projection
// holds no state of its own: it is recomputed from persisted rows on
// every call, so it can never serve a stale cache.  Expired holds
// render as available immediately, independent of reaping.
func (l *Ledger) SeatMap(ctx context.Context, showingID uint64) ([]SeatMapEntry, error) {
	showing, room, err := l.store.ShowingByID(ctx, showingID)
	if err != nil {
		return nil, err
	}
	seats, err := l.store.SeatsByRoom(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	reservations, err := l.store.ActiveReservationsByShowing(ctx, showingID, l.now())
	if err != nil {
		return nil, err
	}
	status := make(map[uint64]model.SeatStatus, len(reservations))
	for _, r := range reservations {
		status[r.SeatID] = r.Status
	}
	entries := make([]SeatMapEntry, 0, len(seats))
	for _, seat := range seats {
		st, ok := status[seat.ID]
		if !ok {
			st = model.SeatAvailable
		}
		entries = append(entries, SeatMapEntry{
			SeatID:       seat.ID,
			Row:          seat.Row,
			Number:       seat.Number,
			Status:       st,
			IsAccessible: seat.IsAccessible,
			PriceCents:   showing.PriceCents,
		})
	}
	return entries, nil
}
