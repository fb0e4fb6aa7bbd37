package dto

import (
	"sort"
	"time"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/daterange"
)

// BlockedRange is a stay holding dates on a property. Guest identity is omitted.
type BlockedRange struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Status   string `json:"status"`
}

type Calendar struct {
	PropertyID string         `json:"property_id"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Blocked    []BlockedRange `json:"blocked"`
}

// CalendarFrom lists the ranges of items ordered by check-in.
func CalendarFrom(propertyID string, window daterange.DateRange, items []*booking.Booking) Calendar {
	sorted := append([]*booking.Booking(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Range.CheckIn.Before(sorted[j].Range.CheckIn)
	})
	out := Calendar{
		PropertyID: propertyID,
		From:       window.CheckIn.Format(time.DateOnly),
		To:         window.CheckOut.Format(time.DateOnly),
		Blocked:    make([]BlockedRange, 0, len(sorted)),
	}
	for _, b := range sorted {
		out.Blocked = append(out.Blocked, BlockedRange{
			CheckIn:  b.Range.CheckIn.Format(time.DateOnly),
			CheckOut: b.Range.CheckOut.Format(time.DateOnly),
			Status:   string(b.State),
		})
	}
	return out
}
