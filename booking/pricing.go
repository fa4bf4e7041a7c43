package booking

import (
	"github.com/shopspring/decimal"
	"github.com/warp/hub-engine/generic"
)

// DefaultRatePerSeatHour is the room rate per seat per hour.
var DefaultRatePerSeatHour = decimal.NewFromInt(2000)

var minutesPerHour = decimal.NewFromInt(60)

// Price is capacity × rate × hours, with hours = minutes/60. Nothing is
// rounded, so 90 minutes in a 4-seat pod is exactly 1.5 hours × 4 seats.
// Callers validate the interval; a non-positive duration prices at or
// below zero.
func Price(capacity int, start, end generic.TimeOfDay, ratePerSeatHour decimal.Decimal) decimal.Decimal {
	minutes := decimal.NewFromInt(int64(end.Minutes() - start.Minutes()))
	hours := minutes.Div(minutesPerHour)
	return decimal.NewFromInt(int64(capacity)).Mul(ratePerSeatHour).Mul(hours)
}
