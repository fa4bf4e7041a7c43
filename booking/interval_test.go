package booking_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hub-engine/booking"
	"github.com/warp/hub-engine/generic"
)

func hm(h, m int) generic.TimeOfDay { return generic.NewTimeOfDay(h, m) }

func iv(startH, startM, endH, endM int) booking.Interval {
	return booking.NewInterval(hm(startH, startM), hm(endH, endM))
}

// =============================================================================
// INTERVALS
// =============================================================================

func TestOverlaps(t *testing.T) {
	existing := iv(10, 0, 11, 0)

	tests := []struct {
		name string
		req  booking.Interval
		want bool
	}{
		{"straddles start", iv(9, 0, 10, 30), true},
		{"touches end", iv(11, 0, 12, 0), false},
		{"touches start", iv(9, 0, 10, 0), false},
		{"inside", iv(10, 15, 10, 45), true},
		{"covers", iv(9, 0, 12, 0), true},
		{"identical", iv(10, 0, 11, 0), true},
		{"before", iv(8, 0, 9, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, booking.Overlaps(existing, tt.req))
			assert.Equal(t, tt.want, booking.Overlaps(tt.req, existing), "symmetric")
		})
	}
}

func TestParseInterval(t *testing.T) {
	got, err := booking.ParseInterval("09:00", "10:30")
	require.NoError(t, err)
	assert.Equal(t, iv(9, 0, 10, 30), got)
	assert.Equal(t, 90, got.Minutes())
	assert.Equal(t, "09:00-10:30", got.String())

	_, err = booking.ParseInterval("09:00:00", "24:00")
	assert.NoError(t, err, "seconds and end of day are accepted")
}

func TestParseInterval_Rejects(t *testing.T) {
	cases := map[string][2]string{
		"inverted":    {"11:00", "10:00"},
		"empty":       {"10:00", "10:00"},
		"bad start":   {"9am", "10:00"},
		"bad minutes": {"09:75", "10:00"},
		"past day":    {"23:00", "24:30"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := booking.ParseInterval(c[0], c[1])
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}
}

// =============================================================================
// PRICING
// =============================================================================

func TestPrice(t *testing.T) {
	rate := decimal.NewFromInt(2000)

	tests := []struct {
		name     string
		capacity int
		start    generic.TimeOfDay
		end      generic.TimeOfDay
		want     string
	}{
		{"room A two hours", 10, hm(9, 0), hm(11, 0), "40000"},
		{"room B one hour", 6, hm(14, 0), hm(15, 0), "12000"},
		{"pod ninety minutes", 4, hm(10, 0), hm(11, 30), "12000"},
		{"desk half hour", 1, hm(8, 0), hm(8, 30), "1000"},
		{"pod forty-five minutes", 4, hm(16, 15), hm(17, 0), "6000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := booking.Price(tt.capacity, tt.start, tt.end, rate)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCatalog(t *testing.T) {
	c := booking.NewCatalog(booking.DefaultRooms, 3)

	rooms := c.OfKind(booking.KindRoom)
	require.Len(t, rooms, 4)
	assert.Equal(t, "Conference Room A", rooms[0].Name)
	assert.Equal(t, 10, rooms[0].Capacity)

	desks := c.OfKind(booking.KindDesk)
	require.Len(t, desks, 3)
	assert.Equal(t, "Desk 3", desks[2].Name)
	assert.Equal(t, 1, desks[2].Capacity)

	r, ok := c.Lookup(" Meeting Pod 2 ")
	assert.True(t, ok)
	assert.Equal(t, 4, r.Capacity)

	_, ok = c.Lookup("Broom Closet")
	assert.False(t, ok)
}
