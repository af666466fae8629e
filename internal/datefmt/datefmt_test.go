package datefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2021, 4, 19, 10, 0, 0, 0, time.UTC), "19 Abr 2021"},
		{time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC), "05 Mar 2021"},
		{time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC), "31 Dez 2020"},
		{time.Date(999, 2, 1, 0, 0, 0, 0, time.UTC), "01 Fev 0999"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.in))
	}
}

func TestFormat_ZoneIndependent(t *testing.T) {
	instant := time.Date(2021, 4, 19, 10, 0, 0, 0, time.UTC)
	for _, offset := range []int{-12, -3, 0, 9, 14} {
		zone := time.FixedZone("test", offset*3600)
		assert.Equal(t, "19 Abr 2021", Format(instant.In(zone)), "offset %d", offset)
	}
}

func TestMonth(t *testing.T) {
	want := []string{"Jan", "Fev", "Mar", "Abr", "Mai", "Jun", "Jul", "Ago", "Set", "Out", "Nov", "Dez"}
	for i, w := range want {
		assert.Equal(t, w, Month(time.Month(i+1)))
	}
}

func TestISO(t *testing.T) {
	instant := time.Date(2021, 4, 19, 7, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	assert.Equal(t, "2021-04-19T10:00:00Z", ISO(instant))
}

func TestZeroTime(t *testing.T) {
	assert.Equal(t, "", Format(time.Time{}))
	assert.Equal(t, "", ISO(time.Time{}))
}
