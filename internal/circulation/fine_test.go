package circulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestFine(t *testing.T) {
	due := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want float64
	}{
		{"before due", due.Add(-time.Hour), 0},
		{"at due", due, 0},
		{"partial day", due.Add(23 * time.Hour), 0},
		{"one day", due.Add(24 * time.Hour), 0.5},
		{"six and a half days", due.Add(6*24*time.Hour + 12*time.Hour), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fine(due, tt.now, 0.5))
		})
	}
}

func TestFineProperties(t *testing.T) {
	due := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)

	rapid.Check(t, func(t *rapid.T) {
		offset := time.Duration(rapid.Int64Range(-1000*int64(time.Hour), 5000*int64(time.Hour)).Draw(t, "offset"))
		now := due.Add(offset)
		fine := Fine(due, now, 0.5)

		if offset <= 0 {
			if fine != 0 {
				t.Fatalf("fine %v before due", fine)
			}
			return
		}
		days := int64(offset / (24 * time.Hour))
		if fine != float64(days)*0.5 {
			t.Fatalf("fine %v for %d full days", fine, days)
		}
		if DaysOverdue(due, now) != int(days) {
			t.Fatalf("days overdue %d, want %d", DaysOverdue(due, now), days)
		}
	})
}

func TestFineMonotonic(t *testing.T) {
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	rapid.Check(t, func(t *rapid.T) {
		a := time.Duration(rapid.Int64Range(0, 2000*int64(time.Hour)).Draw(t, "a"))
		b := time.Duration(rapid.Int64Range(0, 2000*int64(time.Hour)).Draw(t, "b"))
		if a > b {
			a, b = b, a
		}
		if Fine(due, due.Add(a), 0.5) > Fine(due, due.Add(b), 0.5) {
			t.Fatalf("fine decreased between %v and %v", a, b)
		}
	})
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusBorrowed.Active())
	assert.True(t, StatusOverdue.Active())
	assert.False(t, StatusReturned.Active())
	assert.False(t, Status("lost").Valid())
}
