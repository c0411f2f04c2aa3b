package pricing

import (
	"testing"
	"time"

	"carrental/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestForApproval(t *testing.T) {
	car := &models.Car{DayRate: 10000}
	start := time.Date(2030, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		want int64
	}{
		{"one hour", start.Add(time.Hour), 10000},
		{"exactly one day", start.Add(24 * time.Hour), 10000},
		{"one day and an hour", start.Add(25 * time.Hour), 20000},
		{"one day and a second", start.Add(24*time.Hour + time.Second), 20000},
		{"three days", start.AddDate(0, 0, 3), 30000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForApproval(car, start, tt.end))
		})
	}
}

func TestForReturn(t *testing.T) {
	car := &models.Car{DayRate: 10000}

	assert.Equal(t, int64(1500000), ForReturn(car, 1000, 1150))
	assert.Equal(t, int64(0), ForReturn(car, 1000, 1000))
	assert.Equal(t, int64(0), ForReturn(car, 1000, 900), "never negative")

	prev := int64(0)
	for end := int64(1000); end <= 1100; end += 10 {
		cost := ForReturn(car, 1000, end)
		assert.GreaterOrEqual(t, cost, prev)
		prev = cost
	}
}

func TestBillableDaysDegenerate(t *testing.T) {
	now := time.Now()
	assert.Equal(t, int64(1), BillableDays(now, now))
	assert.Equal(t, int64(1), BillableDays(now, now.Add(-time.Hour)))
}
