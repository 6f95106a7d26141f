package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, IST)
}

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	assert.True(t, IsTradingDay(at(2026, time.January, 27, 10, 0)))
	assert.False(t, IsTradingDay(at(2026, time.January, 26, 10, 0)), "Republic Day")
	assert.False(t, IsTradingDay(at(2026, time.January, 24, 10, 0)), "Saturday")
	assert.False(t, IsTradingDay(at(2025, time.December, 25, 10, 0)), "Christmas")

	// Monday 20:00 UTC is already Tuesday in IST
	assert.True(t, IsTradingDay(time.Date(2026, time.January, 26, 20, 0, 0, 0, time.UTC)))
}

func TestIsMarketOpen(t *testing.T) {
	assert.False(t, IsMarketOpen(at(2026, time.January, 27, 9, 14)))
	assert.True(t, IsMarketOpen(at(2026, time.January, 27, 9, 15)))
	assert.True(t, IsMarketOpen(at(2026, time.January, 27, 15, 29)))
	assert.False(t, IsMarketOpen(at(2026, time.January, 27, 15, 30)))
	assert.False(t, IsMarketOpen(at(2026, time.January, 26, 11, 0)))
}

func TestSessionDate(t *testing.T) {
	// 23:00 UTC on the 27th is the 28th in IST
	assert.Equal(t, utcDate(2026, time.January, 28), SessionDate(time.Date(2026, time.January, 27, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, utcDate(2026, time.January, 27), SessionDate(at(2026, time.January, 27, 0, 0)))
}

func TestLastCompletedSession(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"after close", at(2026, time.January, 28, 15, 45), utcDate(2026, time.January, 28)},
		{"exactly at close", at(2026, time.January, 28, 15, 30), utcDate(2026, time.January, 28)},
		{"during session", at(2026, time.January, 28, 11, 0), utcDate(2026, time.January, 27)},
		{"monday morning", at(2026, time.February, 2, 9, 0), utcDate(2026, time.January, 30)},
		{"saturday", at(2026, time.January, 31, 12, 0), utcDate(2026, time.January, 30)},
		{"day after holiday", at(2026, time.January, 27, 10, 0), utcDate(2026, time.January, 23)},
		{"holiday evening", at(2026, time.January, 26, 18, 0), utcDate(2026, time.January, 23)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LastCompletedSession(tt.now))
		})
	}
}

func TestIsSessionComplete(t *testing.T) {
	now := at(2026, time.January, 28, 11, 0)
	assert.True(t, IsSessionComplete(utcDate(2026, time.January, 27), now))
	assert.False(t, IsSessionComplete(utcDate(2026, time.January, 28), now))
}
