package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestForDate_FiscalPolicy(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want string
	}{
		{"july falls in the prior reporting year", date(2025, time.July, 31), "2024/2025"},
		{"august starts the new reporting year", date(2025, time.August, 1), "2025/2026"},
		{"december stays in the new reporting year", date(2025, time.December, 31), "2025/2026"},
		{"january falls in the prior reporting year", date(2026, time.January, 2), "2025/2026"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForDate(tt.date, false))
		})
	}
}

func TestForDate_CalendarPolicy(t *testing.T) {
	assert.Equal(t, "2025/2025", ForDate(date(2025, time.February, 10), true))
	assert.Equal(t, "2025/2025", ForDate(date(2025, time.November, 10), true))
}

func TestNormalizeForBenchmark(t *testing.T) {
	assert.Equal(t, "2025/2026", NormalizeForBenchmark("2025/2025"))
	assert.Equal(t, "2025/2026", NormalizeForBenchmark("2025/2026"), "fiscal periods pass through")
	assert.Equal(t, "garbage", NormalizeForBenchmark("garbage"), "unparseable labels pass through")
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("2024/2025"))
	assert.True(t, Valid("2025/2025"))
	assert.False(t, Valid("2024/2026"))
	assert.False(t, Valid("2024"))
	assert.False(t, Valid(""))
}
