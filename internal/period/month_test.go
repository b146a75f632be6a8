package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthOfUsesLocation(t *testing.T) {
	moscow, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	// 22:30 UTC on Jan 31 is already February in Moscow.
	m := MonthOf(time.Date(2025, time.January, 31, 22, 30, 0, 0, time.UTC), moscow)
	assert.Equal(t, "2025-02", m.Key)
	assert.Equal(t, time.Date(2025, time.January, 31, 21, 0, 0, 0, time.UTC), m.Start)
	assert.Equal(t, time.Date(2025, time.February, 28, 21, 0, 0, 0, time.UTC), m.End)
}

func TestPreviousMonth(t *testing.T) {
	m := MonthOf(time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC), time.UTC)
	prev := m.Previous(time.UTC)

	assert.Equal(t, "2024-12", prev.Key)
	assert.Equal(t, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC), prev.Start)
	assert.Equal(t, m.Start, prev.End)
}

func TestMonthOfNilLocation(t *testing.T) {
	m := MonthOf(time.Date(2025, time.June, 30, 23, 59, 0, 0, time.UTC), nil)
	assert.Equal(t, "2025-06", m.Key)
}
