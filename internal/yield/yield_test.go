package yield

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccrued(t *testing.T) {
	year := 365 * 24 * time.Hour

	tests := []struct {
		name      string
		principal int64
		apyBps    int64
		elapsed   time.Duration
		want      int64
	}{
		{"full year at 5%", 50_000, 500, year, 2_500},
		{"full year at 10%", 33_000, 1000, year, 3_300},
		{"full year at 20%", 17_000, 2000, year, 3_400},
		{"half year at 10%", 100_000, 1000, year / 2, 5_000},
		{"zero elapsed", 100_000, 1000, 0, 0},
		{"zero principal", 0, 1000, year, 0},
		{"zero rate", 100_000, 0, year, 0},
		{"sub-second elapsed truncates", 100_000, 1000, 500 * time.Millisecond, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accrued(tt.principal, tt.apyBps, tt.elapsed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAccruedLargeBook(t *testing.T) {
	// 1e15 base units at 20% for a year would overflow naive int64 math in
	// the intermediate product; the result itself fits comfortably.
	got, err := Accrued(1_000_000_000_000_000, 2000, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000_000_000_000), got)
}

func TestAccruedRejectsNegative(t *testing.T) {
	_, err := Accrued(-1, 500, time.Hour)
	assert.Error(t, err)
	_, err = Accrued(100, -1, time.Hour)
	assert.Error(t, err)
}

func TestProRata(t *testing.T) {
	got, err := ProRata(50_000, 2_500, 50_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2_500), got)

	got, err = ProRata(10_000, 2_500, 50_000)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got)

	// Floors toward zero.
	got, err = ProRata(1, 100, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(33), got)

	_, err = ProRata(10, 100, 0)
	assert.Error(t, err)
	_, err = ProRata(11, 100, 10)
	assert.Error(t, err)
}

func TestSplitAllocation(t *testing.T) {
	tests := []struct {
		target int64
		want   [3]int64
	}{
		{100_000, [3]int64{50_000, 33_000, 17_000}},
		{100, [3]int64{50, 33, 17}},
		// Non-multiples of 100: remainder lands on senior.
		{101, [3]int64{51, 33, 17}},
		{99, [3]int64{50, 32, 16}},
		{1, [3]int64{1, 0, 0}},
		{7, [3]int64{5, 2, 1}},
	}
	for _, tt := range tests {
		caps, err := SplitAllocation(tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.want, caps, "target %d", tt.target)
		assert.Equal(t, tt.target, caps[0]+caps[1]+caps[2], "caps must sum to target")
	}
}

func TestSplitAllocationSumInvariant(t *testing.T) {
	for target := int64(1); target < 10_000; target++ {
		caps, err := SplitAllocation(target)
		require.NoError(t, err)
		require.Equal(t, target, caps[0]+caps[1]+caps[2], "target %d", target)
		require.GreaterOrEqual(t, caps[0], caps[1], "senior cap at least mezzanine for target %d", target)
	}
}

func TestSplitAllocationRejectsNonPositive(t *testing.T) {
	_, err := SplitAllocation(0)
	assert.Error(t, err)
	_, err = SplitAllocation(-5)
	assert.Error(t, err)
}
