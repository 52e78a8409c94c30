package openadr

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "PT0S"},
		{24*time.Hour + time.Hour + 2*time.Minute + 3*time.Second, "P1DT1H2M3S"},
		{10 * time.Second, "PT10S"},
		{time.Minute, "PT1M"},
		{time.Hour, "PT1H"},
		{48 * time.Hour, "P2D"},
		{1500 * time.Millisecond, "PT1.5S"},
		{-15 * time.Minute, "-PT15M"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT0S", 0},
		{"P1DT1H2M3S", 24*time.Hour + time.Hour + 2*time.Minute + 3*time.Second},
		{"PT1M", time.Minute},
		{"P1W", 7 * 24 * time.Hour},
		{"-PT15M", -15 * time.Minute},
		{" PT10S ", 10 * time.Second},
		{"PT0.5S", 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDurationInvalid(t *testing.T) {
	for _, in := range []string{"", "P", "PT", "1H", "P1H", "PT1D", "-P", "P1DT",
		"P999999999999D", "P99999999999999999999W", "PT9999999999S", "P106751DT23H47M17S"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDuration(in)
			assert.Error(t, err)
		})
	}
}

func TestParseDurationLargest(t *testing.T) {
	d, err := ParseDuration("P106751DT23H47M16S")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(math.MaxInt64).Truncate(time.Second), d)
}

func TestDurationRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{0, time.Second, 90 * time.Minute, 49*time.Hour + 7*time.Second} {
		got, err := ParseDuration(FormatDuration(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}
