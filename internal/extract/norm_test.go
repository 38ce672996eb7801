package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"2024-05-01T00:00:00Z", "2024-05-01"},
		{"2024-05-01+02:00", "2024-05-01"},
		{"2024-05-01Z", "2024-05-01"},
		{"2024-05-01", "2024-05-01"},
		{"  2024-05-01  ", "2024-05-01"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, normDate(tc.in), "input %q", tc.in)
	}
}

func TestCleanTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"2024-00123 - Road Works", "Road Works"},
		{"2024_00456: Bridge Renewal", "Bridge Renewal"},
		{"Road Works", "Road Works"},
		{"2024 Road Works", "2024 Road Works"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, cleanTitle(tc.in), "input %q", tc.in)
	}
}

func TestDurationToDays(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value string
		unit  string
		want  int
		ok    bool
	}{
		{"6", "MON", 180, true},
		{"2", "ANN", 730, true},
		{"14", "DAY", 14, true},
		{"1,5", "MONTHS", 45, true},
		{"10", "D", 10, true},
		{"1", "YEAR", 365, true},
		{"", "MON", 0, false},
		{"6", "FORTNIGHT", 0, false},
		{"abc", "DAY", 0, false},
	}
	for _, tc := range cases {
		got, ok := durationToDays(tc.value, tc.unit)
		require.Equal(t, tc.ok, ok, "value %q unit %q", tc.value, tc.unit)
		require.Equal(t, tc.want, got, "value %q unit %q", tc.value, tc.unit)
	}
}
