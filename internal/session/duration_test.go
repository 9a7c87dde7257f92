package session

import "testing"

// TestFormatDuration verifies the ISO-8601 duration rendering, including
// omission of zero components and the always-present seconds fallback.
func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{0, "PT0S"},
		{45, "PT45S"},
		{60, "PT1M"},
		{65, "PT1M5S"},
		{3600, "PT1H"},
		{3605, "PT1H5S"},
		{3660, "PT1H1M"},
		{3665, "PT1H1M5S"},
		{7325, "PT2H2M5S"},
		{-5, "PT0S"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.seconds); got != tc.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
