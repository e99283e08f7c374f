package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	midnight := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	cases := map[string]time.Time{
		"2026-01-01":  midnight(2026, 1, 1),
		"today":       midnight(2026, 3, 10),
		"yesterday":   midnight(2026, 3, 9),
		"Yesterday":   midnight(2026, 3, 9),
		"1 day ago":   midnight(2026, 3, 9),
		"7 days ago":  midnight(2026, 3, 3),
		"10 DAYS AGO": midnight(2026, 2, 28),
	}
	for input, want := range cases {
		got, err := ParseSince(input, now)
		require.NoError(t, err, input)
		assert.True(t, want.Equal(got), "%s: got %s", input, got)
	}

	for _, bad := range []string{"", "last week", "a while ago", "2026/01/01", "2026-13-01"} {
		_, err := ParseSince(bad, now)
		assert.Error(t, err, bad)
	}
}
