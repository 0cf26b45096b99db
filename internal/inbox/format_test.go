package inbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp(t *testing.T) {
	now := baseNow
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{ago: 0, want: "Just now"},
		{ago: 59 * time.Second, want: "Just now"},
		{ago: -time.Minute, want: "Just now"},
		{ago: time.Minute, want: "1 min ago"},
		{ago: 59*time.Minute + 59*time.Second, want: "59 min ago"},
		{ago: time.Hour, want: "1 hour ago"},
		{ago: 2*time.Hour + 10*time.Minute, want: "2 hours ago"},
		{ago: 23*time.Hour + 59*time.Minute, want: "23 hours ago"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatTimestamp(now, now.Add(-tt.ago)), "ago=%s", tt.ago)
	}

	old := now.Add(-48 * time.Hour)
	require.Equal(t, old.Local().Format("Jan 2, 2006 3:04 PM"), FormatTimestamp(now, old))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "", Truncate("", PreviewLength))
	require.Equal(t, "short", Truncate("short", PreviewLength))

	exact := strings.Repeat("a", PreviewLength)
	require.Equal(t, exact, Truncate(exact, PreviewLength))

	long := strings.Repeat("é", PreviewLength+5)
	got := Truncate(long, PreviewLength)
	require.Equal(t, strings.Repeat("é", PreviewLength)+"...", got)

	require.Equal(t, "abc", Truncate("abc", 0))
}
