package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

func TestFormatResult(t *testing.T) {
	t.Parallel()

	def, ok := game.Lookup(game.TaiXiu)
	require.True(t, ok)
	c := sampleCandidate()

	got := FormatResult(def, c, "/api/v1")
	want := strings.Join([]string{
		"🎮 **Tài Xỉu - Kết Quả Mới**",
		"",
		"📊 **Kết quả:** tai",
		"🔑 **MD5:** `0123456789abcdef0123456789abcdef`",
		"🆔 **Session:** tai_xiu_1",
		"⏰ **Thời gian:** 2024-01-01T00:00:00Z",
		"",
		"---",
		"🔗 **API Endpoint:** `/api/v1/games/tai_xiu/latest`",
	}, "\n")
	require.Equal(t, want, got)
}

func TestFormatResultPrefersSourceTimestamp(t *testing.T) {
	t.Parallel()

	c := sampleCandidate()
	c.Result = ""
	c.Source = map[string]any{"timestamp": "2024-05-05T10:00:00"}
	got := FormatResult(game.Definition{}, c, "/api/v1")
	require.Contains(t, got, "**TAI_XIU - Kết Quả Mới**")
	require.Contains(t, got, "**Kết quả:** N/A")
	require.Contains(t, got, "2024-05-05T10:00:00")
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	got := PlainText(FormatSystem("hello `world`", SeverityWarning) + "\n---")
	require.Equal(t, "🤖 System WARNING\n\nhello world\n"+strings.Repeat("-", 50), got)
}
