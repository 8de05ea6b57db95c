package headless

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

func gameDefinition(t *testing.T) game.Definition {
	t.Helper()
	def, ok := game.Lookup(game.BanDo)
	require.True(t, ok)
	return def
}
