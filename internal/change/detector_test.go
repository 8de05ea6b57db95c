package change

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

func candidate(fp string) game.Candidate {
	return game.Candidate{Fingerprint: fp}
}

func TestIsNewColdStartRepeatAndChange(t *testing.T) {
	t.Parallel()

	d := New()
	require.True(t, d.IsNew(game.TaiXiu, candidate("a")))
	fp, ok := d.LastSeen(game.TaiXiu)
	require.True(t, ok)
	require.Equal(t, "a", fp)

	require.False(t, d.IsNew(game.TaiXiu, candidate("a")))
	require.True(t, d.IsNew(game.TaiXiu, candidate("b")))
	require.True(t, d.IsNew(game.TaiXiu, candidate("a")))
}

func TestRevertRestoresPrevious(t *testing.T) {
	t.Parallel()

	d := New()
	require.True(t, d.IsNew(game.TaiXiu, candidate("a")))
	require.True(t, d.IsNew(game.TaiXiu, candidate("b")))
	require.True(t, d.Revert(game.TaiXiu, "b", "a", true))
	fp, _ := d.LastSeen(game.TaiXiu)
	require.Equal(t, "a", fp)
	require.True(t, d.IsNew(game.TaiXiu, candidate("b")), "reverted result is new again")

	// stale revert is ignored
	require.False(t, d.Revert(game.TaiXiu, "zzz", "a", true))
	fp, _ = d.LastSeen(game.TaiXiu)
	require.Equal(t, "b", fp)
}

func TestRevertClearsColdStart(t *testing.T) {
	t.Parallel()

	d := New()
	require.True(t, d.IsNew(game.BanDo, candidate("x")))
	require.True(t, d.Revert(game.BanDo, "x", "", false))
	_, ok := d.LastSeen(game.BanDo)
	require.False(t, ok)
	require.True(t, d.IsNew(game.BanDo, candidate("x")))
}

func TestIsNewPerGameType(t *testing.T) {
	t.Parallel()

	d := New()
	require.True(t, d.IsNew(game.TaiXiu, candidate("same")))
	require.True(t, d.IsNew(game.BanDo, candidate("same")))
	require.False(t, d.IsNew(game.BanDo, candidate("same")))
}

func TestIsNewIgnoresOtherFields(t *testing.T) {
	t.Parallel()

	d := New()
	require.True(t, d.IsNew(game.TaiXiu, game.Candidate{Result: "tai", Fingerprint: "x"}))
	require.False(t, d.IsNew(game.TaiXiu, game.Candidate{Result: "xiu", SessionID: "other", Fingerprint: "x"}))
}

func TestIsNewConcurrentConfirmsOnce(t *testing.T) {
	t.Parallel()

	d := New()
	var (
		wg        sync.WaitGroup
		confirmed atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.IsNew(game.TaiXiu, candidate("race")) {
				confirmed.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), confirmed.Load())
}

func TestSeed(t *testing.T) {
	t.Parallel()

	d := New()
	d.Seed(game.BanDo, "")
	_, ok := d.LastSeen(game.BanDo)
	require.False(t, ok)

	d.Seed(game.BanDo, "stored")
	require.False(t, d.IsNew(game.BanDo, candidate("stored")))
}
