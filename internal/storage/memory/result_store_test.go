package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/storage"
)

func TestResultStoreAppendOnlyNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	ctx := context.Background()
	for _, fp := range []string{"a", "b", "a"} {
		_, err := store.Save(ctx, game.TaiXiu, "s-"+fp, fp, []byte(`{"result_md5":"`+fp+`"}`))
		require.NoError(t, err)
	}
	_, err := store.Save(ctx, game.BanDo, "s", "z", []byte(`{}`))
	require.NoError(t, err)

	count, err := store.Count(ctx, game.TaiXiu)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	latest, err := store.Latest(ctx, game.TaiXiu, 2, 0)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, "a", latest[0].Fingerprint)
	require.Equal(t, "b", latest[1].Fingerprint)
	require.NotEqual(t, latest[0].ID, latest[1].ID)

	page, err := store.Latest(ctx, game.TaiXiu, 10, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "s-a", page[0].SessionID)

	empty, err := store.Latest(ctx, game.TaiXiu, 10, 5)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestResultStoreCopiesPayload(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	payload := []byte(`{"result":"1"}`)
	_, err := store.Save(context.Background(), game.BanDo, "s", "f", payload)
	require.NoError(t, err)
	payload[2] = 'X'

	got, err := store.Latest(context.Background(), game.BanDo, 1, 0)
	require.NoError(t, err)
	require.JSONEq(t, `{"result":"1"}`, string(got[0].Payload))
}

func TestResultStoreRejectsBadPage(t *testing.T) {
	t.Parallel()

	_, err := NewResultStore().Latest(context.Background(), game.BanDo, 0, 0)
	require.True(t, errors.Is(err, storage.ErrInvalidPage))
}
