package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type bufferWriter struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (w *bufferWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestPutObjectPrefixesAndCloses(t *testing.T) {
	t.Parallel()

	var (
		gotObject, gotType string
		w                  = &bufferWriter{}
	)
	store, err := newStore(Config{Bucket: "results", Prefix: "/snapshots/"}, func(_ context.Context, bucket, object, contentType string) io.WriteCloser {
		require.Equal(t, "results", bucket)
		gotObject, gotType = object, contentType
		return w
	})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "/ban_do/abc.json", "application/json", []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, "gs://results/snapshots/ban_do/abc.json", uri)
	require.Equal(t, "snapshots/ban_do/abc.json", gotObject)
	require.Equal(t, "application/json", gotType)
	require.Equal(t, "{}", w.String())
	require.True(t, w.closed)
}

func TestPutObjectCloseError(t *testing.T) {
	t.Parallel()

	store, err := newStore(Config{Bucket: "results"}, func(context.Context, string, string, string) io.WriteCloser {
		return &bufferWriter{closeErr: errors.New("quota")}
	})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "x", "", []byte("y"))
	require.ErrorContains(t, err, "quota")
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = newStore(Config{}, nil)
	require.Error(t, err)
	_, err = store(t).PutObject(context.Background(), " ", "", nil)
	require.Error(t, err)
}

func store(t *testing.T) *BlobStore {
	t.Helper()
	s, err := newStore(Config{Bucket: "b"}, func(context.Context, string, string, string) io.WriteCloser {
		return &bufferWriter{}
	})
	require.NoError(t, err)
	return s
}
