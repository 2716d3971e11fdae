package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, maxBytes int64) (*FileStore, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "media")
	store, err := NewFileStore(root, "https://cdn.test/media/", maxBytes)
	require.NoError(t, err)
	return store, root
}

func TestUploadWritesFileAndReturnsURL(t *testing.T) {
	store, root := newStore(t, 1024)

	url, err := store.Upload(context.Background(), []byte("receipt"), "image/JPEG; charset=binary")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://cdn.test/media/"))
	require.True(t, strings.HasSuffix(url, ".jpg"))

	name := strings.TrimPrefix(url, "https://cdn.test/media/")
	data, err := os.ReadFile(filepath.Join(root, name))
	require.NoError(t, err)
	require.Equal(t, "receipt", string(data))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files are left behind")
}

func TestUploadGeneratesDistinctNames(t *testing.T) {
	store, _ := newStore(t, 0)

	first, err := store.Upload(context.Background(), []byte("a"), "image/png")
	require.NoError(t, err)
	second, err := store.Upload(context.Background(), []byte("a"), "image/png")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestUploadRejects(t *testing.T) {
	store, _ := newStore(t, 4)

	_, err := store.Upload(context.Background(), nil, "image/png")
	require.ErrorContains(t, err, "empty upload")

	_, err = store.Upload(context.Background(), []byte("too large"), "image/png")
	require.ErrorContains(t, err, "exceeds limit")

	_, err = store.Upload(context.Background(), []byte("x"), "text/html")
	require.ErrorIs(t, err, ErrUnsupportedType)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Upload(ctx, []byte("x"), "image/png")
	require.ErrorIs(t, err, context.Canceled)
}

func TestHandlerServesUploadedFiles(t *testing.T) {
	store, root := newStore(t, 0)
	url, err := store.Upload(context.Background(), []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	name := filepath.Base(url)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o600))

	srv := httptest.NewServer(http.StripPrefix("/media", store.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/media/" + name)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "%PDF-1.4", string(body))

	for _, path := range []string{"/media/", "/media/.hidden", "/media/missing.jpg"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equalf(t, http.StatusNotFound, resp.StatusCode, path)
	}
}
