// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/adreel/internal/platform/outbound"
)

func newAssetServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readAll(t *testing.T, f *Fetcher, ref string) (string, error) {
	t.Helper()
	rc, err := f.Open(context.Background(), ref)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	return string(b), err
}

func TestFetcher_HTTP(t *testing.T) {
	srv := newAssetServer(t, map[string]string{"/a.txt": "hello"})
	f := NewFetcher(srv.Client())

	got, err := readAll(t, f, srv.URL+"/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = readAll(t, f, srv.URL+"/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = readAll(t, f, srv.URL+"/boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestFetcher_Files(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(p, []byte("local"), 0o600))
	f := NewFetcher(nil)

	got, err := readAll(t, f, p)
	require.NoError(t, err)
	assert.Equal(t, "local", got)

	got, err = readAll(t, f, "file://"+filepath.ToSlash(p))
	require.NoError(t, err)
	assert.Equal(t, "local", got)

	_, err = readAll(t, f, filepath.Join(dir, "none"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetcher_Rejects(t *testing.T) {
	f := NewFetcher(nil)
	for _, ref := range []string{"", "  ", "ftp://host/x", "blob:abc"} {
		_, err := f.Open(context.Background(), ref)
		assert.ErrorIs(t, err, ErrUnsupportedRef, ref)
	}
}

func TestFetcher_MaxBytes(t *testing.T) {
	srv := newAssetServer(t, map[string]string{"/big": strings.Repeat("x", 100)})
	f := NewFetcher(srv.Client())
	f.MaxBytes = 10

	_, err := readAll(t, f, srv.URL+"/big")
	assert.ErrorIs(t, err, ErrTooLarge)

	f.MaxBytes = 100
	got, err := readAll(t, f, srv.URL+"/big")
	require.NoError(t, err)
	assert.Len(t, got, 100)
}

func TestFetcher_RootConfinement(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "in.txt"), []byte("in"), 0o600))
	outside := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(outside, []byte("out"), 0o600))

	f := NewFetcher(nil)
	f.Root = root

	got, err := readAll(t, f, "in.txt")
	require.NoError(t, err)
	assert.Equal(t, "in", got)

	_, err = readAll(t, f, outside)
	assert.ErrorIs(t, err, ErrUnsupportedRef)

	_, err = readAll(t, f, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetcher_Guard(t *testing.T) {
	srv := newAssetServer(t, map[string]string{"/a.txt": "hello"})
	mux := http.NewServeMux()
	mux.HandleFunc("/jump", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://10.0.0.1/secret", http.StatusFound)
	})
	redirector := httptest.NewServer(mux)
	t.Cleanup(redirector.Close)

	f := NewFetcher(srv.Client())
	open, err := outbound.New(outbound.Policy{})
	require.NoError(t, err)
	f.Guard = open
	_, err = readAll(t, f, srv.URL+"/a.txt")
	assert.ErrorIs(t, err, ErrUnsupportedRef, "loopback test server is refused by default")

	local, err := outbound.New(outbound.Policy{CIDRs: []string{"127.0.0.1"}})
	require.NoError(t, err)
	f.Guard = local
	got, err := readAll(t, f, srv.URL+"/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = readAll(t, f, redirector.URL+"/jump")
	require.Error(t, err)
	assert.ErrorIs(t, err, outbound.ErrNotAllowed)
}
