// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package assets resolves the image and audio references of a timeline.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	xfs "github.com/ManuGH/adreel/internal/platform/fs"
	"github.com/ManuGH/adreel/internal/platform/httpx"
	"github.com/ManuGH/adreel/internal/platform/outbound"
)

// DefaultMaxBytes caps a single asset.
const DefaultMaxBytes = 64 << 20

var (
	// ErrNotFound is returned when the referenced asset does not exist.
	ErrNotFound = errors.New("asset not found")
	// ErrUnsupportedRef is returned for reference schemes that cannot be fetched.
	ErrUnsupportedRef = errors.New("unsupported asset reference")
	// ErrTooLarge is returned when an asset exceeds the size cap.
	ErrTooLarge = errors.New("asset too large")
)

// Fetcher opens asset references: http(s) URLs, file:// URLs and plain paths.
type Fetcher struct {
	Client   *http.Client
	MaxBytes int64
	// Root confines plain paths and file:// URLs when set.
	Root string
	// Guard vets http(s) references and redirects when set.
	Guard *outbound.Guard
}

// NewFetcher returns a fetcher using the instrumented asset client.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = httpx.NewClient(0)
	}
	return &Fetcher{Client: client, MaxBytes: DefaultMaxBytes}
}

// source classifies ref for metrics and dispatch.
func source(ref string) (string, *url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// No scheme, or a Windows drive letter.
		return "file", &url.URL{Path: ref}, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return "http", u, nil
	case "file":
		return "file", u, nil
	default:
		return "", nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedRef, u.Scheme)
	}
}

// Open returns a reader for ref. The reader fails with ErrTooLarge once more
// than MaxBytes have been read.
func (f *Fetcher) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrUnsupportedRef)
	}
	kind, u, err := source(ref)
	if err != nil {
		return nil, err
	}
	var rc io.ReadCloser
	switch kind {
	case "http":
		rc, err = f.openHTTP(ctx, u)
	default:
		rc, err = f.openFile(u.Path)
	}
	if err != nil {
		return nil, err
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	return &limitedReadCloser{r: io.LimitReader(rc, limit+1), c: rc, left: limit}, nil
}

func (f *Fetcher) openHTTP(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = httpx.NewClient(0)
	}
	if f.Guard != nil {
		if err := f.Guard.Check(ctx, u); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedRef, err)
		}
		guarded := *client
		guarded.CheckRedirect = func(r *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return f.Guard.Check(r.Context(), r.URL)
		}
		client = &guarded
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u.Redacted())
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", u.Redacted(), resp.StatusCode)
	}
	return resp.Body, nil
}

func (f *Fetcher) openFile(path string) (io.ReadCloser, error) {
	path = filepath.FromSlash(path)
	if f.Root != "" {
		confined, err := xfs.Confine(f.Root, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fileErr(path, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedRef, err)
		}
		path = confined
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fileErr(path, err)
	}
	return file, nil
}

func fileErr(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("open %s: %w", path, err)
}

type limitedReadCloser struct {
	r    io.Reader
	c    io.Closer
	left int64
	n    int64
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.left {
		return n, ErrTooLarge
	}
	return n, err
}

func (l *limitedReadCloser) Close() error { return l.c.Close() }
