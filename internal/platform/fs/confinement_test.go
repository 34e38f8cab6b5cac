// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfine(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "img"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "img", "a.png"), []byte("x"), 0o600))
	require.NoError(t, os.Symlink("..", filepath.Join(root, "up")))

	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	tests := []struct {
		name    string
		target  string
		want    string
		wantErr error
	}{
		{name: "relative file", target: "img/a.png", want: filepath.Join(realRoot, "img", "a.png")},
		{name: "absolute inside", target: filepath.Join(root, "img", "a.png"), want: filepath.Join(realRoot, "img", "a.png")},
		{name: "missing leaf", target: "img/missing.png", want: filepath.Join(realRoot, "img", "missing.png")},
		{name: "dotdot", target: "../etc/passwd", wantErr: ErrOutsideRoot},
		{name: "absolute outside", target: "/etc/passwd", wantErr: ErrOutsideRoot},
		{name: "symlink escape", target: "up/x", wantErr: ErrOutsideRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Confine(root, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.NoError(t, IsRegularFile(file))
	assert.Error(t, IsRegularFile(dir))
	assert.Error(t, IsRegularFile(filepath.Join(dir, "none")))
}
