// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fs keeps local asset paths inside a configured root.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path resolves outside its root.
var ErrOutsideRoot = errors.New("path escapes root")

// Confine resolves target against root and returns the symlink-free path, which is
// guaranteed to lie under root. Relative targets are joined to root; absolute
// targets must already point below it.
func Confine(root, target string) (string, error) {
	if strings.Contains(target, "\\") && filepath.Separator != '\\' {
		return "", fmt.Errorf("%w: backslash in %q", ErrOutsideRoot, target)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", err
	}

	full := filepath.Clean(target)
	if !filepath.IsAbs(full) {
		if full == ".." || strings.HasPrefix(full, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
		}
		full = filepath.Join(realRoot, full)
	}

	real, err := filepath.EvalSymlinks(full)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		// Missing leaf: resolve the parent so the caller gets a not-exist error on open.
		parent, perr := filepath.EvalSymlinks(filepath.Dir(full))
		if perr != nil {
			return "", perr
		}
		real = filepath.Join(parent, filepath.Base(full))
	default:
		return "", fmt.Errorf("resolve %s: %w", target, err)
	}

	rel, err := filepath.Rel(realRoot, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	return real, nil
}

// IsRegularFile returns an error unless path is an existing regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}
