// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_CollectsAllErrors(t *testing.T) {
	v := New()
	v.URL("Endpoint", "ftp://host", []string{"http", "https"})
	v.URL("Empty", "", nil)
	v.URL("NoHost", "http://", nil)
	v.Range("FPS", 0, 1, 60)
	v.FloatRange("Rate", 1.5, 0, 1)
	v.DurationRange("Tick", time.Millisecond, 10*time.Millisecond, time.Second)
	v.NotEmpty("Bin", "  ")
	v.OneOf("Exporter", "zipkin", []string{"grpc", "http"})
	v.Positive("Width", -1)
	v.ListenAddr("Listen", "no-port")

	require.False(t, v.IsValid())
	err := v.Err()
	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"Endpoint", "Empty", "NoHost", "FPS", "Rate", "Tick", "Bin", "Exporter", "Width", "Listen"}, fields)
	assert.Contains(t, err.Error(), "validation failed for FPS")
}

func TestValidator_AcceptsValidValues(t *testing.T) {
	v := New()
	v.URL("Endpoint", "https://collector:4318", []string{"http", "https"})
	v.Range("FPS", 30, 1, 60)
	v.FloatRange("Rate", 0.5, 0, 1)
	v.DurationRange("Tick", 100*time.Millisecond, 10*time.Millisecond, 0)
	v.OneOf("Exporter", "GRPC", []string{"grpc", "http"})
	v.ListenAddr("Listen", ":8088")
	v.ListenAddr("Listen", "127.0.0.1:0")
	assert.True(t, v.IsValid())
	assert.NoError(t, v.Err())
}

func TestValidator_Directory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	v := New()
	v.Directory("Created", filepath.Join(root, "new", "dir"), false)
	assert.True(t, v.IsValid())
	assert.DirExists(t, filepath.Join(root, "new", "dir"))

	v.Directory("Missing", filepath.Join(root, "missing"), true)
	v.Directory("File", file, false)
	v.Directory("Empty", "", false)
	assert.Len(t, v.Err().(ValidationError).Errors(), 3)
}
