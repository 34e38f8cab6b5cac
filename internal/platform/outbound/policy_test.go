// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package outbound

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"Example.COM.":   "example.com",
		"bücher.example": "xn--bcher-kva.example",
		"[::1]":          "::1",
		" 192.0.2.1 ":    "192.0.2.1",
	}
	for in, want := range cases {
		got, err := NormalizeHost(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "http://x", "x/y", "u@x", "x:80", "fe80::1%eth0"} {
		_, err := NormalizeHost(bad)
		assert.Error(t, err, bad)
	}
}

func TestGuard_Check(t *testing.T) {
	open, err := New(Policy{})
	require.NoError(t, err)
	listed, err := New(Policy{Hosts: []string{"192.0.2.10"}, CIDRs: []string{"127.0.0.0/8"}, Ports: []int{443, 8443}})
	require.NoError(t, err)

	cases := []struct {
		name  string
		guard *Guard
		raw   string
		ok    bool
	}{
		{"public address open policy", open, "http://192.0.2.44/a.png", true},
		{"loopback refused", open, "http://127.0.0.1/a.png", false},
		{"private refused", open, "http://10.1.2.3/a.png", false},
		{"link local refused", open, "http://169.254.169.254/latest", false},
		{"ipv6 loopback refused", open, "http://[::1]/a.png", false},
		{"ftp refused", open, "ftp://192.0.2.44/a.png", false},
		{"credentials refused", open, "https://u:p@192.0.2.44/a.png", false},
		{"listed host", listed, "https://192.0.2.10/a.png", true},
		{"unlisted host", listed, "https://192.0.2.11/a.png", false},
		{"listed cidr admits loopback", listed, "https://127.0.0.1:8443/a.png", true},
		{"port not listed", listed, "http://192.0.2.10/a.png", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.guard.Check(context.Background(), mustURL(t, tc.raw))
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrNotAllowed)
		})
	}
}

func TestNew_RejectsMalformed(t *testing.T) {
	_, err := New(Policy{CIDRs: []string{"10.0.0.0/33"}})
	assert.Error(t, err)
	_, err = New(Policy{Hosts: []string{"a/b"}})
	assert.Error(t, err)
	_, err = New(Policy{Ports: []int{70000}})
	assert.Error(t, err)
}
