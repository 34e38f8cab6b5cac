// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package outbound restricts which remote hosts asset downloads may reach.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ErrNotAllowed indicates the URL failed the outbound policy.
var ErrNotAllowed = errors.New("outbound url not allowed")

// Policy lists the allowed destinations. With no Hosts and no CIDRs every
// public address is allowed. CIDRs also admit loopback and private addresses
// that are otherwise refused.
type Policy struct {
	Hosts []string
	CIDRs []string
	// Ports limits destination ports; empty allows any.
	Ports []int
}

// Guard is a compiled Policy. It is safe for concurrent use.
type Guard struct {
	hosts    map[string]struct{}
	nets     []*net.IPNet
	ports    map[int]struct{}
	resolver *net.Resolver
}

// New compiles p, rejecting malformed hosts and networks.
func New(p Policy) (*Guard, error) {
	g := &Guard{
		hosts:    make(map[string]struct{}, len(p.Hosts)),
		ports:    make(map[int]struct{}, len(p.Ports)),
		resolver: net.DefaultResolver,
	}
	for _, h := range p.Hosts {
		n, err := NormalizeHost(h)
		if err != nil {
			return nil, err
		}
		g.hosts[n] = struct{}{}
	}
	for _, entry := range p.CIDRs {
		n, err := parseNet(entry)
		if err != nil {
			return nil, err
		}
		if n != nil {
			g.nets = append(g.nets, n)
		}
	}
	for _, port := range p.Ports {
		if port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %d", port)
		}
		g.ports[port] = struct{}{}
	}
	return g, nil
}

// NormalizeHost lowercases a bare host and converts IDNs to their ASCII form.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	switch {
	case host == "":
		return "", errors.New("host is empty")
	case strings.Contains(host, "://"):
		return "", fmt.Errorf("host must not include scheme: %s", raw)
	case strings.ContainsAny(host, "/@%"):
		return "", fmt.Errorf("host must be a bare name or address: %s", raw)
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	if strings.Contains(host, ":") {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// Check verifies u against the policy, resolving its host.
func (g *Guard) Check(ctx context.Context, u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrNotAllowed, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in url", ErrNotAllowed)
	}
	port, err := urlPort(u, scheme)
	if err != nil {
		return err
	}
	if len(g.ports) > 0 {
		if _, ok := g.ports[port]; !ok {
			return fmt.Errorf("%w: port %d", ErrNotAllowed, port)
		}
	}
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAllowed, err)
	}

	ips, err := g.resolve(ctx, host)
	if err != nil {
		return err
	}
	_, hostListed := g.hosts[host]
	inNets := false
	for _, ip := range ips {
		listed := g.inNets(ip)
		if blocked(ip) && !listed {
			return fmt.Errorf("%w: blocked address %s", ErrNotAllowed, ip)
		}
		inNets = inNets || listed
	}
	if len(g.hosts) == 0 && len(g.nets) == 0 {
		return nil
	}
	if !hostListed && !inNets {
		return fmt.Errorf("%w: %s", ErrNotAllowed, host)
	}
	return nil
}

func (g *Guard) resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve host %q: %w", host, err)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if a.IP != nil {
			ips = append(ips, a.IP)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("resolve host %q: no addresses", host)
	}
	return ips, nil
}

func (g *Guard) inNets(ip net.IP) bool {
	for _, n := range g.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func blocked(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast()
}

func urlPort(u *url.URL, scheme string) (int, error) {
	if u.Port() == "" {
		if scheme == "https" {
			return 443, nil
		}
		return 80, nil
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", u.Port(), err)
	}
	return port, nil
}

// parseNet accepts a CIDR or a single address.
func parseNet(entry string) (*net.IPNet, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, nil
	}
	if _, n, err := net.ParseCIDR(entry); err == nil {
		return n, nil
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("invalid CIDR or IP: %s", entry)
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}
