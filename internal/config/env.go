// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/adreel/internal/log"
)

// EnvPrefix prefixes every environment key the loader reads.
const EnvPrefix = "ADREEL_"

// parseEnv reads key with parse, falling back to def when the variable is unset,
// empty or invalid. The chosen source is logged at debug level.
func parseEnv[T any](logger zerolog.Logger, key string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Interface("default", def).Str("source", "default").Msg("using default value")
		return def
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Interface("default", def).Err(err).
			Msg("invalid environment variable, using default")
		return def
	}
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	return parsed
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "secret")
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseList(s string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// ParseString reads a string variable.
func ParseString(key, def string) string {
	return parseEnv(log.WithComponent("config"), key, def, func(s string) (string, error) { return s, nil })
}

// ParseInt reads an integer variable.
func ParseInt(key string, def int) int {
	return parseEnv(log.WithComponent("config"), key, def, strconv.Atoi)
}

// ParseInt64 reads a 64-bit integer variable.
func ParseInt64(key string, def int64) int64 {
	return parseEnv(log.WithComponent("config"), key, def, func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	})
}

// ParseFloat reads a float variable.
func ParseFloat(key string, def float64) float64 {
	return parseEnv(log.WithComponent("config"), key, def, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseBool reads a boolean variable: true/false, 1/0, yes/no, on/off.
func ParseBool(key string, def bool) bool {
	return parseEnv(log.WithComponent("config"), key, def, parseBool)
}

// ParseDuration reads a Go duration such as "5s".
func ParseDuration(key string, def time.Duration) time.Duration {
	return parseEnv(log.WithComponent("config"), key, def, time.ParseDuration)
}

// ParseList reads a comma-separated list.
func ParseList(key string, def []string) []string {
	return parseEnv(log.WithComponent("config"), key, def, parseList)
}
