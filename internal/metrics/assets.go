// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assetFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_asset_fetch_total",
		Help: "Asset fetches by kind (image, audio), source (http, file) and result",
	}, []string{"kind", "source", "result"})

	assetFetchBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adreel_asset_fetch_bytes_total",
		Help: "Bytes read from fetched assets",
	}, []string{"kind"})
)

// IncAssetFetch records one asset fetch outcome.
func IncAssetFetch(kind, source, result string) {
	assetFetchTotal.WithLabelValues(kind, source, result).Inc()
}

// AddAssetBytes records bytes read for an asset kind.
func AddAssetBytes(kind string, n int64) {
	if n > 0 {
		assetFetchBytes.WithLabelValues(kind).Add(float64(n))
	}
}
