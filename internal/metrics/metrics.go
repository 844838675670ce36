// Package metrics implements Prometheus metrics for the compression
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsCompressedTotal counts packets compressed per context.
	PacketsCompressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_packets_compressed_total",
			Help: "Total number of packets compressed",
		},
		[]string{"context", "rule"},
	)

	// PacketsDecompressedTotal counts packets decompressed per context.
	PacketsDecompressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_packets_decompressed_total",
			Help: "Total number of packets decompressed",
		},
		[]string{"context", "rule"},
	)

	// ErrorsTotal counts failed operations per stage.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schc_errors_total",
			Help: "Total number of failed parse/match/compress/decompress operations",
		},
		[]string{"context", "stage"},
	)

	// CompressionRatio observes compressed size over original size.
	CompressionRatio = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schc_compression_ratio",
			Help:    "Compressed packet size divided by original packet size",
			Buckets: prometheus.LinearBuckets(0.05, 0.05, 20),
		},
		[]string{"context"},
	)

	// HeaderBitsSaved observes per-packet header bits removed.
	HeaderBitsSaved = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schc_header_bits_saved",
			Help:    "Bits removed from the headers of one packet",
			Buckets: prometheus.ExponentialBuckets(8, 2, 10),
		},
		[]string{"context"},
	)
)
