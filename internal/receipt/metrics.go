package receipt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_scanner_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "receipt_scanner_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Annotator metrics
	annotateRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_scanner_annotate_requests_total",
			Help: "Total number of OCR annotation requests",
		},
		[]string{"status"}, // status: success, error
	)

	annotateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "receipt_scanner_annotate_duration_seconds",
			Help:    "OCR annotation duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
	)

	// Parser metrics
	parseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "receipt_scanner_parse_duration_seconds",
			Help:    "Layout parsing duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	annotationsPerReceipt = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "receipt_scanner_annotations_per_receipt",
			Help:    "Number of OCR annotations in a parsed receipt",
			Buckets: []float64{0, 10, 50, 100, 250, 500, 1000},
		},
	)

	itemsPerReceipt = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "receipt_scanner_items_per_receipt",
			Help:    "Number of line items found in a parsed receipt",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	receiptsParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_scanner_receipts_parsed_total",
			Help: "Total number of parsed receipts",
		},
		[]string{"keyed"}, // keyed: true when merchant, date and time were all found
	)
)
