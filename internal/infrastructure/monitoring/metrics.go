package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/authstore/internal/domain/service"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	StoreOperations        *prometheus.CounterVec
	StoreOperationLatency  *prometheus.HistogramVec
	CryptoTimeouts         *prometheus.CounterVec
	Rotations              *prometheus.CounterVec
	SigningKeysGenerated   prometheus.Counter
	SigningKeysInvalidated prometheus.Counter
	TokensSigned           *prometheus.CounterVec
	CacheRequests          *prometheus.CounterVec
	HTTPRequests           *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

var _ service.Metrics = (*Metrics)(nil)

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StoreOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authstore_store_operations_total",
				Help: "Total number of authorization record store operations.",
			},
			[]string{"operation", "result"},
		),
		StoreOperationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authstore_store_operation_duration_seconds",
				Help:    "Latency of authorization record store operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CryptoTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authstore_crypto_timeouts_total",
				Help: "Parallel encrypt or decrypt batches that missed their deadline.",
			},
			[]string{"operation"},
		),
		Rotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authstore_key_rotations_total",
				Help: "Signing key rotation ticks by result.",
			},
			[]string{"result"},
		),
		SigningKeysGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "authstore_signing_keys_generated_total",
			Help: "Signing keys generated by rotation.",
		}),
		SigningKeysInvalidated: factory.NewCounter(prometheus.CounterOpts{
			Name: "authstore_signing_keys_invalidated_total",
			Help: "Signing keys invalidated by rotation.",
		}),
		TokensSigned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authstore_tokens_signed_total",
				Help: "Access tokens signed.",
			},
			[]string{"key_type", "result"},
		),
		CacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authstore_cache_requests_total",
				Help: "Cache lookups by cache and result.",
			},
			[]string{"cache", "result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authstore_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authstore_http_request_duration_seconds",
				Help:    "Latency of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordStoreOperation records the outcome and latency of a store operation. An
// empty errorCode means success.
func (m *Metrics) RecordStoreOperation(operation string, errorCode string, duration time.Duration) {
	result := "success"
	if errorCode != "" {
		result = errorCode
	}
	m.StoreOperations.WithLabelValues(operation, result).Inc()
	m.StoreOperationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordCryptoTimeout(operation string) {
	m.CryptoTimeouts.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordRotation(result string, generated, invalidated int) {
	m.Rotations.WithLabelValues(result).Inc()
	m.SigningKeysGenerated.Add(float64(generated))
	m.SigningKeysInvalidated.Add(float64(invalidated))
}

func (m *Metrics) RecordTokenSigned(keyType string, success bool) {
	m.TokensSigned.WithLabelValues(keyType, resultLabel(success)).Inc()
}

func (m *Metrics) RecordCacheAccess(cacheType string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheRequests.WithLabelValues(cacheType, result).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
