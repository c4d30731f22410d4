package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordStoreOperation("save", "", 10*time.Millisecond)
	m.RecordStoreOperation("save", "persistence_contention", time.Millisecond)
	m.RecordRotation("rotated", 1, 2)
	m.RecordTokenSigned("EC", true)
	m.RecordCacheAccess("client_accessibility", false)
	m.RecordCryptoTimeout("encrypt")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("save", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("save", "persistence_contention")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SigningKeysGenerated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SigningKeysInvalidated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensSigned.WithLabelValues("EC", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("client_accessibility", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CryptoTimeouts.WithLabelValues("encrypt")))
}
