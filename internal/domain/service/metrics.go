package service

import (
	"time"
)

// Metrics defines the interface for collecting business metrics.
// This abstraction allows the application layer to remain independent of the specific monitoring implementation (e.g., Prometheus).
// Metrics 定义了收集业务指标的接口。
// 这种抽象使应用层能够独立于具体的监控实现（例如 Prometheus）。
type Metrics interface {
	// RecordStoreOperation records the outcome and latency of a record store operation.
	// RecordStoreOperation 记录授权记录存储操作的结果与延迟。
	RecordStoreOperation(operation string, errorCode string, duration time.Duration)

	// RecordCryptoTimeout records a parallel crypto batch that missed its deadline.
	// RecordCryptoTimeout 记录超时的并行加解密批次。
	RecordCryptoTimeout(operation string)

	// RecordRotation records the outcome of a rotation tick.
	// RecordRotation 记录一次密钥轮换的结果。
	RecordRotation(result string, generated, invalidated int)

	// RecordTokenSigned records a token signature.
	// RecordTokenSigned 记录一次令牌签名。
	RecordTokenSigned(keyType string, success bool)

	// RecordCacheAccess records a cache hit or miss.
	// RecordCacheAccess 记录缓存命中或未命中。
	RecordCacheAccess(cacheType string, hit bool)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordStoreOperation(string, string, time.Duration) {}
func (NoopMetrics) RecordCryptoTimeout(string)                         {}
func (NoopMetrics) RecordRotation(string, int, int)                    {}
func (NoopMetrics) RecordTokenSigned(string, bool)                     {}
func (NoopMetrics) RecordCacheAccess(string, bool)                     {}
