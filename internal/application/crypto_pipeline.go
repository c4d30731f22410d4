// Package application provides the application layer services: the authorization
// record store, signing key rotation and token signing.
package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/domain/service"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
)

var errCryptoTimeout = stderrors.New("crypto task timed out")

// CryptoPipeline runs up to one cipher call per token field concurrently. Each call
// has its own timer and the whole batch an overall one. A batch either yields every
// result or fails; a call that finishes after its deadline is dropped, not cancelled.
type CryptoPipeline struct {
	taskTimeout    time.Duration
	overallTimeout time.Duration
	metrics        service.Metrics
}

// NewCryptoPipeline creates a pipeline with the configured timeouts.
func NewCryptoPipeline(cfg config.CryptoConfig, metrics service.Metrics) *CryptoPipeline {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	task := cfg.Timeout
	if task <= 0 {
		task = constants.DefaultCryptoTimeout
	}
	overall := cfg.OverallTimeout
	if overall <= 0 {
		overall = task
	}
	return &CryptoPipeline{taskTimeout: task, overallTimeout: overall, metrics: metrics}
}

type cryptoResult struct {
	value string
	err   error
}

// Run applies fn to every input and returns the outputs under the same keys.
func (p *CryptoPipeline) Run(ctx context.Context, operation string, fn func(string) (string, error), inputs map[string]string) (map[string]string, error) {
	outputs := make(map[string]string, len(inputs))
	if len(inputs) == 0 {
		return outputs, nil
	}

	overall, cancel := context.WithTimeout(ctx, p.overallTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(overall)

	var mu sync.Mutex
	for field, input := range inputs {
		// Buffered so the worker never blocks once nobody waits for it.
		resultCh := make(chan cryptoResult, 1)
		go func() {
			value, err := fn(input)
			resultCh <- cryptoResult{value: value, err: err}
		}()

		g.Go(func() error {
			timer := time.NewTimer(p.taskTimeout)
			defer timer.Stop()
			select {
			case r := <-resultCh:
				if r.err != nil {
					return errors.ErrCryptoFailure(fmt.Sprintf("%s of %s failed", operation, field)).WithCause(r.err)
				}
				mu.Lock()
				outputs[field] = r.value
				mu.Unlock()
				return nil
			case <-timer.C:
				return errCryptoTimeout
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	if err := g.Wait(); err != nil {
		if _, ok := errors.AsAppError(err); ok {
			return nil, err
		}
		if stderrors.Is(err, errCryptoTimeout) || stderrors.Is(err, context.DeadlineExceeded) {
			p.metrics.RecordCryptoTimeout(operation)
			return nil, errors.ErrCryptoFailure(fmt.Sprintf("%s timed out", operation)).WithCause(err)
		}
		return nil, errors.ErrCryptoFailure(fmt.Sprintf("%s aborted", operation)).WithCause(err)
	}
	return outputs, nil
}
