// Package queue carries recommendation task payloads between the submit path
// and the worker pool with at-least-once delivery.
package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler consumes one delivery. Returning an error requests redelivery.
type Handler func(ctx context.Context, payload []byte) error

// Queue is the task transport. Deliveries may repeat; consumers are expected
// to be idempotent.
type Queue interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, handle Handler) error
	Close() error
}

const defaultMemoryBuffer = 256

// Memory is an in-process queue for tests and single-node runs. A failed
// delivery goes back on the queue until maxDeliveries is reached.
type Memory struct {
	ch            chan delivery
	maxDeliveries int
	logger        *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type delivery struct {
	payload  []byte
	attempts int
}

// NewMemory creates an in-process queue. maxDeliveries bounds how often one
// payload is retried after handler errors; values below 1 mean one delivery.
func NewMemory(maxDeliveries int, logger *zap.Logger) *Memory {
	if maxDeliveries < 1 {
		maxDeliveries = 1
	}
	return &Memory{
		ch:            make(chan delivery, defaultMemoryBuffer),
		maxDeliveries: maxDeliveries,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

func (m *Memory) Publish(ctx context.Context, payload []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return context.Canceled
	case m.ch <- delivery{payload: payload}:
		return nil
	}
}

// Subscribe starts a consumer goroutine and returns immediately.
func (m *Memory) Subscribe(ctx context.Context, handle Handler) error {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case d := <-m.ch:
				d.attempts++
				if err := handle(ctx, d.payload); err != nil {
					if d.attempts >= m.maxDeliveries {
						m.logger.Error("dropping task after redelivery limit",
							zap.Int("deliveries", d.attempts),
							zap.Error(err),
						)
						continue
					}
					m.logger.Warn("task handler failed, requeueing",
						zap.Int("deliveries", d.attempts),
						zap.Error(err),
					)
					select {
					case m.ch <- d:
					case <-m.done:
						return
					}
				}
			}
		}
	}()
	return nil
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
	return nil
}
