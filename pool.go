package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segvista/seg-overlay-service/onnx"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

// PipelineSessionPool hands out whole pipeline sessions, one per pass.
type PipelineSessionPool struct {
	sessions   chan *onnx.PipelineSession
	size       int
	sessionCfg onnx.SessionConfig
	mu         sync.Mutex
	closed     bool
	metrics    *PoolMetrics
	lastErrors []error
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

func NewPipelineSessionPool(sessionCfg onnx.SessionConfig, size int) (*PipelineSessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &PipelineSessionPool{
		sessions:   make(chan *onnx.PipelineSession, size),
		size:       size,
		sessionCfg: sessionCfg,
		metrics:    &PoolMetrics{},
	}

	// Initialize sessions
	for i := 0; i < size; i++ {
		session, err := onnx.NewPipelineSession(sessionCfg)
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	// Start health check routine
	go pool.healthCheck()

	return pool, nil
}

func (p *PipelineSessionPool) Acquire(ctx context.Context) (*onnx.PipelineSession, error) {
	if p.closed {
		return nil, fmt.Errorf("pool is closed")
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	select {
	case session := <-p.sessions:
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-time.After(AcquireTimeout):
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available session")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PipelineSessionPool) Release(session *onnx.PipelineSession) {
	if p.closed {
		session.Destroy()
		return
	}

	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.sessions <- session
}

func (p *PipelineSessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)

	// Destroy all sessions
	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *PipelineSessionPool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if p.closed {
			return
		}

		p.mu.Lock()
		currentSize := len(p.sessions)
		p.mu.Unlock()

		// Check if we need to recreate any sessions
		if currentSize < p.size {
			p.replenishSessions(p.size - currentSize)
		}
	}
}

func (p *PipelineSessionPool) replenishSessions(count int) {
	for i := 0; i < count; i++ {
		session, err := onnx.NewPipelineSession(p.sessionCfg)
		if err != nil {
			p.recordError(err)
			continue
		}
		p.sessions <- session
	}
}

func (p *PipelineSessionPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

// PoolMetricsSnapshot is a copyable view of the pool counters.
type PoolMetricsSnapshot struct {
	InUse           int
	TotalAcquired   int64
	TotalReleased   int64
	AcquireFailures int64
}

func (p *PipelineSessionPool) GetMetrics() PoolMetricsSnapshot {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolMetricsSnapshot{
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
	}
}
