package middleware

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"QuantLens/internal/domain/models"
	domrepo "QuantLens/internal/domain/repository"
	"QuantLens/internal/service/ratelimit"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, s *models.ChainSnapshot) error
}

// SnapshotPipeline sits between the chain feed and the processor.
// It validates, throttles per underlying, and buffers when downstream is unavailable.
type SnapshotPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	limiter *ratelimit.Limiter
	bufSize int
	bufCh   chan *models.ChainSnapshot
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

type PipelineOption func(*SnapshotPipeline)

// WithMaxRPS sets the max snapshots per second per underlying.
func WithMaxRPS(rps float64) PipelineOption {
	return func(p *SnapshotPipeline) {
		if rps > 0 {
			p.limiter = ratelimit.New(rps, 1)
		}
	}
}

// WithBufferSize sets the retry buffer size used while downstream fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func NewSnapshotPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *SnapshotPipeline {
	p := &SnapshotPipeline{
		proc:    proc,
		metrics: metrics,
		limiter: ratelimit.New(1, 1),
		bufSize: 256,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.ChainSnapshot, p.bufSize)
	return p
}

// Start launches the background flush of buffered snapshots.
func (p *SnapshotPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case s := <-p.bufCh:
				if err := p.proc.Process(ctx, s); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					select {
					case p.bufCh <- s:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

// Stop stops the background flush and waits for it to exit.
func (p *SnapshotPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()
}

// Buffered returns the number of snapshots waiting for a retry.
func (p *SnapshotPipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles and forwards s, buffering it on downstream errors.
// Throttled snapshots are dropped: a newer chain supersedes them.
func (p *SnapshotPipeline) Process(ctx context.Context, s *models.ChainSnapshot) error {
	start := time.Now()
	if err := ValidateSnapshot(s); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	s.Underlying = strings.ToUpper(s.Underlying)
	if !p.limiter.Allow(s.Underlying) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, s); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- s:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// ValidateSnapshot rejects chains the surface pipeline cannot use.
func ValidateSnapshot(s *models.ChainSnapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot nil")
	}
	if strings.TrimSpace(s.Underlying) == "" {
		return fmt.Errorf("underlying empty")
	}
	if !(s.Spot > 0) || math.IsInf(s.Spot, 0) {
		return fmt.Errorf("spot invalid for %s", s.Underlying)
	}
	if len(s.Contracts) == 0 {
		return fmt.Errorf("no contracts for %s", s.Underlying)
	}
	return nil
}
