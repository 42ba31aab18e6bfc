// Package worker runs the asynchronous re-embedding pool.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/loomery/matchd/internal/adapters/mq/queue"
	"github.com/loomery/matchd/pkg/logger"
	"github.com/loomery/matchd/pkg/metrics"
)

// Default pool configuration constants.
const (
	defaultWorkerMultiplier = 2
	poolShutdownTimeout     = 30 * time.Second
)

// Reembedder rebuilds one entity's vector under the job's model version.
type Reembedder interface {
	Reembed(ctx context.Context, j queue.Job) error
}

// Source defines how workers receive jobs.
type Source interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Pool fans re-embed jobs out to a fixed set of workers.
type Pool struct {
	source    Source
	reembed   Reembedder
	count     int
	onFailure func(queue.Job)

	wg     sync.WaitGroup
	cancel context.CancelFunc
	logger logger.Logger
}

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.count = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithFailureHandler registers a callback for jobs that fail, typically
// used to clear the dedupe record so the job can be retried.
func WithFailureHandler(fn func(queue.Job)) Option {
	return func(p *Pool) {
		p.onFailure = fn
	}
}

// NewPool creates a re-embedding pool.
func NewPool(source Source, reembed Reembedder, opts ...Option) *Pool {
	p := &Pool{
		source:  source,
		reembed: reembed,
		count:   runtime.NumCPU() * defaultWorkerMultiplier,
		logger:  logger.Get().Named("reembed"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. They run until Stop or ctx cancellation.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	metrics.UpdateWorkerCount(p.count)
	for i := 0; i < p.count; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop cancels the workers and waits for them to drain.
func (p *Pool) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(poolShutdownTimeout):
		return fmt.Errorf("worker pool: %w", ErrShutdownTimeout)
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.Named("w" + strconv.Itoa(id))
	jobs := p.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			p.process(ctx, log, j)
		}
	}
}

func (p *Pool) process(ctx context.Context, log logger.Logger, j queue.Job) {
	start := time.Now()
	err := p.reembed.Reembed(ctx, j)
	metrics.RecordReembedLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordReembedError()
		log.Error(ctx, "re-embed failed",
			logger.String("entity", j.EntityID),
			logger.String("kind", string(j.Kind)),
			logger.Int("model_version", j.ModelVersion),
			logger.Error(err),
		)
		if p.onFailure != nil {
			p.onFailure(j)
		}
		return
	}
	metrics.RecordReembedProcessed()
}
