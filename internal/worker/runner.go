package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/common"
	"github.com/ternarybob/tcsync/internal/interfaces"
	"github.com/ternarybob/tcsync/internal/metrics"
)

// Runner polls the queue and hands each batch to the processor. Exactly one batch
// is in flight at a time: the portal session belongs to a single browser.
type Runner struct {
	queue     interfaces.QueueStore
	processor *Processor
	interval  time.Duration
	logger    arbor.ILogger

	mu      sync.Mutex
	running atomic.Bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRunner creates a queue runner
func NewRunner(queue interfaces.QueueStore, processor *Processor, config *common.QueueConfig, logger arbor.ILogger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		queue:     queue,
		processor: processor,
		interval:  common.Duration(config.PollInterval, time.Second),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins polling in the background
func (r *Runner) Start() {
	r.logger.Info().Dur("interval", r.interval).Msg("Starting queue runner")

	r.wg.Add(1)
	common.SafeGo(r.logger, "queue-runner", func() {
		defer r.wg.Done()
		r.loop()
	})
}

// Stop cancels the current batch and waits for the loop to exit
func (r *Runner) Stop() {
	r.logger.Info().Msg("Stopping queue runner...")
	r.cancel()
	r.wg.Wait()
	r.logger.Info().Msg("Queue runner stopped")
}

func (r *Runner) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Poll(r.ctx)
		}
	}
}

// Poll pops and processes at most one batch. It returns false when the queue was
// empty, the pop failed, or another batch is still running.
func (r *Runner) Poll(ctx context.Context) (processed bool) {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	defer r.running.Store(false)
	// A panic ends this batch only; the loop keeps polling.
	defer common.Recover(r.logger, "queue-batch")

	r.mu.Lock()
	defer r.mu.Unlock()

	payload, ok, err := r.queue.Pop(ctx)
	if err != nil {
		metrics.QueuePopErrors.Inc()
		r.logger.Error().Err(err).Msg("Failed to pop batch from queue")
		return false
	}
	if !ok {
		return false
	}

	r.processor.ProcessBatch(ctx, payload)
	return true
}

// Running reports whether a batch is being processed
func (r *Runner) Running() bool {
	return r.running.Load()
}
