// Package feedback hands completed repetitions to a coaching service without
// ever blocking the frame-processing loop.
package feedback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/reps"
)

// DropPolicy decides which summary is lost when the queue is full.
type DropPolicy string

const (
	DropNewest DropPolicy = "drop_newest"
	DropOldest DropPolicy = "drop_oldest"
)

// Options configures a Dispatcher.
type Options struct {
	QueueSize   int
	Workers     int
	EveryNthRep int // forward rep ids 1, 1+n, 1+2n, ...; 1 forwards all
	DropPolicy  DropPolicy
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 32
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.EveryNthRep <= 0 {
		o.EveryNthRep = 1
	}
	if o.DropPolicy == "" {
		o.DropPolicy = DropNewest
	}
	return o
}

// Dispatcher is a bounded queue of repetition summaries drained by a fixed
// pool of workers that call an Analyzer. Failures are logged and counted,
// never returned to the submitter.
type Dispatcher struct {
	analyzer  Analyzer
	opts      Options
	log       *slog.Logger
	metrics   *metrics.Manager
	onMessage func(reps.Summary, *Response)

	mu     sync.Mutex // guards closed and sends on queue
	closed bool
	queue  chan reps.Summary

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher. Call Start before expecting delivery.
func NewDispatcher(a Analyzer, opts Options, log *slog.Logger, m *metrics.Manager) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		analyzer: a,
		opts:     opts,
		log:      log,
		metrics:  m,
		queue:    make(chan reps.Summary, opts.QueueSize),
	}
}

// OnMessage registers fn to receive every successful coaching response. It
// runs on a worker goroutine and must be set before Start.
func (d *Dispatcher) OnMessage(fn func(reps.Summary, *Response)) {
	d.onMessage = fn
}

// Start launches the worker pool. Workers stop when ctx is cancelled or the
// dispatcher is stopped.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for range d.opts.Workers {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.log.Info("feedback dispatcher started",
		"workers", d.opts.Workers,
		"queue_size", d.opts.QueueSize,
		"drop_policy", d.opts.DropPolicy,
	)
}

// Wants reports whether s passes the forwarding filter.
func (d *Dispatcher) Wants(s reps.Summary) bool {
	return (s.RepID-1)%d.opts.EveryNthRep == 0
}

// Submit queues s without blocking. It returns false when s was filtered
// out or dropped. Ownership of s passes to the dispatcher.
func (d *Dispatcher) Submit(s reps.Summary) bool {
	if !d.Wants(s) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.metrics.CounterFeedbackDropped.Inc()
		return false
	}

	select {
	case d.queue <- s:
		d.queued()
		return true
	default:
	}

	if d.opts.DropPolicy == DropOldest {
		select {
		case old := <-d.queue:
			d.dropped(old)
		default:
		}
		select {
		case d.queue <- s:
			d.queued()
			return true
		default:
		}
	}
	d.dropped(s)
	return false
}

func (d *Dispatcher) queued() {
	d.metrics.CounterFeedbackQueued.Inc()
	d.metrics.GaugeFeedbackQueue.Set(float64(len(d.queue)))
}

func (d *Dispatcher) dropped(s reps.Summary) {
	d.metrics.CounterFeedbackDropped.Inc()
	d.log.Debug("feedback queue full, dropping rep", "track", s.TrackID, "rep_id", s.RepID)
}

// Stop closes the queue and waits for the workers to drain it. If ctx ends
// first, in-flight requests are cancelled and the rest of the queue is
// discarded.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if d.cancel != nil {
			d.cancel()
		}
		<-done
	}
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for s := range d.queue {
		d.metrics.GaugeFeedbackQueue.Set(float64(len(d.queue)))
		if ctx.Err() != nil {
			d.metrics.CounterFeedbackDropped.Inc()
			continue
		}
		d.handle(ctx, s)
	}
}

func (d *Dispatcher) handle(ctx context.Context, s reps.Summary) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.CounterFeedbackFailed.Inc()
			d.log.Error("feedback analyzer panicked", "panic", r, "track", s.TrackID, "rep_id", s.RepID)
		}
	}()

	start := time.Now()
	resp, err := d.analyzer.Analyze(ctx, s)
	d.metrics.HistFeedbackDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		d.metrics.CounterFeedbackFailed.Inc()
		d.log.Warn("feedback request failed", "error", err, "track", s.TrackID, "rep_id", s.RepID)
		return
	}

	d.metrics.CounterFeedbackDelivered.Inc()
	d.log.Debug("coaching message", "track", s.TrackID, "rep_id", s.RepID,
		"severity", resp.Severity, "message", resp.Message)
	if d.onMessage != nil {
		d.onMessage(s, resp)
	}
}
