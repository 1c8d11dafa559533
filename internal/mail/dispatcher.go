package mail

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/metrics"
)

var (
	// ErrQueueFull is returned by Enqueue when the buffer has no room.
	ErrQueueFull = errors.New("mail queue full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("mail dispatcher closed")
)

// Job is one message plus an optional completion hook, called from the worker
// goroutine with the delivery error (nil on success).
type Job struct {
	Message Message
	OnDone  func(ctx context.Context, err error)
}

// DispatcherConfig sizes a Dispatcher.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher delivers mail asynchronously on a fixed pool of workers.
// Enqueue never blocks: a full queue drops the job.
type Dispatcher struct {
	mailer  Mailer
	logger  *zap.Logger
	cfg     DispatcherConfig
	jobs    chan Job
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// mu orders Enqueue's send against Close so accepted jobs are always drained.
	mu     sync.RWMutex
	closed bool

	startOnce sync.Once
	closeOnce sync.Once
}

// NewDispatcher creates a Dispatcher. Call Start before enqueueing.
func NewDispatcher(mailer Mailer, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		mailer: mailer,
		logger: logger,
		cfg:    cfg,
		jobs:   make(chan Job, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.run()
		}
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobs:
			d.deliver(job)
		case <-d.done:
			for {
				select {
				case job := <-d.jobs:
					d.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	err := d.mailer.Send(ctx, job.Message)
	if err != nil {
		metrics.MailSent.WithLabelValues("error").Inc()
		d.logger.Error("mail delivery failed",
			zap.String("to", MaskEmail(job.Message.To)),
			zap.String("subject", job.Message.Subject),
			zap.Error(err))
	} else {
		metrics.MailSent.WithLabelValues("ok").Inc()
	}
	if job.OnDone != nil {
		job.OnDone(ctx, err)
	}
}

// Enqueue hands a job to the workers without blocking.
func (d *Dispatcher) Enqueue(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop()
		return ErrClosed
	}
	select {
	case d.jobs <- job:
		return nil
	default:
		d.drop()
		return ErrQueueFull
	}
}

// Send enqueues a bare message. It satisfies the same shape as Mailer so
// callers can switch between synchronous and queued delivery.
func (d *Dispatcher) Send(_ context.Context, msg Message) error {
	return d.Enqueue(Job{Message: msg})
}

func (d *Dispatcher) drop() {
	d.dropped.Add(1)
	metrics.MailDropped.Inc()
}

// Dropped reports how many jobs were rejected.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting jobs, drains the queue and waits for the workers or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
	})
	waited := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
