// Package worker runs readers and writers against a shared database.
package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/matveylogee/OS-HW2-BMW/metrics"
	"github.com/matveylogee/OS-HW2-BMW/rwdb"
)

const (
	// DefaultMaxValue is the largest value a writer stores by default.
	DefaultMaxValue = 100
	// MaxValueLimit bounds Options.MaxValue. Readers compute Fibonacci of the
	// stored value while holding shared access, so values stay small.
	MaxValueLimit = 10000
)

// Store is the part of the database a worker uses.
type Store interface {
	View(ctx context.Context, fn func(data []int32)) error
	Update(ctx context.Context, fn func(data []int32)) error
}

// Options describe a single worker.
type Options struct {
	Role rwdb.Role
	ID   int
	// Iterations is the number of protected operations to perform.
	Iterations int
	// Think is the pause between an operation and the next entry.
	Think time.Duration
	// Hold is the pause inside the critical section. It ends early when the
	// context passed to Run is done.
	Hold time.Duration
	// MaxValue bounds the values written, [1, MaxValue]. Zero means
	// DefaultMaxValue, anything above MaxValueLimit is clamped to it.
	MaxValue int
	// Seed fixes the random stream. Zero seeds from the spawn time and pid.
	Seed uint64
}

// Worker is a reader or a writer.
type Worker struct {
	opts    Options
	db      Store
	log     *zap.Logger
	clock   clockwork.Clock
	metrics *metrics.Metrics
	rng     *rand.Rand
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger; the worker adds its role and id to it.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.log = l }
}

// WithClock sets the clock used for think and hold pauses.
func WithClock(c clockwork.Clock) Option {
	return func(w *Worker) { w.clock = c }
}

// WithMetrics sets where operations, failures and waits are reported.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// New creates a worker. Nothing runs until Run is called.
func New(db Store, opts Options, options ...Option) *Worker {
	switch {
	case opts.MaxValue <= 0:
		opts.MaxValue = DefaultMaxValue
	case opts.MaxValue > MaxValueLimit:
		opts.MaxValue = MaxValueLimit
	}
	w := &Worker{
		opts: opts,
		db:   db,
		log:  zap.NewNop(),
	}
	for _, o := range options {
		o(w)
	}
	if w.clock == nil {
		w.clock = clockwork.NewRealClock()
	}
	if w.metrics == nil {
		w.metrics = metrics.New(prometheus.NewRegistry())
	}
	w.log = w.log.With(zap.Stringer("role", opts.Role), zap.Int("worker", opts.ID))

	seed := opts.Seed
	if seed == 0 {
		// время и pid, поток у каждого воркера свой
		seed = uint64(w.clock.Now().UnixNano()) ^ uint64(os.Getpid())<<16
	}
	w.rng = rand.New(rand.NewPCG(seed, uint64(opts.ID)))
	return w
}

// Role returns the worker role.
func (w *Worker) Role() rwdb.Role {
	return w.opts.Role
}

// ID returns the worker id.
func (w *Worker) ID() int {
	return w.opts.ID
}

// Run performs the configured number of operations. It returns the number of
// completed operations and the first error, after which the worker stops.
func (w *Worker) Run(ctx context.Context) (int, error) {
	done := 0
	for i := 0; i < w.opts.Iterations; i++ {
		var err error
		switch w.opts.Role {
		case rwdb.Reader:
			err = w.read(ctx, i)
		case rwdb.Writer:
			err = w.write(ctx, i)
		default:
			err = fmt.Errorf("unknown role %v", w.opts.Role)
		}
		if err != nil {
			w.metrics.Failure(w.opts.Role)
			w.log.Error("worker stopped", zap.Int("iteration", i), zap.Error(err))
			return done, fmt.Errorf("%s %d: %w", w.opts.Role, w.opts.ID, err)
		}
		done++
		w.metrics.Operation(w.opts.Role)

		if i+1 < w.opts.Iterations && w.opts.Think > 0 {
			w.clock.Sleep(w.opts.Think)
		}
	}
	return done, nil
}

func (w *Worker) read(ctx context.Context, iteration int) error {
	start := w.clock.Now()
	return w.db.View(ctx, func(data []int32) {
		w.metrics.Wait(rwdb.Reader, w.clock.Since(start))

		index := w.rng.IntN(len(data))
		value := data[index]
		w.log.Info("read",
			zap.Int("iteration", iteration),
			zap.Int("index", index),
			zap.Int32("value", value),
			zap.Stringer("fibonacci", Fibonacci(value)),
		)
		w.hold(ctx)
	})
}

func (w *Worker) write(ctx context.Context, iteration int) error {
	start := w.clock.Now()
	return w.db.Update(ctx, func(data []int32) {
		w.metrics.Wait(rwdb.Writer, w.clock.Since(start))

		index := w.rng.IntN(len(data))
		old := data[index]
		value := int32(w.rng.IntN(w.opts.MaxValue) + 1)
		data[index] = value
		w.log.Info("write",
			zap.Int("iteration", iteration),
			zap.Int("index", index),
			zap.Int32("old", old),
			zap.Int32("new", value),
		)
		w.hold(ctx)
	})
}

func (w *Worker) hold(ctx context.Context) {
	if w.opts.Hold <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-w.clock.After(w.opts.Hold):
	}
}
