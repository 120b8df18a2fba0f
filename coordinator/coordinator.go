// Package coordinator sets up the shared database, runs the workers and
// releases everything afterwards.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matveylogee/OS-HW2-BMW/config"
	"github.com/matveylogee/OS-HW2-BMW/fault"
	"github.com/matveylogee/OS-HW2-BMW/metrics"
	"github.com/matveylogee/OS-HW2-BMW/rwdb"
	"github.com/matveylogee/OS-HW2-BMW/worker"
)

// Report summarizes a run.
type Report struct {
	RunID   string
	Readers int
	Writers int
	// Reads and Writes count completed operations.
	Reads  int
	Writes int
	// Failed counts workers that stopped on an error.
	Failed int
	// Interrupted is set when the run was cancelled before all workers
	// finished. The workers were abandoned, the resources released.
	Interrupted bool
	Elapsed     time.Duration
	// Final is the data as the last worker left it. Nil if interrupted.
	Final []int32
}

// Coordinator runs readers and writers over one database.
type Coordinator struct {
	cfg     config.Config
	log     *zap.Logger
	clock   clockwork.Clock
	metrics *metrics.Metrics
	seed    uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithClock sets the clock used by the coordinator and the workers.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithMetrics sets the metrics the database and workers report to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithSeed makes the workers' random streams reproducible: worker i gets
// seed+i. Zero keeps time based seeding.
func WithSeed(seed uint64) Option {
	return func(c *Coordinator) { c.seed = seed }
}

// New creates a Coordinator.
func New(cfg config.Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:   cfg,
		log:   zap.NewNop(),
		clock: clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New(prometheus.NewRegistry())
	}
	return c
}

// shutdown is the only way resources are released, both after the workers
// are done and on cancellation.
type shutdown struct {
	once sync.Once
	db   *rwdb.Database
	log  *zap.Logger
	err  error
}

func (s *shutdown) teardown() error {
	s.once.Do(func() {
		s.err = s.db.Teardown()
		if s.err != nil {
			s.log.Error("teardown failed", zap.Error(s.err))
			return
		}
		s.log.Info("resources released")
	})
	return s.err
}

// handle is a spawned worker the coordinator joins.
type handle struct {
	w    *worker.Worker
	done atomic.Int64
	// err is read only after the group has been waited for
	err error
}

// Run starts readers reader workers and writers writer workers and waits for
// them. If ctx is cancelled first, Run releases the resources right away and
// returns a report with Interrupted set and a nil error.
func (c *Coordinator) Run(ctx context.Context, readers, writers int) (Report, error) {
	report := Report{Readers: readers, Writers: writers}
	if readers < 0 || writers < 0 {
		return report, fault.Configf("run", "worker counts must not be negative, got %d readers and %d writers", readers, writers)
	}
	if err := c.cfg.Validate(); err != nil {
		return report, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return report, fault.Setup("generate run id", "", err)
	}
	report.RunID = id.String()
	log := c.log.With(zap.String("run", report.RunID))

	db, err := rwdb.Initialize(rwdb.Options{
		Capacity: c.cfg.Capacity,
		ShmDir:   c.cfg.ShmDir,
		ShmName:  c.cfg.ShmName,
		Observer: c.metrics,
	})
	if err != nil {
		log.Error("setup failed", zap.Error(err))
		return report, err
	}
	sd := &shutdown{db: db, log: log}
	log.Info("database initialized",
		zap.Int("capacity", db.Capacity()),
		zap.String("segment", db.Segment().Name()),
		zap.String("segment_path", db.Segment().Path()),
		zap.Int("segment_bytes", db.Segment().Size()),
		zap.Int("readers", readers),
		zap.Int("writers", writers),
	)

	start := c.clock.Now()
	var g errgroup.Group
	handles := make([]*handle, 0, readers+writers)
	// первыми идут читатели, затем писатели
	for i := 0; i < readers+writers; i++ {
		role := rwdb.Reader
		if i >= readers {
			role = rwdb.Writer
		}
		handles = append(handles, c.spawnWorker(ctx, &g, db, log, role, i+1))
	}

	joined := make(chan error, 1)
	go func() {
		joined <- g.Wait()
	}()

	select {
	case werr := <-joined:
		report.Elapsed = c.clock.Since(start)
		collect(&report, handles, true, log)
		report.Final = c.finalState(db, log)

		if err := sd.teardown(); err != nil {
			return report, err
		}
		if werr != nil {
			log.Error("run finished with failed workers", zap.Int("failed", report.Failed), zap.Error(werr))
			return report, werr
		}
		log.Info("run finished",
			zap.Int("reads", report.Reads),
			zap.Int("writes", report.Writes),
			zap.Duration("elapsed", report.Elapsed),
		)
		return report, nil

	case <-ctx.Done():
		report.Interrupted = true
		report.Elapsed = c.clock.Since(start)
		collect(&report, handles, false, log)
		log.Warn("interrupted, releasing resources", zap.Error(ctx.Err()))
		return report, sd.teardown()
	}
}

// spawnWorker creates a worker with an explicit role and id, starts it in g
// and returns its handle.
func (c *Coordinator) spawnWorker(
	ctx context.Context,
	g *errgroup.Group,
	db *rwdb.Database,
	log *zap.Logger,
	role rwdb.Role,
	id int,
) *handle {
	var seed uint64
	if c.seed != 0 {
		seed = c.seed + uint64(id)
	}
	w := worker.New(db, worker.Options{
		Role:       role,
		ID:         id,
		Iterations: c.cfg.Iterations,
		Think:      c.cfg.Think,
		Hold:       c.cfg.Hold,
		MaxValue:   c.cfg.MaxValue,
		Seed:       seed,
	},
		worker.WithLogger(log),
		worker.WithClock(c.clock),
		worker.WithMetrics(c.metrics),
	)

	h := &handle{w: w}
	g.Go(func() error {
		done, err := w.Run(ctx)
		h.done.Store(int64(done))
		// соседей не трогаем, ошибка остаётся в handle
		h.err = err
		return err
	})
	return h
}

// collect sums the completed operations of the handles into r. Failures are
// counted only once the group is joined.
func collect(r *Report, handles []*handle, joined bool, log *zap.Logger) {
	for _, h := range handles {
		n := int(h.done.Load())
		if h.w.Role() == rwdb.Reader {
			r.Reads += n
		} else {
			r.Writes += n
		}
		if joined && h.err != nil {
			r.Failed++
			log.Warn("worker failed",
				zap.Stringer("role", h.w.Role()),
				zap.Int("worker", h.w.ID()),
				zap.Error(h.err),
			)
		}
	}
}

func (c *Coordinator) finalState(db *rwdb.Database, log *zap.Logger) []int32 {
	ctx := context.Background()
	data, err := db.Snapshot(ctx)
	if err != nil {
		log.Error("final snapshot failed", zap.Error(err))
		return nil
	}
	readers, writers, err := db.Counts(ctx)
	if err != nil {
		log.Error("final counts failed", zap.Error(err))
		return data
	}
	log.Info("final state",
		zap.Int32s("data", data),
		zap.Int("reader_count", readers),
		zap.Int("writer_count", writers),
		zap.Strings("held_permits", db.HeldPermits()),
	)
	return data
}
