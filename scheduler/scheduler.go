// Package scheduler runs the periodic background jobs. Each job fires on its own
// ticker and never overlaps itself: a firing that finds the previous run still in
// progress is dropped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/logging"
)

const instrumentationName = "github.com/JanssenProject/jans-sub021/scheduler"

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type job struct {
	Job
	running atomic.Bool
}

type instruments struct {
	runs     metric.Int64Counter
	skipped  metric.Int64Counter
	failures metric.Int64Counter
}

type Scheduler struct {
	jobs     []*job
	byName   map[string]*job
	inflight sync.WaitGroup
	metrics  instruments
	logger   zerolog.Logger
}

// Option defines a function type to modify the Scheduler options.
type Option func(*options)

type options struct {
	meterProvider metric.MeterProvider
	logger        *zerolog.Logger
}

// WithMeterProvider records job metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithLogger sets the logger used by the scheduler.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

func New(opts ...Option) (*Scheduler, error) {
	o := options{meterProvider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	var m instruments
	var err error
	if m.runs, err = meter.Int64Counter("reconciler.job.runs",
		metric.WithDescription("Number of completed job runs"),
		metric.WithUnit("{run}")); err != nil {
		return nil, errors.Wrap(err, "[scheduler.New] runs counter")
	}
	if m.skipped, err = meter.Int64Counter("reconciler.job.skipped",
		metric.WithDescription("Number of firings skipped because the job was still running"),
		metric.WithUnit("{run}")); err != nil {
		return nil, errors.Wrap(err, "[scheduler.New] skipped counter")
	}
	if m.failures, err = meter.Int64Counter("reconciler.job.failures",
		metric.WithDescription("Number of job runs that failed or panicked"),
		metric.WithUnit("{run}")); err != nil {
		return nil, errors.Wrap(err, "[scheduler.New] failures counter")
	}

	s := &Scheduler{
		byName:  make(map[string]*job),
		metrics: m,
		logger:  logging.Component("scheduler"),
	}
	if o.logger != nil {
		s.logger = *o.logger
	}
	return s, nil
}

// Add registers a job. Jobs with a non-positive interval are registered but never
// fire on their own, they can still be run with RunNow.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Run == nil {
		return errors.Wrap(ierrors.ErrInvalidRequest, "[Scheduler.Add] job needs a name and a body")
	}
	if _, exists := s.byName[j.Name]; exists {
		return errors.Wrapf(ierrors.ErrInvalidRequest, "[Scheduler.Add] duplicate job %s", j.Name)
	}
	entry := &job{Job: j}
	s.jobs = append(s.jobs, entry)
	s.byName[j.Name] = entry
	return nil
}

// Run fires the jobs until ctx is done, then waits for in-flight runs.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		if j.Interval <= 0 {
			s.logger.Info().Str("job", j.Name).Msg("job disabled")
			continue
		}
		g.Go(func() error {
			ticker := time.NewTicker(j.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.inflight.Add(1)
					go func() {
						defer s.inflight.Done()
						_, _ = s.fire(ctx, j)
					}()
				}
			}
		})
	}
	err := g.Wait()
	s.inflight.Wait()
	return err
}

// RunNow runs the named job synchronously. It reports false when the job was already
// running and the call was skipped.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	j, ok := s.byName[name]
	if !ok {
		return false, errors.Wrapf(ierrors.ErrNotFound, "[Scheduler.RunNow] job %s", name)
	}
	return s.fire(ctx, j)
}

// fire runs j unless a previous run is still in progress. Errors and panics are logged
// and counted. The running flag is always cleared.
func (s *Scheduler) fire(ctx context.Context, j *job) (ran bool, err error) {
	attrs := metric.WithAttributes(attribute.String("job", j.Name))
	if !j.running.CompareAndSwap(false, true) {
		s.metrics.skipped.Add(ctx, 1, attrs)
		s.logger.Debug().Str("job", j.Name).Msg("previous run still in progress, skipping")
		return false, nil
	}
	defer j.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("[Scheduler.fire] job %s panicked: %s", j.Name, fmt.Sprint(r))
		}
		s.metrics.runs.Add(ctx, 1, attrs)
		if err != nil {
			s.metrics.failures.Add(ctx, 1, attrs)
			s.logger.Err(err).Str("job", j.Name).Msg("job failed")
		}
	}()

	start := time.Now()
	err = j.Run(ctx)
	s.logger.Debug().Str("job", j.Name).Dur("took", time.Since(start)).Msg("job finished")
	return true, err
}
