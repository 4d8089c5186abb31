// Package simulate drives pipelines with a synthetic workload: drivers are
// created for splits and task-wide work, run on a bounded worker pool, block
// and unblock, report operator statistics and I/O, spill pages, and
// optionally fail. A sampler records pipeline status while the task runs.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/pipetrack/internal/config"
	"github.com/Sumatoshi-tech/pipetrack/internal/observability"
	"github.com/Sumatoshi-tech/pipetrack/pkg/driver"
	"github.com/Sumatoshi-tech/pipetrack/pkg/pipeline"
	"github.com/Sumatoshi-tech/pipetrack/pkg/render"
	"github.com/Sumatoshi-tech/pipetrack/pkg/task"
)

// ErrAlreadyRun is returned when Run is called twice on one Simulator.
var ErrAlreadyRun = errors.New("simulate: already run")

// ErrInjectedFailure is the cause recorded for randomly failed drivers.
var ErrInjectedFailure = errors.New("simulate: injected driver failure")

// job is one driver to run: either a split to be turned into a driver when
// a worker picks it up, or a task-wide driver registered at planning time.
type job struct {
	pipeline *pipeline.Context
	pcfg     config.PipelineConfig
	seq      int
	split    int
	weight   int64
	driver   *driver.Context
}

// Simulator owns one task and its pipelines.
type Simulator struct {
	opts         Options
	logger       *slog.Logger
	tracer       trace.Tracer
	driverTracer trace.Tracer

	task      *task.Context
	pipelines []*pipeline.Context

	started atomic.Bool
	spilled atomic.Int64

	mu      sync.Mutex
	samples []render.Sample
}

// New creates the task and one pipeline per configured pipeline.
func New(opts Options) *Simulator {
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	taskCfg := opts.Task
	taskCfg.Logger = lg

	tc := task.New(opts.TaskID, opts.Session, taskCfg)

	pipelines := make([]*pipeline.Context, 0, len(opts.Pipelines))
	for _, pcfg := range opts.Pipelines {
		pipelines = append(pipelines, pipeline.New(tc, pipeline.Config{
			ID:          pcfg.ID,
			Input:       pcfg.Input,
			Output:      pcfg.Output,
			Partitioned: pcfg.Partitioned,
			Logger:      lg,
		}))
	}

	return &Simulator{
		opts:         opts,
		logger:       lg.With(slog.String("task_id", tc.TaskID().String())),
		tracer:       tp.Tracer(observability.TracerName),
		driverTracer: tp.Tracer(observability.DriverTracerName),
		task:         tc,
		pipelines:    pipelines,
	}
}

// Task returns the simulated task.
func (s *Simulator) Task() *task.Context { return s.task }

// Pipelines returns the pipelines of the task in configuration order.
func (s *Simulator) Pipelines() []*pipeline.Context { return slices.Clone(s.pipelines) }

// Samples returns the status samples recorded so far.
func (s *Simulator) Samples() []render.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.samples)
}

// Run executes the workload and returns the final report. The task ends
// finished, failed (injected failure or workload error) or canceled (ctx).
func (s *Simulator) Run(ctx context.Context) (render.Report, error) {
	if !s.started.CompareAndSwap(false, true) {
		return render.Report{}, ErrAlreadyRun
	}

	ctx, span := s.tracer.Start(ctx, "pipetrack.task.run", trace.WithAttributes(
		attribute.String("task.id", s.task.TaskID().String()),
		attribute.Int("pipeline.count", len(s.pipelines)),
		attribute.Int("simulation.workers", s.opts.workers()),
	))
	defer span.End()

	start := time.Now()

	s.task.Start()

	jobs, err := s.plan()
	if err != nil {
		s.task.Failed(err)

		return s.Report(), err
	}

	s.logger.InfoContext(ctx, "simulation started", slog.Int("drivers", len(jobs)), slog.Int("workers", s.opts.workers()))

	sampleCtx, stopSampling := context.WithCancel(ctx)
	samplerDone := make(chan struct{})

	go func() {
		defer close(samplerDone)
		s.sample(sampleCtx, start)
	}()

	runErr := s.runJobs(ctx, jobs)
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	stopSampling()
	<-samplerDone
	s.recordSample(start)

	s.settle(ctx, runErr)

	report := s.Report()

	if report.Failure != "" {
		span.SetStatus(codes.Error, report.Failure)
	}

	s.logger.InfoContext(ctx, "simulation finished",
		slog.String("state", report.State),
		slog.Duration("duration", report.Duration),
		slog.Int64("spilled_bytes", report.SpilledData),
	)

	return report, runErr
}

func (s *Simulator) runJobs(ctx context.Context, jobs []job) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.workers())

	for _, j := range jobs {
		g.Go(func() error { return s.runJob(gctx, j) })
	}

	err := g.Wait()
	if err != nil {
		return fmt.Errorf("run drivers: %w", err)
	}

	return nil
}

// settle moves the task to its terminal state.
func (s *Simulator) settle(ctx context.Context, runErr error) {
	switch {
	case ctx.Err() != nil:
		s.task.Cancel()
	case runErr != nil:
		s.task.Failed(runErr)
	default:
		s.task.Finish()
	}
}

// plan announces splits to every pipeline and registers task-wide drivers.
func (s *Simulator) plan() ([]job, error) {
	rng := s.rng(0)

	var jobs []job

	for idx, pcfg := range s.opts.Pipelines {
		p := s.pipelines[idx]

		weights := splitWeights(rng, pcfg)

		var sum int64
		for _, w := range weights {
			sum += w
		}

		err := p.SplitsAdded(len(weights), sum)
		if err != nil {
			return nil, fmt.Errorf("pipeline %d: %w", pcfg.ID, err)
		}

		for split, w := range weights {
			jobs = append(jobs, job{pipeline: p, pcfg: pcfg, seq: len(jobs), split: split, weight: w})
		}

		for range pcfg.Drivers {
			jobs = append(jobs, job{pipeline: p, pcfg: pcfg, seq: len(jobs), driver: p.AddDriverContext()})
		}
	}

	return jobs, nil
}

// rng returns the deterministic random source of stream n.
func (s *Simulator) rng(stream int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(s.opts.Seed), uint64(stream))) //nolint:gosec // reproducible workload, not security
}

func splitWeights(rng *rand.Rand, pcfg config.PipelineConfig) []int64 {
	weights := make([]int64, pcfg.Splits)
	if !pcfg.Partitioned || pcfg.MaxWeight == 0 {
		return weights
	}

	for i := range weights {
		weights[i] = pcfg.MinWeight + rng.Int64N(pcfg.MaxWeight-pcfg.MinWeight+1)
	}

	return weights
}

// runJob registers the job's driver if needed and runs it. Jobs picked up
// after the task ended or ctx was canceled retire without starting.
func (s *Simulator) runJob(ctx context.Context, j job) error {
	d := j.driver
	if d == nil {
		if s.task.IsDone() || ctx.Err() != nil {
			return nil
		}

		var err error

		d, err = j.pipeline.AddDriverContextForSplit(pipeline.DriverGroup(j.split), j.weight)
		if err != nil {
			return fmt.Errorf("pipeline %d: %w", j.pcfg.ID, err)
		}
	}

	if s.task.IsDone() || ctx.Err() != nil {
		return d.Finish()
	}

	return s.runDriver(ctx, j, d)
}

// Report assembles the current report. It may be called while Run is in
// progress.
func (s *Simulator) Report() render.Report {
	stats := make([]pipeline.Stats, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		stats = append(stats, p.Stats())
	}

	var failure string
	if cause := s.task.FailureCause(); cause != nil {
		failure = cause.Error()
	}

	var duration time.Duration
	if started := s.task.StartedAt(); !started.IsZero() {
		ended := s.task.EndedAt()
		if ended.IsZero() {
			ended = time.Now()
		}

		duration = ended.Sub(started)
	}

	return render.Report{
		TaskID:      s.task.TaskID().String(),
		State:       s.task.State().String(),
		Failure:     failure,
		Duration:    duration,
		SpilledData: s.spilled.Load(),
		Pipelines:   stats,
		Samples:     s.Samples(),
	}
}

// sample records pipeline status every SampleInterval until ctx is done.
func (s *Simulator) sample(ctx context.Context, start time.Time) {
	if s.opts.SampleInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.opts.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, span := s.tracer.Start(ctx, observability.SpanStatsSample)
			s.recordSample(start)
			span.End()
		}
	}
}

func (s *Simulator) recordSample(start time.Time) {
	elapsed := time.Since(start)

	batch := make([]render.Sample, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		batch = append(batch, render.Sample{Elapsed: elapsed, PipelineID: p.PipelineID(), Status: p.PipelineStatus()})
	}

	s.mu.Lock()
	s.samples = append(s.samples, batch...)
	s.mu.Unlock()
}
