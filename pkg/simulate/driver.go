package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/pipetrack/internal/observability"
	"github.com/Sumatoshi-tech/pipetrack/pkg/driver"
	"github.com/Sumatoshi-tech/pipetrack/pkg/memory"
	"github.com/Sumatoshi-tech/pipetrack/pkg/operator"
	"github.com/Sumatoshi-tech/pipetrack/pkg/pipeline"
	"github.com/Sumatoshi-tech/pipetrack/pkg/spill"
	"github.com/Sumatoshi-tech/pipetrack/pkg/task"
)

const (
	// stepsPerDriver is the number of quanta a driver's time is split into.
	stepsPerDriver = 4
	// rowBytes is the synthetic width of one row.
	rowBytes = 64
	minRows  = 100
	rowRange = 900
)

var operatorTypes = []string{
	"TableScanOperator",
	"FilterAndProjectOperator",
	"HashAggregationOperator",
	"PartitionedOutputOperator",
}

var blockedReasons = []operator.BlockedReason{
	operator.BlockedWaitingForInput,
	operator.BlockedWaitingForOutput,
	operator.BlockedWaitingForMemory,
	operator.BlockedWaitingForExchange,
}

// operatorSlot is one operator of a running driver with its memory reservation.
type operatorSlot struct {
	ctx    *operator.Context
	memory *memory.LocalContext
}

func (s *Simulator) runDriver(ctx context.Context, j job, d *driver.Context) error {
	ctx, span := s.driverTracer.Start(ctx, observability.SpanDriverRun, trace.WithAttributes(
		attribute.Int("pipeline.id", j.pcfg.ID),
		attribute.Int("driver.id", d.ID()),
		attribute.Int64("driver.split_weight", d.SplitWeight()),
		attribute.String("driver.lifespan", d.Lifespan()),
	))
	defer span.End()

	rng := s.rng(j.seq + 1)
	slots := s.addOperators(j.pcfg.ID, d)

	d.Start()

	for range stepsPerDriver {
		if s.task.IsDone() {
			break
		}

		err := s.step(ctx, j, d, rng, slots)
		if err != nil {
			if errors.Is(err, memory.ErrMemoryLimitExceeded) {
				return failDriver(d, err)
			}

			return errors.Join(err, d.Finish())
		}
	}

	if s.opts.SpillEvery > 0 && j.seq%s.opts.SpillEvery == 0 && len(slots) > 0 {
		err := s.spillPage(ctx, j.pipeline, rng, slots[len(slots)-1].ctx)
		if err != nil {
			return errors.Join(err, d.Finish())
		}
	}

	for _, slot := range slots {
		slot.ctx.RecordFinish(time.Microsecond, time.Microsecond)
	}

	if s.opts.FailureRatio > 0 && rng.Float64() < s.opts.FailureRatio {
		cause := fmt.Errorf("%w: pipeline %d driver %d", ErrInjectedFailure, j.pcfg.ID, d.ID())
		s.logger.WarnContext(ctx, "driver failed", slog.Int("pipeline_id", j.pcfg.ID), slog.Any("error", cause))

		return failDriver(d, cause)
	}

	return d.Finish()
}

// failDriver fails the task through d. The failure is recorded on the task;
// only a retirement error is returned to the worker pool.
func failDriver(d *driver.Context, cause error) error {
	err := d.Failed(cause)
	if errors.Is(err, pipeline.ErrUnknownDriver) {
		return err
	}

	return nil
}

func (s *Simulator) addOperators(pipelineID int, d *driver.Context) []operatorSlot {
	slots := make([]operatorSlot, 0, s.opts.OperatorsPerDriver)

	for id := range s.opts.OperatorsPerDriver {
		opType := operatorTypes[id%len(operatorTypes)]
		slots = append(slots, operatorSlot{
			ctx:    d.AddOperator(id, fmt.Sprintf("%d.%d", pipelineID, id), opType),
			memory: d.Memory().NewLocalUserContext(opType),
		})
	}

	return slots
}

// step runs one quantum: either blocked on a random reason or processing a
// page that flows through every operator.
func (s *Simulator) step(ctx context.Context, j job, d *driver.Context, rng *rand.Rand, slots []operatorSlot) error {
	quantum := s.opts.DriverTime / stepsPerDriver

	if rng.Float64() < s.opts.BlockedRatio {
		d.Block(blockedReasons[rng.IntN(len(blockedReasons))])

		start := time.Now()
		err := sleep(ctx, quantum)
		d.Unblock()

		if len(slots) > 0 {
			slots[0].ctx.RecordBlocked(time.Since(start))
		}

		return err
	}

	start := time.Now()

	err := sleep(ctx, quantum)
	if err != nil {
		return err
	}

	wall := time.Since(start)
	cpu := wall / 2

	d.RecordScheduled(wall)

	if s.task.CPUTimerEnabled() {
		d.RecordCPU(cpu)
	}

	rows := int64(minRows + rng.IntN(rowRange))
	bytes := rows * rowBytes

	if j.pcfg.Input {
		d.RecordPhysicalRead(bytes, rows, wall/4)
	} else {
		d.RecordNetworkInput(bytes, rows)
	}

	d.RecordInput(bytes, rows, bytes, rows)

	outRows := rows / 2
	d.RecordOutput(outRows*rowBytes, outRows)

	if j.pcfg.Output {
		d.RecordPhysicalWritten(outRows * rowBytes)
	}

	return s.flowThroughOperators(slots, wall, cpu, rows, outRows)
}

func (s *Simulator) flowThroughOperators(slots []operatorSlot, wall, cpu time.Duration, rows, outRows int64) error {
	if len(slots) == 0 {
		return nil
	}

	share := time.Duration(len(slots))

	for idx, slot := range slots {
		in := rows
		if idx > 0 {
			in = outRows
		}

		slot.ctx.RecordAddInput(wall/share, cpu/share, in*rowBytes, in)
		slot.ctx.RecordGetOutput(wall/share, cpu/share, outRows*rowBytes, outRows)

		reserved := in * rowBytes

		err := slot.memory.SetBytes(reserved)
		if err != nil {
			return err //nolint:wrapcheck // tagged by the local context
		}

		slot.ctx.SetMemory(reserved, 0)
	}

	return nil
}

// spillPage writes one synthetic page through a Spiller bound to p. A page
// that does not fit the task budget is skipped.
func (s *Simulator) spillPage(ctx context.Context, p *pipeline.Context, rng *rand.Rand, op *operator.Context) error {
	if s.opts.SpillPageSize <= 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, observability.SpanSpillWrite, trace.WithAttributes(
		attribute.Int("pipeline.id", p.PipelineID()),
		attribute.Int64("spill.page_bytes", s.opts.SpillPageSize),
	))
	defer span.End()

	spiller := spill.New(p, s.opts.SpillDir, fmt.Sprintf("pipetrack-p%d", p.PipelineID()))

	written, err := spiller.Spill(ctx, syntheticPage(rng, s.opts.SpillPageSize))
	if err != nil {
		closeErr := spiller.Close()
		if errors.Is(err, task.ErrSpillLimitExceeded) || errors.Is(err, task.ErrTaskDone) {
			s.logger.DebugContext(ctx, "spill skipped", slog.Int("pipeline_id", p.PipelineID()), slog.Any("error", err))

			return closeErr
		}

		return errors.Join(err, closeErr)
	}

	s.spilled.Add(written)
	op.RecordSpill(written)

	pages, err := spiller.ReadAll()
	if err != nil {
		return errors.Join(err, spiller.Close())
	}

	span.SetAttributes(attribute.Int("spill.pages", len(pages)), attribute.Int64("spill.bytes", written))

	return spiller.Close()
}

// syntheticPage returns size bytes of repetitive data with random noise, so
// that compression has something to do.
func syntheticPage(rng *rand.Rand, size int64) []byte {
	page := make([]byte, size)
	for i := range page {
		if i%rowBytes == 0 {
			page[i] = byte(rng.UintN(256))

			continue
		}

		page[i] = byte(i % 16)
	}

	return page
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err() //nolint:wrapcheck // context sentinel
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // context sentinel
	case <-timer.C:
		return nil
	}
}
