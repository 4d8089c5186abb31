package observability

import (
	"context"
	"math"
	runtimemetrics "runtime/metrics"

	"go.opentelemetry.io/otel/metric"
)

const (
	metricGoroutines  = "pipetrack.runtime.goroutines"
	metricHeapObjects = "pipetrack.runtime.heap.objects.bytes"
	metricGCCycles    = "pipetrack.runtime.gc.cycles"

	sampleGoroutines    = "/sched/goroutines:goroutines"
	sampleHeapObjects   = "/memory/classes/heap/objects:bytes"
	sampleGCCyclesTotal = "/gc/cycles/total:gc-cycles"
)

// SchedulerMetrics reports goroutine count, heap object bytes and GC cycles
// read from runtime/metrics on every collection.
type SchedulerMetrics struct {
	goroutines  metric.Int64ObservableGauge
	heapObjects metric.Int64ObservableGauge
	gcCycles    metric.Int64ObservableCounter
}

// NewSchedulerMetrics registers the runtime instruments on mt.
func NewSchedulerMetrics(mt metric.Meter) (*SchedulerMetrics, error) {
	set := newInstrumentSet(mt)

	sm := &SchedulerMetrics{
		goroutines:  set.gauge(metricGoroutines, "Current number of live goroutines", "{goroutine}"),
		heapObjects: set.gauge(metricHeapObjects, "Bytes occupied by live and unswept heap objects", "By"),
		gcCycles:    set.observableCounter(metricGCCycles, "Completed GC cycles since process start", "{cycle}"),
	}

	err := set.register(sm.observe)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

func (sm *SchedulerMetrics) observe(_ context.Context, obs metric.Observer) error {
	samples := []runtimemetrics.Sample{
		{Name: sampleGoroutines},
		{Name: sampleHeapObjects},
		{Name: sampleGCCyclesTotal},
	}

	runtimemetrics.Read(samples)

	instruments := map[string]metric.Int64Observable{
		sampleGoroutines:    sm.goroutines,
		sampleHeapObjects:   sm.heapObjects,
		sampleGCCyclesTotal: sm.gcCycles,
	}

	for idx := range samples {
		val, ok := sampleInt64Value(samples[idx].Value)
		if !ok {
			continue
		}

		obs.ObserveInt64(instruments[samples[idx].Name], val)
	}

	return nil
}

// sampleInt64Value converts a runtime/metrics value of kind Uint64 or Float64.
func sampleInt64Value(val runtimemetrics.Value) (int64, bool) {
	switch val.Kind() {
	case runtimemetrics.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return int64(u), true
		}

		return math.MaxInt64, true
	case runtimemetrics.KindFloat64:
		return int64(val.Float64()), true
	case runtimemetrics.KindBad, runtimemetrics.KindFloat64Histogram:
		return 0, false
	default:
		return 0, false
	}
}
