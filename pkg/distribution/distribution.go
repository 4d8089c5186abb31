// Package distribution accumulates duration samples from many goroutines and
// produces percentile snapshots.
//
// A Distribution keeps exact count, total, min and max. Percentiles are
// computed from a bounded reservoir; once more than the reservoir capacity of
// samples has been added they are estimates. The reservoir uses a seeded
// generator that is copied by Duplicate, so a duplicate fed the same samples
// as its source ends in the same state.
package distribution

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/pipetrack/pkg/alg/stats"
)

// DefaultReservoirSize is the number of samples retained for percentiles.
const DefaultReservoirSize = 1024

// Reservoir generator seeds. Fixed so that snapshots are reproducible.
const (
	seedHi = 0x9e3779b97f4a7c15
	seedLo = 0xbf58476d1ce4e5b9
)

// Distribution is safe for concurrent use. The zero value is not usable; use New.
type Distribution struct {
	mu        sync.Mutex
	count     int64
	total     int64
	minimum   int64
	maximum   int64
	capacity  int
	reservoir []int64
	rng       rand.PCG
}

// Snapshot is an immutable summary of a Distribution. Durations are in nanoseconds.
type Snapshot struct {
	Count int64         `json:"count"       yaml:"count"`
	Total time.Duration `json:"total_nanos" yaml:"total_nanos"`
	Min   time.Duration `json:"min_nanos"   yaml:"min_nanos"`
	Max   time.Duration `json:"max_nanos"   yaml:"max_nanos"`
	Avg   time.Duration `json:"avg_nanos"   yaml:"avg_nanos"`
	P50   time.Duration `json:"p50_nanos"   yaml:"p50_nanos"`
	P75   time.Duration `json:"p75_nanos"   yaml:"p75_nanos"`
	P90   time.Duration `json:"p90_nanos"   yaml:"p90_nanos"`
	P95   time.Duration `json:"p95_nanos"   yaml:"p95_nanos"`
	P99   time.Duration `json:"p99_nanos"   yaml:"p99_nanos"`
}

// New creates a Distribution with the default reservoir size.
func New() *Distribution {
	return NewWithReservoir(DefaultReservoirSize)
}

// NewWithReservoir creates a Distribution retaining at most size samples.
// Sizes below one are raised to one.
func NewWithReservoir(size int) *Distribution {
	size = max(size, 1)

	return &Distribution{
		minimum:   math.MaxInt64,
		maximum:   math.MinInt64,
		capacity:  size,
		reservoir: make([]int64, 0, min(size, DefaultReservoirSize)),
		rng:       *rand.NewPCG(seedHi, seedLo),
	}
}

// Add records one duration sample.
func (d *Distribution) Add(value time.Duration) {
	nanos := value.Nanoseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	d.total += nanos
	d.minimum = min(d.minimum, nanos)
	d.maximum = max(d.maximum, nanos)

	if len(d.reservoir) < d.capacity {
		d.reservoir = append(d.reservoir, nanos)

		return
	}

	// Algorithm R: replace a random slot with probability capacity/count.
	slot := d.rng.Uint64() % uint64(d.count)
	if slot < uint64(d.capacity) {
		d.reservoir[slot] = nanos
	}
}

// Count returns the number of samples added so far.
func (d *Distribution) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.count
}

// Duplicate returns an independent deep copy of d.
func (d *Distribution) Duplicate() *Distribution {
	d.mu.Lock()
	defer d.mu.Unlock()

	reservoir := make([]int64, len(d.reservoir), max(cap(d.reservoir), len(d.reservoir)))
	copy(reservoir, d.reservoir)

	return &Distribution{
		count:     d.count,
		total:     d.total,
		minimum:   d.minimum,
		maximum:   d.maximum,
		capacity:  d.capacity,
		reservoir: reservoir,
		rng:       d.rng,
	}
}

// Snapshot summarises the samples added so far. An empty distribution
// yields a zero Snapshot.
func (d *Distribution) Snapshot() Snapshot {
	d.mu.Lock()
	count, total, lo, hi := d.count, d.total, d.minimum, d.maximum
	sorted := stats.Sorted(d.reservoir)
	d.mu.Unlock()

	if count == 0 {
		return Snapshot{}
	}

	pct := func(p float64) time.Duration {
		return time.Duration(math.Round(stats.PercentileSorted(sorted, p)))
	}

	return Snapshot{
		Count: count,
		Total: time.Duration(total),
		Min:   time.Duration(lo),
		Max:   time.Duration(hi),
		Avg:   time.Duration(total / count),
		P50:   pct(stats.PercentileMedian),
		P75:   pct(stats.PercentileP75),
		P90:   pct(stats.PercentileP90),
		P95:   pct(stats.PercentileP95),
		P99:   pct(stats.PercentileP99),
	}
}
