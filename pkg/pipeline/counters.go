package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/Sumatoshi-tech/pipetrack/pkg/driver"
)

// ioCounters accumulate the I/O of retired drivers. Each field is updated
// independently.
type ioCounters struct {
	physicalInputBytes     atomic.Int64
	physicalInputPositions atomic.Int64
	physicalInputReadTime  atomic.Int64
	networkInputBytes      atomic.Int64
	networkInputPositions  atomic.Int64
	rawInputBytes          atomic.Int64
	rawInputPositions      atomic.Int64
	processedInputBytes    atomic.Int64
	processedInputPos      atomic.Int64
	outputBytes            atomic.Int64
	outputPositions        atomic.Int64
	physicalWritten        atomic.Int64
}

func (c *ioCounters) add(io driver.IO) {
	c.physicalInputBytes.Add(io.PhysicalInputBytes)
	c.physicalInputPositions.Add(io.PhysicalInputPositions)
	c.physicalInputReadTime.Add(int64(io.PhysicalInputReadTime))
	c.networkInputBytes.Add(io.InternalNetworkInputBytes)
	c.networkInputPositions.Add(io.InternalNetworkInputPositions)
	c.rawInputBytes.Add(io.RawInputBytes)
	c.rawInputPositions.Add(io.RawInputPositions)
	c.processedInputBytes.Add(io.ProcessedInputBytes)
	c.processedInputPos.Add(io.ProcessedInputPositions)
	c.outputBytes.Add(io.OutputBytes)
	c.outputPositions.Add(io.OutputPositions)
	c.physicalWritten.Add(io.PhysicalWrittenBytes)
}

func (c *ioCounters) load() driver.IO {
	return driver.IO{
		PhysicalInputBytes:            c.physicalInputBytes.Load(),
		PhysicalInputPositions:        c.physicalInputPositions.Load(),
		PhysicalInputReadTime:         time.Duration(c.physicalInputReadTime.Load()),
		InternalNetworkInputBytes:     c.networkInputBytes.Load(),
		InternalNetworkInputPositions: c.networkInputPositions.Load(),
		RawInputBytes:                 c.rawInputBytes.Load(),
		RawInputPositions:             c.rawInputPositions.Load(),
		ProcessedInputBytes:           c.processedInputBytes.Load(),
		ProcessedInputPositions:       c.processedInputPos.Load(),
		OutputBytes:                   c.outputBytes.Load(),
		OutputPositions:               c.outputPositions.Load(),
		PhysicalWrittenBytes:          c.physicalWritten.Load(),
	}
}

// Counter splits a cumulative metric into the part contributed by retired
// drivers and the part read live from active ones.
type Counter struct {
	Completed int64 `json:"completed" yaml:"completed"`
	Active    int64 `json:"active"    yaml:"active"`
}

// Total returns Completed + Active.
func (c Counter) Total() int64 { return c.Completed + c.Active }

func (c *Context) counter(completed *atomic.Int64, live func(driver.IO) int64) Counter {
	out := Counter{Completed: completed.Load()}
	for _, d := range c.activeDrivers() {
		out.Active += live(d.IO())
	}

	return out
}

// ProcessedInputDataSize returns processed input bytes of all drivers.
func (c *Context) ProcessedInputDataSize() Counter {
	return c.counter(&c.io.processedInputBytes, func(io driver.IO) int64 { return io.ProcessedInputBytes })
}

// InputPositions returns processed input rows of all drivers.
func (c *Context) InputPositions() Counter {
	return c.counter(&c.io.processedInputPos, func(io driver.IO) int64 { return io.ProcessedInputPositions })
}

// OutputDataSize returns output bytes of all drivers.
func (c *Context) OutputDataSize() Counter {
	return c.counter(&c.io.outputBytes, func(io driver.IO) int64 { return io.OutputBytes })
}

// OutputPositions returns output rows of all drivers.
func (c *Context) OutputPositions() Counter {
	return c.counter(&c.io.outputPositions, func(io driver.IO) int64 { return io.OutputPositions })
}

// PhysicalWrittenDataSize returns the bytes written by active drivers.
// Retired drivers are reported through Stats.
func (c *Context) PhysicalWrittenDataSize() int64 {
	var total int64
	for _, d := range c.activeDrivers() {
		total += d.PhysicalWrittenBytes()
	}

	return total
}
