package operator

import (
	"sync/atomic"
	"time"
)

// Context holds the live counters of one operator instance inside one driver.
// Writers are the driver's execution goroutine; Stats may be called from any
// goroutine at any time.
type Context struct {
	pipelineID   int
	operatorID   int
	planNodeID   string
	operatorType string

	addInputCalls  atomic.Int64
	addInputWall   atomic.Int64
	addInputCPU    atomic.Int64
	getOutputCalls atomic.Int64
	getOutputWall  atomic.Int64
	getOutputCPU   atomic.Int64
	finishCalls    atomic.Int64
	finishWall     atomic.Int64
	finishCPU      atomic.Int64
	blockedWall    atomic.Int64

	inputBytes      atomic.Int64
	inputPositions  atomic.Int64
	outputBytes     atomic.Int64
	outputPositions atomic.Int64
	physicalWritten atomic.Int64
	spilledBytes    atomic.Int64

	userMemory      atomic.Int64
	revocableMemory atomic.Int64
	peakUserMemory  atomic.Int64
	peakTotalMemory atomic.Int64
}

// NewContext creates the live counters for one operator.
func NewContext(pipelineID, operatorID int, planNodeID, operatorType string) *Context {
	return &Context{
		pipelineID:   pipelineID,
		operatorID:   operatorID,
		planNodeID:   planNodeID,
		operatorType: operatorType,
	}
}

// OperatorID returns the operator id within its pipeline.
func (c *Context) OperatorID() int { return c.operatorID }

// RecordAddInput accounts one addInput call that consumed a page.
func (c *Context) RecordAddInput(wall, cpu time.Duration, bytes, positions int64) {
	c.addInputCalls.Add(1)
	c.addInputWall.Add(int64(wall))
	c.addInputCPU.Add(int64(cpu))
	c.inputBytes.Add(bytes)
	c.inputPositions.Add(positions)
}

// RecordGetOutput accounts one getOutput call that produced a page.
func (c *Context) RecordGetOutput(wall, cpu time.Duration, bytes, positions int64) {
	c.getOutputCalls.Add(1)
	c.getOutputWall.Add(int64(wall))
	c.getOutputCPU.Add(int64(cpu))
	c.outputBytes.Add(bytes)
	c.outputPositions.Add(positions)
}

// RecordFinish accounts one finish call.
func (c *Context) RecordFinish(wall, cpu time.Duration) {
	c.finishCalls.Add(1)
	c.finishWall.Add(int64(wall))
	c.finishCPU.Add(int64(cpu))
}

// RecordBlocked accounts wall time spent blocked.
func (c *Context) RecordBlocked(wall time.Duration) {
	c.blockedWall.Add(int64(wall))
}

// RecordPhysicalWritten accounts bytes written to external storage.
func (c *Context) RecordPhysicalWritten(bytes int64) {
	c.physicalWritten.Add(bytes)
}

// RecordSpill accounts bytes spilled to local disk.
func (c *Context) RecordSpill(bytes int64) {
	c.spilledBytes.Add(bytes)
}

// SetMemory publishes the operator's current user and revocable memory and
// raises the peaks when exceeded.
func (c *Context) SetMemory(user, revocable int64) {
	c.userMemory.Store(user)
	c.revocableMemory.Store(revocable)
	raise(&c.peakUserMemory, user)
	raise(&c.peakTotalMemory, user+revocable)
}

func raise(peak *atomic.Int64, v int64) {
	for {
		cur := peak.Load()
		if v <= cur || peak.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Stats returns a point-in-time copy of the counters attributed to one driver.
func (c *Context) Stats() Stats {
	return Stats{
		PipelineID:      c.pipelineID,
		OperatorID:      c.operatorID,
		PlanNodeID:      c.planNodeID,
		OperatorType:    c.operatorType,
		TotalDrivers:    1,
		AddInputCalls:   c.addInputCalls.Load(),
		AddInputWall:    time.Duration(c.addInputWall.Load()),
		AddInputCPU:     time.Duration(c.addInputCPU.Load()),
		GetOutputCalls:  c.getOutputCalls.Load(),
		GetOutputWall:   time.Duration(c.getOutputWall.Load()),
		GetOutputCPU:    time.Duration(c.getOutputCPU.Load()),
		FinishCalls:     c.finishCalls.Load(),
		FinishWall:      time.Duration(c.finishWall.Load()),
		FinishCPU:       time.Duration(c.finishCPU.Load()),
		BlockedWall:     time.Duration(c.blockedWall.Load()),
		InputBytes:      c.inputBytes.Load(),
		InputPositions:  c.inputPositions.Load(),
		OutputBytes:     c.outputBytes.Load(),
		OutputPositions: c.outputPositions.Load(),
		PhysicalWritten: c.physicalWritten.Load(),
		SpilledBytes:    c.spilledBytes.Load(),
		UserMemory:      c.userMemory.Load(),
		RevocableMemory: c.revocableMemory.Load(),
		PeakUserMemory:  c.peakUserMemory.Load(),
		PeakTotalMemory: c.peakTotalMemory.Load(),
	}
}
