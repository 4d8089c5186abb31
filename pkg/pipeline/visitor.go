package pipeline

import (
	"fmt"

	"github.com/Sumatoshi-tech/pipetrack/pkg/driver"
)

// Visitor walks a pipeline and its active drivers, producing one R per node.
type Visitor[C, R any] interface {
	VisitPipeline(p *Context, ctx C) R
	VisitDriver(d *driver.Context, ctx C) R
}

// Accept dispatches v to the pipeline node.
func Accept[C, R any](p *Context, v Visitor[C, R], ctx C) R {
	return v.VisitPipeline(p, ctx)
}

// AcceptChildren dispatches v to every driver of one active snapshot.
func AcceptChildren[C, R any](p *Context, v Visitor[C, R], ctx C) []R {
	active := p.activeDrivers()

	out := make([]R, 0, len(active))
	for _, d := range active {
		out = append(out, v.VisitDriver(d, ctx))
	}

	return out
}

// MemoryUsage is the memory reserved by one node of the pipeline tree.
type MemoryUsage struct {
	Path      string `json:"path"      yaml:"path"`
	User      int64  `json:"user"      yaml:"user"`
	Revocable int64  `json:"revocable" yaml:"revocable"`
	System    int64  `json:"system"    yaml:"system"`
}

// MemoryUsageVisitor reports memory usage per node. The context is the path
// prefix of the visited node.
type MemoryUsageVisitor struct{}

// VisitPipeline returns the pipeline's usage, including its drivers.
func (MemoryUsageVisitor) VisitPipeline(p *Context, prefix string) MemoryUsage {
	mem := p.MemoryContext()

	return MemoryUsage{
		Path:      fmt.Sprintf("%s/pipeline-%d", prefix, p.PipelineID()),
		User:      mem.UserMemory(),
		Revocable: mem.RevocableMemory(),
		System:    mem.SystemMemory(),
	}
}

// VisitDriver returns one driver's usage.
func (MemoryUsageVisitor) VisitDriver(d *driver.Context, prefix string) MemoryUsage {
	mem := d.Memory()

	return MemoryUsage{
		Path:      fmt.Sprintf("%s/pipeline-%d/driver-%d", prefix, d.PipelineID(), d.ID()),
		User:      mem.UserMemory(),
		Revocable: mem.RevocableMemory(),
		System:    mem.SystemMemory(),
	}
}

// MemoryUsageTree returns the usage of the pipeline followed by each active driver.
func MemoryUsageTree(p *Context, prefix string) []MemoryUsage {
	var v MemoryUsageVisitor

	return append([]MemoryUsage{Accept[string, MemoryUsage](p, v, prefix)}, AcceptChildren[string, MemoryUsage](p, v, prefix)...)
}
