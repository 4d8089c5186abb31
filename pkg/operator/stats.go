// Package operator defines per-operator execution statistics and the combine
// operation used to merge statistics from many drivers of one pipeline.
package operator

import (
	"cmp"
	"slices"
	"time"
)

// BlockedReason tags why a driver cannot make progress.
type BlockedReason string

// Known blocked reasons.
const (
	BlockedWaitingForMemory   BlockedReason = "WAITING_FOR_MEMORY"
	BlockedWaitingForInput    BlockedReason = "WAITING_FOR_INPUT"
	BlockedWaitingForOutput   BlockedReason = "WAITING_FOR_OUTPUT"
	BlockedWaitingForSpill    BlockedReason = "WAITING_FOR_SPILL"
	BlockedWaitingForExchange BlockedReason = "WAITING_FOR_EXCHANGE"
)

// SortReasons returns a sorted, de-duplicated copy of reasons.
func SortReasons(reasons []BlockedReason) []BlockedReason {
	out := slices.Clone(reasons)
	slices.Sort(out)

	return slices.Compact(out)
}

// Stats holds metrics for one operator of one or more drivers.
//
// Add is commutative and associative: every numeric field is summed, and the
// identifying fields are taken from whichever operand has the lower plan node
// id so that the result does not depend on merge order.
type Stats struct {
	PipelineID   int    `json:"pipeline_id"   yaml:"pipeline_id"`
	OperatorID   int    `json:"operator_id"   yaml:"operator_id"`
	PlanNodeID   string `json:"plan_node_id"  yaml:"plan_node_id"`
	OperatorType string `json:"operator_type" yaml:"operator_type"`

	// TotalDrivers counts how many driver instances contributed to this entry.
	TotalDrivers int64 `json:"total_drivers" yaml:"total_drivers"`

	AddInputCalls     int64         `json:"add_input_calls"      yaml:"add_input_calls"`
	AddInputWall      time.Duration `json:"add_input_wall"       yaml:"add_input_wall"`
	AddInputCPU       time.Duration `json:"add_input_cpu"        yaml:"add_input_cpu"`
	GetOutputCalls    int64         `json:"get_output_calls"     yaml:"get_output_calls"`
	GetOutputWall     time.Duration `json:"get_output_wall"      yaml:"get_output_wall"`
	GetOutputCPU      time.Duration `json:"get_output_cpu"       yaml:"get_output_cpu"`
	FinishCalls       int64         `json:"finish_calls"         yaml:"finish_calls"`
	FinishWall        time.Duration `json:"finish_wall"          yaml:"finish_wall"`
	FinishCPU         time.Duration `json:"finish_cpu"           yaml:"finish_cpu"`
	BlockedWall       time.Duration `json:"blocked_wall"         yaml:"blocked_wall"`
	InputBytes        int64         `json:"input_bytes"          yaml:"input_bytes"`
	InputPositions    int64         `json:"input_positions"      yaml:"input_positions"`
	OutputBytes       int64         `json:"output_bytes"         yaml:"output_bytes"`
	OutputPositions   int64         `json:"output_positions"     yaml:"output_positions"`
	PhysicalWritten   int64         `json:"physical_written"     yaml:"physical_written"`
	SpilledBytes      int64         `json:"spilled_bytes"        yaml:"spilled_bytes"`
	UserMemory        int64         `json:"user_memory"          yaml:"user_memory"`
	RevocableMemory   int64         `json:"revocable_memory"     yaml:"revocable_memory"`
	PeakUserMemory    int64         `json:"peak_user_memory"     yaml:"peak_user_memory"`
	PeakTotalMemory   int64         `json:"peak_total_memory"    yaml:"peak_total_memory"`
	DynamicFilterRows int64         `json:"dynamic_filter_rows"  yaml:"dynamic_filter_rows"`
}

// Add returns the combination of s and other. Neither operand is modified.
func (s Stats) Add(other Stats) Stats {
	base, extra := s, other
	if cmp.Or(cmp.Compare(other.PlanNodeID, s.PlanNodeID), cmp.Compare(other.OperatorType, s.OperatorType)) < 0 {
		base, extra = other, s
	}

	base.TotalDrivers += extra.TotalDrivers
	base.AddInputCalls += extra.AddInputCalls
	base.AddInputWall += extra.AddInputWall
	base.AddInputCPU += extra.AddInputCPU
	base.GetOutputCalls += extra.GetOutputCalls
	base.GetOutputWall += extra.GetOutputWall
	base.GetOutputCPU += extra.GetOutputCPU
	base.FinishCalls += extra.FinishCalls
	base.FinishWall += extra.FinishWall
	base.FinishCPU += extra.FinishCPU
	base.BlockedWall += extra.BlockedWall
	base.InputBytes += extra.InputBytes
	base.InputPositions += extra.InputPositions
	base.OutputBytes += extra.OutputBytes
	base.OutputPositions += extra.OutputPositions
	base.PhysicalWritten += extra.PhysicalWritten
	base.SpilledBytes += extra.SpilledBytes
	base.UserMemory += extra.UserMemory
	base.RevocableMemory += extra.RevocableMemory
	base.PeakUserMemory = max(base.PeakUserMemory, extra.PeakUserMemory)
	base.PeakTotalMemory = max(base.PeakTotalMemory, extra.PeakTotalMemory)
	base.DynamicFilterRows += extra.DynamicFilterRows

	return base
}

// AddAll folds others into s in order.
func (s Stats) AddAll(others ...Stats) Stats {
	for _, o := range others {
		s = s.Add(o)
	}

	return s
}

// Combine merges a non-empty list of stats for the same operator.
// It reports false when stats is empty.
func Combine(stats []Stats) (Stats, bool) {
	if len(stats) == 0 {
		return Stats{}, false
	}

	return stats[0].AddAll(stats[1:]...), true
}

// TotalCPU returns the CPU time spent in all operator calls.
func (s Stats) TotalCPU() time.Duration {
	return s.AddInputCPU + s.GetOutputCPU + s.FinishCPU
}

// TotalWall returns the wall time spent in all operator calls.
func (s Stats) TotalWall() time.Duration {
	return s.AddInputWall + s.GetOutputWall + s.FinishWall
}

// SortByID orders stats by operator id in place.
func SortByID(stats []Stats) {
	slices.SortFunc(stats, func(a, b Stats) int {
		return cmp.Compare(a.OperatorID, b.OperatorID)
	})
}
