package driver

import "time"

// IO holds the input and output counters shared by driver and pipeline stats.
type IO struct {
	PhysicalInputBytes     int64         `json:"physical_input_bytes"     yaml:"physical_input_bytes"`
	PhysicalInputPositions int64         `json:"physical_input_positions" yaml:"physical_input_positions"`
	PhysicalInputReadTime  time.Duration `json:"physical_input_read_time" yaml:"physical_input_read_time"`

	InternalNetworkInputBytes     int64 `json:"internal_network_input_bytes"     yaml:"internal_network_input_bytes"`
	InternalNetworkInputPositions int64 `json:"internal_network_input_positions" yaml:"internal_network_input_positions"`

	RawInputBytes     int64 `json:"raw_input_bytes"     yaml:"raw_input_bytes"`
	RawInputPositions int64 `json:"raw_input_positions" yaml:"raw_input_positions"`

	ProcessedInputBytes     int64 `json:"processed_input_bytes"     yaml:"processed_input_bytes"`
	ProcessedInputPositions int64 `json:"processed_input_positions" yaml:"processed_input_positions"`

	OutputBytes     int64 `json:"output_bytes"     yaml:"output_bytes"`
	OutputPositions int64 `json:"output_positions" yaml:"output_positions"`

	PhysicalWrittenBytes int64 `json:"physical_written_bytes" yaml:"physical_written_bytes"`
}

// Add returns the field-wise sum of io and other.
func (io IO) Add(other IO) IO {
	return IO{
		PhysicalInputBytes:            io.PhysicalInputBytes + other.PhysicalInputBytes,
		PhysicalInputPositions:        io.PhysicalInputPositions + other.PhysicalInputPositions,
		PhysicalInputReadTime:         io.PhysicalInputReadTime + other.PhysicalInputReadTime,
		InternalNetworkInputBytes:     io.InternalNetworkInputBytes + other.InternalNetworkInputBytes,
		InternalNetworkInputPositions: io.InternalNetworkInputPositions + other.InternalNetworkInputPositions,
		RawInputBytes:                 io.RawInputBytes + other.RawInputBytes,
		RawInputPositions:             io.RawInputPositions + other.RawInputPositions,
		ProcessedInputBytes:           io.ProcessedInputBytes + other.ProcessedInputBytes,
		ProcessedInputPositions:       io.ProcessedInputPositions + other.ProcessedInputPositions,
		OutputBytes:                   io.OutputBytes + other.OutputBytes,
		OutputPositions:               io.OutputPositions + other.OutputPositions,
		PhysicalWrittenBytes:          io.PhysicalWrittenBytes + other.PhysicalWrittenBytes,
	}
}
