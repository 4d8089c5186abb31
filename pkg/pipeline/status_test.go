package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/pipetrack/pkg/pipeline"
)

type fakeDriver struct {
	started bool
	blocked bool
	weight  int64
}

func (f fakeDriver) IsExecutionStarted() bool { return f.started }
func (f fakeDriver) IsFullyBlocked() bool     { return f.blocked }
func (f fakeDriver) SplitWeight() int64       { return f.weight }

func TestProjectStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      pipeline.StatusInput
		drivers []fakeDriver
		want    pipeline.Status
	}{
		{
			name: "negative queued clamps to zero",
			in:   pipeline.StatusInput{Partitioned: true, TotalSplits: 1, CompletedDrivers: 1, ActiveWeight: 4},
			drivers: []fakeDriver{
				{started: true, weight: 4},
			},
			want: pipeline.Status{
				RunningDrivers:                 1,
				RunningPartitionedDrivers:      1,
				RunningPartitionedSplitsWeight: 4,
			},
		},
		{
			name: "weight without queued driver is dropped",
			in:   pipeline.StatusInput{Partitioned: true, TotalSplits: 1, ActiveWeight: 9},
			drivers: []fakeDriver{
				{started: true, weight: 4},
			},
			want: pipeline.Status{
				RunningDrivers:                 1,
				RunningPartitionedDrivers:      1,
				RunningPartitionedSplitsWeight: 4,
			},
		},
		{
			name: "negative queued weight clamps to zero",
			in:   pipeline.StatusInput{Partitioned: true, TotalSplits: 3, ActiveWeight: 2},
			drivers: []fakeDriver{
				{started: true, blocked: true, weight: 5},
			},
			want: pipeline.Status{
				QueuedDrivers:            2,
				BlockedDrivers:           1,
				QueuedPartitionedDrivers: 2,
			},
		},
		{
			name: "unpartitioned ignores weights and split counters",
			in:   pipeline.StatusInput{TotalSplits: 100, ActiveWeight: 50},
			drivers: []fakeDriver{
				{weight: 3},
				{started: true, weight: 3},
				{started: true, blocked: true},
			},
			want: pipeline.Status{QueuedDrivers: 1, RunningDrivers: 1, BlockedDrivers: 1},
		},
		{
			name: "empty",
			in:   pipeline.StatusInput{Partitioned: true},
			want: pipeline.Status{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, pipeline.ProjectStatus(tt.in, tt.drivers))
		})
	}
}
