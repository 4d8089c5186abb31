package driver

import (
	"time"

	"github.com/Sumatoshi-tech/pipetrack/pkg/operator"
)

// Stats is a point-in-time snapshot of one driver.
type Stats struct {
	DriverID    int    `json:"driver_id"          yaml:"driver_id"`
	Lifespan    string `json:"lifespan,omitempty" yaml:"lifespan,omitempty"`
	SplitWeight int64  `json:"split_weight"       yaml:"split_weight"`

	CreateTime time.Time `json:"create_time"          yaml:"create_time"`
	StartTime  time.Time `json:"start_time,omitzero"  yaml:"start_time,omitempty"`
	EndTime    time.Time `json:"end_time,omitzero"    yaml:"end_time,omitempty"`

	QueuedTime  time.Duration `json:"queued_time"  yaml:"queued_time"`
	ElapsedTime time.Duration `json:"elapsed_time" yaml:"elapsed_time"`

	UserMemory      int64 `json:"user_memory"      yaml:"user_memory"`
	RevocableMemory int64 `json:"revocable_memory" yaml:"revocable_memory"`
	SystemMemory    int64 `json:"system_memory"    yaml:"system_memory"`

	TotalScheduledTime time.Duration `json:"total_scheduled_time" yaml:"total_scheduled_time"`
	TotalCPUTime       time.Duration `json:"total_cpu_time"       yaml:"total_cpu_time"`
	TotalBlockedTime   time.Duration `json:"total_blocked_time"   yaml:"total_blocked_time"`

	FullyBlocked   bool                     `json:"fully_blocked"             yaml:"fully_blocked"`
	BlockedReasons []operator.BlockedReason `json:"blocked_reasons,omitempty" yaml:"blocked_reasons,omitempty"`

	IO `yaml:",inline"`

	Operators []operator.Stats `json:"operators,omitempty" yaml:"operators,omitempty"`
}

// Started reports whether the driver began executing.
func (s Stats) Started() bool { return !s.StartTime.IsZero() }

// Ended reports whether the driver finished executing.
func (s Stats) Ended() bool { return !s.EndTime.IsZero() }
