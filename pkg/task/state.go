package task

// State is the lifecycle state of a task.
type State int32

// Task states. Finished, Canceled, Aborted and Failed are terminal.
const (
	StatePlanned State = iota
	StateRunning
	StateFlushing
	StateFinished
	StateCanceled
	StateAborted
	StateFailed
)

var stateNames = [...]string{
	StatePlanned:  "PLANNED",
	StateRunning:  "RUNNING",
	StateFlushing: "FLUSHING",
	StateFinished: "FINISHED",
	StateCanceled: "CANCELED",
	StateAborted:  "ABORTED",
	StateFailed:   "FAILED",
}

// String returns the upper-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}

	return stateNames[s]
}

// IsDone reports whether s is terminal.
func (s State) IsDone() bool {
	return s >= StateFinished
}
