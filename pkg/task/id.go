// Package task implements the owning task of a set of pipelines: identity,
// session, lifecycle state, failure propagation, the task-wide spill budget
// and the root of the memory accounting tree.
package task

import (
	"fmt"
	"maps"
)

// ID identifies one attempt of one task of a query stage.
type ID struct {
	QueryID     string `json:"query_id"     yaml:"query_id"`
	StageID     int    `json:"stage_id"     yaml:"stage_id"`
	PartitionID int    `json:"partition_id" yaml:"partition_id"`
	AttemptID   int    `json:"attempt_id"   yaml:"attempt_id"`
}

// String renders the id as query.stage.partition.attempt.
func (id ID) String() string {
	return fmt.Sprintf("%s.%d.%d.%d", id.QueryID, id.StageID, id.PartitionID, id.AttemptID)
}

// Session carries the request-scoped attributes a task runs with.
type Session struct {
	User       string
	Source     string
	Properties map[string]string
}

// Property returns a session property and whether it was set.
func (s Session) Property(name string) (string, bool) {
	v, ok := s.Properties[name]

	return v, ok
}

// clone returns a copy whose property map is not shared with s.
func (s Session) clone() Session {
	s.Properties = maps.Clone(s.Properties)

	return s
}
