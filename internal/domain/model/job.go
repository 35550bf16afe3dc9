package model

import "time"

type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// IsTerminal reports whether no further transition can leave s.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// CanTransition reports whether from -> to is a legal edge.
// There is no retrying state: a job is executed at most once.
func CanTransition(from, to JobState) bool {
	switch from {
	case JobStateQueued:
		return to == JobStateActive
	case JobStateActive:
		return to == JobStateCompleted || to == JobStateFailed
	}
	return false
}

type Job struct {
	ID            string
	Request       LookupRequest
	State         JobState
	FailureReason string
	CreatedAt     time.Time
	StartedAt     time.Time
}

// JobReceipt is what remains of a job after it reaches a terminal state.
// It holds no booking data; completed results live only in the result cache.
type JobReceipt struct {
	ID            string        `json:"id"`
	State         JobState      `json:"state"`
	FailureReason string        `json:"failureReason,omitempty"`
	Request       LookupRequest `json:"request"`
	FinishedAt    time.Time     `json:"finishedAt"`
}
