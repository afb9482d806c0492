// Package store keeps records of refinement runs.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("run record not found")

// Status is the lifecycle state of a run.
type Status string

// Run statuses.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Revision is the document state after one completed iteration.
type Revision struct {
	Iteration int    `json:"iteration"`
	Feedback  string `json:"feedback"`
	Document  string `json:"document"`
}

// RunRecord is the persisted view of one pipeline run.
type RunRecord struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	Status     Status     `json:"status"`
	Draft      string     `json:"draft,omitempty"`
	Document   string     `json:"document,omitempty"`
	Feedback   string     `json:"feedback,omitempty"`
	Iterations int        `json:"iterations"`
	Converged  bool       `json:"converged"`
	Error      string     `json:"error,omitempty"`
	History    []Revision `json:"history,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// Clone returns a deep copy of r.
func (r RunRecord) Clone() RunRecord {
	r.History = append([]Revision(nil), r.History...)
	return r
}

// Duration returns the run time, or zero while running.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists run records.
type Store interface {
	Save(ctx context.Context, rec RunRecord) error
	Get(ctx context.Context, id string) (RunRecord, error)
	List(ctx context.Context) ([]RunRecord, error)
}
