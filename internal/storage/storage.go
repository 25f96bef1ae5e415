// Package storage archives finished runs. The archive is a write-mostly audit
// trail; live run state never goes through it.
package storage

import (
	"context"
	"time"
)

// Run statuses as archived.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRecord is the durable summary of one finished run.
type RunRecord struct {
	ID        string
	Topic     string
	Status    string // completed | failed
	Sources   int    // candidates discovered
	FetchedOK int    // lanes that produced content
	Report    string // full or partial report text
	Duration  time.Duration
	CreatedAt time.Time
	Error     string // non-empty for failed runs
}

// Filter narrows archive queries.
type Filter struct {
	Topic  string
	Status string
	Since  *time.Time
	Limit  int
	Offset int
}

// Backend defines the interface for archiving and querying runs.
type Backend interface {
	Save(ctx context.Context, rec *RunRecord) error
	Query(ctx context.Context, filter Filter) ([]*RunRecord, error)
	Close() error
}
