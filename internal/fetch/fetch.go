// Package fetch retrieves candidate sources concurrently. Each source gets an
// independent lane racing against the per-source timeout; a lane failure
// degrades the corpus but never aborts its siblings.
package fetch

import (
	"fmt"
	"time"

	"github.com/FranksOps/scout/internal/discovery"
)

// ErrorKind classifies a lane failure.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindHTTPStatus ErrorKind = "http_status"
	KindParse      ErrorKind = "parse"
	KindBlocked    ErrorKind = "blocked" // disallowed by robots.txt
)

// Error is a typed per-lane fetch failure.
type Error struct {
	Kind   ErrorKind
	URL    string
	Status int // set for KindHTTPStatus
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Page is the readable content extracted from a fetched source.
type Page struct {
	Title      string
	Text       string
	StatusCode int
	Bytes      int
	Duration   time.Duration
}

// Result pairs one candidate with its lane outcome. Exactly one of Page and
// Err is set. Results are immutable once produced.
type Result struct {
	Source discovery.Candidate
	Page   *Page
	Err    *Error
}

// OK reports whether the lane produced content.
func (r Result) OK() bool { return r.Err == nil && r.Page != nil }

// TimedOut reports whether the lane was abandoned at the per-source timeout.
func (r Result) TimedOut() bool { return r.Err != nil && r.Err.Kind == KindTimeout }

// Outcome names the lane result for logs and metrics.
func (r Result) Outcome() string {
	if r.OK() {
		return "success"
	}
	return string(r.Err.Kind)
}

// CountOK returns how many results carry content.
func CountOK(results []Result) int {
	n := 0
	for _, r := range results {
		if r.OK() {
			n++
		}
	}
	return n
}
