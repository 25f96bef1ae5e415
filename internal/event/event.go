package event

import (
	"log/slog"
	"time"
)

// Kind discriminates the event variants carried on a run's bus.
type Kind string

const (
	// KindLog is a progress/log line, including per-lane fetch outcomes.
	KindLog Kind = "log"
	// KindChunk carries one ordered increment of generated report text.
	KindChunk Kind = "chunk"
	// KindRunStarted opens a run's event sequence.
	KindRunStarted Kind = "run_started"
	// KindRunCompleted is the terminal success event; Report holds the full text.
	KindRunCompleted Kind = "run_completed"
	// KindRunFailed is the terminal failure event; Report holds any partial text.
	KindRunFailed Kind = "run_failed"
	// KindAdvisory reports a non-fatal condition after the run already
	// succeeded, e.g. a failed PDF export.
	KindAdvisory Kind = "advisory"
)

// Stage names the orchestrator phase a lifecycle Log event announces.
type Stage string

const (
	StageDiscovering  Stage = "discovering"
	StageSourcesFound Stage = "sources_found"
	StageFetching     Stage = "fetching"
	StageFetchDone    Stage = "fetch_complete"
	StageGenerating   Stage = "generating"
)

// Event is one entry in a run's strictly ordered sequence. Seq is assigned by
// the bus at publish time and is strictly increasing within a run.
type Event struct {
	Seq       int64      `json:"seq"`
	Kind      Kind       `json:"kind"`
	Time      time.Time  `json:"time"`
	Level     slog.Level `json:"level,omitempty"`
	Stage     Stage      `json:"stage,omitempty"`
	Message   string     `json:"message,omitempty"`
	ChunkIdx  int        `json:"chunk_idx,omitempty"`
	ChunkText string     `json:"chunk_text,omitempty"`
	Report    string     `json:"report,omitempty"`
	Err       string     `json:"error,omitempty"`
}

// Terminal reports whether the event closes a run's sequence.
func (e Event) Terminal() bool {
	return e.Kind == KindRunCompleted || e.Kind == KindRunFailed
}

// Log builds a log event at the given level.
func Log(level slog.Level, message string) Event {
	return Event{Kind: KindLog, Level: level, Message: message}
}

// StageLog builds the single lifecycle event announcing a phase transition.
func StageLog(stage Stage, message string) Event {
	return Event{Kind: KindLog, Level: slog.LevelInfo, Stage: stage, Message: message}
}

// Chunk builds a report increment event.
func Chunk(idx int, text string) Event {
	return Event{Kind: KindChunk, ChunkIdx: idx, ChunkText: text}
}

// Advisory builds a non-fatal post-success notice.
func Advisory(message string) Event {
	return Event{Kind: KindAdvisory, Level: slog.LevelWarn, Message: message}
}
