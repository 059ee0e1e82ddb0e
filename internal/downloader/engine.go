package downloader

import (
	"context"
	"errors"
	"time"
)

// ErrCanceled is the distinguished cancellation outcome. Engines must return
// it (possibly wrapped) when a retrieval is aborted through the progress hook;
// it maps to the canceled status, never to an error record.
var ErrCanceled = errors.New("canceled by user")

// FetchSpec configures one retrieval.
type FetchSpec struct {
	URL            string
	Format         string // yt-dlp format selector
	OutputTemplate string
	ExtractAudio   bool
	AudioFormat    string
	AudioQuality   string
}

type EventKind int

const (
	EventDownloading EventKind = iota
	EventFinished
)

// ProgressEvent is one report from the engine, emitted on the worker that
// runs the retrieval.
type ProgressEvent struct {
	Kind            EventKind
	DownloadedBytes int64
	TotalBytes      int64         // best available estimate, 0 when unknown
	Speed           float64       // bytes per second, 0 when unknown
	ETA             time.Duration
	Filename        string
	Title           string
}

// Result carries what a successful retrieval produced.
type Result struct {
	OutputFile string
	Title      string
}

// ProgressFunc is invoked synchronously for every engine report. Returning a
// non-nil error aborts the retrieval; the engine surfaces that error from
// Fetch. This is the only point where cancellation can take effect: an
// engine busy inside a long operation (a post-processing step, a stalled
// read) cannot be interrupted until it reports again.
type ProgressFunc func(ev ProgressEvent) error

// Engine performs one blocking media retrieval. Implementations are opaque to
// the orchestrator: they block until done and return either a result,
// ErrCanceled, or a failure.
type Engine interface {
	Fetch(ctx context.Context, spec FetchSpec, hook ProgressFunc) (*Result, error)
}
