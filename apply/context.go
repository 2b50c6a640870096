package apply

import (
	"io"
	"time"
)

// Phase identifies which part of the task's lifecycle is currently being
// dispatched (spec.md §3, function context).
type Phase int

// The three phases a task event can run in, in the fixed order they occur.
const (
	PhaseInit Phase = iota
	PhaseFile
	PhaseFinish
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseFile:
		return "file"
	case PhaseFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// ReadFunc pulls the next chunk of the resource currently being streamed. It
// is installed on the context only for the execute pass's on-resource events
// (spec.md §3) and is backed by the sparse reader (component A).
type ReadFunc func() (buffer []byte, length int, logicalOffset int64, err error)

// FatBindFunc binds the FAT write-back cache to a partition block offset (in
// 512-byte units), or performs a final flush when offset is negative
// (component B's contract).
type FatBindFunc func(blockOffset int64) (*FatCache, error)

// OutputSink is the positional-I/O handle the engine writes the archive onto.
// A sink that only implements io.WriterAt disables the legacy MBR constraint
// and any action that reads (spec.md §6).
type OutputSink interface {
	io.WriterAt
	Close() error
}

// ReaderOutputSink is the superset of OutputSink that also supports
// positional reads, required for the legacy MBR partition-1 constraint.
type ReaderOutputSink interface {
	OutputSink
	io.ReaderAt
}

// Context is the capability struct actions receive: exactly the
// collaborators they need, nothing more (spec.md Design Note 9 — this
// replaces the original's opaque "cookie"). It is created fresh per Apply
// call and torn down on return.
type Context struct {
	Output   OutputSink
	Config   *Config
	Task     *Task
	Progress ProgressReporter

	// CreationTime is the firmware's creation date (parsed as RFC 3339), or
	// the FAT epoch when the manifest has none or it does not parse. It is
	// held here rather than in a process-global register. It is not passed
	// to internal/fatfs: directory records written by the fat_* actions are
	// stamped with the current wall-clock time.
	CreationTime time.Time

	Phase Phase

	// Event is set only while an event's action list is being dispatched
	// (component D) and is guaranteed to be cleared on every exit path,
	// success or failure.
	Event *EventSection

	// Read is set only during the execute pass, once the sparse reader for
	// the current resource has been initialized.
	Read ReadFunc

	// CurrentResource is set while an on-resource section is being
	// dispatched (either pass), giving actions like raw_write access to the
	// resource's declared length without threading it through action args.
	CurrentResource *FileResource

	// BindFat requests that the FAT cache controller (component B) bind to
	// (or flush, for a negative offset) the given partition block offset.
	BindFat FatBindFunc
}
