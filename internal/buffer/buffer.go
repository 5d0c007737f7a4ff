// Package buffer implements the per-file state machine that tracks a
// single editor buffer from first open through close, adapting its
// document text and language id into the shapes the synchronizer sends
// to the back-end.
package buffer

import (
	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/tsproto"
)

// bufferState is the SyncedBuffer lifecycle position. Values are
// distinct and ordered so that monotonic transitions can be asserted by
// comparison (Initial < Open < Closed).
type bufferState int8

const (
	stateInitial bufferState = iota
	stateOpen
	stateClosed
)

func (s bufferState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind is the pure classification of a buffer's language id.
type Kind string

const (
	KindTypeScript Kind = "typescript"
	KindJavaScript Kind = "javascript"
	KindUnknown    Kind = ""
)

// Document is the caller-supplied immutable snapshot of editor state for
// one buffer. Implementations must not mutate any value a prior call
// returned.
type Document interface {
	Text() string
	LanguageID() string
	LineCount() int
	URI() uri.URI
}

// kindByLanguageID classifies a buffer by its editor-reported language
// id. Unrecognized ids yield KindUnknown; callers decide whether that is
// an error.
func kindByLanguageID(languageID string) Kind {
	switch languageID {
	case "typescript", "typescriptreact":
		return KindTypeScript
	case "javascript", "javascriptreact":
		return KindJavaScript
	default:
		return KindUnknown
	}
}

// scriptKindByLanguageID derives the back-end ScriptKind for a language
// id, returning "" when unknown (the field is then omitted on the wire).
func scriptKindByLanguageID(languageID string) tsproto.ScriptKind {
	switch languageID {
	case "typescript":
		return tsproto.ScriptKindTS
	case "typescriptreact":
		return tsproto.ScriptKindTSX
	case "javascript":
		return tsproto.ScriptKindJS
	case "javascriptreact":
		return tsproto.ScriptKindJSX
	default:
		return ""
	}
}

// ContentChangeEvent is a single LSP-style incremental text edit. Range
// is nil for a full-document replacement.
type ContentChangeEvent struct {
	Range *Range
	Text  string
}

// Range is an inclusive-start, exclusive-end span given in 0-based
// line/column editor coordinates (tsserver's 1-based positions are
// derived from these at the synchronizer boundary).
type Range struct {
	StartLine, StartColumn int
	EndLine, EndColumn     int
}

// Synchronizer is the subset of buffersync.Synchronizer a SyncedBuffer
// depends on. Kept narrow so this package never imports buffersync.
// resource is the buffer's URI, the coalescing key; filepath/args carry
// the back-end's own file identifier and payload.
type Synchronizer interface {
	Open(resource uri.URI, args tsproto.OpenRequestArgs)
	Close(resource uri.URI, filepath string) bool
	Change(resource uri.URI, filepath string, events []ContentChangeEvent, priorDocument Document)
}

// SyncedBuffer tracks one editor buffer's synchronization lifecycle.
type SyncedBuffer struct {
	document        Document
	filepath        string
	projectRootPath string
	state           bufferState
	sync            Synchronizer

	resource    uri.URI
	resourceSet bool
	warn        func(string, ...any)
}

// New constructs a buffer in its Initial state. filepath is the back-end
// file identifier (a filesystem path, typically); projectRootPath may be
// empty.
func New(sync Synchronizer, document Document, filepath, projectRootPath string, warn func(string, ...any)) *SyncedBuffer {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &SyncedBuffer{
		document:        document,
		filepath:        filepath,
		projectRootPath: projectRootPath,
		state:           stateInitial,
		sync:            sync,
		warn:            warn,
	}
}

// Filepath returns the back-end file identifier.
func (b *SyncedBuffer) Filepath() string { return b.filepath }

// Kind classifies this buffer's language id.
func (b *SyncedBuffer) Kind() Kind { return kindByLanguageID(b.document.LanguageID()) }

// State reports the buffer's current lifecycle position.
func (b *SyncedBuffer) State() string { return b.state.String() }

// IsOpen reports whether the buffer is currently in the Open state.
func (b *SyncedBuffer) IsOpen() bool { return b.state == stateOpen }

// Resource parses and caches the document's URI.
func (b *SyncedBuffer) Resource() uri.URI {
	if !b.resourceSet {
		b.resource = b.document.URI()
		b.resourceSet = true
	}
	return b.resource
}

// Open transitions Initial -> Open, forwarding an OpenRequestArgs built
// from the current document snapshot to the synchronizer.
func (b *SyncedBuffer) Open() {
	args := tsproto.OpenRequestArgs{
		File:            b.filepath,
		FileContent:     b.document.Text(),
		ProjectRootPath: b.projectRootPath,
		ScriptKindName:  scriptKindByLanguageID(b.document.LanguageID()),
	}
	b.sync.Open(b.Resource(), args)
	b.state = stateOpen
}

// Close transitions to Closed. It reports whether the buffer had been
// observably open, propagating the synchronizer's own verdict when it
// was; a buffer that is closed before ever reaching Open reports false
// without consulting the synchronizer.
func (b *SyncedBuffer) Close() bool {
	wasOpen := b.state == stateOpen
	if !wasOpen {
		b.state = stateClosed
		return false
	}
	observed := b.sync.Close(b.Resource(), b.filepath)
	b.state = stateClosed
	return observed
}

// OnContentChanged forwards edits to the synchronizer. Edits arriving
// outside the Open state are logged but still forwarded; an empty
// event list is a no-op regardless of state.
func (b *SyncedBuffer) OnContentChanged(events []ContentChangeEvent, priorDocument Document) {
	if len(events) == 0 {
		return
	}
	if b.state != stateOpen {
		b.warn("content change received for buffer %s in state %s; forwarding anyway", b.filepath, b.state)
	}
	b.sync.Change(b.Resource(), b.filepath, events, priorDocument)
}

// UpdateDocument swaps in a newer document snapshot, e.g. after the
// caller has applied edits to its own model.
func (b *SyncedBuffer) UpdateDocument(doc Document) {
	b.document = doc
	b.resourceSet = false
}

// Document returns the buffer's current immutable snapshot.
func (b *SyncedBuffer) Document() Document { return b.document }
