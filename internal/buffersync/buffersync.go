// Package buffersync coalesces per-buffer open/close/change operations
// into a single batched request when the back-end supports it, and
// forwards them one at a time otherwise.
package buffersync

import (
	"strings"
	"unicode/utf16"

	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/buffer"
	"github.com/wharflab/tsls/internal/resourcemap"
	"github.com/wharflab/tsls/internal/tsproto"
)

// Client is the subset of tsclient.Client the synchronizer needs: the
// back-end's protocol version (to decide batching mode) and the request
// primitives it issues.
type Client interface {
	APIVersion() tsproto.APIVersion
	ExecuteWithoutWaitingForResponse(command tsproto.Command, args any)
}

type opKind int8

const (
	opOpen opKind = iota
	opClose
	opChange
)

// bufferOp is a closed 3-variant sum: exactly one of the payload fields
// is meaningful, selected by kind.
type bufferOp struct {
	kind opKind

	filepath string // opOpen, opClose, opChange

	openArgs tsproto.OpenRequestArgs // opOpen

	changes []buffer.ContentChangeEvent // opChange
	prior   buffer.Document             // opChange
}

// Synchronizer implements the buffer.Synchronizer contract, coalescing
// operations per resource and flushing them as a single UpdateOpen
// request when the back-end's protocol version supports batching.
type Synchronizer struct {
	client  Client
	pending *resourcemap.Map[bufferOp]
}

// New constructs a Synchronizer bound to client. Synchronizer is a leaf
// data-structure package: it stays silent and logs nothing itself,
// leaving that to the orchestrator.
func New(client Client) *Synchronizer {
	return &Synchronizer{
		client:  client,
		pending: resourcemap.New[bufferOp](resourcemap.Config{}),
	}
}

// supportsBatching reports whether the connected back-end understands
// the batched updateOpen command.
func (s *Synchronizer) supportsBatching() bool {
	return s.client.APIVersion().AtLeast(tsproto.V3_4_0)
}

// Open forwards or enqueues an open operation for resource.
func (s *Synchronizer) Open(resource uri.URI, args tsproto.OpenRequestArgs) {
	if !s.supportsBatching() {
		s.client.ExecuteWithoutWaitingForResponse(tsproto.CommandOpen, args)
		return
	}
	s.updatePending(resource, bufferOp{kind: opOpen, filepath: args.File, openArgs: args})
}

// Close forwards or enqueues a close operation for resource. It reports
// whether the back-end ever observably learned the file was open.
func (s *Synchronizer) Close(resource uri.URI, filepath string) bool {
	if !s.supportsBatching() {
		s.client.ExecuteWithoutWaitingForResponse(tsproto.CommandClose, tsproto.CloseRequestArgs{File: filepath})
		return true
	}
	return s.updatePending(resource, bufferOp{kind: opClose, filepath: filepath})
}

// Change forwards or enqueues a change operation for resource.
func (s *Synchronizer) Change(resource uri.URI, filepath string, events []buffer.ContentChangeEvent, priorDocument buffer.Document) {
	if !s.supportsBatching() {
		for _, edit := range changeEventsToTextChanges(events, priorDocument) {
			s.client.ExecuteWithoutWaitingForResponse(tsproto.CommandChange, tsproto.ChangeRequestArgs{
				File:         filepath,
				Line:         edit.Start.Line,
				Offset:       edit.Start.Offset,
				EndLine:      edit.End.Line,
				EndOffset:    edit.End.Offset,
				InsertString: edit.NewText,
			})
		}
		return
	}
	s.updatePending(resource, bufferOp{kind: opChange, filepath: filepath, changes: events, prior: priorDocument})
}

// updatePending applies the three coalescing rules from the component
// design to newOp, storing it (or discarding it) in the pending map. It
// reports whether the back-end now knows, or will know after the next
// flush, about this resource's existence (used as Close's "was
// observably open" signal).
func (s *Synchronizer) updatePending(resource uri.URI, newOp bufferOp) bool {
	existing, hasPending := s.pending.Get(resource)

	if hasPending && existing.kind == opOpen && newOp.kind == opClose {
		// The back-end never learned about this buffer; nothing to send.
		s.pending.Delete(resource)
		return false
	}

	if hasPending {
		// Any other collision forces a full flush first, preserving causal
		// order between this resource and every other pending resource.
		s.Flush()
	}

	s.pending.Set(resource, newOp)
	return true
}

// Flush partitions all pending operations by type and sends them as one
// batched, non-recoverable UpdateOpen request, then clears the pending
// map. It is a no-op when nothing is pending.
func (s *Synchronizer) Flush() {
	entries := s.pending.Entries()
	if len(entries) == 0 {
		return
	}

	var args tsproto.UpdateOpenRequestArgs
	for _, e := range entries {
		op := e.Value
		switch op.kind {
		case opOpen:
			args.OpenFiles = append(args.OpenFiles, op.openArgs)
		case opClose:
			args.ClosedFiles = append(args.ClosedFiles, op.filepath)
		case opChange:
			args.ChangedFiles = append(args.ChangedFiles, tsproto.ChangedFile{
				FileName:    op.filepath,
				TextChanges: changeEventsToTextChanges(op.changes, op.prior),
			})
		}
	}

	s.pending.Clear()
	s.client.ExecuteWithoutWaitingForResponse(tsproto.CommandUpdateOpen, args)
}

// BeforeCommand forces a flush ahead of any command other than
// updateOpen itself, so that command observes a consistent buffer set.
func (s *Synchronizer) BeforeCommand(command tsproto.Command) {
	if command == tsproto.CommandUpdateOpen {
		return
	}
	s.Flush()
}

// Reset discards all pending operations without flushing them.
func (s *Synchronizer) Reset() {
	s.pending.Clear()
}

// changeEventsToTextChanges converts LSP-style content change events
// into back-end TextChange edits using 1-based line/offset positions,
// then reverses the list so edits apply end-of-document first; applying
// them in that order at the back-end never invalidates a later edit's
// position.
func changeEventsToTextChanges(events []buffer.ContentChangeEvent, prior buffer.Document) []tsproto.TextChange {
	if len(events) == 0 {
		return nil
	}
	out := make([]tsproto.TextChange, 0, len(events))
	for _, ev := range events {
		if ev.Range == nil {
			// Full-document replacement: replace from the very start to the
			// very end of the prior snapshot.
			endLine, endCol := endOfDocument(prior)
			out = append(out, tsproto.TextChange{
				Start:   tsproto.Position{Line: 1, Offset: 1},
				End:     tsproto.Position{Line: endLine, Offset: endCol},
				NewText: ev.Text,
			})
			continue
		}
		out = append(out, tsproto.TextChange{
			Start:   tsproto.Position{Line: ev.Range.StartLine + 1, Offset: ev.Range.StartColumn + 1},
			End:     tsproto.Position{Line: ev.Range.EndLine + 1, Offset: ev.Range.EndColumn + 1},
			NewText: ev.Text,
		})
	}
	reverse(out)
	return out
}

func endOfDocument(prior buffer.Document) (line, column int) {
	if prior == nil {
		return 1, 1
	}
	// The end position is just past the last character of the prior text;
	// offsets count UTF-16 code units, as LSP columns do.
	text := prior.Text()
	lastLine := text[strings.LastIndex(text, "\n")+1:]
	return strings.Count(text, "\n") + 1, len(utf16.Encode([]rune(lastLine))) + 1
}

func reverse(changes []tsproto.TextChange) {
	for i, j := 0, len(changes)-1; i < j; i, j = i+1, j-1 {
		changes[i], changes[j] = changes[j], changes[i]
	}
}
