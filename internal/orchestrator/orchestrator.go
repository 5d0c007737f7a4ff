// Package orchestrator wires the resource map, buffer synchronizer,
// pending-diagnostics set, GetErr scheduler, tab tracker, and delayer
// into the single event-driven object an LSP transport layer drives:
// one call per editor event in, and at most one outstanding back-end
// diagnostics request out.
package orchestrator

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/buffer"
	"github.com/wharflab/tsls/internal/buffersync"
	"github.com/wharflab/tsls/internal/config"
	"github.com/wharflab/tsls/internal/delay"
	"github.com/wharflab/tsls/internal/diagnostics"
	"github.com/wharflab/tsls/internal/resourcemap"
	"github.com/wharflab/tsls/internal/tabs"
	"github.com/wharflab/tsls/internal/tsproto"
)

// Client is the full back-end surface Support needs: version/capability
// negotiation, the workspace-root and file-path identifier mappings, and
// the three request primitives buffersync and diagnostics issue.
// tsclient.Client satisfies this interface structurally, and Client in
// turn structurally satisfies both buffersync.Client and
// diagnostics.Client, so Support can hand its single client value
// straight to either package without an adapter.
type Client interface {
	APIVersion() tsproto.APIVersion
	Capabilities() tsproto.CapabilitySet
	HasCapabilityForResource(u uri.URI, c tsproto.Capability) bool
	Configuration() tsproto.Configuration
	ToTsFilePath(u uri.URI) (string, bool)
	GetWorkspaceRootForResource(u uri.URI) (string, bool)
	ExecuteWithoutWaitingForResponse(cmd tsproto.Command, args any)
	ExecuteAsync(ctx context.Context, cmd tsproto.Command, args any, onComplete func(error)) error
}

// linesPerDelayStep is the spec's fixed ceil(lineCount/20) divisor; the
// min/max/base/all-files bounds it feeds into are configurable and come
// from cfg.Diagnostics.
const linesPerDelayStep = 20

// Support is the Go realization of BufferSyncSupport: it reacts to
// editor events and drives the synchronizer and diagnostics scheduler.
// Every mutating method funnels its work through a single dispatch
// goroutine via run, so editor-event calls (which may arrive on any
// caller goroutine) and ExecuteAsync/delayer completions (which arrive
// on background goroutines via Dispatch) are always serialized on that
// one logical thread. No field below is read or written anywhere else.
type Support struct {
	client Client
	cfg    *config.Config
	log    *logrus.Entry

	synchronizer  *buffersync.Synchronizer
	buffers       *resourcemap.Map[*buffer.SyncedBuffer]
	pending       *diagnostics.Pending
	pendingGetErr *diagnostics.GetErrRequest
	tabs          *tabs.Tracker
	delayer       *delay.Delayer

	onDelete     func(uri.URI)
	onWillChange func(uri.URI)

	dispatchCh chan func()
	stopCh     chan struct{}
}

// Options configures a Support at construction.
type Options struct {
	// OnDelete is invoked when a tracked buffer is removed.
	OnDelete func(uri.URI)

	// OnWillChange is invoked immediately before a content change is
	// forwarded to a buffer.
	OnWillChange func(uri.URI)
}

// New constructs a Support wired to client using cfg's validation flags
// and delay bounds. A background goroutine drains Dispatch calls for the
// lifetime of the returned Support; call Close to stop it.
func New(client Client, cfg *config.Config, options Options) *Support {
	onDelete := options.OnDelete
	if onDelete == nil {
		onDelete = func(uri.URI) {}
	}
	onWillChange := options.OnWillChange
	if onWillChange == nil {
		onWillChange = func(uri.URI) {}
	}

	s := &Support{
		client:       client,
		cfg:          cfg,
		log:          logrus.WithField("component", "orchestrator"),
		synchronizer: buffersync.New(client),
		buffers:      resourcemap.New[*buffer.SyncedBuffer](resourcemap.Config{}),
		pending:      diagnostics.NewPending(),
		tabs:         tabs.New(),
		delayer:      delay.New(cfg.Diagnostics.BaseDelayMs),
		onDelete:     onDelete,
		onWillChange: onWillChange,
		dispatchCh:   make(chan func()),
		stopCh:       make(chan struct{}),
	}
	go s.runDispatchLoop()
	return s
}

func (s *Support) runDispatchLoop() {
	for {
		select {
		case f := <-s.dispatchCh:
			f()
		case <-s.stopCh:
			return
		}
	}
}

// Dispatch funnels f onto Support's single logical thread, without
// waiting for it to run. Safe to call from any goroutine, including a
// tsclient ExecuteAsync completion or a delayer firing.
func (s *Support) Dispatch(f func()) {
	select {
	case s.dispatchCh <- f:
	case <-s.stopCh:
	}
}

// run submits f to the dispatch loop and blocks until it has finished
// running there, so f executes serialized with every other dispatched
// function regardless of which goroutine called run.
func (s *Support) run(f func()) {
	done := make(chan struct{})
	select {
	case s.dispatchCh <- func() { f(); close(done) }:
	case <-s.stopCh:
		return
	}
	select {
	case <-done:
	case <-s.stopCh:
	}
}

// Close cancels any in-flight GetErr request and stops the dispatch
// loop. Support must not be used afterward.
func (s *Support) Close() {
	s.run(func() {
		if s.pendingGetErr != nil {
			s.pendingGetErr.Cancel()
			s.pendingGetErr = nil
		}
	})
	close(s.stopCh)
}

// DocumentOpened registers a newly opened editor buffer for resource,
// deriving the back-end file path and project root from doc's own URI.
// A language id this Support's config does not accept, or a resource
// already tracked, is silently ignored.
func (s *Support) DocumentOpened(doc buffer.Document) {
	s.run(func() { s.documentOpened(doc) })
}

func (s *Support) documentOpened(doc buffer.Document) {
	if !s.acceptsLanguage(doc.LanguageID()) {
		return
	}
	resource := doc.URI()
	if s.buffers.Has(resource) {
		return
	}
	filepath, ok := s.client.ToTsFilePath(resource)
	if !ok {
		return
	}
	projectRoot, _ := s.client.GetWorkspaceRootForResource(resource)

	b := buffer.New(s.synchronizer, doc, filepath, projectRoot, s.log.Warnf)
	s.buffers.Set(resource, b)
	b.Open()
	s.requestDiagnostic(b)
}

// DocumentClosed unregisters resource's buffer, if tracked, and
// re-requests diagnostics for every remaining buffer when the closed
// one had reached Open.
func (s *Support) DocumentClosed(resource uri.URI) {
	s.run(func() { s.documentClosed(resource) })
}

func (s *Support) documentClosed(resource uri.URI) {
	b, ok := s.buffers.Get(resource)
	if !ok {
		return
	}
	s.pending.Delete(resource)
	s.dropFromPendingGetErr(resource)

	s.buffers.Delete(resource)
	wasOpen := b.Close()
	s.onDelete(resource)

	if wasOpen {
		s.requestAllDiagnostics()
	}
}

// DocumentChanged forwards events to resource's tracked buffer and
// schedules its diagnostics. If the buffer turns out ineligible for
// validation and a GetErr request is in flight, that request is
// interrupted so the edit is not missed by the current cycle.
func (s *Support) DocumentChanged(resource uri.URI, events []buffer.ContentChangeEvent, priorDocument buffer.Document) {
	s.run(func() { s.documentChanged(resource, events, priorDocument) })
}

func (s *Support) documentChanged(resource uri.URI, events []buffer.ContentChangeEvent, priorDocument buffer.Document) {
	b, ok := s.buffers.Get(resource)
	if !ok {
		return
	}
	s.onWillChange(resource)
	b.OnContentChanged(events, priorDocument)

	if !s.requestDiagnostic(b) && s.pendingGetErr != nil {
		s.pendingGetErr.Cancel()
		s.pendingGetErr = nil
		s.triggerDiagnostics(s.cfg.Diagnostics.AllFilesDelayMs)
	}
}

// VisibleEditorsChanged schedules diagnostics for every tracked resource
// among visible.
func (s *Support) VisibleEditorsChanged(visible []uri.URI) {
	s.run(func() {
		for _, resource := range visible {
			if b, ok := s.buffers.Get(resource); ok {
				s.requestDiagnostic(b)
			}
		}
	})
}

// TabsChanged applies a batch of tab additions/removals. When project
// diagnostics are enabled, tab visibility no longer gates diagnostics,
// so the batch is ignored entirely.
func (s *Support) TabsChanged(added, removed []tabs.Entry) {
	s.run(func() { s.tabsChanged(added, removed) })
}

func (s *Support) tabsChanged(added, removed []tabs.Entry) {
	if s.cfg.Diagnostics.EnableProjectDiagnostics {
		return
	}
	change := s.tabs.ApplyBatch(added, removed)
	for _, resource := range change.Closed {
		if s.buffers.Has(resource) {
			s.pending.Delete(resource)
			s.dropFromPendingGetErr(resource)
		}
	}
	for _, resource := range change.Opened {
		if b, ok := s.buffers.Get(resource); ok {
			s.requestDiagnostic(b)
		}
	}
}

// BeforeCommand delegates to the synchronizer, which flushes ahead of
// any command other than UpdateOpen itself.
func (s *Support) BeforeCommand(command tsproto.Command) {
	s.run(func() { s.synchronizer.BeforeCommand(command) })
}

// requestDiagnostic enqueues resource's buffer for the next diagnostics
// drain if it is eligible, returning whether it was enqueued.
func (s *Support) requestDiagnostic(b *buffer.SyncedBuffer) bool {
	if !s.shouldValidate(b) {
		return false
	}
	s.pending.Enqueue(b.Resource(), time.Now())
	s.triggerDiagnostics(s.clampDelay(b.Document().LineCount()))
	return true
}

// requestAllDiagnostics enqueues every validatable tracked buffer for
// the next diagnostics drain.
func (s *Support) requestAllDiagnostics() {
	for _, b := range s.buffers.Values() {
		if s.shouldValidate(b) {
			s.pending.Enqueue(b.Resource(), time.Now())
		}
	}
	s.triggerDiagnostics(s.cfg.Diagnostics.AllFilesDelayMs)
}

// triggerDiagnostics debounces a call to sendPendingDiagnostics.
func (s *Support) triggerDiagnostics(delayMs int) {
	s.delayer.TriggerAfter(time.Duration(delayMs)*time.Millisecond, func() {
		s.Dispatch(s.sendPendingDiagnostics)
	})
}

// sendPendingDiagnostics drains pendingDiagnostics, folds in any
// still-live files from an in-flight GetErr, and appends every
// currently synced buffer before issuing one new GetErrRequest.
func (s *Support) sendPendingDiagnostics() {
	ordered := s.pending.GetOrderedFileSet()
	seen := make(map[uri.URI]struct{}, len(ordered))
	for _, r := range ordered {
		seen[r] = struct{}{}
	}

	if s.pendingGetErr != nil {
		s.pendingGetErr.Cancel()
		for _, r := range s.pendingGetErr.Files().Resources() {
			if _, dup := seen[r]; dup {
				continue
			}
			if s.buffers.Has(r) {
				ordered = append(ordered, r)
				seen[r] = struct{}{}
			}
		}
		s.pendingGetErr = nil
	}

	for _, r := range s.buffers.Resources() {
		if _, dup := seen[r]; dup {
			continue
		}
		ordered = append(ordered, r)
		seen[r] = struct{}{}
	}

	s.pending.Clear()

	if len(ordered) == 0 {
		return
	}

	files := resourcemap.NewSet(resourcemap.Config{})
	for _, r := range ordered {
		files.Set(r, struct{}{})
	}

	var req *diagnostics.GetErrRequest
	req = diagnostics.New(s.client, files, func() {
		if s.pendingGetErr == req {
			s.pendingGetErr = nil
		}
	}, func(f func()) {
		// This runs on the dispatch goroutine, which cannot receive its own
		// send on the unbuffered channel; post from a fresh goroutine.
		go s.Dispatch(f)
	})
	s.pendingGetErr = req
}

// shouldValidate reports whether b is currently eligible for diagnostics.
func (s *Support) shouldValidate(b *buffer.SyncedBuffer) bool {
	if !s.cfg.Diagnostics.EnableProjectDiagnostics && !s.tabs.Has(b.Resource()) {
		return false
	}
	switch b.Kind() {
	case buffer.KindTypeScript:
		return s.cfg.Validate.TypeScript
	case buffer.KindJavaScript:
		return s.cfg.Validate.JavaScript
	default:
		return false
	}
}

// InterruptGetErr cancels any pending GetErr request (unless project
// diagnostics are enabled, in which case there is nothing to preserve),
// runs f, and re-triggers diagnostics when an interruption occurred. f's
// return value is passed through unchanged.
func (s *Support) InterruptGetErr(f func() any) any {
	var result any
	s.run(func() {
		if s.pendingGetErr == nil || s.cfg.Diagnostics.EnableProjectDiagnostics {
			result = f()
			return
		}
		s.pendingGetErr.Cancel()
		s.pendingGetErr = nil
		result = f()
		s.triggerDiagnostics(s.cfg.Diagnostics.AllFilesDelayMs)
	})
	return result
}

// Reset cancels any in-flight GetErr, clears pending diagnostics, and
// resets the synchronizer. Synced buffers are left untouched.
func (s *Support) Reset() {
	s.run(s.reset)
}

func (s *Support) reset() {
	if s.pendingGetErr != nil {
		s.pendingGetErr.Cancel()
		s.pendingGetErr = nil
	}
	s.pending.Clear()
	s.synchronizer.Reset()
}

// Reinitialize resets and then re-opens every tracked buffer, for use
// after the back-end process has been restarted.
func (s *Support) Reinitialize() {
	s.run(func() {
		s.reset()
		for _, b := range s.buffers.Values() {
			b.Open()
		}
	})
}

func (s *Support) dropFromPendingGetErr(resource uri.URI) {
	if s.pendingGetErr == nil {
		return
	}
	s.pendingGetErr.Files().Delete(resource)
}

func (s *Support) acceptsLanguage(languageID string) bool {
	switch languageID {
	case "typescript", "typescriptreact":
		return s.cfg.Validate.TypeScript
	case "javascript", "javascriptreact":
		return s.cfg.Validate.JavaScript
	default:
		return false
	}
}

// clampDelay implements clamp(ceil(lineCount/20), cfg.MinDelayMs, cfg.MaxDelayMs).
func (s *Support) clampDelay(lineCount int) int {
	steps := int(math.Ceil(float64(lineCount) / linesPerDelayStep))
	lo, hi := s.cfg.Diagnostics.MinDelayMs, s.cfg.Diagnostics.MaxDelayMs
	switch {
	case steps < lo:
		return lo
	case steps > hi:
		return hi
	default:
		return steps
	}
}
