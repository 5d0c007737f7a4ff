package diagnostics

import (
	"context"

	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/resourcemap"
	"github.com/wharflab/tsls/internal/tsproto"
)

// Client is the subset of tsclient.Client a GetErrRequest needs. Unlike
// ExecuteWithoutWaitingForResponse (buffersync.Client), ExecuteAsync
// takes a context so the request can be abandoned via Cancel, and an
// onComplete callback invoked exactly once on success, failure, or
// cancellation.
type Client interface {
	APIVersion() tsproto.APIVersion
	Capabilities() tsproto.CapabilitySet
	HasCapabilityForResource(u uri.URI, c tsproto.Capability) bool
	Configuration() tsproto.Configuration
	ToTsFilePath(u uri.URI) (string, bool)
	ExecuteAsync(ctx context.Context, cmd tsproto.Command, args any, onComplete func(error)) error
}

// Poster defers f to the orchestrator's single dispatch loop rather than
// running it inline, so a caller constructing a GetErrRequest can always
// store the returned handle before onDone might fire.
type Poster func(f func())

// GetErrRequest represents the single in-flight diagnostics request the
// orchestrator may have outstanding at any time.
type GetErrRequest struct {
	files  *resourcemap.Set
	onDone func()
	cancel context.CancelCauseFunc
	done   bool
}

// New constructs a GetErrRequest for files and immediately issues (or
// short-circuits) the underlying back-end request. post must defer its
// argument at least to the next scheduler turn; it must never invoke it
// synchronously before New returns.
//
// When the client's configuration enables project diagnostics and the
// back-end has the semantic capability, the request is a single
// geterrForProject carrying only the first mapped file; the back-end
// computes diagnostics for that file's whole project. The remaining files
// are not sent.
func New(client Client, files *resourcemap.Set, onDone func(), post Poster) *GetErrRequest {
	r := &GetErrRequest{files: files, onDone: onDone}

	errorReportingEnabled := client.APIVersion().AtLeast(tsproto.V4_4_0) || client.Capabilities().Has(tsproto.CapabilitySemantic)
	if !errorReportingEnabled {
		post(r.markDone)
		return r
	}

	syntaxGetErrSupported := client.APIVersion().AtLeast(tsproto.V4_4_0)
	tsFiles := make([]string, 0, files.Size())
	for _, resource := range files.Resources() {
		if !syntaxGetErrSupported && !client.HasCapabilityForResource(resource, tsproto.CapabilitySemantic) {
			continue
		}
		path, ok := client.ToTsFilePath(resource)
		if !ok {
			continue
		}
		tsFiles = append(tsFiles, path)
	}

	if len(tsFiles) == 0 {
		post(r.markDone)
		return r
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	r.cancel = cancel

	cfg := client.Configuration()
	useProject := cfg.EnableProjectDiagnostics && client.Capabilities().Has(tsproto.CapabilitySemantic)

	var (
		command tsproto.Command
		args    any
	)
	if useProject {
		command = tsproto.CommandGeterrForProject
		args = tsproto.GeterrForProjectRequestArgs{Delay: 0, File: tsFiles[0]}
	} else {
		command = tsproto.CommandGeterr
		args = tsproto.GeterrRequestArgs{Delay: 0, Files: tsFiles}
	}

	if err := client.ExecuteAsync(ctx, command, args, func(error) { r.markDone() }); err != nil {
		post(r.markDone)
	}
	return r
}

// markDone invokes onDone exactly once, no matter how many times called.
func (r *GetErrRequest) markDone() {
	if r.done {
		return
	}
	r.done = true
	r.onDone()
}

// Cancel signals cancellation of the underlying back-end request, if
// still pending, and releases the handle. Idempotent.
func (r *GetErrRequest) Cancel() {
	if r.cancel != nil {
		r.cancel(context.Canceled)
	}
	r.markDone()
}

// Files returns the resource set this request was built from.
func (r *GetErrRequest) Files() *resourcemap.Set { return r.files }

// Done reports whether this request has resolved (successfully, by
// failure, or by cancellation).
func (r *GetErrRequest) Done() bool { return r.done }
