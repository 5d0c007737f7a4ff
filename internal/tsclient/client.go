// Package tsclient implements the JSON-RPC connection to the
// TypeScript/JavaScript analysis back-end ("tsserver"), translating the
// buffersync/diagnostics packages' narrow command interfaces into actual
// wire requests.
package tsclient

import (
	"context"
	"encoding/json"
	"io"

	"golang.org/x/exp/jsonrpc2"

	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/resourcemap"
	"github.com/wharflab/tsls/internal/tsproto"
)

// Logger is the narrow logging surface tsclient depends on, so this
// package stays usable with any structured logger the caller wires in.
type Logger interface {
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...any) {}

// Client is the full surface the rest of this module depends on to talk
// to the back-end: protocol version and capability negotiation, the
// file-path mapping, and the three request shapes buffersync and
// diagnostics issue.
type Client interface {
	APIVersion() tsproto.APIVersion
	Capabilities() tsproto.CapabilitySet
	HasCapabilityForResource(u uri.URI, c tsproto.Capability) bool
	Configuration() tsproto.Configuration
	ToTsFilePath(u uri.URI) (string, bool)
	GetWorkspaceRootForResource(u uri.URI) (string, bool)
	Execute(ctx context.Context, cmd tsproto.Command, args any) (json.RawMessage, error)
	ExecuteWithoutWaitingForResponse(cmd tsproto.Command, args any)
	ExecuteAsync(ctx context.Context, cmd tsproto.Command, args any, onComplete func(error)) error
}

// Options configures a jsonClient at construction time.
type Options struct {
	// APIVersion is the back-end protocol version learned from its
	// startup handshake (out of scope for this module: the caller
	// performs the handshake and reports the result here).
	APIVersion tsproto.APIVersion

	// Capabilities are the back-end's globally advertised capabilities.
	Capabilities tsproto.CapabilitySet

	// Configuration is the back-end configuration this adapter reads.
	Configuration tsproto.Configuration

	// ToTsFilePath maps an editor URI to the back-end's file identifier.
	// A nil func defaults to a same-scheme filesystem-path mapping.
	ToTsFilePath func(u uri.URI) (string, bool)

	// GetWorkspaceRootForResource maps an editor URI to the project root
	// path passed as SyncedBuffer.projectRootPath. A nil func means no
	// workspace root is ever reported.
	GetWorkspaceRootForResource func(u uri.URI) (string, bool)

	// Dispatch, when set, funnels every async completion callback
	// through the caller's single dispatch loop, preserving the
	// orchestrator's single-logical-thread guarantee even though each
	// ExecuteAsync waits for its result on its own goroutine. A nil
	// Dispatch runs callbacks directly on that waiting goroutine.
	Dispatch func(func())

	Logger Logger
}

// jsonClient is the concrete Client backed by golang.org/x/exp/jsonrpc2.
type jsonClient struct {
	conn          *jsonrpc2.Connection
	apiVersion    tsproto.APIVersion
	caps          tsproto.CapabilitySet
	resourceCaps  *resourcemap.Map[tsproto.CapabilitySet]
	cfg           tsproto.Configuration
	toTsFilePath  func(uri.URI) (string, bool)
	workspaceRoot func(uri.URI) (string, bool)
	dispatch      func(func())
	log           Logger
}

// Dial opens a JSON-RPC connection to the back-end over rwc (stdio to a
// real tsserver process, or a pipe in tests) and returns a Client. The
// back-end may also push unsolicited events (e.g. semantic diagnostics);
// decoding those is outside this module's scope, so unhandled requests
// are simply reported as such.
func Dial(ctx context.Context, rwc io.ReadWriteCloser, opts Options) (Client, error) {
	conn, err := jsonrpc2.Dial(ctx, rwcDialer{rwc: rwc}, jsonrpc2.ConnectionOptions{
		Framer: jsonrpc2.HeaderFramer(),
		Handler: jsonrpc2.HandlerFunc(func(context.Context, *jsonrpc2.Request) (any, error) {
			return nil, jsonrpc2.ErrNotHandled
		}),
	})
	if err != nil {
		return nil, err
	}
	return newClient(conn, opts), nil
}

func newClient(conn *jsonrpc2.Connection, opts Options) *jsonClient {
	toTsFilePath := opts.ToTsFilePath
	if toTsFilePath == nil {
		toTsFilePath = defaultToTsFilePath
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	caps := opts.Capabilities
	if caps == nil {
		caps = tsproto.NewCapabilitySet()
	}
	return &jsonClient{
		conn:          conn,
		apiVersion:    opts.APIVersion,
		caps:          caps,
		resourceCaps:  resourcemap.New[tsproto.CapabilitySet](resourcemap.Config{}),
		cfg:           opts.Configuration,
		toTsFilePath:  toTsFilePath,
		workspaceRoot: opts.GetWorkspaceRootForResource,
		dispatch:      opts.Dispatch,
		log:           logger,
	}
}

func defaultToTsFilePath(u uri.URI) (string, bool) {
	if u == "" {
		return "", false
	}
	return u.Filename(), true
}

func (c *jsonClient) APIVersion() tsproto.APIVersion      { return c.apiVersion }
func (c *jsonClient) Capabilities() tsproto.CapabilitySet { return c.caps }

// HasCapabilityForResource reports whether cap is advertised globally or
// for u specifically. SetResourceCapabilities lets the caller record
// per-project capability overrides as projects are discovered.
func (c *jsonClient) HasCapabilityForResource(u uri.URI, cap tsproto.Capability) bool {
	if c.caps.Has(cap) {
		return true
	}
	if perResource, ok := c.resourceCaps.Get(u); ok {
		return perResource.Has(cap)
	}
	return false
}

// SetResourceCapabilities records the capability set observed for a
// specific project/resource. It only adds to the global set for that
// URI: a capability advertised globally is reported regardless.
func (c *jsonClient) SetResourceCapabilities(u uri.URI, caps tsproto.CapabilitySet) {
	c.resourceCaps.Set(u, caps)
}

func (c *jsonClient) Configuration() tsproto.Configuration { return c.cfg }

func (c *jsonClient) ToTsFilePath(u uri.URI) (string, bool) { return c.toTsFilePath(u) }

// GetWorkspaceRootForResource reports the project root path for u, if the
// caller configured one; otherwise it always reports none.
func (c *jsonClient) GetWorkspaceRootForResource(u uri.URI) (string, bool) {
	if c.workspaceRoot == nil {
		return "", false
	}
	return c.workspaceRoot(u)
}

// Execute issues cmd and blocks for its response.
func (c *jsonClient) Execute(ctx context.Context, cmd tsproto.Command, args any) (json.RawMessage, error) {
	call := c.conn.Call(ctx, string(cmd), args)
	var result json.RawMessage
	if err := call.Await(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ExecuteWithoutWaitingForResponse sends cmd as a notification; the
// back-end's acknowledgement, if any, is discarded.
func (c *jsonClient) ExecuteWithoutWaitingForResponse(cmd tsproto.Command, args any) {
	if err := c.conn.Notify(context.Background(), string(cmd), args); err != nil {
		c.log.Warnf("tsclient: notify %s failed: %v", cmd, err)
	}
}

// ExecuteAsync issues cmd from the calling goroutine, then waits for the
// result on a new background goroutine and invokes onComplete exactly
// once, via Dispatch when configured, when the response arrives, the
// call fails, or ctx is cancelled.
func (c *jsonClient) ExecuteAsync(ctx context.Context, cmd tsproto.Command, args any, onComplete func(error)) error {
	call := c.conn.Call(ctx, string(cmd), args)
	go func() {
		var result json.RawMessage
		err := call.Await(ctx, &result)
		if c.dispatch != nil {
			c.dispatch(func() { onComplete(err) })
			return
		}
		onComplete(err)
	}()
	return nil
}

// rwcDialer adapts an already-open io.ReadWriteCloser to jsonrpc2.Dialer,
// the same role wharflab-tally/internal/lspserver's stdioDialer plays
// for stdin/stdout; here the transport is caller-supplied so the same
// client works over stdio or an in-process pipe in tests.
type rwcDialer struct {
	rwc io.ReadWriteCloser
}

func (d rwcDialer) Dial(context.Context) (io.ReadWriteCloser, error) {
	return d.rwc, nil
}
