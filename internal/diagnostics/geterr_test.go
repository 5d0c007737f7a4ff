package diagnostics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/diagnostics"
	"github.com/wharflab/tsls/internal/resourcemap"
	"github.com/wharflab/tsls/internal/tsproto"
)

type fakeClient struct {
	apiVersion    tsproto.APIVersion
	caps          tsproto.CapabilitySet
	resourceCaps  map[uri.URI]tsproto.CapabilitySet
	cfg           tsproto.Configuration
	tsPaths       map[uri.URI]string
	executeErr    error
	executedCmd   tsproto.Command
	executedArgs  any
	onComplete    func(error)
	executeCalled bool
}

func (c *fakeClient) APIVersion() tsproto.APIVersion      { return c.apiVersion }
func (c *fakeClient) Capabilities() tsproto.CapabilitySet { return c.caps }

func (c *fakeClient) HasCapabilityForResource(u uri.URI, cap tsproto.Capability) bool {
	if c.resourceCaps == nil {
		return false
	}
	return c.resourceCaps[u].Has(cap)
}

func (c *fakeClient) Configuration() tsproto.Configuration { return c.cfg }

func (c *fakeClient) ToTsFilePath(u uri.URI) (string, bool) {
	p, ok := c.tsPaths[u]
	return p, ok
}

func (c *fakeClient) ExecuteAsync(_ context.Context, cmd tsproto.Command, args any, onComplete func(error)) error {
	c.executeCalled = true
	c.executedCmd = cmd
	c.executedArgs = args
	c.onComplete = onComplete
	return c.executeErr
}

func immediatePoster(f func()) { f() }

func TestGetErrRequestDisabledWhenNoErrorReportingSupport(t *testing.T) {
	client := &fakeClient{
		apiVersion: tsproto.APIVersion{Major: 3, Minor: 0, Patch: 0},
		caps:       tsproto.NewCapabilitySet(),
	}
	files := resourcemap.NewSet(resourcemap.Config{})
	files.Set(uri.File("/tmp/a.ts"), struct{}{})

	var doneCalled bool
	var posted func()
	req := diagnostics.New(client, files, func() { doneCalled = true }, func(f func()) { posted = f })

	assert.False(t, doneCalled, "onDone must not fire synchronously inside New")
	require.NotNil(t, posted)
	posted()
	assert.True(t, doneCalled)
	assert.True(t, req.Done())
	assert.False(t, client.executeCalled)
}

func TestGetErrRequestEmptyFilteredListMarksDone(t *testing.T) {
	client := &fakeClient{
		apiVersion: tsproto.V4_4_0,
		caps:       tsproto.NewCapabilitySet(),
		tsPaths:    map[uri.URI]string{},
	}
	files := resourcemap.NewSet(resourcemap.Config{})
	files.Set(uri.File("/tmp/a.ts"), struct{}{}) // no ToTsFilePath mapping -> dropped

	var doneCalled bool
	req := diagnostics.New(client, files, func() { doneCalled = true }, immediatePoster)

	assert.True(t, doneCalled)
	assert.True(t, req.Done())
	assert.False(t, client.executeCalled)
}

func TestGetErrRequestIssuesGeterrForFilteredFiles(t *testing.T) {
	a := uri.File("/tmp/a.ts")
	client := &fakeClient{
		apiVersion: tsproto.V4_4_0,
		caps:       tsproto.NewCapabilitySet(),
		tsPaths:    map[uri.URI]string{a: "/tmp/a.ts"},
		cfg:        tsproto.Configuration{EnableProjectDiagnostics: false},
	}
	files := resourcemap.NewSet(resourcemap.Config{})
	files.Set(a, struct{}{})

	var doneCalled bool
	req := diagnostics.New(client, files, func() { doneCalled = true }, immediatePoster)

	require.True(t, client.executeCalled)
	assert.Equal(t, tsproto.CommandGeterr, client.executedCmd)
	args, ok := client.executedArgs.(tsproto.GeterrRequestArgs)
	require.True(t, ok)
	assert.Equal(t, []string{"/tmp/a.ts"}, args.Files)
	assert.False(t, doneCalled, "must not be done until the back-end resolves")

	client.onComplete(nil)
	assert.True(t, doneCalled)
	assert.True(t, req.Done())
}

func TestGetErrRequestUsesProjectCommandWhenEnabledAndSemantic(t *testing.T) {
	a := uri.File("/tmp/a.ts")
	client := &fakeClient{
		apiVersion: tsproto.V4_4_0,
		caps:       tsproto.NewCapabilitySet(tsproto.CapabilitySemantic),
		tsPaths:    map[uri.URI]string{a: "/tmp/a.ts"},
		cfg:        tsproto.Configuration{EnableProjectDiagnostics: true},
	}
	files := resourcemap.NewSet(resourcemap.Config{})
	files.Set(a, struct{}{})

	diagnostics.New(client, files, func() {}, immediatePoster)

	assert.Equal(t, tsproto.CommandGeterrForProject, client.executedCmd)
	args, ok := client.executedArgs.(tsproto.GeterrForProjectRequestArgs)
	require.True(t, ok)
	assert.Equal(t, "/tmp/a.ts", args.File)
}

func TestGetErrRequestCancelIsIdempotentAndMarksDone(t *testing.T) {
	a := uri.File("/tmp/a.ts")
	client := &fakeClient{
		apiVersion: tsproto.V4_4_0,
		caps:       tsproto.NewCapabilitySet(),
		tsPaths:    map[uri.URI]string{a: "/tmp/a.ts"},
	}
	files := resourcemap.NewSet(resourcemap.Config{})
	files.Set(a, struct{}{})

	var doneCount int
	req := diagnostics.New(client, files, func() { doneCount++ }, immediatePoster)

	req.Cancel()
	req.Cancel()

	assert.Equal(t, 1, doneCount)
	assert.True(t, req.Done())
}
