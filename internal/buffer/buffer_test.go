package buffer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/buffer"
	"github.com/wharflab/tsls/internal/tsproto"
)

type fakeDocument struct {
	text       string
	languageID string
	uri        uri.URI
}

func (d fakeDocument) Text() string       { return d.text }
func (d fakeDocument) LanguageID() string { return d.languageID }
func (d fakeDocument) LineCount() int     { return 1 }
func (d fakeDocument) URI() uri.URI       { return d.uri }

type recordingSync struct {
	opened []tsproto.OpenRequestArgs
	closed []string
	closeReturn bool
	changed     []string
}

func (r *recordingSync) Open(resource uri.URI, args tsproto.OpenRequestArgs) {
	r.opened = append(r.opened, args)
}

func (r *recordingSync) Close(resource uri.URI, filepath string) bool {
	r.closed = append(r.closed, filepath)
	return r.closeReturn
}

func (r *recordingSync) Change(resource uri.URI, filepath string, events []buffer.ContentChangeEvent, prior buffer.Document) {
	r.changed = append(r.changed, filepath)
}

func TestSyncedBufferOpenTransitionsAndBuildsArgs(t *testing.T) {
	sync := &recordingSync{}
	doc := fakeDocument{text: "const x = 1;", languageID: "typescript", uri: uri.File("/tmp/a.ts")}
	b := buffer.New(sync, doc, "/tmp/a.ts", "/tmp", nil)

	assert.Equal(t, "initial", b.State())

	b.Open()

	assert.Equal(t, "open", b.State())
	assert.True(t, b.IsOpen())
	require.Len(t, sync.opened, 1)
	assert.Equal(t, "/tmp/a.ts", sync.opened[0].File)
	assert.Equal(t, "const x = 1;", sync.opened[0].FileContent)
	assert.Equal(t, tsproto.ScriptKindTS, sync.opened[0].ScriptKindName)
}

func TestSyncedBufferUnknownLanguageOmitsScriptKind(t *testing.T) {
	sync := &recordingSync{}
	doc := fakeDocument{text: "", languageID: "plaintext", uri: uri.File("/tmp/a.txt")}
	b := buffer.New(sync, doc, "/tmp/a.txt", "", nil)

	b.Open()

	require.Len(t, sync.opened, 1)
	assert.Equal(t, tsproto.ScriptKind(""), sync.opened[0].ScriptKindName)
	assert.Equal(t, buffer.KindUnknown, b.Kind())
}

func TestSyncedBufferCloseBeforeOpenReturnsFalseWithoutDelegating(t *testing.T) {
	sync := &recordingSync{closeReturn: true}
	doc := fakeDocument{languageID: "javascript", uri: uri.File("/tmp/a.js")}
	b := buffer.New(sync, doc, "/tmp/a.js", "", nil)

	observed := b.Close()

	assert.False(t, observed)
	assert.Equal(t, "closed", b.State())
	assert.Empty(t, sync.closed, "synchronizer must not be consulted for a never-opened buffer")
}

func TestSyncedBufferCloseAfterOpenPropagatesSynchronizerVerdict(t *testing.T) {
	sync := &recordingSync{closeReturn: false}
	doc := fakeDocument{languageID: "javascript", uri: uri.File("/tmp/a.js")}
	b := buffer.New(sync, doc, "/tmp/a.js", "", nil)
	b.Open()

	observed := b.Close()

	assert.False(t, observed)
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, []string{"/tmp/a.js"}, sync.closed)
}

func TestSyncedBufferStateNeverLeavesClosed(t *testing.T) {
	sync := &recordingSync{}
	doc := fakeDocument{languageID: "typescript", uri: uri.File("/tmp/a.ts")}
	b := buffer.New(sync, doc, "/tmp/a.ts", "", nil)

	b.Open()
	b.Close()
	b.Close()

	assert.Equal(t, "closed", b.State())
}

func TestSyncedBufferOnContentChangedEmptyEventsIsNoOp(t *testing.T) {
	sync := &recordingSync{}
	doc := fakeDocument{languageID: "typescript", uri: uri.File("/tmp/a.ts")}
	b := buffer.New(sync, doc, "/tmp/a.ts", "", nil)
	b.Open()

	b.OnContentChanged(nil, doc)

	assert.Empty(t, sync.changed)
}

func TestSyncedBufferOnContentChangedForwardsWhenOpen(t *testing.T) {
	sync := &recordingSync{}
	doc := fakeDocument{languageID: "typescript", uri: uri.File("/tmp/a.ts")}
	b := buffer.New(sync, doc, "/tmp/a.ts", "", nil)
	b.Open()

	b.OnContentChanged([]buffer.ContentChangeEvent{{Text: "x"}}, doc)

	assert.Equal(t, []string{"/tmp/a.ts"}, sync.changed)
}

func TestSyncedBufferOnContentChangedWarnsButStillForwardsOutsideOpen(t *testing.T) {
	sync := &recordingSync{}
	doc := fakeDocument{languageID: "typescript", uri: uri.File("/tmp/a.ts")}
	var warned bool
	b := buffer.New(sync, doc, "/tmp/a.ts", "", func(string, ...any) { warned = true })

	b.OnContentChanged([]buffer.ContentChangeEvent{{Text: "x"}}, doc)

	assert.True(t, warned)
	assert.Equal(t, []string{"/tmp/a.ts"}, sync.changed)
}

func TestSyncedBufferResourceIsCached(t *testing.T) {
	calls := 0
	doc := countingURIDocument{languageID: "typescript", calls: &calls}
	b := buffer.New(&recordingSync{}, doc, "/tmp/a.ts", "", nil)

	first := b.Resource()
	second := b.Resource()

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

type countingURIDocument struct {
	languageID string
	calls      *int
}

func (d countingURIDocument) Text() string       { return "" }
func (d countingURIDocument) LanguageID() string { return d.languageID }
func (d countingURIDocument) LineCount() int     { return 0 }
func (d countingURIDocument) URI() uri.URI {
	*d.calls++
	return uri.File("/tmp/a.ts")
}
