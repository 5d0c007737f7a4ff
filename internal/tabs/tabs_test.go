package tabs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/tabs"
)

func TestTrackerAddReportsNewlyOpened(t *testing.T) {
	tr := tabs.New()
	a := uri.File("/tmp/a.ts")

	opened := tr.Add("tab1", tabs.Input{Kind: tabs.KindText, URI: a})

	assert.Equal(t, []uri.URI{a}, opened)
	assert.True(t, tr.Has(a))
}

func TestTrackerAddSecondTabOnSameResourceDoesNotReopen(t *testing.T) {
	tr := tabs.New()
	a := uri.File("/tmp/a.ts")

	tr.Add("tab1", tabs.Input{Kind: tabs.KindText, URI: a})
	opened := tr.Add("tab2", tabs.Input{Kind: tabs.KindText, URI: a})

	assert.Empty(t, opened)
	assert.True(t, tr.Has(a))
}

func TestTrackerDeleteReportsNewlyClosedOnlyWhenEmpty(t *testing.T) {
	tr := tabs.New()
	a := uri.File("/tmp/a.ts")

	tr.Add("tab1", tabs.Input{Kind: tabs.KindText, URI: a})
	tr.Add("tab2", tabs.Input{Kind: tabs.KindText, URI: a})

	closed := tr.Delete("tab1", tabs.Input{Kind: tabs.KindText, URI: a})
	assert.Empty(t, closed, "resource still has tab2 open")
	assert.True(t, tr.Has(a))

	closed = tr.Delete("tab2", tabs.Input{Kind: tabs.KindText, URI: a})
	assert.Equal(t, []uri.URI{a}, closed)
	assert.False(t, tr.Has(a))
}

func TestTrackerDiffInputTracksBothSides(t *testing.T) {
	tr := tabs.New()
	orig := uri.File("/tmp/a.orig.ts")
	mod := uri.File("/tmp/a.ts")

	opened := tr.Add("diff-tab", tabs.Input{Kind: tabs.KindDiff, Original: orig, Modified: mod})

	require.Len(t, opened, 2)
	assert.True(t, tr.Has(orig))
	assert.True(t, tr.Has(mod))
}

func TestTrackerOtherInputKindYieldsNoResources(t *testing.T) {
	tr := tabs.New()
	opened := tr.Add("tab", tabs.Input{Kind: tabs.KindOther})
	assert.Empty(t, opened)
}

func TestTrackerApplyBatchAggregatesOpenedAndClosed(t *testing.T) {
	tr := tabs.New()
	a := uri.File("/tmp/a.ts")
	b := uri.File("/tmp/b.ts")
	tr.Add("tab-a", tabs.Input{Kind: tabs.KindText, URI: a})

	change := tr.ApplyBatch(
		[]tabs.Entry{{Tab: "tab-b", Input: tabs.Input{Kind: tabs.KindText, URI: b}}},
		[]tabs.Entry{{Tab: "tab-a", Input: tabs.Input{Kind: tabs.KindText, URI: a}}},
	)

	assert.Equal(t, []uri.URI{b}, change.Opened)
	assert.Equal(t, []uri.URI{a}, change.Closed)
	assert.True(t, tr.Has(b))
	assert.False(t, tr.Has(a))
}
