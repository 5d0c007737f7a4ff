// Package tabs tracks which resources are currently visible in at least
// one editor tab, independent of whether their buffer is synchronized.
package tabs

import (
	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/resourcemap"
)

// Tab is an opaque handle for a single editor tab. Tab values must be
// comparable (usable as a map key); the zero value is never a valid tab.
type Tab any

// Input is a tab's content descriptor, used to extract the resources it
// displays.
type Input struct {
	// Kind selects which fields are populated.
	Kind InputKind

	// URI is used by KindText and KindNotebook.
	URI uri.URI

	// Original and Modified are used by KindDiff.
	Original uri.URI
	Modified uri.URI
}

// InputKind discriminates Input's variant.
type InputKind int8

const (
	KindText InputKind = iota
	KindDiff
	KindNotebook
	KindOther
)

// resources returns the set of URIs a tab input displays.
func (in Input) resources() []uri.URI {
	switch in.Kind {
	case KindText, KindNotebook:
		return []uri.URI{in.URI}
	case KindDiff:
		return []uri.URI{in.Original, in.Modified}
	default:
		return nil
	}
}

// Change is the { opened, closed } event the Tracker emits once per
// batch of tab additions/removals that crossed a resource's
// empty/nonempty boundary.
type Change struct {
	Opened []uri.URI
	Closed []uri.URI
}

// Tracker maintains resource -> nonempty tab-set membership.
type Tracker struct {
	byResource *resourcemap.Map[map[Tab]struct{}]
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{byResource: resourcemap.New[map[Tab]struct{}](resourcemap.Config{})}
}

// Has reports whether u currently has at least one open tab.
func (t *Tracker) Has(u uri.URI) bool {
	return t.byResource.Has(u)
}

// Add registers tab as displaying the resources in in. It returns the
// resources that transitioned from untracked to tracked (newly opened).
func (t *Tracker) Add(tab Tab, in Input) []uri.URI {
	var opened []uri.URI
	for _, u := range in.resources() {
		set, ok := t.byResource.Get(u)
		if !ok {
			set = make(map[Tab]struct{})
			opened = append(opened, u)
		}
		set[tab] = struct{}{}
		t.byResource.Set(u, set)
	}
	return opened
}

// Delete removes tab from the resources it displayed in in. It returns
// the resources whose tab set became empty (newly closed).
func (t *Tracker) Delete(tab Tab, in Input) []uri.URI {
	var closed []uri.URI
	for _, u := range in.resources() {
		set, ok := t.byResource.Get(u)
		if !ok {
			continue
		}
		delete(set, tab)
		if len(set) == 0 {
			t.byResource.Delete(u)
			closed = append(closed, u)
		} else {
			t.byResource.Set(u, set)
		}
	}
	return closed
}

// Entry pairs a tab with its content descriptor for ApplyBatch.
type Entry struct {
	Tab   Tab
	Input Input
}

// ApplyBatch processes a batch of tab additions and removals, returning
// the aggregate Change for the whole batch (zero value if nothing
// crossed the empty/nonempty boundary).
func (t *Tracker) ApplyBatch(added, removed []Entry) Change {
	var change Change
	for _, e := range removed {
		change.Closed = append(change.Closed, t.Delete(e.Tab, e.Input)...)
	}
	for _, e := range added {
		change.Opened = append(change.Opened, t.Add(e.Tab, e.Input)...)
	}
	return change
}
