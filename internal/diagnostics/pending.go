// Package diagnostics tracks which resources are awaiting a diagnostics
// push and manages the single in-flight back-end request that resolves
// them.
package diagnostics

import (
	"sort"
	"time"

	"go.lsp.dev/uri"

	"github.com/wharflab/tsls/internal/resourcemap"
)

// Pending is a ResourceMap<timestamp> of files awaiting a diagnostics
// request. A later enqueue of an already-pending resource overwrites its
// timestamp, per spec: "a later request supersedes an earlier one for
// the same file."
type Pending struct {
	*resourcemap.Map[time.Time]
}

// NewPending constructs an empty Pending set.
func NewPending() *Pending {
	return &Pending{Map: resourcemap.New[time.Time](resourcemap.Config{})}
}

// Enqueue records that resource is due for diagnostics as of at.
func (p *Pending) Enqueue(resource uri.URI, at time.Time) {
	p.Set(resource, at)
}

// GetOrderedFileSet returns every pending resource ordered oldest-enqueued
// first, breaking ties by insertion order.
func (p *Pending) GetOrderedFileSet() []uri.URI {
	entries := p.Entries() // already insertion order; the tie-break for equal timestamps
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value.Before(entries[j].Value)
	})
	out := make([]uri.URI, len(entries))
	for i, e := range entries {
		out[i] = e.Resource
	}
	return out
}
