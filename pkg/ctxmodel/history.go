package ctxmodel

import (
	"fmt"
	"sync"

	"github.com/brokkworkbench/core/pkg/project"
)

// History is a per-session, totally-ordered chain of Context snapshots
// (§3, §5 "Context snapshots are totally ordered by push into
// ContextHistory"). It holds only a callback for "snapshot produced"
// rather than a back-reference to its owner, per the spec's design note on
// breaking the ContextManager/ContextHistory cycle into a unidirectional
// handle.
type History struct {
	mu        sync.Mutex
	snapshots []*Context

	// onSnapshotProduced fires whenever a new snapshot is appended, letting
	// an owner (e.g. the Context Manager) react without History holding a
	// reference back to it.
	onSnapshotProduced func(*Context)
}

// NewHistory creates a History seeded with root as its first snapshot. If
// root is nil, an Empty() context is used.
func NewHistory(root *Context) *History {
	if root == nil {
		root = Empty()
	}
	return &History{snapshots: []*Context{root}}
}

// SetSnapshotCallback installs the callback invoked after each Push.
func (h *History) SetSnapshotCallback(cb func(*Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSnapshotProduced = cb
}

// Current returns the most recent snapshot.
func (h *History) Current() *Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshots[len(h.snapshots)-1]
}

// Push appends a new snapshot, invoking the snapshot-produced callback if
// one is set.
func (h *History) Push(c *Context) {
	h.mu.Lock()
	h.snapshots = append(h.snapshots, c)
	cb := h.onSnapshotProduced
	h.mu.Unlock()
	if cb != nil {
		cb(c)
	}
}

// All returns every snapshot in push order (oldest first).
func (h *History) All() []*Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Context{}, h.snapshots...)
}

// ProcessExternalFileChangesIfNeeded produces and pushes a new "external
// change" snapshot when changed intersects the current context's files (or
// changed is empty, per §4.F's backward-compatibility rule), returning the
// new snapshot. Returns (nil, false) when no snapshot was needed.
func (h *History) ProcessExternalFileChangesIfNeeded(changed []project.ProjectFile) (*Context, bool) {
	current := h.Current()
	if len(changed) > 0 && !intersects(changed, current.Files()) {
		return nil, false
	}

	next := current.clone()
	next.ActionDescription = externalChangeDescription(changed)
	h.Push(next)
	return next, true
}

func externalChangeDescription(changed []project.ProjectFile) string {
	if len(changed) == 0 {
		return "External change detected"
	}
	return fmt.Sprintf("External change: %d file(s) modified outside the workbench", len(changed))
}

func intersects(a, b []project.ProjectFile) bool {
	set := make(map[string]bool, len(b))
	for _, f := range b {
		set[f.RelPath()] = true
	}
	for _, f := range a {
		if set[f.RelPath()] {
			return true
		}
	}
	return false
}
