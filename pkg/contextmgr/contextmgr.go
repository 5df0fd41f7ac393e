// Package contextmgr implements the Context Manager (§4.F): owns the live
// Context, the Suppression Registry, and the Pending Change Set, and
// coordinates refresh callbacks in response to watcher batches and build
// completions.
//
// Grounded directly on spec.md §4.F/§5/§9 — the spec's own design notes
// prescribe the unidirectional-handle (ctxmodel.History holds only a
// callback) and atomic-consume suppression design implemented here. The
// mutex-guarded-map concurrency idiom mirrors the pack's
// wesm-agentsview/internal/sync/watcher.go pending-map pattern.
package contextmgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/brokkworkbench/core/pkg/classify"
	"github.com/brokkworkbench/core/pkg/ctxmodel"
	"github.com/brokkworkbench/core/pkg/logging"
	"github.com/brokkworkbench/core/pkg/project"
	"github.com/brokkworkbench/core/pkg/watch"
)

// ConsoleIO is the UI-dispatch boundary (§5 "refresh callbacks are
// dispatched to UI thread via IConsoleIO.update*()"). GUI panels
// themselves are out of scope (spec.md §1); this is the narrow interface
// the Context Manager calls through.
type ConsoleIO interface {
	UpdateCommitPanel()
	RefreshGitRepo()
	RefreshWorkspace()
	ToolError(msg, title string)
}

// NoopConsoleIO is a ConsoleIO that does nothing; useful as a default and
// in tests that don't assert on UI dispatch.
type NoopConsoleIO struct{}

func (NoopConsoleIO) UpdateCommitPanel()           {}
func (NoopConsoleIO) RefreshGitRepo()              {}
func (NoopConsoleIO) RefreshWorkspace()            {}
func (NoopConsoleIO) ToolError(msg, title string)  {}

const defaultSuppressionTTL = 2 * time.Second

// Manager is the Context Manager (§4.F). It owns the live Context (via its
// History), the suppression registry, and the pending change set, and
// holds a shared reference to the File Watch Service it listens to.
type Manager struct {
	history *ctxmodel.History
	watcher *watch.Service
	io      ConsoleIO
	logger  *logging.Logger

	ttlMu sync.RWMutex
	ttl   time.Duration

	suppressMu sync.Mutex
	suppressed map[string]time.Time // ProjectFile.RelPath() -> expiry

	pendingMu sync.Mutex
	pending   map[string]project.ProjectFile

	buildMu        sync.Mutex
	pausedForBuild bool

	root project.Root
}

// New constructs a Manager over history and watcher, rooted at root, with
// io as the UI-dispatch boundary. watcher is held as a shared reference
// only: New does not register the Manager with it. The Manager implements
// watch.Listener (OnFilesChanged), so a caller adds it with AddListener.
func New(root project.Root, history *ctxmodel.History, watcher *watch.Service, io ConsoleIO) *Manager {
	if io == nil {
		io = NoopConsoleIO{}
	}
	m := &Manager{
		history:    history,
		watcher:    watcher,
		io:         io,
		logger:     logging.Get(root.Abs()),
		ttl:        defaultSuppressionTTL,
		suppressed: make(map[string]time.Time),
		pending:    make(map[string]project.ProjectFile),
		root:       root,
	}
	return m
}

// SetIO is a narrow testing seam (§9) letting a test swap the UI-dispatch
// boundary after construction.
func (m *Manager) SetIO(io ConsoleIO) {
	if io == nil {
		io = NoopConsoleIO{}
	}
	m.io = io
}

// SetContextHistoryForTests is a narrow testing seam (§9) letting a test
// replace the live History.
func (m *Manager) SetContextHistoryForTests(h *ctxmodel.History) {
	m.history = h
}

// SetSuppressionTTLForTests overrides the suppression TTL (§9 testing
// seam; default 2s per §5).
func (m *Manager) SetSuppressionTTLForTests(d time.Duration) {
	m.ttlMu.Lock()
	defer m.ttlMu.Unlock()
	m.ttl = d
}

func (m *Manager) suppressionTTL() time.Duration {
	m.ttlMu.RLock()
	defer m.ttlMu.RUnlock()
	return m.ttl
}

// GetAnalyzerListenerForTests returns the Manager itself as a
// watch.Listener, a narrow testing seam (§9) for tests that want to feed
// synthetic batches directly.
func (m *Manager) GetAnalyzerListenerForTests() watch.Listener {
	return watch.ListenerFunc(m.OnFilesChanged)
}

// History returns the Manager's live Context history.
func (m *Manager) History() *ctxmodel.History { return m.history }

// PushContext applies mutator to the current Context and appends the
// result to history, returning the new snapshot (§4.F "push_context").
func (m *Manager) PushContext(mutator func(*ctxmodel.Context) *ctxmodel.Context) *ctxmodel.Context {
	next := mutator(m.history.Current())
	m.history.Push(next)
	return next
}

// GetContextFiles returns the union of ProjectFiles referenced by the live
// Context (§4.F).
func (m *Manager) GetContextFiles() []project.ProjectFile {
	return m.history.Current().Files()
}

// HandleGitMetadataChange schedules a git-repo refresh (§4.F).
func (m *Manager) HandleGitMetadataChange() {
	m.logger.Log("contextmgr: git metadata changed, refreshing git repo panel")
	m.io.RefreshGitRepo()
}

// HandleTrackedFileChange always schedules a commit-panel refresh; if
// changedFiles intersects the live context's files (or changedFiles is
// empty, for backward compatibility), it asks the History to produce an
// external-change snapshot and schedules a workspace refresh (§4.F).
func (m *Manager) HandleTrackedFileChange(changedFiles []project.ProjectFile) {
	m.io.UpdateCommitPanel()

	if _, produced := m.history.ProcessExternalFileChangesIfNeeded(changedFiles); produced {
		m.logger.LogOperation("external_change_snapshot", fmt.Sprintf("%d files", len(changedFiles)))
		m.io.RefreshWorkspace()
	}
}

// WithFileChangeNotificationsPaused registers each file in files with the
// Suppression Registry for the configured TTL, runs thunk, then returns.
// The suppression entries remain active (independent of thunk's duration)
// until consumed by a matching watcher batch or until the TTL expires
// (§4.F "Self-write suppression").
func (m *Manager) WithFileChangeNotificationsPaused(files []project.ProjectFile, thunk func()) {
	expiry := time.Now().Add(m.suppressionTTL())
	m.suppressMu.Lock()
	for _, f := range files {
		m.suppressed[f.RelPath()] = expiry
	}
	m.suppressMu.Unlock()

	thunk()
}

// consumeSuppression atomically checks whether relPath is currently
// suppressed (not expired) and, if so, removes the entry and reports true.
// Exactly one concurrent caller observes true for a given relPath+window
// (§4.F "Atomicity").
func (m *Manager) consumeSuppression(relPath string) bool {
	m.suppressMu.Lock()
	defer m.suppressMu.Unlock()
	expiry, ok := m.suppressed[relPath]
	if !ok {
		return false
	}
	delete(m.suppressed, relPath)
	return time.Now().Before(expiry)
}

// addPending adds f to the pending change set.
func (m *Manager) addPending(f project.ProjectFile) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	m.pending[f.RelPath()] = f
}

// drainPending removes and returns every file currently in the pending
// change set ("poll-all" semantics, §5).
func (m *Manager) drainPending() []project.ProjectFile {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	out := make([]project.ProjectFile, 0, len(m.pending))
	for _, f := range m.pending {
		out = append(out, f)
	}
	m.pending = make(map[string]project.ProjectFile)
	return out
}

// PauseForBuild marks the Manager as "paused for build": subsequent
// non-suppressed watcher batches accumulate in the pending set instead of
// triggering an immediate external-change snapshot.
func (m *Manager) PauseForBuild() {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	m.pausedForBuild = true
}

func (m *Manager) isPausedForBuild() bool {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()
	return m.pausedForBuild
}

// AfterEachBuild drains the pending set and, if it is non-empty, asks the
// History to process the drained files — refreshing the workspace if a new
// snapshot resulted (§4.F "after_each_build"). hadError is accepted for
// parity with the spec's signature; this core does not vary behavior on it
// (the analyzer rebuild it accompanies is an external collaborator).
func (m *Manager) AfterEachBuild(hadError bool) {
	m.buildMu.Lock()
	m.pausedForBuild = false
	m.buildMu.Unlock()

	drained := m.drainPending()
	if len(drained) == 0 {
		return
	}
	if _, produced := m.history.ProcessExternalFileChangesIfNeeded(drained); produced {
		m.io.RefreshWorkspace()
	}
}

// OnFilesChanged implements watch.Listener: it classifies the batch,
// consumes any matching suppression entries (dropping those files from
// further processing), and routes the remainder to git-metadata or
// tracked-file handling — or, while paused for build, to the pending
// change set.
func (m *Manager) OnFilesChanged(batch watch.EventBatch) {
	trackedFiles := m.GetContextFiles()

	var survivors []project.ProjectFile
	for _, f := range batch.Files {
		// untracked_gitignore_changed bypasses suppression (§4.F).
		if batch.UntrackedGitignoreChanged {
			survivors = append(survivors, f)
			continue
		}
		if m.consumeSuppression(f.RelPath()) {
			continue
		}
		survivors = append(survivors, f)
	}

	filtered := watch.EventBatch{
		Files:                     survivors,
		IsOverflowed:              batch.IsOverflowed,
		UntrackedGitignoreChanged: batch.UntrackedGitignoreChanged,
	}
	cls := classify.Classify(filtered, trackedFiles)

	if cls.GitMetadataChanged {
		m.HandleGitMetadataChange()
	}

	nonGitFiles := nonGitFilesOf(survivors)
	nonGitSignificant := cls.IsSignificant && (batch.IsOverflowed || len(nonGitFiles) > 0)
	if !nonGitSignificant {
		return
	}

	if m.isPausedForBuild() {
		for _, f := range nonGitFiles {
			m.addPending(f)
		}
		return
	}

	// Pass the full non-git changed set, not cls.ChangedTrackedFiles, so the
	// §4.F context-files intersection test runs inside History itself; the
	// empty slice is reserved for a genuinely unknown changed set (a pure
	// overflow signal with no enumerated files), which still takes the
	// backward-compatible "produce a snapshot anyway" path.
	m.HandleTrackedFileChange(nonGitFiles)
}

func nonGitFilesOf(files []project.ProjectFile) []project.ProjectFile {
	var out []project.ProjectFile
	for _, f := range files {
		if !isGitMetadata(f) {
			out = append(out, f)
		}
	}
	return out
}

func isGitMetadata(f project.ProjectFile) bool {
	rel := f.RelPath()
	return rel == ".git" || len(rel) > 5 && rel[:5] == ".git/"
}
