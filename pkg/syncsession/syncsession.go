// Package syncsession implements the Session Synchronizer (§4.I): a
// plan/execute protocol diffing local sessions against a remote session
// store.
//
// Grounded on spec.md §4.I directly; the executor's per-action
// recheck-then-skip idiom mirrors the pack's
// wesm-agentsview/internal/sync package's debounce-then-act shape (check
// current state immediately before acting, to avoid acting on stale
// information).
package syncsession

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/brokkworkbench/core/pkg/session"
)

// RemoteSessionMeta describes a session as the remote store sees it (§6).
type RemoteSessionMeta struct {
	ID         uuid.UUID
	User       string
	Org        string
	Remote     string
	Name       string
	Visibility string
	Created    int64
	Modified   int64
	Synced     bool
	Deleted    *int64 // deletion timestamp, if the remote carries one
}

// RemoteStore is the callback interface the Synchronizer drives (§6).
type RemoteStore interface {
	ListRemoteSessions(remote string) ([]RemoteSessionMeta, error)
	GetRemoteSessionContent(id uuid.UUID) ([]byte, error)
	WriteRemoteSession(id uuid.UUID, remote, name string, modifiedAt int64, data []byte) error
	DeleteRemoteSession(id uuid.UUID) error
}

// ActionKind discriminates SyncAction variants (§4.I).
type ActionKind string

const (
	ActionDownload     ActionKind = "download"
	ActionUpload       ActionKind = "upload"
	ActionDeleteRemote ActionKind = "delete_remote"
	ActionDeleteLocal  ActionKind = "delete_local"
)

// SyncAction is one planned synchronization step.
type SyncAction struct {
	Kind       ActionKind
	ID         uuid.UUID
	LocalInfo  *session.Info
	RemoteMeta *RemoteSessionMeta
}

// PlanInputs bundles the planner's inputs (§4.I).
type PlanInputs struct {
	LocalSessions map[uuid.UUID]session.Info
	RemoteSession []RemoteSessionMeta
	Tombstones    map[uuid.UUID]bool
	Unreadable    map[uuid.UUID]bool
}

// Plan computes the ordered list of SyncActions for in (§4.I). Download
// actions are ordered newest-modification-first (property S6); the other
// kinds follow in a fixed, deterministic group order (delete-local,
// download, upload, delete-remote) so a given PlanInputs always produces
// the same action sequence.
func Plan(in PlanInputs) []SyncAction {
	remoteByID := make(map[uuid.UUID]RemoteSessionMeta, len(in.RemoteSession))
	for _, r := range in.RemoteSession {
		remoteByID[r.ID] = r
	}

	var downloads, uploads, deleteLocals, deleteRemotes []SyncAction

	for id, remote := range remoteByID {
		r := remote
		if r.Deleted != nil {
			if local, ok := in.LocalSessions[id]; ok {
				info := local
				deleteLocals = append(deleteLocals, SyncAction{Kind: ActionDeleteLocal, ID: id, LocalInfo: &info, RemoteMeta: &r})
			}
			continue
		}

		if in.Tombstones[id] || in.Unreadable[id] {
			continue
		}

		local, hasLocal := in.LocalSessions[id]
		if !hasLocal || r.Modified > local.ModifiedMs {
			var localPtr *session.Info
			if hasLocal {
				l := local
				localPtr = &l
			}
			downloads = append(downloads, SyncAction{Kind: ActionDownload, ID: id, LocalInfo: localPtr, RemoteMeta: &r})
		}
	}

	for id, local := range in.LocalSessions {
		if in.Tombstones[id] {
			continue
		}
		if _, hasRemote := remoteByID[id]; hasRemote {
			continue
		}
		info := local
		uploads = append(uploads, SyncAction{Kind: ActionUpload, ID: id, LocalInfo: &info})
	}

	for id := range in.Tombstones {
		deleteRemotes = append(deleteRemotes, SyncAction{Kind: ActionDeleteRemote, ID: id})
	}

	sort.Slice(downloads, func(i, j int) bool {
		return downloads[i].RemoteMeta.Modified > downloads[j].RemoteMeta.Modified
	})
	sortByID(uploads)
	sortByID(deleteLocals)
	sortByID(deleteRemotes)

	out := make([]SyncAction, 0, len(deleteLocals)+len(downloads)+len(uploads)+len(deleteRemotes))
	out = append(out, deleteLocals...)
	out = append(out, downloads...)
	out = append(out, uploads...)
	out = append(out, deleteRemotes...)
	return out
}

func sortByID(actions []SyncAction) {
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].ID.String() < actions[j].ID.String()
	})
}

// ExecutionResult is the outcome of executing a batch of SyncActions.
type ExecutionResult struct {
	Succeeded []uuid.UUID
	Skipped   []uuid.UUID
	Failed    map[uuid.UUID]error
}

// Hooks bundles the executor's collaborators so Execute stays testable
// without a live Session Manager or remote.
type Hooks struct {
	Store RemoteStore

	// CurrentLocalInfo returns the session's local Info as of "right now",
	// used for the recheck-then-skip rule (§4.I). ok is false if the
	// session no longer exists locally.
	CurrentLocalInfo func(id uuid.UUID) (session.Info, bool)

	// WriteLocalArchive persists downloaded bytes as the local archive for
	// id.
	WriteLocalArchive func(id uuid.UUID, data []byte) error

	// ReadLocalArchive returns the bytes of the local archive for id, for
	// UPLOAD.
	ReadLocalArchive func(id uuid.UUID) ([]byte, error)

	// DeleteLocalArchive removes the local archive and cache entry for id.
	DeleteLocalArchive func(id uuid.UUID) error

	// ClearTombstone removes a tombstone after a successful DELETE_REMOTE.
	ClearTombstone func(id uuid.UUID) error

	// IsOpen reports whether id is the currently open session.
	IsOpen func(id uuid.UUID) bool

	// ReloadOpenSession asks the open session's Context Manager to reload
	// after a successful DOWNLOAD of the open session.
	ReloadOpenSession func(id uuid.UUID)

	// CreateEmptySession creates a fresh empty session, used when
	// DELETE_LOCAL removes the currently open session.
	CreateEmptySession func() (session.Info, error)

	// RemoteFor supplies the remote identifier UPLOAD writes; kept as a
	// callback so the Synchronizer doesn't need to know the remote's naming
	// scheme. The display name UPLOAD writes is the planned LocalInfo.Name.
	RemoteFor func(id uuid.UUID) string

	// Concurrency bounds the executor's worker pool (default 4).
	Concurrency int
}

// Execute runs actions against the Hooks collaborators, recording
// per-action success/failure; one failure does not abort the batch (§4.I,
// §7). Actions run concurrently up to Hooks.Concurrency.
func Execute(actions []SyncAction, h Hooks) ExecutionResult {
	concurrency := h.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	result := ExecutionResult{Failed: make(map[uuid.UUID]error)}
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	record := func(kind string, id uuid.UUID, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch kind {
		case "ok":
			result.Succeeded = append(result.Succeeded, id)
		case "skip":
			result.Skipped = append(result.Skipped, id)
		case "fail":
			result.Failed[id] = err
		}
	}

	for _, action := range actions {
		action := action
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			executeOne(action, h, record)
		}()
	}
	wg.Wait()
	return result
}

func executeOne(action SyncAction, h Hooks, record func(kind string, id uuid.UUID, err error)) {
	switch action.Kind {
	case ActionDownload:
		executeDownload(action, h, record)
	case ActionUpload:
		executeUpload(action, h, record)
	case ActionDeleteRemote:
		executeDeleteRemote(action, h, record)
	case ActionDeleteLocal:
		executeDeleteLocal(action, h, record)
	}
}

// recheckMatchesPlan implements §4.I's executor rule: recheck local
// modification time against the planned local_info; a mismatch means a
// local edit raced the sync, so the action is skipped rather than failed.
func recheckMatchesPlan(action SyncAction, h Hooks) bool {
	if h.CurrentLocalInfo == nil {
		return true
	}
	current, ok := h.CurrentLocalInfo(action.ID)
	if action.LocalInfo == nil {
		return !ok
	}
	if !ok {
		return false
	}
	return current.ModifiedMs == action.LocalInfo.ModifiedMs
}

func executeDownload(action SyncAction, h Hooks, record func(string, uuid.UUID, error)) {
	if !recheckMatchesPlan(action, h) {
		record("skip", action.ID, nil)
		return
	}
	data, err := h.Store.GetRemoteSessionContent(action.ID)
	if err != nil {
		record("fail", action.ID, err)
		return
	}
	if err := h.WriteLocalArchive(action.ID, data); err != nil {
		record("fail", action.ID, err)
		return
	}
	if h.IsOpen != nil && h.IsOpen(action.ID) && h.ReloadOpenSession != nil {
		h.ReloadOpenSession(action.ID)
	}
	record("ok", action.ID, nil)
}

func executeUpload(action SyncAction, h Hooks, record func(string, uuid.UUID, error)) {
	if !recheckMatchesPlan(action, h) {
		record("skip", action.ID, nil)
		return
	}
	data, err := h.ReadLocalArchive(action.ID)
	if err != nil {
		record("fail", action.ID, err)
		return
	}
	remote := ""
	if h.RemoteFor != nil {
		remote = h.RemoteFor(action.ID)
	}
	name := ""
	if action.LocalInfo != nil {
		name = action.LocalInfo.Name
	}
	modified := int64(0)
	if action.LocalInfo != nil {
		modified = action.LocalInfo.ModifiedMs
	}
	if err := h.Store.WriteRemoteSession(action.ID, remote, name, modified, data); err != nil {
		record("fail", action.ID, err)
		return
	}
	record("ok", action.ID, nil)
}

func executeDeleteRemote(action SyncAction, h Hooks, record func(string, uuid.UUID, error)) {
	if err := h.Store.DeleteRemoteSession(action.ID); err != nil {
		record("fail", action.ID, err)
		return
	}
	if h.ClearTombstone != nil {
		if err := h.ClearTombstone(action.ID); err != nil {
			record("fail", action.ID, err)
			return
		}
	}
	record("ok", action.ID, nil)
}

func executeDeleteLocal(action SyncAction, h Hooks, record func(string, uuid.UUID, error)) {
	wasOpen := h.IsOpen != nil && h.IsOpen(action.ID)
	if err := h.DeleteLocalArchive(action.ID); err != nil {
		record("fail", action.ID, err)
		return
	}
	if wasOpen && h.CreateEmptySession != nil {
		if _, err := h.CreateEmptySession(); err != nil {
			record("fail", action.ID, err)
			return
		}
	}
	record("ok", action.ID, nil)
}
