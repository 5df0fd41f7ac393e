package session

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokkworkbench/core/pkg/ctxmodel"
)

// writeLegacyArchive hand-crafts a session archive carrying a legacy
// tasklist.json entry alongside the current snapshots, simulating an
// on-disk archive saved before the Task-List StringFragment migration.
func writeLegacyArchive(t *testing.T, mgr *Manager, info Info, snapshots []*ctxmodel.Context, legacyTaskListJSON string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	manifestBytes, err := json.MarshalIndent(info.toManifest(), "", "  ")
	require.NoError(t, err)
	mw, err := w.Create("manifest.json")
	require.NoError(t, err)
	_, err = mw.Write(manifestBytes)
	require.NoError(t, err)

	tw, err := w.Create("tasklist.json")
	require.NoError(t, err)
	_, err = tw.Write([]byte(legacyTaskListJSON))
	require.NoError(t, err)

	for i, snap := range snapshots {
		doc := toWireContextDoc(snap)
		b, err := json.MarshalIndent(doc, "", "  ")
		require.NoError(t, err)
		name := fmt.Sprintf("snapshots/%04d.json", i)
		sw, err := w.Create(name)
		require.NoError(t, err)
		_, err = sw.Write(b)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(mgr.GetSessionHistoryPath(info.ID), buf.Bytes(), 0o644))
}

func TestNewSessionCreatedLEModified(t *testing.T) {
	mgr, err := New(t.TempDir())
	require.NoError(t, err)

	info, err := mgr.NewSession("first")
	require.NoError(t, err)
	assert.LessOrEqual(t, info.CreatedMs, info.ModifiedMs)
	assert.Equal(t, 0, info.AIResponseCount)

	sessions, err := mgr.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "first", sessions[0].Name)
}

// TestSaveHistoryRecomputesAIResponseCount covers property #10.
func TestSaveHistoryRecomputesAIResponseCount(t *testing.T) {
	mgr, err := New(t.TempDir())
	require.NoError(t, err)

	info, err := mgr.NewSession("s")
	require.NoError(t, err)

	h := ctxmodel.NewHistory(ctxmodel.Empty())
	for i := 0; i < 3; i++ {
		frag := ctxmodel.NewTaskFragment([]ctxmodel.ChatMessage{{Role: "assistant", Content: "hi"}}, "response")
		h.Push(h.Current().WithParsedOutput(frag, "parsed output"))
	}

	err = <-mgr.SaveHistory(h, info.ID)
	require.NoError(t, err)

	loaded, err := mgr.LoadHistory(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, countAIResponses(loaded.All()))

	sessions, err := mgr.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 3, sessions[0].AIResponseCount)
}

func TestSaveHistorySerializesConcurrentSavesForSameID(t *testing.T) {
	mgr, err := New(t.TempDir())
	require.NoError(t, err)
	info, err := mgr.NewSession("s")
	require.NoError(t, err)

	h1 := ctxmodel.NewHistory(ctxmodel.Empty())
	h2 := ctxmodel.NewHistory(h1.Current().AddFragments(nil, "second save"))

	c1 := mgr.SaveHistory(h1, info.ID)
	c2 := mgr.SaveHistory(h2, info.ID)

	require.NoError(t, <-c1)
	require.NoError(t, <-c2)
	mgr.Close()
}

func TestDeleteSessionCreatesTombstone(t *testing.T) {
	mgr, err := New(t.TempDir())
	require.NoError(t, err)
	info, err := mgr.NewSession("s")
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteSession(info.ID))
	assert.True(t, mgr.HasTombstone(info.ID))

	_, err = os.Stat(mgr.GetSessionHistoryPath(info.ID))
	assert.True(t, os.IsNotExist(err))

	sessions, err := mgr.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCopySessionPreservesAIResponseCount(t *testing.T) {
	mgr, err := New(t.TempDir())
	require.NoError(t, err)
	info, err := mgr.NewSession("orig")
	require.NoError(t, err)

	h := ctxmodel.NewHistory(ctxmodel.Empty())
	frag := ctxmodel.NewTaskFragment([]ctxmodel.ChatMessage{{Role: "assistant", Content: "hi"}}, "r")
	h.Push(h.Current().WithParsedOutput(frag, "parsed output"))
	require.NoError(t, <-mgr.SaveHistory(h, info.ID))

	copied, err := mgr.CopySession(info.ID, "copy")
	require.NoError(t, err)
	assert.Equal(t, 1, copied.AIResponseCount)
	assert.NotEqual(t, info.ID, copied.ID)

	sessions, err := mgr.ListSessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestCorruptArchiveQuarantined(t *testing.T) {
	dir := t.TempDir()
	mgr, err := New(dir)
	require.NoError(t, err)
	info, err := mgr.NewSession("s")
	require.NoError(t, err)

	// Corrupt the archive directly on disk.
	require.NoError(t, os.WriteFile(mgr.GetSessionHistoryPath(info.ID), []byte("not a zip"), 0o644))

	sessions, err := mgr.ListSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = os.Stat(filepath.Join(mgr.GetSessionsDir(), "unreadable", info.ID.String()+".zip"))
	assert.NoError(t, err, "corrupt archive must be quarantined under unreadable/")
}

func TestLoadHistoryMigratesLegacyTaskList(t *testing.T) {
	dir := t.TempDir()
	mgr, err := New(dir)
	require.NoError(t, err)
	info, err := mgr.NewSession("s")
	require.NoError(t, err)

	// Hand-craft an archive containing a legacy tasklist.json entry.
	h, err := mgr.LoadHistory(info.ID)
	require.NoError(t, err)
	writeLegacyArchive(t, mgr, info, h.All(), `[{"text":"step 1","done":false}]`)

	loaded, err := mgr.LoadHistory(info.ID)
	require.NoError(t, err)
	data, err := loaded.Current().GetTaskListData()
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, "step 1", data[0].Text)
}
