package syncsession

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokkworkbench/core/pkg/session"
)

// TestPlanNewestFirst covers scenario S6: three remote sessions with no
// local copies download newest-modification-first.
func TestPlanNewestFirst(t *testing.T) {
	id1, id2, id3 := uuid.New(), uuid.New(), uuid.New()
	in := PlanInputs{
		RemoteSession: []RemoteSessionMeta{
			{ID: id1, Modified: 100},
			{ID: id2, Modified: 300},
			{ID: id3, Modified: 200},
		},
	}

	actions := Plan(in)
	require.Len(t, actions, 3)
	for _, a := range actions {
		assert.Equal(t, ActionDownload, a.Kind)
	}
	assert.Equal(t, id2, actions[0].ID)
	assert.Equal(t, id3, actions[1].ID)
	assert.Equal(t, id1, actions[2].ID)
}

func TestPlanSkipsTombstonedAndUnreadable(t *testing.T) {
	tombstoned, unreadable, normal := uuid.New(), uuid.New(), uuid.New()
	in := PlanInputs{
		RemoteSession: []RemoteSessionMeta{
			{ID: tombstoned, Modified: 10},
			{ID: unreadable, Modified: 20},
			{ID: normal, Modified: 30},
		},
		Tombstones: map[uuid.UUID]bool{tombstoned: true},
		Unreadable: map[uuid.UUID]bool{unreadable: true},
	}

	// Only the normal session is downloaded; the tombstoned one still gets
	// its DELETE_REMOTE action, which Plan emits after the downloads.
	actions := Plan(in)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionDownload, actions[0].Kind)
	assert.Equal(t, normal, actions[0].ID)
	assert.Equal(t, ActionDeleteRemote, actions[1].Kind)
	assert.Equal(t, tombstoned, actions[1].ID)
}

func TestPlanUploadsLocalOnlySessions(t *testing.T) {
	id := uuid.New()
	in := PlanInputs{
		LocalSessions: map[uuid.UUID]session.Info{id: {ID: id, Name: "local only"}},
	}
	actions := Plan(in)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionUpload, actions[0].Kind)
	assert.Equal(t, id, actions[0].ID)
}

func TestPlanDeleteRemoteForTombstone(t *testing.T) {
	id := uuid.New()
	in := PlanInputs{Tombstones: map[uuid.UUID]bool{id: true}}
	actions := Plan(in)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionDeleteRemote, actions[0].Kind)
}

func TestPlanDeleteLocalWhenRemoteDeleted(t *testing.T) {
	id := uuid.New()
	deletedAt := int64(123)
	in := PlanInputs{
		LocalSessions: map[uuid.UUID]session.Info{id: {ID: id, ModifiedMs: 1}},
		RemoteSession: []RemoteSessionMeta{{ID: id, Deleted: &deletedAt}},
	}
	actions := Plan(in)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionDeleteLocal, actions[0].Kind)
}

// TestExecuteSkipsRaceOnDownload covers property #11 / §4.I's executor
// recheck rule: if local state changed since planning, the action is
// skipped, not failed.
func TestExecuteSkipsRaceOnDownload(t *testing.T) {
	id := uuid.New()
	planned := session.Info{ID: id, ModifiedMs: 100}
	action := SyncAction{Kind: ActionDownload, ID: id, LocalInfo: &planned, RemoteMeta: &RemoteSessionMeta{ID: id, Modified: 200}}

	result := Execute([]SyncAction{action}, Hooks{
		Store: &fakeStore{},
		CurrentLocalInfo: func(uuid.UUID) (session.Info, bool) {
			return session.Info{ID: id, ModifiedMs: 999}, true // raced: changed since plan
		},
	})

	assert.Contains(t, result.Skipped, id)
	assert.Empty(t, result.Succeeded)
	assert.Empty(t, result.Failed)
}

func TestExecuteDownloadSucceedsAndReloadsOpenSession(t *testing.T) {
	id := uuid.New()
	planned := session.Info{ID: id, ModifiedMs: 100}
	action := SyncAction{Kind: ActionDownload, ID: id, LocalInfo: &planned, RemoteMeta: &RemoteSessionMeta{ID: id, Modified: 200}}

	var wrote []byte
	var reloaded bool
	result := Execute([]SyncAction{action}, Hooks{
		Store: &fakeStore{content: []byte("zip-bytes")},
		CurrentLocalInfo: func(uuid.UUID) (session.Info, bool) {
			return planned, true
		},
		WriteLocalArchive: func(id uuid.UUID, data []byte) error {
			wrote = data
			return nil
		},
		IsOpen:            func(uuid.UUID) bool { return true },
		ReloadOpenSession: func(uuid.UUID) { reloaded = true },
	})

	assert.Contains(t, result.Succeeded, id)
	assert.Equal(t, []byte("zip-bytes"), wrote)
	assert.True(t, reloaded)
}

func TestExecuteOneFailureDoesNotAbortBatch(t *testing.T) {
	okID, failID := uuid.New(), uuid.New()
	actions := []SyncAction{
		{Kind: ActionUpload, ID: okID, LocalInfo: &session.Info{ID: okID}},
		{Kind: ActionUpload, ID: failID, LocalInfo: &session.Info{ID: failID}},
	}

	result := Execute(actions, Hooks{
		Store: &fakeStore{},
		ReadLocalArchive: func(id uuid.UUID) ([]byte, error) {
			if id == failID {
				return nil, fmt.Errorf("disk error")
			}
			return []byte("data"), nil
		},
	})

	assert.Contains(t, result.Succeeded, okID)
	require.Contains(t, result.Failed, failID)
}

func TestExecuteDeleteLocalCreatesReplacementWhenOpen(t *testing.T) {
	id := uuid.New()
	action := SyncAction{Kind: ActionDeleteLocal, ID: id}

	var created bool
	result := Execute([]SyncAction{action}, Hooks{
		Store:              &fakeStore{},
		DeleteLocalArchive: func(uuid.UUID) error { return nil },
		IsOpen:             func(uuid.UUID) bool { return true },
		CreateEmptySession: func() (session.Info, error) {
			created = true
			return session.Info{}, nil
		},
	})

	assert.Contains(t, result.Succeeded, id)
	assert.True(t, created)
}

func TestExecuteConcurrentActionsAreThreadSafe(t *testing.T) {
	var mu sync.Mutex
	seen := map[uuid.UUID]bool{}

	var actions []SyncAction
	for i := 0; i < 20; i++ {
		id := uuid.New()
		actions = append(actions, SyncAction{Kind: ActionUpload, ID: id, LocalInfo: &session.Info{ID: id}})
	}

	result := Execute(actions, Hooks{
		Store: &fakeStore{},
		ReadLocalArchive: func(id uuid.UUID) ([]byte, error) {
			mu.Lock()
			seen[id] = true
			mu.Unlock()
			return []byte("x"), nil
		},
		Concurrency: 4,
	})

	assert.Len(t, result.Succeeded, 20)
	assert.Len(t, seen, 20)
}

type fakeStore struct {
	content []byte
}

func (f *fakeStore) ListRemoteSessions(remote string) ([]RemoteSessionMeta, error) { return nil, nil }
func (f *fakeStore) GetRemoteSessionContent(id uuid.UUID) ([]byte, error)          { return f.content, nil }
func (f *fakeStore) WriteRemoteSession(id uuid.UUID, remote, name string, modifiedAt int64, data []byte) error {
	return nil
}
func (f *fakeStore) DeleteRemoteSession(id uuid.UUID) error { return nil }
