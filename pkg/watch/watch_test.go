package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brokkworkbench/core/pkg/project"
)

func newTestService(t *testing.T) (*Service, project.Root) {
	t.Helper()
	dir := t.TempDir()
	root, err := project.NewRoot(dir)
	require.NoError(t, err)
	svc, err := New(root, "", WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, root
}

// TestListenerIsolation covers property #6: a panicking listener must not
// prevent the others from observing the batch.
func TestListenerIsolation(t *testing.T) {
	svc, root := newTestService(t)

	var mu sync.Mutex
	received := map[string]bool{}
	done := make(chan struct{}, 2)

	panicker := ListenerFunc(func(batch EventBatch) {
		defer func() { recover() }()
		panic("boom")
	})
	good1 := ListenerFunc(func(batch EventBatch) {
		mu.Lock()
		received["good1"] = true
		mu.Unlock()
		done <- struct{}{}
	})
	good2 := ListenerFunc(func(batch EventBatch) {
		mu.Lock()
		received["good2"] = true
		mu.Unlock()
		done <- struct{}{}
	})

	svc.AddListener(panicker)
	svc.AddListener(good1)
	svc.AddListener(good2)

	ready := make(chan struct{})
	close(ready)
	require.NoError(t, svc.Start(ready))

	require.NoError(t, os.WriteFile(filepath.Join(root.Abs(), "a.txt"), []byte("x"), 0o644))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for listeners")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, received["good1"])
	require.True(t, received["good2"])
}

func TestPauseBuffersThenFlushesOnResume(t *testing.T) {
	svc, root := newTestService(t)

	var mu sync.Mutex
	var batches []EventBatch
	svc.AddListener(ListenerFunc(func(b EventBatch) {
		mu.Lock()
		batches = append(batches, b)
		mu.Unlock()
	}))

	ready := make(chan struct{})
	close(ready)
	require.NoError(t, svc.Start(ready))

	svc.Pause()
	require.True(t, svc.IsPaused())
	require.NoError(t, os.WriteFile(filepath.Join(root.Abs(), "b.txt"), []byte("x"), 0o644))

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	require.Empty(t, batches, "no batch should be delivered while paused")
	mu.Unlock()

	svc.Resume()
	require.False(t, svc.IsPaused())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNoEventsBeforeReady(t *testing.T) {
	svc, root := newTestService(t)

	var mu sync.Mutex
	var count int
	svc.AddListener(ListenerFunc(func(b EventBatch) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	ready := make(chan struct{})
	require.NoError(t, svc.Start(ready))

	require.NoError(t, os.WriteFile(filepath.Join(root.Abs(), "early.txt"), []byte("x"), 0o644))
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	require.Zero(t, count, "no batch should be delivered before ready closes")
	mu.Unlock()

	close(ready)
	require.NoError(t, os.WriteFile(filepath.Join(root.Abs(), "late.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNewForProjectWorktreeGitDir(t *testing.T) {
	dir := t.TempDir()
	root, err := project.NewRoot(dir)
	require.NoError(t, err)

	svc, err := NewForProject(root)
	require.NoError(t, err)
	defer svc.Close()
	require.Equal(t, root.Abs(), svc.gitRepoRoot)
}
