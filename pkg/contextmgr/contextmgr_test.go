package contextmgr

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokkworkbench/core/pkg/ctxmodel"
	"github.com/brokkworkbench/core/pkg/project"
	"github.com/brokkworkbench/core/pkg/watch"
)

type fakeIO struct {
	mu                  sync.Mutex
	commitPanelUpdates  int
	gitRepoRefreshes    int
	workspaceRefreshes  int
}

func (f *fakeIO) UpdateCommitPanel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitPanelUpdates++
}
func (f *fakeIO) RefreshGitRepo() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gitRepoRefreshes++
}
func (f *fakeIO) RefreshWorkspace() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workspaceRefreshes++
}
func (f *fakeIO) ToolError(msg, title string) {}

func (f *fakeIO) snapshot() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commitPanelUpdates, f.gitRepoRefreshes, f.workspaceRefreshes
}

func newManager(t *testing.T) (*Manager, project.Root, *fakeIO) {
	t.Helper()
	root, err := project.NewRoot(t.TempDir())
	require.NoError(t, err)
	io := &fakeIO{}
	h := ctxmodel.NewHistory(nil)
	m := New(root, h, nil, io)
	return m, root, io
}

// TestSuppressionExpiry covers scenario S5: after TTL expiry a suppressed
// file is delivered as a normal change.
func TestSuppressionExpiry(t *testing.T) {
	m, root, io := newManager(t)
	m.SetSuppressionTTLForTests(50 * time.Millisecond)

	f := root.File("src/Main.java")
	m.WithFileChangeNotificationsPaused([]project.ProjectFile{f}, func() {})

	time.Sleep(150 * time.Millisecond)

	m.OnFilesChanged(watch.EventBatch{Files: []project.ProjectFile{f}})

	commits, _, _ := io.snapshot()
	assert.Equal(t, 1, commits, "updateCommitPanel must fire once the suppression has expired")
}

// TestSuppressionConsumedWithinTTL covers the non-expired branch: a
// suppressed file delivered before the TTL elapses produces no refresh.
func TestSuppressionConsumedWithinTTL(t *testing.T) {
	m, root, io := newManager(t)
	m.SetSuppressionTTLForTests(2 * time.Second)

	f := root.File("src/Main.java")
	m.WithFileChangeNotificationsPaused([]project.ProjectFile{f}, func() {})

	m.OnFilesChanged(watch.EventBatch{Files: []project.ProjectFile{f}})

	commits, _, _ := io.snapshot()
	assert.Equal(t, 0, commits, "a suppressed self-write must not trigger a refresh")
}

// TestSuppressionAtomicity covers property #7: concurrently delivering the
// same suppressed file in two batches must consume the suppression entry
// exactly once.
func TestSuppressionAtomicity(t *testing.T) {
	m, root, _ := newManager(t)
	m.SetSuppressionTTLForTests(time.Minute)

	f := root.File("a.txt")
	m.suppressMu.Lock()
	m.suppressed[f.RelPath()] = time.Now().Add(time.Minute)
	m.suppressMu.Unlock()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.consumeSuppression(f.RelPath())
		}()
	}
	wg.Wait()

	trueCount := 0
	for _, r := range results {
		if r {
			trueCount++
		}
	}
	assert.Equal(t, 1, trueCount, "exactly one concurrent batch should observe the suppression consumed")
}

// TestPendingChangeNoLoss covers property #8: under concurrent writers and
// drainers, the union of everything drained equals the union of everything
// added.
func TestPendingChangeNoLoss(t *testing.T) {
	m, root, _ := newManager(t)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				m.addPending(root.File(fileName(w, i)))
			}
		}()
	}

	var drainMu sync.Mutex
	drained := map[string]bool{}
	drainDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-drainDone:
				for _, f := range m.drainPending() {
					drainMu.Lock()
					drained[f.RelPath()] = true
					drainMu.Unlock()
				}
				return
			default:
				for _, f := range m.drainPending() {
					drainMu.Lock()
					drained[f.RelPath()] = true
					drainMu.Unlock()
				}
			}
		}
	}()

	wg.Wait()
	close(drainDone)
	time.Sleep(20 * time.Millisecond)
	for _, f := range m.drainPending() {
		drainMu.Lock()
		drained[f.RelPath()] = true
		drainMu.Unlock()
	}

	drainMu.Lock()
	defer drainMu.Unlock()
	assert.Equal(t, writers*perWriter, len(drained))
}

func fileName(w, i int) string {
	return "f_" + itoa(w) + "_" + itoa(i) + ".txt"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestHandleGitMetadataChange(t *testing.T) {
	m, _, io := newManager(t)
	m.HandleGitMetadataChange()
	_, gitRefreshes, _ := io.snapshot()
	assert.Equal(t, 1, gitRefreshes)
}

func TestOnFilesChangedRoutesGitMetadata(t *testing.T) {
	m, root, io := newManager(t)
	m.OnFilesChanged(watch.EventBatch{Files: []project.ProjectFile{root.File(".git/HEAD")}})
	_, gitRefreshes, _ := io.snapshot()
	assert.Equal(t, 1, gitRefreshes)
}

func TestAfterEachBuildDrainsAndRefreshes(t *testing.T) {
	m, root, io := newManager(t)
	tracked := root.File("a.go")
	m.PushContext(func(c *ctxmodel.Context) *ctxmodel.Context {
		return c.AddFragments([]ctxmodel.Fragment{ctxmodel.NewProjectPathFragment(tracked)}, "add a.go")
	})

	m.PauseForBuild()
	m.OnFilesChanged(watch.EventBatch{Files: []project.ProjectFile{tracked}})

	commits, _, workspace := io.snapshot()
	assert.Equal(t, 0, commits, "while paused for build, changes accumulate instead of refreshing immediately")
	assert.Equal(t, 0, workspace)

	m.AfterEachBuild(false)
	_, _, workspace = io.snapshot()
	assert.Equal(t, 1, workspace)
}
