// Package watch implements the File Watch Service (§4.D): a project-wide
// fsnotify-backed watcher that batches events, suppresses self-writes
// upstream (the Context Manager owns suppression; this package only emits
// raw EventBatches), and dispatches to listeners with pause/resume.
//
// Grounded on the pack's wesm-agentsview/internal/sync/watcher.go: a
// fsnotify watcher with a debounce map flushed on a ticker, auto-adding new
// directories on Create. Generalized here with pause/resume, listener
// isolation, overflow flagging, and worktree-aware ".git" detection that
// the pack example doesn't need.
package watch

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/brokkworkbench/core/pkg/logging"
	"github.com/brokkworkbench/core/pkg/project"
)

// NewForProject constructs a Service for root, resolving the real git
// metadata directory via project.ResolveGitDir so a worktree checkout's
// external gitdir is watched in addition to root (§4.D "Worktree
// awareness").
func NewForProject(root project.Root, opts ...Option) (*Service, error) {
	gitRepoRoot := root.Abs()
	if dir, ok := project.ResolveGitDir(root.Abs()); ok {
		gitRepoRoot = dir
	}
	opts = append([]Option{WithLogger(logging.Get(root.Abs()))}, opts...)
	return New(root, gitRepoRoot, opts...)
}

// EventBatch is a coalesced set of filesystem change notifications
// delivered atomically to listeners (§3).
type EventBatch struct {
	Files                     []project.ProjectFile
	IsOverflowed              bool
	UntrackedGitignoreChanged bool
}

// Listener receives EventBatches from a Service. Implementations are
// expected to return quickly or hand off to their own executor; a listener
// that panics is isolated from the others (§4.D "Listener isolation").
type Listener interface {
	OnFilesChanged(batch EventBatch)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(batch EventBatch)

// OnFilesChanged implements Listener.
func (f ListenerFunc) OnFilesChanged(batch EventBatch) { f(batch) }

// Service is the File Watch Service: one instance watches one project root
// (plus, where applicable, an external git directory for worktrees).
type Service struct {
	root        project.Root
	gitRepoRoot string
	debounce    time.Duration

	fsw *fsnotify.Watcher

	mu        sync.Mutex
	listeners []Listener
	paused    bool
	pausedBuf map[string]bool // set of paths buffered while paused

	pending     map[string]bool
	overflowed  bool
	gitIgnoreCh bool

	onNoFiles func()
	logger    *logging.Logger

	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started bool // guarded by mu; set once Start has launched loop
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithDebounce overrides the default ~100ms debounce window (§4.D: "~50-200
// ms windows").
func WithDebounce(d time.Duration) Option {
	return func(s *Service) { s.debounce = d }
}

// WithNoFilesCallback registers the secondary callback that fires when a
// polling tick produces no events (§4.D).
func WithNoFilesCallback(f func()) Option {
	return func(s *Service) { s.onNoFiles = f }
}

// WithLogger routes the watcher's fsnotify-error and listener-panic
// diagnostics through l instead of the standard library's default logger.
// NewForProject wires this to the ambient rotating logger automatically;
// New leaves it nil so tests don't spin up a log directory.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New constructs a Service for root. gitRepoRoot may differ from root in a
// git-worktree scenario (§4.D "Worktree awareness"); pass "" to use root.
func New(root project.Root, gitRepoRoot string, opts ...Option) (*Service, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if gitRepoRoot == "" {
		gitRepoRoot = root.Abs()
	}
	s := &Service{
		root:        root,
		gitRepoRoot: gitRepoRoot,
		debounce:    100 * time.Millisecond,
		fsw:         fsw,
		pending:     make(map[string]bool),
		pausedBuf:   make(map[string]bool),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddListener registers l for subsequent batches. New listeners receive
// only future batches, never a replay of past ones (§4.D).
func (s *Service) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener deregisters l.
func (s *Service) RemoveListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Start begins watching in a background goroutine. No events are delivered
// until ready is closed (§4.D "deliver no events before ready completes").
func (s *Service) Start(ready <-chan struct{}) error {
	if _, _, err := s.watchRecursive(s.root.Abs()); err != nil {
		return err
	}
	if s.gitRepoRoot != s.root.Abs() {
		_ = s.fsw.Add(s.gitRepoRoot)
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.loop(ready)
	return nil
}

// Close stops the watcher and waits for its goroutine to exit. A Service
// that was never started has no goroutine to wait for.
func (s *Service) Close() error {
	s.once.Do(func() {
		close(s.stop)
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.done
		}
		_ = s.fsw.Close()
	})
	return nil
}

// Pause buffers subsequent events instead of delivering them (§4.D).
func (s *Service) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume flushes buffered events as a single batch and resumes live
// delivery (§4.D "on resume, they are flushed as a single or batched
// delivery").
func (s *Service) Resume() {
	s.mu.Lock()
	s.paused = false
	buffered := s.pausedBuf
	s.pausedBuf = make(map[string]bool)
	overflow := s.overflowed
	gitignore := s.gitIgnoreCh
	s.overflowed = false
	s.gitIgnoreCh = false
	s.mu.Unlock()

	if len(buffered) == 0 && !overflow {
		return
	}
	s.dispatch(buildBatch(s.root, buffered, overflow, gitignore))
}

// IsPaused reports whether the watcher is currently buffering events.
func (s *Service) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *Service) watchRecursive(root string) (watched, unwatched int, err error) {
	err = filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if info.IsDir() {
			if addErr := s.fsw.Add(p); addErr != nil {
				unwatched++
			} else {
				watched++
			}
		}
		return nil
	})
	return watched, unwatched, err
}

func (s *Service) watchIfDir(path string) {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		_ = s.fsw.Add(path)
	}
}

func (s *Service) loop(ready <-chan struct{}) {
	defer close(s.done)
	ticker := time.NewTicker(s.debounce)
	defer ticker.Stop()

	var armed bool
	readyCh := ready

	for {
		select {
		case <-s.stop:
			return

		case <-readyCh:
			armed = true
			readyCh = nil

		case event, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			if !armed {
				continue
			}
			s.handleEvent(event)

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			s.logf("watch: fsnotify error: %v", err)

		case <-ticker.C:
			if !armed {
				continue
			}
			s.tick()
		}
	}
}

func (s *Service) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		s.watchIfDir(event.Name)
	}

	slashRel, ok := s.relPath(event.Name)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.pausedBuf[slashRel] = true
	} else {
		s.pending[slashRel] = true
	}
	if filepath.Base(slashRel) == ".gitignore" {
		s.gitIgnoreCh = true
	}
}

// relPath maps an absolute fsnotify path to a project-root-relative,
// "/"-separated path. Paths under the external git directory (worktree
// case, §4.D "Worktree awareness") are rewritten under the ".git/"
// namespace so the Change Classifier's ".git/" prefix rule applies
// uniformly regardless of where the metadata physically lives.
func (s *Service) relPath(abs string) (string, bool) {
	if rel, err := filepath.Rel(s.root.Abs(), abs); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel), true
	}
	if s.gitRepoRoot != s.root.Abs() {
		if rel, err := filepath.Rel(s.gitRepoRoot, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return ".git/" + filepath.ToSlash(rel), true
		}
	}
	return "", false
}

// logf routes a diagnostic message through the ambient rotating logger
// when one is configured (see WithLogger), falling back to the standard
// library logger otherwise.
func (s *Service) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// MarkOverflow flags the next delivered batch as overflowed. Exposed so a
// caller with access to the underlying fsnotify error channel (or a test)
// can simulate a kernel notification overflow.
func (s *Service) MarkOverflow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overflowed = true
}

func (s *Service) tick() {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	if len(s.pending) == 0 && !s.overflowed {
		s.mu.Unlock()
		if s.onNoFiles != nil {
			s.onNoFiles()
		}
		return
	}
	pending := s.pending
	s.pending = make(map[string]bool)
	overflow := s.overflowed
	s.overflowed = false
	gitignore := s.gitIgnoreCh
	s.gitIgnoreCh = false
	s.mu.Unlock()

	s.dispatch(buildBatch(s.root, pending, overflow, gitignore))
}

func buildBatch(root project.Root, paths map[string]bool, overflow, gitignore bool) EventBatch {
	files := make([]project.ProjectFile, 0, len(paths))
	for p := range paths {
		files = append(files, root.File(p))
	}
	return EventBatch{Files: files, IsOverflowed: overflow, UntrackedGitignoreChanged: gitignore}
}

// dispatch delivers batch to every listener, serialized per listener
// (§5 "within one listener, onFilesChanged is serialized") and isolated
// from other listeners' panics (§4.D "Listener isolation").
func (s *Service) dispatch(batch EventBatch) {
	s.mu.Lock()
	listeners := append([]Listener{}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		s.dispatchOne(l, batch)
	}
}

func (s *Service) dispatchOne(l Listener, batch EventBatch) {
	defer func() {
		if r := recover(); r != nil {
			s.logf("watch: listener panicked: %v", r)
		}
	}()
	l.OnFilesChanged(batch)
}
