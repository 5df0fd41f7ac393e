// Package logging provides the workbench's ambient process-wide logger: a
// singleton wrapping the standard log.Logger, backed by a rotating file via
// lumberjack, with an optional JSON-line mode. Modeled on the teacher's
// pkg/utils/logger.go, minus the GUI/TUI user-interaction surface (out of
// scope per spec.md §1).
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a workbench logger writing to a rotating log file under
// <project>/.brokk/logs/workbench.log.
type Logger struct {
	mu       sync.Mutex
	logger   *log.Logger
	file     *lumberjack.Logger
	jsonMode bool
}

var (
	global     *Logger
	globalOnce sync.Once
)

// Get returns the singleton Logger rooted at projectDir, initializing it on
// first call. Subsequent calls with a different projectDir are ignored; the
// first caller wins, matching the teacher's once.Do idiom.
func Get(projectDir string) *Logger {
	globalOnce.Do(func() {
		global = newLogger(projectDir)
	})
	return global
}

// ResetForTests discards the singleton so the next Get call re-initializes
// it. Testing-only seam (spec.md §9 "narrow testing seams").
func ResetForTests() {
	globalOnce = sync.Once{}
	global = nil
}

func newLogger(projectDir string) *Logger {
	logDir := filepath.Join(projectDir, ".brokk", "logs")
	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "workbench.log"),
		MaxSize:    15, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	return &Logger{
		logger:   log.New(file, "", log.LstdFlags),
		file:     file,
		jsonMode: os.Getenv("BROKK_JSON_LOGS") == "1",
	}
}

// Close releases the underlying rotating log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Log writes a plain message to the log file.
func (l *Logger) Log(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		_ = json.NewEncoder(l.logger.Writer()).Encode(map[string]any{"level": "info", "msg": message})
		return
	}
	l.logger.Print(message)
}

// Logf writes a formatted message to the log file.
func (l *Logger) Logf(format string, v ...interface{}) {
	l.Log(fmt.Sprintf(format, v...))
}

// LogError writes an error to the log file.
func (l *Logger) LogError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		_ = json.NewEncoder(l.logger.Writer()).Encode(map[string]any{"level": "error", "error": err.Error()})
		return
	}
	l.logger.Printf("Error: %s", err)
}

// LogOperation logs a named operation with details, mirroring the teacher's
// LogWorkspaceOperation.
func (l *Logger) LogOperation(operation, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		_ = json.NewEncoder(l.logger.Writer()).Encode(map[string]any{"level": "info", "op": operation, "details": details})
		return
	}
	l.logger.Printf("Operation: %s, Details: %s", operation, details)
}
