package ctxmodel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brokkworkbench/core/pkg/project"
)

// TaskMeta is free-form metadata attached to a TaskEntry.
type TaskMeta map[string]string

// TaskEntry is one entry in a Context's task history (§3, §4.G). Its state
// transitions LogOnly -> Both -> SummaryOnly: IsCompressed reports whether a
// summary has replaced (or been added alongside) the original log.
type TaskEntry struct {
	Sequence int       `json:"sequence"`
	Log      *Fragment `json:"log,omitempty"`
	Summary  *string   `json:"summary,omitempty"`
	Meta     TaskMeta  `json:"meta,omitempty"`
}

// IsCompressed reports whether the entry carries a summary. Per §3's
// invariant, "is_compressed ⇔ summary != null".
func (e TaskEntry) IsCompressed() bool { return e.Summary != nil }

// HasLog reports whether the entry retains its original log.
func (e TaskEntry) HasLog() bool { return e.Log != nil }

// RenderForModel prefers the summary when present, falling back to the raw
// log text (§4.G: "Code that renders for the model prefers summary if
// present").
func (e TaskEntry) RenderForModel() string {
	if e.Summary != nil {
		return *e.Summary
	}
	if e.Log != nil {
		return renderMessages(e.Log.Messages)
	}
	return ""
}

// RenderForUser prefers the original log when present, falling back to the
// summary (§4.G: "Code that renders for the user prefers log if present").
func (e TaskEntry) RenderForUser() string {
	if e.Log != nil {
		return renderMessages(e.Log.Messages)
	}
	if e.Summary != nil {
		return *e.Summary
	}
	return ""
}

func renderMessages(msgs []ChatMessage) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// TaskItem is one line of a task list.
type TaskItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// TaskListData is the deserialized form of a Task-List StringFragment's
// text.
type TaskListData []TaskItem

func serializeTaskList(data TaskListData) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func deserializeTaskList(text string) (TaskListData, error) {
	if strings.TrimSpace(text) == "" {
		return TaskListData{}, nil
	}
	var data TaskListData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("deserialize task list: %w", err)
	}
	return data, nil
}

// Context is an immutable snapshot (§3): an ordered set of file fragments,
// an ordered set of virtual fragments, a task history, an optional
// task-list fragment, the action that produced this snapshot, and a parent
// pointer to the previous snapshot.
type Context struct {
	FileFragments     []Fragment
	VirtualFragments  []Fragment
	TaskHistory       []TaskEntry
	TaskListFragment  *Fragment
	ActionDescription string
	Parent            *Context
}

// Empty returns a Context with no fragments, history, or parent — the root
// of a session's snapshot chain.
func Empty() *Context {
	return &Context{ActionDescription: "Initial context"}
}

// clone performs a shallow copy of the slice fields so transforms never
// mutate the receiver (Context values are immutable once built).
func (c *Context) clone() *Context {
	n := &Context{
		FileFragments:     append([]Fragment{}, c.FileFragments...),
		VirtualFragments:  append([]Fragment{}, c.VirtualFragments...),
		TaskHistory:       append([]TaskEntry{}, c.TaskHistory...),
		TaskListFragment:  c.TaskListFragment,
		ActionDescription: c.ActionDescription,
		Parent:            c,
	}
	return n
}

// AddFragments returns a new Context with the given file fragments
// appended (§4.G).
func (c *Context) AddFragments(fragments []Fragment, actionDescription string) *Context {
	n := c.clone()
	n.FileFragments = append(n.FileFragments, fragments...)
	n.ActionDescription = actionDescription
	return n
}

// AddVirtualFragments returns a new Context with the given virtual
// fragments appended (§4.G).
func (c *Context) AddVirtualFragments(fragments []Fragment, actionDescription string) *Context {
	n := c.clone()
	n.VirtualFragments = append(n.VirtualFragments, fragments...)
	n.ActionDescription = actionDescription
	return n
}

// RemoveFragments returns a new Context with any file or virtual fragment
// whose ID is in ids removed.
func (c *Context) RemoveFragments(ids map[int64]bool, actionDescription string) *Context {
	n := c.clone()
	n.FileFragments = filterOut(n.FileFragments, ids)
	n.VirtualFragments = filterOut(n.VirtualFragments, ids)
	n.ActionDescription = actionDescription
	return n
}

func filterOut(frags []Fragment, ids map[int64]bool) []Fragment {
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		if !ids[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// WithParsedOutput appends a new TaskEntry wrapping taskFragment as the
// entry's log (LogOnly state) and returns the resulting Context. This is
// the one transform the Session Manager's ai_response_count accounting
// watches (§4.H: "counts as one AI response").
func (c *Context) WithParsedOutput(taskFragment Fragment, actionDescription string) *Context {
	n := c.clone()
	n.TaskHistory = append(n.TaskHistory, TaskEntry{
		Sequence: len(n.TaskHistory) + 1,
		Log:      &taskFragment,
	})
	n.ActionDescription = actionDescription
	return n
}

// WithCompressedTask replaces the log-only entry at sequence with a
// summarized one: summary set, log retained (Both state) unless
// dropLog is true (SummaryOnly state).
func (c *Context) WithCompressedTask(sequence int, summary string, dropLog bool) *Context {
	n := c.clone()
	for i := range n.TaskHistory {
		if n.TaskHistory[i].Sequence == sequence {
			n.TaskHistory[i].Summary = &summary
			if dropLog {
				n.TaskHistory[i].Log = nil
			}
			break
		}
	}
	return n
}

// taskListFragmentActionPrefix is folded case-insensitively into the action
// description whenever the task list changes, per §4.G: "action string
// contains 'Task list' (case-insensitive)".
const taskListFragmentActionPrefix = "Task list"

// WithTaskList sets or replaces the Task-List StringFragment. An empty list
// removes the fragment entirely (§4.G).
func (c *Context) WithTaskList(data TaskListData) (*Context, error) {
	n := c.clone()
	if len(data) == 0 {
		n.TaskListFragment = nil
		n.ActionDescription = taskListFragmentActionPrefix + " cleared"
		return n, nil
	}
	text, err := serializeTaskList(data)
	if err != nil {
		return nil, err
	}
	frag := NewStringFragment(text, "Task List", TaskListSyntax)
	n.TaskListFragment = &frag
	n.ActionDescription = taskListFragmentActionPrefix + " updated"
	return n, nil
}

// GetTaskListData deserializes the current task-list fragment's text, per
// §3's invariant `context.get_task_list_data() == deserialize(task_list_fragment.text)`.
// Returns an empty TaskListData if no task-list fragment is present.
func (c *Context) GetTaskListData() (TaskListData, error) {
	if c.TaskListFragment == nil {
		return TaskListData{}, nil
	}
	return deserializeTaskList(c.TaskListFragment.Text)
}

// Files returns the set of ProjectFiles referenced by this Context's file
// fragments (ProjectPathFragment entries). CodeFragment entries also carry
// file references and are included.
func (c *Context) Files() []project.ProjectFile {
	seen := map[string]bool{}
	var out []project.ProjectFile
	add := func(f project.ProjectFile) {
		key := f.RelPath()
		if !seen[key] {
			seen[key] = true
			out = append(out, f)
		}
	}
	for _, frag := range c.FileFragments {
		if frag.Type == FragmentProjectPath {
			add(frag.File)
		}
	}
	for _, frag := range c.VirtualFragments {
		if frag.Type == FragmentCode {
			for _, cu := range frag.CodeUnits {
				add(cu.File)
			}
		}
	}
	return out
}
