// Package ctxmodel implements the Context & Fragment Model (§3, §4.G): an
// immutable Context snapshot made of file fragments, virtual fragments, and
// task history, plus the tagged-variant Fragment type the spec's design
// notes prescribe in place of an inheritance hierarchy.
package ctxmodel

import (
	"sync/atomic"

	"github.com/brokkworkbench/core/pkg/analyzer"
	"github.com/brokkworkbench/core/pkg/project"
)

// FragmentType discriminates Fragment variants. Callers pattern-match on
// this field rather than on dynamic dispatch (§9 design note).
type FragmentType string

const (
	FragmentProjectPath FragmentType = "project_path"
	FragmentSummary     FragmentType = "summary"
	FragmentCode        FragmentType = "code"
	FragmentUsage       FragmentType = "usage"
	FragmentCallGraph   FragmentType = "call_graph"
	FragmentString      FragmentType = "string"
	FragmentTask        FragmentType = "task"
)

// SummaryType distinguishes the two forms a SummaryFragment can take.
type SummaryType string

const (
	SummaryFileSkeletons    SummaryType = "FILE_SKELETONS"
	SummaryCodeUnitSkeleton SummaryType = "CODEUNIT_SKELETON"
)

// SyntaxStyle labels how a StringFragment's text should be interpreted by
// renderers. TaskListSyntax is distinguished per §4.G.
type SyntaxStyle string

const (
	PlainTextSyntax SyntaxStyle = "plain"
	TaskListSyntax  SyntaxStyle = "TASK_LIST"
)

// ChatMessage is one message in a TaskFragment's transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Fragment is a tagged-variant context fragment (§4.G). Exactly the fields
// relevant to Type are populated; the rest are zero. A global monotonic
// counter assigns IDs (see NextFragmentID).
type Fragment struct {
	ID   int64        `json:"id"`
	Type FragmentType `json:"type"`

	// ProjectPathFragment
	File project.ProjectFile `json:"file,omitempty"`

	// SummaryFragment
	TargetIdentifier string      `json:"targetIdentifier,omitempty"`
	SummaryType      SummaryType `json:"summaryType,omitempty"`

	// CodeFragment
	CodeUnits []analyzer.CodeUnit `json:"codeUnits,omitempty"`

	// UsageFragment
	IncludeTestFiles bool `json:"includeTestFiles,omitempty"`

	// CallGraphFragment
	MethodName    string `json:"methodName,omitempty"`
	Depth         int    `json:"depth,omitempty"`
	IsCalleeGraph bool   `json:"isCalleeGraph,omitempty"`

	// StringFragment
	Text        string      `json:"text,omitempty"`
	Description string      `json:"description,omitempty"`
	SyntaxStyle SyntaxStyle `json:"syntaxStyle,omitempty"`

	// TaskFragment
	Messages []ChatMessage `json:"messages,omitempty"`
}

var fragmentIDCounter int64

// NextFragmentID returns the next value of the process-wide monotonic
// fragment-id counter.
func NextFragmentID() int64 {
	return atomic.AddInt64(&fragmentIDCounter, 1)
}

// SetMinimumFragmentID resets the counter so the next NextFragmentID call
// returns at least n. Testing-only hook (§3 invariant: "the minimum may be
// reset between test runs").
func SetMinimumFragmentID(n int64) {
	for {
		cur := atomic.LoadInt64(&fragmentIDCounter)
		if cur >= n {
			return
		}
		if atomic.CompareAndSwapInt64(&fragmentIDCounter, cur, n) {
			return
		}
	}
}

// NewProjectPathFragment builds a ProjectPathFragment for file.
func NewProjectPathFragment(file project.ProjectFile) Fragment {
	return Fragment{ID: NextFragmentID(), Type: FragmentProjectPath, File: file}
}

// NewSummaryFragment builds a SummaryFragment targeting identifier.
func NewSummaryFragment(targetIdentifier string, st SummaryType) Fragment {
	return Fragment{ID: NextFragmentID(), Type: FragmentSummary, TargetIdentifier: targetIdentifier, SummaryType: st}
}

// NewCodeFragment builds a CodeFragment wrapping units.
func NewCodeFragment(units []analyzer.CodeUnit) Fragment {
	return Fragment{ID: NextFragmentID(), Type: FragmentCode, CodeUnits: units}
}

// NewUsageFragment builds a UsageFragment targeting identifier.
func NewUsageFragment(targetIdentifier string, includeTestFiles bool) Fragment {
	return Fragment{ID: NextFragmentID(), Type: FragmentUsage, TargetIdentifier: targetIdentifier, IncludeTestFiles: includeTestFiles}
}

// NewCallGraphFragment builds a CallGraphFragment for methodName.
func NewCallGraphFragment(methodName string, depth int, isCallee bool) Fragment {
	return Fragment{ID: NextFragmentID(), Type: FragmentCallGraph, MethodName: methodName, Depth: depth, IsCalleeGraph: isCallee}
}

// NewStringFragment builds a plain StringFragment.
func NewStringFragment(text, description string, style SyntaxStyle) Fragment {
	if style == "" {
		style = PlainTextSyntax
	}
	return Fragment{ID: NextFragmentID(), Type: FragmentString, Text: text, Description: description, SyntaxStyle: style}
}

// NewTaskFragment builds a TaskFragment bagging chat messages for
// persistence.
func NewTaskFragment(messages []ChatMessage, description string) Fragment {
	return Fragment{ID: NextFragmentID(), Type: FragmentTask, Messages: messages, Description: description}
}

// IsEmpty reports whether a TaskFragment carries no messages — used by the
// Session Manager's ai_response_count accounting (§4.H) to distinguish a
// real parsed-output entry from an empty placeholder.
func (f Fragment) IsEmpty() bool {
	return f.Type == FragmentTask && len(f.Messages) == 0
}
