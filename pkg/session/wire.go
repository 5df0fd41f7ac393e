package session

import (
	"github.com/brokkworkbench/core/pkg/analyzer"
	"github.com/brokkworkbench/core/pkg/ctxmodel"
	"github.com/brokkworkbench/core/pkg/project"
)

// project.ProjectFile's fields are intentionally unexported (it's an
// immutable value object, §3) so it cannot be JSON-marshaled directly.
// These wire types carry just the relative path across the archive
// boundary; a project.Root (known to the Manager) reconstructs the full
// ProjectFile on load.

type wireCodeUnit struct {
	File      string `json:"file"`
	Package   string `json:"package"`
	ShortName string `json:"shortName"`
	FQName    string `json:"fqName"`
	Kind      string `json:"kind"`
}

func toWireCodeUnit(cu analyzer.CodeUnit) wireCodeUnit {
	return wireCodeUnit{File: cu.File.RelPath(), Package: cu.Package, ShortName: cu.ShortName, FQName: cu.FQName, Kind: string(cu.Kind)}
}

func fromWireCodeUnit(root project.Root, w wireCodeUnit) analyzer.CodeUnit {
	return analyzer.CodeUnit{File: root.File(w.File), Package: w.Package, ShortName: w.ShortName, FQName: w.FQName, Kind: analyzer.SymbolKind(w.Kind)}
}

type wireFragment struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`

	File string `json:"file,omitempty"`

	TargetIdentifier string `json:"targetIdentifier,omitempty"`
	SummaryType      string `json:"summaryType,omitempty"`

	CodeUnits []wireCodeUnit `json:"codeUnits,omitempty"`

	IncludeTestFiles bool `json:"includeTestFiles,omitempty"`

	MethodName    string `json:"methodName,omitempty"`
	Depth         int    `json:"depth,omitempty"`
	IsCalleeGraph bool   `json:"isCalleeGraph,omitempty"`

	Text        string `json:"text,omitempty"`
	Description string `json:"description,omitempty"`
	SyntaxStyle string `json:"syntaxStyle,omitempty"`

	Messages []ctxmodel.ChatMessage `json:"messages,omitempty"`
}

func toWireFragment(f ctxmodel.Fragment) wireFragment {
	w := wireFragment{
		ID:               f.ID,
		Type:             string(f.Type),
		TargetIdentifier: f.TargetIdentifier,
		SummaryType:      string(f.SummaryType),
		IncludeTestFiles: f.IncludeTestFiles,
		MethodName:       f.MethodName,
		Depth:            f.Depth,
		IsCalleeGraph:    f.IsCalleeGraph,
		Text:             f.Text,
		Description:      f.Description,
		SyntaxStyle:      string(f.SyntaxStyle),
		Messages:         f.Messages,
	}
	if f.Type == ctxmodel.FragmentProjectPath {
		w.File = f.File.RelPath()
	}
	for _, cu := range f.CodeUnits {
		w.CodeUnits = append(w.CodeUnits, toWireCodeUnit(cu))
	}
	return w
}

func fromWireFragment(root project.Root, w wireFragment) ctxmodel.Fragment {
	f := ctxmodel.Fragment{
		ID:               w.ID,
		Type:             ctxmodel.FragmentType(w.Type),
		TargetIdentifier: w.TargetIdentifier,
		SummaryType:      ctxmodel.SummaryType(w.SummaryType),
		IncludeTestFiles: w.IncludeTestFiles,
		MethodName:       w.MethodName,
		Depth:            w.Depth,
		IsCalleeGraph:    w.IsCalleeGraph,
		Text:             w.Text,
		Description:      w.Description,
		SyntaxStyle:      ctxmodel.SyntaxStyle(w.SyntaxStyle),
		Messages:         w.Messages,
	}
	if f.Type == ctxmodel.FragmentProjectPath {
		f.File = root.File(w.File)
	}
	for _, cu := range w.CodeUnits {
		f.CodeUnits = append(f.CodeUnits, fromWireCodeUnit(root, cu))
	}
	return f
}

func toWireFragments(frags []ctxmodel.Fragment) []wireFragment {
	out := make([]wireFragment, len(frags))
	for i, f := range frags {
		out[i] = toWireFragment(f)
	}
	return out
}

func fromWireFragments(root project.Root, wfs []wireFragment) []ctxmodel.Fragment {
	out := make([]ctxmodel.Fragment, len(wfs))
	for i, w := range wfs {
		out[i] = fromWireFragment(root, w)
	}
	return out
}

type wireTaskEntry struct {
	Sequence int              `json:"sequence"`
	Log      *wireFragment    `json:"log,omitempty"`
	Summary  *string          `json:"summary,omitempty"`
	Meta     ctxmodel.TaskMeta `json:"meta,omitempty"`
}

func toWireTaskEntry(e ctxmodel.TaskEntry) wireTaskEntry {
	w := wireTaskEntry{Sequence: e.Sequence, Summary: e.Summary, Meta: e.Meta}
	if e.Log != nil {
		wf := toWireFragment(*e.Log)
		w.Log = &wf
	}
	return w
}

func fromWireTaskEntry(root project.Root, w wireTaskEntry) ctxmodel.TaskEntry {
	e := ctxmodel.TaskEntry{Sequence: w.Sequence, Summary: w.Summary, Meta: w.Meta}
	if w.Log != nil {
		f := fromWireFragment(root, *w.Log)
		e.Log = &f
	}
	return e
}

func toWireTaskHistory(entries []ctxmodel.TaskEntry) []wireTaskEntry {
	out := make([]wireTaskEntry, len(entries))
	for i, e := range entries {
		out[i] = toWireTaskEntry(e)
	}
	return out
}

func fromWireTaskHistory(root project.Root, wes []wireTaskEntry) []ctxmodel.TaskEntry {
	out := make([]ctxmodel.TaskEntry, len(wes))
	for i, w := range wes {
		out[i] = fromWireTaskEntry(root, w)
	}
	return out
}

// wireContextDoc is the on-disk shape of one snapshot entry
// (snapshots/NNNN.json).
type wireContextDoc struct {
	FileFragments     []wireFragment  `json:"fileFragments,omitempty"`
	VirtualFragments  []wireFragment  `json:"virtualFragments,omitempty"`
	TaskHistory       []wireTaskEntry `json:"taskHistory,omitempty"`
	TaskListFragment  *wireFragment   `json:"taskListFragment,omitempty"`
	ActionDescription string          `json:"actionDescription"`
}

func toWireContextDoc(c *ctxmodel.Context) wireContextDoc {
	doc := wireContextDoc{
		FileFragments:     toWireFragments(c.FileFragments),
		VirtualFragments:  toWireFragments(c.VirtualFragments),
		TaskHistory:       toWireTaskHistory(c.TaskHistory),
		ActionDescription: c.ActionDescription,
	}
	if c.TaskListFragment != nil {
		wf := toWireFragment(*c.TaskListFragment)
		doc.TaskListFragment = &wf
	}
	return doc
}

func fromWireContextDoc(root project.Root, doc wireContextDoc) *ctxmodel.Context {
	c := &ctxmodel.Context{
		FileFragments:     fromWireFragments(root, doc.FileFragments),
		VirtualFragments:  fromWireFragments(root, doc.VirtualFragments),
		TaskHistory:       fromWireTaskHistory(root, doc.TaskHistory),
		ActionDescription: doc.ActionDescription,
	}
	if doc.TaskListFragment != nil {
		f := fromWireFragment(root, *doc.TaskListFragment)
		c.TaskListFragment = &f
	}
	return c
}
