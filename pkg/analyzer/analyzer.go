// Package analyzer defines the Analyzer abstraction (§6) that the Edit-Block
// Applier and usage-oriented context fragments depend on, plus a reference
// Go-source implementation used by tests. The applier receives its Analyzer
// as a parameter; nothing here wires the reference implementation in by
// default.
// Production language-specific analysis is an external collaborator per
// spec.md §1; this package only guarantees the contract and a workable
// reference.
package analyzer

import (
	"fmt"

	"github.com/brokkworkbench/core/pkg/project"
)

// SymbolKind enumerates the kinds of declared symbols a Code Unit can be.
type SymbolKind string

const (
	KindClass    SymbolKind = "class"
	KindFunction SymbolKind = "function"
	KindField    SymbolKind = "field"
)

// CodeUnit identifies a declared symbol. Immutable, produced by the Analyzer.
type CodeUnit struct {
	File      project.ProjectFile
	Package   string
	ShortName string
	FQName    string
	Kind      SymbolKind
}

// SourceRange is a contiguous span of source text plus its location,
// returned by class_source/method_source.
type SourceRange struct {
	Text      string
	StartLine int // 0-based, inclusive
	EndLine   int // 0-based, inclusive
}

// TooManyCallsites is returned by GetUsages instead of a hit list when the
// result set would be too large to be a useful workspace fragment (§6, §7
// "too-many-callsites must not add a UsageFragment").
type TooManyCallsites struct {
	Symbol   string
	Observed int
	Limit    int
}

func (e *TooManyCallsites) Error() string {
	return fmt.Sprintf("too many callsites for %q: %d exceeds limit %d", e.Symbol, e.Observed, e.Limit)
}

// UsageResult is the outcome of a usage search that fit within the limit.
type UsageResult struct {
	Symbol string
	Sites  []Usage
}

// Usage is a single reference to a symbol.
type Usage struct {
	File project.ProjectFile
	Line int
	Text string
}

// AmbiguousSymbolError reports that more than one declaration matches a
// requested fully-qualified symbol name (overloads), per §7's required
// commentary string.
type AmbiguousSymbolError struct {
	FQName     string
	Candidates []CodeUnit
}

func (e *AmbiguousSymbolError) Error() string {
	return fmt.Sprintf("Multiple overloads found for '%s'. Please provide a non-overloaded, unique name", e.FQName)
}

// NoMatchError reports that no declaration matches a requested symbol.
type NoMatchError struct {
	FQName string
	Kind   SymbolKind
}

func (e *NoMatchError) Error() string {
	noun := "method"
	if e.Kind == KindClass {
		noun = "class"
	}
	return fmt.Sprintf("No %s source found for '%s'", noun, e.FQName)
}

// Analyzer is the external collaborator boundary for language-aware queries
// (§6). The Edit-Block Applier uses ClassSource/MethodSource to resolve
// symbol_class/symbol_function operations; usage-oriented context fragments
// use GetUsages.
type Analyzer interface {
	GetAllDeclarations() []CodeUnit
	SearchSymbols(query string) []CodeUnit
	ClassSource(fqn string) (SourceRange, error)
	MethodSource(fqn string) (SourceRange, error)
	ImportedCodeUnitsOf(file project.ProjectFile) []CodeUnit
	ImportStatementsOf(file project.ProjectFile) []string
	GetUsages(symbol string) (UsageResult, error)
}
