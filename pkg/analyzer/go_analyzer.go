package analyzer

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/brokkworkbench/core/pkg/project"
)

// decl is an internal record of one parsed declaration, kept alongside its
// file set/AST node so source ranges can be recomputed on demand.
type decl struct {
	unit  CodeUnit
	file  project.ProjectFile
	fset  *token.FileSet
	start token.Pos
	end   token.Pos
}

// GoAnalyzer is a reference Analyzer implementation over Go source, grounded
// in the teacher's go/ast span-lookup idiom (function/type declarations).
// Every query, SearchSymbols included, runs over the Go declarations it
// indexed; no other language is analyzed.
type GoAnalyzer struct {
	root    project.Root
	decls   []decl
	byFQN   map[string][]int // fqn -> indexes into decls
	byShort map[string][]int // short name -> indexes into decls
}

// NewGoAnalyzer builds a declaration index from the .go files in files.
// Files without a .go suffix are skipped and contribute nothing to any
// query; files that fail to parse are skipped as well.
func NewGoAnalyzer(root project.Root, files []project.ProjectFile) (*GoAnalyzer, error) {
	a := &GoAnalyzer{
		root:    root,
		byFQN:   map[string][]int{},
		byShort: map[string][]int{},
	}
	for _, f := range files {
		if !strings.HasSuffix(f.RelPath(), ".go") {
			continue
		}
		if err := a.indexFile(f); err != nil {
			continue // best-effort: skip files that don't parse
		}
	}
	return a, nil
}

func (a *GoAnalyzer) indexFile(f project.ProjectFile) error {
	src, err := os.ReadFile(f.AbsPath())
	if err != nil {
		return err
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, f.AbsPath(), src, parser.ParseComments)
	if err != nil {
		return err
	}
	pkgName := file.Name.Name

	addDecl := func(unit CodeUnit, start, end token.Pos) {
		idx := len(a.decls)
		a.decls = append(a.decls, decl{unit: unit, file: f, fset: fset, start: start, end: end})
		a.byFQN[unit.FQName] = append(a.byFQN[unit.FQName], idx)
		a.byShort[unit.ShortName] = append(a.byShort[unit.ShortName], idx)
	}

	for _, d := range file.Decls {
		switch x := d.(type) {
		case *ast.FuncDecl:
			if x.Name == nil {
				continue
			}
			name := x.Name.Name
			fqn := pkgName + "." + name
			kind := KindFunction
			if x.Recv != nil && len(x.Recv.List) > 0 {
				recvName := receiverTypeName(x.Recv.List[0].Type)
				if recvName != "" {
					fqn = recvName + "." + name
				}
			}
			addDecl(CodeUnit{File: f, Package: pkgName, ShortName: name, FQName: fqn, Kind: kind}, x.Pos(), x.End())
		case *ast.GenDecl:
			if x.Tok != token.TYPE {
				continue
			}
			for _, spec := range x.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || ts.Name == nil {
					continue
				}
				name := ts.Name.Name
				addDecl(CodeUnit{File: f, Package: pkgName, ShortName: name, FQName: pkgName + "." + name, Kind: KindClass}, x.Pos(), x.End())
			}
		}
	}
	return nil
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// GetAllDeclarations returns every indexed CodeUnit.
func (a *GoAnalyzer) GetAllDeclarations() []CodeUnit {
	out := make([]CodeUnit, 0, len(a.decls))
	for _, d := range a.decls {
		out = append(out, d.unit)
	}
	return out
}

// SearchSymbols implements prefix, camel-case, and substring matching. When
// the query equals a method's short name exactly, the parent type is
// included in the results (the receiver CodeUnit), matching §6's
// "results include parent class when query equals short name".
func (a *GoAnalyzer) SearchSymbols(query string) []CodeUnit {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []CodeUnit
	seen := map[string]bool{}
	add := func(u CodeUnit) {
		key := u.FQName + "|" + string(u.Kind)
		if !seen[key] {
			seen[key] = true
			out = append(out, u)
		}
	}

	camelTokens := splitCamel(query)

	for _, d := range a.decls {
		name := d.unit.ShortName
		lower := strings.ToLower(name)
		switch {
		case lower == q:
			add(d.unit)
			if parts := strings.SplitN(d.unit.FQName, ".", 2); len(parts) == 2 && parts[1] == name {
				if classes := a.byFQN[d.unit.Package+"."+parts[0]]; len(classes) > 0 {
					add(a.decls[classes[0]].unit)
				}
			}
		case strings.HasPrefix(lower, q):
			add(d.unit)
		case strings.Contains(lower, q):
			add(d.unit)
		case matchesCamel(name, camelTokens):
			add(d.unit)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FQName < out[j].FQName })
	return out
}

func splitCamel(s string) []string {
	var tokens []string
	var cur strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' && cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func matchesCamel(name string, tokens []string) bool {
	if len(tokens) < 2 {
		return false
	}
	nameTokens := splitCamel(name)
	if len(nameTokens) < len(tokens) {
		return false
	}
	for i, t := range tokens {
		if !strings.EqualFold(t, nameTokens[i]) {
			return false
		}
	}
	return true
}

// ClassSource resolves a class/type declaration's unique source range.
func (a *GoAnalyzer) ClassSource(fqn string) (SourceRange, error) {
	return a.sourceFor(fqn, KindClass)
}

// MethodSource resolves a function/method declaration's unique source
// range, reporting AmbiguousSymbolError when multiple overloads share the
// requested name (§4.C, §7).
func (a *GoAnalyzer) MethodSource(fqn string) (SourceRange, error) {
	return a.sourceFor(fqn, KindFunction)
}

func (a *GoAnalyzer) sourceFor(fqn string, kind SymbolKind) (SourceRange, error) {
	candidates := a.candidatesFor(fqn, kind)
	if len(candidates) == 0 {
		return SourceRange{}, &NoMatchError{FQName: fqn, Kind: kind}
	}
	if len(candidates) > 1 {
		units := make([]CodeUnit, len(candidates))
		for i, idx := range candidates {
			units[i] = a.decls[idx].unit
		}
		return SourceRange{}, &AmbiguousSymbolError{FQName: fqn, Candidates: units}
	}
	d := a.decls[candidates[0]]
	return rangeFromDecl(d)
}

// candidatesFor looks up by exact FQN first, then falls back to short-name
// matching (e.g. caller passed "foo" instead of "B.foo").
func (a *GoAnalyzer) candidatesFor(fqn string, kind SymbolKind) []int {
	var idxs []int
	if exact, ok := a.byFQN[fqn]; ok {
		for _, i := range exact {
			if a.decls[i].unit.Kind == kind {
				idxs = append(idxs, i)
			}
		}
		if len(idxs) > 0 {
			return idxs
		}
	}
	short := fqn
	if i := strings.LastIndex(fqn, "."); i >= 0 {
		short = fqn[i+1:]
	}
	for _, i := range a.byShort[short] {
		if a.decls[i].unit.Kind == kind {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func rangeFromDecl(d decl) (SourceRange, error) {
	startPos := d.fset.Position(d.start)
	endPos := d.fset.Position(d.end)
	src, err := os.ReadFile(d.file.AbsPath())
	if err != nil {
		return SourceRange{}, fmt.Errorf("read source for %s: %w", d.unit.FQName, err)
	}
	lines := strings.Split(string(src), "\n")
	s := startPos.Line - 1
	e := endPos.Line - 1
	if e >= len(lines) {
		e = len(lines) - 1
	}
	if s < 0 || e < s {
		return SourceRange{}, fmt.Errorf("invalid range for %s", d.unit.FQName)
	}
	text := strings.Join(lines[s:e+1], "\n")
	return SourceRange{Text: text, StartLine: s, EndLine: e}, nil
}

// ImportedCodeUnitsOf returns the CodeUnits declared in files this file
// imports, matched by Go import path's last path component against known
// package names (a best-effort approximation suitable for a reference
// analyzer).
func (a *GoAnalyzer) ImportedCodeUnitsOf(f project.ProjectFile) []CodeUnit {
	imports := a.ImportStatementsOf(f)
	pkgSet := map[string]bool{}
	for _, imp := range imports {
		pkgSet[filepath.Base(imp)] = true
	}
	var out []CodeUnit
	for _, d := range a.decls {
		if pkgSet[d.unit.Package] {
			out = append(out, d.unit)
		}
	}
	return out
}

// ImportStatementsOf returns the raw import paths declared in f.
func (a *GoAnalyzer) ImportStatementsOf(f project.ProjectFile) []string {
	src, err := os.ReadFile(f.AbsPath())
	if err != nil {
		return nil
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, f.AbsPath(), src, parser.ImportsOnly)
	if err != nil {
		return nil
	}
	var out []string
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		out = append(out, path)
	}
	return out
}

// usageCallsiteLimit bounds GetUsages, matching §6/§7's requirement that a
// too-large result reports TooManyCallsites instead of a partial hit list.
const usageCallsiteLimit = 500

var identRe = regexp.MustCompile(`\b\w+\b`)

// GetUsages does a literal-identifier scan across all indexed files. It is
// intentionally simple (no full type-checking) — sufficient to exercise the
// UsageFragment/TooManyCallsites contract end to end.
func (a *GoAnalyzer) GetUsages(symbol string) (UsageResult, error) {
	short := symbol
	if i := strings.LastIndex(symbol, "."); i >= 0 {
		short = symbol[i+1:]
	}
	seenFiles := map[string]bool{}
	var sites []Usage
	for _, d := range a.decls {
		key := d.file.RelPath()
		if seenFiles[key] {
			continue
		}
		seenFiles[key] = true
		src, err := os.ReadFile(d.file.AbsPath())
		if err != nil {
			continue
		}
		lines := strings.Split(string(src), "\n")
		for i, line := range lines {
			for _, m := range identRe.FindAllString(line, -1) {
				if m == short {
					sites = append(sites, Usage{File: d.file, Line: i, Text: strings.TrimSpace(line)})
				}
			}
			if len(sites) > usageCallsiteLimit {
				return UsageResult{}, &TooManyCallsites{Symbol: symbol, Observed: len(sites), Limit: usageCallsiteLimit}
			}
		}
	}
	return UsageResult{Symbol: symbol, Sites: sites}, nil
}
