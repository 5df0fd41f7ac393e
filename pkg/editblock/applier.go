package editblock

import (
	"fmt"
	"strings"

	diffmatchpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/brokkworkbench/core/pkg/analyzer"
	"github.com/brokkworkbench/core/pkg/project"
)

// FailureReason is the applier's failure taxonomy (§4.C/§7).
type FailureReason string

const (
	FailFileNotFound    FailureReason = "file_not_found"
	FailNoMatch         FailureReason = "no_match"
	FailAmbiguousMatch  FailureReason = "ambiguous_match"
	FailInvalidFilename FailureReason = "invalid_filename"
	FailIOError         FailureReason = "io_error"
)

// Required commentary strings the LLM relies on to self-correct (§7).
const (
	commentaryAlreadyPresent = "replacement text is already present"
	commentaryNotUnifiedDiff = "not unified diff format"
)

// FailedBlock records why one block could not be applied.
type FailedBlock struct {
	Block      Block
	Reason     FailureReason
	Commentary string
}

// ApplyResult is the outcome of applying a batch of blocks.
type ApplyResult struct {
	SucceededBlocks  []Block
	FailedBlocks     []FailedBlock
	OriginalContents map[string]string // keyed by ProjectFile.RelPath()
}

// WorkspaceContext is the minimal view of the live workspace the applier
// and resolver need: the files currently selected into context, and
// (optionally) the wider project file set for step-3 basename resolution.
type WorkspaceContext struct {
	Root         project.Root
	ContextFiles []project.ProjectFile
	ProjectFiles []project.ProjectFile
}

// Apply implements the Edit-Block Applier (§4.C): resolve each block's
// filename, dispatch by operation kind, and record the pre-edit contents
// of every file the first time it is touched in this apply session.
func Apply(ws WorkspaceContext, an analyzer.Analyzer, blocks []Block) ApplyResult {
	result := ApplyResult{OriginalContents: map[string]string{}}

	for _, blk := range blocks {
		allowNew := blk.Kind == OpWholeFile
		rr := Resolve(ws.Root, ws.ContextFiles, ws.ProjectFiles, blk.RawFilename, allowNew)

		switch rr.Kind {
		case ResolveInvalid:
			result.FailedBlocks = append(result.FailedBlocks, FailedBlock{Block: blk, Reason: FailInvalidFilename, Commentary: rr.Err().Error()})
			continue
		case ResolveAmbiguous:
			result.FailedBlocks = append(result.FailedBlocks, FailedBlock{Block: blk, Reason: FailAmbiguousMatch, Commentary: rr.Err().Error()})
			continue
		case ResolveNotFound:
			result.FailedBlocks = append(result.FailedBlocks, FailedBlock{Block: blk, Reason: FailFileNotFound, Commentary: fmt.Sprintf("no such file: %s", blk.RawFilename)})
			continue
		}

		file := rr.File
		failed, ok := applyOne(file, blk, an, result.OriginalContents)
		if !ok {
			result.FailedBlocks = append(result.FailedBlocks, failed)
			continue
		}
		result.SucceededBlocks = append(result.SucceededBlocks, blk)
	}
	return result
}

func recordOriginal(originals map[string]string, file project.ProjectFile) {
	key := file.RelPath()
	if _, seen := originals[key]; seen {
		return
	}
	if file.Exists() {
		if text, err := file.ReadString(); err == nil {
			originals[key] = text
		}
	} else {
		originals[key] = ""
	}
}

func applyOne(file project.ProjectFile, blk Block, an analyzer.Analyzer, originals map[string]string) (FailedBlock, bool) {
	switch blk.Kind {
	case OpWholeFile:
		recordOriginal(originals, file)
		// The grammar's REPLACE marker always sits on its own line, so the
		// last content line the parser joined always had a newline after
		// it in the LLM's raw response; restore it here so a whole-file
		// write reproduces that line exactly instead of the parser's
		// newline-stripped join.
		content := blk.AfterText
		if content != "" && !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if err := file.WriteString(content); err != nil {
			return FailedBlock{Block: blk, Reason: FailIOError, Commentary: err.Error()}, false
		}
		return FailedBlock{}, true

	case OpSymbolFunction, OpSymbolClass:
		return applySymbol(file, blk, an, originals)

	case OpConflictRegion:
		return applyConflictRegion(file, blk, originals)

	default: // OpTextSearch
		return applyTextSearch(file, blk, originals)
	}
}

func applySymbol(file project.ProjectFile, blk Block, an analyzer.Analyzer, originals map[string]string) (FailedBlock, bool) {
	if !file.Exists() {
		return FailedBlock{Block: blk, Reason: FailFileNotFound, Commentary: fmt.Sprintf("no such file: %s", blk.RawFilename)}, false
	}
	if an == nil {
		return FailedBlock{Block: blk, Reason: FailNoMatch, Commentary: "no analyzer available"}, false
	}

	var rng analyzer.SourceRange
	var err error
	if blk.Kind == OpSymbolClass {
		rng, err = an.ClassSource(blk.SymbolFQN)
	} else {
		rng, err = an.MethodSource(blk.SymbolFQN)
	}
	if err != nil {
		switch err.(type) {
		case *analyzer.AmbiguousSymbolError:
			return FailedBlock{Block: blk, Reason: FailAmbiguousMatch, Commentary: err.Error()}, false
		default:
			return FailedBlock{Block: blk, Reason: FailNoMatch, Commentary: err.Error()}, false
		}
	}

	recordOriginal(originals, file)
	text, readErr := file.ReadString()
	if readErr != nil {
		return FailedBlock{Block: blk, Reason: FailIOError, Commentary: readErr.Error()}, false
	}

	hadTrailingNewline := strings.HasSuffix(text, "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if rng.StartLine < 0 || rng.EndLine >= len(lines) || rng.StartLine > rng.EndLine {
		return FailedBlock{Block: blk, Reason: FailNoMatch, Commentary: "symbol range out of bounds"}, false
	}

	replacement := strings.Split(blk.AfterText, "\n")
	newLines := append([]string{}, lines[:rng.StartLine]...)
	newLines = append(newLines, replacement...)
	newLines = append(newLines, lines[rng.EndLine+1:]...)

	out := strings.Join(newLines, "\n")
	if hadTrailingNewline {
		out += "\n"
	}
	if err := file.WriteString(out); err != nil {
		return FailedBlock{Block: blk, Reason: FailIOError, Commentary: err.Error()}, false
	}
	return FailedBlock{}, true
}

func conflictMarkers(label string) (begin, end string) {
	return label + "_BEGIN", label + "_END"
}

func applyConflictRegion(file project.ProjectFile, blk Block, originals map[string]string) (FailedBlock, bool) {
	if !file.Exists() {
		return FailedBlock{Block: blk, Reason: FailFileNotFound, Commentary: fmt.Sprintf("no such file: %s", blk.RawFilename)}, false
	}
	text, err := file.ReadString()
	if err != nil {
		return FailedBlock{Block: blk, Reason: FailIOError, Commentary: err.Error()}, false
	}

	beginMarker, endMarker := conflictMarkers(blk.ConflictLabel)
	start := strings.Index(text, beginMarker)
	if start == -1 {
		return FailedBlock{Block: blk, Reason: FailNoMatch, Commentary: fmt.Sprintf("no conflict region %q found", blk.ConflictLabel)}, false
	}
	afterBegin := start + len(beginMarker)
	end := strings.Index(text[afterBegin:], endMarker)
	if end == -1 {
		return FailedBlock{Block: blk, Reason: FailNoMatch, Commentary: fmt.Sprintf("conflict region %q has no end marker", blk.ConflictLabel)}, false
	}
	end += afterBegin + len(endMarker)

	recordOriginal(originals, file)
	out := text[:start] + blk.AfterText + text[end:]
	if err := file.WriteString(out); err != nil {
		return FailedBlock{Block: blk, Reason: FailIOError, Commentary: err.Error()}, false
	}
	return FailedBlock{}, true
}

func applyTextSearch(file project.ProjectFile, blk Block, originals map[string]string) (FailedBlock, bool) {
	if !file.Exists() {
		return FailedBlock{Block: blk, Reason: FailFileNotFound, Commentary: fmt.Sprintf("no such file: %s", blk.RawFilename)}, false
	}
	text, err := file.ReadString()
	if err != nil {
		return FailedBlock{Block: blk, Reason: FailIOError, Commentary: err.Error()}, false
	}

	if isDiffLike(blk.BeforeText) {
		return FailedBlock{Block: blk, Reason: FailNoMatch, Commentary: commentaryNotUnifiedDiff}, false
	}

	before := strings.TrimRight(blk.BeforeText, "\n")
	if before == "" {
		return FailedBlock{Block: blk, Reason: FailNoMatch, Commentary: "search text not found"}, false
	}

	hadTrailingNewline := strings.HasSuffix(text, "\n")
	idx := strings.Index(text, before)
	var replaced string
	if idx >= 0 {
		replaced = text[:idx] + blk.AfterText + text[idx+len(before):]
	} else if blk.AfterText != "" && strings.Contains(text, blk.AfterText) {
		// before_text is absent but after_text is already there: report it
		// instead of letting the fuzzy patch rewrite some other region.
		return FailedBlock{Block: blk, Reason: FailNoMatch, Commentary: commentaryAlreadyPresent}, false
	} else {
		// Fall back to a context-fuzzy patch application, grounded in the
		// teacher's three-way merge idiom: diff before->after into a patch,
		// then let diffmatchpatch locate the matching region even when
		// whitespace/newlines around it have drifted.
		dmp := diffmatchpatch.New()
		patches := dmp.PatchMake(before, blk.AfterText)
		out, applied := dmp.PatchApply(patches, text)
		anyApplied := false
		for _, a := range applied {
			anyApplied = anyApplied || a
		}
		if !anyApplied {
			return FailedBlock{Block: blk, Reason: FailNoMatch, Commentary: "search text not found"}, false
		}
		replaced = out
	}

	if hadTrailingNewline && !strings.HasSuffix(replaced, "\n") {
		replaced += "\n"
	} else if !hadTrailingNewline {
		replaced = strings.TrimSuffix(replaced, "\n")
	}

	recordOriginal(originals, file)
	if err := file.WriteString(replaced); err != nil {
		return FailedBlock{Block: blk, Reason: FailIOError, Commentary: err.Error()}, false
	}
	return FailedBlock{}, true
}

// isDiffLike reports whether before_text looks like a unified diff hunk
// rather than literal source (§4.C rule 4).
func isDiffLike(before string) bool {
	for _, line := range strings.Split(before, "\n") {
		t := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(t, "-") || strings.HasPrefix(t, "+") {
			return true
		}
	}
	return false
}

