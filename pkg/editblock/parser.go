package editblock

import (
	"fmt"
	"strings"
)

// OperationKind classifies what an edit block does to a file.
type OperationKind string

const (
	OpTextSearch     OperationKind = "text_search"
	OpWholeFile      OperationKind = "whole_file"
	OpSymbolFunction OperationKind = "symbol_function"
	OpSymbolClass    OperationKind = "symbol_class"
	OpConflictRegion OperationKind = "conflict_region"
)

// Block is one parsed Edit Operation: raw_filename/before_text/after_text
// plus the operation_kind the BRK marker (if any) selected.
type Block struct {
	RawFilename   string
	BeforeText    string
	AfterText     string
	Kind          OperationKind
	SymbolFQN     string // set for OpSymbolFunction / OpSymbolClass
	ConflictLabel string // set for OpConflictRegion, e.g. "BRK_CONFLICT_3"
}

// ParseResult is the parser's output: zero or more blocks, plus an
// optional parse error describing any malformed block encountered.
// Malformed blocks are skipped, not fatal to the rest of the response.
type ParseResult struct {
	Blocks     []Block
	ParseError string
}

const (
	searchMarker  = "<<<<<<< SEARCH"
	dividerMarker = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

// isDividerLine reports whether a trimmed line looks like a standalone
// divider made of three or more "=" characters, used by the
// forgiving-divider recovery.
func isDividerLine(line string) bool {
	t := strings.TrimSpace(line)
	return len(t) >= 3 && strings.Trim(t, "=") == ""
}

// findFilename locates the filename line for a block whose SEARCH marker
// is at lines[searchIdx], per §4.B: "a filename line may appear either
// immediately inside the fence or on the line preceding the fence."
func findFilename(lines []string, searchIdx int) string {
	j := searchIdx - 1
	if j < 0 {
		return ""
	}
	prev := strings.TrimSpace(lines[j])
	if prev == "" || isFence(prev) {
		if prev == "" {
			return ""
		}
		// prev is the fence opener itself; look one more line back.
		if j-1 >= 0 {
			cand := strings.TrimSpace(lines[j-1])
			if cand != "" && !isFence(cand) {
				return cand
			}
		}
		return ""
	}
	// prev holds a candidate filename, whether just inside a fence or
	// with no fence at all; either way it's the line directly above SEARCH.
	return prev
}

// Parse implements the Edit-Block Parser (§4.B): a line-oriented scan for
// "<<<<<<< SEARCH / ======= / >>>>>>> REPLACE" fenced blocks, tolerant of
// an omitted code fence, a misplaced filename, and a non-standard divider
// line when exactly one candidate exists.
func Parse(response string) ParseResult {
	lines := strings.Split(response, "\n")
	var blocks []Block
	var errMsgs []string

	i := 0
	for i < len(lines) {
		if strings.TrimSpace(lines[i]) != searchMarker {
			i++
			continue
		}
		searchIdx := i
		filename := findFilename(lines, searchIdx)

		dividerIdx := -1
		replaceIdx := -1
		var candidates []int

		j := searchIdx + 1
		for j < len(lines) {
			t := strings.TrimSpace(lines[j])
			if t == searchMarker {
				break // next block starts; this one never closed
			}
			if t == replaceMarker {
				replaceIdx = j
				break
			}
			if t == dividerMarker {
				if dividerIdx == -1 {
					dividerIdx = j
				}
			} else if isDividerLine(lines[j]) {
				candidates = append(candidates, j)
			}
			j++
		}

		if replaceIdx == -1 {
			errMsgs = append(errMsgs, fmt.Sprintf("unclosed edit block starting at line %d", searchIdx+1))
			i = j
			continue
		}

		if dividerIdx == -1 {
			if len(candidates) == 1 {
				dividerIdx = candidates[0]
			} else {
				errMsgs = append(errMsgs, fmt.Sprintf(
					"block at line %d: expected exactly one divider, found %d", searchIdx+1, len(candidates)))
				i = replaceIdx + 1
				continue
			}
		}

		before := strings.Join(lines[searchIdx+1:dividerIdx], "\n")
		after := strings.Join(lines[dividerIdx+1:replaceIdx], "\n")
		blocks = append(blocks, classifyBlock(filename, before, after))
		i = replaceIdx + 1
	}

	parseErr := strings.Join(errMsgs, "; ")
	if len(blocks) == 0 && parseErr == "" {
		parseErr = "no edit blocks found"
	}
	return ParseResult{Blocks: blocks, ParseError: parseErr}
}

// classifyBlock inspects before_text's first (and, for BRK markers, only)
// line to pick the operation_kind per §4.B's reserved tokens.
func classifyBlock(filename, before, after string) Block {
	trimmed := strings.TrimSpace(before)
	singleLine := !strings.Contains(trimmed, "\n")

	switch {
	case trimmed == "BRK_ENTIRE_FILE":
		return Block{RawFilename: filename, BeforeText: before, AfterText: after, Kind: OpWholeFile}
	case singleLine && strings.HasPrefix(trimmed, "BRK_FUNCTION "):
		fqn := strings.TrimSpace(strings.TrimPrefix(trimmed, "BRK_FUNCTION "))
		return Block{RawFilename: filename, BeforeText: before, AfterText: after, Kind: OpSymbolFunction, SymbolFQN: fqn}
	case singleLine && strings.HasPrefix(trimmed, "BRK_CLASS "):
		fqn := strings.TrimSpace(strings.TrimPrefix(trimmed, "BRK_CLASS "))
		return Block{RawFilename: filename, BeforeText: before, AfterText: after, Kind: OpSymbolClass, SymbolFQN: fqn}
	case singleLine && strings.HasPrefix(trimmed, "BRK_CONFLICT_"):
		return Block{RawFilename: filename, BeforeText: before, AfterText: after, Kind: OpConflictRegion, ConflictLabel: trimmed}
	default:
		return Block{RawFilename: filename, BeforeText: before, AfterText: after, Kind: OpTextSearch}
	}
}
