package editblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWholeFileCreation(t *testing.T) {
	resp := "newFile.txt\n```\n<<<<<<< SEARCH\nBRK_ENTIRE_FILE\n=======\nCreated content\n>>>>>>> REPLACE\n```\n"
	res := Parse(resp)
	require.Empty(t, res.ParseError)
	require.Len(t, res.Blocks, 1)
	blk := res.Blocks[0]
	assert.Equal(t, "newFile.txt", blk.RawFilename)
	assert.Equal(t, OpWholeFile, blk.Kind)
	assert.Equal(t, "Created content", blk.AfterText)
}

func TestParseSymbolFunctionMarker(t *testing.T) {
	resp := "B.java\n<<<<<<< SEARCH\nBRK_FUNCTION B.foo\n=======\nnew body\n>>>>>>> REPLACE\n"
	res := Parse(resp)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, OpSymbolFunction, res.Blocks[0].Kind)
	assert.Equal(t, "B.foo", res.Blocks[0].SymbolFQN)
}

func TestParseForgivingDivider(t *testing.T) {
	// S4: SEARCH line, one standalone "=======", REPLACE line, filename
	// preceding the fence.
	resp := "src/Main.java\n```\n<<<<<<< SEARCH\nold line\n=======\nnew line\n>>>>>>> REPLACE\n```\n"
	res := Parse(resp)
	require.Empty(t, res.ParseError)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "src/Main.java", res.Blocks[0].RawFilename)
	assert.Equal(t, OpTextSearch, res.Blocks[0].Kind)
	assert.Equal(t, "old line", res.Blocks[0].BeforeText)
	assert.Equal(t, "new line", res.Blocks[0].AfterText)
}

func TestParseAmbiguousDividerIsNonFatal(t *testing.T) {
	// Two standalone "=" lines inside the block and no exact "=======":
	// this one block fails, but the parser keeps scanning.
	resp := "a.txt\n<<<<<<< SEARCH\nfoo\n===\nbar\n====\nbaz\n>>>>>>> REPLACE\n" +
		"b.txt\n<<<<<<< SEARCH\nx\n=======\ny\n>>>>>>> REPLACE\n"
	res := Parse(resp)
	require.NotEmpty(t, res.ParseError)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "b.txt", res.Blocks[0].RawFilename)
}

func TestParseUnclosedBlockProducesParseError(t *testing.T) {
	resp := "a.txt\n<<<<<<< SEARCH\nfoo\n=======\nbar\n"
	res := Parse(resp)
	assert.NotEmpty(t, res.ParseError)
	assert.Empty(t, res.Blocks)
}

func TestParseNoBlocksAtAll(t *testing.T) {
	res := Parse("just some prose, no edit blocks here")
	assert.Empty(t, res.Blocks)
	assert.NotEmpty(t, res.ParseError)
}

func TestParseConflictRegionMarker(t *testing.T) {
	resp := "a.txt\n<<<<<<< SEARCH\nBRK_CONFLICT_1\n=======\nresolved\n>>>>>>> REPLACE\n"
	res := Parse(resp)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, OpConflictRegion, res.Blocks[0].Kind)
	assert.Equal(t, "BRK_CONFLICT_1", res.Blocks[0].ConflictLabel)
}
