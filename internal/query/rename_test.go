package query

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosrad/rtagsd/internal/storage"
)

func TestRenameDiffSubstitutesOnlyRecordedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cc")
	content := "int oldName(int x) {\n  return oldName(x - 1);\n}\n// oldName mentioned in a comment too\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	hits := []storage.SymbolHit{
		{Name: "oldName", File: path, Line: 1, Col: 5},
		{Name: "oldName", File: path, Line: 2, Col: 10},
	}

	diff, ok := renameDiff(path, "oldName", "newName", hits)
	require.True(t, ok)
	assert.Contains(t, diff, "-int oldName(int x) {")
	assert.Contains(t, diff, "+int newName(int x) {")
	assert.Contains(t, diff, "-  return oldName(x - 1);")
	assert.Contains(t, diff, "+  return newName(x - 1);")
	// Line 4's "oldName" was never a recorded reference, so it must survive untouched.
	assert.False(t, strings.Contains(diff, "+// newName mentioned"))
}

func TestRenameDiffMissingFileIsSkipped(t *testing.T) {
	_, ok := renameDiff("/does/not/exist.cc", "old", "new", []storage.SymbolHit{{Line: 1}})
	assert.False(t, ok)
}

func TestRenameDiffOutOfRangeLineIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b.cc")
	require.NoError(t, os.WriteFile(path, []byte("int x;\n"), 0o644))

	_, ok := renameDiff(path, "old", "new", []storage.SymbolHit{{Line: 99}})
	assert.False(t, ok, "a diff with no actual changes should report ok=false")
}
