package storage

import (
	"bytes"
	"context"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosrad/rtagsd/pkg/protocol"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), "/proj")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func encodeTestIndexData(t *testing.T, data rtags.IndexData) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(data))
	return buf.Bytes()
}

// TestCommitResultPopulatesSymbolTables exercises the §4.11 write path
// end to end: a synthetic IndexerMessage carrying an encoded IndexData
// commits, and the symbol tables it fed become visible through the
// query surface (SearchSymbols, ReferencesOf) real readers use.
func TestCommitResultPopulatesSymbolTables(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	data := rtags.IndexData{
		Symbols: []rtags.SymbolRecord{
			{Name: "doWork", Kind: "function", File: "/proj/work.cc", Line: 10, Column: 1, IsDef: true},
		},
		References: []rtags.ReferenceRecord{
			{SymbolName: "doWork", File: "/proj/main.cc", Line: 5, Column: 3},
		},
	}

	msg := &protocol.IndexerMessage{
		JobID:   rtags.JobID(1),
		Project: "/proj",
		Success: true,
		Symbols: encodeTestIndexData(t, data),
		Visited: []string{"/proj/work.h"},
	}

	require.NoError(t, store.CommitResult(ctx, rtags.JobID(1), "/proj/work.cc", msg))

	hits, err := store.SearchSymbols(ctx, "doWork", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doWork", hits[0].Name)
	assert.Equal(t, "function", hits[0].Kind)
	assert.Equal(t, "/proj/work.cc", hits[0].File)
	assert.Equal(t, 10, hits[0].Line)

	refs, err := store.ReferencesOf(ctx, "doWork")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "/proj/main.cc", refs[0].File)
	assert.Equal(t, 5, refs[0].Line)

	deps, err := store.Dependents(ctx, "/proj/work.h")
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/work.cc"}, deps)
}

// TestCommitResultReplacesStaleSymbols exercises re-indexing the same
// source file: a later commit must drop the earlier commit's rows rather
// than accumulate duplicates alongside them.
func TestCommitResultReplacesStaleSymbols(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := rtags.IndexData{Symbols: []rtags.SymbolRecord{
		{Name: "oldFn", Kind: "function", File: "/proj/work.cc", Line: 1, Column: 1, IsDef: true},
	}}
	msg1 := &protocol.IndexerMessage{JobID: 1, Success: true, Symbols: encodeTestIndexData(t, first)}
	require.NoError(t, store.CommitResult(ctx, 1, "/proj/work.cc", msg1))

	second := rtags.IndexData{Symbols: []rtags.SymbolRecord{
		{Name: "newFn", Kind: "function", File: "/proj/work.cc", Line: 2, Column: 1, IsDef: true},
	}}
	msg2 := &protocol.IndexerMessage{JobID: 1, Success: true, Symbols: encodeTestIndexData(t, second)}
	require.NoError(t, store.CommitResult(ctx, 1, "/proj/work.cc", msg2))

	oldHits, err := store.SearchSymbols(ctx, "oldFn", 10)
	require.NoError(t, err)
	assert.Empty(t, oldHits)

	newHits, err := store.SearchSymbols(ctx, "newFn", 10)
	require.NoError(t, err)
	require.Len(t, newHits, 1)
}

// TestCommitResultToleratesEmptySymbols covers the give-up-after-retries
// path (scheduler.handleCrash), which commits a result with a nil Symbols
// blob: it must not fail decoding, and must simply contribute no rows.
func TestCommitResultToleratesEmptySymbols(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := &protocol.IndexerMessage{JobID: 1, Success: true}
	require.NoError(t, store.CommitResult(ctx, 1, "/proj/crashy.cc", msg))

	hits, err := store.SearchSymbols(ctx, "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
