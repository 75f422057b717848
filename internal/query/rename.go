package query

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/rosrad/rtagsd/internal/storage"
)

// RenamePreview is a single file's unified-diff preview of a rename.
type RenamePreview struct {
	File string
	Diff string
}

// RenamePreview finds every committed reference to oldName visible from
// path's project and previews the edit as a per-file unified diff,
// grounded on edward-ap-class-collector's difflib.Unified but generalized
// from a whole-file a/b comparison to a targeted line-level substitution
// driven by the store's recorded reference positions. It does not write
// anything: the daemon has no mandate to mutate source trees, only to
// report what a client-side rename tool would need to apply.
func (r *Router) RenamePreview(ctx context.Context, path, oldName, newName string) ([]RenamePreview, error) {
	proj, err := r.resolveProject(path)
	if err != nil {
		return nil, err
	}
	store, err := r.storeFor(ctx, proj.Root)
	if err != nil {
		return nil, fmt.Errorf("query: open store for %s: %w", proj.Root, err)
	}
	hits, err := store.ReferencesOf(ctx, oldName)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	byFile := make(map[string][]storage.SymbolHit)
	for _, h := range hits {
		byFile[h.File] = append(byFile[h.File], h)
	}
	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	var previews []RenamePreview
	for _, file := range files {
		diff, ok := renameDiff(file, oldName, newName, byFile[file])
		if !ok {
			continue
		}
		previews = append(previews, RenamePreview{File: file, Diff: diff})
	}
	return previews, nil
}

// renameDiff reads file off disk, substitutes oldName for newName on every
// line a reference was recorded against, and returns the unified diff
// between the original and renamed content. Returns ok=false when the
// file can no longer be read (moved or deleted since indexing) or the
// diff comes back empty.
func renameDiff(file, oldName, newName string, hits []storage.SymbolHit) (string, bool) {
	original, err := os.ReadFile(file)
	if err != nil {
		return "", false
	}

	before := strings.SplitAfter(string(original), "\n")
	after := make([]string, len(before))
	copy(after, before)
	for _, h := range hits {
		idx := h.Line - 1
		if idx < 0 || idx >= len(after) {
			continue
		}
		after[idx] = strings.ReplaceAll(after[idx], oldName, newName)
	}

	u := difflib.UnifiedDiff{
		A:        before,
		B:        after,
		FromFile: file,
		ToFile:   file,
		Context:  2,
	}
	body, err := difflib.GetUnifiedDiffString(u)
	if err != nil || body == "" {
		return "", false
	}
	return body, true
}
