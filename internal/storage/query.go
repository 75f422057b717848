package storage

import (
	"context"
	"fmt"
)

// SymbolHit is a single match against the symbol table.
type SymbolHit struct {
	Name string
	Kind string
	File string
	Line int
	Col  int
}

// SearchSymbols performs an FTS5 prefix search over symbol names,
// mirroring the dshills-gocontext-mcp SearchSymbols helper this store is
// grounded on.
func (s *Store) SearchSymbols(ctx context.Context, query string, limit int) ([]SymbolHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sym.name, sym.kind, f.path, sym.line, sym.column
		FROM symbols_fts
		JOIN symbols sym ON sym.id = symbols_fts.rowid
		JOIN files f ON f.id = sym.file_id
		WHERE symbols_fts.name MATCH ?
		LIMIT ?`, query+"*", limit)
	if err != nil {
		return nil, fmt.Errorf("storage: search symbols: %w", err)
	}
	defer rows.Close()

	var hits []SymbolHit
	for rows.Next() {
		var h SymbolHit
		if err := rows.Scan(&h.Name, &h.Kind, &h.File, &h.Line, &h.Col); err != nil {
			return nil, fmt.Errorf("storage: scan symbol hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ReferencesOf returns every recorded reference to a symbol by exact name.
func (s *Store) ReferencesOf(ctx context.Context, name string) ([]SymbolHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sym.name, sym.kind, f.path, r.line, r.column
		FROM refs r
		JOIN symbols sym ON sym.id = r.symbol_id
		JOIN files f ON f.id = r.file_id
		WHERE sym.name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("storage: references of: %w", err)
	}
	defer rows.Close()

	var hits []SymbolHit
	for rows.Next() {
		var h SymbolHit
		if err := rows.Scan(&h.Name, &h.Kind, &h.File, &h.Line, &h.Col); err != nil {
			return nil, fmt.Errorf("storage: scan reference: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Dependents returns every file that depends on (includes, transitively
// for depth 1) the given file.
func (s *Store) Dependents(ctx context.Context, file string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f2.path
		FROM dependencies d
		JOIN files f1 ON f1.id = d.dep_file_id
		JOIN files f2 ON f2.id = d.source_file_id
		WHERE f1.path = ?`, file)
	if err != nil {
		return nil, fmt.Errorf("storage: dependents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("storage: scan dependent: %w", err)
		}
		out = append(out, path)
	}
	return out, rows.Err()
}
