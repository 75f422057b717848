package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/rosrad/rtagsd/pkg/protocol"
	"github.com/rosrad/rtagsd/pkg/rtags"
)

// CommitResult persists a winning IndexerMessage in a single transaction:
// the source file's row, a dependency edge for every visited file, the
// decoded symbol/reference tables, and the raw result blob — the only
// write path into the store (spec §4.11), called exclusively from the
// reconciler's commit step (§4.7).
func (s *Store) CommitResult(ctx context.Context, jobID rtags.JobID, sourceFile string, msg *protocol.IndexerMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin commit: %w", err)
	}
	defer tx.Rollback()

	srcID, err := upsertFile(ctx, tx, sourceFile)
	if err != nil {
		return err
	}

	for _, dep := range msg.Visited {
		depID, err := upsertFile(ctx, tx, dep)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO dependencies (source_file_id, dep_file_id) VALUES (?, ?)`,
			srcID, depID); err != nil {
			return fmt.Errorf("storage: insert dependency: %w", err)
		}
	}

	data, err := decodeIndexData(msg.Symbols)
	if err != nil {
		return err
	}
	if err := commitIndexData(ctx, tx, srcID, data); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO job_results (job_id, source, symbols, committed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET symbols=excluded.symbols, committed_at=excluded.committed_at`,
		uint64(jobID), sourceFile, msg.Symbols, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("storage: insert job_result: %w", err)
	}

	return tx.Commit()
}

// decodeIndexData unpacks the extractor's gob-encoded payload. An empty or
// nil blob (a give-up result, or a stand-in run with nothing to report) is
// not an error: it just contributes no symbol rows.
func decodeIndexData(raw []byte) (rtags.IndexData, error) {
	var data rtags.IndexData
	if len(raw) == 0 {
		return data, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return data, fmt.Errorf("storage: decode index data: %w", err)
	}
	return data, nil
}

// commitIndexData replaces srcFileID's symbol/reference rows with data's,
// including the symbols_fts external-content index, which FTS5 requires
// callers to keep in sync by hand rather than deriving from symbols.
func commitIndexData(ctx context.Context, tx *sql.Tx, srcFileID int64, data rtags.IndexData) error {
	if err := clearFileSymbols(ctx, tx, srcFileID); err != nil {
		return err
	}
	if len(data.Symbols) == 0 {
		return nil
	}

	symbolIDs := make(map[string]int64, len(data.Symbols))
	for _, sym := range data.Symbols {
		fileID, err := upsertFile(ctx, tx, sym.File)
		if err != nil {
			return err
		}
		isDef := 0
		if sym.IsDef {
			isDef = 1
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO symbols (file_id, name, kind, line, column, is_def) VALUES (?, ?, ?, ?, ?, ?)`,
			fileID, sym.Name, sym.Kind, sym.Line, sym.Column, isDef)
		if err != nil {
			return fmt.Errorf("storage: insert symbol: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("storage: symbol id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO symbols_fts(rowid, name) VALUES (?, ?)`, id, sym.Name); err != nil {
			return fmt.Errorf("storage: index symbol fts: %w", err)
		}
		symbolIDs[sym.Name] = id
	}

	for _, ref := range data.References {
		symID, ok := symbolIDs[ref.SymbolName]
		if !ok {
			continue // a reference to a symbol this commit didn't declare
		}
		fileID, err := upsertFile(ctx, tx, ref.File)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO refs (symbol_id, file_id, line, column) VALUES (?, ?, ?, ?)`,
			symID, fileID, ref.Line, ref.Column); err != nil {
			return fmt.Errorf("storage: insert ref: %w", err)
		}
	}
	return nil
}

// clearFileSymbols drops fileID's existing symbols (and their refs and FTS
// rows) before a fresh commit, so re-indexing a file replaces its rows
// instead of accumulating stale duplicates alongside them.
func clearFileSymbols(ctx context.Context, tx *sql.Tx, fileID int64) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM symbols WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("storage: select old symbols: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("storage: scan old symbol id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("storage: iterate old symbols: %w", err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM refs WHERE symbol_id = ?`, id); err != nil {
			return fmt.Errorf("storage: delete old refs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM symbols_fts WHERE rowid = ?`, id); err != nil {
			return fmt.Errorf("storage: delete old fts row: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("storage: delete old symbols: %w", err)
	}
	return nil
}

func upsertFile(ctx context.Context, tx *sql.Tx, path string) (int64, error) {
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO files (path) VALUES (?)`, path); err != nil {
		return 0, fmt.Errorf("storage: insert file: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("storage: select file id: %w", err)
	}
	return id, nil
}
