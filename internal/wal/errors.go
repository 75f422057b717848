package wal

import "errors"

var (
	// ErrCorruptedWAL indicates the WAL file could not be parsed as a
	// sequence of JSON records.
	ErrCorruptedWAL = errors.New("wal: file is corrupted")

	// ErrChecksumMismatch indicates a record's stored checksum does not
	// match its recomputed checksum.
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")

	// ErrWALClosed indicates an operation was attempted on a closed WAL.
	ErrWALClosed = errors.New("wal: already closed")

	// ErrSyncFailed indicates fsync to disk failed.
	ErrSyncFailed = errors.New("wal: sync to disk failed")
)
