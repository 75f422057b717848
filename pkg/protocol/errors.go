package protocol

import "errors"

var (
	// ErrChecksumMismatch indicates a frame's payload was altered or
	// corrupted in transit.
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")

	// ErrCorruptFrame indicates a frame's length prefix or header is
	// internally inconsistent.
	ErrCorruptFrame = errors.New("protocol: corrupt frame")
)
