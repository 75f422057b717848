package wal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosrad/rtagsd/pkg/rtags"
)

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := Open(path, 10)
	require.NoError(t, err)

	require.NoError(t, w.Append(EventQueued, rtags.JobID(1), "/proj", true))
	require.NoError(t, w.Append(EventReady, rtags.JobID(1), "/proj", true))
	require.NoError(t, w.Append(EventCompleteLocal, rtags.JobID(1), "/proj", true))
	require.NoError(t, w.Close())

	var replayed []Event
	err = Replay(path, 0, func(ev Event) error {
		replayed = append(replayed, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 3)
	assert.Equal(t, EventQueued, replayed[0].Type)
	assert.Equal(t, EventReady, replayed[1].Type)
	assert.Equal(t, EventCompleteLocal, replayed[2].Type)
}

func TestReplaySkipsUpToAfterSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path, 10)
	require.NoError(t, err)

	require.NoError(t, w.Append(EventQueued, rtags.JobID(1), "/proj", true))
	require.NoError(t, w.Append(EventReady, rtags.JobID(1), "/proj", true))
	require.NoError(t, w.Close())

	var replayed []Event
	err = Replay(path, 1, func(ev Event) error {
		replayed = append(replayed, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 1)
	assert.Equal(t, EventReady, replayed[0].Type)
}

func TestReplayMissingFileIsNotError(t *testing.T) {
	err := Replay(filepath.Join(t.TempDir(), "missing.wal"), 0, func(Event) error { return nil })
	assert.NoError(t, err)
}

func TestReopenContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	w, err := Open(path, 10)
	require.NoError(t, err)
	require.NoError(t, w.Append(EventQueued, rtags.JobID(1), "/proj", true))
	require.NoError(t, w.Append(EventReady, rtags.JobID(1), "/proj", true))
	firstSeq := w.LastSeq()
	require.NoError(t, w.Close())

	w2, err := Open(path, 10)
	require.NoError(t, err)
	assert.Equal(t, firstSeq, w2.LastSeq(), "reopening must continue the sequence, not restart it")

	require.NoError(t, w2.Append(EventCompleteLocal, rtags.JobID(1), "/proj", true))
	assert.Equal(t, firstSeq+1, w2.LastSeq())
	require.NoError(t, w2.Close())
}

func TestVerifyChecksumDetectsTampering(t *testing.T) {
	ev := Event{Seq: 1, Type: EventQueued, JobID: rtags.JobID(5), Project: "/proj"}
	ev.Checksum = CalculateChecksum(ev.Type, uint64(ev.JobID), ev.Project, ev.Seq)
	assert.True(t, VerifyChecksum(ev))

	ev.Project = "/tampered"
	assert.False(t, VerifyChecksum(ev))
}

func TestRotateResetsSequenceAndPreservesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path, 10)
	require.NoError(t, err)
	require.NoError(t, w.Append(EventQueued, rtags.JobID(1), "/proj", true))

	require.NoError(t, w.Rotate())
	assert.Equal(t, uint64(0), w.LastSeq())

	require.NoError(t, w.Append(EventQueued, rtags.JobID(2), "/proj", true))
	assert.Equal(t, uint64(1), w.LastSeq())
	require.NoError(t, w.Close())

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, matches, 1, "rotate should leave exactly one backup file behind")
}

func TestBufferedAppendFlushesOnSizeThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path, 2)
	require.NoError(t, err)

	require.NoError(t, w.Append(EventQueued, rtags.JobID(1), "/proj", false))
	require.NoError(t, w.Append(EventReady, rtags.JobID(1), "/proj", false))

	var replayed []Event
	require.NoError(t, w.Flush())
	require.NoError(t, Replay(path, 0, func(ev Event) error {
		replayed = append(replayed, ev)
		return nil
	}))
	assert.Len(t, replayed, 2)
	require.NoError(t, w.Close())
}

func TestReplayCorruptFileReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := Open(path, 10)
	require.NoError(t, err)
	require.NoError(t, w.Append(EventQueued, rtags.JobID(1), "/proj", true))
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = Replay(path, 0, func(Event) error { return nil })
	assert.True(t, errors.Is(err, ErrCorruptedWAL))
}
