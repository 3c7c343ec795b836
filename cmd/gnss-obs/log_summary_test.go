package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnss-obs/internal/obs"
	"gnss-obs/internal/replay"
	"gnss-obs/internal/sbp"
)

func wireObs(t *testing.T, sender uint16, total, index uint8, towMs uint32, recs ...obs.RawRecord) []byte {
	t.Helper()
	f, err := sbp.EncodeObservation(obs.Message{
		Generation: obs.GenerationCurrent,
		TOWms:      towMs,
		Week:       2000,
		Seq:        obs.SequenceHeader{Total: total, Index: index}.Byte(),
		Records:    recs,
	}, sender)
	require.NoError(t, err)
	b, err := sbp.Encode(f)
	require.NoError(t, err)
	return b
}

func TestSummarizeSBPLog(t *testing.T) {
	rec := obs.RawRecord{Sat: 7, Code: obs.CodeGPSL1CA, CN0: 160, Flags: 0x03}
	other, err := sbp.Encode(sbp.Frame{Type: 0x0102, Payload: []byte{1}})
	require.NoError(t, err)

	recs := []replay.Record{
		{At: 0, Frame: nil},
		{At: 0, Frame: wireObs(t, 0x42, 2, 0, 1000, rec)},
		{At: 100 * time.Millisecond, Frame: wireObs(t, 0x42, 2, 1, 1000)},
		{At: 200 * time.Millisecond, Frame: other},
		{At: 300 * time.Millisecond, Frame: []byte{0x55, 0x01}},
		{At: 0, Frame: nil},
		// A continuation with no start: the relay session drops it.
		{At: 1 * time.Second, Frame: wireObs(t, 0, 2, 1, 2000, rec)},
	}

	s, err := summarizeSBPLog(recs)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Segments)
	assert.Equal(t, 5, s.Frames)
	assert.Equal(t, 1, s.Invalid)
	assert.Equal(t, 1*time.Second, s.MaxDuration)
	assert.Equal(t, 3, s.TypeCounts[sbp.MsgObs])
	assert.Equal(t, 1, s.TypeCounts[0x0102])

	require.Len(t, s.Ingest.Sessions, 2)
	assert.Equal(t, uint64(1), s.Ingest.Sessions[0].EpochsAccepted)
	assert.Zero(t, s.Ingest.Sessions[1].EpochsAccepted)
	assert.Zero(t, s.Ingest.Sessions[1].EpochsDropped, "orphan continuation is not a dropped epoch")
}

func TestPrintLogSummary(t *testing.T) {
	start := time.Now()
	w, err := replay.CreateWriter(filepath.Join(t.TempDir(), "obs.log"), start)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(start, wireObs(t, 0x42, 1, 0, 5000, obs.RawRecord{Sat: 1})))
	require.NoError(t, w.Close())

	var out bytes.Buffer
	require.NoError(t, printLogSummary(&out, w.Path()))
	text := out.String()
	assert.Contains(t, text, "frames: 1\n")
	assert.Contains(t, text, "  0x004A: 1\n")
	assert.True(t, strings.Contains(text, "  local: accepted=1 "), text)

	assert.Error(t, printLogSummary(&out, " "))
}
