package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnss-obs/internal/obs"
	"gnss-obs/internal/sbp"
)

func obsFrame(t *testing.T, sender uint16, total, index uint8, towMs uint32, recs ...obs.RawRecord) sbp.Frame {
	t.Helper()
	f, err := sbp.EncodeObservation(obs.Message{
		Generation: obs.GenerationCurrent,
		TOWms:      towMs,
		Week:       2000,
		Seq:        obs.SequenceHeader{Total: total, Index: index}.Byte(),
		Records:    recs,
	}, sender)
	require.NoError(t, err)
	return f
}

func newTestRouter(t *testing.T, published *[]string) *Router {
	t.Helper()
	r, err := NewRouter(Config{
		Sessions: []SessionSpec{
			{Name: "Local", Mode: obs.ModeLocal},
			{Name: "Remote", Mode: obs.ModeRelay},
		},
		OnPublish: func(s *obs.Session, ep *obs.Epoch) {
			*published = append(*published, s.Name())
		},
	})
	require.NoError(t, err)
	return r
}

func TestRouter_SplitsStreamByOrigin(t *testing.T) {
	var published []string
	r := newTestRouter(t, &published)

	// Local sessions take frames from non-zero senders, relay sessions take
	// sender 0.
	rec := obs.RawRecord{Sat: 5, Code: obs.CodeGALE1B, CN0: 160, Flags: 0x03}
	require.NoError(t, r.HandleFrame(obsFrame(t, 0x42, 1, 0, 1000, rec)))
	require.NoError(t, r.HandleFrame(obsFrame(t, 0, 2, 0, 2000, rec)))
	require.NoError(t, r.HandleFrame(obsFrame(t, 0, 2, 1, 2000)))

	assert.Equal(t, []string{"Local", "Remote"}, published)

	local, ok := r.Session("Local")
	require.True(t, ok)
	ep, ok := local.Latest()
	require.True(t, ok)
	assert.Equal(t, 1.0, ep.TOW)

	remote, ok := r.Session("Remote")
	require.True(t, ok)
	ep, ok = remote.Latest()
	require.True(t, ok)
	assert.Equal(t, 2.0, ep.TOW)
	assert.Equal(t, 1, ep.Len())

	st := r.Stats()
	assert.Equal(t, uint64(3), st.Frames)
	assert.Equal(t, uint64(3), st.Observations)
	require.Len(t, st.Sessions, 2)
	assert.Equal(t, uint64(1), st.Sessions[0].EpochsAccepted)
	assert.Equal(t, uint64(1), st.Sessions[1].EpochsAccepted)
}

func TestRouter_CountsOtherAndUndecodable(t *testing.T) {
	var published []string
	r := newTestRouter(t, &published)

	require.NoError(t, r.HandleFrame(sbp.Frame{Type: 0x0102, Payload: []byte{1, 2}}))
	require.NoError(t, r.HandleFrame(sbp.Frame{Type: sbp.MsgObs, Payload: []byte{1, 2, 3}}))

	st := r.Stats()
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, uint64(1), st.Other)
	assert.Equal(t, uint64(1), st.DecodeErrors)
	assert.Zero(t, st.Observations)
	assert.Empty(t, published)
}

func TestRouter_MalformedCountedPerSessionWarnedOnce(t *testing.T) {
	var logs bytes.Buffer
	r, err := NewRouter(Config{
		Sessions: []SessionSpec{
			{Name: "a", Mode: obs.ModeLocal},
			{Name: "b", Mode: obs.ModeLocal},
			{Name: "c", Mode: obs.ModeRelay},
		},
		Logger: log.NewWithOptions(&logs, log.Options{Level: log.InfoLevel}),
	})
	require.NoError(t, err)

	// total == 0 is malformed; unknown origin reaches every session.
	r.Dispatch(obs.Message{Generation: obs.GenerationCurrent, Origin: obs.UnknownOrigin, Seq: 0x00})

	for _, s := range r.Sessions() {
		assert.Equal(t, uint64(1), s.Stats().MessagesMalformed, s.Name())
	}
	assert.Equal(t, uint64(1), r.Stats().Malformed)
	assert.Equal(t, 1, strings.Count(logs.String(), "malformed observation message"))
}

func TestRouter_MalformedFromForeignOriginIsSilent(t *testing.T) {
	var logs bytes.Buffer
	r, err := NewRouter(Config{
		Sessions: []SessionSpec{{Name: "Local", Mode: obs.ModeLocal}},
		Logger:   log.NewWithOptions(&logs, log.Options{Level: log.InfoLevel}),
	})
	require.NoError(t, err)

	// Sender 0 belongs to relay sessions only.
	r.Dispatch(obs.Message{Generation: obs.GenerationCurrent, Origin: obs.FromSender(0), Seq: 0x00})

	assert.Zero(t, r.Stats().Malformed)
	assert.Zero(t, r.Sessions()[0].Stats().MessagesMalformed)
	assert.Empty(t, logs.String())
}

func TestNewRouter_Validation(t *testing.T) {
	_, err := NewRouter(Config{})
	assert.Error(t, err)

	_, err = NewRouter(Config{Sessions: []SessionSpec{{Name: "a"}, {Name: "a", Mode: obs.ModeRelay}}})
	assert.EqualError(t, err, `duplicate session name "a"`)
}
