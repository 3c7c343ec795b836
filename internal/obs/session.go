// Package obs reassembles fragmented GNSS observation messages into complete
// epochs.
//
// A Session owns all decode state for one stream slice: fragment sequencing,
// the epoch buffer and carrier-phase history. Each inbound Message is handled
// to completion under one lock; completed epochs are published with a single
// pointer swap, so readers see either the previous epoch or the new one and
// never a partial buffer.
package obs

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ErrMalformed marks a message that was dropped before touching any state.
var ErrMalformed = errors.New("malformed observation message")

// Outcome reports what Handle did with a message.
type Outcome uint8

const (
	// OutcomeRejected: the message belongs to another session.
	OutcomeRejected Outcome = iota
	// OutcomeMalformed: the message failed validation and was dropped.
	OutcomeMalformed
	// OutcomeDropped: the fragment broke the sequence; the epoch in
	// progress, if any, was discarded.
	OutcomeDropped
	// OutcomeMerged: records merged, epoch still in progress.
	OutcomeMerged
	// OutcomePublished: records merged and the epoch published.
	OutcomePublished
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeDropped:
		return "dropped"
	case OutcomeMerged:
		return "merged"
	case OutcomePublished:
		return "published"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

type SessionConfig struct {
	Name string
	Mode Mode

	// Logger receives sequence-break, degenerate-time and malformed-message
	// warnings. Nil discards them.
	Logger *log.Logger

	// QuietMalformed logs malformed messages at debug level. Set it when the
	// caller validates with Validate and reports them itself.
	QuietMalformed bool

	// OnPublish, when set, is called after each publish, outside the
	// session lock.
	OnPublish func(ep *Epoch)
}

// Stats is a point-in-time view of a session's counters.
type Stats struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Mode                 string `json:"mode"`
	EpochsAccepted       uint64 `json:"epochs_accepted"`
	EpochsDropped        uint64 `json:"epochs_dropped"`
	EpochsAbandoned      uint64 `json:"epochs_abandoned"`
	MessagesMalformed    uint64 `json:"messages_malformed"`
	DegenerateTimeDeltas uint64 `json:"degenerate_time_deltas"`
}

// Session is one decoding session. It is safe for concurrent use; Handle
// calls are serialized.
type Session struct {
	id        string
	name      string
	filter    OriginFilter
	logger    *log.Logger
	quietBad  bool
	onPublish func(ep *Epoch)

	mu    sync.Mutex
	seq   sequencer
	phase *phaseTracker
	asm   *assembler

	accepted   atomic.Uint64
	dropped    atomic.Uint64
	abandoned  atomic.Uint64
	malformed  atomic.Uint64
	degenerate atomic.Uint64
}

func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Mode.String()
	}
	return &Session{
		id:        uuid.NewString(),
		name:      name,
		filter:    OriginFilter{Mode: cfg.Mode},
		logger:    logger.With("session", name),
		quietBad:  cfg.QuietMalformed,
		onPublish: cfg.OnPublish,
		phase:     newPhaseTracker(),
		asm:       newAssembler(),
	}
}

func (s *Session) ID() string { return s.id }
func (s *Session) Name() string { return s.name }
func (s *Session) Mode() Mode { return s.filter.Mode }

// Handle decodes one inbound message.
//
// Origin rejections and sequence breaks are reported through the Outcome
// with a nil error. A non-nil error always wraps ErrMalformed and means the
// message changed nothing.
func (s *Session) Handle(msg Message) (Outcome, error) {
	if !s.filter.Accept(msg.Origin) {
		return OutcomeRejected, nil
	}
	if err := Validate(msg); err != nil {
		s.malformed.Add(1)
		if s.quietBad {
			s.logger.Debug("dropping malformed observation message", "err", err)
		} else {
			s.logger.Warn("dropping malformed observation message", "err", err)
		}
		return OutcomeMalformed, err
	}
	h := ParseSequence(msg.Seq)

	outcome, ep := s.apply(msg, h)
	if ep != nil && s.onPublish != nil {
		s.onPublish(ep)
	}
	return outcome, nil
}

// Validate checks the generation and the sequence header of msg. Errors
// wrap ErrMalformed.
func Validate(msg Message) error {
	if !msg.Generation.valid() {
		return fmt.Errorf("%w: unexpected generation %s", ErrMalformed, msg.Generation)
	}
	return ParseSequence(msg.Seq).validate()
}

func (s *Session) apply(msg Message, h SequenceHeader) (Outcome, *Epoch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasActive := s.seq.inProgress()
	class, discarded := s.seq.classify(h, msg.TOWms, msg.Week)
	switch class {
	case StartOfEpoch:
		if wasActive {
			s.abandoned.Add(1)
			s.logger.Debug("epoch abandoned by new start", "week", msg.Week, "tow_ms", msg.TOWms)
		}
		s.asm.reset(float64(msg.TOWms)/1000, msg.Week)
		s.phase.rotate()
	case SequenceBreak:
		switch {
		case discarded:
			s.asm.discard()
			s.phase.discard()
			s.dropped.Add(1)
			s.logger.Warn("dropped an observation fragment, skipping this epoch",
				"week", msg.Week, "tow_ms", msg.TOWms, "index", h.Index, "total", h.Total)
		case s.seq.remnant(msg.TOWms, msg.Week):
			s.logger.Debug("skipping fragment of a dropped epoch",
				"week", msg.Week, "tow_ms", msg.TOWms, "index", h.Index, "total", h.Total)
		default:
			s.logger.Warn("observation fragment with no epoch in progress, skipping",
				"week", msg.Week, "tow_ms", msg.TOWms, "index", h.Index, "total", h.Total)
		}
		return OutcomeDropped, nil
	}

	gen := msg.Generation
	for _, raw := range msg.Records {
		tow := s.asm.refine(towResidual(gen, raw))
		n := normalize(gen, raw)
		if n.phaseValid {
			hz, degenerate := s.phase.doppler(gen, n.id, n.rec.CarrierPhase, tow)
			if degenerate {
				s.degenerate.Add(1)
				s.logger.Warn("received two complete observation sets with identical TOW",
					"signal", n.id.String(), "tow", tow)
			}
			n.rec.DerivedDoppler = hz
			s.phase.store(n.id, n.rec.CarrierPhase)
		}
		s.asm.merge(n.id, n.rec)
	}

	if !h.Last() {
		return OutcomeMerged, nil
	}
	ep := s.asm.publish()
	s.phase.promote(ep.TOW)
	s.seq.complete()
	s.accepted.Add(1)
	return OutcomePublished, ep
}

// Latest returns the last published epoch, or false before the first one.
// The returned epoch must not be modified.
func (s *Session) Latest() (*Epoch, bool) {
	ep := s.asm.latest()
	return ep, ep != nil
}

// CodeCounts counts the last published epoch's observations per code.
func (s *Session) CodeCounts() CodeCounts {
	ep, _ := s.Latest()
	return ep.CodeCounts()
}

func (s *Session) Stats() Stats {
	return Stats{
		ID:                   s.id,
		Name:                 s.name,
		Mode:                 s.filter.Mode.String(),
		EpochsAccepted:       s.accepted.Load(),
		EpochsDropped:        s.dropped.Load(),
		EpochsAbandoned:      s.abandoned.Load(),
		MessagesMalformed:    s.malformed.Load(),
		DegenerateTimeDeltas: s.degenerate.Load(),
	}
}
