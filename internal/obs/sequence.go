package obs

// Class is the sequencer's verdict on one fragment.
type Class uint8

const (
	StartOfEpoch Class = iota
	Continuation
	SequenceBreak
)

func (c Class) String() string {
	switch c {
	case StartOfEpoch:
		return "start"
	case Continuation:
		return "continuation"
	default:
		return "break"
	}
}

// sequencer tracks fragment framing for the epoch in progress.
type sequencer struct {
	// active is false before the first start, after a publish and after a
	// break. No continuation is expected while it is false.
	active bool
	// broken is set when a break discarded the epoch at towMs/week and
	// cleared by the next start or publish.
	broken bool

	count uint8 // index of the last accepted fragment
	total uint8
	towMs uint32
	week  uint16
}

// classify validates h against the epoch in progress and updates the
// expected counters. discarded reports whether an in-progress epoch was
// thrown away by a break.
func (s *sequencer) classify(h SequenceHeader, towMs uint32, week uint16) (c Class, discarded bool) {
	if h.Index == 0 {
		s.active = true
		s.broken = false
		s.count = 0
		s.total = h.Total
		s.towMs = towMs
		s.week = week
		return StartOfEpoch, false
	}
	if s.active &&
		towMs == s.towMs &&
		week == s.week &&
		h.Total == s.total &&
		h.Index == s.count+1 {
		s.count = h.Index
		return Continuation, false
	}
	discarded = s.active
	if discarded {
		s.broken = true
	}
	s.active = false
	return SequenceBreak, discarded
}

// remnant reports whether a fragment stamped towMs/week belongs to the
// epoch the last break discarded.
func (s *sequencer) remnant(towMs uint32, week uint16) bool {
	return s.broken && towMs == s.towMs && week == s.week
}

// complete marks the epoch in progress as published.
func (s *sequencer) complete() {
	s.active = false
	s.broken = false
}

// inProgress reports whether an epoch has started and not yet completed.
func (s *sequencer) inProgress() bool {
	return s.active
}
