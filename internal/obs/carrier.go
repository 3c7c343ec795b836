package obs

// phaseTracker keeps carrier-phase history across epochs.
//
// accumulating collects the epoch in progress. It is promoted to completed
// when that epoch publishes, and completed becomes previous at the next
// start of epoch. An epoch that never publishes therefore never feeds the
// Doppler of a later one.
type phaseTracker struct {
	previous     map[SignalID]float64
	previousTOW  float64
	completed    map[SignalID]float64
	completedTOW float64
	accumulating map[SignalID]float64
}

func newPhaseTracker() *phaseTracker {
	return &phaseTracker{
		previous:     map[SignalID]float64{},
		completed:    map[SignalID]float64{},
		accumulating: map[SignalID]float64{},
	}
}

// rotate runs once per epoch, at its first fragment.
func (t *phaseTracker) rotate() {
	t.previous = t.completed
	t.previousTOW = t.completedTOW
	t.accumulating = map[SignalID]float64{}
}

// promote records the accumulating generation as completed by an epoch
// published at tow.
func (t *phaseTracker) promote(tow float64) {
	t.completed = t.accumulating
	t.completedTOW = tow
	t.accumulating = map[SignalID]float64{}
}

// discard drops the accumulating generation of a broken epoch.
func (t *phaseTracker) discard() {
	t.accumulating = map[SignalID]float64{}
}

// lookup returns the previous epoch's carrier phase for id.
func (t *phaseTracker) lookup(id SignalID) (float64, bool) {
	v, ok := t.previous[id]
	return v, ok
}

func (t *phaseTracker) store(id SignalID, cp float64) {
	t.accumulating[id] = cp
}

// doppler derives a Doppler estimate for id from its carrier phase cp at the
// running time of week tow. degenerate reports a usable prior value at an
// identical tow, in which case the estimate is 0.
func (t *phaseTracker) doppler(gen Generation, id SignalID, cp float64, tow float64) (hz float64, degenerate bool) {
	prev, ok := t.lookup(id)
	// Zero marks "no valid prior value".
	if !ok || prev == 0 {
		return 0, false
	}
	if tow == t.previousTOW {
		return 0, true
	}
	// Doppler has the opposite sign to the carrier phase rate.
	hz = (prev - cp) / (tow - t.previousTOW)
	if gen == GenerationLegacyA || gen == GenerationLegacyB {
		// These generations reported carrier phase with the sign flipped.
		hz = -hz
	}
	return hz, false
}
