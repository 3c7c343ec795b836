package obs

import "sync/atomic"

// assembler accumulates one epoch and publishes it in a single swap.
type assembler struct {
	buffer map[SignalID]Record
	tow    float64
	week   uint16

	published atomic.Pointer[Epoch]
}

func newAssembler() *assembler {
	return &assembler{buffer: map[SignalID]Record{}}
}

// reset starts a new epoch buffer.
func (a *assembler) reset(tow float64, week uint16) {
	a.buffer = map[SignalID]Record{}
	a.tow = tow
	a.week = week
}

// refine adds a residual to the epoch's running time of week and returns
// the refined value.
func (a *assembler) refine(delta float64) float64 {
	a.tow += delta
	return a.tow
}

// merge inserts or overwrites one record.
func (a *assembler) merge(id SignalID, rec Record) {
	a.buffer[id] = rec
}

// discard throws away the epoch in progress.
func (a *assembler) discard() {
	a.buffer = map[SignalID]Record{}
}

// publish hands the buffer over as the new stable epoch. The buffer is not
// touched again after the swap, so readers of the returned epoch need no
// lock.
func (a *assembler) publish() *Epoch {
	ep := &Epoch{
		TOW:          a.tow,
		Week:         a.week,
		Time:         GPSTime(a.week, a.tow),
		Observations: a.buffer,
	}
	a.published.Store(ep)
	a.buffer = map[SignalID]Record{}
	return ep
}

func (a *assembler) latest() *Epoch {
	return a.published.Load()
}
