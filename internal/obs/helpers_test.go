package obs

import (
	"bytes"
	"math"

	"github.com/charmbracelet/log"
)

// carrier splits cp into the wire's integer and 8-bit fraction parts.
func carrier(cp float64) (int32, uint8) {
	i := math.Floor(cp)
	return int32(i), uint8(math.Round((cp - i) * 256))
}

func withCarrier(r RawRecord, cp float64) RawRecord {
	r.CarrierInt, r.CarrierFrac = carrier(cp)
	return r
}

func seqByte(total, index uint8) byte {
	return SequenceHeader{Total: total, Index: index}.Byte()
}

func message(gen Generation, total, index uint8, towMs uint32, week uint16, recs ...RawRecord) Message {
	return Message{
		Generation: gen,
		Origin:     UnknownOrigin,
		TOWms:      towMs,
		Week:       week,
		Seq:        seqByte(total, index),
		Records:    recs,
	}
}

// validPhase is a current-generation record with PR and CP valid.
func validPhase(sat uint16, code SignalCode, cp float64) RawRecord {
	return withCarrier(RawRecord{Sat: sat, Code: code, Flags: uint8(FlagPseudorangeValid | FlagCarrierValid)}, cp)
}

func newCapturingSession(mode Mode) (*Session, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	return NewSession(SessionConfig{Name: "test", Mode: mode, Logger: logger}), &buf
}
