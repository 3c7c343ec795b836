package obs

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Generation is the wire-format generation of an observation message.
type Generation uint8

const (
	GenerationUnknown Generation = iota
	GenerationLegacyA
	GenerationLegacyB
	GenerationLegacyC
	GenerationCurrent
)

func (g Generation) String() string {
	switch g {
	case GenerationLegacyA:
		return "legacy-a"
	case GenerationLegacyB:
		return "legacy-b"
	case GenerationLegacyC:
		return "legacy-c"
	case GenerationCurrent:
		return "current"
	default:
		return fmt.Sprintf("generation(%d)", uint8(g))
	}
}

// Legacy reports whether g is one of the deprecated generations.
func (g Generation) Legacy() bool {
	return g == GenerationLegacyA || g == GenerationLegacyB || g == GenerationLegacyC
}

func (g Generation) valid() bool {
	return g.Legacy() || g == GenerationCurrent
}

// SignalID keys one tracked measurement channel.
type SignalID struct {
	Sat  uint16
	Code SignalCode
}

func (id SignalID) String() string {
	return fmt.Sprintf("%d (%s)", id.Sat, id.Code)
}

// Flags is the per-record validity bitset.
type Flags uint8

const (
	FlagPseudorangeValid Flags = 1 << 0
	FlagCarrierValid     Flags = 1 << 1
	FlagHalfCycle        Flags = 1 << 2
	FlagDopplerValid     Flags = 1 << 3
)

// String renders the flags the way the receiver console shows them, for
// example "0x000B = PR CP MD".
func (f Flags) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "0x%04X =", uint8(f))
	if f&FlagPseudorangeValid != 0 {
		b.WriteString(" PR")
	}
	if f&FlagCarrierValid != 0 {
		b.WriteString(" CP")
	}
	if f&FlagHalfCycle != 0 {
		b.WriteString(" 1/2C")
	}
	if f&FlagDopplerValid != 0 {
		b.WriteString(" MD")
	}
	return b.String()
}

// Record is one normalized observation of one signal.
type Record struct {
	Pseudorange      float64 // meters
	PseudorangeValid bool
	CarrierPhase     float64 // cycles
	CarrierValid     bool
	CN0              float64 // dB-Hz
	MeasuredDoppler  float64 // Hz
	DopplerValid     bool
	DerivedDoppler   float64 // Hz, 0 when unavailable
	Lock             uint16
	Flags            Flags
}

// MaxFragments is the largest number of fragments one epoch can span. The
// fragment count and index are 4-bit fields on the wire.
const MaxFragments = 16

// SequenceHeader locates one fragment inside its epoch.
type SequenceHeader struct {
	Total uint8
	Index uint8
}

// ParseSequence unpacks a sequence byte: high nibble total, low nibble index.
func ParseSequence(b byte) SequenceHeader {
	return SequenceHeader{Total: b >> 4, Index: b & 0x0f}
}

// Byte packs h back into its wire form.
func (h SequenceHeader) Byte() byte {
	return (h.Total&0x0f)<<4 | h.Index&0x0f
}

// Last reports whether h is the final fragment of its epoch.
func (h SequenceHeader) Last() bool {
	return h.Index+1 == h.Total
}

func (h SequenceHeader) validate() error {
	if h.Total == 0 {
		return fmt.Errorf("%w: fragment total is zero", ErrMalformed)
	}
	if h.Index >= h.Total {
		return fmt.Errorf("%w: fragment index %d out of range for total %d", ErrMalformed, h.Index, h.Total)
	}
	return nil
}

// Origin identifies who sent a message. The zero value is an unknown origin.
type Origin struct {
	Known  bool
	Sender uint16
}

// UnknownOrigin is used when the transport does not carry a sender id.
var UnknownOrigin = Origin{}

// FromSender returns a known origin. Sender 0 is the local device.
func FromSender(id uint16) Origin {
	return Origin{Known: true, Sender: id}
}

// Local reports whether o is known and is the local device.
func (o Origin) Local() bool {
	return o.Known && o.Sender == 0
}

// RawRecord is one per-satellite entry as carried on the wire, before any
// scaling.
type RawRecord struct {
	Sat            uint16
	Code           SignalCode
	PseudorangeRaw uint32
	CarrierInt     int32
	CarrierFrac    uint8
	CN0            uint8
	Lock           uint16

	// Current generation only.
	Flags       uint8
	DopplerInt  int16
	DopplerFrac uint8
	NsResidual  int32
}

// Message is one inbound observation fragment.
type Message struct {
	Generation Generation
	Origin     Origin
	TOWms      uint32
	Week       uint16
	Seq        byte
	Records    []RawRecord
}

// gpsEpoch is the start of GPS week zero.
var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// GPSTime converts a week number and time of week to a calendar time on the
// GPS time scale (no leap second correction).
func GPSTime(week uint16, tow float64) time.Time {
	return gpsEpoch.
		AddDate(0, 0, 7*int(week)).
		Add(time.Duration(tow * float64(time.Second)))
}

// Epoch is one fully assembled set of observations. A published Epoch is
// never modified.
type Epoch struct {
	TOW          float64 // seconds into the week
	Week         uint16
	Time         time.Time
	Observations map[SignalID]Record
}

// Len returns the number of observations.
func (e *Epoch) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Observations)
}

// CodeCounts counts the epoch's observations per supported signal code.
func (e *Epoch) CodeCounts() CodeCounts {
	out := newCodeCounts()
	if e == nil {
		return out
	}
	for id := range e.Observations {
		if _, ok := out[id.Code]; ok {
			out[id.Code]++
		}
	}
	return out
}

// Row is one observation paired with its key.
type Row struct {
	ID     SignalID
	Record Record
}

// Rows returns the observations sorted by satellite then code. When codes is
// non-empty only those codes are included.
func (e *Epoch) Rows(codes ...SignalCode) []Row {
	if e == nil {
		return nil
	}
	var keep map[SignalCode]bool
	if len(codes) > 0 {
		keep = make(map[SignalCode]bool, len(codes))
		for _, c := range codes {
			keep[c] = true
		}
	}
	rows := make([]Row, 0, len(e.Observations))
	for id, rec := range e.Observations {
		if keep != nil && !keep[id.Code] {
			continue
		}
		rows = append(rows, Row{ID: id, Record: rec})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ID.Sat == rows[j].ID.Sat {
			return rows[i].ID.Code < rows[j].ID.Code
		}
		return rows[i].ID.Sat < rows[j].ID.Sat
	})
	return rows
}
