package sbp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"gnss-obs/internal/obs"
)

// Observation message types, one per wire generation.
const (
	MsgObsDepA uint16 = 0x0045
	MsgObsDepB uint16 = 0x0043
	MsgObsDepC uint16 = 0x0049
	MsgObs     uint16 = 0x004A
)

var (
	ErrTruncated       = errors.New("sbp: observation payload truncated")
	ErrUnsupportedType = errors.New("sbp: unsupported message type")
)

type layout struct {
	header int
	record int
}

var layouts = map[obs.Generation]layout{
	obs.GenerationLegacyA: {header: 7, record: 13},
	obs.GenerationLegacyB: {header: 7, record: 16},
	obs.GenerationLegacyC: {header: 7, record: 16},
	obs.GenerationCurrent: {header: 11, record: 17},
}

// GenerationOf maps an observation message type to its wire generation.
func GenerationOf(msgType uint16) (obs.Generation, bool) {
	switch msgType {
	case MsgObsDepA:
		return obs.GenerationLegacyA, true
	case MsgObsDepB:
		return obs.GenerationLegacyB, true
	case MsgObsDepC:
		return obs.GenerationLegacyC, true
	case MsgObs:
		return obs.GenerationCurrent, true
	default:
		return obs.GenerationUnknown, false
	}
}

// MessageType is the inverse of GenerationOf.
func MessageType(gen obs.Generation) (uint16, bool) {
	switch gen {
	case obs.GenerationLegacyA:
		return MsgObsDepA, true
	case obs.GenerationLegacyB:
		return MsgObsDepB, true
	case obs.GenerationLegacyC:
		return MsgObsDepC, true
	case obs.GenerationCurrent:
		return MsgObs, true
	default:
		return 0, false
	}
}

// IsObservation reports whether msgType belongs to the observation family.
func IsObservation(msgType uint16) bool {
	_, ok := GenerationOf(msgType)
	return ok
}

// MaxRecords is how many records of gen fit in one frame.
func MaxRecords(gen obs.Generation) int {
	l, ok := layouts[gen]
	if !ok {
		return 0
	}
	return (MaxPayload - l.header) / l.record
}

// DecodeObservation turns an observation frame into an obs.Message. The
// frame's sender becomes the message origin.
func DecodeObservation(f Frame) (obs.Message, error) {
	gen, ok := GenerationOf(f.Type)
	if !ok {
		return obs.Message{}, fmt.Errorf("%w: 0x%04x", ErrUnsupportedType, f.Type)
	}
	l := layouts[gen]
	p := f.Payload
	if len(p) < l.header || (len(p)-l.header)%l.record != 0 {
		return obs.Message{}, fmt.Errorf("%w: %s payload of %d bytes", ErrTruncated, gen, len(p))
	}

	msg := obs.Message{
		Generation: gen,
		Origin:     obs.FromSender(f.Sender),
		TOWms:      binary.LittleEndian.Uint32(p[0:4]),
	}
	var nsResidual int32
	if gen == obs.GenerationCurrent {
		nsResidual = int32(binary.LittleEndian.Uint32(p[4:8]))
		msg.Week = binary.LittleEndian.Uint16(p[8:10])
		msg.Seq = p[10]
	} else {
		msg.Week = binary.LittleEndian.Uint16(p[4:6])
		msg.Seq = p[6]
	}

	n := (len(p) - l.header) / l.record
	msg.Records = make([]obs.RawRecord, 0, n)
	for off := l.header; off < len(p); off += l.record {
		msg.Records = append(msg.Records, decodeRecord(gen, p[off:off+l.record], nsResidual))
	}
	return msg, nil
}

func decodeRecord(gen obs.Generation, b []byte, nsResidual int32) obs.RawRecord {
	r := obs.RawRecord{
		PseudorangeRaw: binary.LittleEndian.Uint32(b[0:4]),
		CarrierInt:     int32(binary.LittleEndian.Uint32(b[4:8])),
		CarrierFrac:    b[8],
	}
	switch gen {
	case obs.GenerationLegacyA:
		r.CN0 = b[9]
		r.Lock = binary.LittleEndian.Uint16(b[10:12])
		r.Sat = uint16(b[12])
		r.Code = obs.CodeGPSL1CA
	case obs.GenerationLegacyB, obs.GenerationLegacyC:
		r.CN0 = b[9]
		r.Lock = binary.LittleEndian.Uint16(b[10:12])
		r.Sat = binary.LittleEndian.Uint16(b[12:14])
		r.Code = obs.SignalCode(b[14])
	case obs.GenerationCurrent:
		r.DopplerInt = int16(binary.LittleEndian.Uint16(b[9:11]))
		r.DopplerFrac = b[11]
		r.CN0 = b[12]
		r.Lock = uint16(b[13])
		r.Flags = b[14]
		r.Sat = uint16(b[15])
		r.Code = obs.SignalCode(b[16])
		r.NsResidual = nsResidual
	}
	return r
}

// EncodeObservation is the inverse of DecodeObservation. Fields the target
// generation cannot carry are dropped; for Current the first record's
// NsResidual becomes the header residual.
func EncodeObservation(msg obs.Message, sender uint16) (Frame, error) {
	msgType, ok := MessageType(msg.Generation)
	if !ok {
		return Frame{}, fmt.Errorf("%w: generation %s", ErrUnsupportedType, msg.Generation)
	}
	if len(msg.Records) > MaxRecords(msg.Generation) {
		return Frame{}, fmt.Errorf("%w: %d %s records", ErrPayloadTooLong, len(msg.Records), msg.Generation)
	}
	l := layouts[msg.Generation]

	p := make([]byte, 0, l.header+len(msg.Records)*l.record)
	p = binary.LittleEndian.AppendUint32(p, msg.TOWms)
	if msg.Generation == obs.GenerationCurrent {
		var ns int32
		if len(msg.Records) > 0 {
			ns = msg.Records[0].NsResidual
		}
		p = binary.LittleEndian.AppendUint32(p, uint32(ns))
	}
	p = binary.LittleEndian.AppendUint16(p, msg.Week)
	p = append(p, msg.Seq)

	for _, r := range msg.Records {
		p = binary.LittleEndian.AppendUint32(p, r.PseudorangeRaw)
		p = binary.LittleEndian.AppendUint32(p, uint32(r.CarrierInt))
		p = append(p, r.CarrierFrac)
		switch msg.Generation {
		case obs.GenerationLegacyA:
			p = append(p, r.CN0)
			p = binary.LittleEndian.AppendUint16(p, r.Lock)
			p = append(p, byte(r.Sat))
		case obs.GenerationLegacyB, obs.GenerationLegacyC:
			p = append(p, r.CN0)
			p = binary.LittleEndian.AppendUint16(p, r.Lock)
			p = binary.LittleEndian.AppendUint16(p, r.Sat)
			p = append(p, byte(r.Code), 0)
		case obs.GenerationCurrent:
			p = binary.LittleEndian.AppendUint16(p, uint16(r.DopplerInt))
			p = append(p, r.DopplerFrac, r.CN0, byte(r.Lock), r.Flags, byte(r.Sat), byte(r.Code))
		}
	}
	return Frame{Type: msgType, Sender: sender, Payload: p}, nil
}
