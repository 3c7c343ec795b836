package obs

import "fmt"

// SignalCode identifies one broadcast signal of one constellation, using the
// numbering carried on the wire.
type SignalCode uint8

const (
	CodeGPSL1CA  SignalCode = 0
	CodeGPSL2CM  SignalCode = 1
	CodeSBASL1CA SignalCode = 2
	CodeGLOL1OF  SignalCode = 3
	CodeGLOL2OF  SignalCode = 4
	CodeGPSL1P   SignalCode = 5
	CodeGPSL2P   SignalCode = 6
	CodeGPSL2CL  SignalCode = 7
	CodeGPSL2CX  SignalCode = 8
	CodeGPSL5I   SignalCode = 9
	CodeGPSL5Q   SignalCode = 10
	CodeGPSL5X   SignalCode = 11
	CodeBDS2B1   SignalCode = 12
	CodeBDS2B2   SignalCode = 13
	CodeGALE1B   SignalCode = 14
	CodeGALE1C   SignalCode = 15
	CodeGALE1X   SignalCode = 16
	CodeGALE7I   SignalCode = 20
	CodeGALE7Q   SignalCode = 21
	CodeGALE7X   SignalCode = 22
	CodeQZSSL1CA SignalCode = 31
	CodeQZSSL2CM SignalCode = 32
	CodeQZSSL2CL SignalCode = 33
	CodeQZSSL2CX SignalCode = 34
)

// SupportedCodes is the closed set of codes reported by CodeCounts, in
// display order.
var SupportedCodes = []SignalCode{
	CodeGPSL1CA, CodeGPSL2CM, CodeGPSL1P, CodeGPSL2P,
	CodeGPSL2CL, CodeGPSL2CX, CodeGPSL5I, CodeGPSL5Q, CodeGPSL5X,
	CodeSBASL1CA,
	CodeGLOL1OF, CodeGLOL2OF,
	CodeBDS2B1, CodeBDS2B2,
	CodeGALE1B, CodeGALE1C, CodeGALE1X, CodeGALE7I, CodeGALE7Q, CodeGALE7X,
	CodeQZSSL1CA, CodeQZSSL2CM, CodeQZSSL2CL, CodeQZSSL2CX,
}

var codeNames = map[SignalCode]string{
	CodeGPSL1CA:  "GPS L1CA",
	CodeGPSL2CM:  "GPS L2CM",
	CodeSBASL1CA: "SBAS L1",
	CodeGLOL1OF:  "GLO L1OF",
	CodeGLOL2OF:  "GLO L2OF",
	CodeGPSL1P:   "GPS L1P",
	CodeGPSL2P:   "GPS L2P",
	CodeGPSL2CL:  "GPS L2CL",
	CodeGPSL2CX:  "GPS L2C",
	CodeGPSL5I:   "GPS L5I",
	CodeGPSL5Q:   "GPS L5Q",
	CodeGPSL5X:   "GPS L5",
	CodeBDS2B1:   "BDS2 B1",
	CodeBDS2B2:   "BDS2 B2",
	CodeGALE1B:   "GAL E1B",
	CodeGALE1C:   "GAL E1C",
	CodeGALE1X:   "GAL E1",
	CodeGALE7I:   "GAL E7I",
	CodeGALE7Q:   "GAL E7Q",
	CodeGALE7X:   "GAL E7",
	CodeQZSSL1CA: "QZS L1CA",
	CodeQZSSL2CM: "QZS L2CM",
	CodeQZSSL2CL: "QZS L2CL",
	CodeQZSSL2CX: "QZS L2C",
}

func (c SignalCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code %d", uint8(c))
}

// Known reports whether c belongs to SupportedCodes.
func (c SignalCode) Known() bool {
	_, ok := codeNames[c]
	return ok
}

// IsGPS reports whether c is a GPS-constellation signal.
func (c SignalCode) IsGPS() bool {
	switch c {
	case CodeGPSL1CA, CodeGPSL2CM, CodeGPSL1P, CodeGPSL2P,
		CodeGPSL2CL, CodeGPSL2CX, CodeGPSL5I, CodeGPSL5Q, CodeGPSL5X:
		return true
	default:
		return false
	}
}

// CodeCounts holds one observation count per supported code.
type CodeCounts map[SignalCode]int

func newCodeCounts() CodeCounts {
	out := make(CodeCounts, len(SupportedCodes))
	for _, c := range SupportedCodes {
		out[c] = 0
	}
	return out
}
