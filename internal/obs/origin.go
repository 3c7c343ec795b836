package obs

import (
	"fmt"
	"strings"
)

// Mode binds a session to locally originated or relayed traffic.
type Mode uint8

const (
	ModeLocal Mode = iota
	ModeRelay
)

func (m Mode) String() string {
	if m == ModeRelay {
		return "relay"
	}
	return "local"
}

// ParseMode accepts "local" or "relay" (case-insensitive). Empty means local.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return ModeLocal, nil
	case "relay":
		return ModeRelay, nil
	default:
		return ModeLocal, fmt.Errorf("unknown session mode %q", s)
	}
}

// OriginFilter decides whether a message belongs to a session.
//
// Messages without a sender id are always accepted. Otherwise a message is
// accepted when (mode is relay) equals (sender is the local device). Several
// sessions can therefore share one stream, each taking its own slice of it.
type OriginFilter struct {
	Mode Mode
}

// Accept reports whether o passes the filter. Rejection is not an error.
func (f OriginFilter) Accept(o Origin) bool {
	if !o.Known {
		return true
	}
	return (f.Mode == ModeRelay) == (o.Sender == 0)
}
