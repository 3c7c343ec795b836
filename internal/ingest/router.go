// Package ingest decodes SBP frames once and fans each observation message
// out to every decoding session sharing the stream.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"gnss-obs/internal/obs"
	"gnss-obs/internal/sbp"
)

type SessionSpec struct {
	Name string
	Mode obs.Mode
}

type Config struct {
	Sessions []SessionSpec
	Logger   *log.Logger

	// OnPublish is called after any session publishes an epoch.
	OnPublish func(s *obs.Session, ep *obs.Epoch)
}

type Router struct {
	sessions []*obs.Session
	byName   map[string]*obs.Session
	logger   *log.Logger

	frames       atomic.Uint64
	observations atomic.Uint64
	other        atomic.Uint64
	decodeErrors atomic.Uint64
	malformed    atomic.Uint64
}

type Stats struct {
	Frames       uint64      `json:"frames"`
	Observations uint64      `json:"observations"`
	Other        uint64      `json:"other"`
	DecodeErrors uint64      `json:"decode_errors"`
	Malformed    uint64      `json:"malformed"`
	Sessions     []obs.Stats `json:"sessions"`
}

func NewRouter(cfg Config) (*Router, error) {
	if len(cfg.Sessions) == 0 {
		return nil, fmt.Errorf("at least one session is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	r := &Router{
		byName: make(map[string]*obs.Session, len(cfg.Sessions)),
		logger: logger,
	}
	for _, spec := range cfg.Sessions {
		var s *obs.Session
		sc := obs.SessionConfig{Name: spec.Name, Mode: spec.Mode, Logger: logger, QuietMalformed: true}
		if cfg.OnPublish != nil {
			onPublish := cfg.OnPublish
			sc.OnPublish = func(ep *obs.Epoch) { onPublish(s, ep) }
		}
		s = obs.NewSession(sc)
		if _, dup := r.byName[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate session name %q", s.Name())
		}
		r.byName[s.Name()] = s
		r.sessions = append(r.sessions, s)
	}
	return r, nil
}

// HandleFrame routes one frame. Frames outside the observation family are
// counted and ignored. Decode failures are logged and counted; they never
// reach a session.
func (r *Router) HandleFrame(f sbp.Frame) error {
	r.frames.Add(1)
	if !sbp.IsObservation(f.Type) {
		r.other.Add(1)
		return nil
	}

	msg, err := sbp.DecodeObservation(f)
	if err != nil {
		r.decodeErrors.Add(1)
		r.logger.Warn("undecodable observation frame", "type", fmt.Sprintf("0x%04X", f.Type), "sender", f.Sender, "err", err)
		return nil
	}
	r.observations.Add(1)
	r.Dispatch(msg)
	return nil
}

// Dispatch hands an already decoded message to every session. Each session
// applies its own origin filter. A malformed message is warned about once
// here and still counted by each session that accepts its origin.
func (r *Router) Dispatch(msg obs.Message) {
	if err := obs.Validate(msg); err != nil && r.accepted(msg.Origin) {
		r.malformed.Add(1)
		r.logger.Warn("dropping malformed observation message", "err", err)
	}
	for _, s := range r.sessions {
		if _, err := s.Handle(msg); err != nil && !errors.Is(err, obs.ErrMalformed) {
			r.logger.Error("session handle", "session", s.Name(), "err", err)
		}
	}
}

// accepted reports whether any session takes messages from o.
func (r *Router) accepted(o obs.Origin) bool {
	for _, s := range r.sessions {
		if (obs.OriginFilter{Mode: s.Mode()}).Accept(o) {
			return true
		}
	}
	return false
}

func (r *Router) Sessions() []*obs.Session {
	out := make([]*obs.Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

func (r *Router) Session(name string) (*obs.Session, bool) {
	s, ok := r.byName[name]
	return s, ok
}

func (r *Router) Stats() Stats {
	st := Stats{
		Frames:       r.frames.Load(),
		Observations: r.observations.Load(),
		Other:        r.other.Load(),
		DecodeErrors: r.decodeErrors.Load(),
		Malformed:    r.malformed.Load(),
		Sessions:     make([]obs.Stats, 0, len(r.sessions)),
	}
	for _, s := range r.sessions {
		st.Sessions = append(st.Sessions, s.Stats())
	}
	return st
}
