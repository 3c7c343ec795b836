package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"gnss-obs/internal/obs"
)

type ObservationJSON struct {
	Sat             uint16  `json:"sat"`
	Code            uint8   `json:"code"`
	Signal          string  `json:"signal"`
	Pseudorange     float64 `json:"pseudorange_m"`
	PseudorangeOK   bool    `json:"pseudorange_valid"`
	CarrierPhase    float64 `json:"carrier_phase_cycles"`
	CarrierOK       bool    `json:"carrier_phase_valid"`
	CN0             float64 `json:"cn0_dbhz"`
	MeasuredDoppler float64 `json:"measured_doppler_hz"`
	DopplerOK       bool    `json:"measured_doppler_valid"`
	DerivedDoppler  float64 `json:"derived_doppler_hz"`
	Lock            uint16  `json:"lock"`
	Flags           string  `json:"flags"`
}

type EpochResponse struct {
	Session      string            `json:"session"`
	Available    bool              `json:"available"`
	Week         uint16            `json:"week,omitempty"`
	TOW          float64           `json:"tow,omitempty"`
	TimeUTC      string            `json:"time_utc,omitempty"`
	Total        int               `json:"total"`
	Counts       map[string]int    `json:"counts"`
	Observations []ObservationJSON `json:"observations"`
}

// BuildEpochResponse renders ep (possibly nil) for the API. When codes is
// non-empty only those codes are listed; counts always cover every code.
func BuildEpochResponse(session string, ep *obs.Epoch, codes ...obs.SignalCode) EpochResponse {
	resp := EpochResponse{
		Session:      session,
		Counts:       make(map[string]int, len(obs.SupportedCodes)),
		Observations: []ObservationJSON{},
	}
	for code, n := range ep.CodeCounts() {
		resp.Counts[code.String()] = n
	}
	if ep == nil {
		return resp
	}

	resp.Available = true
	resp.Week = ep.Week
	resp.TOW = ep.TOW
	resp.TimeUTC = ep.Time.UTC().Format(time.RFC3339Nano)
	resp.Total = ep.Len()
	for _, row := range ep.Rows(codes...) {
		rec := row.Record
		resp.Observations = append(resp.Observations, ObservationJSON{
			Sat:             row.ID.Sat,
			Code:            uint8(row.ID.Code),
			Signal:          row.ID.Code.String(),
			Pseudorange:     rec.Pseudorange,
			PseudorangeOK:   rec.PseudorangeValid,
			CarrierPhase:    rec.CarrierPhase,
			CarrierOK:       rec.CarrierValid,
			CN0:             rec.CN0,
			MeasuredDoppler: rec.MeasuredDoppler,
			DopplerOK:       rec.DopplerValid,
			DerivedDoppler:  rec.DerivedDoppler,
			Lock:            rec.Lock,
			Flags:           rec.Flags.String(),
		})
	}
	return resp
}

// SessionLookup finds decoding sessions by name.
type SessionLookup interface {
	Sessions() []*obs.Session
	Session(name string) (*obs.Session, bool)
}

func epochHandler(sessions SessionLookup) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if sessions == nil {
			http.Error(w, "no sessions", http.StatusNotFound)
			return
		}

		q := r.URL.Query()
		var s *obs.Session
		if name := strings.TrimSpace(q.Get("session")); name != "" {
			found, ok := sessions.Session(name)
			if !ok {
				http.Error(w, "unknown session", http.StatusNotFound)
				return
			}
			s = found
		} else {
			all := sessions.Sessions()
			if len(all) != 1 {
				http.Error(w, "session is required when more than one is configured", http.StatusBadRequest)
				return
			}
			s = all[0]
		}

		var codes []obs.SignalCode
		for _, raw := range q["code"] {
			v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 8)
			if err != nil {
				http.Error(w, "code must be an integer in [0,255]", http.StatusBadRequest)
				return
			}
			codes = append(codes, obs.SignalCode(v))
		}

		ep, _ := s.Latest()
		writeJSON(w, BuildEpochResponse(s.Name(), ep, codes...))
	})
}
