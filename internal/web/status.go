package web

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"gnss-obs/internal/ingest"
	"gnss-obs/internal/source"
	"gnss-obs/internal/udp"
)

// Status aggregates live counters for /api/status. Providers are set once
// during startup; Snapshot may be called concurrently with everything.
type Status struct {
	startUnixNano   int64
	lastPublishNano int64
	publishes       uint64

	router     *ingest.Router
	source     atomic.Value // func() source.Snapshot
	forward    atomic.Value // func() udp.Stats
	recordPath atomic.Value // string

	build BuildInfo
}

type BuildInfo struct {
	GoVersion  string `json:"go_version"`
	ModulePath string `json:"module_path,omitempty"`
	Version    string `json:"version,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	BuildTime  string `json:"build_time,omitempty"`
}

func NewStatus(router *ingest.Router) *Status {
	s := &Status{router: router, build: readBuildInfo()}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.source.Store(func() source.Snapshot { return source.Snapshot{} })
	s.forward.Store(func() udp.Stats { return udp.Stats{} })
	s.recordPath.Store("")
	return s
}

func (s *Status) SetSource(fn func() source.Snapshot) {
	if fn != nil {
		s.source.Store(fn)
	}
}

func (s *Status) SetForward(fn func() udp.Stats) {
	if fn != nil {
		s.forward.Store(fn)
	}
}

func (s *Status) SetRecordPath(path string) { s.recordPath.Store(path) }

// MarkPublish records that some session published an epoch.
func (s *Status) MarkPublish(nowUTC time.Time) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastPublishNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.publishes, 1)
}

type StatusSnapshot struct {
	Service        string          `json:"service"`
	NowUTC         string          `json:"now_utc"`
	UptimeSec      int64           `json:"uptime_sec"`
	Source         source.Snapshot `json:"source"`
	Ingest         ingest.Stats    `json:"ingest"`
	Forward        *udp.Stats      `json:"forward,omitempty"`
	RecordPath     string          `json:"record_path,omitempty"`
	Publishes      uint64          `json:"publishes"`
	LastPublishUTC string          `json:"last_publish_utc,omitempty"`
	Build          BuildInfo       `json:"build"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:    "gnss-obs",
		NowUTC:     nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:  int64(nowUTC.Sub(start).Seconds()),
		Source:     s.source.Load().(func() source.Snapshot)(),
		RecordPath: s.recordPath.Load().(string),
		Publishes:  atomic.LoadUint64(&s.publishes),
		Build:      s.build,
	}
	if s.router != nil {
		snap.Ingest = s.router.Stats()
	}
	if fwd := s.forward.Load().(func() udp.Stats)(); fwd.Dest != "" {
		snap.Forward = &fwd
	}
	if last := atomic.LoadInt64(&s.lastPublishNano); last != 0 {
		snap.LastPublishUTC = time.Unix(0, last).UTC().Format(time.RFC3339Nano)
	}
	return snap
}

func readBuildInfo() BuildInfo {
	out := BuildInfo{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return out
	}
	out.ModulePath = bi.Main.Path
	out.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.modified":
			out.Dirty = s.Value == "true"
		case "vcs.time":
			out.BuildTime = s.Value
		}
	}
	return out
}
