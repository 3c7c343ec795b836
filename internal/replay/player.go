package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"gnss-obs/internal/sbp"
	"gnss-obs/internal/source"
)

type PlayerConfig struct {
	Path   string
	Speed  float64
	Loop   bool
	Logger *log.Logger

	// Sleeper defaults to wall-clock waits.
	Sleeper Sleeper
}

// Player feeds a recorded log through the same callback a live source uses.
type Player struct {
	cfg     PlayerConfig
	records []Record
	logger  *log.Logger

	started atomic.Bool

	mu         sync.RWMutex
	state      string
	lastErr    string
	lastSeen   time.Time
	frames     uint64
	crcErrors  uint64
	handlerErr uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlayer reads the whole log up front so a malformed file fails fast.
func NewPlayer(cfg PlayerConfig) (*Player, error) {
	if cfg.Speed == 0 {
		cfg.Speed = 1
	}
	recs, err := ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", cfg.Path, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Player{
		cfg:     cfg,
		records: recs,
		logger:  logger.With("source", "replay"),
		state:   "stopped",
		done:    make(chan struct{}),
	}, nil
}

func (p *Player) Start(ctx context.Context, onFrame source.FrameHandler) error {
	if onFrame == nil {
		return fmt.Errorf("replay onFrame is nil")
	}
	if p.started.Swap(true) {
		return fmt.Errorf("replay already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.setState("playing", "")

	go func() {
		defer close(p.done)
		err := Play(runCtx, p.records, p.cfg.Speed, p.cfg.Loop, p.cfg.Sleeper, func(raw []byte) error {
			f, err := sbp.Unframe(raw)
			if err != nil {
				p.mu.Lock()
				p.crcErrors++
				p.mu.Unlock()
				p.logger.Warn("skipping bad frame", "err", err)
				return nil
			}
			herr := onFrame(f, raw)
			p.mu.Lock()
			p.lastSeen = time.Now().UTC()
			p.frames++
			if herr != nil {
				p.handlerErr++
				p.lastErr = "handler: " + herr.Error()
			}
			p.mu.Unlock()
			return nil
		})
		switch {
		case err == nil:
			p.setState("finished", "")
			p.logger.Info("replay finished", "path", p.cfg.Path)
		case errors.Is(err, context.Canceled):
			p.setState("stopped", "")
		default:
			p.setState("error", err.Error())
			p.logger.Error("replay failed", "path", p.cfg.Path, "err", err)
		}
	}()
	return nil
}

// Done is closed when playback ends.
func (p *Player) Done() <-chan struct{} { return p.done }

func (p *Player) Close() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Player) Snapshot() source.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := source.Snapshot{
		Name:      "replay",
		Kind:      "replay",
		Target:    p.cfg.Path,
		State:     p.state,
		LastError: p.lastErr,
		Frames:    p.frames,
		CRCErrors: p.crcErrors,

		HandlerErrors: p.handlerErr,
	}
	if !p.lastSeen.IsZero() {
		out.LastSeenUTC = p.lastSeen.Format(time.RFC3339Nano)
	}
	return out
}

func (p *Player) setState(state, lastErr string) {
	p.mu.Lock()
	p.state = state
	if lastErr != "" || state != "error" {
		p.lastErr = lastErr
	}
	p.mu.Unlock()
}
