package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"gnss-obs/internal/config"
	"gnss-obs/internal/indicator"
	"gnss-obs/internal/ingest"
	"gnss-obs/internal/obs"
	"gnss-obs/internal/replay"
	"gnss-obs/internal/sbp"
	"gnss-obs/internal/source"
	"gnss-obs/internal/udp"
	"gnss-obs/internal/web"
)

// frameSource is a live receiver connection or a log being replayed.
type frameSource interface {
	Start(ctx context.Context, onFrame source.FrameHandler) error
	Close()
	Snapshot() source.Snapshot
}

type runtime struct {
	cfg    config.Config
	logger *log.Logger
	logs   *web.LogBuffer

	status    *web.Status
	router    *ingest.Router
	src       frameSource
	recorder  *replay.Writer
	forwarder *udp.Forwarder
	indicator *indicator.Indicator

	stopFlush chan struct{}
}

func newRuntime(cfg config.Config, logger *log.Logger, logs *web.LogBuffer) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, logs: logs, stopFlush: make(chan struct{})}
	ok := false
	defer func() {
		if !ok {
			rt.close()
		}
	}()

	if cfg.Indicator.Enable {
		ind, err := indicator.Open(cfg.Indicator.GPIO, cfg.Indicator.Pulse)
		if err != nil {
			// The console is still useful without the activity light.
			logger.Warn("indicator unavailable", "gpio", cfg.Indicator.GPIO, "err", err)
		} else {
			rt.indicator = ind
		}
	}

	specs := make([]ingest.SessionSpec, 0, len(cfg.Sessions))
	for _, sc := range cfg.Sessions {
		mode, err := obs.ParseMode(sc.Mode)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", sc.Name, err)
		}
		specs = append(specs, ingest.SessionSpec{Name: sc.Name, Mode: mode})
	}
	router, err := ingest.NewRouter(ingest.Config{
		Sessions:  specs,
		Logger:    logger,
		OnPublish: rt.onPublish,
	})
	if err != nil {
		return nil, err
	}
	rt.router = router
	rt.status = web.NewStatus(router)

	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path, time.Now())
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		rt.recorder = w
		rt.status.SetRecordPath(w.Path())
		logger.Info("recording", "path", w.Path())
	}

	if cfg.Forward.Enable {
		fwd, err := udp.NewForwarder(cfg.Forward.Dest)
		if err != nil {
			return nil, fmt.Errorf("forward: %w", err)
		}
		rt.forwarder = fwd
		rt.status.SetForward(fwd.Stats)
		logger.Info("forwarding", "dest", cfg.Forward.Dest)
	}

	switch cfg.Source.Kind {
	case config.SourceReplay:
		p, err := replay.NewPlayer(replay.PlayerConfig{
			Path:   cfg.Replay.Path,
			Speed:  cfg.Replay.Speed,
			Loop:   cfg.Replay.Loop,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		rt.src = p
	default:
		c, err := source.New(source.Config{
			Name:           cfg.Source.Kind,
			Kind:           cfg.Source.Kind,
			Addr:           cfg.Source.Addr,
			Device:         cfg.Source.Device,
			Baud:           cfg.Source.Baud,
			ReconnectDelay: cfg.Source.ReconnectDelay,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		rt.src = c
	}
	rt.status.SetSource(rt.src.Snapshot)

	ok = true
	return rt, nil
}

func (rt *runtime) onPublish(s *obs.Session, ep *obs.Epoch) {
	rt.status.MarkPublish(time.Now().UTC())
	rt.indicator.Pulse()
	rt.logger.Debug("epoch published", "session", s.Name(), "week", ep.Week, "tow", ep.TOW, "observations", ep.Len())
}

// handleFrame taps the raw frame for recording and forwarding, then routes
// it to the sessions.
func (rt *runtime) handleFrame(f sbp.Frame, raw []byte) error {
	var errs []error
	if rt.recorder != nil {
		if err := rt.recorder.WriteFrame(time.Now(), raw); err != nil {
			errs = append(errs, fmt.Errorf("record: %w", err))
		}
	}
	if rt.forwarder != nil {
		if err := rt.forwarder.Send(raw); err != nil {
			errs = append(errs, fmt.Errorf("forward: %w", err))
		}
	}
	if err := rt.router.HandleFrame(f); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// start launches the source and the web server. A web server failure
// cancels the whole process through cancel.
func (rt *runtime) start(ctx context.Context, cancel context.CancelFunc) error {
	if err := rt.src.Start(ctx, rt.handleFrame); err != nil {
		return err
	}

	if rt.cfg.Web.Listen != "" {
		go func() {
			err := web.Serve(ctx, rt.cfg.Web.Listen, rt.status, rt.router, rt.logs)
			if err != nil && ctx.Err() == nil {
				rt.logger.Error("web server stopped", "err", err)
				cancel()
			}
		}()
	}

	if rt.recorder != nil {
		go rt.flushLoop(ctx)
	}
	return nil
}

func (rt *runtime) flushLoop(ctx context.Context) {
	t := time.NewTicker(1 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rt.stopFlush:
			return
		case <-t.C:
			if err := rt.recorder.Flush(); err != nil {
				rt.logger.Warn("record flush failed", "err", err)
			}
		}
	}
}

func (rt *runtime) close() {
	select {
	case <-rt.stopFlush:
	default:
		close(rt.stopFlush)
	}
	if rt.src != nil {
		rt.src.Close()
	}
	if rt.recorder != nil {
		if err := rt.recorder.Close(); err != nil {
			rt.logger.Warn("record close failed", "err", err)
		}
	}
	if rt.forwarder != nil {
		_ = rt.forwarder.Close()
	}
	if rt.indicator != nil {
		_ = rt.indicator.Close()
	}
}
