// Package source connects to a GNSS receiver's SBP byte stream over TCP or
// a serial port and hands every decoded frame to a callback. Lost
// connections are retried until the client is closed.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"gnss-obs/internal/sbp"
)

const (
	KindTCP    = "tcp"
	KindSerial = "serial"
)

type Config struct {
	Name string
	Kind string

	// Addr is host:port for KindTCP.
	Addr string
	// Device and Baud are used for KindSerial.
	Device string
	Baud   int

	ReconnectDelay time.Duration

	// DialTimeout is used for the TCP connect.
	DialTimeout time.Duration

	Logger *log.Logger
}

// FrameHandler receives each valid frame together with its wire bytes. raw
// is only valid for the duration of the call.
type FrameHandler func(f sbp.Frame, raw []byte) error

type opener func(ctx context.Context) (io.ReadCloser, error)

type Client struct {
	cfg    Config
	target string
	open   opener
	logger *log.Logger

	started atomic.Bool
	closed  atomic.Bool

	mu         sync.RWMutex
	state      string
	lastErr    string
	lastSeen   time.Time
	frames     uint64
	crcErrors  uint64
	handlerErr uint64
	reconnects uint64

	cancel context.CancelFunc
	done   chan struct{}
}

type Snapshot struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Target      string `json:"target"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Frames      uint64 `json:"frames"`
	CRCErrors   uint64 `json:"crc_errors"`
	Reconnects  uint64 `json:"reconnects"`

	// HandlerErrors counts frames the consumer failed on. They do not
	// change State; the last one is kept in LastError.
	HandlerErrors uint64 `json:"handler_errors"`
}

func New(cfg Config) (*Client, error) {
	if cfg.Name == "" {
		cfg.Name = cfg.Kind
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	c := &Client{cfg: cfg, state: "stopped", done: make(chan struct{})}
	c.logger = logger.With("source", cfg.Name)

	switch cfg.Kind {
	case KindTCP:
		if cfg.Addr == "" {
			return nil, fmt.Errorf("source addr is required")
		}
		c.target = cfg.Addr
		dialer := &net.Dialer{Timeout: cfg.DialTimeout}
		c.open = func(ctx context.Context) (io.ReadCloser, error) {
			return dialer.DialContext(ctx, "tcp", cfg.Addr)
		}
	case KindSerial:
		if cfg.Device == "" {
			return nil, fmt.Errorf("source device is required")
		}
		c.target = cfg.Device
		c.open = func(context.Context) (io.ReadCloser, error) {
			return openSerial(cfg.Device, cfg.Baud)
		}
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
	return c, nil
}

// Start opens the stream and reads SBP frames until ctx is cancelled or
// Close is called. onFrame runs on the reader goroutine and should be fast.
func (c *Client) Start(ctx context.Context, onFrame FrameHandler) error {
	if c == nil {
		return fmt.Errorf("source client is nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("source client is closed")
	}
	if onFrame == nil {
		return fmt.Errorf("source onFrame is nil")
	}
	if c.started.Swap(true) {
		return fmt.Errorf("source client already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setState("connecting", "")

	go func() {
		defer close(c.done)
		c.runLoop(runCtx, onFrame)
	}()
	return nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.closed.Swap(true) {
		return
	}
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Client) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := Snapshot{
		Name:       c.cfg.Name,
		Kind:       c.cfg.Kind,
		Target:     c.target,
		State:      c.state,
		LastError:  c.lastErr,
		Frames:     c.frames,
		CRCErrors:  c.crcErrors,
		Reconnects: c.reconnects,

		HandlerErrors: c.handlerErr,
	}
	if !c.lastSeen.IsZero() {
		out.LastSeenUTC = c.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (c *Client) runLoop(ctx context.Context, onFrame FrameHandler) {
	first := true
	for {
		if ctx.Err() != nil {
			c.setState("stopped", "")
			return
		}
		if !first {
			c.mu.Lock()
			c.reconnects++
			c.mu.Unlock()
		}
		first = false

		c.setState("connecting", "")
		rc, err := c.open(ctx)
		if err != nil {
			c.setState("error", err.Error())
			c.logger.Warn("open failed", "target", c.target, "err", err)
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				c.setState("stopped", "")
				return
			}
			continue
		}

		c.setState("connected", "")
		c.logger.Info("connected", "target", c.target)

		// Unblock the pending read when the client is stopped.
		stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
		err = c.pump(rc, onFrame)
		stop()
		_ = rc.Close()

		if ctx.Err() != nil {
			c.setState("stopped", "")
			return
		}
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			c.setState("disconnected", "")
		} else {
			c.setState("disconnected", err.Error())
		}
		c.logger.Warn("disconnected", "target", c.target, "err", err)

		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			c.setState("stopped", "")
			return
		}
	}
}

// pump reads frames until the stream fails. CRC failures are counted and
// skipped; handler errors are recorded but do not end the connection.
func (c *Client) pump(r io.Reader, onFrame FrameHandler) error {
	rd := sbp.NewReader(r)
	for {
		f, err := rd.Next()
		if errors.Is(err, sbp.ErrBadCRC) {
			c.mu.Lock()
			c.crcErrors++
			c.mu.Unlock()
			c.logger.Warn("dropped frame", "err", err)
			continue
		}
		if err != nil {
			return err
		}

		herr := onFrame(f, rd.Raw())

		now := time.Now().UTC()
		c.mu.Lock()
		c.lastSeen = now
		c.frames++
		if herr != nil {
			c.handlerErr++
			c.lastErr = "handler: " + herr.Error()
		}
		c.mu.Unlock()
		if herr != nil {
			c.logger.Debug("frame handler failed", "err", herr)
		}
	}
}

func (c *Client) setState(state string, lastErr string) {
	c.mu.Lock()
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
	} else if state == "connected" || state == "connecting" || state == "stopped" {
		c.lastErr = ""
	}
	c.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
