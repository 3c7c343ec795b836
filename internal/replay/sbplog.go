package replay

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

// An SBP log is line-oriented text:
//
//	# free-form comment
//	START
//	<offset_ns>,<hex frame>
//
// offset_ns counts from the most recent START line. Each hex field holds one
// complete SBP frame, preamble through CRC. Blank lines are ignored.

const startMarker = "START"

// Record is one log line. A nil Frame marks a START line.
type Record struct {
	At    time.Duration
	Frame []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFile loads every record of the log at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

func (rr *Reader) ReadAll() ([]Record, error) {
	sc := bufio.NewScanner(rr.r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var recs []Record
	for n := 1; sc.Scan(); n++ {
		rec, ok, err := parseLine(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if ok {
			recs = append(recs, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// parseLine reports ok=false for lines that carry no record.
func parseLine(line string) (Record, bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "", strings.HasPrefix(line, "#"):
		return Record{}, false, nil
	case line == startMarker:
		return Record{}, true, nil
	}

	offset, frame, found := strings.Cut(line, ",")
	if !found {
		return Record{}, false, fmt.Errorf("expected <offset_ns>,<hex>: %q", line)
	}
	offset = strings.TrimSpace(offset)
	frame = strings.ReplaceAll(strings.TrimSpace(frame), " ", "")
	if offset == "" || frame == "" {
		return Record{}, false, fmt.Errorf("empty field: %q", line)
	}

	ns, err := strconv.ParseInt(offset, 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("offset %q: %w", offset, err)
	}
	if ns < 0 {
		return Record{}, false, fmt.Errorf("offset %d is negative", ns)
	}
	b, err := hex.DecodeString(frame)
	if err != nil {
		return Record{}, false, fmt.Errorf("frame: %w", err)
	}
	return Record{At: time.Duration(ns), Frame: b}, true, nil
}

// Writer appends frames to a log. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	buf    *bufio.Writer
	start  time.Time
	closed bool
}

// ExpandPath formats a strftime pattern such as "obs-%Y%m%d-%H%M%S.log"
// against now in UTC.
func ExpandPath(pattern string, now time.Time) (string, error) {
	p, err := strftime.New(pattern)
	if err != nil {
		return "", fmt.Errorf("record path pattern: %w", err)
	}
	return p.FormatString(now.UTC()), nil
}

// CreateWriter expands pattern at now, creates any missing parent
// directories and starts a new log there.
func CreateWriter(pattern string, now time.Time) (*Writer, error) {
	path, err := ExpandPath(pattern, now)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{path: path, f: f, buf: bufio.NewWriterSize(f, 64*1024), start: now}
	if _, err := fmt.Fprintf(w.buf, "# sbp log started %s\n%s\n", now.UTC().Format(time.RFC3339), startMarker); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// Path is the expanded file name.
func (w *Writer) Path() string { return w.path }

// WriteFrame appends frame stamped with its offset from the writer's start.
func (w *Writer) WriteFrame(now time.Time, frame []byte) error {
	if frame == nil {
		return errors.New("frame is nil")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("sbp log writer is closed")
	}
	offset := max(now.Sub(w.start), 0)
	_, err := fmt.Fprintf(w.buf, "%d,%x\n", offset.Nanoseconds(), frame)
	return err
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.buf.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Join(w.buf.Flush(), w.f.Close())
}

type Sleeper interface {
	// Sleep waits for d and reports false if ctx ended first.
	Sleep(ctx context.Context, d time.Duration) bool
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// pacer turns record offsets into waits. A START marker resets it.
type pacer struct {
	speed  float64
	origin time.Duration
	last   time.Duration
	primed bool
}

func (p *pacer) reset(origin time.Duration) {
	p.origin, p.last, p.primed = origin, 0, false
}

// next returns how long to wait before emitting a frame logged at at.
func (p *pacer) next(at time.Duration) time.Duration {
	rel := max(at-p.origin, 0)
	var wait time.Duration
	if p.primed {
		wait = time.Duration(float64(max(rel-p.last, 0)) / p.speed)
	}
	p.last, p.primed = rel, true
	return wait
}

// Play hands each frame in records to cb, waiting out the logged gaps
// scaled by speed (2 plays twice as fast). With loop set it starts over
// until ctx ends or cb fails.
func Play(ctx context.Context, records []Record, speed float64, loop bool, sleeper Sleeper, cb func(frame []byte) error) error {
	switch {
	case speed <= 0:
		return fmt.Errorf("replay speed must be > 0")
	case cb == nil:
		return errors.New("callback is nil")
	case len(records) == 0:
		return errors.New("no records")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}

	for {
		p := pacer{speed: speed}
		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.Frame == nil {
				p.reset(r.At)
				continue
			}
			if wait := p.next(r.At); wait > 0 && !sleeper.Sleep(ctx, wait) {
				return ctx.Err()
			}
			if err := cb(r.Frame); err != nil {
				return err
			}
		}
		if !loop {
			return nil
		}
	}
}
