package replay

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(_ context.Context, d time.Duration) bool {
	fs.slept = append(fs.slept, d)
	return true
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0, 0102
10, 0a 0b
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Frame != nil {
		t.Fatalf("expected START marker (nil frame), got %v", recs[0].Frame)
	}
	if recs[1].At != 0 {
		t.Fatalf("expected At=0, got %s", recs[1].At)
	}
	if !reflect.DeepEqual(recs[1].Frame, []byte{0x01, 0x02}) {
		t.Fatalf("unexpected frame 1: %x", recs[1].Frame)
	}
	if recs[2].At != 10*time.Nanosecond {
		t.Fatalf("expected At=10ns, got %s", recs[2].At)
	}
	if !reflect.DeepEqual(recs[2].Frame, []byte{0x0a, 0x0b}) {
		t.Fatalf("unexpected frame 2: %x", recs[2].Frame)
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	cases := map[string]string{
		"MissingComma":      "not-a-valid-line\n",
		"EmptyField":        "10,\n",
		"NegativeTimestamp": "-5,0102\n",
		"BadHex":            "5,zz\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(in)).ReadAll()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.HasPrefix(err.Error(), "line 1: ") {
				t.Fatalf("error %q lacks line number", err)
			}
		})
	}
}

func TestPlay_RespectsTimingAndStart(t *testing.T) {
	frames := make([][]byte, 0, 3)
	fs := &fakeSleeper{}

	recs := []Record{
		{At: 1 * time.Second, Frame: nil},
		{At: 1 * time.Second, Frame: []byte{0xAA}},
		{At: 1*time.Second + 100*time.Nanosecond, Frame: []byte{0xBB}},
		{At: 2 * time.Second, Frame: nil},
		{At: 2*time.Second + 50*time.Nanosecond, Frame: []byte{0xCC}},
	}

	err := Play(context.Background(), recs, 1.0, false, fs, func(frame []byte) error {
		frames = append(frames, append([]byte(nil), frame...))
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	wantFrames := [][]byte{{0xAA}, {0xBB}, {0xCC}}
	if !reflect.DeepEqual(frames, wantFrames) {
		t.Fatalf("frames = %x, want %x", frames, wantFrames)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{100 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [100ns]", fs.slept)
	}
}

func TestPlay_SpeedMultiplier(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 0, Frame: []byte{0x01}},
		{At: 100 * time.Nanosecond, Frame: []byte{0x02}},
	}

	err := Play(context.Background(), recs, 2.0, false, fs, func(frame []byte) error { return nil })
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{50 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [50ns]", fs.slept)
	}
}

func TestPlay_InvalidArguments(t *testing.T) {
	recs := []Record{{At: 0, Frame: []byte{0x01}}}
	ctx := context.Background()
	if err := Play(ctx, recs, 0, false, nil, func([]byte) error { return nil }); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if err := Play(ctx, nil, 1, false, nil, func([]byte) error { return nil }); err == nil {
		t.Fatalf("expected error for no records")
	}
	if err := Play(ctx, recs, 1, false, nil, nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}

func TestPlay_LoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	recs := []Record{{At: 0, Frame: []byte{0x01}}}

	n := 0
	err := Play(ctx, recs, 1, true, &fakeSleeper{}, func([]byte) error {
		n++
		if n == 5 {
			cancel()
		}
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n != 5 {
		t.Fatalf("callbacks = %d, want 5", n)
	}
}

func TestWriter_WritesExpectedFormat(t *testing.T) {
	tmp := t.TempDir()
	start := time.Unix(0, 0)

	w, err := CreateWriter(filepath.Join(tmp, "sub", "obs-%Y%m%d.log"), start)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	if want := filepath.Join(tmp, "sub", "obs-19700101.log"); w.Path() != want {
		t.Fatalf("path = %q, want %q", w.Path(), want)
	}

	if err := w.WriteFrame(time.Unix(0, 20), []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := w.WriteFrame(time.Unix(0, 30), []byte{0x03}); err == nil {
		t.Fatalf("expected error writing to a closed writer")
	}

	b, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	want := "# sbp log started 1970-01-01T00:00:00Z\nSTART\n20,0102\n"
	if string(b) != want {
		t.Fatalf("unexpected file contents: %q", string(b))
	}
}
