// Package indicator blinks a GPIO line each time an epoch is published.
package indicator

import (
	"sync"
	"time"
)

type outputLine interface {
	SetValue(v int) error
	Close() error
}

// Indicator drives one output line. Pulse is non-blocking and pulses that
// overlap extend the current one.
type Indicator struct {
	pulse time.Duration

	mu     sync.Mutex
	line   outputLine
	timer  *time.Timer
	pulses uint64
	errs   uint64
}

// Open requests BCM GPIO pin as an output, initially low.
func Open(pin int, pulse time.Duration) (*Indicator, error) {
	line, err := openLineFn(pin)
	if err != nil {
		return nil, err
	}
	return newIndicator(line, pulse), nil
}

func newIndicator(line outputLine, pulse time.Duration) *Indicator {
	if pulse <= 0 {
		pulse = 50 * time.Millisecond
	}
	return &Indicator{line: line, pulse: pulse}
}

func (ind *Indicator) Pulse() {
	if ind == nil {
		return
	}
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.line == nil {
		return
	}
	ind.pulses++
	if ind.timer != nil && ind.timer.Stop() {
		ind.timer.Reset(ind.pulse)
		return
	}
	if err := ind.line.SetValue(1); err != nil {
		ind.errs++
		return
	}
	ind.timer = time.AfterFunc(ind.pulse, ind.off)
}

func (ind *Indicator) off() {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.line == nil {
		return
	}
	if err := ind.line.SetValue(0); err != nil {
		ind.errs++
	}
}

// Counts returns how many pulses were requested and how many line writes
// failed.
func (ind *Indicator) Counts() (pulses, errs uint64) {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return ind.pulses, ind.errs
}

// Close turns the line off and releases it.
func (ind *Indicator) Close() error {
	if ind == nil {
		return nil
	}
	ind.mu.Lock()
	defer ind.mu.Unlock()
	if ind.line == nil {
		return nil
	}
	if ind.timer != nil {
		ind.timer.Stop()
	}
	_ = ind.line.SetValue(0)
	err := ind.line.Close()
	ind.line = nil
	return err
}
