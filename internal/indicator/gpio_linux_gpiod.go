//go:build linux && (arm || arm64)

package indicator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// openLine requests the header pin by its line name ("GPIO17"). FindLine
// searches every chip, so Pi 5 boards exposing the header on gpiochip4 work
// too.
func openLine(pin int) (outputLine, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}
	name := fmt.Sprintf("GPIO%d", pin)

	chip, offset, err := gpiocdev.FindLine(name)
	if err != nil {
		return nil, fmt.Errorf("indicator: gpio line %q: %w", name, err)
	}
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("gnss-obs-indicator"),
	)
	if err != nil {
		return nil, fmt.Errorf("indicator: request %s on %s: %w", name, chip, err)
	}
	return line, nil
}

var openLineFn = openLine
