//go:build !linux

package source

import (
	"io"

	"github.com/tarm/serial"
)

func openSerial(path string, baud int) (io.ReadCloser, error) {
	return serial.OpenPort(&serial.Config{Name: path, Baud: baud})
}
