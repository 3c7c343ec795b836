// Package udp relays raw SBP frames to a UDP peer, typically another
// console instance running a relay-mode session.
package udp

import (
	"fmt"
	"net"
	"sync/atomic"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

type Forwarder struct {
	dest string
	conn udpConn

	sent   atomic.Uint64
	errors atomic.Uint64
}

type Stats struct {
	Dest   string `json:"dest"`
	Sent   uint64 `json:"sent"`
	Errors uint64 `json:"errors"`
}

func NewForwarder(dest string) (*Forwarder, error) {
	return newForwarder(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newForwarder(dest string, resolve resolveFunc, dial dialFunc) (*Forwarder, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &Forwarder{dest: dest, conn: conn}, nil
}

// Send writes one frame as one datagram.
func (f *Forwarder) Send(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	if _, err := f.conn.Write(frame); err != nil {
		f.errors.Add(1)
		return err
	}
	f.sent.Add(1)
	return nil
}

func (f *Forwarder) Stats() Stats {
	return Stats{Dest: f.dest, Sent: f.sent.Load(), Errors: f.errors.Load()}
}

func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
