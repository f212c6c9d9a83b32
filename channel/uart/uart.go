// Copyright 2026 The go-sci2c Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package uart provides a serial-port channel for SCI2C cards behind a
// UART-to-I2C bridge adapter. The bridge owns the bus-level signaling,
// so the hold-bus hint of the write phase is handled on the adapter
// side; this channel only moves frame bytes.
package uart

import (
	"fmt"
	"time"

	sci2c "github.com/hostcard/go-sci2c"
	"github.com/hostcard/go-sci2c/internal/syncutil"
	"go.bug.st/serial"
)

const (
	defaultBaudRate    = 115200
	defaultReadTimeout = 100 * time.Millisecond
)

// Channel implements sci2c.Channel over a serial port.
type Channel struct {
	port     serial.Port
	portName string
	pending  []byte
	readBuf  []byte
	readPos  int
	readLen  int
	mu       syncutil.Mutex
}

// New opens the named serial port at the default bridge baud rate.
func New(portName string) (*Channel, error) {
	mode := &serial.Mode{BaudRate: defaultBaudRate}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(defaultReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}
	return NewFromPort(port, portName), nil
}

// NewFromPort wraps an already configured serial port. Useful for
// bridges needing a non-default mode, and for tests.
func NewFromPort(port serial.Port, portName string) *Channel {
	return &Channel{
		port:     port,
		portName: portName,
	}
}

// Name implements sci2c.Channel.
func (c *Channel) Name() string {
	return c.portName
}

// BeginWrite implements sci2c.Channel.
func (c *Channel) BeginWrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return sci2c.ErrChannelClosed
	}
	c.pending = c.pending[:0]
	return nil
}

// Write implements sci2c.Channel.
func (c *Channel) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return sci2c.ErrChannelClosed
	}
	c.pending = append(c.pending, p...)
	return nil
}

// EndWrite implements sci2c.Channel. The buffered frame is flushed to
// the bridge in one write; holdBus is the bridge's concern.
func (c *Channel) EndWrite(_ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return sci2c.ErrChannelClosed
	}
	for len(c.pending) > 0 {
		n, err := c.port.Write(c.pending)
		if err != nil {
			return fmt.Errorf("serial write failed: %w", err)
		}
		c.pending = c.pending[n:]
	}
	return nil
}

// RequestRead implements sci2c.Channel. The port is read until n bytes
// arrived or the read timeout struck; a timeout leaves the phase short
// and Available reports only what was actually received.
func (c *Channel) RequestRead(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return sci2c.ErrChannelClosed
	}
	buf := make([]byte, n)
	got := 0
	for got < n {
		r, err := c.port.Read(buf[got:])
		if err != nil {
			return fmt.Errorf("serial read failed: %w", err)
		}
		if r == 0 {
			// Read timeout; surface a short read phase.
			break
		}
		got += r
	}
	c.readBuf = buf
	c.readLen = got
	c.readPos = 0
	return nil
}

// ReadByte implements sci2c.Channel.
func (c *Channel) ReadByte() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readPos >= c.readLen {
		return 0, sci2c.ErrChannelRead
	}
	b := c.readBuf[c.readPos]
	c.readPos++
	return b, nil
}

// Available implements sci2c.Channel.
func (c *Channel) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readPos < c.readLen
}

// Close closes the serial port.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port != nil {
		if err := c.port.Close(); err != nil {
			return fmt.Errorf("failed to close serial port: %w", err)
		}
		c.port = nil
	}
	return nil
}

// Ensure Channel implements sci2c.Channel.
var _ sci2c.Channel = (*Channel)(nil)
