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

// Package i2c provides the I2C channel implementation for SCI2C cards.
package i2c

import (
	"fmt"
	"strings"

	sci2c "github.com/hostcard/go-sci2c"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// defaultAddr is the card's 7-bit I2C address.
	defaultAddr = 0x48

	// maxClockFreq is the fastest bus speed the card supports (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz
)

// Channel implements sci2c.Channel over a Linux I2C bus. The write
// phase is buffered; EndWrite with the bus held defers the transfer so
// the following read phase runs as a single write-then-read
// transaction with a repeated start, matching the card's requirement
// that the bus is not released between the two phases.
type Channel struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser // Held so Close() can release the OS file descriptor
	busName string
	pending []byte
	readBuf []byte
	readPos int
	hold    bool
}

// parseBusPath strips an address suffix from a composite bus path,
// accepting "/dev/i2c-1:0x48" or a bare "/dev/i2c-1".
func parseBusPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens the given I2C bus and addresses the card on it.
func New(busName string, opts ...Option) (*Channel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseBusPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	// Best effort; stay on the default speed if the bus refuses.
	_ = bus.SetSpeed(maxClockFreq)

	ch := &Channel{
		dev:     &i2c.Dev{Addr: defaultAddr, Bus: bus},
		bus:     bus,
		busName: busName,
	}
	for _, opt := range opts {
		if err := opt(ch); err != nil {
			_ = bus.Close()
			return nil, err
		}
	}
	return ch, nil
}

// Option configures the channel.
type Option func(*Channel) error

// WithAddress overrides the card's 7-bit I2C address.
func WithAddress(addr uint16) Option {
	return func(c *Channel) error {
		if addr > 0x7F {
			return fmt.Errorf("address 0x%X is not a 7-bit I2C address", addr)
		}
		c.dev = &i2c.Dev{Addr: addr, Bus: c.dev.Bus}
		return nil
	}
}

// Name implements sci2c.Channel.
func (c *Channel) Name() string {
	return c.busName
}

// BeginWrite implements sci2c.Channel.
func (c *Channel) BeginWrite() error {
	if c.dev == nil {
		return sci2c.ErrChannelClosed
	}
	c.pending = c.pending[:0]
	c.hold = false
	return nil
}

// Write implements sci2c.Channel.
func (c *Channel) Write(p []byte) error {
	if c.dev == nil {
		return sci2c.ErrChannelClosed
	}
	c.pending = append(c.pending, p...)
	return nil
}

// EndWrite implements sci2c.Channel. Without holdBus the buffered
// bytes go out immediately; with holdBus they are kept back and sent
// as the write half of the next read transaction.
func (c *Channel) EndWrite(holdBus bool) error {
	if c.dev == nil {
		return sci2c.ErrChannelClosed
	}
	if holdBus {
		c.hold = true
		return nil
	}
	if err := c.dev.Tx(c.pending, nil); err != nil {
		return fmt.Errorf("I2C write failed: %w", err)
	}
	c.pending = c.pending[:0]
	return nil
}

// RequestRead implements sci2c.Channel. An I2C transfer delivers
// exactly n bytes or fails, so a successful request always makes the
// full count available.
func (c *Channel) RequestRead(n int) error {
	if c.dev == nil {
		return sci2c.ErrChannelClosed
	}
	buf := make([]byte, n)

	var w []byte
	if c.hold {
		w = c.pending
	}
	if err := c.dev.Tx(w, buf); err != nil {
		return fmt.Errorf("I2C read failed: %w", err)
	}
	c.pending = c.pending[:0]
	c.hold = false
	c.readBuf = buf
	c.readPos = 0
	return nil
}

// ReadByte implements sci2c.Channel.
func (c *Channel) ReadByte() (byte, error) {
	if c.readPos >= len(c.readBuf) {
		return 0, sci2c.ErrChannelRead
	}
	b := c.readBuf[c.readPos]
	c.readPos++
	return b, nil
}

// Available implements sci2c.Channel.
func (c *Channel) Available() bool {
	return c.readPos < len(c.readBuf)
}

// Close releases the I2C bus file descriptor. Must be called when the
// channel is no longer needed; leaking the descriptor can corrupt the
// bus on rapid destroy/recreate cycles.
func (c *Channel) Close() error {
	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			return fmt.Errorf("failed to close I2C bus: %w", err)
		}
		c.bus = nil
		c.dev = nil
	}
	return nil
}

// Ensure Channel implements sci2c.Channel.
var _ sci2c.Channel = (*Channel)(nil)
