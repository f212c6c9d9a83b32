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

// Package testing provides a simulated SCI2C card for wire-level tests.
// The simulator speaks the slave side of the link protocol: it consumes
// master frames byte-for-byte and produces the replies a real card
// would, including status register behavior and the sequence counter
// check, so transports and channels can be tested without hardware.
package testing

import (
	"errors"
	"fmt"
)

// Link command selectors, duplicated here so the simulator does not
// depend on the package under test.
const (
	CmdMasterToSlaveData byte = 0x00
	CmdSlaveToMasterData byte = 0x02
	CmdReadStatus        byte = 0x07
	CmdWakeup            byte = 0x0F
	CmdSoftReset         byte = 0x1F
	CmdReadATR           byte = 0x2F
	CmdParameterExchange byte = 0x3F
)

// Link status codes reported by the simulated status register.
const (
	StatusReady              byte = 0x0
	StatusBusy               byte = 0x1
	StatusUnexpectedSequence byte = 0xA
	StatusInvalidDataLength  byte = 0xB
	StatusUnexpectedCommand  byte = 0xC
)

// errNoReply is returned when the master reads without a staged reply.
var errNoReply = errors.New("virtual card: read with no staged reply")

// APDUHandler produces the response bytes (payload plus status word)
// for a received command APDU.
type APDUHandler func(apdu []byte) []byte

// VirtualCard simulates the card side of an SCI2C link. Write hands it
// one complete master frame; Read drains the staged reply. The zero
// value is not usable, use NewVirtualCard.
type VirtualCard struct {
	handler   APDUHandler
	atr       []byte
	reply     []byte
	resp      []byte
	lastAPDU  []byte
	status    byte
	expectSeq byte
	cdbCode   byte
	busyReads int
	wakeups   int
	awake     bool
}

// NewVirtualCard creates a simulator with the given ATR and APDU
// handler. A nil handler answers every APDU with status 0x9000 and no
// payload.
func NewVirtualCard(atr []byte, handler APDUHandler) *VirtualCard {
	if handler == nil {
		handler = func([]byte) []byte { return []byte{0x90, 0x00} }
	}
	return &VirtualCard{
		atr:     atr,
		handler: handler,
		status:  StatusReady,
		cdbCode: 0x1,
	}
}

// SetBusyReads makes the next n status reads report Busy before the
// register returns to Ready, simulating a slow card.
func (v *VirtualCard) SetBusyReads(n int) {
	v.busyReads = n
}

// SetStatus forces the status register to a fixed code.
func (v *VirtualCard) SetStatus(code byte) {
	v.status = code
}

// SetCDBCode sets the 2-bit block size code reported by parameter
// exchange.
func (v *VirtualCard) SetCDBCode(code byte) {
	v.cdbCode = code & 0x3
}

// Wakeups returns how many wakeup commands the card has consumed.
func (v *VirtualCard) Wakeups() int {
	return v.wakeups
}

// Awake reports whether the card has left low-power mode. The first
// wakeup is consumed by the power-up itself; the card is awake only
// after the second.
func (v *VirtualCard) Awake() bool {
	return v.awake
}

// LastAPDU returns the most recent command APDU the card received.
func (v *VirtualCard) LastAPDU() []byte {
	return v.lastAPDU
}

// HasPendingReply reports whether reply bytes are staged for the
// master to read.
func (v *VirtualCard) HasPendingReply() bool {
	return len(v.reply) > 0
}

// Write consumes one complete master frame and stages the reply.
func (v *VirtualCard) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, errors.New("virtual card: empty frame")
	}
	pcb := p[0]

	switch sel := selectorOf(pcb); sel {
	case CmdWakeup:
		v.wakeups++
		v.awake = v.wakeups >= 2
		v.reply = []byte{pcb, 0x00}
	case CmdSoftReset:
		v.expectSeq = 0
		v.status = StatusReady
		v.resp = nil
		v.reply = []byte{pcb, 0x00}
	case CmdReadStatus:
		v.reply = []byte{0x00, v.statusRead() << 4}
	case CmdReadATR:
		reply := make([]byte, 0, 2+len(v.atr))
		reply = append(reply, pcb, byte(len(v.atr)))
		reply = append(reply, v.atr...)
		v.reply = reply
	case CmdParameterExchange:
		v.reply = []byte{pcb, v.cdbCode << 6}
	case CmdMasterToSlaveData:
		v.receiveAPDU(p)
	case CmdSlaveToMasterData:
		// The card prepends a protocol control byte to the data.
		reply := make([]byte, 0, 1+len(v.resp))
		reply = append(reply, CmdSlaveToMasterData)
		reply = append(reply, v.resp...)
		v.reply = reply
	default:
		v.status = StatusUnexpectedCommand
		v.reply = []byte{pcb, 0x00}
	}
	return len(p), nil
}

// statusRead returns the current status code, consuming one busy read
// if configured.
func (v *VirtualCard) statusRead() byte {
	if v.busyReads > 0 {
		v.busyReads--
		return StatusBusy
	}
	return v.status
}

// receiveAPDU handles a master-to-slave data frame: sequence check,
// length check, then the APDU handler.
func (v *VirtualCard) receiveAPDU(frame []byte) {
	pcb := frame[0]
	v.reply = []byte{pcb, 0x00}

	seq := pcb >> 4 & 0x7
	if seq != v.expectSeq {
		v.status = StatusUnexpectedSequence
		return
	}
	v.expectSeq = (v.expectSeq + 1) & 0x7

	if len(frame) < 2 || int(frame[1]) != len(frame)-2 {
		v.status = StatusInvalidDataLength
		return
	}

	apdu := append([]byte(nil), frame[2:]...)
	v.lastAPDU = apdu
	v.resp = v.handler(apdu)
	v.status = StatusReady
}

// Read drains up to len(p) staged reply bytes.
func (v *VirtualCard) Read(p []byte) (int, error) {
	if len(v.reply) == 0 {
		return 0, fmt.Errorf("%w", errNoReply)
	}
	n := copy(p, v.reply)
	v.reply = v.reply[n:]
	return n, nil
}

func selectorOf(pcb byte) byte {
	if pcb&0x0F == CmdMasterToSlaveData {
		return CmdMasterToSlaveData
	}
	return pcb
}
