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

package sci2c

// SCI2C link command selectors. The selector occupies the low bits of
// the protocol control byte (PCB), the first byte of every master
// frame. For master-to-slave data the upper nibble carries the 3-bit
// rolling sequence counter.
const (
	// CmdMasterToSlaveData sends an APDU to the card. The full PCB is
	// CmdMasterToSlaveData | seq<<4.
	CmdMasterToSlaveData byte = 0x00
	// CmdSlaveToMasterData requests buffered response data from the card.
	CmdSlaveToMasterData byte = 0x02
	// CmdReadStatus reads the card's link status register.
	CmdReadStatus byte = 0x07
	// CmdWakeup brings the card out of low-power mode. The card requires
	// the command to be issued twice.
	CmdWakeup byte = 0x0F
	// CmdSoftReset restarts the card application layer.
	CmdSoftReset byte = 0x1F
	// CmdReadATR requests the Answer To Reset.
	CmdReadATR byte = 0x2F
	// CmdParameterExchange negotiates link parameters, returning the
	// card's maximum slave-to-master data block size.
	CmdParameterExchange byte = 0x3F
)

// Sequence counter layout inside a master-to-slave PCB.
const (
	seqMask  = 0x07
	seqShift = 4
)

// SelectorOf extracts the link command selector from a PCB byte,
// discarding the sequence bits of master-to-slave data frames.
func SelectorOf(pcb byte) byte {
	if pcb&0x0F == CmdMasterToSlaveData {
		return CmdMasterToSlaveData
	}
	return pcb
}

// LinkStatus is the card's link-level status code, read from the top
// nibble of the second ReadStatus reply byte. It is distinct from the
// APDU status word: this register reports the health of the link
// itself, not the outcome of a card command.
type LinkStatus byte

// Link status codes.
const (
	StatusReady              LinkStatus = 0x0
	StatusBusy               LinkStatus = 0x1
	StatusExceptionRaised    LinkStatus = 0x8
	StatusOverClocking       LinkStatus = 0x9
	StatusUnexpectedSequence LinkStatus = 0xA
	StatusInvalidDataLength  LinkStatus = 0xB
	StatusUnexpectedCommand  LinkStatus = 0xC
	StatusInvalidEDC         LinkStatus = 0xD
)

// OK reports whether the status allows the link to continue. Anything
// other than Ready or Busy is a fault.
func (s LinkStatus) OK() bool {
	return s == StatusReady || s == StatusBusy
}

// String returns a human-readable meaning for the status code so
// faults can be diagnosed from log output alone.
func (s LinkStatus) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusBusy:
		return "busy"
	case StatusExceptionRaised:
		return "exception raised"
	case StatusOverClocking:
		return "over clocking"
	case StatusUnexpectedSequence:
		return "unexpected sequence"
	case StatusInvalidDataLength:
		return "invalid data length"
	case StatusUnexpectedCommand:
		return "unexpected command"
	case StatusInvalidEDC:
		return "invalid EDC"
	default:
		return "unclassified exception"
	}
}

// Fixed reply and frame sizes of the link protocol.
const (
	// ackLen is the reply size of every control command that returns
	// only an acknowledgement.
	ackLen = 2
	// statusReplyLen is the reply size of ReadStatus.
	statusReplyLen = 2
	// sendHeaderLen is the PCB + length prefix of a master-to-slave
	// data frame.
	sendHeaderLen = 2
	// recvPrefixLen is the protocol control byte the card prepends to
	// every slave-to-master data reply.
	recvPrefixLen = 1
	// atrLen is the length of the Answer To Reset body.
	atrLen = 29
	// atrHeaderLen is the PCB + length prefix of the ATR reply.
	atrHeaderLen = 2
)
