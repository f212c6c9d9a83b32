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

// Package apdu implements the ISO/IEC 7816-4 command and response
// envelopes exchanged with a smart card. It is a pure codec: no I/O,
// no retained state beyond the byte buffers handed to it.
//
// A command APDU is a 4-byte header (CLA INS P1 P2) followed by an
// optional data field (prefixed by its length, Lc) and an optional
// expected-response length (Le). Lengths use the short form when the
// data fits in one byte (Lc <= 255, Le <= 256) and the extended form
// otherwise. A response APDU is an optional payload terminated by the
// mandatory two-byte status word SW1 SW2.
package apdu

// Length limits of the two ISO7816-4 encoding forms.
const (
	headerLen = 4

	// MaxShortNc is the largest data length encodable in the short form.
	MaxShortNc = 255
	// MaxShortNe is the largest expected-response length encodable in
	// the short form. 0x00 encodes 256.
	MaxShortNe = 256
	// MaxExtendedNc is the largest data length encodable at all.
	MaxExtendedNc = 65535
	// MaxExtendedNe is the largest expected-response length encodable
	// at all. 0x0000 encodes 65536.
	MaxExtendedNe = 65536
)

// Command is an ISO7816-4 command APDU. The payload in Data is treated
// as opaque bytes. Ne is the expected response length: 0 means no
// response data is expected; use MaxShortNe or MaxExtendedNe to request
// the protocol maximum, which encodes as 0x00 / 0x0000 on the wire.
//
// A Command is a value type; callers own it and it is never mutated by
// this package.
type Command struct {
	Data []byte
	Ne   int
	Cla  byte
	Ins  byte
	P1   byte
	P2   byte
}

// New builds a command APDU from its header fields, payload and
// expected response length.
func New(cla, ins, p1, p2 byte, data []byte, ne int) Command {
	return Command{
		Cla:  cla,
		Ins:  ins,
		P1:   p1,
		P2:   p2,
		Data: data,
		Ne:   ne,
	}
}

// extended reports whether the command requires extended length fields.
func (c Command) extended() bool {
	return len(c.Data) > MaxShortNc || c.Ne > MaxShortNe
}

func (c Command) lcSize() int {
	switch {
	case len(c.Data) == 0:
		return 0
	case c.extended():
		return 3
	default:
		return 1
	}
}

func (c Command) leSize() int {
	switch {
	case c.Ne <= 0:
		return 0
	case !c.extended():
		return 1
	case len(c.Data) == 0:
		// Extended Le with no Lc needs a leading 0x00 so the field
		// cannot be mistaken for a short form encoding.
		return 3
	default:
		return 2
	}
}

// EncodedLen returns the exact size of the encoded command without
// allocating: header + Lc field + data + Le field.
func (c Command) EncodedLen() int {
	return headerLen + c.lcSize() + len(c.Data) + c.leSize()
}

// Encode serializes the command following the ISO7816-4 case logic.
// Encoding is total: out-of-range length values are truncated to their
// encoded width rather than rejected.
func (c Command) Encode() []byte {
	buf := make([]byte, 0, c.EncodedLen())
	buf = append(buf, c.Cla, c.Ins, c.P1, c.P2)

	nc := len(c.Data)
	extended := c.extended()

	// Cases 3 and 4 carry data.
	if nc > 0 {
		if extended {
			buf = append(buf, 0x00, byte(nc>>8), byte(nc))
		} else {
			buf = append(buf, byte(nc))
		}
		buf = append(buf, c.Data...)
	}

	// Cases 2 and 4 expect data back.
	if c.Ne > 0 {
		switch {
		case !extended:
			if c.Ne == MaxShortNe {
				buf = append(buf, 0x00)
			} else {
				buf = append(buf, byte(c.Ne))
			}
		default:
			if nc == 0 {
				buf = append(buf, 0x00)
			}
			if c.Ne == MaxExtendedNe {
				buf = append(buf, 0x00, 0x00)
			} else {
				buf = append(buf, byte(c.Ne>>8), byte(c.Ne))
			}
		}
	}

	return buf
}
