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

package apdu

import "fmt"

// SW1 boundaries of the ISO7816-4 status classes.
const (
	sw1MoreData           = 0x61
	sw1WarningNVUnchanged = 0x62
	sw1WarningNVChanged   = 0x63
	sw1FirstExecError     = 0x64
	sw1LastExecError      = 0x66
	sw1FirstCheckError    = 0x67
	sw1LastCheckError     = 0x6F
)

// SWNoError is the success status word.
const SWNoError StatusWord = 0x9000

// StatusWord is the two-byte SW1 SW2 trailer of a response APDU.
type StatusWord uint16

// NewStatusWord combines the two status bytes into a StatusWord.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the high status byte.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the low status byte.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// Classification is the semantic outcome a status word maps to.
type Classification int

// Status word classifications, from best to worst.
const (
	// ClassUnknown is any status word outside the recognized ranges;
	// the raw value is passed through for the caller to inspect.
	ClassUnknown Classification = iota
	// ClassNormal is unqualified success (0x9000).
	ClassNormal
	// ClassMoreData means the command succeeded and SW2 more response
	// bytes are available for retrieval (SW1 0x61).
	ClassMoreData
	// ClassWarning is a non-fatal warning (SW1 0x62 or 0x63).
	ClassWarning
	// ClassExecutionError means the card aborted execution
	// (SW1 0x64 to 0x66).
	ClassExecutionError
	// ClassCheckingError means the card rejected the command
	// (SW1 0x67 to 0x6F).
	ClassCheckingError
)

// String returns the lower-case name of the classification.
func (c Classification) String() string {
	switch c {
	case ClassNormal:
		return "normal"
	case ClassMoreData:
		return "more data available"
	case ClassWarning:
		return "warning"
	case ClassExecutionError:
		return "execution error"
	case ClassCheckingError:
		return "checking error"
	case ClassUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// Class maps the status word to its classification. The mapping is
// pure and total; unrecognized values classify as ClassUnknown.
func (sw StatusWord) Class() Classification {
	switch sw1 := sw.SW1(); {
	case sw == SWNoError:
		return ClassNormal
	case sw1 == sw1MoreData:
		return ClassMoreData
	case sw1 == sw1WarningNVUnchanged || sw1 == sw1WarningNVChanged:
		return ClassWarning
	case sw1 >= sw1FirstExecError && sw1 <= sw1LastExecError:
		return ClassExecutionError
	case sw1 >= sw1FirstCheckError && sw1 <= sw1LastCheckError:
		return ClassCheckingError
	default:
		return ClassUnknown
	}
}

// Remaining returns the number of response bytes still available on
// the card, or 0 when the status word does not report any.
func (sw StatusWord) Remaining() int {
	if sw.SW1() == sw1MoreData {
		return int(sw.SW2())
	}
	return 0
}

// IsWarning reports whether the status word is a warning. NVChanged
// distinguishes the two warning classes.
func (sw StatusWord) IsWarning() bool {
	return sw.Class() == ClassWarning
}

// NVChanged reports whether a warning status indicates that
// non-volatile memory was changed.
func (sw StatusWord) NVChanged() bool {
	return sw.SW1() == sw1WarningNVChanged
}

// IsError reports whether the status word is an execution or checking
// error.
func (sw StatusWord) IsError() bool {
	c := sw.Class()
	return c == ClassExecutionError || c == ClassCheckingError
}

// String formats the status word with its raw value and classification
// so a failing exchange can be diagnosed from the message alone.
func (sw StatusWord) String() string {
	return fmt.Sprintf("0x%04X (%s)", uint16(sw), sw.Class())
}
