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

import (
	"errors"
	"fmt"
)

// trailerLen is the size of the mandatory SW1 SW2 status trailer.
const trailerLen = 2

// ErrMalformedResponse indicates a response buffer too short to carry
// the mandatory status trailer.
var ErrMalformedResponse = errors.New("response shorter than status trailer")

// Response is a read-only view over a raw response APDU buffer. The
// final two bytes of the buffer are always SW1 SW2; everything before
// them is payload. The buffer is never copied or mutated; accessors
// return derived views into it.
type Response struct {
	raw []byte
}

// Parse wraps raw response bytes as a Response. It fails with
// ErrMalformedResponse when the buffer cannot contain a status trailer.
func Parse(raw []byte) (Response, error) {
	if len(raw) < trailerLen {
		return Response{}, fmt.Errorf("%w: got %d bytes", ErrMalformedResponse, len(raw))
	}
	return Response{raw: raw}, nil
}

// Bytes returns the underlying buffer, payload and trailer included.
func (r Response) Bytes() []byte {
	return r.raw
}

// Payload returns the response data preceding the status trailer. The
// slice aliases the parsed buffer and may be empty.
func (r Response) Payload() []byte {
	return r.raw[:len(r.raw)-trailerLen]
}

// PayloadLen returns the number of payload bytes.
func (r Response) PayloadLen() int {
	return len(r.raw) - trailerLen
}

// SW1 returns the first status byte.
func (r Response) SW1() byte {
	return r.raw[len(r.raw)-2]
}

// SW2 returns the second status byte.
func (r Response) SW2() byte {
	return r.raw[len(r.raw)-1]
}

// SW returns the combined status word.
func (r Response) SW() StatusWord {
	return NewStatusWord(r.SW1(), r.SW2())
}

// String returns a short diagnostic summary of the response.
func (r Response) String() string {
	return fmt.Sprintf("payload %d bytes, status %s", r.PayloadLen(), r.SW())
}
