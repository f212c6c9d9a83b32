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

import "testing"

// Not parallel: debugEnabled is package state.
func TestSetDebugEnabled(t *testing.T) {
	orig := debugEnabled
	defer SetDebugEnabled(orig)

	SetDebugEnabled(true)
	if !debugEnabled {
		t.Fatal("debug should be enabled")
	}
	Debugf("formatted %d", 42)
	Debugln("plain")

	SetDebugEnabled(false)
	if debugEnabled {
		t.Fatal("debug should be disabled")
	}
	Debugf("suppressed")
}
