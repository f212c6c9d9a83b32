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

// scicard is a small diagnostic tool for SCI2C smart cards: it runs
// the link handshake, prints the ATR and selects an applet.
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	sci2c "github.com/hostcard/go-sci2c"
	"github.com/hostcard/go-sci2c/apdu"
	"github.com/hostcard/go-sci2c/channel/i2c"
	"github.com/hostcard/go-sci2c/channel/uart"
)

var (
	flagDevice = flag.String("device", "/dev/i2c-1", "Bus device path (I2C bus or serial port of a bridge)")
	flagApplet = flag.String("applet", "Test", "Applet name to select after the handshake")
	flagDebug  = flag.Bool("debug", false, "Enable debug output")
)

// newChannel picks the channel backend from the device path: anything
// that looks like an I2C bus goes through the native backend, the rest
// is treated as the serial port of a UART-to-I2C bridge.
func newChannel(path string) (sci2c.Channel, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}
	if strings.Contains(strings.ToLower(path), "i2c") {
		ch, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open I2C channel on %s: %w", path, err)
		}
		return ch, nil
	}
	ch, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial channel on %s: %w", path, err)
	}
	return ch, nil
}

func run() error {
	ch, err := newChannel(*flagDevice)
	if err != nil {
		return err
	}

	session, err := sci2c.NewSession(ch)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	if err := session.Init(); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	fmt.Printf("ATR: %s\n", strings.ToUpper(hex.EncodeToString(session.ATR())))
	fmt.Printf("max data block code: %d\n", session.MaxDataBlockCode())

	// Select the applet by name and read back the status word plus up
	// to one byte of file control information.
	cmd := apdu.New(0x00, 0xA4, 0x04, 0x04, []byte(*flagApplet), 0)
	resp, err := session.SendAndReceive(cmd, 3)
	if err != nil {
		if ce := sci2c.IsCardError(err); ce != nil {
			return fmt.Errorf("applet %q not selectable: %w", *flagApplet, ce)
		}
		return fmt.Errorf("select failed: %w", err)
	}

	fmt.Printf("selected %q, status %s", *flagApplet, resp.SW())
	if payload := resp.Payload(); len(payload) > 0 {
		fmt.Printf(", payload %s", strings.ToUpper(hex.EncodeToString(payload)))
	}
	fmt.Println()
	return nil
}

func main() {
	flag.Parse()
	if *flagDebug {
		sci2c.SetDebugEnabled(true)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		// A wire trace, when present, is the fastest way to see what
		// the card actually said.
		if te := sci2c.GetTrace(err); te != nil {
			fmt.Fprintln(os.Stderr, te.FormatTrace())
		}
		os.Exit(1)
	}
}
