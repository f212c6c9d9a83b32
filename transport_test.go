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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig returns timing with no real delays for tests.
func fastConfig() *Config {
	return &Config{
		SettleDelay:    0,
		ResetGuardTime: 0,
		PollInterval:   0,
		PollAttempts:   3,
	}
}

func TestExchange(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	mock.SetReply(CmdReadATR, []byte{0x2F, 0x1D, 0xAA, 0xBB})
	tr := NewTransport(mock, fastConfig())

	in, err := tr.Exchange([]byte{CmdReadATR}, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2F, 0x1D, 0xAA, 0xBB}, in)

	writes := mock.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{CmdReadATR}, writes[0])
}

func TestExchangeShortReadLeavesZeroTail(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	mock.SetReply(CmdReadATR, []byte{0x2F, 0x1D, 0xAA, 0xBB})
	mock.SetShortRead(2)
	tr := NewTransport(mock, fastConfig())

	in, err := tr.Exchange([]byte{CmdReadATR}, 4)

	// Short availability is tolerated; the unread tail stays zero.
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2F, 0x1D, 0x00, 0x00}, in)
}

func TestExchangeWriteOnly(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	tr := NewTransport(mock, fastConfig())

	in, err := tr.Exchange([]byte{CmdWakeup}, 0)
	require.NoError(t, err)
	assert.Nil(t, in)
}

func TestExchangeChannelError(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	mock.SetError(CmdSoftReset, ErrChannelClosed)
	tr := NewTransport(mock, fastConfig())

	_, err := tr.Exchange([]byte{CmdSoftReset}, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelWrite)

	// Failures carry the wire trace for diagnosis.
	te := GetTrace(err)
	require.NotNil(t, te)
	assert.Equal(t, "mock", te.Bus)
}

func TestReadStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		reply []byte
		want  LinkStatus
	}{
		{name: "ready", reply: []byte{0x00, 0x00}, want: StatusReady},
		{name: "busy", reply: []byte{0x00, 0x10}, want: StatusBusy},
		{name: "exception raised", reply: []byte{0x00, 0x80}, want: StatusExceptionRaised},
		{name: "unexpected sequence", reply: []byte{0x00, 0xA0}, want: StatusUnexpectedSequence},
		{name: "invalid EDC", reply: []byte{0x00, 0xD0}, want: StatusInvalidEDC},
		{name: "low nibble ignored", reply: []byte{0xFF, 0x0F}, want: StatusReady},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := NewMockChannel()
			mock.SetReply(CmdReadStatus, tt.reply)
			tr := NewTransport(mock, fastConfig())

			got, err := tr.ReadStatus()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSendAPDUFraming(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	mock.SetReply(CmdMasterToSlaveData, []byte{0x00, 0x00})
	mock.SetReply(CmdReadStatus, []byte{0x00, 0x00})
	tr := NewTransport(mock, fastConfig())

	apduBytes := []byte{0x00, 0xA4, 0x04, 0x00}
	require.NoError(t, tr.SendAPDU(apduBytes))

	writes := mock.Writes()
	require.NotEmpty(t, writes)
	frame := writes[0]
	require.Len(t, frame, 2+len(apduBytes))
	assert.Equal(t, byte(0x00), frame[0], "first send carries sequence 0")
	assert.Equal(t, byte(len(apduBytes)), frame[1])
	assert.Equal(t, apduBytes, frame[2:])
}

func TestSendAPDUSequenceCounter(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	mock.SetReply(CmdMasterToSlaveData, []byte{0x00, 0x00})
	mock.SetReply(CmdReadStatus, []byte{0x00, 0x00})
	tr := NewTransport(mock, fastConfig())

	// Seven sends take the counter to 7, the eighth wraps it to 0.
	for i := 0; i < 8; i++ {
		require.NoError(t, tr.SendAPDU([]byte{0x00}))
		if i == 6 {
			assert.Equal(t, byte(7), tr.seq)
		}
	}
	assert.Equal(t, byte(0), tr.seq)

	// The ninth frame goes out with sequence 0 again.
	require.NoError(t, tr.SendAPDU([]byte{0x00}))
	var dataFrames [][]byte
	for _, w := range mock.Writes() {
		if SelectorOf(w[0]) == CmdMasterToSlaveData {
			dataFrames = append(dataFrames, w)
		}
	}
	require.Len(t, dataFrames, 9)
	assert.Equal(t, byte(0x00), dataFrames[8][0]>>seqShift&seqMask)
	assert.Equal(t, byte(0x07), dataFrames[6][0]>>seqShift&seqMask)
}

func TestSendAPDUStatusFault(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	mock.SetReply(CmdMasterToSlaveData, []byte{0x00, 0x00})
	mock.SetReply(CmdReadStatus, []byte{0x00, 0xA0})
	tr := NewTransport(mock, fastConfig())

	err := tr.SendAPDU([]byte{0x00})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportFault)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusUnexpectedSequence, te.Status)

	// The counter advances even when the card reports a fault.
	assert.Equal(t, byte(1), tr.seq)
}

func TestSendAPDUBusyExhaustsPollBudget(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	mock.SetReply(CmdMasterToSlaveData, []byte{0x00, 0x00})
	mock.SetReply(CmdReadStatus, []byte{0x00, 0x10})
	tr := NewTransport(mock, fastConfig())

	err := tr.SendAPDU([]byte{0x00})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCardBusy)
	assert.Equal(t, 3, mock.CallCount(CmdReadStatus))
}

func TestRecvAPDU(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	mock.SetReply(CmdSlaveToMasterData, []byte{0x02, 0xCA, 0x90, 0x00})
	tr := NewTransport(mock, fastConfig())

	raw, err := tr.RecvAPDU(4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xCA, 0x90, 0x00}, raw)
}

func TestMockChannelClosed(t *testing.T) {
	t.Parallel()
	mock := NewMockChannel()
	require.NoError(t, mock.Close())
	tr := NewTransport(mock, fastConfig())

	_, err := tr.Exchange([]byte{CmdWakeup}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChannelClosed) || errors.Is(err, ErrChannelWrite))
	assert.True(t, IsFatal(err) || errors.Is(err, ErrChannelWrite))
}
