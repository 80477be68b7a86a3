// Copyright 2026 The Zaparoo Project Contributors.
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

package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleFrame is STX "0123456789" "89" CR LF ETX.
var sampleFrame = []byte{
	0x02,
	0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39,
	0x38, 0x39,
	0x0D, 0x0A, 0x03,
}

func cloneFrame() []byte {
	return bytes.Clone(sampleFrame)
}

func TestValidate_ValidFrame(t *testing.T) {
	t.Parallel()
	require.NoError(t, Validate(sampleFrame))
	assert.Equal(t, []byte("0123456789"), Payload(sampleFrame))
}

func TestValidate_WrongLength(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, 1, 15, 17, 100} {
		buf := make([]byte, n)
		copy(buf, sampleFrame)
		assert.ErrorIs(t, Validate(buf), ErrTooShort, "length %d", n)
	}
}

func TestValidate_BadFraming(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		offset int
	}{
		{name: "start marker", offset: 0},
		{name: "carriage return", offset: OffsetCR},
		{name: "line feed", offset: OffsetLF},
		{name: "end marker", offset: OffsetETX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := cloneFrame()
			buf[tt.offset] ^= 0xFF
			assert.ErrorIs(t, Validate(buf), ErrBadFraming)
		})
	}
}

func TestValidate_FramingCheckedBeforeChecksum(t *testing.T) {
	t.Parallel()
	buf := cloneFrame()
	buf[OffsetChecksum] = '0'
	buf[OffsetETX] = 0x00
	assert.ErrorIs(t, Validate(buf), ErrBadFraming)
}

func TestValidate_BadChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		checksum string
	}{
		{name: "zeroed", checksum: "00"},
		{name: "swapped nibbles", checksum: "98"},
		{name: "spec typo value", checksum: "06"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := cloneFrame()
			copy(buf[OffsetChecksum:], tt.checksum)
			assert.ErrorIs(t, Validate(buf), ErrBadChecksum)
		})
	}
}

func TestValidate_PayloadCorruption(t *testing.T) {
	t.Parallel()
	buf := cloneFrame()
	buf[OffsetPayload+3] = '4'
	assert.ErrorIs(t, Validate(buf), ErrBadChecksum)
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()
	ids := []string{"0123456789", "0F0368D2F5", "0000000000", "FFFFFFFFFF", "6A003E4B1C"}
	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			t.Parallel()
			buf, err := Encode([]byte(id))
			require.NoError(t, err)
			require.Len(t, buf, Length)
			require.NoError(t, Validate(buf))
			assert.Equal(t, id, string(Payload(buf)))
		})
	}
}

func TestEncode_MatchesReaderOutput(t *testing.T) {
	t.Parallel()
	buf, err := Encode([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, sampleFrame, buf)
}

func TestEncode_InvalidPayload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload string
	}{
		{name: "too short", payload: "01234"},
		{name: "too long", payload: "0123456789A"},
		{name: "lowercase", payload: "01234567ab"},
		{name: "non hex", payload: "01234567XY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Encode([]byte(tt.payload))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestPayload_ShortBuffer(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Payload([]byte{STX, '0', '1'}))
}
