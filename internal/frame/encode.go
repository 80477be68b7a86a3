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

import "fmt"

// isHexDigit reports whether b is a digit the reader can emit.
func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'F')
}

// Encode builds a well-formed frame around a 10-digit uppercase hex payload,
// computing the checksum the way the reader does.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) != PayloadLength {
		return nil, fmt.Errorf("%w: got %d digits, want %d", ErrInvalidPayload, len(payload), PayloadLength)
	}
	for i, b := range payload {
		if !isHexDigit(b) {
			return nil, fmt.Errorf("%w: byte 0x%02X at %d is not an uppercase hex digit", ErrInvalidPayload, b, i)
		}
	}

	buf := make([]byte, Length)
	buf[0] = STX
	copy(buf[OffsetPayload:], payload)

	const digits = "0123456789ABCDEF"
	chk := Checksum(payload)
	buf[OffsetChecksum] = digits[chk>>4]
	buf[OffsetChecksum+1] = digits[chk&0x0F]

	buf[OffsetCR] = CR
	buf[OffsetLF] = LF
	buf[OffsetETX] = ETX
	return buf, nil
}
