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

// HexValue maps an uppercase ASCII hex digit to its 4-bit value.
// Any other byte, lowercase letters included, maps to 0. The reader only
// ever emits uppercase digits, so this is a silent fallback rather than
// an error.
func HexValue(b byte) byte {
	switch {
	case b >= '0' && b <= '9':
		return b - '0'
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10
	default:
		return 0
	}
}

// BCDByte packs two ASCII hex digits into one byte, hi in the high nibble.
func BCDByte(hi, lo byte) byte {
	return HexValue(hi)<<4 | HexValue(lo)
}

// Checksum XORs the BCD value of each consecutive digit pair in payload.
// A trailing odd digit is ignored.
func Checksum(payload []byte) byte {
	chk := byte(0)
	for i := 0; i+1 < len(payload); i += 2 {
		chk ^= BCDByte(payload[i], payload[i+1])
	}
	return chk
}
