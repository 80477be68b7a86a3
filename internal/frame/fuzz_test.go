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

import "testing"

// Run with: go test -fuzz=FuzzValidate -fuzztime=30s ./internal/frame/

// FuzzValidate feeds arbitrary captures to Validate. Any frame it accepts
// must carry the fixed markers and a matching checksum.
func FuzzValidate(f *testing.F) {
	f.Add(sampleFrame)
	f.Add([]byte{})
	f.Add([]byte{STX})
	f.Add([]byte{STX, '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '0', CR, LF, ETX})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, buf []byte) {
		if err := Validate(buf); err != nil {
			return
		}
		if len(buf) != Length || buf[0] != STX || buf[OffsetETX] != ETX {
			t.Fatalf("Validate accepted malformed frame % X", buf)
		}
		if Checksum(Payload(buf)) != BCDByte(buf[OffsetChecksum], buf[OffsetChecksum+1]) {
			t.Fatalf("Validate accepted frame with bad checksum % X", buf)
		}
	})
}

// FuzzEncode checks that every payload Encode accepts round-trips.
func FuzzEncode(f *testing.F) {
	f.Add([]byte("0123456789"))
	f.Add([]byte("ABCDEF0123"))
	f.Add([]byte("short"))

	f.Fuzz(func(t *testing.T, payload []byte) {
		buf, err := Encode(payload)
		if err != nil {
			return
		}
		if err := Validate(buf); err != nil {
			t.Fatalf("Encode(%q) produced invalid frame: %v", payload, err)
		}
		if string(Payload(buf)) != string(payload) {
			t.Fatalf("Payload round trip = %q, want %q", Payload(buf), payload)
		}
	})
}
