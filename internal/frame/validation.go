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

import "errors"

// Validation errors, in the order Validate checks for them
var (
	ErrTooShort       = errors.New("frame too short")
	ErrBadFraming     = errors.New("bad framing characters")
	ErrBadChecksum    = errors.New("bad checksum")
	ErrInvalidPayload = errors.New("invalid tag payload")
)

// Validate checks a captured frame. A frame is trusted only when its
// length, all four marker bytes and its checksum are correct; the first
// failing check is reported.
func Validate(buf []byte) error {
	if len(buf) != Length {
		return ErrTooShort
	}

	if buf[0] != STX {
		return ErrBadFraming
	}
	if buf[OffsetCR] != CR || buf[OffsetLF] != LF || buf[OffsetETX] != ETX {
		return ErrBadFraming
	}

	computed := Checksum(buf[OffsetPayload:OffsetChecksum])
	sent := BCDByte(buf[OffsetChecksum], buf[OffsetChecksum+1])
	if computed != sent {
		return ErrBadChecksum
	}

	return nil
}

// Payload returns a copy of the payload digits of a validated frame.
// It returns nil if buf is not long enough to hold a payload.
func Payload(buf []byte) []byte {
	if len(buf) < OffsetChecksum {
		return nil
	}
	payload := make([]byte, PayloadLength)
	copy(payload, buf[OffsetPayload:OffsetChecksum])
	return payload
}
