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

// Package frame implements the fixed 16-byte ASCII frame emitted by
// ID-12LA family readers:
//
//	[STX][10 hex payload][2 hex checksum][CR][LF][ETX]
package frame

// Frame markers
const (
	STX = 0x02 // Start of text
	ETX = 0x03 // End of text
	CR  = 0x0D // Carriage return
	LF  = 0x0A // Line feed
)

// Frame size
const (
	// PayloadLength is the number of ASCII hex digits of tag data.
	PayloadLength = 10
	// ChecksumLength is the number of ASCII hex digits of checksum.
	ChecksumLength = 2
	// Length is STX + payload + checksum + CR + LF + ETX.
	Length = 1 + PayloadLength + ChecksumLength + 3
)

// Fixed field offsets within a frame
const (
	OffsetPayload  = 1
	OffsetChecksum = OffsetPayload + PayloadLength
	OffsetCR       = OffsetChecksum + ChecksumLength
	OffsetLF       = OffsetCR + 1
	OffsetETX      = OffsetLF + 1
)
