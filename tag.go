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

package id12la

import (
	"encoding/hex"
	"fmt"

	"github.com/ZaparooProject/go-id12la/internal/frame"
)

// TagID is the 10 character hex identifier sent by the reader. The first
// two digits are the manufacturer/version byte, the remaining eight the
// card serial.
type TagID string

func (t TagID) String() string {
	return string(t)
}

// Valid reports whether t has the reader's identifier shape: exactly 10
// uppercase hex digits.
func (t TagID) Valid() bool {
	if len(t) != frame.PayloadLength {
		return false
	}
	for i := range len(t) {
		c := t[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Bytes decodes the identifier into its 5 data bytes
func (t TagID) Bytes() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: tag id %q", ErrInvalidParameter, string(t))
	}
	data, err := hex.DecodeString(string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tag id: %w", err)
	}
	return data, nil
}
