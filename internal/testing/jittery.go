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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures how a SerialPort hands bytes to its reader.
type JitterConfig struct {
	// MaxLatency is the upper bound of a random delay before each read
	MaxLatency time.Duration
	// FragmentMinBytes is the smallest fragment returned when fragmenting
	FragmentMinBytes int
	// Seed makes the delays and fragment sizes reproducible when non-zero
	Seed uint64
	// FragmentReads splits buffered data into random sized reads
	FragmentReads bool
}

// DefaultJitterConfig returns a configuration resembling a USB serial
// bridge under load.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryReader wraps an io.Reader so bytes arrive late and in fragments,
// the way an FTDI or CH340 bridge delivers them. Data read from the
// backend is buffered so fragmentation never loses bytes.
type JitteryReader struct {
	backend io.Reader
	rng     *rand.Rand
	readBuf []byte
	config  JitterConfig
}

// NewJitteryReader wraps backend with jitter simulation
func NewJitteryReader(backend io.Reader, config JitterConfig) *JitteryReader {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}

	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}

	return &JitteryReader{
		backend: backend,
		config:  config,
		rng:     rng,
		readBuf: make([]byte, 0, 64),
	}
}

// Read returns between FragmentMinBytes and len(buf) bytes after an
// optional random delay. It returns 0, nil when the backend has nothing.
func (j *JitteryReader) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		if delay := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		var tmp [64]byte
		n, err := j.backend.Read(tmp[:])
		if n > 0 {
			j.readBuf = append(j.readBuf, tmp[:n]...)
		}
		if err != nil && n == 0 {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
	}
	if len(j.readBuf) == 0 {
		return 0, nil
	}

	toReturn := min(len(j.readBuf), len(buf))
	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		toReturn = j.config.FragmentMinBytes + j.rng.IntN(toReturn-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	return toReturn, nil
}

// Buffered returns the number of bytes held back by fragmentation
func (j *JitteryReader) Buffered() int {
	return len(j.readBuf)
}

// ClearBuffer discards bytes held back by fragmentation
func (j *JitteryReader) ClearBuffer() {
	j.readBuf = j.readBuf[:0]
}
