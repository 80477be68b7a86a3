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
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ErrPortClosed is returned by reads on a closed SerialPort
var ErrPortClosed = errors.New("port is closed")

// discarder is implemented by backends that can drop bytes already on
// the wire, as a serial input buffer reset does.
type discarder interface {
	Discard()
}

// SerialPort is an in-memory serial.Port. Reads follow go.bug.st/serial
// semantics: they block until data arrives or the read timeout passes,
// and a timeout returns 0, nil.
type SerialPort struct {
	backend     *JitteryReader
	source      io.Reader
	fed         *bytes.Buffer
	readErr     error
	mode        *serial.Mode
	mu          sync.Mutex
	readTimeout time.Duration
	resets      int
	closed      bool
}

// NewSerialPort creates a port that delivers bytes passed to Feed
func NewSerialPort() *SerialPort {
	return NewSerialPortWithSource(nil, JitterConfig{})
}

// NewSerialPortWithSource creates a port whose receive side is fed by
// source, such as a VirtualReader, delivered with the given jitter.
func NewSerialPortWithSource(source io.Reader, config JitterConfig) *SerialPort {
	p := &SerialPort{
		source:      source,
		fed:         &bytes.Buffer{},
		readTimeout: serial.NoTimeout,
	}
	p.backend = NewJitteryReader(readerFunc(p.pull), config)
	return p
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// pull drains fed bytes first, then the source. Called with mu held.
func (p *SerialPort) pull(buf []byte) (int, error) {
	if p.fed.Len() > 0 {
		return p.fed.Read(buf) //nolint:wrapcheck // bytes.Buffer only returns io.EOF when empty
	}
	if p.source == nil {
		return 0, nil
	}
	n, err := p.source.Read(buf)
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err //nolint:wrapcheck // Pass-through wrapper
}

// Feed queues bytes for the next reads
func (p *SerialPort) Feed(data ...byte) {
	p.mu.Lock()
	p.fed.Write(data)
	p.mu.Unlock()
}

// SetReadError makes every following Read fail with err, as an unplugged
// adapter would.
func (p *SerialPort) SetReadError(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

// Mode returns the mode the port was last configured with
func (p *SerialPort) Mode() *serial.Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// InputResets returns how many times ResetInputBuffer was called
func (p *SerialPort) InputResets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// IsClosed reports whether Close was called
func (p *SerialPort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// SetMode implements serial.Port
func (p *SerialPort) SetMode(mode *serial.Mode) error {
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	return nil
}

// Read implements serial.Port
func (p *SerialPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	timeout := p.readTimeout
	p.mu.Unlock()

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, ErrPortClosed
		}
		if p.readErr != nil {
			err := p.readErr
			p.mu.Unlock()
			return 0, err
		}
		n, err := p.backend.Read(buf)
		p.mu.Unlock()
		if n > 0 || err != nil {
			return n, err
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(200 * time.Microsecond)
	}
}

// Write implements serial.Port. The reader never receives commands, so
// written bytes are discarded.
func (p *SerialPort) Write(data []byte) (int, error) {
	return len(data), nil
}

// Drain implements serial.Port
func (*SerialPort) Drain() error {
	return nil
}

// ResetInputBuffer implements serial.Port
func (p *SerialPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	p.fed.Reset()
	p.backend.ClearBuffer()
	if d, ok := p.source.(discarder); ok {
		d.Discard()
	}
	return nil
}

// ResetOutputBuffer implements serial.Port
func (*SerialPort) ResetOutputBuffer() error {
	return nil
}

// SetDTR implements serial.Port
func (*SerialPort) SetDTR(bool) error {
	return nil
}

// SetRTS implements serial.Port
func (*SerialPort) SetRTS(bool) error {
	return nil
}

// GetModemStatusBits implements serial.Port
func (*SerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

// SetReadTimeout implements serial.Port
func (p *SerialPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.readTimeout = t
	p.mu.Unlock()
	return nil
}

// Close implements serial.Port
func (p *SerialPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Break implements serial.Port
func (*SerialPort) Break(time.Duration) error {
	return nil
}

var _ serial.Port = (*SerialPort)(nil)
