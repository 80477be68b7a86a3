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
	"sync"
)

// Transport is the byte-oriented serial channel the reader transmits on.
// It mirrors a microcontroller UART: received bytes accumulate in a
// buffer that can be polled for its size and read one byte at a time.
type Transport interface {
	// Begin opens the channel at the given baud rate
	Begin(baud int) error

	// Available returns the number of received bytes waiting to be read
	Available() (int, error)

	// ReadByte returns the next buffered byte without blocking.
	// It returns ErrNoData when the buffer is empty.
	ReadByte() (byte, error)

	// Close closes the channel
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// Flusher is implemented by transports that can discard all pending input
// in one call. Transports without it are drained byte by byte.
type Flusher interface {
	Flush() error
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents a UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// Level is the logic level of a GPIO line
type Level bool

const (
	// Low is logic 0
	Low Level = false
	// High is logic 1
	High Level = true
)

func (l Level) String() string {
	if l {
		return "High"
	}
	return "Low"
}

// Lines drives the reader's control pins: the reset line (output, held
// Low while the reader is idle) and the tag-in-range line (input).
type Lines interface {
	// Setup configures pin directions
	Setup() error

	// SetReset drives the reset line
	SetReset(level Level) error

	// TagInRange reports whether the tag-in-range line is asserted
	TagInRange() (bool, error)

	// Close releases the pins
	Close() error
}

// MockTransport provides a mock implementation of Transport for testing.
// Bytes queued with Feed become available immediately.
type MockTransport struct {
	beginErr error
	readErr  error
	rx       []byte
	baud     int
	reads    int
	mu       sync.Mutex
	begun    bool
	closed   bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Begin implements Transport interface
func (m *MockTransport) Begin(baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return m.beginErr
	}
	m.baud = baud
	m.begun = true
	m.closed = false
	return nil
}

// Available implements Transport interface
func (m *MockTransport) Available() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrTransportClosed
	}
	return len(m.rx), nil
}

// ReadByte implements Transport interface
func (m *MockTransport) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrTransportClosed
	}
	if m.readErr != nil {
		return 0, m.readErr
	}
	if len(m.rx) == 0 {
		return 0, ErrNoData
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	m.reads++
	return b, nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// Feed appends bytes to the receive buffer
func (m *MockTransport) Feed(data ...byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()
}

// SetBeginError configures an error to be returned by Begin
func (m *MockTransport) SetBeginError(err error) {
	m.mu.Lock()
	m.beginErr = err
	m.mu.Unlock()
}

// SetReadError configures an error to be returned by ReadByte
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// Baud returns the baud rate passed to Begin
func (m *MockTransport) Baud() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baud
}

// Pending returns the number of unread bytes
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

// ReadCount returns how many bytes have been read
func (m *MockTransport) ReadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// MockLines provides a mock implementation of Lines for testing
type MockLines struct {
	resetErr error
	tirErr   error
	history  []Level
	mu       sync.Mutex
	present  bool
	setup    bool
	closed   bool
}

// NewMockLines creates mock lines with the reset line Low and no tag
func NewMockLines() *MockLines {
	return &MockLines{}
}

// Setup implements Lines interface
func (m *MockLines) Setup() error {
	m.mu.Lock()
	m.setup = true
	m.mu.Unlock()
	return nil
}

// SetReset implements Lines interface
func (m *MockLines) SetReset(level Level) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.history = append(m.history, level)
	return nil
}

// TagInRange implements Lines interface
func (m *MockLines) TagInRange() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tirErr != nil {
		return false, m.tirErr
	}
	return m.present, nil
}

// Close implements Lines interface
func (m *MockLines) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Test helper methods

// SetTagPresent sets the tag-in-range line
func (m *MockLines) SetTagPresent(present bool) {
	m.mu.Lock()
	m.present = present
	m.mu.Unlock()
}

// SetResetError configures an error to be returned by SetReset
func (m *MockLines) SetResetError(err error) {
	m.mu.Lock()
	m.resetErr = err
	m.mu.Unlock()
}

// SetTagInRangeError configures an error to be returned by TagInRange
func (m *MockLines) SetTagInRangeError(err error) {
	m.mu.Lock()
	m.tirErr = err
	m.mu.Unlock()
}

// ResetHistory returns every level written to the reset line
func (m *MockLines) ResetHistory() []Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Level, len(m.history))
	copy(out, m.history)
	return out
}

// ResetLevel returns the last level written to the reset line
func (m *MockLines) ResetLevel() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return Low
	}
	return m.history[len(m.history)-1]
}

// IsSetup reports whether Setup was called
func (m *MockLines) IsSetup() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setup
}
