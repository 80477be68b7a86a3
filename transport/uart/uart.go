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

// Package uart implements the id12la.Transport interface on a serial port.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-id12la"
	"go.bug.st/serial"
)

const (
	// DefaultBufferSize is the receive buffer capacity. It holds several
	// frames so a slow poller never loses a whole transmission.
	DefaultBufferSize = 256

	readChunkSize = 64
)

// Transport implements id12la.Transport over a go.bug.st/serial port. A
// receive goroutine moves bytes from the port into a bounded buffer,
// giving the reader a non-blocking byte-available view like a UART FIFO.
type Transport struct {
	port     serial.Port
	open     func(name string, mode *serial.Mode) (serial.Port, error)
	done     chan struct{}
	readErr  error
	portName string
	rx       []byte
	wg       sync.WaitGroup
	mu       sync.Mutex
	capacity int
	dropped  int
	begun    bool
	closed   bool
}

// Option configures a Transport
type Option func(*Transport)

// WithBufferSize sets the receive buffer capacity
func WithBufferSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.capacity = n
		}
	}
}

// WithPortOpener replaces serial.Open, for tests and for ports that need
// extra setup before use.
func WithPortOpener(open func(name string, mode *serial.Mode) (serial.Port, error)) Option {
	return func(t *Transport) {
		if open != nil {
			t.open = open
		}
	}
}

// New creates a UART transport for portName. The port is opened by Begin.
func New(portName string, opts ...Option) (*Transport, error) {
	if portName == "" {
		return nil, fmt.Errorf("%w: empty port name", id12la.ErrInvalidParameter)
	}

	t := &Transport{
		portName: portName,
		open:     serial.Open,
		capacity: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// pollTimeout is how long one port read blocks before the receive loop
// checks for shutdown.
func pollTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// Begin opens the port at baud, 8N1, and starts receiving
func (t *Transport) Begin(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return id12la.ErrTransportClosed
	}
	if t.begun {
		return nil
	}

	port, err := t.open(t.portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open UART port %s: %w", t.portName, classifyPortError(err))
	}

	if err := port.SetReadTimeout(pollTimeout()); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	t.port = port
	t.done = make(chan struct{})
	t.begun = true

	t.wg.Add(1)
	go t.receiveLoop(port, t.done)

	id12la.Debugf("UART %s open at %d baud", t.portName, baud)
	return nil
}

// receiveLoop copies bytes from the port into the receive buffer until
// Close or a port error.
func (t *Transport) receiveLoop(port serial.Port, done <-chan struct{}) {
	defer t.wg.Done()

	chunk := make([]byte, readChunkSize)
	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := port.Read(chunk)
		if n > 0 {
			t.store(chunk[:n])
		}
		if err == nil {
			continue
		}
		if isInterruptedSystemCall(err) {
			continue
		}

		select {
		case <-done:
			return
		default:
		}

		t.mu.Lock()
		t.readErr = classifyPortError(err)
		t.mu.Unlock()
		id12la.Debugf("UART %s receive stopped: %v", t.portName, err)
		return
	}
}

// store appends data, dropping the oldest bytes on overflow
func (t *Transport) store(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rx = append(t.rx, data...)
	if over := len(t.rx) - t.capacity; over > 0 {
		t.dropped += over
		t.rx = append(t.rx[:0], t.rx[over:]...)
		id12la.Debugf("UART %s receive overflow, dropped %d bytes", t.portName, over)
	}
}

// checkLocked returns the error that Available and ReadByte report
// when the buffer cannot be used.
func (t *Transport) checkLocked() error {
	switch {
	case t.closed:
		return id12la.ErrTransportClosed
	case !t.begun:
		return id12la.ErrNotInitialized
	case t.readErr != nil && len(t.rx) == 0:
		return fmt.Errorf("UART %s read failed: %w", t.portName, t.readErr)
	}
	return nil
}

// Available returns the number of received bytes not yet read
func (t *Transport) Available() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLocked(); err != nil {
		return 0, err
	}
	return len(t.rx), nil
}

// ReadByte returns the oldest received byte, or id12la.ErrNoData
func (t *Transport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLocked(); err != nil {
		return 0, err
	}
	if len(t.rx) == 0 {
		return 0, id12la.ErrNoData
	}
	b := t.rx[0]
	t.rx = t.rx[1:]
	return b, nil
}

// Flush discards the receive buffer and the driver's input queue
func (t *Transport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkLocked(); err != nil {
		return err
	}
	t.rx = t.rx[:0]
	return t.resetInputWithRetry()
}

// resetInputWithRetry retries input resets interrupted by a signal
func (t *Transport) resetInputWithRetry() error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.ResetInputBuffer()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}
		return fmt.Errorf("UART %s input reset failed: %w", t.portName, err)
	}

	return fmt.Errorf("UART %s input reset failed after %d retries", t.portName, maxRetries)
}

// Close stops the receive goroutine and closes the port
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	port := t.port
	done := t.done
	t.mu.Unlock()

	if done != nil {
		close(done)
	}

	var err error
	if port != nil {
		if closeErr := port.Close(); closeErr != nil {
			err = fmt.Errorf("UART close failed: %w", closeErr)
		}
	}
	t.wg.Wait()
	return err
}

// Type returns the transport type
func (*Transport) Type() id12la.TransportType {
	return id12la.TransportUART
}

// PortName returns the device path this transport was created for
func (t *Transport) PortName() string {
	return t.portName
}

// Dropped returns the number of bytes lost to receive buffer overflow
func (t *Transport) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// classifyPortError marks errors that mean the adapter is gone so
// id12la.IsFatal recognizes them.
func classifyPortError(err error) error {
	var code serial.PortErrorCode
	var portErr *serial.PortError
	var portErrVal serial.PortError
	switch {
	case errors.As(err, &portErr):
		code = portErr.Code()
	case errors.As(err, &portErrVal):
		code = portErrVal.Code()
	default:
		return err
	}

	//nolint:exhaustive // only disconnection codes are fatal
	switch code {
	case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
		return fmt.Errorf("%w: %w", id12la.ErrDeviceNotFound, err)
	default:
		return err
	}
}

var (
	_ id12la.Transport = (*Transport)(nil)
	_ id12la.Flusher   = (*Transport)(nil)
)
