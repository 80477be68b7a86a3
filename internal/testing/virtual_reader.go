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

// Package testing provides a wire-level ID-12LA simulator for exercising
// the read cycle without hardware.
package testing

import (
	"sync"
	"time"

	"github.com/ZaparooProject/go-id12la"
	"github.com/ZaparooProject/go-id12la/internal/frame"
)

// Fault selects a transmission defect to inject into the next frames
type Fault int

const (
	// FaultNone sends well-formed frames
	FaultNone Fault = iota
	// FaultBadChecksum replaces the checksum digits with a wrong value
	FaultBadChecksum
	// FaultMissingETX replaces the end marker with a non-marker byte
	FaultMissingETX
	// FaultBadStart sends the start marker twice, shifting the rest of
	// the frame by one byte
	FaultBadStart
	// FaultDroppedBytes drops three payload bytes, as a UART overrun would
	FaultDroppedBytes
)

// scheduledByte is a byte that arrives on the wire at a given time
type scheduledByte struct {
	at time.Time
	b  byte
}

// VirtualReader simulates an ID-12LA module. It implements both
// id12la.Transport and id12la.Lines: releasing reset (a Low to High edge)
// with a tag in range makes it transmit one frame, optionally wrapped in
// noise and trailer bytes.
type VirtualReader struct {
	now          func() time.Time
	readErr      error
	tirErr       error
	payload      []byte
	raw          []byte
	noise        []byte
	trailer      []byte
	rx           []byte
	scheduled    []scheduledByte
	resetHistory []id12la.Level
	readDelay    time.Duration
	byteTime     time.Duration
	baud         int
	transmits    int
	fault        Fault
	mu           sync.Mutex
	resetLevel   id12la.Level
	inRange      bool
	begun        bool
	closed       bool
	setup        bool
}

// NewVirtualReader creates a simulator with no tag in range that delivers
// frames instantly.
func NewVirtualReader() *VirtualReader {
	return &VirtualReader{
		now:        time.Now,
		resetLevel: id12la.Low,
	}
}

// PresentTag places a tag with the given 10 digit identifier in range
func (v *VirtualReader) PresentTag(id string) error {
	if _, err := frame.Encode([]byte(id)); err != nil {
		return err //nolint:wrapcheck // frame error already describes the payload
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.payload = []byte(id)
	v.raw = nil
	v.inRange = true
	return nil
}

// PresentRaw places a tag in range that makes the reader transmit exactly
// raw instead of an encoded frame.
func (v *VirtualReader) PresentRaw(raw []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.raw = append([]byte(nil), raw...)
	v.payload = nil
	v.inRange = true
}

// RemoveTag takes the tag out of range
func (v *VirtualReader) RemoveTag() {
	v.mu.Lock()
	v.inRange = false
	v.mu.Unlock()
}

// SetTagInRange drives the tag-in-range line without changing the tag
func (v *VirtualReader) SetTagInRange(inRange bool) {
	v.mu.Lock()
	v.inRange = inRange
	v.mu.Unlock()
}

// SetNoise sets bytes transmitted before each frame
func (v *VirtualReader) SetNoise(noise ...byte) {
	v.mu.Lock()
	v.noise = append([]byte(nil), noise...)
	v.mu.Unlock()
}

// SetTrailer sets bytes transmitted after each frame
func (v *VirtualReader) SetTrailer(trailer ...byte) {
	v.mu.Lock()
	v.trailer = append([]byte(nil), trailer...)
	v.mu.Unlock()
}

// SetFault selects the defect injected into subsequent frames
func (v *VirtualReader) SetFault(f Fault) {
	v.mu.Lock()
	v.fault = f
	v.mu.Unlock()
}

// SetTiming sets the delay between reset release and the first byte, and
// the wire time of each byte. Zero values deliver everything instantly.
func (v *VirtualReader) SetTiming(readDelay, byteTime time.Duration) {
	v.mu.Lock()
	v.readDelay = readDelay
	v.byteTime = byteTime
	v.mu.Unlock()
}

// SetReadError makes ReadByte fail with err
func (v *VirtualReader) SetReadError(err error) {
	v.mu.Lock()
	v.readErr = err
	v.mu.Unlock()
}

// SetTagInRangeError makes TagInRange fail with err
func (v *VirtualReader) SetTagInRangeError(err error) {
	v.mu.Lock()
	v.tirErr = err
	v.mu.Unlock()
}

// Inject appends bytes straight into the receive buffer, as stray line
// noise between cycles would.
func (v *VirtualReader) Inject(data ...byte) {
	v.mu.Lock()
	v.rx = append(v.rx, data...)
	v.mu.Unlock()
}

// id12la.Transport

// Begin implements id12la.Transport
func (v *VirtualReader) Begin(baud int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.baud = baud
	v.begun = true
	v.closed = false
	return nil
}

// Available implements id12la.Transport
func (v *VirtualReader) Available() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, id12la.ErrTransportClosed
	}
	v.deliverLocked()
	return len(v.rx), nil
}

// ReadByte implements id12la.Transport
func (v *VirtualReader) ReadByte() (byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0, id12la.ErrTransportClosed
	}
	if v.readErr != nil {
		return 0, v.readErr
	}
	v.deliverLocked()
	if len(v.rx) == 0 {
		return 0, id12la.ErrNoData
	}
	b := v.rx[0]
	v.rx = v.rx[1:]
	return b, nil
}

// Read implements io.Reader over the serial output, so the simulator can
// sit behind a SerialPort and a real UART transport.
func (v *VirtualReader) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deliverLocked()
	n := copy(p, v.rx)
	v.rx = v.rx[n:]
	return n, nil
}

// Discard drops bytes already received but not yet read
func (v *VirtualReader) Discard() {
	v.mu.Lock()
	v.deliverLocked()
	v.rx = nil
	v.mu.Unlock()
}

// Close implements id12la.Transport and id12la.Lines
func (v *VirtualReader) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

// Type implements id12la.Transport
func (*VirtualReader) Type() id12la.TransportType {
	return id12la.TransportMock
}

// id12la.Lines

// Setup implements id12la.Lines
func (v *VirtualReader) Setup() error {
	v.mu.Lock()
	v.setup = true
	v.mu.Unlock()
	return nil
}

// SetReset implements id12la.Lines. Releasing reset starts a transmission
// if a tag is in range; asserting it aborts bytes not yet on the wire.
func (v *VirtualReader) SetReset(level id12la.Level) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev := v.resetLevel
	v.resetLevel = level
	v.resetHistory = append(v.resetHistory, level)

	switch {
	case prev == id12la.Low && level == id12la.High:
		if v.inRange {
			v.scheduleLocked()
		}
	case level == id12la.Low:
		v.deliverLocked()
		v.scheduled = nil
	}
	return nil
}

// TagInRange implements id12la.Lines
func (v *VirtualReader) TagInRange() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tirErr != nil {
		return false, v.tirErr
	}
	return v.inRange, nil
}

// Inspection helpers

// ResetHistory returns every level written to the reset line
func (v *VirtualReader) ResetHistory() []id12la.Level {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]id12la.Level(nil), v.resetHistory...)
}

// ResetLevel returns the current reset line level
func (v *VirtualReader) ResetLevel() id12la.Level {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resetLevel
}

// Transmissions returns how many frames have been put on the wire
func (v *VirtualReader) Transmissions() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transmits
}

// Pending returns the number of bytes buffered or still in flight
func (v *VirtualReader) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.rx) + len(v.scheduled)
}

// Baud returns the rate passed to Begin
func (v *VirtualReader) Baud() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.baud
}

// IsSetup reports whether Setup was called
func (v *VirtualReader) IsSetup() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setup
}

// scheduleLocked queues one transmission starting after readDelay
func (v *VirtualReader) scheduleLocked() {
	wire := v.wireBytesLocked()
	if len(wire) == 0 {
		return
	}

	start := v.now().Add(v.readDelay)
	for i, b := range wire {
		v.scheduled = append(v.scheduled, scheduledByte{
			at: start.Add(time.Duration(i+1) * v.byteTime),
			b:  b,
		})
	}
	v.transmits++
	v.deliverLocked()
}

// deliverLocked moves bytes whose arrival time has passed into rx
func (v *VirtualReader) deliverLocked() {
	now := v.now()
	i := 0
	for ; i < len(v.scheduled); i++ {
		if v.scheduled[i].at.After(now) {
			break
		}
		v.rx = append(v.rx, v.scheduled[i].b)
	}
	v.scheduled = v.scheduled[i:]
}

// wireBytesLocked builds noise + frame + trailer with the current fault
func (v *VirtualReader) wireBytesLocked() []byte {
	var body []byte
	switch {
	case v.raw != nil:
		body = append([]byte(nil), v.raw...)
	case v.payload != nil:
		encoded, err := frame.Encode(v.payload)
		if err != nil {
			return nil
		}
		body = applyFault(encoded, v.fault)
	default:
		return nil
	}

	wire := make([]byte, 0, len(v.noise)+len(body)+len(v.trailer))
	wire = append(wire, v.noise...)
	wire = append(wire, body...)
	wire = append(wire, v.trailer...)
	return wire
}

// applyFault corrupts an encoded frame
func applyFault(buf []byte, f Fault) []byte {
	switch f {
	case FaultBadChecksum:
		if buf[frame.OffsetChecksum] == '0' && buf[frame.OffsetChecksum+1] == '0' {
			copy(buf[frame.OffsetChecksum:], "FF")
		} else {
			copy(buf[frame.OffsetChecksum:], "00")
		}
	case FaultMissingETX:
		buf[frame.OffsetETX] = 'X'
	case FaultBadStart:
		shifted := make([]byte, 0, len(buf))
		shifted = append(shifted, frame.STX)
		shifted = append(shifted, buf[:len(buf)-1]...)
		buf = shifted
	case FaultDroppedBytes:
		dropped := make([]byte, 0, len(buf)-3)
		dropped = append(dropped, buf[:4]...)
		dropped = append(dropped, buf[7:]...)
		buf = dropped
	case FaultNone:
	}
	return buf
}
