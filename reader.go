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

// Package id12la reads 125 kHz tag identifiers from an ID-Innovations
// ID-12LA module. A Reader arms the module through its reset line, waits
// for the tag-in-range signal and decodes the 16-byte serial frame.
package id12la

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-id12la/internal/frame"
	"github.com/ZaparooProject/go-id12la/internal/syncutil"
)

// maxResyncBytes caps how many noise bytes are skipped looking for STX
const maxResyncBytes = 4 * frame.Length

// Reader drives one ID-12LA reader: it owns the reset and tag-in-range
// lines, the serial channel and the frame buffer for a single read cycle.
//
// Thread Safety: Read, Init and Close are serialized. A second Read blocks
// until the cycle in progress has returned, since the frame buffer is
// reused for every cycle.
type Reader struct {
	transport   Transport
	lines       Lines
	config      *Config
	mu          syncutil.Mutex
	buf         [frame.Length]byte
	initialized bool
	closed      bool
}

// New creates a reader on the given transport and control lines
func New(transport Transport, lines Lines, opts ...Option) (*Reader, error) {
	if transport == nil || lines == nil {
		return nil, fmt.Errorf("%w: transport and lines are required", ErrInvalidParameter)
	}

	r := &Reader{
		transport: transport,
		lines:     lines,
		config:    DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}

// Config returns a copy of the reader configuration
func (r *Reader) Config() Config {
	return *r.config
}

// Transport returns the underlying transport
func (r *Reader) Transport() Transport {
	return r.transport
}

// Init opens the transport at the configured baud rate, configures the
// control lines and parks the reader in reset.
func (r *Reader) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrTransportClosed
	}

	if err := r.transport.Begin(r.config.BaudRate); err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}
	if err := r.lines.Setup(); err != nil {
		return fmt.Errorf("failed to set up control lines: %w", err)
	}
	if err := r.lines.SetReset(Low); err != nil {
		return fmt.Errorf("failed to park reader in reset: %w", err)
	}
	if err := r.flush(); err != nil {
		return err
	}

	r.initialized = true
	Debugf("reader initialized at %d baud on %s transport", r.config.BaudRate, r.transport.Type())
	return nil
}

// Read performs one read cycle and returns the tag in range. Failures are
// returned as *ReadError; use KindOf to classify them. The reset line is
// back at its idle level whenever Read returns.
func (r *Reader) Read(ctx context.Context) (tag TagID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrTransportClosed
	}
	if !r.initialized {
		return "", ErrNotInitialized
	}

	defer func() {
		idleErr := r.restoreIdle()
		if idleErr == nil {
			return
		}
		tag = ""
		if err == nil {
			err = idleErr
		} else {
			err = errors.Join(err, idleErr)
		}
	}()

	tag, err = r.readCycle(ctx)
	if err != nil {
		Debugf("read cycle failed: %v", err)
		return "", err
	}

	Debugf("read cycle: tag %s", tag)
	return tag, nil
}

// Close parks the reader in reset and releases the lines and transport
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.restoreIdle(); err != nil {
		errs = append(errs, err)
	}
	if err := r.lines.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close control lines: %w", err))
	}
	if err := r.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
	}
	return errors.Join(errs...)
}

// readCycle runs arm, presence check, frame wait, capture, flush and
// validation. The caller restores idle.
func (r *Reader) readCycle(ctx context.Context) (TagID, error) {
	if err := r.arm(ctx); err != nil {
		return "", r.abandon(err)
	}

	present, err := r.lines.TagInRange()
	if err != nil {
		return "", fmt.Errorf("failed to read tag-in-range line: %w", err)
	}
	if !present {
		return "", r.abandon(newReadError("Read", KindNoTag, nil, nil))
	}

	r.clearBuffer()

	if err := r.awaitFrame(ctx); err != nil {
		return "", r.abandon(err)
	}

	n, err := r.capture()
	if err != nil {
		return "", err
	}

	if err := r.flush(); err != nil {
		return "", err
	}

	captured := r.buf[:n]
	if err := frame.Validate(captured); err != nil {
		return "", newReadError("Read", kindForFrameError(err), err, captured)
	}

	return TagID(frame.Payload(captured)), nil
}

// arm pulses the reset line so the reader discards its last read and
// scans again, then waits for it to settle.
func (r *Reader) arm(ctx context.Context) error {
	if err := r.lines.SetReset(Low); err != nil {
		return fmt.Errorf("failed to assert reset: %w", err)
	}
	if err := r.lines.SetReset(High); err != nil {
		return fmt.Errorf("failed to release reset: %w", err)
	}

	if r.config.SettleDelay <= 0 {
		return nil
	}
	if err := sleepCtx(ctx, r.config.SettleDelay); err != nil {
		return newReadError("Read", KindTimeout, err, nil)
	}
	return nil
}

// abandon flushes whatever arrived during a cycle that ends without a
// capture, so a partial or late frame is never decoded by the next cycle.
// Collaborator failures are returned as is.
func (r *Reader) abandon(err error) error {
	var re *ReadError
	if !errors.As(err, &re) {
		return err
	}
	if flushErr := r.flush(); flushErr != nil {
		return errors.Join(err, flushErr)
	}
	return err
}

// restoreIdle holds the reader in reset until the next cycle
func (r *Reader) restoreIdle() error {
	if err := r.lines.SetReset(Low); err != nil {
		return fmt.Errorf("failed to restore reset line: %w", err)
	}
	return nil
}

func (r *Reader) clearBuffer() {
	for i := range r.buf {
		r.buf[i] = 0
	}
}

// awaitFrame polls the receive buffer until ReadyThreshold bytes are
// waiting or ReadTimeout has elapsed since polling began.
func (r *Reader) awaitFrame(ctx context.Context) error {
	deadline := time.Now().Add(r.config.ReadTimeout)
	timer := time.NewTimer(r.config.PollInterval)
	defer timer.Stop()

	for {
		n, err := r.transport.Available()
		if err != nil {
			return fmt.Errorf("failed to poll receive buffer: %w", err)
		}
		if n >= r.config.ReadyThreshold {
			return nil
		}
		if !time.Now().Before(deadline) {
			return newReadError("Read", KindTimeout,
				fmt.Errorf("%d of %d bytes after %v", n, r.config.ReadyThreshold, r.config.ReadTimeout), nil)
		}

		timer.Reset(r.config.PollInterval)
		select {
		case <-ctx.Done():
			return newReadError("Read", KindTimeout, ctx.Err(), nil)
		case <-timer.C:
		}
	}
}

// capture skips noise up to STX, then copies bytes until ETX is copied,
// the buffer is full or the transport runs dry. It returns the number of
// bytes held in buf.
func (r *Reader) capture() (int, error) {
	found, err := r.skipToSTX()
	if err != nil || !found {
		return 0, err
	}

	r.buf[0] = frame.STX
	n := 1
	for n < frame.Length {
		b, err := r.transport.ReadByte()
		if errors.Is(err, ErrNoData) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("failed to read frame byte: %w", err)
		}
		r.buf[n] = b
		n++
		if b == frame.ETX {
			break
		}
	}

	return n, nil
}

// skipToSTX discards bytes until a start marker is read
func (r *Reader) skipToSTX() (bool, error) {
	for skipped := 0; skipped < maxResyncBytes; skipped++ {
		b, err := r.transport.ReadByte()
		if errors.Is(err, ErrNoData) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to read frame byte: %w", err)
		}
		if b == frame.STX {
			if skipped > 0 {
				Debugf("skipped %d noise bytes before STX", skipped)
			}
			return true, nil
		}
	}
	return false, nil
}

// flush discards whatever is still buffered so the next cycle starts on a
// clean channel.
func (r *Reader) flush() error {
	if f, ok := r.transport.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush transport: %w", err)
		}
		return nil
	}

	n, err := r.transport.Available()
	if err != nil {
		return fmt.Errorf("failed to poll receive buffer: %w", err)
	}
	for ; n > 0; n-- {
		if _, err := r.transport.ReadByte(); err != nil {
			if errors.Is(err, ErrNoData) {
				return nil
			}
			return fmt.Errorf("failed to flush transport: %w", err)
		}
	}
	return nil
}

// sleepCtx performs a context-aware sleep. Returns ctx.Err() if context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
