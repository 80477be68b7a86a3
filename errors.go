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
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"syscall"

	"github.com/ZaparooProject/go-id12la/internal/frame"
)

// Read cycle outcomes. Every one of these is routine for a noisy 125 kHz
// read and can be retried.
var (
	ErrNoTag       = errors.New("no tag in range")
	ErrTimeout     = errors.New("timeout waiting for frame")
	ErrTooShort    = frame.ErrTooShort
	ErrBadFraming  = frame.ErrBadFraming
	ErrBadChecksum = frame.ErrBadChecksum
)

// Transport and usage errors
var (
	ErrNoData           = errors.New("no data available")
	ErrTransportClosed  = errors.New("transport is closed")
	ErrNotInitialized   = errors.New("reader not initialized")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDeviceNotFound   = errors.New("device not found")

	errUnknownRead = errors.New("read failed")
)

// ErrorKind classifies the outcome of a failed read cycle
type ErrorKind int

const (
	// KindUnknown is reported for errors that are not read cycle outcomes,
	// such as serial or GPIO I/O failures.
	KindUnknown ErrorKind = iota
	// KindNoTag means the tag-in-range line was not asserted.
	KindNoTag
	// KindTimeout means not enough bytes arrived before the deadline.
	KindTimeout
	// KindTooShort means the captured frame had the wrong length.
	KindTooShort
	// KindBadFraming means a marker byte was missing at its fixed offset.
	KindBadFraming
	// KindBadChecksum means the transmitted checksum did not match.
	KindBadChecksum
)

func (k ErrorKind) String() string {
	switch k {
	case KindNoTag:
		return "no-tag"
	case KindTimeout:
		return "timeout"
	case KindTooShort:
		return "too-short"
	case KindBadFraming:
		return "bad-framing"
	case KindBadChecksum:
		return "bad-checksum"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ReadError reports a failed read cycle along with the bytes captured
// during it, if any.
type ReadError struct {
	Err      error     // Underlying error, wraps the sentinel for Kind
	Op       string    // Operation that failed
	Captured []byte    // Raw bytes captured this cycle
	Kind     ErrorKind // Outcome classification
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// FormatCapture returns a hex dump of the captured bytes
func (e *ReadError) FormatCapture() string {
	return fmt.Sprintf("[%s] captured: %s", e.Kind, formatHexBytes(e.Captured))
}

// newReadError builds a ReadError whose Err wraps the sentinel for kind.
// cause, if not nil, is wrapped as well.
func newReadError(op string, kind ErrorKind, cause error, captured []byte) *ReadError {
	err := sentinelFor(kind)
	if cause != nil {
		if errors.Is(cause, err) {
			err = cause
		} else {
			err = fmt.Errorf("%w: %w", err, cause)
		}
	}

	var capturedCopy []byte
	if len(captured) > 0 {
		capturedCopy = make([]byte, len(captured))
		copy(capturedCopy, captured)
	}

	return &ReadError{
		Op:       op,
		Kind:     kind,
		Err:      err,
		Captured: capturedCopy,
	}
}

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindNoTag:
		return ErrNoTag
	case KindTimeout:
		return ErrTimeout
	case KindTooShort:
		return ErrTooShort
	case KindBadFraming:
		return ErrBadFraming
	case KindBadChecksum:
		return ErrBadChecksum
	default:
		return errUnknownRead
	}
}

// kindForFrameError maps a frame validation error to its outcome kind
func kindForFrameError(err error) ErrorKind {
	switch {
	case errors.Is(err, frame.ErrTooShort):
		return KindTooShort
	case errors.Is(err, frame.ErrBadFraming):
		return KindBadFraming
	case errors.Is(err, frame.ErrBadChecksum):
		return KindBadChecksum
	default:
		return KindUnknown
	}
}

// KindOf returns the outcome classification of err, or KindUnknown if err
// is nil or not a read cycle outcome.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind
	}

	switch {
	case errors.Is(err, ErrNoTag):
		return KindNoTag
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	default:
		return kindForFrameError(err)
	}
}

// IsRetryable returns true if err is a read cycle outcome. These are all
// expected on a wireless link and a fresh cycle may succeed.
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	return KindOf(err) != KindUnknown
}

// IsFatal returns true if the error indicates the reader hardware is gone
// and polling should stop entirely.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
// These are defined here because they're not available on non-Windows platforms.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors indicating device disconnection.
// These errors occur when a USB serial adapter is unplugged during I/O.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}

	return false
}

// formatHexBytes formats a byte slice as space-separated hex values
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
