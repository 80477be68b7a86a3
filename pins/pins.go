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

// Package pins drives the ID-12LA reset and tag-in-range lines through
// periph.io GPIO.
package pins

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/go-id12la"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// presencePoll is the tag-in-range sampling period when the pin cannot
// report edges.
const presencePoll = 10 * time.Millisecond

// Lines implements id12la.Lines on two GPIO pins. Reset is an output
// held Low while idle; tag-in-range is an input the reader drives High
// while a tag is in its field.
type Lines struct {
	reset gpio.PinIO
	tir   gpio.PinIO
	mu    sync.Mutex
	edges bool
	setup bool
}

// New resolves the named pins, e.g. "GPIO17" and "GPIO27", after
// initializing the periph host drivers.
func New(resetPin, tirPin string) (*Lines, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	if resetPin == "" || tirPin == "" {
		return nil, fmt.Errorf("%w: reset and tag-in-range pins must be specified", id12la.ErrInvalidParameter)
	}

	reset := gpioreg.ByName(resetPin)
	tir := gpioreg.ByName(tirPin)
	if reset == nil || tir == nil {
		return nil, fmt.Errorf("%w: invalid GPIO pins: reset=%s, tir=%s",
			id12la.ErrDeviceNotFound, resetPin, tirPin)
	}

	return NewFromPins(reset, tir)
}

// NewFromPins uses already resolved pins
func NewFromPins(reset, tir gpio.PinIO) (*Lines, error) {
	if reset == nil || tir == nil {
		return nil, fmt.Errorf("%w: nil pin", id12la.ErrInvalidParameter)
	}
	return &Lines{reset: reset, tir: tir}, nil
}

// Setup configures pin directions. Tag-in-range is set up for rising
// edge detection where the driver supports it and falls back to plain
// input otherwise.
func (l *Lines) Setup() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to configure reset pin %s: %w", l.reset.Name(), err)
	}

	if err := l.tir.In(gpio.PullDown, gpio.RisingEdge); err == nil {
		l.edges = true
	} else {
		id12la.Debugf("pin %s: no edge detection (%v), polling instead", l.tir.Name(), err)
		if err := l.tir.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return fmt.Errorf("failed to configure tag-in-range pin %s: %w", l.tir.Name(), err)
		}
		l.edges = false
	}

	l.setup = true
	return nil
}

// SetReset drives the reset line
func (l *Lines) SetReset(level id12la.Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reset.Out(gpio.Level(level)); err != nil {
		return fmt.Errorf("failed to drive reset pin %s %s: %w", l.reset.Name(), level, err)
	}
	return nil
}

// TagInRange samples the tag-in-range line
func (l *Lines) TagInRange() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.setup {
		return false, id12la.ErrNotInitialized
	}
	return l.tir.Read() == gpio.High, nil
}

// WaitForTag releases reset so the reader scans, and blocks until the
// tag-in-range line goes High, timeout passes or ctx is done. Reset is
// back Low when it returns.
func (l *Lines) WaitForTag(ctx context.Context, timeout time.Duration) (found bool, err error) {
	if err := l.SetReset(id12la.High); err != nil {
		return false, err
	}
	defer func() {
		if idleErr := l.SetReset(id12la.Low); idleErr != nil && err == nil {
			found, err = false, idleErr
		}
	}()

	deadline := time.Now().Add(timeout)
	for {
		present, err := l.TagInRange()
		if err != nil || present {
			return present, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err //nolint:wrapcheck // caller's own context error
		}

		step := min(remaining, presencePoll)
		if l.hasEdges() {
			// WaitForEdge cannot observe ctx, so wait in short slices
			l.tir.WaitForEdge(step)
			continue
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err() //nolint:wrapcheck // caller's own context error
		case <-time.After(step):
		}
	}
}

func (l *Lines) hasEdges() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.edges
}

// Close parks the reader in reset and stops edge detection
func (l *Lines) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to park reset pin %s: %w", l.reset.Name(), err)
	}
	if err := l.tir.Halt(); err != nil {
		return fmt.Errorf("failed to halt tag-in-range pin %s: %w", l.tir.Name(), err)
	}
	l.setup = false
	return nil
}

var _ id12la.Lines = (*Lines)(nil)
