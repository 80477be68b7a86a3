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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-id12la/internal/frame"
)

// Reader timing defaults
const (
	// DefaultBaudRate is the fixed ID-12LA serial rate.
	DefaultBaudRate = 9600
	// DefaultSettleDelay is how long the reader runs after reset is released
	// before the tag-in-range line is sampled.
	DefaultSettleDelay = 250 * time.Millisecond
	// DefaultReadTimeout bounds the wait for frame bytes. A 17 byte burst
	// takes about 18ms at 9600 8N1.
	DefaultReadTimeout = 50 * time.Millisecond
	// DefaultPollInterval is the delay between receive buffer checks.
	DefaultPollInterval = 500 * time.Microsecond
	// DefaultReadyThreshold is the buffered byte count that ends the wait.
	DefaultReadyThreshold = frame.Length + 1
)

// Config contains the read cycle timing for a Reader
type Config struct {
	// BaudRate is passed to Transport.Begin
	BaudRate int
	// SettleDelay is the pause after releasing reset
	SettleDelay time.Duration
	// ReadTimeout is measured from the start of polling
	ReadTimeout time.Duration
	// PollInterval is the receive buffer poll granularity
	PollInterval time.Duration
	// ReadyThreshold is the number of buffered bytes to wait for
	ReadyThreshold int
}

// DefaultConfig returns default reader configuration
func DefaultConfig() *Config {
	return &Config{
		BaudRate:       DefaultBaudRate,
		SettleDelay:    DefaultSettleDelay,
		ReadTimeout:    DefaultReadTimeout,
		PollInterval:   DefaultPollInterval,
		ReadyThreshold: DefaultReadyThreshold,
	}
}

// Validate checks that the configuration can drive a read cycle
func (c *Config) Validate() error {
	switch {
	case c.BaudRate <= 0:
		return fmt.Errorf("%w: baud rate %d", ErrInvalidParameter, c.BaudRate)
	case c.SettleDelay < 0:
		return fmt.Errorf("%w: settle delay %v", ErrInvalidParameter, c.SettleDelay)
	case c.ReadTimeout <= 0:
		return fmt.Errorf("%w: read timeout %v", ErrInvalidParameter, c.ReadTimeout)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval %v", ErrInvalidParameter, c.PollInterval)
	case c.ReadyThreshold < 1:
		return fmt.Errorf("%w: ready threshold %d", ErrInvalidParameter, c.ReadyThreshold)
	}
	return nil
}

// Option is a functional option for configuring a Reader
type Option func(*Reader) error

// WithConfig replaces the whole configuration
func WithConfig(config *Config) Option {
	return func(r *Reader) error {
		if config == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidParameter)
		}
		cfg := *config
		r.config = &cfg
		return nil
	}
}

// WithBaudRate sets the serial baud rate
func WithBaudRate(baud int) Option {
	return func(r *Reader) error {
		r.config.BaudRate = baud
		return nil
	}
}

// WithSettleDelay sets the pause after releasing reset
func WithSettleDelay(d time.Duration) Option {
	return func(r *Reader) error {
		r.config.SettleDelay = d
		return nil
	}
}

// WithReadTimeout sets the frame wait deadline
func WithReadTimeout(timeout time.Duration) Option {
	return func(r *Reader) error {
		r.config.ReadTimeout = timeout
		return nil
	}
}

// WithPollInterval sets the receive buffer poll granularity
func WithPollInterval(interval time.Duration) Option {
	return func(r *Reader) error {
		r.config.PollInterval = interval
		return nil
	}
}

// WithReadyThreshold sets how many buffered bytes end the frame wait
func WithReadyThreshold(n int) Option {
	return func(r *Reader) error {
		r.config.ReadyThreshold = n
		return nil
	}
}
