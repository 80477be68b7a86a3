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
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures how many read cycles a caller is willing to spend
// on one tag.
type RetryConfig struct {
	// ShouldRetry decides whether a failed cycle is worth repeating.
	// Defaults to IsRetryable.
	ShouldRetry func(error) bool
	// MaxAttempts is the maximum number of read cycles (0 = single attempt)
	MaxAttempts int
	// InitialBackoff is the pause after the first failed cycle
	InitialBackoff time.Duration
	// MaxBackoff caps the pause between cycles
	MaxBackoff time.Duration
	// BackoffMultiplier grows the pause after every failed cycle
	BackoffMultiplier float64
	// Jitter adds up to this fraction of randomness to each pause
	Jitter float64
	// RetryTimeout is the overall budget for all attempts
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns a retry configuration suited to a tag held
// briefly in front of the reader. Five cycles with the default settle
// delay span a little over a second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    20 * time.Millisecond,
		MaxBackoff:        200 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// RetryableFunc is one attempt, usually a read cycle
type RetryableFunc func() error

// backoff yields the pauses between read cycles
type backoff struct {
	rng    func() float64
	next   time.Duration
	limit  time.Duration
	factor float64
	jitter float64
}

func newBackoff(config *RetryConfig) *backoff {
	return &backoff{
		next:   config.InitialBackoff,
		limit:  config.MaxBackoff,
		factor: config.BackoffMultiplier,
		jitter: config.Jitter,
		rng:    rand.Float64,
	}
}

// pause returns the jittered pause for this step and grows the next one
// up to the limit. Jitter only lengthens a pause.
func (b *backoff) pause() time.Duration {
	d := b.next
	if b.jitter > 0 {
		d += time.Duration(b.rng() * b.jitter * float64(b.next))
	}
	b.next = min(time.Duration(float64(b.next)*b.factor), b.limit)
	return d
}

// RetryWithConfig calls fn until it succeeds, returns an error ShouldRetry
// rejects, or the attempts or time budget run out. The last error is
// returned when the budget ends after at least one attempt.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	shouldRetry := config.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}
	delays := newBackoff(config)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", ctxErr)
		}

		lastErr = fn()
		if lastErr == nil || !shouldRetry(lastErr) || attempt >= config.MaxAttempts {
			return lastErr
		}

		timer := time.NewTimer(delays.pause())
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

// ReadWithRetry repeats read cycles until one yields a tag, a
// non-retryable error occurs or the retry budget is spent. The last
// cycle's error is returned.
func (r *Reader) ReadWithRetry(ctx context.Context, config *RetryConfig) (TagID, error) {
	var tag TagID
	attempt := 0
	err := RetryWithConfig(ctx, config, func() error {
		attempt++
		var readErr error
		tag, readErr = r.Read(ctx)
		if readErr != nil {
			Debugf("read attempt %d: %v", attempt, readErr)
		}
		return readErr
	})
	if err != nil {
		return "", err
	}
	return tag, nil
}
