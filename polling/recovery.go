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

package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-id12la"
	"github.com/ZaparooProject/go-id12la/internal/syncutil"
)

// Recoverer restores a reader after host sleep or a fatal transport error
type Recoverer interface {
	// AttemptRecovery tries to bring the reader back. Returns nil on success.
	AttemptRecovery(ctx context.Context) error

	// Reader returns the current reader, which may change after reconnection
	Reader() *id12la.Reader
}

// ReopenFunc builds a fresh reader, typically by reopening the serial
// port and GPIO lines.
type ReopenFunc func() (*id12la.Reader, error)

// DefaultRecoverer implements a tiered recovery strategy:
// 1. Re-initialize the existing reader (re-park in reset and flush)
// 2. Close it and build a new one via the reopen function
type DefaultRecoverer struct {
	reader      *id12la.Reader
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer. If reopenFunc is nil only the
// first tier is attempted.
func NewDefaultRecoverer(
	reader *id12la.Reader,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		reader:      reader,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery runs the tiers up to maxAttempts times
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		err := r.reader.Init()
		if err == nil {
			return nil
		}
		lastErr = err

		if r.reopenFunc == nil {
			continue
		}
		_ = r.reader.Close()
		reader, reopenErr := r.reopenFunc()
		if reopenErr != nil {
			lastErr = reopenErr
			continue
		}
		if initErr := reader.Init(); initErr != nil {
			_ = reader.Close()
			lastErr = initErr
			continue
		}
		r.reader = reader
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("no recovery attempts made")
	}
	return fmt.Errorf("recovery failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// Reader returns the current reader
func (r *DefaultRecoverer) Reader() *id12la.Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reader
}
