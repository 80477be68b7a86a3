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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-id12la"
)

// SleepRecoveryConfig configures automatic recovery after host sleep/wake
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum elapsed time beyond the expected
	// poll interval that indicates a sleep occurred. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before
	// treating as a fatal error. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed since the last poll exceeds
// pollInterval + TimeDiscontinuityThreshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > pollInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds polling configuration options
type Config struct {
	// PollInterval is the pause between read cycles. A cycle itself
	// takes at least the reader's settle delay.
	PollInterval time.Duration
	// RemovalTimeout is how long a tag may go unread before it is
	// reported removed. It debounces single missed cycles.
	RemovalTimeout time.Duration
	// IdlePollInterval is used once no tag has been seen for IdleAfter
	IdlePollInterval time.Duration
	// IdleAfter enables the idle interval; zero disables it
	IdleAfter time.Duration
	// SleepRecovery configures automatic recovery after host sleep/wake cycles
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     100 * time.Millisecond,
		RemovalTimeout:   time.Second,
		IdlePollInterval: 500 * time.Millisecond,
		IdleAfter:        5 * time.Second,
		SleepRecovery:    DefaultSleepRecoveryConfig(),
	}
}

// Validate checks the intervals are usable
func (c *Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval %v", id12la.ErrInvalidParameter, c.PollInterval)
	case c.RemovalTimeout <= 0:
		return fmt.Errorf("%w: removal timeout %v", id12la.ErrInvalidParameter, c.RemovalTimeout)
	case c.IdleAfter > 0 && c.IdlePollInterval <= 0:
		return fmt.Errorf("%w: idle poll interval %v", id12la.ErrInvalidParameter, c.IdlePollInterval)
	}
	return nil
}
