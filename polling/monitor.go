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

// Package polling runs read cycles continuously and turns them into tag
// arrival, change and removal events.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-id12la"
	"github.com/ZaparooProject/go-id12la/internal/syncutil"
)

// ErrMonitorRunning is returned by Start when the loop is already active
var ErrMonitorRunning = errors.New("monitor already running")

// Callbacks defines callback functions for tag events. All callbacks run
// on the polling goroutine, one at a time and in event order, so a slow
// callback delays the next read cycle.
type Callbacks struct {
	OnTagDetected func(id id12la.TagID) error
	OnTagRemoved  func()
	// OnTagChanged is called when a different tag replaces the current one
	// without a removal in between. Falls back to OnTagDetected when nil.
	OnTagChanged func(id id12la.TagID) error
	// OnError receives frame errors and unrecoverable transport failures.
	// NoTag and Timeout outcomes are absence, not errors.
	OnError func(err error)
}

// TagWaiter blocks until a tag is in range or the timeout passes.
// *pins.Lines implements it with TIR edge detection.
type TagWaiter interface {
	WaitForTag(ctx context.Context, timeout time.Duration) (bool, error)
}

// Metrics tracks operational metrics for a Monitor
type Metrics struct {
	ErrorsByKind    map[id12la.ErrorKind]int64
	PollCycles      int64         // Total number of read cycles
	PollErrors      int64         // Cycles that failed for any reason other than absence
	TagsDetected    int64         // New tags reported
	CallbackErrors  int64         // Callback invocations that returned an error
	Recoveries      int64         // Successful recoveries
	LastPollLatency time.Duration // Duration of the last read cycle
}

// Monitor polls a Reader in its own goroutine and reports tag arrival,
// change and removal.
type Monitor struct {
	lastDetection time.Time
	lastPoll      time.Time
	reader        *id12la.Reader
	config        *Config
	recoverer     Recoverer
	waiter        TagWaiter
	cancel        context.CancelFunc
	errorsByKind  map[id12la.ErrorKind]int64
	removals      chan uint64
	callbacks     Callbacks
	state         TagState
	wg            sync.WaitGroup
	// generation invalidates removal timers armed for an earlier read
	generation      uint64
	pollCycles      int64
	pollErrors      int64
	tagsDetected    int64
	callbackErrors  int64
	recoveries      int64
	lastPollLatency int64
	currentInterval int64
	running         int32
	mu              syncutil.Mutex
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithRecoverer enables recovery from sleep and fatal transport errors
func WithRecoverer(r Recoverer) MonitorOption {
	return func(m *Monitor) {
		m.recoverer = r
	}
}

// WithTagWaiter gates each read cycle on the waiter, so the reader is
// only armed once a tag is in range.
func WithTagWaiter(w TagWaiter) MonitorOption {
	return func(m *Monitor) {
		m.waiter = w
	}
}

// NewMonitor creates a monitor. A nil config uses DefaultConfig.
func NewMonitor(reader *id12la.Reader, config *Config, callbacks Callbacks, opts ...MonitorOption) (*Monitor, error) {
	if reader == nil {
		return nil, fmt.Errorf("%w: nil reader", id12la.ErrInvalidParameter)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		reader:          reader,
		config:          config,
		callbacks:       callbacks,
		errorsByKind:    make(map[id12la.ErrorKind]int64),
		removals:        make(chan uint64, 4),
		currentInterval: config.PollInterval.Nanoseconds(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start launches the polling goroutine. The loop ends when ctx is done,
// Stop is called, or a fatal error cannot be recovered.
func (m *Monitor) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return ErrMonitorRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	m.lastDetection = time.Now()
	m.lastPoll = time.Time{}
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pollLoop(loopCtx)
	return nil
}

// Stop ends polling, waits for the goroutine to exit and drops the
// tracked tag without reporting a removal.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	m.generation++
	m.state.TransitionToIdle()
	m.mu.Unlock()
}

// Running reports whether the polling goroutine is active
func (m *Monitor) Running() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	defer atomic.StoreInt32(&m.running, 0)

	// first poll runs immediately
	timer := time.NewTimer(0)
	defer safeTimerStop(timer)

	for {
		select {
		case <-ctx.Done():
			return
		case gen := <-m.removals:
			m.handleRemoval(gen)
			continue
		case <-timer.C:
		}

		if !m.checkSleep(ctx) {
			return
		}
		if !m.performPoll(ctx) {
			return
		}
		m.mu.Lock()
		m.lastPoll = time.Now()
		m.mu.Unlock()
		m.adjustPollInterval()
		timer.Reset(time.Duration(atomic.LoadInt64(&m.currentInterval)))
	}
}

// checkSleep recovers the reader when the idle gap since the previous
// cycle ended is far longer than the poll interval, which means the host
// was suspended. The cycle itself is not part of the gap. Returns false
// if polling must stop.
func (m *Monitor) checkSleep(ctx context.Context) bool {
	now := time.Now()
	m.mu.Lock()
	last := m.lastPoll
	m.mu.Unlock()

	if last.IsZero() || m.recoverer == nil {
		return true
	}
	interval := time.Duration(atomic.LoadInt64(&m.currentInterval))
	if !m.config.SleepRecovery.DetectSleep(now.Sub(last), interval) {
		return true
	}
	id12la.Debugf("polling: %v gap since last poll, recovering reader", now.Sub(last))
	return m.recover(ctx, errors.New("host sleep detected"))
}

// performPoll runs one read cycle. Returns false if polling must stop.
func (m *Monitor) performPoll(ctx context.Context) bool {
	if m.waiter != nil {
		present, err := m.waiter.WaitForTag(ctx, m.config.PollInterval)
		if err != nil && ctx.Err() == nil {
			return m.handleError(ctx, err)
		}
		if !present {
			return true
		}
	}

	start := time.Now()
	id, err := m.currentReader().Read(ctx)
	atomic.AddInt64(&m.pollCycles, 1)
	atomic.StoreInt64(&m.lastPollLatency, time.Since(start).Nanoseconds())

	if err == nil {
		m.handleTag(id)
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	return m.handleError(ctx, err)
}

func (m *Monitor) handleError(ctx context.Context, err error) bool {
	kind := id12la.KindOf(err)
	m.mu.Lock()
	m.errorsByKind[kind]++
	m.mu.Unlock()

	switch {
	case kind == id12la.KindNoTag || kind == id12la.KindTimeout:
		// absence; the removal timer decides when the tag is gone
		return true
	case id12la.IsRetryable(err):
		atomic.AddInt64(&m.pollErrors, 1)
		id12la.Debugf("polling: read failed: %v", err)
		m.reportError(err)
		return true
	default:
		atomic.AddInt64(&m.pollErrors, 1)
		if m.recoverer == nil {
			m.reportError(err)
			return !id12la.IsFatal(err)
		}
		return m.recover(ctx, err)
	}
}

func (m *Monitor) recover(ctx context.Context, cause error) bool {
	if err := m.recoverer.AttemptRecovery(ctx); err != nil {
		m.reportError(fmt.Errorf("%w (after %v)", err, cause))
		return false
	}
	atomic.AddInt64(&m.recoveries, 1)
	m.mu.Lock()
	m.reader = m.recoverer.Reader()
	m.mu.Unlock()
	return true
}

func (m *Monitor) handleTag(id id12la.TagID) {
	m.mu.Lock()
	m.lastDetection = time.Now()
	wasPresent := m.state.Present()
	previous := m.state.LastID
	m.generation++
	gen := m.generation
	m.state.TransitionToPresent(id, m.config.RemovalTimeout, func() { m.queueRemoval(gen) })
	m.mu.Unlock()

	switch {
	case wasPresent && previous == id:
		return
	case wasPresent && m.callbacks.OnTagChanged != nil:
		atomic.AddInt64(&m.tagsDetected, 1)
		m.invoke(m.callbacks.OnTagChanged, id)
	default:
		atomic.AddInt64(&m.tagsDetected, 1)
		m.invoke(m.callbacks.OnTagDetected, id)
	}
}

// queueRemoval hands an expired removal timer to the polling goroutine
func (m *Monitor) queueRemoval(gen uint64) {
	select {
	case m.removals <- gen:
	default:
		id12la.Debugf("polling: removal queue full, dropping generation %d", gen)
	}
}

func (m *Monitor) handleRemoval(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.state.Present() {
		m.mu.Unlock()
		return
	}
	m.state.TransitionToIdle()
	m.mu.Unlock()

	if m.callbacks.OnTagRemoved != nil {
		m.callbacks.OnTagRemoved()
	}
}

func (m *Monitor) invoke(cb func(id12la.TagID) error, id id12la.TagID) {
	if cb == nil {
		return
	}
	if err := cb(id); err != nil {
		atomic.AddInt64(&m.callbackErrors, 1)
		id12la.Debugf("polling: callback for %s failed: %v", id, err)
	}
}

func (m *Monitor) reportError(err error) {
	if m.callbacks.OnError != nil {
		m.callbacks.OnError(err)
	}
}

// adjustPollInterval switches to the idle interval once no tag has been
// read for IdleAfter.
func (m *Monitor) adjustPollInterval() {
	interval := m.config.PollInterval
	if m.config.IdleAfter > 0 {
		m.mu.Lock()
		idle := time.Since(m.lastDetection) > m.config.IdleAfter && !m.state.Present()
		m.mu.Unlock()
		if idle {
			interval = m.config.IdlePollInterval
		}
	}
	atomic.StoreInt64(&m.currentInterval, interval.Nanoseconds())
}

func (m *Monitor) currentReader() *id12la.Reader {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reader
}

// CurrentTag returns the tracked tag, if any
func (m *Monitor) CurrentTag() (id12la.TagID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastID, m.state.Present()
}

// GetMetrics returns current operational metrics
func (m *Monitor) GetMetrics() Metrics {
	m.mu.Lock()
	byKind := make(map[id12la.ErrorKind]int64, len(m.errorsByKind))
	for k, v := range m.errorsByKind {
		byKind[k] = v
	}
	m.mu.Unlock()

	return Metrics{
		ErrorsByKind:    byKind,
		PollCycles:      atomic.LoadInt64(&m.pollCycles),
		PollErrors:      atomic.LoadInt64(&m.pollErrors),
		TagsDetected:    atomic.LoadInt64(&m.tagsDetected),
		CallbackErrors:  atomic.LoadInt64(&m.callbackErrors),
		Recoveries:      atomic.LoadInt64(&m.recoveries),
		LastPollLatency: time.Duration(atomic.LoadInt64(&m.lastPollLatency)),
	}
}

// GetCurrentPollInterval returns the current adaptive polling interval
func (m *Monitor) GetCurrentPollInterval() time.Duration {
	return time.Duration(atomic.LoadInt64(&m.currentInterval))
}
