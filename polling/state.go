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
	"time"

	"github.com/ZaparooProject/go-id12la"
)

// TagDetectionState represents the presence state machine for a reader
type TagDetectionState int

const (
	// StateIdle means no tag is being tracked
	StateIdle TagDetectionState = iota
	// StateTagPresent means a tag was read and its removal timer runs
	StateTagPresent
)

func (s TagDetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTagPresent:
		return "present"
	default:
		return "unknown"
	}
}

// TagState tracks the tag in front of a reader
type TagState struct {
	FirstSeenTime  time.Time
	LastSeenTime   time.Time
	RemovalTimer   *time.Timer
	LastID         id12la.TagID
	DetectionState TagDetectionState
	Reads          int
}

// safeTimerStop stops a timer and drains its channel
func safeTimerStop(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// Present reports whether a tag is being tracked
func (ts *TagState) Present() bool {
	return ts.DetectionState == StateTagPresent
}

// TransitionToPresent records a read of id and restarts the removal timer
func (ts *TagState) TransitionToPresent(id id12la.TagID, timeout time.Duration, onRemoval func()) {
	now := time.Now()
	if ts.DetectionState != StateTagPresent || ts.LastID != id {
		ts.FirstSeenTime = now
		ts.Reads = 0
	}
	ts.DetectionState = StateTagPresent
	ts.LastID = id
	ts.LastSeenTime = now
	ts.Reads++
	safeTimerStop(ts.RemovalTimer)
	ts.RemovalTimer = time.AfterFunc(timeout, onRemoval)
}

// TransitionToIdle clears the tracked tag
func (ts *TagState) TransitionToIdle() {
	safeTimerStop(ts.RemovalTimer)
	*ts = TagState{}
}
