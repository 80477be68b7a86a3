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

package detection

import (
	"maps"
	"time"

	"github.com/ZaparooProject/go-id12la/internal/syncutil"
)

// cacheKey separates results by how invasive the scan was. A Listen scan
// confirmed ports with a frame, so it also answers Passive lookups.
type cacheKey struct {
	transport string
	mode      Mode
}

type cacheEntry struct {
	timestamp time.Time
	devices   []DeviceInfo
}

type detectionCache struct {
	entries map[cacheKey]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &detectionCache{
	entries: make(map[cacheKey]cacheEntry),
}

// getCached returns a copy of devices found by a scan at least as thorough
// as mode and younger than ttl.
func getCached(transport string, mode Mode, ttl time.Duration) ([]DeviceInfo, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	candidates := []Mode{Listen}
	if mode == Passive {
		candidates = append(candidates, Passive)
	}
	for _, m := range candidates {
		entry, exists := cache.entries[cacheKey{transport: transport, mode: m}]
		if exists && time.Since(entry.timestamp) <= ttl {
			return copyDevices(entry.devices), true
		}
	}
	return nil, false
}

func setCached(transport string, mode Mode, devices []DeviceInfo) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries[cacheKey{transport: transport, mode: mode}] = cacheEntry{
		devices:   copyDevices(devices),
		timestamp: time.Now(),
	}
}

// copyDevices copies devices including their metadata maps
func copyDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		d.Metadata = maps.Clone(d.Metadata)
		out[i] = d
	}
	return out
}

func clearCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries = make(map[cacheKey]cacheEntry)
}

// clearCacheForTransport drops entries for every mode
func clearCacheForTransport(transport string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	for key := range cache.entries {
		if key.transport == transport {
			delete(cache.entries, key)
		}
	}
}
