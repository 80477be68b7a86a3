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

//nolint:paralleltest // Tests share the package-level registry and cache
package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDetector returns canned results and counts calls
type fakeDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	delay     time.Duration
	calls     int
}

func (f *fakeDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.devices, f.err
}

func (f *fakeDetector) Transport() string {
	return f.transport
}

func withRegistry(t *testing.T, detectors ...Detector) {
	t.Helper()
	orig := registry
	registry = detectors
	clearCache()
	t.Cleanup(func() {
		registry = orig
		clearCache()
	})
}

func TestConfidence_String(t *testing.T) {
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "medium", Medium.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "unknown", Confidence(99).String())
}

func TestDeviceInfo_String(t *testing.T) {
	d := DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: High}
	assert.Equal(t, "uart device at /dev/ttyUSB0 (confidence: high)", d.String())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, Passive, opts.Mode)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Positive(t, opts.ListenTimeout)
	assert.True(t, opts.EnableCache)
	assert.Equal(t, 30*time.Second, opts.CacheTTL)
	assert.NotEmpty(t, opts.Blocklist)
}

func TestDetectAll_CachesResults(t *testing.T) {
	fake := &fakeDetector{
		transport: "uart",
		devices:   []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Medium}},
	}
	withRegistry(t, fake)

	opts := DefaultOptions()
	for range 3 {
		devices, err := DetectAll(context.Background(), &opts)
		require.NoError(t, err)
		require.Len(t, devices, 1)
	}
	assert.Equal(t, 1, fake.calls)

	ClearDetectionCache()
	_, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestDetectAll_CachedResultsAreFiltered(t *testing.T) {
	fake := &fakeDetector{
		transport: "uart",
		devices: []DeviceInfo{
			{Transport: "uart", Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "0403:6015"}},
			{Transport: "uart", Path: "/dev/ttyUSB1", Metadata: map[string]string{"vidpid": "1A86:7523"}},
		},
	}
	withRegistry(t, fake)

	opts := DefaultOptions()
	_, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)

	opts.IgnorePaths = []string{"/dev/ttyUSB0"}
	opts.Blocklist = []string{"VID:1A86 PID:7523"}
	_, err = DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetectAll_NoDevicesClearsCache(t *testing.T) {
	fake := &fakeDetector{
		transport: "uart",
		devices:   []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB0"}},
	}
	withRegistry(t, fake)
	setCached("uart", Passive, fake.devices)

	opts := DefaultOptions()
	opts.EnableCache = true
	opts.CacheTTL = time.Millisecond
	time.Sleep(5 * time.Millisecond)
	fake.devices = nil
	fake.err = ErrNoDevicesFound

	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)
	_, found := getCached("uart", Passive, time.Hour)
	assert.False(t, found)
}

func TestDetectAll_Errors(t *testing.T) {
	withRegistry(t)
	opts := DefaultOptions()
	_, err := DetectAll(context.Background(), &opts)
	require.Error(t, err)

	enumErr := errors.New("enumeration failed")
	withRegistry(t, &fakeDetector{transport: "uart", err: enumErr})
	_, err = DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, enumErr)
}

func TestDetectAll_Timeout(t *testing.T) {
	withRegistry(t, &fakeDetector{transport: "uart", delay: time.Second})

	opts := DefaultOptions()
	opts.EnableCache = false
	opts.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := DetectAll(context.Background(), &opts)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGetDetectors_FilterByTransport(t *testing.T) {
	uartDet := &fakeDetector{transport: "uart"}
	otherDet := &fakeDetector{transport: "other"}
	withRegistry(t, uartDet, otherDet)

	assert.Len(t, getDetectors(nil), 2)
	assert.Equal(t, []Detector{uartDet}, getDetectors([]string{"uart"}))
	assert.Empty(t, getDetectors([]string{"spi"}))
}

func TestBest(t *testing.T) {
	_, ok := Best(nil)
	assert.False(t, ok)

	best, ok := Best([]DeviceInfo{
		{Path: "/dev/ttyUSB0", Confidence: Medium},
		{Path: "/dev/ttyUSB1", Confidence: High},
		{Path: "/dev/ttyUSB2", Confidence: High},
	})
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyUSB1", best.Path)
}

func TestCache_TTLAndCopy(t *testing.T) {
	withRegistry(t)

	devices := []DeviceInfo{{
		Transport: "uart",
		Path:      "/dev/ttyUSB0",
		Metadata:  map[string]string{"vidpid": "0403:6015"},
	}}
	setCached("uart", Passive, devices)
	devices[0].Path = "changed"
	devices[0].Metadata["vidpid"] = "changed"

	cached, found := getCached("uart", Passive, time.Minute)
	require.True(t, found)
	assert.Equal(t, "/dev/ttyUSB0", cached[0].Path)
	assert.Equal(t, "0403:6015", cached[0].Metadata["vidpid"])

	time.Sleep(5 * time.Millisecond)
	_, found = getCached("uart", Passive, time.Millisecond)
	assert.False(t, found)

	clearCacheForTransport("uart")
	_, found = getCached("uart", Passive, time.Minute)
	assert.False(t, found)
}

func TestCache_ModeOrdering(t *testing.T) {
	withRegistry(t)

	setCached("uart", Passive, []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB0"}})
	_, found := getCached("uart", Listen, time.Minute)
	assert.False(t, found, "a passive scan cannot answer a listen lookup")

	setCached("uart", Listen, []DeviceInfo{{Transport: "uart", Path: "/dev/ttyUSB1", Confidence: High}})
	cached, found := getCached("uart", Passive, time.Minute)
	require.True(t, found)
	assert.Equal(t, "/dev/ttyUSB1", cached[0].Path, "listen results are preferred")

	clearCacheForTransport("uart")
	_, found = getCached("uart", Listen, time.Minute)
	assert.False(t, found)
}

func TestIsBlocked(t *testing.T) {
	tests := []struct {
		vidpid    string
		blocklist []string
		want      bool
	}{
		{vidpid: "2341:0043", blocklist: DefaultBlocklist(), want: true},
		{vidpid: "2341:0043", blocklist: []string{"2341:0043"}, want: true},
		{vidpid: "0403:6015", blocklist: []string{"vid:0403 pid:6015"}, want: true},
		{vidpid: "0403:6015", blocklist: []string{"vendor=403 product=6015"}, want: true},
		{vidpid: "0403:6015", blocklist: DefaultBlocklist(), want: false},
		{vidpid: "", blocklist: []string{""}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.vidpid, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBlocked(tt.vidpid, tt.blocklist))
		})
	}
}

func TestParseVIDPID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "VID:0403 PID:6015", want: "0403:6015"},
		{in: "0403:6015", want: "0403:6015"},
		{in: "1a86:7523", want: "1A86:7523"},
		{in: "vendor=10c4 product=ea60", want: "10C4:EA60"},
		{in: "VID=67B PID=2303", want: "067B:2303"},
		{in: "no ids here", want: ""},
		{in: "GGGG:0001", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVIDPID(tt.in))
		})
	}
}

func TestFormatVIDPID(t *testing.T) {
	assert.Equal(t, "0403:6015", FormatVIDPID("0403", "6015"))
	assert.Equal(t, "067B:2303", FormatVIDPID("0x67b", "2303"))
	assert.Empty(t, FormatVIDPID("", "6015"))
	assert.Empty(t, FormatVIDPID("12345", "6015"))
}

func TestIsPathIgnored(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		ignore []string
		want   bool
	}{
		{name: "exact", path: "/dev/ttyUSB0", ignore: []string{"/dev/ttyUSB0"}, want: true},
		{name: "unclean", path: "/dev/ttyUSB0", ignore: []string{"/dev/../dev/ttyUSB0"}, want: true},
		{name: "windows case", path: "COM3", ignore: []string{"com3"}, want: true},
		{name: "different", path: "/dev/ttyUSB1", ignore: []string{"/dev/ttyUSB0"}, want: false},
		{name: "empty entries", path: "/dev/ttyUSB0", ignore: []string{""}, want: false},
		{name: "empty path", path: "", ignore: []string{"/dev/ttyUSB0"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}
