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

//nolint:paralleltest // Tests mutate package-level listPortsFn and probePortFn
package uart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-id12la"
	"github.com/ZaparooProject/go-id12la/detection"
	"github.com/ZaparooProject/go-id12la/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func stubPorts(t *testing.T, ports []*enumerator.PortDetails, err error) {
	t.Helper()
	orig := listPortsFn
	t.Cleanup(func() { listPortsFn = orig })
	listPortsFn = func() ([]*enumerator.PortDetails, error) { return ports, err }
}

func stubProbe(t *testing.T, found map[string]bool) *[]string {
	t.Helper()
	orig := probePortFn
	t.Cleanup(func() { probePortFn = orig })
	var probed []string
	probePortFn = func(_ context.Context, path string, _ time.Duration) bool {
		probed = append(probed, path)
		return found[path]
	}
	return &probed
}

var testPorts = []*enumerator.PortDetails{
	{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6015", SerialNumber: "DN04ABCD"},
	{Name: "/dev/ttyUSB1", IsUSB: true, VID: "2341", PID: "0043"},
	{Name: "/dev/ttyACM0", IsUSB: true, VID: "1209", PID: "0001", Product: "ID-12LA RFID Breakout"},
	{Name: "/dev/ttyS0"},
}

func TestDetect_Passive(t *testing.T) {
	stubPorts(t, testPorts, nil)
	probed := stubProbe(t, nil)

	opts := detection.DefaultOptions()
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, detection.Medium, devices[0].Confidence)
	assert.Equal(t, "0403:6015", devices[0].Metadata["vidpid"])
	assert.Equal(t, "DN04ABCD", devices[0].Metadata["serial"])
	assert.Contains(t, devices[0].Name, "FT231X")

	assert.Equal(t, "/dev/ttyACM0", devices[1].Path)
	assert.Equal(t, "ID-12LA RFID Breakout", devices[1].Name)
	assert.Empty(t, *probed, "passive mode never opens ports")
}

func TestDetect_ListenPromotesFramingPorts(t *testing.T) {
	stubPorts(t, testPorts, nil)
	probed := stubProbe(t, map[string]bool{"/dev/ttyUSB0": true, "/dev/ttyS0": true})

	opts := detection.DefaultOptions()
	opts.Mode = detection.Listen
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	byPath := make(map[string]detection.DeviceInfo)
	for _, d := range devices {
		byPath[d.Path] = d
	}
	assert.Equal(t, detection.High, byPath["/dev/ttyUSB0"].Confidence)
	assert.Equal(t, detection.Medium, byPath["/dev/ttyACM0"].Confidence)
	assert.Equal(t, detection.High, byPath["/dev/ttyS0"].Confidence)
	assert.NotContains(t, *probed, "/dev/ttyUSB1", "blocklisted port must not be opened")
}

func TestDetect_IgnorePaths(t *testing.T) {
	stubPorts(t, testPorts, nil)
	stubProbe(t, nil)

	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"/dev/ttyUSB0", "/dev/ttyACM0"}
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDetect_EnumerationErrors(t *testing.T) {
	enumErr := errors.New("udev unavailable")
	stubPorts(t, nil, enumErr)
	opts := detection.DefaultOptions()
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, enumErr)

	stubPorts(t, nil, nil)
	_, err = New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestIsLikelyReader(t *testing.T) {
	tests := []struct {
		name string
		port serialPort
		want bool
	}{
		{name: "sparkfun ftdi", port: serialPort{VIDPID: "0403:6015"}, want: true},
		{name: "ch340 lowercase", port: serialPort{VIDPID: "1a86:7523"}, want: true},
		{name: "product keyword", port: serialPort{VIDPID: "1209:0001", Product: "125kHz Reader"}, want: true},
		{name: "unknown", port: serialPort{VIDPID: "AAAA:BBBB", Product: "Modem"}, want: false},
		{name: "no descriptors", port: serialPort{Path: "/dev/ttyS0"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isLikelyReader(tt.port))
		})
	}
}

func TestScanForFrame(t *testing.T) {
	valid, err := frame.Encode([]byte("0F0368D2F5"))
	require.NoError(t, err)

	t.Run("frame after noise and a broken frame", func(t *testing.T) {
		transport := id12la.NewMockTransport()
		transport.Feed(0xFF, 0x00, frame.STX, '1', '2')
		transport.Feed(valid...)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.True(t, scanForFrame(ctx, transport))
	})

	t.Run("corrupt frame only", func(t *testing.T) {
		bad := append([]byte(nil), valid...)
		bad[frame.OffsetChecksum] = 'X'
		transport := id12la.NewMockTransport()
		transport.Feed(bad...)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.False(t, scanForFrame(ctx, transport))
	})

	t.Run("transport error", func(t *testing.T) {
		transport := id12la.NewMockTransport()
		transport.SetReadError(errors.New("gone"))
		assert.False(t, scanForFrame(context.Background(), transport))
	})
}

func TestResync(t *testing.T) {
	window := []byte{frame.STX, '1', frame.STX, '3'}
	assert.Equal(t, []byte{frame.STX, '3'}, resync(window))
	assert.Empty(t, resync([]byte{frame.STX, '1', '2'}))
}

func TestListenForFrame_MissingPort(t *testing.T) {
	assert.False(t, listenForFrame(context.Background(), "/dev/does-not-exist-id12la", 10*time.Millisecond))
}
