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

// Package uart detects ID-12LA readers on serial ports. Importing it
// registers the detector with the detection package.
package uart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-id12la"
	"github.com/ZaparooProject/go-id12la/detection"
	"github.com/ZaparooProject/go-id12la/internal/frame"
	uarttransport "github.com/ZaparooProject/go-id12la/transport/uart"
	"go.bug.st/serial/enumerator"
)

// Test seams for enumeration and probing
var (
	listPortsFn = enumerator.GetDetailedPortsList
	probePortFn = listenForFrame
)

// knownBridges are USB serial bridges found on ID-12LA carrier boards
var knownBridges = map[string]string{
	"0403:6015": "FTDI FT231X (SparkFun RFID USB board)",
	"0403:6001": "FTDI FT232R",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "QinHeng CH340",
	"067B:2303": "Prolific PL2303",
}

// readerKeywords appear in product strings of reader boards
var readerKeywords = []string{"rfid", "id-12", "id12", "125khz", "em4100"}

// detector implements the Detector interface for serial ports
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect lists serial ports and keeps those that look like a reader
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.enumeratePorts()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for _, port := range d.filterPorts(ports, opts) {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}

		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// serialPort is the subset of enumerator data detection works with
type serialPort struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

// enumeratePorts gets the list of available serial ports
func (*detector) enumeratePorts() ([]serialPort, error) {
	details, err := listPortsFn()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	if len(details) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	ports := make([]serialPort, 0, len(details))
	for _, pd := range details {
		if pd == nil {
			continue
		}
		port := serialPort{Path: pd.Name, IsUSB: pd.IsUSB}
		if pd.IsUSB {
			port.VIDPID = detection.FormatVIDPID(pd.VID, pd.PID)
			port.Product = pd.Product
			port.SerialNumber = pd.SerialNumber
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// filterPorts removes blocked and ignored ports
func (*detector) filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	var filtered []serialPort
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		filtered = append(filtered, port)
	}
	return filtered
}

// processPort rates one port. In Passive mode only likely ports are
// returned; Listen mode also returns unknown ports that sent a frame.
func (*detector) processPort(ctx context.Context, port serialPort, opts *detection.Options) (detection.DeviceInfo, bool) {
	confidence := detection.Low
	if isLikelyReader(port) {
		confidence = detection.Medium
	}

	if opts.Mode == detection.Listen {
		if probePortFn(ctx, port.Path, opts.ListenTimeout) {
			confidence = detection.High
		}
	}

	if confidence == detection.Low {
		return detection.DeviceInfo{}, false
	}
	return createDeviceInfo(port, confidence), true
}

func createDeviceInfo(port serialPort, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Path,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}

	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
		if name, ok := knownBridges[port.VIDPID]; ok {
			device.Name = name
		}
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
		device.Name = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// isLikelyReader checks descriptors against known reader boards
func isLikelyReader(port serialPort) bool {
	if _, ok := knownBridges[strings.ToUpper(port.VIDPID)]; ok {
		return true
	}

	lowerProduct := strings.ToLower(port.Product)
	for _, keyword := range readerKeywords {
		if strings.Contains(lowerProduct, keyword) {
			return true
		}
	}
	return false
}

// listenForFrame opens the port at the reader's baud rate and reports
// whether a valid tag frame arrives before timeout. Only one attempt is
// made per port.
func listenForFrame(ctx context.Context, path string, timeout time.Duration) bool {
	transport, err := uarttransport.New(path)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	if err := transport.Begin(id12la.DefaultBaudRate); err != nil {
		id12la.Debugf("detection: cannot open %s: %v", path, err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return scanForFrame(ctx, transport)
}

// scanForFrame reads bytes until a window of frame.Length bytes starting
// at STX validates, or ctx is done.
func scanForFrame(ctx context.Context, transport id12la.Transport) bool {
	window := make([]byte, 0, frame.Length)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		b, err := transport.ReadByte()
		switch {
		case err == nil:
			if len(window) == 0 && b != frame.STX {
				continue
			}
			window = append(window, b)
			if len(window) < frame.Length {
				continue
			}
			if frame.Validate(window) == nil {
				return true
			}
			window = resync(window)
			continue
		case !errors.Is(err, id12la.ErrNoData):
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// resync drops the leading STX of a failed window and restarts at the
// next STX inside it.
func resync(window []byte) []byte {
	for i := 1; i < len(window); i++ {
		if window[i] == frame.STX {
			return append(window[:0], window[i:]...)
		}
	}
	return window[:0]
}
