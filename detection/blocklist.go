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
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB serial devices that are never readers and
// should not be opened during detection. Format: VID:PID in hex.
func DefaultBlocklist() []string {
	return []string{
		"0483:5740", // STM32 virtual COM port: flight controllers, 3D printers
		"2341:0042", // Arduino Mega 2560 R3, resets when opened
		"2341:0043", // Arduino Uno R3, resets when opened
	}
}

// IsBlocked checks if a USB device is in the blocklist. Entries may use
// any format ParseVIDPID understands.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}

	for _, blocked := range blocklist {
		if normalized := ParseVIDPID(blocked); normalized != "" {
			blocked = normalized
		}
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// FormatVIDPID joins vendor and product IDs as "VVVV:PPPP". It returns ""
// if either is missing.
func FormatVIDPID(vid, pid string) string {
	vid = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(vid), "0x"))
	pid = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(pid), "0x"))
	if !isHex(vid) || !isHex(pid) {
		return ""
	}
	return leftPad4(vid) + ":" + leftPad4(pid)
}

func leftPad4(s string) string {
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}

// ParseVIDPID extracts VID:PID from the descriptor formats found in
// config files and OS tools:
//
//	"VID:0403 PID:6015"
//	"0403:6015"
//	"vendor=0403 product=6015"
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(strings.TrimSpace(descriptor))

	var vid, pid string
	switch {
	case strings.Contains(descriptor, "VID:"):
		vid = extractHex(descriptor[strings.Index(descriptor, "VID:")+4:])
	case strings.Contains(descriptor, "VENDOR="):
		vid = extractHex(descriptor[strings.Index(descriptor, "VENDOR=")+7:])
	case strings.Contains(descriptor, "VID="):
		vid = extractHex(descriptor[strings.Index(descriptor, "VID=")+4:])
	}
	switch {
	case strings.Contains(descriptor, "PID:"):
		pid = extractHex(descriptor[strings.Index(descriptor, "PID:")+4:])
	case strings.Contains(descriptor, "PRODUCT="):
		pid = extractHex(descriptor[strings.Index(descriptor, "PRODUCT=")+8:])
	case strings.Contains(descriptor, "PID="):
		pid = extractHex(descriptor[strings.Index(descriptor, "PID=")+4:])
	}
	if vid != "" && pid != "" {
		return FormatVIDPID(vid, pid)
	}

	if parts := strings.Split(descriptor, ":"); len(parts) == 2 {
		return FormatVIDPID(parts[0], parts[1])
	}
	return ""
}

// extractHex returns the first run of hex digits in s
func extractHex(s string) string {
	var result strings.Builder
	foundHex := false

	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			_, _ = result.WriteRune(r)
			foundHex = true
		} else if foundHex {
			break
		}
	}
	return result.String()
}

func isHex(s string) bool {
	if s == "" || len(s) > 4 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// IsPathIgnored checks if a device path should be ignored. Paths are
// compared cleaned and case-insensitively, since Windows COM names are.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" || len(ignorePaths) == 0 {
		return false
	}

	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
