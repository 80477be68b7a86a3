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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/go-id12la"
	"github.com/ZaparooProject/go-id12la/detection"
	_ "github.com/ZaparooProject/go-id12la/detection/uart"
	"github.com/ZaparooProject/go-id12la/pins"
	"github.com/ZaparooProject/go-id12la/polling"
	"github.com/ZaparooProject/go-id12la/transport/uart"
)

var errNoDevice = errors.New("no ID-12LA reader found")

// listDevices prints every candidate port. Ports that deliver a frame
// while listing are rated high, so present a tag to confirm the reader.
func listDevices(ctx context.Context, out io.Writer) error {
	opts := detection.DefaultOptions()
	opts.Mode = detection.Listen
	opts.EnableCache = false
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil && !errors.Is(err, detection.ErrNoDevicesFound) {
		return fmt.Errorf("detection failed: %w", err)
	}
	if len(devices) == 0 {
		_, _ = fmt.Fprintln(out, "No candidate serial ports found")
		return nil
	}
	for _, d := range devices {
		_, _ = fmt.Fprintf(out, "%s  %s  [%s]\n", d.Path, d.Name, d.Confidence)
	}
	return nil
}

// resolveDevice returns the configured port or the best detected one
func resolveDevice(ctx context.Context, cfg *config) (string, error) {
	if cfg.device != "" {
		return cfg.device, nil
	}
	if cfg.debug {
		_, _ = fmt.Println("Auto-detecting ID-12LA readers...")
	}

	opts := detection.DefaultOptions()
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil && !errors.Is(err, detection.ErrNoDevicesFound) {
		return "", fmt.Errorf("detection failed: %w", err)
	}
	best, ok := detection.Best(devices)
	if !ok {
		return "", errNoDevice
	}
	if cfg.debug {
		_, _ = fmt.Printf("Using %s\n", best)
	}
	return best.Path, nil
}

// openReader builds and initializes a reader on port using lines
func openReader(port string, lines id12la.Lines, cfg *config) (*id12la.Reader, error) {
	transport, err := uart.New(port)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport: %w", err)
	}
	reader, err := id12la.New(transport, lines, cfg.readerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	if err := reader.Init(); err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("failed to initialize reader on %s: %w", port, err)
	}
	return reader, nil
}

// runOnce reads a single tag, retrying read faults
func runOnce(ctx context.Context, reader *id12la.Reader, out io.Writer) error {
	_, _ = fmt.Fprintln(out, "Waiting for a tag...")
	tag, err := reader.ReadWithRetry(ctx, id12la.DefaultRetryConfig())
	if err != nil {
		var re *id12la.ReadError
		if errors.As(err, &re) && len(re.Captured) > 0 {
			id12la.Debugln(re.FormatCapture())
		}
		return fmt.Errorf("read failed: %w", err)
	}
	printTag(out, tag)
	return nil
}

func printTag(out io.Writer, tag id12la.TagID) {
	data, err := tag.Bytes()
	if err != nil {
		_, _ = fmt.Fprintf(out, "Tag: %s\n", tag)
		return
	}
	_, _ = fmt.Fprintf(out, "Tag: %s (version 0x%02X, serial %d)\n", tag, data[0],
		uint32(data[1])<<24|uint32(data[2])<<16|uint32(data[3])<<8|uint32(data[4]))
}

// runMonitor prints tag events until ctx is done or the reader is lost
func runMonitor(ctx context.Context, reader *id12la.Reader, cfg *config, out io.Writer,
	opts ...polling.MonitorOption,
) error {
	failed := make(chan error, 1)
	callbacks := polling.Callbacks{
		OnTagDetected: func(tag id12la.TagID) error {
			printTag(out, tag)
			return nil
		},
		OnTagChanged: func(tag id12la.TagID) error {
			printTag(out, tag)
			return nil
		},
		OnTagRemoved: func() {
			_, _ = fmt.Fprintln(out, "Tag removed - ready for next tag...")
		},
		OnError: func(err error) {
			if id12la.IsRetryable(err) {
				id12la.Debugf("read fault: %v", err)
				return
			}
			select {
			case failed <- err:
			default:
			}
		},
	}

	monitor, err := polling.NewMonitor(reader, cfg.pollingConfig(), callbacks, opts...)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	defer func() {
		monitor.Stop()
		if cfg.debug {
			m := monitor.GetMetrics()
			_, _ = fmt.Fprintf(out, "cycles=%d tags=%d errors=%d recoveries=%d\n",
				m.PollCycles, m.TagsDetected, m.PollErrors, m.Recoveries)
		}
	}()

	_, _ = fmt.Fprintln(out, "Starting continuous tag monitoring. Press Ctrl+C to stop...")

	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // shutdown signal
	case err := <-failed:
		if !id12la.IsFatal(err) && monitor.Running() {
			id12la.Debugf("reader error: %v", err)
			<-ctx.Done()
			return ctx.Err() //nolint:wrapcheck // shutdown signal
		}
		return fmt.Errorf("reader lost: %w", err)
	}
}

func run(ctx context.Context, cfg *config) error {
	if cfg.list {
		return listDevices(ctx, os.Stdout)
	}

	port, err := resolveDevice(ctx, cfg)
	if err != nil {
		return err
	}

	lines, err := pins.New(cfg.resetPin, cfg.tirPin)
	if err != nil {
		return fmt.Errorf("failed to open GPIO lines: %w", err)
	}

	reader, err := openReader(port, lines, cfg)
	if err != nil {
		return err
	}
	defer func() {
		// reopen replaces reader, so this closes whichever is current
		if err := reader.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close reader: %v\n", err)
		}
	}()

	if cfg.once {
		return runOnce(ctx, reader, os.Stdout)
	}

	reopen := func() (*id12la.Reader, error) {
		transport, err := uart.New(port)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		fresh, err := id12la.New(transport, lines, cfg.readerOptions()...)
		if err != nil {
			return nil, fmt.Errorf("failed to create reader: %w", err)
		}
		reader = fresh
		return fresh, nil
	}
	sleep := polling.DefaultSleepRecoveryConfig()
	recoverer := polling.NewDefaultRecoverer(reader, reopen, sleep.RecoveryBackoff, sleep.MaxRecoveryAttempts)

	return runMonitor(ctx, reader, cfg, os.Stdout,
		polling.WithRecoverer(recoverer),
		polling.WithTagWaiter(lines),
	)
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := parseConfig(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.debug {
		id12la.SetDebugEnabled(true)
	}
	if cfg.logDir != "" {
		path, err := id12la.InitSessionLog(cfg.logDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(os.Stderr, "Session log: %s\n", path)
		defer func() { _ = id12la.CloseSessionLog() }()
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
