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
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ZaparooProject/go-id12la"
	"github.com/ZaparooProject/go-id12la/polling"
	"gopkg.in/yaml.v3"
)

// config holds the resolved command-line settings
type config struct {
	device       string
	resetPin     string
	tirPin       string
	configPath   string
	logDir       string
	readTimeout  time.Duration
	pollInterval time.Duration
	settleDelay  time.Duration
	removalAfter time.Duration
	baud         int
	threshold    int
	debug        bool
	once         bool
	list         bool
}

// fileConfig is the on-disk configuration. Durations are strings such
// as "50ms" in both formats.
type fileConfig struct {
	Device         string `yaml:"device" toml:"device"`
	ResetPin       string `yaml:"reset_pin" toml:"reset_pin"`
	TIRPin         string `yaml:"tir_pin" toml:"tir_pin"`
	ReadTimeout    string `yaml:"read_timeout" toml:"read_timeout"`
	PollInterval   string `yaml:"poll_interval" toml:"poll_interval"`
	SettleDelay    string `yaml:"settle_delay" toml:"settle_delay"`
	RemovalTimeout string `yaml:"removal_timeout" toml:"removal_timeout"`
	LogDir         string `yaml:"log_dir" toml:"log_dir"`
	Baud           int    `yaml:"baud" toml:"baud"`
	ReadyThreshold int    `yaml:"ready_threshold" toml:"ready_threshold"`
	Debug          bool   `yaml:"debug" toml:"debug"`
}

var errUnknownConfigFormat = errors.New("unknown config file format")

func defaultConfig() *config {
	readerCfg := id12la.DefaultConfig()
	return &config{
		resetPin:     "GPIO17",
		tirPin:       "GPIO27",
		readTimeout:  readerCfg.ReadTimeout,
		pollInterval: polling.DefaultConfig().PollInterval,
		settleDelay:  readerCfg.SettleDelay,
		removalAfter: polling.DefaultConfig().RemovalTimeout,
		baud:         readerCfg.BaudRate,
		threshold:    readerCfg.ReadyThreshold,
	}
}

// parseConfig parses args into a config. Values from -config are applied
// first and any flag given explicitly overrides them.
func parseConfig(args []string) (*config, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("reader", flag.ContinueOnError)

	fs.StringVar(&cfg.device, "device", cfg.device, "Serial port (auto-detect if empty)")
	fs.StringVar(&cfg.resetPin, "reset-pin", cfg.resetPin, "GPIO name wired to the reader's reset input")
	fs.StringVar(&cfg.tirPin, "tir-pin", cfg.tirPin, "GPIO name wired to the tag-in-range output")
	fs.DurationVar(&cfg.readTimeout, "timeout", cfg.readTimeout, "How long to wait for a frame after arming")
	fs.DurationVar(&cfg.pollInterval, "poll", cfg.pollInterval, "Pause between read cycles")
	fs.IntVar(&cfg.threshold, "threshold", cfg.threshold,
		"Bytes buffered before a frame is captured (16 for modules that send no extra byte)")
	fs.StringVar(&cfg.configPath, "config", "", "YAML or TOML config file")
	fs.BoolVar(&cfg.debug, "debug", cfg.debug, "Enable debug output")
	fs.StringVar(&cfg.logDir, "log", "", "Directory for a session log file")
	fs.BoolVar(&cfg.once, "once", false, "Read a single tag and exit")
	fs.BoolVar(&cfg.list, "list", false, "List candidate serial ports and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err //nolint:wrapcheck // flag already prints usage
	}

	if cfg.configPath == "" {
		return cfg, cfg.validate()
	}

	file, err := loadConfigFile(cfg.configPath)
	if err != nil {
		return nil, err
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if err := cfg.apply(file, explicit); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

// loadConfigFile decodes path by its extension
func loadConfigFile(path string) (*fileConfig, error) {
	var file fileConfig

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path) //nolint:gosec // user-supplied config path
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownConfigFormat, path)
	}
	return &file, nil
}

// apply copies set file values that were not given as flags
func (c *config) apply(file *fileConfig, explicit map[string]bool) error {
	setString := func(flagName, value string, dst *string) {
		if value != "" && !explicit[flagName] {
			*dst = value
		}
	}
	setString("device", file.Device, &c.device)
	setString("reset-pin", file.ResetPin, &c.resetPin)
	setString("tir-pin", file.TIRPin, &c.tirPin)
	setString("log", file.LogDir, &c.logDir)

	durations := []struct {
		dst   *time.Duration
		flag  string
		key   string
		value string
	}{
		{dst: &c.readTimeout, flag: "timeout", key: "read_timeout", value: file.ReadTimeout},
		{dst: &c.pollInterval, flag: "poll", key: "poll_interval", value: file.PollInterval},
		{dst: &c.settleDelay, key: "settle_delay", value: file.SettleDelay},
		{dst: &c.removalAfter, key: "removal_timeout", value: file.RemovalTimeout},
	}
	for _, d := range durations {
		if d.value == "" || (d.flag != "" && explicit[d.flag]) {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, d.value, err)
		}
		*d.dst = v
	}

	if file.Baud != 0 {
		c.baud = file.Baud
	}
	if file.ReadyThreshold != 0 && !explicit["threshold"] {
		c.threshold = file.ReadyThreshold
	}
	if file.Debug && !explicit["debug"] {
		c.debug = true
	}
	return nil
}

func (c *config) validate() error {
	if c.list {
		return nil
	}
	if c.threshold < 1 {
		return fmt.Errorf("%w: ready threshold %d", id12la.ErrInvalidParameter, c.threshold)
	}
	if c.resetPin == "" || c.tirPin == "" {
		return fmt.Errorf("%w: reset and tag-in-range pins are required", id12la.ErrInvalidParameter)
	}
	return nil
}

// readerOptions converts the config into reader options
func (c *config) readerOptions() []id12la.Option {
	return []id12la.Option{
		id12la.WithBaudRate(c.baud),
		id12la.WithReadTimeout(c.readTimeout),
		id12la.WithSettleDelay(c.settleDelay),
		id12la.WithReadyThreshold(c.threshold),
	}
}

// pollingConfig converts the config into a monitor config
func (c *config) pollingConfig() *polling.Config {
	cfg := polling.DefaultConfig()
	cfg.PollInterval = c.pollInterval
	cfg.RemovalTimeout = c.removalAfter
	return cfg
}
