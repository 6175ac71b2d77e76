// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// IIO sysfs attribute names. Processed pressure is reported in kPa.
const (
	iioPressureInput = "in_pressure_input"
	iioPressureRaw   = "in_pressure_raw"
	iioPressureScale = "in_pressure_scale"
)

// IIODriver reads a pressure channel of a Linux Industrial I/O device.
type IIODriver struct {
	dir      string
	interval time.Duration
}

// NewIIODriver uses device when set, otherwise the first iio:device under
// root exposing a pressure channel.
func NewIIODriver(root, device string, interval time.Duration) (*IIODriver, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if device != "" {
		if !hasPressureChannel(device) {
			return nil, fmt.Errorf("iio: %s has no pressure channel: %w", device, ErrUnavailable)
		}
		return &IIODriver{dir: device, interval: interval}, nil
	}

	matches, err := filepath.Glob(filepath.Join(root, "iio:device*"))
	if err != nil {
		return nil, fmt.Errorf("iio: scan %s: %w", root, err)
	}
	sort.Strings(matches)
	for _, dir := range matches {
		if hasPressureChannel(dir) {
			return &IIODriver{dir: dir, interval: interval}, nil
		}
	}
	return nil, fmt.Errorf("iio: no pressure device under %s: %w", root, ErrUnavailable)
}

func hasPressureChannel(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, iioPressureInput)); err == nil {
		return true
	}
	_, err := os.Stat(filepath.Join(dir, iioPressureRaw))
	return err == nil
}

func (d *IIODriver) Name() string { return PlatformIIO }

// Dir returns the sysfs device directory.
func (d *IIODriver) Dir() string { return d.dir }

func (d *IIODriver) HectopascalScale() float64 { return KilopascalToHectopascal }

// Available re-checks sysfs, so an unbound device reports false.
func (d *IIODriver) Available() bool {
	return hasPressureChannel(d.dir)
}

func (d *IIODriver) channelFile() string {
	p := filepath.Join(d.dir, iioPressureInput)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return filepath.Join(d.dir, iioPressureRaw)
}

// AuthorizationStatus maps file access on the pressure channel.
func (d *IIODriver) AuthorizationStatus() AuthStatus {
	f, err := os.Open(d.channelFile())
	if err == nil {
		f.Close()
		return AuthAuthorized
	}
	if errors.Is(err, os.ErrPermission) {
		return AuthDenied
	}
	return AuthRestricted
}

// RequestAuthorization cannot prompt: access is decided by file modes.
func (d *IIODriver) RequestAuthorization(ctx context.Context) (AuthStatus, error) {
	return d.AuthorizationStatus(), nil
}

// read returns the current pressure in kPa.
func (d *IIODriver) read() (float64, error) {
	if v, err := readFloat(filepath.Join(d.dir, iioPressureInput)); err == nil {
		return v, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}

	raw, err := readFloat(filepath.Join(d.dir, iioPressureRaw))
	if err != nil {
		return 0, err
	}
	scale, err := readFloat(filepath.Join(d.dir, iioPressureScale))
	if errors.Is(err, os.ErrNotExist) {
		scale = 1
	} else if err != nil {
		return 0, err
	}
	return raw * scale, nil
}

func readFloat(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("iio: parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

// Subscribe polls the channel on a ticker until cancelled.
func (d *IIODriver) Subscribe(h Handler) (CancelFunc, error) {
	if !d.Available() {
		return nil, ErrUnavailable
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		var alt altimeter
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			kpa, err := d.read()
			if err != nil {
				h(Reading{}, err)
				continue
			}
			h(Reading{Pressure: kpa, RelativeAltitude: alt.relative(kpa * KilopascalToHectopascal)}, nil)
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }, nil
}
