// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/barometer/internal/config"
	"github.com/relabs-tech/barometer/internal/measurement"
)

// Platform names reported by Adapter.Platform.
const (
	PlatformBMP  = config.PlatformBMP
	PlatformIIO  = config.PlatformIIO
	PlatformNMEA = config.PlatformNMEA
	PlatformMock = config.PlatformMock
	PlatformStub = config.PlatformStub
)

// Scale factors from native pressure units to hectopascals.
const (
	KilopascalToHectopascal = 10.0
	BarToHectopascal        = 1000.0
)

// Open selects the adapter for the running environment. It is meant to be
// called once at start-up; auto probes bmp, iio and nmea in that order and
// falls back to the stub adapter.
func Open(cfg *config.Config, logger *log.Logger) (Adapter, error) {
	if logger == nil {
		logger = log.Default()
	}
	interval := time.Duration(cfg.SampleIntervalMS) * time.Millisecond

	switch cfg.Platform {
	case config.PlatformStub:
		return NewStubAdapter(), nil

	case config.PlatformMock:
		return NewNativeAdapter(newMockFromConfig(cfg, interval), WithLogger(logger)), nil

	case config.PlatformBMP:
		d, err := NewBMPDriver(bmpOptions(cfg, interval))
		if err != nil {
			return nil, err
		}
		return NewNativeAdapter(d, WithLogger(logger)), nil

	case config.PlatformIIO:
		d, err := NewIIODriver(cfg.IIORoot, cfg.IIODevice, interval)
		if err != nil {
			return nil, err
		}
		return NewNativeAdapter(d, WithLogger(logger)), nil

	case config.PlatformNMEA:
		d := NewNMEADriver(cfg.NMEASerialPort, cfg.NMEABaudRate)
		if !d.Available() {
			return nil, fmt.Errorf("nmea: port %s: %w", cfg.NMEASerialPort, ErrUnavailable)
		}
		return NewNativeAdapter(d, WithLogger(logger)), nil

	case config.PlatformAuto:
		bmp, err := NewBMPDriver(bmpOptions(cfg, interval))
		if err == nil {
			logger.Printf("barometer: using BMP sensor on %s", cfg.BMPBus)
			return NewNativeAdapter(bmp, WithLogger(logger)), nil
		}
		logger.Printf("barometer: no BMP sensor: %v", err)

		iio, err := NewIIODriver(cfg.IIORoot, cfg.IIODevice, interval)
		if err == nil {
			logger.Printf("barometer: using IIO device %s", iio.Dir())
			return NewNativeAdapter(iio, WithLogger(logger)), nil
		}
		logger.Printf("barometer: no IIO pressure device: %v", err)

		if cfg.NMEASerialPort != "" {
			d := NewNMEADriver(cfg.NMEASerialPort, cfg.NMEABaudRate)
			if d.Available() {
				logger.Printf("barometer: using NMEA weather station on %s", cfg.NMEASerialPort)
				return NewNativeAdapter(d, WithLogger(logger)), nil
			}
			logger.Printf("barometer: NMEA port %s not present", cfg.NMEASerialPort)
		}
		logger.Println("barometer: no pressure sensor found, using unavailable stub")
		return NewStubAdapter(), nil
	}

	return nil, fmt.Errorf("%w: unknown platform %q", config.ErrInvalid, cfg.Platform)
}

func bmpOptions(cfg *config.Config, interval time.Duration) BMPOptions {
	return BMPOptions{
		Bus:         cfg.BMPBus,
		I2CBus:      cfg.BMPI2CBus,
		I2CAddr:     cfg.BMPI2CAddr,
		SPIDevice:   cfg.BMPSPIDevice,
		PressureOSR: cfg.BMPPressureOSR,
		TempOSR:     cfg.BMPTempOSR,
		IIRFilter:   cfg.BMPIIRFilter,
		Interval:    interval,
	}
}

func newMockFromConfig(cfg *config.Config, interval time.Duration) *MockDriver {
	initial := AuthFromPermission(measurement.ParsePermissionState(cfg.MockPermission))
	answer := AuthFromPermission(measurement.ParsePermissionState(cfg.MockPromptAnswer))
	return NewMockDriver(cfg.MockBasePressureKPa, interval, initial, answer)
}
