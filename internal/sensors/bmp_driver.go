// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// BMPOptions selects the bus and sampling settings of a BMP280/BME280.
type BMPOptions struct {
	Bus         string // "i2c" or "spi"
	I2CBus      string
	I2CAddr     uint16
	SPIDevice   string
	PressureOSR byte // 0-5
	TempOSR     byte // 0-5
	IIRFilter   byte // 0-4
	Interval    time.Duration
}

type senseDevice interface {
	Sense(e *physic.Env) error
	Halt() error
}

// BMPDriver samples a Bosch BMP280/BME280 through periph.io.
type BMPDriver struct {
	dev      senseDevice
	bus      io.Closer
	interval time.Duration

	mu     sync.Mutex // serialises bus access
	closed bool
}

// NewBMPDriver initializes periph and opens the sensor. An error means no
// usable sensor is attached.
func NewBMPDriver(o BMPOptions) (*BMPDriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bmp: periph host init: %w", err)
	}

	opts := bmxx80.Opts{
		Temperature: bmxx80.Oversampling(o.TempOSR),
		Pressure:    bmxx80.Oversampling(o.PressureOSR),
		Filter:      bmxx80.Filter(o.IIRFilter),
	}

	switch o.Bus {
	case "spi":
		port, err := spireg.Open(o.SPIDevice)
		if err != nil {
			return nil, fmt.Errorf("bmp: SPI open %s: %w", o.SPIDevice, err)
		}
		dev, err := bmxx80.NewSPI(port, &opts)
		if err != nil {
			port.Close()
			return nil, fmt.Errorf("bmp: SPI init: %w", err)
		}
		return newBMPDriver(dev, port, o.Interval), nil
	default:
		bus, err := i2creg.Open(o.I2CBus)
		if err != nil {
			return nil, fmt.Errorf("bmp: I2C open %q: %w", o.I2CBus, err)
		}
		dev, err := bmxx80.NewI2C(bus, o.I2CAddr, &opts)
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("bmp: I2C init at 0x%02X: %w", o.I2CAddr, err)
		}
		return newBMPDriver(dev, bus, o.Interval), nil
	}
}

func newBMPDriver(dev senseDevice, bus io.Closer, interval time.Duration) *BMPDriver {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &BMPDriver{dev: dev, bus: bus, interval: interval}
}

func (d *BMPDriver) Name() string { return PlatformBMP }

// HectopascalScale converts the kPa readings to hPa.
func (d *BMPDriver) HectopascalScale() float64 { return KilopascalToHectopascal }

// Available is false once the device has been closed.
func (d *BMPDriver) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dev != nil && !d.closed
}

// sense reads one pressure sample in kPa.
func (d *BMPDriver) sense() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, fmt.Errorf("bmp: device closed")
	}
	var e physic.Env
	if err := d.dev.Sense(&e); err != nil {
		return 0, fmt.Errorf("bmp sense: %w", err)
	}
	return float64(e.Pressure) / float64(physic.KiloPascal), nil
}

// Subscribe samples on a ticker until cancelled. Relative altitude is
// measured from the first sample of this subscription.
func (d *BMPDriver) Subscribe(h Handler) (CancelFunc, error) {
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
			kpa, err := d.sense()
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

// Close halts the sensor and releases the bus.
func (d *BMPDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.dev.Halt()
	if d.bus != nil {
		if cerr := d.bus.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
