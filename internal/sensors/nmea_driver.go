// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// NMEADriver reads barometric pressure from a weather station that emits
// MDA (meteorological composite) sentences on a serial port.
type NMEADriver struct {
	port  string
	baud  uint
	retry time.Duration // delay before reopening after a read error

	open   func() (io.ReadWriteCloser, error)
	exists func() bool
}

// NewNMEADriver prepares the driver; the port is opened per subscription.
func NewNMEADriver(port string, baud uint) *NMEADriver {
	d := &NMEADriver{port: port, baud: baud, retry: 2 * time.Second}
	d.open = func() (io.ReadWriteCloser, error) {
		return serial.Open(serial.OpenOptions{
			PortName:              d.port,
			BaudRate:              d.baud,
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		})
	}
	d.exists = func() bool {
		_, err := os.Stat(d.port)
		return err == nil
	}
	return d
}

func (d *NMEADriver) Name() string { return PlatformNMEA }

// HectopascalScale converts bar to hPa.
func (d *NMEADriver) HectopascalScale() float64 { return BarToHectopascal }

func (d *NMEADriver) Available() bool {
	return d.port != "" && d.exists()
}

// parseMDA extracts the pressure in bar from an MDA sentence. ok is false for
// other sentence types, unparsable lines and MDA without a bar field.
func parseMDA(line string) (bar float64, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return 0, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return 0, false
	}
	if sentence.DataType() != nmea.TypeMDA {
		return 0, false
	}
	m := sentence.(nmea.MDA)
	if !m.BarsValid || m.PressureBar <= 0 {
		return 0, false
	}
	return m.PressureBar, true
}

// Subscribe opens the serial port and reads sentences until cancelled.
// A failed read is reported to h, then the port is reopened every retry
// interval until it comes back. Cancelling closes the port, which unblocks
// the pending read.
func (d *NMEADriver) Subscribe(h Handler) (CancelFunc, error) {
	port, err := d.open()
	if err != nil {
		return nil, fmt.Errorf("nmea: open %s: %w", d.port, err)
	}

	s := &nmeaStream{port: port, stop: make(chan struct{})}
	go d.run(s, port, h)
	return s.cancel, nil
}

// nmeaStream is the port currently read by one subscription.
type nmeaStream struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	stopped bool
	stop    chan struct{}
}

func (s *nmeaStream) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
	if s.port != nil {
		s.port.Close()
		s.port = nil
	}
}

// release closes a port that failed.
func (s *nmeaStream) release(p io.ReadWriteCloser) {
	s.mu.Lock()
	if s.port == p {
		s.port = nil
	}
	s.mu.Unlock()
	p.Close()
}

// install makes p the current port. It is false when the subscription was
// cancelled while p was being opened.
func (s *nmeaStream) install(p io.ReadWriteCloser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		p.Close()
		return false
	}
	s.port = p
	return true
}

func (d *NMEADriver) run(s *nmeaStream, port io.ReadWriteCloser, h Handler) {
	var alt altimeter
	for {
		err := d.read(port, &alt, h)
		select {
		case <-s.stop:
			return
		default:
		}
		h(Reading{}, fmt.Errorf("nmea: read %s: %w", d.port, err))
		s.release(port)

		port = d.reopen(s, h)
		if port == nil {
			return
		}
	}
}

// reopen retries the port until it opens or the subscription is cancelled.
func (d *NMEADriver) reopen(s *nmeaStream, h Handler) io.ReadWriteCloser {
	for {
		select {
		case <-s.stop:
			return nil
		case <-time.After(d.retry):
		}
		p, err := d.open()
		if err != nil {
			h(Reading{}, fmt.Errorf("nmea: reopen %s: %w", d.port, err))
			continue
		}
		if !s.install(p) {
			return nil
		}
		return p
	}
}

// read delivers MDA samples from port until a read fails.
func (d *NMEADriver) read(port io.Reader, alt *altimeter, h Handler) error {
	reader := bufio.NewReader(port)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		bar, ok := parseMDA(line)
		if !ok {
			continue
		}
		h(Reading{Pressure: bar, RelativeAltitude: alt.relative(bar * BarToHectopascal)}, nil)
	}
}
