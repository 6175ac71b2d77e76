// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/barometer/internal/bridge"
	"github.com/relabs-tech/barometer/internal/config"
	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// displayData holds the latest measurement for the OLED.
type displayData struct {
	mu   sync.RWMutex
	last measurement.Measurement
	have bool
}

func (d *displayData) set(m measurement.Measurement) {
	d.mu.Lock()
	d.last = m
	d.have = true
	d.mu.Unlock()
}

func (d *displayData) snapshot() (measurement.Measurement, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last, d.have
}

// displayLines lays out one measurement in the 7x13 font, four lines max.
func displayLines(m measurement.Measurement, have bool) []string {
	if !have {
		return []string{"Barometer", "Waiting..."}
	}
	return []string{
		"Barometer",
		fmt.Sprintf("%7.2f hPa", m.Pressure),
		fmt.Sprintf("Alt: %+.1f m", m.RelativeAltitude),
		m.Time().Format("15:04:05"),
	}
}

// renderLines draws lines top to bottom into a frame sized for the panel.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, lineHeight*(i+1))
		drawer.DrawString(line)
	}
	return img
}

// addrBus pins every transaction to addr. The ssd1306 I²C constructor
// always talks to 0x3C; panels strapped to 0x3D need the rewrite.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

func drawLines(dev *ssd1306.Dev, lines []string) error {
	return dev.Draw(dev.Bounds(), renderLines(lines), image.Point{})
}

// RunDisplay shows the latest measurement published by the producer.
func RunDisplay() error {
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(&addrBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := drawLines(dev, []string{"", "  Barometer", "  Looking for", "  producer..."}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := bridge.Connect(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	codec, err := bridge.NewCodec(cfg.BridgeCodec)
	if err != nil {
		return err
	}
	remote := bridge.NewClient(bridge.NewMQTTTransport(client), codec, cfg.TopicPrefix,
		cfg.MQTTClientIDDisplay, time.Duration(cfg.BridgeCallTimeoutMS)*time.Millisecond, nil)
	if err := remote.Start(); err != nil {
		return err
	}
	defer remote.Close()

	data := &displayData{}
	if _, err := remote.AddListener(listeners.EventMeasurement, data.set); err != nil {
		return fmt.Errorf("display: subscribe: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			log.Println("display: shutting down")
			return nil
		case <-ticker.C:
			if err := drawLines(dev, displayLines(data.snapshot())); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		}
	}
}
