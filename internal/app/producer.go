// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/barometer/internal/barometer"
	"github.com/relabs-tech/barometer/internal/bridge"
	"github.com/relabs-tech/barometer/internal/config"
	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
	"github.com/relabs-tech/barometer/internal/session"
)

// producer owns the sensor and serves it on the bridge.
type producer struct {
	baro      *barometer.Barometer
	server    *bridge.Server
	autostart bool
	logger    *log.Logger
	ctrl      *session.Controller
}

func newProducer(baro *barometer.Barometer, transport bridge.Transport, codec bridge.Codec, cfg *config.Config, logger *log.Logger) *producer {
	p := &producer{
		baro:      baro,
		server:    bridge.NewServer(baro, transport, codec, cfg.TopicPrefix, logger),
		autostart: cfg.AutostartUpdates,
		logger:    logger,
	}
	p.ctrl = session.New(baro, p.tick, session.WithLogger(logger))
	return p
}

// tick logs each streamed measurement.
func (p *producer) tick(m measurement.Measurement) {
	p.logger.Printf("%s published measurement: %.2f hPa, %.2f m",
		m.Time().Format(time.RFC3339), m.Pressure, m.RelativeAltitude)
}

// run serves calls until ctx is done, then stops streaming and clears every
// listener.
func (p *producer) run(ctx context.Context) error {
	if err := p.server.Start(); err != nil {
		return err
	}

	if p.autostart {
		// Forward events even before any remote client asks for them.
		if r := p.server.Dispatch(ctx, bridge.Call{Method: bridge.MethodAddListener, EventName: listeners.EventMeasurement}); r.Error != nil {
			p.logger.Printf("producer: event forwarding: %v", r.Error)
		}
		if err := p.ctrl.Start(ctx); err != nil {
			p.logger.Printf("producer: autostart failed: %v", err)
		}
	}

	<-ctx.Done()

	p.logger.Println("producer: shutting down")
	p.ctrl.Stop(context.Background())
	p.server.Stop()
	p.baro.Shutdown(context.Background())
	return nil
}

// RunBarometerProducer serves the local sensor over MQTT.
func RunBarometerProducer() error {
	log.Println("starting barometer producer")
	return runBarometerProducer(config.Get(), log.Default())
}

func runBarometerProducer(cfg *config.Config, logger *log.Logger) error {
	baro, err := barometer.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open barometer: %w", err)
	}
	logger.Printf("using %s barometer", baro.Platform())

	codec, err := bridge.NewCodec(cfg.BridgeCodec)
	if err != nil {
		return err
	}

	client, err := bridge.Connect(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Println("connected to MQTT, serving barometer calls")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newProducer(baro, bridge.NewMQTTTransport(client), codec, cfg, logger).run(ctx)
}
