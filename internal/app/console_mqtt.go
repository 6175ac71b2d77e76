// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/barometer/internal/bridge"
	"github.com/relabs-tech/barometer/internal/config"
)

// RunConsoleMQTT runs the console against a remote producer.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := bridge.Connect(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	codec, err := bridge.NewCodec(cfg.BridgeCodec)
	if err != nil {
		return err
	}
	remote := bridge.NewClient(bridge.NewMQTTTransport(client), codec, cfg.TopicPrefix,
		cfg.MQTTClientIDConsole, time.Duration(cfg.BridgeCallTimeoutMS)*time.Millisecond, nil)
	if err := remote.Start(); err != nil {
		return err
	}
	defer remote.Close()
	log.Printf("console: calling %s/call", cfg.TopicPrefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newConsole(remote, os.Stdout, log.Default()).run(ctx, os.Stdin)

	log.Println("console: shutting down")
	return nil
}
