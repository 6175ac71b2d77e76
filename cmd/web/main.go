// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/barometer/internal/app"
	"github.com/relabs-tech/barometer/internal/config"
)

func main() {
	configPath := flag.String("config", "barometer_config.txt", "path to the configuration file")
	flag.Parse()

	log.Println("starting barometer web server (MQTT bridge client)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: live data requires the producer to be running (sudo ./producer)")

	if err := app.RunWeb(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
