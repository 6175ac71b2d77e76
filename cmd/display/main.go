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

	log.Println("starting barometer OLED display (MQTT bridge client)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDisplay(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
