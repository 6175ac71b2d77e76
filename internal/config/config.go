// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation and parse error.
var ErrInvalid = errors.New("invalid config")

// Platforms accepted by BARO_PLATFORM.
const (
	PlatformAuto = "auto"
	PlatformBMP  = "bmp"
	PlatformIIO  = "iio"
	PlatformNMEA = "nmea"
	PlatformMock = "mock"
	PlatformStub = "stub"
)

// Config holds all application configuration values.
type Config struct {
	// Sensor selection
	Platform         string // auto, bmp, iio, nmea, mock, stub
	SampleIntervalMS int    // native callback cadence in milliseconds

	// BMP280/BME280 hardware
	BMPBus         string // "i2c" or "spi"
	BMPI2CBus      string // "" opens the first bus
	BMPI2CAddr     uint16
	BMPSPIDevice   string
	BMPPressureOSR byte // 0-5 (off, 1x, 2x, 4x, 8x, 16x)
	BMPTempOSR     byte // 0-5
	BMPIIRFilter   byte // 0-4 (off, 2, 4, 8, 16)

	// Linux Industrial I/O
	IIORoot   string // sysfs directory holding iio:deviceN entries
	IIODevice string // explicit device directory, overrides discovery

	// NMEA weather station
	NMEASerialPort string
	NMEABaudRate   uint

	// Mock sensor
	MockBasePressureKPa float64
	MockPermission      string // initial permission: prompt, granted, denied, limited, prompt-with-rationale
	MockPromptAnswer    string // state after the user answers the prompt

	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string
	MQTTClientIDWeb      string
	TopicPrefix          string

	// Bridge
	BridgeCodec         string // "json" or "cbor"
	BridgeCallTimeoutMS int

	// Producer
	AutostartUpdates bool

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Package-level singleton, set once by InitGlobal and read through Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Platform:              PlatformAuto,
		SampleIntervalMS:      200,
		BMPBus:                "i2c",
		BMPI2CAddr:            0x76,
		BMPSPIDevice:          "/dev/spidev0.0",
		BMPPressureOSR:        3,
		BMPTempOSR:            3,
		BMPIIRFilter:          0,
		IIORoot:               "/sys/bus/iio/devices",
		NMEABaudRate:          4800,
		MockBasePressureKPa:   101.325,
		MockPermission:        "prompt",
		MockPromptAnswer:      "granted",
		MQTTBroker:            "tcp://localhost:1883",
		MQTTClientIDProducer:  "barometer-producer",
		MQTTClientIDConsole:   "barometer-console",
		MQTTClientIDDisplay:   "barometer-display",
		MQTTClientIDWeb:       "barometer-web",
		TopicPrefix:           "barometer",
		BridgeCodec:           "json",
		BridgeCallTimeoutMS:   5000,
		WebServerPort:         8080,
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 500,
	}
}

// Load reads the configuration file and returns a Config struct.
// Files ending in .yaml or .yml are decoded as YAML maps using the same keys;
// everything else is parsed as KEY=VALUE lines.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		return parseYAML(file)
	default:
		return Parse(file)
	}
}

// Parse reads KEY=VALUE lines on top of the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrInvalid, lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseYAML(r io.Reader) (*Config, error) {
	raw := map[string]interface{}{}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
	}

	// Sorted so the first reported error is stable.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg := Default()
	for _, k := range keys {
		v := raw[k]
		if v == nil {
			continue
		}
		if err := cfg.setValue(strings.ToUpper(k), fmt.Sprint(v)); err != nil {
			return nil, fmt.Errorf("config key %s: %w", k, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Sensor selection
	case "BARO_PLATFORM":
		c.Platform = strings.ToLower(value)
	case "SAMPLE_INTERVAL_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: SAMPLE_INTERVAL_MS %q: %v", ErrInvalid, value, err)
		}
		c.SampleIntervalMS = v

	// BMP hardware
	case "BMP_BUS":
		c.BMPBus = strings.ToLower(value)
	case "BMP_I2C_BUS":
		c.BMPI2CBus = value
	case "BMP_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("%w: BMP_I2C_ADDR %q: %v", ErrInvalid, value, err)
		}
		c.BMPI2CAddr = uint16(addr)
	case "BMP_SPI_DEVICE":
		c.BMPSPIDevice = value
	case "BMP_PRESSURE_OSR":
		v, err := parseByteRange("BMP_PRESSURE_OSR", value, 5)
		if err != nil {
			return err
		}
		c.BMPPressureOSR = v
	case "BMP_TEMP_OSR":
		v, err := parseByteRange("BMP_TEMP_OSR", value, 5)
		if err != nil {
			return err
		}
		c.BMPTempOSR = v
	case "BMP_IIR_FILTER":
		v, err := parseByteRange("BMP_IIR_FILTER", value, 4)
		if err != nil {
			return err
		}
		c.BMPIIRFilter = v

	// IIO
	case "IIO_ROOT":
		c.IIORoot = value
	case "IIO_DEVICE":
		c.IIODevice = value

	// NMEA
	case "NMEA_SERIAL_PORT":
		c.NMEASerialPort = value
	case "NMEA_BAUD_RATE":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: NMEA_BAUD_RATE %q: %v", ErrInvalid, value, err)
		}
		c.NMEABaudRate = uint(v)

	// Mock
	case "MOCK_BASE_PRESSURE_KPA":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: MOCK_BASE_PRESSURE_KPA %q: %v", ErrInvalid, value, err)
		}
		c.MockBasePressureKPa = v
	case "MOCK_PERMISSION":
		c.MockPermission = strings.ToLower(value)
	case "MOCK_PROMPT_ANSWER":
		c.MockPromptAnswer = strings.ToLower(value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "TOPIC_PREFIX":
		c.TopicPrefix = strings.TrimSuffix(value, "/")

	// Bridge
	case "BRIDGE_CODEC":
		c.BridgeCodec = strings.ToLower(value)
	case "BRIDGE_CALL_TIMEOUT_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: BRIDGE_CALL_TIMEOUT_MS %q: %v", ErrInvalid, value, err)
		}
		c.BridgeCallTimeoutMS = v

	// Producer
	case "AUTOSTART_UPDATES":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: AUTOSTART_UPDATES %q: %v", ErrInvalid, value, err)
		}
		c.AutostartUpdates = v

	// Web
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: WEB_SERVER_PORT %q: %v", ErrInvalid, value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("%w: DISPLAY_I2C_ADDR %q: %v", ErrInvalid, value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: DISPLAY_UPDATE_INTERVAL %q: %v", ErrInvalid, value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalid, key)
	}

	return nil
}

func parseByteRange(key, value string, max int) (byte, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %v", ErrInvalid, key, value, err)
	}
	if v < 0 || v > max {
		return 0, fmt.Errorf("%w: %s must be 0-%d, got %d", ErrInvalid, key, max, v)
	}
	return byte(v), nil
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	switch c.Platform {
	case PlatformAuto, PlatformBMP, PlatformIIO, PlatformNMEA, PlatformMock, PlatformStub:
	default:
		return fmt.Errorf("%w: BARO_PLATFORM %q (want auto, bmp, iio, nmea, mock or stub)", ErrInvalid, c.Platform)
	}
	if c.SampleIntervalMS <= 0 {
		return fmt.Errorf("%w: SAMPLE_INTERVAL_MS must be positive", ErrInvalid)
	}
	if c.BMPBus != "i2c" && c.BMPBus != "spi" {
		return fmt.Errorf("%w: BMP_BUS %q (want i2c or spi)", ErrInvalid, c.BMPBus)
	}
	if c.Platform == PlatformNMEA && c.NMEASerialPort == "" {
		return fmt.Errorf("%w: NMEA_SERIAL_PORT is required for the nmea platform", ErrInvalid)
	}
	if c.BridgeCodec != "json" && c.BridgeCodec != "cbor" {
		return fmt.Errorf("%w: BRIDGE_CODEC %q (want json or cbor)", ErrInvalid, c.BridgeCodec)
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("%w: MQTT_BROKER is required", ErrInvalid)
	}
	if c.TopicPrefix == "" {
		return fmt.Errorf("%w: TOPIC_PREFIX is required", ErrInvalid)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("%w: WEB_SERVER_PORT %d out of range", ErrInvalid, c.WebServerPort)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads; later calls return the first result.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
