// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	humanize "github.com/dustin/go-humanize"

	"github.com/relabs-tech/barometer/internal/barometer"
	"github.com/relabs-tech/barometer/internal/config"
	"github.com/relabs-tech/barometer/internal/measurement"
	"github.com/relabs-tech/barometer/internal/session"
)

// formatMeasurement renders m the way the console prints it.
func formatMeasurement(m measurement.Measurement, now time.Time) string {
	ts := now
	if m.Timestamp != 0 {
		ts = m.Time()
	}
	return fmt.Sprintf(
		"Pressure: %.2f hPa\nRelative altitude: %.2f m\nTimestamp: %s (%s)",
		m.Pressure, m.RelativeAltitude,
		ts.Format("15:04:05"), humanize.RelTime(ts, now, "ago", "from now"),
	)
}

// console is the interactive demo: one line per command, measurement
// events printed as they arrive.
type console struct {
	api  session.API
	ctrl *session.Controller
	now  func() time.Time

	outMu sync.Mutex
	out   io.Writer
}

func newConsole(api session.API, out io.Writer, logger *log.Logger) *console {
	c := &console{api: api, out: out, now: time.Now}
	c.ctrl = session.New(api, c.onMeasurement, session.WithLogger(logger))
	return c
}

func (c *console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) onMeasurement(m measurement.Measurement) {
	c.printf("[EVENT]\n%s\n", formatMeasurement(m, c.now()))
}

func (c *console) refresh(ctx context.Context) {
	if c.api.IsAvailable(ctx).IsAvailable {
		c.printf("Availability: Available\n")
	} else {
		c.printf("Availability: Not available\n")
	}
	c.printf("Permission: %s\n", c.api.CheckPermissions(ctx).Barometer)
}

func (c *console) readOnce(ctx context.Context) {
	if !c.ctrl.CanReadOnce() {
		c.printf("single read is disabled while streaming\n")
		return
	}
	m, err := c.ctrl.ReadOnce(ctx)
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	c.printf("%s\n", formatMeasurement(m, c.now()))
}

func (c *console) start(ctx context.Context) {
	if !c.ctrl.CanStart() {
		c.printf("updates already running\n")
		return
	}
	if err := c.ctrl.Start(ctx); err != nil {
		c.printf("%v\n", err)
		return
	}
	c.printf("updates started\n")
}

func (c *console) stop(ctx context.Context) {
	if !c.ctrl.CanStop() {
		c.printf("updates not running\n")
		return
	}
	c.ctrl.Stop(ctx)
	c.printf("updates stopped\n")
}

const consoleHelp = "commands: read, start, stop, status, help, quit\n"

// run refreshes the status, then executes commands from in until quit, EOF
// or ctx is done. Streaming is stopped on the way out.
func (c *console) run(ctx context.Context, in io.Reader) {
	defer c.ctrl.Stop(context.Background())

	c.refresh(ctx)
	c.printf(consoleHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "":
			case "read":
				c.readOnce(ctx)
			case "start":
				c.start(ctx)
			case "stop":
				c.stop(ctx)
			case "status":
				c.refresh(ctx)
				c.printf("State: %s\n", c.ctrl.State())
			case "help":
				c.printf(consoleHelp)
			case "quit", "exit":
				return
			default:
				c.printf("unknown command %q\n", line)
			}
		}
	}
}

// RunConsole drives the local sensor from the terminal.
func RunConsole() error {
	cfg := config.Get()

	baro, err := barometer.Open(cfg, log.Default())
	if err != nil {
		return err
	}
	log.Printf("console: using %s barometer", baro.Platform())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	newConsole(baro, os.Stdout, log.Default()).run(ctx, os.Stdin)

	log.Println("console: shutting down")
	baro.Shutdown(context.Background())
	return nil
}
