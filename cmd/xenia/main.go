package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli"

	"github.com/Johncheung512/xenia/xenia/apu"
	"github.com/Johncheung512/xenia/xenia/apu/backend/headless"
	"github.com/Johncheung512/xenia/xenia/apu/backend/hostaudio"
	"github.com/Johncheung512/xenia/xenia/cpu"
	"github.com/Johncheung512/xenia/xenia/guest"
	"github.com/Johncheung512/xenia/xenia/monitor"
	"github.com/Johncheung512/xenia/xenia/video"
)

const (
	guestHeapBase = 0x80000000
	guestHeapSize = 16 << 20

	// Guest entry addresses handed out to the synthetic clients.
	clientEntryBase = 0x82000000
	clientEntryStep = 0x100
)

func main() {
	app := cli.NewApp()
	app.Name = "xenia-apu"
	app.Description = "Audio subsystem demo: synthetic guest clients driven by the scheduler"
	app.Usage = "xenia [options]"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "clients",
			Usage: fmt.Sprintf("Number of guest audio clients to register (max %d)", apu.MaxClients),
			Value: 2,
		},
		cli.DurationFlag{
			Name:  "duration",
			Usage: "How long to run before shutting down",
			Value: 5 * time.Second,
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Audio backend to use (headless, hostaudio)",
			Value: "headless",
		},
		cli.BoolFlag{
			Name:  "monitor",
			Usage: "Show a live view of the client table",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running audio system", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	heap := guest.NewHeap(guestHeapBase, guestHeapSize)
	table := cpu.NewFuncTable()

	var factory apu.DriverFactory
	switch c.String("backend") {
	case "headless":
		// Pace consumption like a real device: one frame's worth of
		// playback time per frame.
		interval := time.Second * apu.FrameSamples / apu.FrameSampleRate
		factory = &headless.Factory{Memory: heap, Interval: interval}
	case "hostaudio":
		factory = &hostaudio.Factory{Memory: heap}
	default:
		return fmt.Errorf("unknown backend %q", c.String("backend"))
	}

	mode := video.QueryVideoMode()
	slog.Info("Display mode",
		"width", mode.DisplayWidth, "height", mode.DisplayHeight,
		"refresh", mode.RefreshRate, "flags", video.QueryVideoFlags())

	system := apu.New(table, heap, factory)
	system.Setup()

	count := c.Int("clients")
	clients := make([]*toneClient, 0, count)
	for i := 0; i < count; i++ {
		tc, err := startToneClient(system, table, heap, i)
		if err != nil {
			system.Shutdown()
			return err
		}
		clients = append(clients, tc)
		slog.Info("Registered client", "slot", tc.slot, "freq", tc.freq)
	}

	duration := c.Duration("duration")
	if c.Bool("monitor") {
		mon := monitor.New(system, 0)
		timer := time.AfterFunc(duration, mon.Stop)
		err := mon.Run()
		timer.Stop()
		if err != nil {
			slog.Error("Monitor failed", "error", err)
		}
	} else {
		time.Sleep(duration)
	}

	for _, tc := range clients {
		tc.stopAndUnregister()
	}
	system.Shutdown()

	for _, st := range system.Snapshot() {
		if st.Pumped > 0 {
			slog.Info("Slot summary", "slot", st.Index, "pumped", st.Pumped)
		}
	}
	return nil
}
