// Command x10d is the X10 powerline daemon: it loads an interface
// configuration, starts the configured transceivers, optionally exposes
// the ambient FIFO text command language (§6), and optionally announces
// itself via mDNS/DNS-SD. It is a thin shell around the x10, cm11a, and
// tashtenhat packages; it contains no protocol logic of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"

	"github.com/kg9x/x10d/internal/cm11a"
	"github.com/kg9x/x10d/internal/config"
	"github.com/kg9x/x10d/internal/devicescan"
	"github.com/kg9x/x10d/internal/fifocmd"
	"github.com/kg9x/x10d/internal/tashtenhat"
	"github.com/kg9x/x10d/internal/zerocross"
	"github.com/kg9x/x10d/x10"
)

// dnsSDServiceType is the X10 analogue of the teacher's
// "_kiss-tnc._tcp": the service type this daemon announces when
// --dns-sd is enabled, so a control-panel app can find it without the
// operator typing in a host and port.
const dnsSDServiceType = "_x10-ctl._tcp"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = pflag.StringP("config", "c", "/etc/x10d.yaml", "Path to the x10d YAML configuration file.")
		fifoOverride = pflag.String("fifo", "", "Override the FIFO command pipe path from the config file.")
		verbose      = pflag.BoolP("verbose", "v", false, "Enable debug-level logging.")
		dnsSD        = pflag.Bool("dns-sd", false, "Announce the FIFO command endpoint via mDNS/DNS-SD.")
		listDevices  = pflag.Bool("list-devices", false, "List candidate serial/I2C devices via udev and exit.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "x10d - an X10 powerline transceiver daemon.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: x10d [options]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logger := log.New(os.Stderr)
	logger.SetLevel(log.InfoLevel)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if *listDevices {
		return listCandidateDevices(logger)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading configuration", "error", err)
		return 1
	}

	registry := buildRegistry()

	ifaces := make(map[string]*x10.Interface, len(cfg.Interfaces))
	for name, opts := range cfg.Interfaces {
		iface, err := registry.New(opts)
		if err != nil {
			logger.Error("building interface", "name", name, "error", err)
			return 1
		}
		if err := iface.Start(); err != nil {
			logger.Error("starting interface", "name", name, "error", err)
			return 1
		}
		ifaces[name] = iface
		logger.Info("started interface", "name", name, "type", opts["interface"])
	}
	defer func() {
		for name, iface := range ifaces {
			if err := iface.Stop(); err != nil {
				logger.Error("stopping interface", "name", name, "error", err)
			}
		}
	}()

	var fifoServer *fifocmd.Server
	if cfg.FIFO != nil {
		path := cfg.FIFO.Path
		if *fifoOverride != "" {
			path = *fifoOverride
		}
		iface, ok := ifaces[cfg.FIFO.Interface]
		if !ok {
			logger.Error("fifo configured for unknown interface", "interface", cfg.FIFO.Interface)
			return 1
		}
		proc := fifocmd.NewCommandProcessor(putBatchAdapter{iface}, logger.With("component", "fifocmd"))
		fifoServer, err = fifocmd.NewServer(path, proc, logger.With("component", "fifocmd"), "%Y-%m-%d %H:%M:%S")
		if err != nil {
			logger.Error("configuring fifo server", "error", err)
			return 1
		}
		if err := fifoServer.Start(); err != nil {
			logger.Error("starting fifo server", "error", err)
			return 1
		}
		logger.Info("started fifo command server", "path", path)
	}
	if fifoServer != nil {
		defer fifoServer.Stop()
	}

	var zcWatcher *zerocross.Watcher
	zcStop := make(chan struct{})
	if cfg.ZeroCross != nil && cfg.ZeroCross.Enabled {
		zcWatcher, err = zerocross.Watch(cfg.ZeroCross.Chip, cfg.ZeroCross.Line)
		if err != nil {
			logger.Warn("zero-cross watcher unavailable", "error", err)
		} else {
			logger.Info("watching zero-cross line", "chip", cfg.ZeroCross.Chip, "line", cfg.ZeroCross.Line)
			go monitorZeroCross(zcWatcher, zcStop, logger.With("component", "zerocross"))
		}
	}
	if zcWatcher != nil {
		defer zcWatcher.Close()
		defer close(zcStop)
	}

	if *dnsSD || (cfg.DNSSD != nil && cfg.DNSSD.Enabled) {
		if err := announceDNSSD(cfg, logger); err != nil {
			logger.Warn("dns-sd announcement failed", "error", err)
		}
	}

	logger.Info("x10d running", "started_at", mustStartupTimestamp())
	waitForSignal()
	logger.Info("shutting down")
	return 0
}

// putBatchAdapter narrows *x10.Interface to fifocmd.Putter.
type putBatchAdapter struct{ iface *x10.Interface }

func (p putBatchAdapter) PutBatch(b x10.Batch, block bool) error {
	return p.iface.PutBatch(b, block)
}

// mustStartupTimestamp renders the daemon's start time using the same
// strftime syntax the FIFO server uses for its own log lines, so the
// startup banner and the FIFO's echo log read consistently.
func mustStartupTimestamp() string {
	ts, err := strftime.Format("%Y-%m-%d %H:%M:%S", time.Now())
	if err != nil {
		return time.Now().String()
	}
	return ts
}

// buildRegistry wires every transceiver Constructor this daemon knows
// how to build into an x10.Registry (§4.8).
func buildRegistry() *x10.Registry {
	r := x10.NewRegistry()
	r.Register("cm11a", cm11a.Params(), cm11a.New)
	r.Register("tashtenhat_pl513", tashtenhat.Params(), tashtenhat.NewPL513)
	r.Register("tashtenhat_tw523", tashtenhat.Params(), tashtenhat.NewTW523)
	r.Register("tashtenhat_xtb523", tashtenhat.Params(), tashtenhat.NewXTB523Normal)
	r.Register("tashtenhat_xtb523allbits", tashtenhat.Params(), tashtenhat.NewXTB523AllBits)
	return r
}

// listCandidateDevices implements --list-devices: enumerate serial and
// I2C device nodes via udev so an operator configuring serial_port or
// i2c_device doesn't have to guess at a path.
func listCandidateDevices(logger *log.Logger) int {
	candidates, err := devicescan.Scan(nil)
	if err != nil {
		logger.Error("scanning for devices", "error", err)
		return 1
	}
	if len(candidates) == 0 {
		fmt.Println("No candidate serial or I2C devices found.")
		return 0
	}
	for _, c := range candidates {
		fmt.Printf("%-10s %-20s vendor=%s model=%s\n", c.Subsystem, c.DevicePath, c.Vendor, c.Model)
	}
	return 0
}

// announceDNSSD publishes the FIFO command endpoint over mDNS/DNS-SD,
// the same way the teacher's dns_sd_announce publishes its KISS TCP
// service, adapted to this daemon's control surface and configuration.
func announceDNSSD(cfg *config.Config, logger *log.Logger) error {
	name := ""
	port := 0
	if cfg.DNSSD != nil {
		if cfg.DNSSD.Name != "" {
			name = cfg.DNSSD.Name
		}
		port = cfg.DNSSD.Port
	}
	if name == "" {
		name = "x10d"
		if hostname, err := os.Hostname(); err == nil {
			name = "x10d on " + hostname
		}
	}

	svcCfg := dnssd.Config{
		Name: name,
		Type: dnsSDServiceType,
		Port: port,
	}
	svc, err := dnssd.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("creating dns-sd service: %w", err)
	}
	responder, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("creating dns-sd responder: %w", err)
	}
	if _, err := responder.Add(svc); err != nil {
		return fmt.Errorf("adding dns-sd service: %w", err)
	}

	logger.Info("announcing dns-sd service", "name", name, "type", dnsSDServiceType, "port", port)
	go func() {
		if err := responder.Respond(context.Background()); err != nil {
			logger.Error("dns-sd responder stopped", "error", err)
		}
	}()
	return nil
}

// zeroCrossHealthWindow is how long monitorZeroCross waits for an edge
// before warning that the mains feed (or the watcher's wiring) has gone
// quiet.
const zeroCrossHealthWindow = 5 * time.Second

// monitorZeroCross logs a warning every time Healthy reports a missed
// window, until stop is closed.
func monitorZeroCross(w *zerocross.Watcher, stop <-chan struct{}, logger *log.Logger) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !w.Healthy(zeroCrossHealthWindow) {
			logger.Warn("no zero-crossing edges observed", "window", zeroCrossHealthWindow)
		}
	}
}

// waitForSignal blocks until SIGINT or SIGTERM arrives.
func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
