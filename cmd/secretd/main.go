// Command secretd runs the secret storage dispatcher on the host against an
// emulated or bench-attached flash, serving 32-byte frames over TCP so that
// secretctl can be developed without firmware.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gentam/secretflash"
	"github.com/gentam/secretflash/internal/config"
	"github.com/gentam/secretflash/internal/logging"
)

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "configuration file (default: in-memory RP2040 layout)")
	flag.Parse()

	if err := run(configPath); err != nil {
		fatalf("%v", err)
	}
}

// run returns instead of exiting so the backend is always released, which
// for the ftdi backend takes the board out of reset.
func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	level, _ := logging.ParseLevel(cfg.Log.Level) // validated
	logging.SetLevel(level)
	if cfg.Log.Format == "json" {
		logging.SetFormat(os.Stderr, logging.FormatJSON)
	}

	hal, g, closeBackend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("backend %s: %w", cfg.Backend, err)
	}
	defer func() {
		if err := closeBackend(); err != nil {
			logging.Error(logging.ComponentServer, "close backend", "err", err)
		}
	}()

	region, err := secretflash.NewRegion(g)
	if err != nil {
		return err
	}
	d := secretflash.NewDispatcher(secretflash.NewEngine(hal, g))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopAbort := notifyAbort(d)
	defer stopAbort()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logging.Info(logging.ComponentServer, "serving",
		"addr", ln.Addr().String(),
		"backend", cfg.Backend,
		"region", region.String())

	return serve(ctx, ln, d)
}
