//go:build unix

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/gentam/secretflash"
	"github.com/gentam/secretflash/internal/logging"
)

// notifyAbort makes SIGUSR1 act like the Escape key on the device.
func notifyAbort(d *secretflash.Dispatcher) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGUSR1)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ch:
				if !d.ProcessKey(secretflash.KeyEscape, true) {
					continue
				}
				logging.Info(logging.ComponentServer, "SIGUSR1 ignored, no operation running")
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
