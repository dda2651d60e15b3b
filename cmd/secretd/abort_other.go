//go:build !unix

package main

import "github.com/gentam/secretflash"

// notifyAbort has no signal to listen on outside unix.
func notifyAbort(*secretflash.Dispatcher) (stop func()) {
	return func() {}
}
