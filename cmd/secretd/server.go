package main

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gentam/secretflash"
	"github.com/gentam/secretflash/internal/logging"
)

// serve accepts connections until ctx is done. Every connection shares d, so
// a request arriving while another connection's erase is running gets BUSY.
func serve(ctx context.Context, ln net.Listener, d *secretflash.Dispatcher) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(ctx, conn, d)
		}()
	}
}

func handleConn(ctx context.Context, conn net.Conn, d *secretflash.Dispatcher) {
	remote := conn.RemoteAddr().String()
	logging.Debug(logging.ComponentServer, "connected", "remote", remote)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	var frame [secretflash.FrameSize]byte
	for {
		if _, err := io.ReadFull(conn, frame[:]); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logging.Warn(logging.ComponentServer, "read frame", "remote", remote, "err", err)
			}
			break
		}
		d.Handle(frame[:])
		if _, err := conn.Write(frame[:]); err != nil {
			logging.Warn(logging.ComponentServer, "write frame", "remote", remote, "err", err)
			break
		}
	}
	logging.Debug(logging.ComponentServer, "disconnected", "remote", remote)
}
