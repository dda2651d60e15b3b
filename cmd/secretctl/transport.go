package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/karalabe/usb"

	"github.com/gentam/secretflash"
	"github.com/gentam/secretflash/internal/logging"
)

// hidConn adapts a raw HID interface to the 32-byte frame stream. hidapi
// expects the report ID in front of every output report; raw HID reports are
// unnumbered, so that byte is 0 and is not delivered to the device.
type hidConn struct {
	dev usb.Device
	buf [1 + secretflash.FrameSize]byte
}

func (h *hidConn) Write(p []byte) (int, error) {
	h.buf = [len(h.buf)]byte{}
	n := copy(h.buf[1:], p)
	if _, err := h.dev.Write(h.buf[:]); err != nil {
		return 0, err
	}
	return n, nil
}

func (h *hidConn) Read(p []byte) (int, error) {
	return h.dev.Read(p)
}

func (h *hidConn) Close() error {
	return h.dev.Close()
}

// match reports whether info is the raw HID interface selected on the
// command line.
func match(info usb.DeviceInfo) bool {
	if cli.UsagePage != 0 && info.UsagePage != uint16(cli.UsagePage) {
		return false
	}
	if cli.Usage != 0 && info.Usage != uint16(cli.Usage) {
		return false
	}
	if cli.Serial != "" && info.Serial != cli.Serial {
		return false
	}
	if cli.Path != "" && info.Path != cli.Path {
		return false
	}
	return true
}

func enumerate() ([]usb.DeviceInfo, error) {
	if !usb.Supported() {
		return nil, errors.New("USB support not enabled on this platform")
	}
	infos, err := usb.EnumerateHid(uint16(cli.VID), uint16(cli.PID))
	if err != nil {
		return nil, fmt.Errorf("enumerate %04x:%04x: %w", uint16(cli.VID), uint16(cli.PID), err)
	}

	var out []usb.DeviceInfo
	for _, info := range infos {
		logging.Debug(logging.ComponentClient, "found device",
			"path", info.Path,
			"usagePage", fmt.Sprintf("%04x", info.UsagePage),
			"usage", fmt.Sprintf("%04x", info.Usage),
			"interface", info.Interface)
		if match(info) {
			out = append(out, info)
		}
	}
	return out, nil
}

func openHID() (*secretflash.Client, io.Closer, error) {
	infos, err := enumerate()
	if err != nil {
		return nil, nil, err
	}
	switch len(infos) {
	case 0:
		return nil, nil, fmt.Errorf("no raw HID interface for %04x:%04x: %w",
			uint16(cli.VID), uint16(cli.PID), os.ErrNotExist)
	case 1:
	default:
		return nil, nil, fmt.Errorf("%d matching devices, select one with --serial or --path", len(infos))
	}

	var lastErr error
	// opening can be flaky right after enumeration
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(100 * time.Millisecond)
		}
		dev, err := infos[0].Open()
		if err == nil {
			conn := &hidConn{dev: dev}
			c, err := secretflash.NewClient(conn, clientOptions()...)
			if err != nil {
				conn.Close()
				return nil, nil, err
			}
			return c, conn, nil
		}
		lastErr = err
		logging.Debug(logging.ComponentClient, "open failed", "path", infos[0].Path, "attempt", attempt+1, "err", err)
	}
	return nil, nil, fmt.Errorf("open %s: %w", infos[0].Path, lastErr)
}

func openTCP(addr string) (*secretflash.Client, io.Closer, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, nil, err
	}
	c, err := secretflash.NewClient(conn, clientOptions()...)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return c, conn, nil
}
