package secretflash

import (
	"errors"
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Device is an FT2232H bench adapter wired to a SPI NOR flash, used to run
// the storage engine against a real chip from the host.
type Device struct {
	FTDI  *ftdi.FT232H
	Flash *SPIFlash

	cs    gpio.PinIO // ADBUS4 Chip Select
	reset gpio.PinIO // ADBUS7 Reset of the board's SPI master, if any

	clock physic.Frequency
	port  spi.PortCloser
	conn  spi.Conn
}

var hostInitialized atomic.Bool

// NewDevice finds FT2232H device and opens MPSSE/SPI connection.
func NewDevice() (*Device, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host initialization failed: %w", err)
		}
	}

	d := &Device{
		clock: 30 * physic.MegaHertz, // [AN_135 3.2.1 Divisors]
	}
	if err := d.findFT2232H(); err != nil {
		return nil, err
	}

	// ADBUS0 | SCK
	// ADBUS1 | MOSI
	// ADBUS2 | MISO
	// ADBUS4 | CS
	// ADBUS7 | RESET (held low so the board does not drive the bus)
	d.cs = d.FTDI.D4
	d.reset = d.FTDI.D7

	if err := d.connectSPI(); err != nil {
		return nil, err
	}

	d.Flash = NewSPIFlash(d.conn, d.cs)

	return d, nil
}

// HoldReset keeps the board in reset so that the host owns the SPI bus.
func (d *Device) HoldReset() error {
	return d.reset.Out(gpio.Low)
}

// ReleaseReset lets the board run again.
func (d *Device) ReleaseReset() error {
	return d.reset.Out(gpio.High)
}

// Close releases the reset line and the SPI port.
func (d *Device) Close() error {
	err := d.ReleaseReset()
	if d.port != nil {
		if cerr := d.port.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (d *Device) findFT2232H() error {
	const (
		vendorID  = 0x0403 // FTDI
		productID = 0x6010 // FT2232H
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID || info.DevID != productID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			d.FTDI = ft
			return nil
		}
	}

	return errors.New("FT2232H not found")
}

func (d *Device) connectSPI() (err error) {
	if d.FTDI == nil {
		return errors.New("FT2232H device not found")
	}

	d.port, err = d.FTDI.SPI()
	if err != nil {
		return fmt.Errorf("failed to get SPI port: %w", err)
	}

	// [FTDI AN_114|1.2]> FTDI device can only support mode 0 and mode 2 due to the limitation of MPSSE engine
	// SPI NOR parts accept mode 0 and mode 3
	d.conn, err = d.port.Connect(d.clock, spi.Mode0, 8)
	return err
}
