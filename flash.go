package secretflash

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// SPIFlash drives a SPI NOR flash chip and implements HAL on top of it, so
// the engine can run against real silicon on the bench.
type SPIFlash struct {
	conn spi.Conn
	cs   gpio.PinOut
	id   [3]byte // JEDEC ID of the flash chip
	pr   *flashParams
}

func NewSPIFlash(conn spi.Conn, cs gpio.PinOut) *SPIFlash {
	return &SPIFlash{
		conn: conn,
		cs:   cs,
	}
}

// Flash commands:
//   - [N25Q32|Table 16: Command Set]
//   - [W25Q128|8.1.2 Instruction Set Table 1]
const (
	flashCmdPowerUp            = 0xAB // Release Power Down
	flashCmdPowerDown          = 0xB9
	flashCmdReadID             = 0x9F
	flashCmdRead               = 0x03
	flashCmdWriteEnable        = 0x06
	flashCmdPageProgram        = 0x02
	flashCmdErase4KB           = 0x20 // Subsector Erase / Sector Erase (4KB)
	flashCmdReadStatusRegister = 0x05
)

const (
	spiSectorSize = 4 << 10
	spiPageSize   = 256
	spiMaxAddr    = 1<<24 - 1 // 3-byte addressing
)

var errFlashTimeout = errors.New("flash busy timeout")

// tx wraps SPI transaction with CS assertion.
func (f *SPIFlash) tx(buf []byte) (err error) {
	if err = f.cs.Out(gpio.Low); err != nil {
		return err
	}
	defer func() {
		if csErr := f.cs.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	err = f.conn.Tx(buf, buf)
	return
}

func cmdAddr(cmd byte, addr uint32, n int) []byte {
	buf := make([]byte, 4+n)
	buf[0] = cmd
	buf[1] = byte(addr >> 16)
	buf[2] = byte(addr >> 8)
	buf[3] = byte(addr)
	return buf
}

func (f *SPIFlash) PowerUp() error {
	if err := f.tx([]byte{flashCmdPowerUp}); err != nil {
		return err
	}
	time.Sleep(f.tRES1())
	return nil
}

func (f *SPIFlash) PowerDown() error {
	if err := f.tx([]byte{flashCmdPowerDown}); err != nil {
		return err
	}
	time.Sleep(f.tDP())
	return nil
}

// ReadID returns the JEDEC ID of the flash chip and configures its parameters.
// It returns a non-empty name for known IDs. The extended device string is ignored.
func (f *SPIFlash) ReadID() (id [3]byte, name string, err error) {
	buf := make([]byte, 4)
	buf[0] = flashCmdReadID

	if err = f.tx(buf); err != nil {
		return
	}

	f.id = [3]byte(buf[1:])
	if params, ok := knownFlash[f.id]; ok {
		f.pr = &params
		name = params.name
	}
	return f.id, name, err
}

// Geometry returns the layout for the detected chip with the given backing
// and storage sizes. ReadID must have identified the chip.
func (f *SPIFlash) Geometry(backingSize, storageSize uint32) (Geometry, error) {
	if f.pr == nil {
		return Geometry{}, fmt.Errorf("unknown flash ID %X: %w", f.id, ErrGeometry)
	}
	return Geometry{
		TotalFlashSize: f.pr.capacity,
		BackingSize:    backingSize,
		StorageSize:    storageSize,
		SectorSize:     spiSectorSize,
		PageSize:       spiPageSize,
	}, nil
}

// MapRead implements HAL. The read is split into multiple transactions to
// stay within the maximum transaction size.
func (f *SPIFlash) MapRead(addr uint32, dst []byte) error {
	const (
		maxTx    = 65536 // [FTDI-AN_108]
		cmdBytes = 4     // opRead + 24-bit address
		maxData  = maxTx - cmdBytes
	)

	for off := 0; off < len(dst); {
		chunk := min(len(dst)-off, maxData)
		buf := cmdAddr(flashCmdRead, addr, chunk)
		// buf[4:] dummy bytes
		if err := f.tx(buf); err != nil {
			return err
		}
		copy(dst[off:], buf[cmdBytes:])

		addr += uint32(chunk)
		off += chunk
	}
	return nil
}

func (f *SPIFlash) writeEnable() error {
	return f.tx([]byte{flashCmdWriteEnable})
}

// ProgramPage implements HAL.
// addr: 24 bit
// src: max 256 bytes, must not cross a page
func (f *SPIFlash) ProgramPage(addr uint32, src []byte) error {
	if addr > spiMaxAddr {
		return fmt.Errorf("address 0x%X out of 24-bit range", addr)
	}
	if len(src) > spiPageSize || int(addr%spiPageSize)+len(src) > spiPageSize {
		return fmt.Errorf("program 0x%X: %d bytes cross a page", addr, len(src))
	}
	if err := f.writeEnable(); err != nil {
		return err
	}

	buf := cmdAddr(flashCmdPageProgram, addr, len(src))
	copy(buf[4:], src)
	if err := f.tx(buf); err != nil {
		return err
	}
	return f.BusyWait(100*time.Microsecond, f.tPP())
}

// EraseSector implements HAL with a 4KB subsector erase.
func (f *SPIFlash) EraseSector(addr uint32) error {
	if addr%spiSectorSize != 0 || addr > spiMaxAddr {
		return fmt.Errorf("erase 0x%X: %w", addr, ErrAlign)
	}
	if err := f.writeEnable(); err != nil {
		return err
	}
	if err := f.tx(cmdAddr(flashCmdErase4KB, addr, 0)); err != nil {
		return err
	}
	return f.BusyWait(50*time.Millisecond, f.tErase4KB())
}

// BusyWait waits for the flash to become ready by polling the status register's
// bit 0 with specified intervals, or until the timeout expires. Set timeout to
// 0 to wait indefinitely.
func (f *SPIFlash) BusyWait(interval, timeout time.Duration) error {
	// Fast path
	if sr, err := f.ReadStatusRegister(); err == nil && !sr.Busy() {
		return nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-expired:
			return errFlashTimeout
		case <-ticker.C:
			sr, err := f.ReadStatusRegister()
			if err != nil {
				return err
			}
			if !sr.Busy() {
				return nil
			}
		}
	}
}

// StatusRegister represents the status register of the flash chip.
//
//	Bits| [N25Q32|Table 9]                     | [W25Q128|7.1 Status Registers]
//	----+--------------------------------------+-------------------------------
//	7   | Status register write enable/disable | SRP: Status Register Protect
//	6   | Reserved                             | SEC: Sector protect
//	5   | Top/bottom                           | TB: Top/Bottom protect
//	4:2 | Block protect 2-0                    | BP2-0: Block Protect bit 2-0
//	1   | Write enable latch                   | WEL: Write Enable Latch
//	0   | Write in progress                    | BUSY: Erase/Write in progress
type StatusRegister byte

var statusRegisterBits = [8]string{"BUSY", "WEL", "BP0", "BP1", "BP2", "TB", "SEC", "SRP"}

func (sr StatusRegister) WriteEnabled() bool { return sr&(1<<1) != 0 }
func (sr StatusRegister) Busy() bool         { return sr&(1<<0) != 0 }

// Protected reports whether any block protect bit is set, in which case
// erase and program silently do nothing.
func (sr StatusRegister) Protected() bool { return sr&(0b111<<2) != 0 }

func (sr StatusRegister) String() string {
	b := fmt.Sprintf("%08b", byte(sr))
	s := []string{}
	for i := 7; i >= 0; i-- {
		if sr&(1<<i) != 0 {
			s = append(s, statusRegisterBits[i])
		}
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}

func (f *SPIFlash) ReadStatusRegister() (StatusRegister, error) {
	buf := []byte{flashCmdReadStatusRegister, 0}
	if err := f.tx(buf); err != nil {
		return 0, err
	}
	return StatusRegister(buf[1]), nil
}

var _ HAL = (*SPIFlash)(nil)
