package secretflash

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sigurn/crc16"

	"github.com/gentam/secretflash/internal/logging"
)

// Client drives the secret storage protocol from the host side. Each call
// writes one FrameSize request and reads one FrameSize response.
type Client struct {
	rw       io.ReadWriter
	prefixed bool
	reportID byte

	info *Info
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithReportID makes the client put id in front of the command byte, for
// transports that pass the report ID through to the device. The device looks
// for a command at byte 0 first, so id must not be a command code.
func WithReportID(id byte) ClientOption {
	return func(c *Client) error {
		if Command(id).valid() {
			return fmt.Errorf("%w: %#02x", ErrReportID, id)
		}
		c.prefixed = true
		c.reportID = id
		return nil
	}
}

func NewClient(rw io.ReadWriter, opts ...ClientOption) (*Client, error) {
	c := &Client{rw: rw}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) base() int {
	if c.prefixed {
		return 1
	}
	return 0
}

// exchange sends frame and reads the response into it. It returns the
// response slice starting at the command position.
func (c *Client) exchange(cmd Command, frame *[FrameSize]byte) ([]byte, error) {
	if _, err := c.rw.Write(frame[:]); err != nil {
		return nil, fmt.Errorf("%s: write frame: %w", cmd, err)
	}
	clear(frame[:])
	if _, err := io.ReadFull(c.rw, frame[:]); err != nil {
		return nil, fmt.Errorf("%s: read frame: %w", cmd, err)
	}
	if frame[0] == Unhandled && (!c.prefixed || c.reportID != Unhandled) {
		return nil, fmt.Errorf("%s: %w", cmd, ErrUnhandled)
	}

	p := frame[c.base():]
	if st := Status(p[offStatus]); st != StatusOK {
		return nil, &StatusError{Cmd: cmd, Status: st}
	}
	return p, nil
}

// request prepares a frame with cmd at the right offset and returns the
// slice starting at the command byte.
func (c *Client) request(frame *[FrameSize]byte, cmd Command) []byte {
	if c.prefixed {
		frame[0] = c.reportID
	}
	r := frame[c.base():]
	r[0] = byte(cmd)
	return r
}

// Info queries the device geometry. The result is cached and used to size
// read and write chunks.
func (c *Client) Info() (Info, error) {
	var frame [FrameSize]byte
	c.request(&frame, CmdInfo)
	p, err := c.exchange(CmdInfo, &frame)
	if err != nil {
		return Info{}, err
	}
	info, err := ParseInfo(p[offStatus+1:])
	if err != nil {
		return Info{}, err
	}
	c.info = &info
	logging.Debug(logging.ComponentClient, "info",
		"storageSize", info.StorageSize,
		"storageBase", info.StorageBase)
	return info, nil
}

func (c *Client) limits() (maxRead, maxWrite int) {
	maxRead, maxWrite = MaxRead, MaxWrite
	if c.info != nil {
		if c.info.MaxRead > 0 {
			maxRead = int(c.info.MaxRead)
		}
		if c.info.MaxWrite > 0 {
			maxWrite = int(c.info.MaxWrite)
		}
	}
	if c.prefixed {
		// payload area loses the report ID byte
		maxWrite = min(maxWrite, FrameSize-1-offPayload)
	}
	return maxRead, maxWrite
}

// ReadAt reads len(p) bytes from the region at off, in as many frames as
// needed.
func (c *Client) ReadAt(p []byte, off uint32) (int, error) {
	maxRead, _ := c.limits()
	n := 0
	for n < len(p) {
		chunk := min(len(p)-n, maxRead)

		var frame [FrameSize]byte
		r := c.request(&frame, CmdRead)
		binary.BigEndian.PutUint32(r[offArgAddr:], off+uint32(n))
		r[offArgSize] = byte(chunk)

		resp, err := c.exchange(CmdRead, &frame)
		if err != nil {
			return n, fmt.Errorf("read at %#x: %w", off+uint32(n), err)
		}
		got := int(resp[offRdSize])
		if got != chunk {
			return n, fmt.Errorf("read at %#x: device returned %d bytes, want %d: %w",
				off+uint32(n), got, chunk, ErrDevice)
		}
		n += copy(p[n:], resp[offRdData:offRdData+got])
	}
	return n, nil
}

// WriteAt writes p into the region at off, in as many frames as needed.
// A failure leaves the frames already sent committed.
func (c *Client) WriteAt(p []byte, off uint32) (int, error) {
	_, maxWrite := c.limits()
	n := 0
	for n < len(p) {
		chunk := min(len(p)-n, maxWrite)

		var frame [FrameSize]byte
		r := c.request(&frame, CmdWrite)
		binary.BigEndian.PutUint32(r[offArgAddr:], off+uint32(n))
		r[offArgSize] = byte(chunk)
		copy(r[offPayload:], p[n:n+chunk])

		if _, err := c.exchange(CmdWrite, &frame); err != nil {
			return n, fmt.Errorf("write at %#x: %w", off+uint32(n), err)
		}
		n += chunk
	}
	return n, nil
}

// Erase erases size bytes at off. Both must be multiples of the device's
// sector size.
func (c *Client) Erase(off, size uint32) error {
	var frame [FrameSize]byte
	r := c.request(&frame, CmdErase)
	binary.BigEndian.PutUint32(r[offArgAddr:], off)
	binary.BigEndian.PutUint32(r[offArgSize:], size)

	if _, err := c.exchange(CmdErase, &frame); err != nil {
		return fmt.Errorf("erase %#x+%#x: %w", off, size, err)
	}
	return nil
}

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// Checksum returns the CRC-16/XMODEM of size bytes at off.
func (c *Client) Checksum(off, size uint32) (uint16, error) {
	buf := make([]byte, size)
	if _, err := c.ReadAt(buf, off); err != nil {
		return 0, err
	}
	return Checksum(buf), nil
}

// Checksum returns the CRC-16/XMODEM of b, the value Client.Checksum
// compares against.
func Checksum(b []byte) uint16 {
	return crc16.Checksum(b, crcTable)
}
