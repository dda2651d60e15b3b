package secretflash

import (
	"encoding/binary"
	"fmt"
)

// FrameSize is the fixed raw HID report length. Requests and responses share
// the same buffer.
const FrameSize = 32

// Per-call payload limits, bounded by the frame minus header.
const (
	MaxRead  = 28 // FrameSize - status - size - cmd - report ID
	MaxWrite = 26 // FrameSize - cmd - offset(4) - size
)

// Unhandled is written into byte 0 when no command code is recognized
// (id_unhandled in the VIA raw HID convention).
const Unhandled = 0xFF

// Command is the request opcode.
type Command byte

const (
	CmdInfo  Command = 0xA0
	CmdRead  Command = 0xA1
	CmdWrite Command = 0xA2
	CmdErase Command = 0xA3
)

func (c Command) valid() bool {
	return c >= CmdInfo && c <= CmdErase
}

func (c Command) String() string {
	switch c {
	case CmdInfo:
		return "info"
	case CmdRead:
		return "read"
	case CmdWrite:
		return "write"
	case CmdErase:
		return "erase"
	}
	return fmt.Sprintf("cmd(%#02x)", byte(c))
}

// Status is the response status byte.
type Status byte

const (
	StatusOK    Status = 0x00
	StatusErr   Status = 0x01
	StatusBusy  Status = 0x02
	StatusRange Status = 0x03
	StatusAlign Status = 0x04
	StatusAbort Status = 0x05
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusErr:
		return "error"
	case StatusBusy:
		return "busy"
	case StatusRange:
		return "range"
	case StatusAlign:
		return "align"
	case StatusAbort:
		return "abort"
	}
	return fmt.Sprintf("status(%#02x)", byte(s))
}

// Err returns the sentinel error for s, nil for StatusOK.
func (s Status) Err() error {
	switch s {
	case StatusOK:
		return nil
	case StatusBusy:
		return ErrBusy
	case StatusRange:
		return ErrRange
	case StatusAlign:
		return ErrAlign
	case StatusAbort:
		return ErrAborted
	}
	return ErrDevice
}

// Field offsets, relative to the command byte.
const (
	offStatus  = 1
	offArgAddr = 1 // request: offset u32BE
	offArgSize = 5 // request: size u8 (read/write) or u32BE (erase)
	offPayload = 6 // write request payload
	offRdSize  = 2 // read response: echoed size
	offRdData  = 3 // read response: payload
)

// Info is the geometry descriptor returned by CmdInfo.
type Info struct {
	StorageSize    uint32
	TotalFlashSize uint32
	BackingSize    uint32
	StorageBase    uint32
	MaxRead        uint8
	MaxWrite       uint8
}

// infoLen is the INFO body length after the status byte.
const infoLen = 18

// MarshalTo writes the info fields into b, which starts right after the
// status byte. Returns the bytes written, or 0 if b is too small.
func (i *Info) MarshalTo(b []byte) int {
	if len(b) < infoLen {
		return 0
	}
	binary.BigEndian.PutUint32(b[0:], i.StorageSize)
	binary.BigEndian.PutUint32(b[4:], i.TotalFlashSize)
	binary.BigEndian.PutUint32(b[8:], i.BackingSize)
	binary.BigEndian.PutUint32(b[12:], i.StorageBase)
	b[16] = i.MaxRead
	b[17] = i.MaxWrite
	return infoLen
}

// ParseInfo is the inverse of MarshalTo.
func ParseInfo(b []byte) (Info, error) {
	if len(b) < infoLen {
		return Info{}, ErrShortFrame
	}
	return Info{
		StorageSize:    binary.BigEndian.Uint32(b[0:]),
		TotalFlashSize: binary.BigEndian.Uint32(b[4:]),
		BackingSize:    binary.BigEndian.Uint32(b[8:]),
		StorageBase:    binary.BigEndian.Uint32(b[12:]),
		MaxRead:        b[16],
		MaxWrite:       b[17],
	}, nil
}

// locate finds the command byte, trying offset 0 and then offset 1 for
// report-ID-prefixed framing. A byte 0 that is itself a command always wins.
func locate(frame []byte) (base int, cmd Command, ok bool) {
	if c := Command(frame[0]); c.valid() {
		return 0, c, true
	}
	if c := Command(frame[1]); c.valid() {
		return 1, c, true
	}
	return 0, 0, false
}
