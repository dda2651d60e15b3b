package secretflash

import (
	"encoding/binary"

	"github.com/gentam/secretflash/internal/logging"
)

// Dispatcher decodes request frames, runs them on the Engine under a Guard
// and writes the response into the same buffer.
type Dispatcher struct {
	engine *Engine
	guard  *Guard
	info   Info
}

// NewDispatcher returns a dispatcher for e with its own Guard.
func NewDispatcher(e *Engine) *Dispatcher {
	g := e.Geometry()
	r := e.Region()
	return &Dispatcher{
		engine: e,
		guard:  new(Guard),
		info: Info{
			StorageSize:    r.Size,
			TotalFlashSize: g.TotalFlashSize,
			BackingSize:    g.BackingSize,
			StorageBase:    r.Base,
			MaxRead:        MaxRead,
			MaxWrite:       MaxWrite,
		},
	}
}

// Guard exposes the busy/abort state, e.g. for a cancellation producer.
func (d *Dispatcher) Guard() *Guard { return d.guard }

// Info returns the geometry descriptor answered to CmdInfo.
func (d *Dispatcher) Info() Info { return d.info }

// Handle processes one request frame in place. data must hold at least
// FrameSize bytes; anything shorter is answered as unhandled.
//
// Byte 0 of the response is left as received: for plain framing it still
// holds the command code, for report-ID framing it echoes the report ID.
// Bytes 1..31 are rebuilt from scratch.
func (d *Dispatcher) Handle(data []byte) {
	if len(data) < FrameSize {
		if len(data) > 0 {
			data[0] = Unhandled
		}
		return
	}

	var req [FrameSize]byte
	copy(req[:], data)

	base, cmd, ok := locate(req[:])
	if !ok {
		data[0] = Unhandled
		return
	}

	clear(data[1:FrameSize])
	if base == 1 {
		data[0] = req[0]
	}

	r := req[base:]
	p := data[base:FrameSize]
	st := d.dispatch(cmd, r, p)
	p[offStatus] = byte(st)

	logging.Debug(logging.ComponentDispatch, "handled",
		"cmd", cmd,
		"reportID", base == 1,
		"status", st)
}

func (d *Dispatcher) dispatch(cmd Command, r, p []byte) Status {
	if cmd == CmdInfo {
		d.info.MarshalTo(p[offStatus+1:])
		return StatusOK
	}

	if d.guard.Busy() {
		return StatusBusy
	}

	switch cmd {
	case CmdRead:
		return d.read(r, p)
	case CmdWrite:
		return d.write(r)
	case CmdErase:
		return d.erase(r)
	}
	return StatusErr
}

func (d *Dispatcher) read(r, p []byte) Status {
	offset := binary.BigEndian.Uint32(r[offArgAddr:])
	size := r[offArgSize]

	if size == 0 || size > MaxRead {
		return StatusErr
	}
	if !d.engine.Region().Contains(uint64(offset), uint64(size)) {
		return StatusRange
	}

	if !d.guard.Begin() {
		return StatusBusy
	}
	dst := p[offRdData : offRdData+int(size)]
	err := d.engine.Read(offset, dst)
	if d.guard.End() {
		clear(dst)
		logging.Warn(logging.ComponentDispatch, "read aborted", "offset", offset)
		return StatusAbort
	}
	if err != nil {
		clear(dst)
		logging.Error(logging.ComponentDispatch, "read failed", "offset", offset, "size", size, "err", err)
		return StatusErr
	}

	p[offRdSize] = size
	return StatusOK
}

func (d *Dispatcher) write(r []byte) Status {
	offset := binary.BigEndian.Uint32(r[offArgAddr:])
	size := int(r[offArgSize])

	// With report-ID framing the payload area is one byte shorter.
	if size == 0 || size > MaxWrite || offPayload+size > len(r) {
		return StatusErr
	}
	if !d.engine.Region().Contains(uint64(offset), uint64(size)) {
		return StatusRange
	}

	if !d.guard.Begin() {
		return StatusBusy
	}
	err := d.engine.Write(d.guard, offset, r[offPayload:offPayload+size])
	if d.guard.End() {
		logging.Warn(logging.ComponentDispatch, "write aborted", "offset", offset, "size", size)
		return StatusAbort
	}
	if err != nil {
		logging.Error(logging.ComponentDispatch, "write failed", "offset", offset, "size", size, "err", err)
		return StatusErr
	}
	return StatusOK
}

func (d *Dispatcher) erase(r []byte) Status {
	offset := binary.BigEndian.Uint32(r[offArgAddr:])
	size := binary.BigEndian.Uint32(r[offArgSize:])

	if size == 0 {
		return StatusErr
	}
	if !d.engine.Region().Contains(uint64(offset), uint64(size)) {
		return StatusRange
	}
	if !d.engine.aligned(offset) || !d.engine.aligned(size) {
		return StatusAlign
	}

	if !d.guard.Begin() {
		return StatusBusy
	}
	err := d.engine.Erase(d.guard, offset, size)
	if d.guard.End() {
		logging.Warn(logging.ComponentDispatch, "erase aborted", "offset", offset, "size", size)
		return StatusAbort
	}
	if err != nil {
		logging.Error(logging.ComponentDispatch, "erase failed", "offset", offset, "size", size, "err", err)
		return StatusErr
	}
	return StatusOK
}
