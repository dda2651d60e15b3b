package secretflash

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func newTestDispatcher(t *testing.T, g Geometry) (*Dispatcher, *MemFlash) {
	t.Helper()
	mem := NewMemFlashFor(g)
	return NewDispatcher(NewEngine(mem, g)), mem
}

func infoFrame() []byte {
	f := make([]byte, FrameSize)
	f[0] = byte(CmdInfo)
	return f
}

func readFrame(off uint32, size byte) []byte {
	f := make([]byte, FrameSize)
	f[0] = byte(CmdRead)
	binary.BigEndian.PutUint32(f[1:], off)
	f[5] = size
	return f
}

func writeFrame(off uint32, payload []byte) []byte {
	f := make([]byte, FrameSize)
	f[0] = byte(CmdWrite)
	binary.BigEndian.PutUint32(f[1:], off)
	f[5] = byte(len(payload))
	copy(f[6:], payload)
	return f
}

func eraseFrame(off, size uint32) []byte {
	f := make([]byte, FrameSize)
	f[0] = byte(CmdErase)
	binary.BigEndian.PutUint32(f[1:], off)
	binary.BigEndian.PutUint32(f[5:], size)
	return f
}

// withReportID shifts f right by one byte and puts id in front.
func withReportID(id byte, f []byte) []byte {
	out := make([]byte, FrameSize)
	out[0] = id
	copy(out[1:], f)
	return out
}

func statusOf(resp []byte, base int) Status {
	return Status(resp[base+1])
}

func TestDispatchInfo(t *testing.T) {
	d, _ := newTestDispatcher(t, RP2040Geometry)

	resp := infoFrame()
	d.Handle(resp)

	if st := statusOf(resp, 0); st != StatusOK {
		t.Fatalf("status = %v, want ok", st)
	}
	if resp[0] != byte(CmdInfo) {
		t.Errorf("byte 0 = %#x, want command echoed", resp[0])
	}

	tests := []struct {
		name string
		off  int
		want uint32
	}{
		{"storage size", 2, 4096},
		{"total flash size", 6, 2097152},
		{"backing size", 10, 8192},
		{"storage base", 14, 2084864},
	}
	for _, tt := range tests {
		if got := binary.BigEndian.Uint32(resp[tt.off:]); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
	if resp[18] != MaxRead || resp[19] != MaxWrite {
		t.Errorf("limits = %d/%d, want %d/%d", resp[18], resp[19], MaxRead, MaxWrite)
	}
	if !bytes.Equal(resp[20:], make([]byte, 12)) {
		t.Errorf("trailing bytes not zeroed: % x", resp[20:])
	}
}

func TestDispatchInfoWhileBusy(t *testing.T) {
	d, _ := newTestDispatcher(t, RP2040Geometry)
	d.Guard().Begin()
	defer d.Guard().End()

	resp := infoFrame()
	d.Handle(resp)
	if st := statusOf(resp, 0); st != StatusOK {
		t.Errorf("status = %v, want ok", st)
	}
}

func TestDispatchValidation(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  Status
	}{
		{"read zero size", readFrame(0, 0), StatusErr},
		{"read too large", readFrame(0, MaxRead+1), StatusErr},
		{"read max byte", readFrame(0, 255), StatusErr},
		{"read past end", readFrame(4090, 10), StatusRange},
		{"read offset wraps", readFrame(0xFFFFFFFF, 2), StatusRange},
		{"write zero size", writeFrame(0, nil), StatusErr},
		{"write too large", writeFrame(0, make([]byte, MaxWrite+1)), StatusErr},
		{"write past end", writeFrame(4095, []byte{1, 2}), StatusRange},
		{"erase zero size", eraseFrame(0, 0), StatusErr},
		{"erase past end", eraseFrame(0, 8192), StatusRange},
		{"erase offset wraps", eraseFrame(0xFFFFF000, 0x2000), StatusRange},
		{"erase misaligned offset", eraseFrame(1, 4095), StatusAlign},
		{"erase misaligned size", eraseFrame(0, 100), StatusAlign},
		{"range checked before align", eraseFrame(1, 8192), StatusRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, mem := newTestDispatcher(t, RP2040Geometry)
			before := mem.Bytes(0, RP2040Geometry.TotalFlashSize)

			d.Handle(tt.frame)
			if st := statusOf(tt.frame, 0); st != tt.want {
				t.Errorf("status = %v, want %v", st, tt.want)
			}
			if mem.Reads != 0 || mem.Erases != 0 || mem.Programs != 0 {
				t.Errorf("rejected request touched hardware: reads=%d erases=%d programs=%d",
					mem.Reads, mem.Erases, mem.Programs)
			}
			if !bytes.Equal(before, mem.Bytes(0, RP2040Geometry.TotalFlashSize)) {
				t.Error("rejected request changed flash")
			}
			if d.Guard().Busy() {
				t.Error("guard left busy")
			}
		})
	}
}

func TestDispatchWriteReadRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher(t, RP2040Geometry)

	payload := make([]byte, 26)
	for i := range payload {
		payload[i] = byte(i + 1)
	}

	w := writeFrame(0, payload)
	d.Handle(w)
	if st := statusOf(w, 0); st != StatusOK {
		t.Fatalf("write status = %v, want ok", st)
	}
	if !bytes.Equal(w[2:], make([]byte, 30)) {
		t.Errorf("write response not zeroed: % x", w[2:])
	}

	r := readFrame(0, 26)
	d.Handle(r)
	if st := statusOf(r, 0); st != StatusOK {
		t.Fatalf("read status = %v, want ok", st)
	}
	if r[2] != 26 {
		t.Errorf("size echo = %d, want 26", r[2])
	}
	if !bytes.Equal(r[3:29], payload) {
		t.Errorf("read back % x, want % x", r[3:29], payload)
	}
}

func TestDispatchRoundTripArbitraryOffsets(t *testing.T) {
	d, _ := newTestDispatcher(t, testGeometry)

	for _, off := range []uint32{0, 1, 255, 256, 4080, 4095 - 25, 16384 - 26} {
		payload := make([]byte, 26)
		for i := range payload {
			payload[i] = byte(off) ^ byte(i*7)
		}
		w := writeFrame(off, payload)
		d.Handle(w)
		if st := statusOf(w, 0); st != StatusOK {
			t.Fatalf("write at %d: status %v", off, st)
		}
		r := readFrame(off, 26)
		d.Handle(r)
		if st := statusOf(r, 0); st != StatusOK {
			t.Fatalf("read at %d: status %v", off, st)
		}
		if !bytes.Equal(r[3:29], payload) {
			t.Errorf("offset %d: read back % x, want % x", off, r[3:29], payload)
		}
	}
}

func TestDispatchEraseIdempotent(t *testing.T) {
	d, mem := newTestDispatcher(t, RP2040Geometry)
	base := d.Info().StorageBase

	w := writeFrame(10, []byte{0, 0, 0})
	d.Handle(w)

	for i := 0; i < 2; i++ {
		e := eraseFrame(0, 4096)
		d.Handle(e)
		if st := statusOf(e, 0); st != StatusOK {
			t.Fatalf("erase #%d status = %v, want ok", i+1, st)
		}
		if got := mem.Bytes(base, 4096); !bytes.Equal(got, filled(4096, ErasedByte)) {
			t.Errorf("erase #%d left non-erased bytes", i+1)
		}
	}

	r := readFrame(0, MaxRead)
	d.Handle(r)
	if !bytes.Equal(r[3:3+MaxRead], filled(MaxRead, ErasedByte)) {
		t.Errorf("read after erase = % x", r[3:3+MaxRead])
	}
}

func TestDispatchBusy(t *testing.T) {
	frames := map[string][]byte{
		"read":  readFrame(0, 4),
		"write": writeFrame(0, []byte{1, 2, 3}),
		"erase": eraseFrame(0, 4096),
		// arguments are not inspected while busy
		"invalid read": readFrame(0, 0),
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			d, mem := newTestDispatcher(t, RP2040Geometry)
			if !d.Guard().Begin() {
				t.Fatal("Begin() failed")
			}
			defer d.Guard().End()

			before := mem.Bytes(0, RP2040Geometry.TotalFlashSize)
			d.Handle(frame)
			if st := statusOf(frame, 0); st != StatusBusy {
				t.Errorf("status = %v, want busy", st)
			}
			if mem.Reads != 0 || mem.Erases != 0 || mem.Programs != 0 {
				t.Error("busy request touched hardware")
			}
			if !bytes.Equal(before, mem.Bytes(0, RP2040Geometry.TotalFlashSize)) {
				t.Error("busy request changed flash")
			}
			if !d.Guard().Busy() {
				t.Error("busy request released the guard")
			}
		})
	}
}

func TestDispatchEraseAbortByEscape(t *testing.T) {
	d, mem := newTestDispatcher(t, testGeometry)
	base := d.Info().StorageBase
	mem.Fill(base, filled(int(testGeometry.StorageSize), 0x00))

	var passed []bool
	mem.OnErase = func(addr uint32) {
		if addr == base {
			passed = append(passed, d.ProcessKey(0x04, true)) // KC_A
			passed = append(passed, d.ProcessKey(KeyEscape, true))
		}
	}

	e := eraseFrame(0, testGeometry.StorageSize)
	d.Handle(e)
	if st := statusOf(e, 0); st != StatusAbort {
		t.Fatalf("status = %v, want abort", st)
	}
	for i, p := range passed {
		if p {
			t.Errorf("key %d passed through while busy", i)
		}
	}
	if mem.Erases != 1 {
		t.Errorf("erases = %d, want 1", mem.Erases)
	}
	if got := mem.Bytes(base+4096, 12288); !bytes.Equal(got, filled(12288, 0x00)) {
		t.Error("sectors after the abort point changed")
	}
	if d.Guard().Busy() {
		t.Error("guard left busy after abort")
	}

	// the next operation runs normally
	e = eraseFrame(4096, 4096)
	d.Handle(e)
	if st := statusOf(e, 0); st != StatusOK {
		t.Errorf("status after abort = %v, want ok", st)
	}
}

func TestDispatchWriteAbort(t *testing.T) {
	d, mem := newTestDispatcher(t, testGeometry)
	base := d.Info().StorageBase

	mem.OnProgram = func(uint32) { d.Abort() }

	w := writeFrame(4086, filled(20, 0x42))
	d.Handle(w)
	if st := statusOf(w, 0); st != StatusAbort {
		t.Fatalf("status = %v, want abort", st)
	}
	if got := mem.Bytes(base+4086, 10); !bytes.Equal(got, filled(10, 0x42)) {
		t.Errorf("committed prefix = % x", got)
	}
	if got := mem.Bytes(base+4096, 10); !bytes.Equal(got, filled(10, ErasedByte)) {
		t.Errorf("bytes after abort point = % x, want unchanged", got)
	}
}

func TestDispatchKeyPassThroughWhenIdle(t *testing.T) {
	d, _ := newTestDispatcher(t, RP2040Geometry)
	if !d.ProcessKey(KeyEscape, true) {
		t.Error("ProcessKey() swallowed a key while idle")
	}
	if d.Abort() {
		t.Error("Abort() reported a running operation while idle")
	}
}

func TestDispatchReportIDFraming(t *testing.T) {
	d, _ := newTestDispatcher(t, RP2040Geometry)
	const id = 0x00

	info := withReportID(id, infoFrame())
	d.Handle(info)
	if info[0] != id {
		t.Errorf("report ID = %#x, want %#x", info[0], id)
	}
	if info[1] != 0 {
		t.Errorf("command position = %#x, want zeroed", info[1])
	}
	if st := statusOf(info, 1); st != StatusOK {
		t.Fatalf("info status = %v, want ok", st)
	}
	if got := binary.BigEndian.Uint32(info[15:]); got != 2084864 {
		t.Errorf("storage base = %d, want 2084864", got)
	}
	if info[19] != MaxRead || info[20] != MaxWrite {
		t.Errorf("limits = %d/%d", info[19], info[20])
	}

	payload := filled(25, 0x5A)
	w := withReportID(id, writeFrame(100, payload))
	d.Handle(w)
	if st := statusOf(w, 1); st != StatusOK {
		t.Fatalf("write status = %v, want ok", st)
	}

	r := withReportID(id, readFrame(100, MaxRead))
	d.Handle(r)
	if st := statusOf(r, 1); st != StatusOK {
		t.Fatalf("read status = %v, want ok", st)
	}
	if r[3] != MaxRead {
		t.Errorf("size echo = %d", r[3])
	}
	want := append(filled(25, 0x5A), filled(3, ErasedByte)...)
	if !bytes.Equal(r[4:32], want) {
		t.Errorf("read back % x, want % x", r[4:32], want)
	}
}

func TestDispatchReportIDWriteOverflow(t *testing.T) {
	d, mem := newTestDispatcher(t, RP2040Geometry)

	// 26 bytes of payload do not fit after a report ID byte
	w := withReportID(0x00, writeFrame(0, filled(MaxWrite, 1)))
	d.Handle(w)
	if st := statusOf(w, 1); st != StatusErr {
		t.Errorf("status = %v, want error", st)
	}
	if mem.Erases != 0 {
		t.Error("overflowing write touched hardware")
	}
}

func TestDispatchCommandAtOffsetZeroWins(t *testing.T) {
	d, _ := newTestDispatcher(t, RP2040Geometry)

	// byte 1 is also a command code, but byte 0 takes precedence
	f := infoFrame()
	f[1] = byte(CmdErase)
	d.Handle(f)
	if f[0] != byte(CmdInfo) {
		t.Errorf("byte 0 = %#x", f[0])
	}
	if st := statusOf(f, 0); st != StatusOK {
		t.Errorf("status = %v, want ok", st)
	}
	if got := binary.BigEndian.Uint32(f[2:]); got != 4096 {
		t.Errorf("storage size = %d, want info response", got)
	}
}

func TestDispatchUnhandled(t *testing.T) {
	d, _ := newTestDispatcher(t, RP2040Geometry)

	f := make([]byte, FrameSize)
	f[0], f[1], f[2] = 0x01, 0x02, 0x03
	d.Handle(f)
	if f[0] != Unhandled {
		t.Errorf("byte 0 = %#x, want %#x", f[0], Unhandled)
	}
	if f[1] != 0x02 || f[2] != 0x03 {
		t.Error("unhandled frame body was modified")
	}

	short := []byte{byte(CmdInfo), 0, 0}
	d.Handle(short)
	if short[0] != Unhandled {
		t.Errorf("short frame byte 0 = %#x, want %#x", short[0], Unhandled)
	}

	d.Handle(nil)
}

func TestDispatchHardwareError(t *testing.T) {
	mem := NewMemFlashFor(RP2040Geometry)
	d := NewDispatcher(NewEngine(failingHAL{MemFlash: mem, err: errors.New("flash fault")}, RP2040Geometry))

	w := writeFrame(0, []byte{1})
	d.Handle(w)
	if st := statusOf(w, 0); st != StatusErr {
		t.Errorf("write status = %v, want error", st)
	}
	e := eraseFrame(0, 4096)
	d.Handle(e)
	if st := statusOf(e, 0); st != StatusErr {
		t.Errorf("erase status = %v, want error", st)
	}
	if d.Guard().Busy() {
		t.Error("guard left busy after failure")
	}
}
