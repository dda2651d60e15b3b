package secretflash

import (
	"context"
	"sync"

	"github.com/gentam/secretflash/internal/logging"
)

// ReportSender sends an input report to the host. A USB HID class driver's
// SendReport has this shape.
type ReportSender interface {
	SendReport(ctx context.Context, data []byte) error
}

// RawHID connects a Dispatcher to a raw HID interface: output reports from
// the host are handled and the response is sent back as an input report.
type RawHID struct {
	d   *Dispatcher
	out ReportSender

	mu    sync.Mutex
	frame [FrameSize]byte
}

func NewRawHID(d *Dispatcher, out ReportSender) *RawHID {
	return &RawHID{d: d, out: out}
}

// OnOutputReport is meant to be registered as the HID output report
// callback. Reports shorter than FrameSize are zero padded.
func (h *RawHID) OnOutputReport(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clear(h.frame[:])
	copy(h.frame[:], data)
	h.d.Handle(h.frame[:])

	if err := h.out.SendReport(context.Background(), h.frame[:]); err != nil {
		logging.Error(logging.ComponentDispatch, "send report failed", "err", err)
	}
}
