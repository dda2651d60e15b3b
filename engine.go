package secretflash

import (
	"fmt"

	"github.com/gentam/secretflash/internal/logging"
)

// Token is polled by Engine between atomic units of work. Once it reports
// true the operation stops at the next sector (erase) or chunk (write)
// boundary.
type Token interface {
	Aborted() bool
}

type neverAbort struct{}

func (neverAbort) Aborted() bool { return false }

// NeverAbort is a Token that is never set.
var NeverAbort Token = neverAbort{}

// Engine performs reads, erases and read-modify-program writes inside the
// secret region. Offsets are relative to Region.Base.
//
// Engine owns one scratch sector buffer and is not safe for concurrent use;
// callers serialize through a Guard.
type Engine struct {
	hal        HAL
	geometry   Geometry
	region     Region
	sectorSize uint32
	pageSize   uint32
	scratch    []byte
}

// NewEngine validates g and returns an engine over hal. It panics if g is
// misconfigured.
func NewEngine(hal HAL, g Geometry) *Engine {
	return &Engine{
		hal:        hal,
		geometry:   g,
		region:     MustRegion(g),
		sectorSize: g.SectorSize,
		pageSize:   g.PageSize,
		scratch:    make([]byte, g.SectorSize),
	}
}

// Region returns the secret region.
func (e *Engine) Region() Region { return e.region }

// Geometry returns the flash constants the engine was built with.
func (e *Engine) Geometry() Geometry { return e.geometry }

// SectorSize returns the erase granularity.
func (e *Engine) SectorSize() uint32 { return e.sectorSize }

func (e *Engine) aligned(v uint32) bool { return v&(e.sectorSize-1) == 0 }

// Read copies len(dst) bytes from offset. The caller checks the range.
func (e *Engine) Read(offset uint32, dst []byte) error {
	return e.hal.MapRead(e.region.Base+offset, dst)
}

// Erase erases length bytes from offset. Both must be sector aligned.
//
// Erase is not atomic: on abort the sectors already erased stay erased and
// the rest are untouched.
func (e *Engine) Erase(tok Token, offset, length uint32) error {
	if !e.aligned(offset) || !e.aligned(length) {
		return ErrAlign
	}

	start := e.region.Base + offset
	end := start + length
	for addr := start; addr < end; addr += e.sectorSize {
		if tok.Aborted() {
			logging.Debug(logging.ComponentEngine, "erase aborted", "addr", addr, "done", addr-start)
			return ErrAborted
		}
		if err := critical(e.hal, func() error {
			return e.hal.EraseSector(addr)
		}); err != nil {
			return fmt.Errorf("erase sector %#x: %w", addr, err)
		}
	}
	return nil
}

// Write programs src at offset. Each chunk stays within one sector: the
// sector is read into the scratch buffer, patched, erased and reprogrammed
// page by page. An abort takes effect only between chunks, so a sector once
// started always completes.
func (e *Engine) Write(tok Token, offset uint32, src []byte) error {
	addr := e.region.Base + offset
	for len(src) > 0 {
		if tok.Aborted() {
			logging.Debug(logging.ComponentEngine, "write aborted", "addr", addr, "remaining", len(src))
			return ErrAborted
		}

		sectorStart := addr &^ (e.sectorSize - 1)
		sectorOffset := addr - sectorStart
		chunk := min(uint32(len(src)), e.sectorSize-sectorOffset)

		if err := e.hal.MapRead(sectorStart, e.scratch); err != nil {
			return fmt.Errorf("read sector %#x: %w", sectorStart, err)
		}
		copy(e.scratch[sectorOffset:], src[:chunk])

		if err := critical(e.hal, func() error {
			if err := e.hal.EraseSector(sectorStart); err != nil {
				return err
			}
			for i := uint32(0); i < e.sectorSize; i += e.pageSize {
				if err := e.hal.ProgramPage(sectorStart+i, e.scratch[i:i+e.pageSize]); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return fmt.Errorf("rewrite sector %#x: %w", sectorStart, err)
		}

		addr += chunk
		src = src[chunk:]
	}
	return nil
}
