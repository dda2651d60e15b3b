package secretflash

import (
	"fmt"
	"sync"
)

// MemFlash is a HAL backed by a byte slice. It behaves like NOR flash:
// erase sets a sector to ErasedByte and programming can only clear bits.
type MemFlash struct {
	sectorSize uint32
	pageSize   uint32

	mu     sync.Mutex
	memory []byte

	// Counters for observing hardware access.
	Reads    int
	Erases   int
	Programs int
	Critical int // interrupt-masked sections entered
	masked   bool

	// Optional hooks called after each erase / program with the address.
	OnErase   func(addr uint32)
	OnProgram func(addr uint32)
}

// NewMemFlash creates an erased flash of size bytes.
func NewMemFlash(size, sectorSize, pageSize uint32) *MemFlash {
	m := &MemFlash{
		sectorSize: sectorSize,
		pageSize:   pageSize,
		memory:     make([]byte, size),
	}
	for i := range m.memory {
		m.memory[i] = ErasedByte
	}
	return m
}

// NewMemFlashFor creates an erased flash matching g.
func NewMemFlashFor(g Geometry) *MemFlash {
	return NewMemFlash(g.TotalFlashSize, g.SectorSize, g.PageSize)
}

func (m *MemFlash) MapRead(addr uint32, dst []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(addr, len(dst)); err != nil {
		return err
	}
	m.Reads++
	copy(dst, m.memory[addr:])
	return nil
}

func (m *MemFlash) EraseSector(addr uint32) error {
	m.mu.Lock()
	if addr%m.sectorSize != 0 {
		m.mu.Unlock()
		return fmt.Errorf("erase %#x: %w", addr, ErrAlign)
	}
	if err := m.check(addr, int(m.sectorSize)); err != nil {
		m.mu.Unlock()
		return err
	}
	sector := m.memory[addr : addr+m.sectorSize]
	for i := range sector {
		sector[i] = ErasedByte
	}
	m.Erases++
	hook := m.OnErase
	m.mu.Unlock()

	if hook != nil {
		hook(addr)
	}
	return nil
}

func (m *MemFlash) ProgramPage(addr uint32, src []byte) error {
	m.mu.Lock()
	if addr%m.pageSize != 0 || uint32(len(src)) > m.pageSize {
		m.mu.Unlock()
		return fmt.Errorf("program %#x (%d bytes): %w", addr, len(src), ErrAlign)
	}
	if err := m.check(addr, len(src)); err != nil {
		m.mu.Unlock()
		return err
	}
	page := m.memory[addr:]
	for i, b := range src {
		page[i] &= b
	}
	m.Programs++
	hook := m.OnProgram
	m.mu.Unlock()

	if hook != nil {
		hook(addr)
	}
	return nil
}

func (m *MemFlash) SaveAndDisableInterrupts() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Critical++
	m.masked = true
	return 1
}

func (m *MemFlash) RestoreInterrupts(uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masked = false
}

// Masked reports whether a critical section is currently open.
func (m *MemFlash) Masked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.masked
}

// Bytes returns a copy of [addr, addr+n).
func (m *MemFlash) Bytes(addr, n uint32) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, n)
	copy(out, m.memory[addr:addr+n])
	return out
}

// Fill overwrites [addr, addr+len(b)) directly, bypassing NOR rules.
func (m *MemFlash) Fill(addr uint32, b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.memory[addr:], b)
}

// ResetCounters zeroes the access counters.
func (m *MemFlash) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads, m.Erases, m.Programs, m.Critical = 0, 0, 0, 0
}

func (m *MemFlash) check(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(len(m.memory)) {
		return fmt.Errorf("access %#x+%d beyond flash size %#x: %w", addr, n, len(m.memory), ErrRange)
	}
	return nil
}

var (
	_ HAL             = (*MemFlash)(nil)
	_ InterruptMasker = (*MemFlash)(nil)
)
