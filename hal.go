package secretflash

// ErasedByte is the value every byte of a freshly erased sector reads as.
const ErasedByte = 0xFF

// HAL is the hardware access used by Engine. Addresses are absolute flash
// offsets, not region offsets.
type HAL interface {
	// MapRead copies len(dst) bytes starting at addr, the way an
	// execute-in-place window is read.
	MapRead(addr uint32, dst []byte) error

	// EraseSector erases the sector starting at addr.
	EraseSector(addr uint32) error

	// ProgramPage programs one page starting at addr. The page must have
	// been erased.
	ProgramPage(addr uint32, src []byte) error
}

// InterruptMasker is implemented by a HAL running on the target, where flash
// erase and program must not be interrupted. The engine holds interrupts off
// for one sector operation at a time.
type InterruptMasker interface {
	SaveAndDisableInterrupts() uint32
	RestoreInterrupts(state uint32)
}

// critical runs fn with interrupts masked if the HAL supports it.
func critical(h HAL, fn func() error) error {
	m, ok := h.(InterruptMasker)
	if !ok {
		return fn()
	}
	irq := m.SaveAndDisableInterrupts()
	defer m.RestoreInterrupts(irq)
	return fn()
}
