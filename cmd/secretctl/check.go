package main

import (
	"fmt"

	"github.com/gentam/secretflash"
)

// span returns the byte count for an operation at off inside a region of
// total bytes. A zero size means up to the end of the region.
func span(off, size, total uint32) (uint32, error) {
	if off >= total {
		return 0, fmt.Errorf("offset %#x outside %d-byte region: %w", off, total, secretflash.ErrRange)
	}
	if size == 0 {
		return total - off, nil
	}
	if uint64(off)+uint64(size) > uint64(total) {
		return 0, fmt.Errorf("%#x+%#x exceeds %d-byte region: %w", off, size, total, secretflash.ErrRange)
	}
	return size, nil
}

// verify compares the CRC-16 of len(want) bytes at off with want's.
func verify(c *secretflash.Client, want []byte, off uint32) error {
	got, err := c.Checksum(off, uint32(len(want)))
	if err != nil {
		return err
	}
	if exp := secretflash.Checksum(want); got != exp {
		return fmt.Errorf("verify at %#x: crc16 %04x, want %04x", off, got, exp)
	}
	return nil
}
