package secretflash

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// FileFlash is a HAL backed by a flash image on the host filesystem.
type FileFlash struct {
	File *os.File

	size       uint32
	sectorSize uint32
	pageSize   uint32
	blank      []byte
}

// OpenFileFlash opens or creates the image at path for a flash of g's
// geometry. A new or short image is extended with erased sectors.
func OpenFileFlash(path string, g Geometry) (*FileFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open flash image: %w", err)
	}
	ff := &FileFlash{
		File:       f,
		size:       g.TotalFlashSize,
		sectorSize: g.SectorSize,
		pageSize:   g.PageSize,
		blank:      make([]byte, g.SectorSize),
	}
	for i := range ff.blank {
		ff.blank[i] = ErasedByte
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	// extend from the first whole sector past the current end
	start := (uint32(min(st.Size(), int64(ff.size))) / ff.sectorSize) * ff.sectorSize
	for addr := start; addr < ff.size; addr += ff.sectorSize {
		if _, err := f.WriteAt(ff.blank, int64(addr)); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not initialize sector %#x: %w", addr, err)
		}
	}
	return ff, nil
}

func (ff *FileFlash) MapRead(addr uint32, dst []byte) error {
	if uint64(addr)+uint64(len(dst)) > uint64(ff.size) {
		return fmt.Errorf("read %#x+%d: %w", addr, len(dst), ErrRange)
	}
	n, err := ff.File.ReadAt(dst, int64(addr))
	if n < len(dst) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("read %#x+%d: %w", addr, len(dst), err)
	}
	return nil
}

func (ff *FileFlash) EraseSector(addr uint32) error {
	if addr%ff.sectorSize != 0 || addr >= ff.size {
		return fmt.Errorf("erase %#x: %w", addr, ErrAlign)
	}
	_, err := ff.File.WriteAt(ff.blank, int64(addr))
	return err
}

func (ff *FileFlash) ProgramPage(addr uint32, src []byte) error {
	if addr%ff.pageSize != 0 || uint32(len(src)) > ff.pageSize {
		return fmt.Errorf("program %#x: %w", addr, ErrAlign)
	}
	if uint64(addr)+uint64(len(src)) > uint64(ff.size) {
		return fmt.Errorf("program %#x: %w", addr, ErrRange)
	}
	cur := make([]byte, len(src))
	if _, err := ff.File.ReadAt(cur, int64(addr)); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	for i := range cur {
		cur[i] &= src[i]
	}
	_, err := ff.File.WriteAt(cur, int64(addr))
	return err
}

// Sync flushes the image to disk.
func (ff *FileFlash) Sync() error {
	return ff.File.Sync()
}

func (ff *FileFlash) Close() error {
	return ff.File.Close()
}

var _ HAL = (*FileFlash)(nil)
