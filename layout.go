package secretflash

import "fmt"

// Geometry holds the build-time flash constants. The secret region sits
// directly below the wear-leveling backing region at the top of flash.
type Geometry struct {
	TotalFlashSize uint32 // PICO_FLASH_SIZE_BYTES
	BackingSize    uint32 // WEAR_LEVELING_BACKING_SIZE
	StorageSize    uint32 // SECRET_STORAGE_SIZE
	SectorSize     uint32 // smallest erasable unit
	PageSize       uint32 // smallest programmable unit
}

// RP2040Geometry is the default layout: 2MB flash, 8KB wear-leveling backing
// and one 4KB sector of secret storage.
var RP2040Geometry = Geometry{
	TotalFlashSize: 2 << 20,
	BackingSize:    8 << 10,
	StorageSize:    4 << 10,
	SectorSize:     4 << 10,
	PageSize:       256,
}

// Region is the absolute flash byte range of the secret storage.
type Region struct {
	Base uint32
	Size uint32
}

// End returns the first address past the region.
func (r Region) End() uint32 { return r.Base + r.Size }

// Contains reports whether [offset, offset+size) lies within the region.
// The sum is computed in 64 bits so a large offset cannot wrap around.
func (r Region) Contains(offset, size uint64) bool {
	return offset+size <= uint64(r.Size)
}

func (r Region) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Base, r.End())
}

// NewRegion derives the secret region from g and validates it.
func NewRegion(g Geometry) (Region, error) {
	if g.SectorSize == 0 || g.SectorSize&(g.SectorSize-1) != 0 {
		return Region{}, fmt.Errorf("%w: sector size %d must be a power of two", ErrGeometry, g.SectorSize)
	}
	if g.PageSize == 0 || g.PageSize > g.SectorSize || g.SectorSize%g.PageSize != 0 {
		return Region{}, fmt.Errorf("%w: page size %d must divide sector size %d", ErrGeometry, g.PageSize, g.SectorSize)
	}
	if g.StorageSize == 0 {
		return Region{}, fmt.Errorf("%w: storage size must be > 0", ErrGeometry)
	}
	if g.StorageSize%g.SectorSize != 0 {
		return Region{}, fmt.Errorf("%w: storage size %#x must be sector aligned", ErrGeometry, g.StorageSize)
	}
	if g.BackingSize%g.SectorSize != 0 {
		return Region{}, fmt.Errorf("%w: backing size %#x must be sector aligned", ErrGeometry, g.BackingSize)
	}
	if uint64(g.StorageSize)+uint64(g.BackingSize) > uint64(g.TotalFlashSize) {
		return Region{}, fmt.Errorf("%w: storage %#x + backing %#x exceeds flash size %#x",
			ErrGeometry, g.StorageSize, g.BackingSize, g.TotalFlashSize)
	}

	base := g.TotalFlashSize - g.BackingSize - g.StorageSize
	if base%g.SectorSize != 0 {
		return Region{}, fmt.Errorf("%w: storage base %#x must be sector aligned", ErrGeometry, base)
	}
	return Region{Base: base, Size: g.StorageSize}, nil
}

// MustRegion is like NewRegion but panics on a misconfigured build.
func MustRegion(g Geometry) Region {
	r, err := NewRegion(g)
	if err != nil {
		panic(err)
	}
	return r
}
