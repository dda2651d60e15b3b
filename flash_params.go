package secretflash

import "time"

type flashParams struct {
	name     string
	capacity uint32 // bytes

	tRES1     time.Duration
	tDP       time.Duration
	tPP       time.Duration
	tErase4KB time.Duration
}

var (
	flashIDMicronN25Q32   = [3]byte{0x20, 0xBA, 0x16}
	flashIDWinbondW25Q128 = [3]byte{0xEF, 0x70, 0x18}
	flashIDWinbondW25Q16  = [3]byte{0xEF, 0x40, 0x15}
)

var knownFlash = map[[3]byte]flashParams{
	flashIDMicronN25Q32: {
		name:     "Micron N25Q 32Mb",
		capacity: 4 << 20,

		// [N25Q32|Table 38: AC Characteristics and Operating Conditions]
		// tPP: PAGE PROGRAM cycle time (256 bytes)
		tPP: 5 * time.Millisecond,
		// tSSE: Subsector ERASE cycle time
		tErase4KB: 800 * time.Millisecond,
	},

	flashIDWinbondW25Q128: {
		name:     "Winbond W25Q 128Mb",
		capacity: 16 << 20,

		// [W25Q128|9.6 AC Electrical Characteristics]:
		// tRES1: /CS High to Standby Mode without ID Read
		tRES1: 3 * time.Microsecond,
		// tDP: /CS High to Power-down Mode
		tDP: 3 * time.Microsecond,
		// tPP: Page Program Time
		tPP: 3 * time.Millisecond,
		// tSE: Sector Erase Time (4KB)
		tErase4KB: 400 * time.Millisecond,
	},

	// The 2MB part fitted to Raspberry Pi Pico boards.
	flashIDWinbondW25Q16: {
		name:     "Winbond W25Q 16Mb",
		capacity: 2 << 20,

		// [W25Q16JV|9.6 AC Electrical Characteristics]
		tRES1:     3 * time.Microsecond,
		tDP:       3 * time.Microsecond,
		tPP:       3 * time.Millisecond,
		tErase4KB: 400 * time.Millisecond,
	},
}

func (f *SPIFlash) paramOrMax(get func(*flashParams) time.Duration) time.Duration {
	// get parameter if configured
	if f.pr != nil {
		return get(f.pr)
	}

	// fall back to maximum duration from all known flash parameters
	var tmax time.Duration
	for _, param := range knownFlash {
		tmax = max(tmax, get(&param))
	}
	return tmax
}

func (f *SPIFlash) tRES1() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tRES1 })
}
func (f *SPIFlash) tDP() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tDP })
}
func (f *SPIFlash) tPP() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tPP })
}
func (f *SPIFlash) tErase4KB() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tErase4KB })
}
