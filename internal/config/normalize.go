package config

import "github.com/gentam/secretflash"

const DefaultListen = "127.0.0.1:7531"

// Normalize fills in defaults. It is the only step allowed to mutate the
// configuration.
func Normalize(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMem
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	def := secretflash.RP2040Geometry
	g := &cfg.Geometry
	if g.TotalFlashSize == 0 {
		g.TotalFlashSize = def.TotalFlashSize
	}
	if g.BackingSize == nil {
		v := def.BackingSize
		g.BackingSize = &v
	}
	if g.StorageSize == 0 {
		g.StorageSize = def.StorageSize
	}
	if g.SectorSize == 0 {
		g.SectorSize = def.SectorSize
	}
	if g.PageSize == 0 {
		g.PageSize = def.PageSize
	}
}

// Geometry converts the normalized configuration.
func (g GeometryConfig) Geometry() secretflash.Geometry {
	var backing uint32
	if g.BackingSize != nil {
		backing = *g.BackingSize
	}
	return secretflash.Geometry{
		TotalFlashSize: g.TotalFlashSize,
		BackingSize:    backing,
		StorageSize:    g.StorageSize,
		SectorSize:     g.SectorSize,
		PageSize:       g.PageSize,
	}
}
