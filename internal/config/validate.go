package config

import (
	"fmt"
	"net"

	"github.com/gentam/secretflash"
	"github.com/gentam/secretflash/internal/logging"
)

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		return fmt.Errorf("listen %q: %w", cfg.Listen, err)
	}

	switch cfg.Backend {
	case BackendMem, BackendFTDI:
	case BackendFile:
		if cfg.Image == "" {
			return fmt.Errorf("backend %q requires image", cfg.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)",
			cfg.Backend, BackendMem, BackendFile, BackendFTDI)
	}

	// the ftdi backend learns the flash size from the chip
	if cfg.Backend != BackendFTDI {
		if _, err := secretflash.NewRegion(cfg.Geometry.Geometry()); err != nil {
			return fmt.Errorf("geometry: %w", err)
		}
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", cfg.Log.Format)
	}
	return nil
}
