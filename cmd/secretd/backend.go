package main

import (
	"fmt"

	"github.com/gentam/secretflash"
	"github.com/gentam/secretflash/internal/config"
	"github.com/gentam/secretflash/internal/logging"
)

// openBackend returns the HAL selected by cfg together with the geometry it
// serves and a function releasing it.
func openBackend(cfg *config.Config) (secretflash.HAL, secretflash.Geometry, func() error, error) {
	g := cfg.Geometry.Geometry()
	nop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendMem:
		return secretflash.NewMemFlashFor(g), g, nop, nil

	case config.BackendFile:
		ff, err := secretflash.OpenFileFlash(cfg.Image, g)
		if err != nil {
			return nil, g, nil, err
		}
		closeFile := func() error {
			if err := ff.Sync(); err != nil {
				ff.Close()
				return err
			}
			return ff.Close()
		}
		return ff, g, closeFile, nil

	case config.BackendFTDI:
		return openFTDI(g)
	}
	return nil, g, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func openFTDI(want secretflash.Geometry) (secretflash.HAL, secretflash.Geometry, func() error, error) {
	d, err := secretflash.NewDevice()
	if err != nil {
		return nil, want, nil, err
	}
	fail := func(err error) (secretflash.HAL, secretflash.Geometry, func() error, error) {
		d.Close()
		return nil, want, nil, err
	}

	if err := d.HoldReset(); err != nil {
		return fail(fmt.Errorf("hold reset: %w", err))
	}
	if err := d.Flash.PowerUp(); err != nil {
		return fail(fmt.Errorf("flash power up failed: %w", err))
	}

	id, name, err := d.Flash.ReadID()
	if err != nil {
		return fail(fmt.Errorf("read flash ID failed: %w", err))
	}
	g, err := d.Flash.Geometry(want.BackingSize, want.StorageSize)
	if err != nil {
		return fail(err)
	}

	sr, err := d.Flash.ReadStatusRegister()
	if err != nil {
		return fail(fmt.Errorf("read flash status register failed: %w", err))
	}
	if sr.Protected() {
		logging.Warn(logging.ComponentHAL, "flash has block protection enabled", "status", sr.String())
	}
	logging.Info(logging.ComponentHAL, "flash detected",
		"id", fmt.Sprintf("%X", id),
		"name", name,
		"size", g.TotalFlashSize)

	closeDevice := func() error {
		d.Flash.PowerDown()
		return d.Close()
	}
	return d.Flash, g, closeDevice, nil
}
