package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/gentam/secretflash"
)

type ListCmd struct{}

func (c *ListCmd) Run(ctx *Context) error {
	infos, err := enumerate()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		warnColor.Fprintln(ctx.Stdout, "no matching devices")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(ctx.Stdout, "%04x:%04x  %-24s %-20s serial=%q usage=%04x:%04x iface=%d\n  %s\n",
			info.VendorID, info.ProductID, info.Manufacturer, info.Product,
			info.Serial, info.UsagePage, info.Usage, info.Interface, info.Path)
	}
	return nil
}

type InfoCmd struct{}

func (c *InfoCmd) Run(ctx *Context) error {
	client, closer, err := ctx.Open()
	if err != nil {
		return err
	}
	defer closer.Close()

	info, err := client.Info()
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Stdout, "storage:   %d bytes at %#08x\n", info.StorageSize, info.StorageBase)
	fmt.Fprintf(ctx.Stdout, "backing:   %d bytes\n", info.BackingSize)
	fmt.Fprintf(ctx.Stdout, "flash:     %d bytes\n", info.TotalFlashSize)
	fmt.Fprintf(ctx.Stdout, "max read:  %d\n", info.MaxRead)
	fmt.Fprintf(ctx.Stdout, "max write: %d\n", info.MaxWrite)
	return nil
}

type ReadCmd struct {
	Offset number `short:"a" help:"Offset inside the storage region." default:"0"`
	Size   number `short:"n" help:"Bytes to read (default: to the end of the region)."`
	Output string `short:"o" help:"Write the data to this file instead of a hex dump." type:"path"`
}

func (c *ReadCmd) Run(ctx *Context) error {
	client, closer, err := ctx.Open()
	if err != nil {
		return err
	}
	defer closer.Close()

	info, err := client.Info()
	if err != nil {
		return err
	}
	size, err := span(uint32(c.Offset), uint32(c.Size), info.StorageSize)
	if err != nil {
		return err
	}

	buf := make([]byte, size)
	if _, err := client.ReadAt(buf, uint32(c.Offset)); err != nil {
		return err
	}

	if c.Output != "" {
		if err := os.WriteFile(c.Output, buf, 0o600); err != nil {
			return err
		}
	} else {
		fmt.Fprint(ctx.Stdout, hex.Dump(buf))
	}
	okColor.Fprintf(ctx.Stdout, "read %d bytes at %#x, crc16 %04x\n", size, uint32(c.Offset), secretflash.Checksum(buf))
	return nil
}

type WriteCmd struct {
	Offset number `short:"a" help:"Offset inside the storage region." default:"0"`
	File   string `short:"f" help:"File to write." type:"existingfile" xor:"src"`
	Hex    string `help:"Hex string to write." xor:"src"`
	Verify bool   `help:"Read back and compare after writing." default:"true" negatable:""`
}

func (c *WriteCmd) data() ([]byte, error) {
	if c.File != "" {
		return os.ReadFile(c.File)
	}
	b, err := hex.DecodeString(c.Hex)
	if err != nil {
		return nil, fmt.Errorf("--hex: %w", err)
	}
	return b, nil
}

func (c *WriteCmd) Run(ctx *Context) error {
	data, err := c.data()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("nothing to write, use --file or --hex")
	}

	client, closer, err := ctx.Open()
	if err != nil {
		return err
	}
	defer closer.Close()

	info, err := client.Info()
	if err != nil {
		return err
	}
	if _, err := span(uint32(c.Offset), uint32(len(data)), info.StorageSize); err != nil {
		return err
	}

	if _, err := client.WriteAt(data, uint32(c.Offset)); err != nil {
		return err
	}
	if c.Verify {
		if err := verify(client, data, uint32(c.Offset)); err != nil {
			return err
		}
	}
	okColor.Fprintf(ctx.Stdout, "wrote %d bytes at %#x\n", len(data), uint32(c.Offset))
	return nil
}

type EraseCmd struct {
	Offset number `short:"a" help:"Sector-aligned offset inside the storage region." default:"0"`
	Size   number `short:"n" help:"Bytes to erase, a multiple of the sector size (default: to the end of the region)."`
}

func (c *EraseCmd) Run(ctx *Context) error {
	client, closer, err := ctx.Open()
	if err != nil {
		return err
	}
	defer closer.Close()

	info, err := client.Info()
	if err != nil {
		return err
	}
	size, err := span(uint32(c.Offset), uint32(c.Size), info.StorageSize)
	if err != nil {
		return err
	}
	if err := client.Erase(uint32(c.Offset), size); err != nil {
		return err
	}
	okColor.Fprintf(ctx.Stdout, "erased %d bytes at %#x\n", size, uint32(c.Offset))
	return nil
}

type VerifyCmd struct {
	Offset number `short:"a" help:"Offset inside the storage region." default:"0"`
	File   string `arg:"" help:"File to compare against." type:"existingfile"`
}

func (c *VerifyCmd) Run(ctx *Context) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}

	client, closer, err := ctx.Open()
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := verify(client, data, uint32(c.Offset)); err != nil {
		return err
	}
	okColor.Fprintf(ctx.Stdout, "ok, crc16 %04x\n", secretflash.Checksum(data))
	return nil
}
