// Command secretctl reads, writes and erases the secret storage region of a
// keyboard over raw HID, or of a secretd emulator over TCP.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/gentam/secretflash"
	"github.com/gentam/secretflash/internal/logging"
)

// number accepts decimal, 0x hex, 0o octal and 0b binary.
type number uint32

func (n *number) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 0, 32)
	if err != nil {
		return fmt.Errorf("invalid number %q", b)
	}
	*n = number(v)
	return nil
}

var cli struct {
	VID       number `help:"USB vendor ID." default:"0xFEED"`
	PID       number `help:"USB product ID (0 matches any)." default:"0"`
	UsagePage number `help:"Raw HID usage page." default:"0xFF60"`
	Usage     number `help:"Raw HID usage." default:"0x61"`
	Serial    string `help:"Only use the device with this serial number."`
	Path      string `help:"Only use the device at this HID path."`
	TCP       string `help:"Talk to a secretd emulator at this address instead of USB." placeholder:"HOST:PORT"`
	ReportID  int    `help:"Put this report ID in front of the command byte (-1 for none)." default:"-1"`
	Debug     bool   `help:"Enable debug logging."`
	NoColor   bool   `help:"Disable colored output."`

	List   ListCmd   `cmd:"" help:"List matching raw HID interfaces."`
	Info   InfoCmd   `cmd:"" help:"Show the storage geometry."`
	Read   ReadCmd   `cmd:"" help:"Read storage."`
	Write  WriteCmd  `cmd:"" help:"Write storage."`
	Erase  EraseCmd  `cmd:"" help:"Erase storage (sector aligned)."`
	Verify VerifyCmd `cmd:"" help:"Compare storage against a file by CRC-16."`
}

// Context is passed to every command.
type Context struct {
	Stdout io.Writer

	// Open connects to the device.
	Open func() (*secretflash.Client, io.Closer, error)
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
)

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("secretctl"),
		kong.Description("Secret flash storage tool."),
		kong.UsageOnError(),
	)

	if err := checkReportID(cli.ReportID); err != nil {
		ctx.Fatalf("--report-id: %v", err)
	}
	if cli.NoColor {
		color.NoColor = true
	}
	if cli.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	err := ctx.Run(&Context{
		Stdout: os.Stdout,
		Open:   openClient,
	})
	if err != nil {
		errColor.Fprintf(os.Stderr, "error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// checkReportID accepts -1 (no report ID) or a byte that is not a command
// code.
func checkReportID(id int) error {
	if id < 0 {
		return nil
	}
	if id > 0xFF {
		return fmt.Errorf("%d out of range", id)
	}
	c := secretflash.Command(id)
	if c >= secretflash.CmdInfo && c <= secretflash.CmdErase {
		return fmt.Errorf("%w: %#02x", secretflash.ErrReportID, id)
	}
	return nil
}

func clientOptions() []secretflash.ClientOption {
	if cli.ReportID < 0 {
		return nil
	}
	return []secretflash.ClientOption{secretflash.WithReportID(byte(cli.ReportID))}
}

func openClient() (*secretflash.Client, io.Closer, error) {
	if cli.TCP != "" {
		return openTCP(cli.TCP)
	}
	return openHID()
}
