// Command tftp is a minimal command-line TFTP client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kcexn/tftp"
)

var (
	flgHost    string
	flgMode    string
	flgTimeout time.Duration
	flgVerbose bool
)

func init() {
	flag.StringVar(&flgHost, "H", "", "remote host, as host or host:port (required)")
	flag.StringVar(&flgHost, "host", "", "remote host, as host or host:port (required)")
	flag.StringVar(&flgMode, "mode", "octet", "transfer mode: octet, netascii, or mail (mail is put only)")
	flag.DurationVar(&flgTimeout, "timeout", 0, "overall transfer deadline (0 = none)")
	flag.BoolVar(&flgVerbose, "v", false, "enable verbose logging")
	flag.BoolVar(&flgVerbose, "verbose", false, "enable verbose logging")
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flgHost == "" || flag.NArg() != 3 {
		printUsage()
		os.Exit(1)
	}

	mode, err := parseModeFlag(flgMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if flgVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client := tftp.NewClient(flgHost, tftp.WithLogger(logger))

	ctx := context.Background()
	var cancel context.CancelFunc
	if flgTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, flgTimeout)
		defer cancel()
	}

	sub, a, b := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	var status tftp.Status
	switch sub {
	case "get":
		status, err = client.Get(ctx, a, b, mode)
	case "put":
		status, err = client.Put(ctx, a, b, mode)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "tftp: %v\n", err)
		os.Exit(1)
	}
	if !status.Success() {
		fmt.Fprintf(os.Stderr, "tftp: %s\n", status)
		os.Exit(1)
	}
}

func parseModeFlag(s string) (tftp.Mode, error) {
	switch s {
	case "octet":
		return tftp.ModeOctet, nil
	case "netascii":
		return tftp.ModeNetASCII, nil
	case "mail":
		return tftp.ModeMail, nil
	default:
		return 0, fmt.Errorf("tftp: unknown mode %q (want octet, netascii, or mail)", s)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: tftp -H host [-mode octet|netascii] get REMOTE LOCAL")
	fmt.Fprintln(os.Stderr, "       tftp -H host [-mode octet|netascii|mail] put LOCAL REMOTE")
	flag.PrintDefaults()
}
