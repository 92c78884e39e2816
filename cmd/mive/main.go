package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/corechain/corechain/cmd/utils"
	"github.com/corechain/corechain/internal/flags"
)

const (
	clientIdentifier = "mive" // Client identifier
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value:    3,
		Category: flags.LoggingCategory,
	}
	logFileFlag = &cli.StringFlag{
		Name:     "log.file",
		Usage:    "Write logs to a file (rotated at 100MB, 3 backups kept)",
		Category: flags.LoggingCategory,
	}
)

var app = flags.NewApp("the mive command line interface")

func init() {
	app.Flags = append(app.Flags, configFileFlag, verbosityFlag, logFileFlag)
	app.Flags = append(app.Flags, utils.MiveFlags...)
	app.Before = func(ctx *cli.Context) error {
		return setupLogging(ctx)
	}
	app.Action = miveMain
}

// miveMain is the entry point into the system when no special subcommand
// is run: it creates a default node from the command line arguments,
// registers the Mive service on it, and blocks until the node is shut
// down.
func miveMain(ctx *cli.Context) error {
	stack := makeFullNode(ctx)
	defer stack.Close()

	if err := stack.Start(); err != nil {
		return fmt.Errorf("error starting protocol stack: %w", err)
	}
	stack.Wait()
	return nil
}

// setupLogging routes the root logger to stderr (colored when attached to
// a terminal) and optionally tees it into a size-rotated file.
func setupLogging(ctx *cli.Context) error {
	output := io.Writer(os.Stderr)
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	if file := ctx.String(logFileFlag.Name); file != "" {
		output = io.MultiWriter(output, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // MB
			MaxBackups: 3,
		})
	}
	handler := log.NewTerminalHandlerWithLevel(output, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), usecolor)
	log.SetDefault(log.NewLogger(handler))
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
