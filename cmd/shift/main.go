package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/logrusorgru/aurora/v3"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/denismitr/shift/internal/cli"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// the first signal stops the run before the next migration
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx)
	stop()

	if err != nil {
		au := aurora.NewAurora(isatty.IsTerminal(os.Stderr.Fd()))
		_, _ = fmt.Fprintln(colorable.NewColorableStderr(), au.Red("shift:"), err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	c, err := cli.New(version)
	if err != nil {
		return err
	}

	if err := c.Parse(os.Args[1:]); err != nil {
		return err
	}

	appCtx := cli.NewContext(
		ctx,
		colorable.NewColorableStdout(),
		colorable.NewColorableStderr(),
		os.Getenv,
		isatty.IsTerminal(os.Stdout.Fd()),
		isatty.IsTerminal(os.Stderr.Fd()),
	)

	return c.Execute(appCtx)
}
