package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	launchererrors "github.com/saleeh93/buck-cutom/internal/errors"
	"github.com/saleeh93/buck-cutom/internal/launcher"
	"github.com/saleeh93/buck-cutom/internal/version"
)

var CLI struct {
	Verbose bool             `short:"v" help:"Enable verbose launcher logging"`
	Version kong.VersionFlag `help:"Print launcher version and exit"`
	Kill    bool             `help:"Kill the running buckd daemon instead of starting one"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("buckd"),
		kong.Description("Daemon control for the Buck build tool."),
		kong.Vars{"version": version.Version},
		kong.UsageOnError(),
	)

	setupLogging(CLI.Verbose)

	l, err := launcher.Bootstrap(nil)
	if err != nil {
		fail(err)
	}

	if CLI.Kill {
		if err := l.KillDaemon(); err != nil {
			fail(err)
		}
		return
	}
	if err := l.StartDaemon(); err != nil {
		fail(err)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func fail(err error) {
	var le *launchererrors.LauncherError
	if errors.As(err, &le) {
		fmt.Fprintln(os.Stderr, le.UserMessage())
	} else {
		slog.Error("Buckd control failed", "error", err)
	}
	os.Exit(1)
}
