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

	Args []string `arg:"" optional:"" passthrough:"" help:"Buck task and arguments"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("buck"),
		kong.Description("Launcher for the Buck build tool."),
		kong.Vars{"version": version.Version},
		kong.UsageOnError(),
	)

	setupLogging(CLI.Verbose)

	l, err := launcher.Bootstrap(CLI.Args)
	if err != nil {
		fail(err)
	}
	code, err := l.Run()
	if err != nil {
		fail(err)
	}
	os.Exit(code)
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

// fail reports a fatal launcher error and exits nonzero. Structured errors
// render their message and remediation for the user; anything else is
// logged.
func fail(err error) {
	var le *launchererrors.LauncherError
	if errors.As(err, &le) {
		fmt.Fprintln(os.Stderr, le.UserMessage())
	} else {
		slog.Error("Buck launcher failed", "error", err)
	}
	os.Exit(1)
}
