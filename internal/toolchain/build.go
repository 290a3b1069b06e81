package toolchain

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	launchererrors "github.com/saleeh93/buck-cutom/internal/errors"
	"github.com/saleeh93/buck-cutom/internal/logfields"
)

// Builder runs the checkout's ant build and maintains the success marker.
type Builder struct {
	home   *Home
	logDir string
}

// NewBuilder returns a Builder writing build logs into logDir.
func NewBuilder(home *Home, logDir string) *Builder {
	return &Builder{home: home, logDir: logDir}
}

// CheckAnt verifies the build tool is installed before anything shells out
// to it.
func (b *Builder) CheckAnt() error {
	if _, err := exec.LookPath("ant"); err != nil {
		e := launchererrors.New(launchererrors.CategoryBuild,
			"You do not have ant on your $PATH. Cannot build Buck.")
		return e.WithRemediation("Try running 'brew install ant' on macOS or installing ant with your package manager.")
	}
	return nil
}

// EnsureBuilt builds the checkout when no successful-build marker exists.
// The marker's existence, not its content, gates the rebuild.
func (b *Builder) EnsureBuilt() error {
	if _, err := os.Stat(b.home.SuccessMarker()); err == nil {
		return nil
	}
	fmt.Fprintln(os.Stderr, "Buck does not appear to have been built -- building Buck!")
	if err := b.CheckAnt(); err != nil {
		return err
	}
	if err := b.Clean(); err != nil {
		return err
	}
	return b.Build()
}

// InvalidateBuild removes the successful-build marker so the next
// EnsureBuilt performs a full rebuild.
func (b *Builder) InvalidateBuild() {
	if err := os.Remove(b.home.SuccessMarker()); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove build marker", logfields.Path(b.home.SuccessMarker()), logfields.Error(err))
	}
}

// Clean runs `ant clean`, logging to ant-clean.log.
func (b *Builder) Clean() error {
	return b.runAnt("ant-clean.log", "clean")
}

// Build runs the full `ant` build, logging to ant.log, and records the
// success marker the build gate checks.
func (b *Builder) Build() error {
	if err := b.runAnt("ant.log"); err != nil {
		return err
	}
	marker := b.home.SuccessMarker()
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		return fmt.Errorf("create build dir: %w", err)
	}
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return fmt.Errorf("record successful build: %w", err)
	}
	return nil
}

func (b *Builder) runAnt(logName string, antArgs ...string) error {
	logPath := filepath.Join(b.logDir, logName)
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("open build log %s: %w", logPath, err)
	}
	defer logFile.Close()

	cmd := exec.Command("ant", antArgs...)
	cmd.Dir = b.home.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	slog.Debug("Running build tool", "args", antArgs, logfields.Path(logPath))
	if err := cmd.Run(); err != nil {
		return b.failure(logPath, err)
	}
	return nil
}

// failure wraps an ant failure with the log location and a remediation
// command appropriate for the checkout type.
func (b *Builder) failure(logPath string, cause error) error {
	e := launchererrors.Wrap(cause, launchererrors.CategoryBuild,
		fmt.Sprintf("::: 'ant' failed in the buck repo at %s.", b.home.Dir))
	e.WithRemediation(fmt.Sprintf("::: Check the logs at %s.", logPath))
	if b.home.IsGit() {
		e.WithRemediation(fmt.Sprintf("::: Try running: git -C %q clean -xfd", b.home.Dir))
	} else {
		e.WithRemediation(fmt.Sprintf("::: Try running: rm -rf %q/build", b.home.Dir))
	}
	return e
}
