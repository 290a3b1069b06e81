// Package watch decides whether cheap file-change notifications are
// available for a project root. The daemon only consumes watchman; without
// it the JVM's fallback polling watcher is too slow to beat one-shot
// invocations, so the supervisor runs tasks directly instead.
package watch

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/fsnotify/fsnotify"
)

// Mechanism identifies which change-notification backend is usable.
type Mechanism int

const (
	// None means no usable mechanism exists; the supervisor must fall back
	// to direct invocations.
	None Mechanism = iota

	// Watchman is the preferred external watch service.
	Watchman

	// Native means the OS inotify/kqueue facility works for the root. The
	// daemon cannot use it, so Native is diagnostic: the root is watchable,
	// watchman just isn't installed.
	Native
)

func (m Mechanism) String() string {
	switch m {
	case Watchman:
		return "watchman"
	case Native:
		return "native"
	default:
		return "none"
	}
}

// Detect probes for a usable change-notification mechanism for root.
// Watchman on PATH wins; otherwise a native watcher is probed by creating
// and closing one against the root.
func Detect(root string) Mechanism {
	if _, err := exec.LookPath("watchman"); err == nil {
		return Watchman
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Debug("Native file watcher unavailable", "error", err)
		return None
	}
	defer w.Close()
	if err := w.Add(root); err != nil {
		slog.Debug("Native file watcher cannot watch project root", "error", err)
		return None
	}
	return Native
}

// EnsureWatch registers the project root with watchman. It is a
// prerequisite of launching the daemon when watchman is the mechanism; a
// registration failure aborts the launch.
func EnsureWatch(root string) error {
	slog.Debug("Registering watchman watch", "root", root)
	cmd := exec.Command("watchman", "watch", root)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("watchman watch %s: %w", root, err)
	}
	return nil
}
