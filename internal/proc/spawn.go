package proc

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// StartDetachedOnPTY starts cmd with its combined output on a fresh
// pseudo-terminal and returns the master side for reading. The pty start
// puts the child in a new session (and therefore its own process group), so
// signals delivered to the launcher's group never reach it.
//
// The daemon probes terminal-ness of its output to pick an interactive
// display mode, so it must see a terminal, not a pipe, while the launcher
// still captures the startup diagnostics.
func StartDetachedOnPTY(cmd *exec.Cmd) (*os.File, error) {
	master, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("spawn %s on pty: %w", cmd.Path, err)
	}
	return master, nil
}
