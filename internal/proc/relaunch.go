package proc

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Termination describes how a child process ended.
type Termination struct {
	Code   int
	Signal syscall.Signal // 0 when the child exited normally
}

// classifyWaitStatus maps a raw wait status to a Termination.
func classifyWaitStatus(ws syscall.WaitStatus) Termination {
	if ws.Signaled() {
		return Termination{Code: -int(ws.Signal()), Signal: ws.Signal()}
	}
	return Termination{Code: ws.ExitStatus()}
}

// ExitCode maps the termination to this process's own exit status, using
// the shell convention for signal deaths.
func (t Termination) ExitCode() int {
	if t.Signal != 0 {
		return 128 + int(t.Signal)
	}
	return t.Code
}

// TerminationOf extracts the Termination from a Wait/Run error. A nil error
// is a clean zero exit.
func TerminationOf(err error) Termination {
	if err == nil {
		return Termination{}
	}
	if ee, ok := err.(*exec.ExitError); ok {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			return classifyWaitStatus(ws)
		}
	}
	return Termination{Code: 1}
}

// Relaunch replaces the rest of this invocation with a run of argv0: it
// spawns the binary with args, forwards stdio (child stdout goes to our
// stderr so the child owns the real stdout conventions), waits, and then
// terminates this process the same way the child terminated. A child killed
// by a signal re-raises that signal on us; otherwise we exit with its code.
// Relaunch only returns if the child could not be started.
func Relaunch(argv0 string, args []string) error {
	cmd := exec.Command(argv0, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("relaunch %s: %w", argv0, err)
	}
	term := TerminationOf(cmd.Wait())
	exitAs(term)
	return nil // unreachable
}

// exitAs terminates the current process the way term describes.
func exitAs(term Termination) {
	if term.Signal != 0 {
		_ = syscall.Kill(os.Getpid(), term.Signal)
		// If the signal is handled or blocked we are still here; exit with
		// the shell convention for signal deaths.
		os.Exit(128 + int(term.Signal))
	}
	os.Exit(term.Code)
}
