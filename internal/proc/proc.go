// Package proc isolates the platform-sensitive process operations the
// launcher needs: liveness probes, signalling, spawning a child outside the
// launcher's own signal group, and replacing the current invocation with a
// fresh one. Everything here is POSIX; a Windows port would swap this
// package for a job-object based one.
package proc

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Alive reports whether a process exists and is not a zombie. A process we
// lack permission to signal still counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if zombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// zombie checks whether a PID is in a zombie/dead state via procfs, falling
// back to ps on systems without /proc.
func zombie(pid int) bool {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		return zombieFromPS(pid)
	}
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	line := string(b)
	closeIdx := strings.LastIndexByte(line, ')')
	if closeIdx < 0 || closeIdx+2 >= len(line) {
		return false
	}
	state := line[closeIdx+2]
	return state == 'Z' || state == 'X'
}

func zombieFromPS(pid int) bool {
	out, err := exec.Command("ps", "-o", "state=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return false
	}
	state := strings.TrimSpace(string(out))
	if state == "" {
		return false
	}
	c := state[0]
	return c == 'Z' || c == 'X'
}

// Signal sends sig to pid. A missing process reports (false, nil): the
// caller treats already-gone as success. Any other failure is returned.
func Signal(pid int, sig syscall.Signal) (found bool, err error) {
	err = syscall.Kill(pid, sig)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.ESRCH) {
		return false, nil
	}
	return false, err
}
