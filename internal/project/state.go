package project

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Runtime state file names inside the scratch directory.
const (
	pidFile       = "buckd.pid"
	portFile      = "buckd.port"
	versionFile   = "buckd.version"
	runCountFile  = "buckd.runcount"
	autobuildFile = "autobuild.pid"
)

// RuntimeState is the persisted, shared daemon metadata for one project: a
// narrow per-field read/write store over plain files in the scratch
// directory.
//
// There is deliberately no cross-process locking. Concurrent invocations can
// lose run-counter updates or both decide to restart the daemon; the worst
// outcome is an extra recycle, never a correctness violation, because
// liveness is re-verified before persisted metadata is trusted.
type RuntimeState struct {
	dir string
}

// NewRuntimeState returns the runtime state store rooted at dir.
func NewRuntimeState(dir string) *RuntimeState { return &RuntimeState{dir: dir} }

// State returns the runtime state store for the project's scratch dir.
func (p *Project) State() *RuntimeState { return NewRuntimeState(p.ScratchDir()) }

func (s *RuntimeState) read(name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func (s *RuntimeState) write(name, value string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *RuntimeState) remove(name string) {
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove runtime state file", "file", name, "error", err)
	}
}

// readInt parses a numeric field. A present but non-numeric value is
// reported as absent with a warning: corrupt state means the daemon is
// effectively gone, never a propagated error.
func (s *RuntimeState) readInt(name string) (int, bool) {
	raw, ok := s.read(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Corrupt runtime state file", "file", name, "content", raw)
		return 0, false
	}
	return n, true
}

// DaemonPID returns the recorded daemon pid, if valid.
func (s *RuntimeState) DaemonPID() (int, bool) { return s.readInt(pidFile) }

// DaemonPIDRaw returns the raw recorded pid content for diagnostics.
func (s *RuntimeState) DaemonPIDRaw() (string, bool) { return s.read(pidFile) }

// DaemonPort returns the recorded daemon port, if valid.
func (s *RuntimeState) DaemonPort() (int, bool) { return s.readInt(portFile) }

// DaemonVersion returns the version UID the running daemon was built from.
func (s *RuntimeState) DaemonVersion() (string, bool) { return s.read(versionFile) }

// RunCount returns the persisted daemon reuse counter; absent or corrupt
// reads as zero.
func (s *RuntimeState) RunCount() int {
	n, _ := s.readInt(runCountFile)
	return n
}

// AutobuildPID returns the recorded background autobuild helper pid.
func (s *RuntimeState) AutobuildPID() (int, bool) { return s.readInt(autobuildFile) }

// SaveDaemonPID records the daemon pid.
func (s *RuntimeState) SaveDaemonPID(pid int) error { return s.write(pidFile, strconv.Itoa(pid)) }

// SaveDaemonPort records the daemon port.
func (s *RuntimeState) SaveDaemonPort(port int) error { return s.write(portFile, strconv.Itoa(port)) }

// SaveDaemonVersion records the version UID the daemon was launched from.
func (s *RuntimeState) SaveDaemonVersion(uid string) error { return s.write(versionFile, uid) }

// SaveRunCount records the reuse counter.
func (s *RuntimeState) SaveRunCount(n int) error { return s.write(runCountFile, strconv.Itoa(n)) }

// ClearDaemon removes the daemon fields one by one. Fields are cleared
// individually, not atomically as a whole; a concurrent reader may observe a
// partial clear and must re-verify liveness.
func (s *RuntimeState) ClearDaemon() {
	for _, name := range []string{pidFile, portFile, versionFile, runCountFile} {
		s.remove(name)
	}
}
