package daemon

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/saleeh93/buck-cutom/internal/config"
	"github.com/saleeh93/buck-cutom/internal/project"
	"github.com/saleeh93/buck-cutom/internal/toolchain"
	"github.com/saleeh93/buck-cutom/internal/watch"
)

func testSupervisor(t *testing.T, env *config.Env, mechanism watch.Mechanism) *Supervisor {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, project.ConfigFile), nil, 0o600); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	p := &project.Project{Root: root}

	homeDir := t.TempDir()
	home := &toolchain.Home{Dir: homeDir}
	logDir, err := p.LogDir()
	if err != nil {
		t.Fatalf("log dir: %v", err)
	}
	builder := toolchain.NewBuilder(home, logDir)

	cfg := config.Default().Daemon
	cfg.KillAttempts = 3
	cfg.KillInterval = time.Millisecond
	cfg.PortAttempts = 10
	cfg.PortInterval = time.Millisecond

	s := NewSupervisor(p, home, builder, cfg, env, mechanism)
	s.dialTimeout = 100 * time.Millisecond
	return s
}

// aliveState records this test process plus a live listener as the daemon.
func aliveState(t *testing.T, s *Supervisor) (port int, closeListener func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port = ln.Addr().(*net.TCPAddr).Port
	if err := s.State().SaveDaemonPID(os.Getpid()); err != nil {
		t.Fatalf("save pid: %v", err)
	}
	if err := s.State().SaveDaemonPort(port); err != nil {
		t.Fatalf("save port: %v", err)
	}
	return port, func() { _ = ln.Close() }
}

func TestShouldReuseRunDirectWhenDisabled(t *testing.T) {
	s := testSupervisor(t, &config.Env{NoBuckd: true}, watch.Watchman)
	d, err := s.ShouldReuse("uid")
	if err != nil {
		t.Fatalf("ShouldReuse: %v", err)
	}
	if d != RunDirect {
		t.Errorf("expected RunDirect with daemon disabled, got %v", d)
	}
}

func TestShouldReuseRunDirectWithoutWatcher(t *testing.T) {
	s := testSupervisor(t, &config.Env{}, watch.None)
	d, err := s.ShouldReuse("uid")
	if err != nil {
		t.Fatalf("ShouldReuse: %v", err)
	}
	if d != RunDirect {
		t.Errorf("expected RunDirect without a file watcher, got %v", d)
	}
}

func TestShouldReuseRunDirectWithNativeWatcher(t *testing.T) {
	// A launcher-side native watcher cannot feed the daemon notifications,
	// so a root without watchman never qualifies for a daemon.
	s := testSupervisor(t, &config.Env{}, watch.Native)
	_, closeListener := aliveState(t, s)
	defer closeListener()
	if err := s.State().SaveDaemonVersion("uid"); err != nil {
		t.Fatalf("save version: %v", err)
	}

	d, err := s.ShouldReuse("uid")
	if err != nil {
		t.Fatalf("ShouldReuse: %v", err)
	}
	if d != RunDirect {
		t.Errorf("expected RunDirect without watchman, got %v", d)
	}
	if n := s.State().RunCount(); n != 0 {
		t.Errorf("direct run must not advance the run count, got %d", n)
	}
}

func TestShouldReuseRestartOnVersionMismatch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX signals required")
	}
	s := testSupervisor(t, &config.Env{}, watch.Watchman)
	// The mismatch path kills the recorded pid, so it must not be ours.
	sleeper := startSleeper(t)
	if err := s.State().SaveDaemonPID(sleeper.Process.Pid); err != nil {
		t.Fatalf("save pid: %v", err)
	}
	if err := s.State().SaveDaemonVersion("old-uid"); err != nil {
		t.Fatalf("save version: %v", err)
	}

	// Version mismatch forces a restart even though the daemon is alive.
	d, err := s.ShouldReuse("new-uid")
	if err != nil {
		t.Fatalf("ShouldReuse: %v", err)
	}
	if d != RestartFresh {
		t.Errorf("expected RestartFresh on version mismatch, got %v", d)
	}
	if _, ok := s.State().DaemonPID(); ok {
		t.Error("stale daemon state should be cleared by the kill")
	}
}

func TestShouldReuseRestartAtCeiling(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX signals required")
	}
	s := testSupervisor(t, &config.Env{}, watch.Watchman)
	// Recycling at the ceiling kills the recorded pid, so it must not be
	// ours.
	sleeper := startSleeper(t)
	if err := s.State().SaveDaemonPID(sleeper.Process.Pid); err != nil {
		t.Fatalf("save pid: %v", err)
	}
	if err := s.State().SaveDaemonVersion("uid"); err != nil {
		t.Fatalf("save version: %v", err)
	}
	if err := s.State().SaveRunCount(s.cfg.MaxRunCount); err != nil {
		t.Fatalf("save run count: %v", err)
	}

	d, err := s.ShouldReuse("uid")
	if err != nil {
		t.Fatalf("ShouldReuse: %v", err)
	}
	if d != RestartFresh {
		t.Errorf("expected RestartFresh at reuse ceiling, got %v", d)
	}
}

func TestShouldReuseRestartWhenDead(t *testing.T) {
	s := testSupervisor(t, &config.Env{}, watch.Watchman)
	if err := s.State().SaveDaemonVersion("uid"); err != nil {
		t.Fatalf("save version: %v", err)
	}
	// No pid or port recorded: not alive, nothing to kill.
	d, err := s.ShouldReuse("uid")
	if err != nil {
		t.Fatalf("ShouldReuse: %v", err)
	}
	if d != RestartFresh {
		t.Errorf("expected RestartFresh for dead daemon, got %v", d)
	}
}

func TestShouldReuseIncrementsCounter(t *testing.T) {
	s := testSupervisor(t, &config.Env{}, watch.Watchman)
	_, closeListener := aliveState(t, s)
	defer closeListener()
	if err := s.State().SaveDaemonVersion("uid"); err != nil {
		t.Fatalf("save version: %v", err)
	}
	if err := s.State().SaveRunCount(s.cfg.MaxRunCount - 1); err != nil {
		t.Fatalf("save run count: %v", err)
	}

	d, err := s.ShouldReuse("uid")
	if err != nil {
		t.Fatalf("ShouldReuse: %v", err)
	}
	if d != Reuse {
		t.Fatalf("expected Reuse, got %v", d)
	}
	if n := s.State().RunCount(); n != s.cfg.MaxRunCount {
		t.Errorf("expected run count %d after reuse, got %d", s.cfg.MaxRunCount, n)
	}
}

func TestIsAliveRequiresOpenPort(t *testing.T) {
	s := testSupervisor(t, &config.Env{}, watch.Watchman)
	_, closeListener := aliveState(t, s)

	if !s.IsAlive() {
		t.Fatal("expected alive daemon with live pid and open port")
	}

	// Live pid, closed port: mid-restart daemons are not alive.
	closeListener()
	if s.IsAlive() {
		t.Error("daemon with closed port should not be alive")
	}
}

func TestKillIsIdempotent(t *testing.T) {
	s := testSupervisor(t, &config.Env{}, watch.Watchman)

	if err := s.Kill(); err != nil {
		t.Fatalf("first kill with no daemon: %v", err)
	}
	if err := s.Kill(); err != nil {
		t.Fatalf("second kill with no daemon: %v", err)
	}
	if _, ok := s.State().DaemonPID(); ok {
		t.Error("daemon state should be empty after kill")
	}
}

func TestKillClearsCorruptPID(t *testing.T) {
	s := testSupervisor(t, &config.Env{}, watch.Watchman)
	dir := s.project.ScratchDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "buckd.pid"), []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write corrupt pid: %v", err)
	}

	if err := s.Kill(); err != nil {
		t.Fatalf("kill with corrupt pid: %v", err)
	}
	if _, ok := s.State().DaemonPIDRaw(); ok {
		t.Error("corrupt pid file should be removed")
	}
}

func TestKillMissingProcess(t *testing.T) {
	s := testSupervisor(t, &config.Env{}, watch.Watchman)
	// A pid far beyond pid_max is never allocated.
	if err := s.State().SaveDaemonPID(1<<22 + 54321); err != nil {
		t.Fatalf("save pid: %v", err)
	}

	if err := s.Kill(); err != nil {
		t.Fatalf("killing a missing process should succeed: %v", err)
	}
	if _, ok := s.State().DaemonPID(); ok {
		t.Error("daemon state should be cleared")
	}
}

func TestKillTerminatesProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX signals required")
	}
	s := testSupervisor(t, &config.Env{}, watch.Watchman)

	cmd := startSleeper(t)
	if err := s.State().SaveDaemonPID(cmd.Process.Pid); err != nil {
		t.Fatalf("save pid: %v", err)
	}

	if err := s.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	// The child is our direct descendant, so reap it and verify it died by
	// signal.
	state, err := cmd.Process.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		t.Errorf("expected signal death, got %v", state)
	}
}

// fakeToolchain writes stub java and watchman binaries plus the success
// marker so Launch skips the real build and spawns the stub instead of a
// JVM.
func fakeToolchain(t *testing.T, s *Supervisor, script string) {
	t.Helper()
	binDir := t.TempDir()
	javaPath := filepath.Join(binDir, "java")
	if err := os.WriteFile(javaPath, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake java: %v", err)
	}
	watchmanPath := filepath.Join(binDir, "watchman")
	if err := os.WriteFile(watchmanPath, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write fake watchman: %v", err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	marker := s.home.SuccessMarker()
	if err := os.MkdirAll(filepath.Dir(marker), 0o750); err != nil {
		t.Fatalf("mkdir build: %v", err)
	}
	if err := os.WriteFile(marker, nil, 0o600); err != nil {
		t.Fatalf("write marker: %v", err)
	}
}

func TestLaunchRequiresWatchman(t *testing.T) {
	s := testSupervisor(t, &config.Env{}, watch.Native)

	err := s.Launch("uid", toolchain.JVMInfo{VersionUID: "uid"})
	if err == nil {
		t.Fatal("expected Launch to fail without watchman")
	}
	if _, ok := s.State().DaemonPID(); ok {
		t.Error("refused launch must leave no persisted pid")
	}
}

func TestLaunchTimeoutLeavesNoState(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pty required")
	}
	s := testSupervisor(t, &config.Env{}, watch.Watchman)
	fakeToolchain(t, s, "sleep 30")
	s.cfg.PortAttempts = 5

	if err := s.Launch("uid", toolchain.JVMInfo{VersionUID: "uid"}); err != nil {
		t.Fatalf("Launch should report timeout as fallback, not error: %v", err)
	}
	if _, ok := s.State().DaemonPID(); ok {
		t.Error("timed-out launch must leave no persisted pid")
	}
	if _, ok := s.State().DaemonPort(); ok {
		t.Error("timed-out launch must leave no persisted port")
	}
}

func TestLaunchPersistsStateOnSuccess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pty required")
	}
	s := testSupervisor(t, &config.Env{}, watch.Watchman)
	fakeToolchain(t, s,
		fmt.Sprintf("echo %q; sleep 30", "NGServer started on address localhost/127.0.0.1 port 45678."))
	s.cfg.PortAttempts = 50
	s.cfg.PortInterval = 10 * time.Millisecond

	if err := s.Launch("uid-xyz", toolchain.JVMInfo{VersionUID: "uid-xyz"}); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	t.Cleanup(func() {
		if pid, ok := s.State().DaemonPID(); ok {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	})

	pid, ok := s.State().DaemonPID()
	if !ok || pid <= 0 {
		t.Fatalf("expected persisted pid, got %d (%v)", pid, ok)
	}
	if port, ok := s.State().DaemonPort(); !ok || port != 45678 {
		t.Errorf("expected persisted port 45678, got %d (%v)", port, ok)
	}
	if uid, ok := s.State().DaemonVersion(); !ok || uid != "uid-xyz" {
		t.Errorf("expected persisted version uid-xyz, got %q", uid)
	}
	if n := s.State().RunCount(); n != 0 {
		t.Errorf("expected run count reset to 0, got %d", n)
	}
}

func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "60")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleeper: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd
}
