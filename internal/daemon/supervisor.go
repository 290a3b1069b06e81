// Package daemon owns the background build server's lifecycle: deciding
// whether a recorded daemon is alive and compatible, launching a fresh one,
// discovering its port, and killing it gracefully then forcibly.
package daemon

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/saleeh93/buck-cutom/internal/config"
	launchererrors "github.com/saleeh93/buck-cutom/internal/errors"
	"github.com/saleeh93/buck-cutom/internal/logfields"
	"github.com/saleeh93/buck-cutom/internal/proc"
	"github.com/saleeh93/buck-cutom/internal/project"
	"github.com/saleeh93/buck-cutom/internal/retry"
	"github.com/saleeh93/buck-cutom/internal/toolchain"
	"github.com/saleeh93/buck-cutom/internal/watch"
)

// Decision is the supervisor's per-invocation policy outcome.
type Decision int

const (
	// Reuse the running daemon; the run counter has been advanced.
	Reuse Decision = iota

	// RestartFresh means no usable daemon remains; launch a new one.
	RestartFresh

	// RunDirect means daemons are unavailable or disabled this invocation.
	RunDirect
)

func (d Decision) String() string {
	switch d {
	case Reuse:
		return "reuse"
	case RestartFresh:
		return "restart"
	default:
		return "direct"
	}
}

// Supervisor manages the daemon recorded in a project's runtime state.
type Supervisor struct {
	project   *project.Project
	state     *project.RuntimeState
	home      *toolchain.Home
	builder   *toolchain.Builder
	cfg       config.DaemonConfig
	env       *config.Env
	mechanism watch.Mechanism

	// dialTimeout bounds the liveness probe of the recorded port.
	dialTimeout time.Duration
}

// NewSupervisor wires a supervisor for one project invocation.
func NewSupervisor(p *project.Project, home *toolchain.Home, builder *toolchain.Builder,
	cfg config.DaemonConfig, env *config.Env, mechanism watch.Mechanism) *Supervisor {
	return &Supervisor{
		project:     p,
		state:       p.State(),
		home:        home,
		builder:     builder,
		cfg:         cfg,
		env:         env,
		mechanism:   mechanism,
		dialTimeout: time.Second,
	}
}

// State exposes the runtime state store backing the supervisor.
func (s *Supervisor) State() *project.RuntimeState { return s.state }

// IsAlive reports whether the recorded daemon is a live process whose
// recorded port accepts a connection. Both checks are required: a live pid
// with a closed port (mid-restart, listener gone) is not alive.
func (s *Supervisor) IsAlive() bool {
	pid, ok := s.state.DaemonPID()
	if !ok {
		return false
	}
	port, ok := s.state.DaemonPort()
	if !ok {
		return false
	}
	if !proc.Alive(pid) {
		return false
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), s.dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ShouldReuse evaluates the reuse policy once per invocation. A stale or
// over-recycled daemon is killed here; the kill's failure modes propagate.
func (s *Supervisor) ShouldReuse(versionUID string) (Decision, error) {
	if s.env.NoBuckd {
		return RunDirect, nil
	}
	// The daemon's own watcher is watchman. A native launcher-side watcher
	// cannot feed the JVM change notifications, so without watchman the
	// daemon would degrade to its slow polling fallback.
	switch s.mechanism {
	case watch.Watchman:
	case watch.Native:
		fmt.Fprintln(os.Stderr, "Not using buckd because watchman isn't installed.")
		return RunDirect, nil
	default:
		fmt.Fprintln(os.Stderr, "Not using buckd because no file watcher is available.")
		return RunDirect, nil
	}

	runCount := s.state.RunCount()
	recorded, _ := s.state.DaemonVersion()
	if runCount >= s.cfg.MaxRunCount || recorded != versionUID {
		slog.Debug("Recycling daemon",
			logfields.RunCount(runCount),
			logfields.VersionUID(versionUID),
			slog.String("recorded_version", recorded))
		if err := s.Kill(); err != nil {
			return RunDirect, err
		}
		return RestartFresh, nil
	}

	if !s.IsAlive() {
		return RestartFresh, nil
	}

	if err := s.state.SaveRunCount(runCount + 1); err != nil {
		slog.Warn("Failed to persist run count", logfields.Error(err))
	}
	return Reuse, nil
}

// Launch builds if necessary and spawns a fresh daemon. Watchman is a hard
// prerequisite: the daemon is configured to watch through it. A daemon that
// never announces its port is aborted: persisted daemon state is cleared
// and Launch returns nil, leaving this invocation to run directly.
func (s *Supervisor) Launch(versionUID string, info toolchain.JVMInfo) error {
	if s.mechanism != watch.Watchman {
		return launchererrors.New(launchererrors.CategoryDaemon,
			"Cannot launch buckd because watchman isn't installed.")
	}
	if err := s.builder.EnsureBuilt(); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Using watchman.")
	if err := watch.EnsureWatch(s.project.Root); err != nil {
		return err
	}

	launchID := uuid.NewString()
	tmpDir, err := s.project.DaemonTmpDir(launchID)
	if err != nil {
		return err
	}

	info.BuckdDir = s.project.ScratchDir()
	args := s.home.JavaArgs(info)
	args = append(args,
		"-Dbuck.buckd_watcher=Watchman",
		fmt.Sprintf("-XX:MaxGCPauseMillis=%d", toolchain.GCMaxPauseMillis),
		// Immediate GC of javac output; the client timeout outlasts the
		// worst observed GC pause so heartbeat misses do not disconnect.
		"-XX:SoftRefLRUPolicyMSPerMB=0",
		fmt.Sprintf("-Djava.io.tmpdir=%s", tmpDir),
		"-classpath", s.home.Classpath(),
		toolchain.ServerClass,
		// Port 0 lets the OS resolve conflicts; the bound port is parsed
		// back out of the startup output.
		"localhost:0",
		strconv.Itoa(s.cfg.ClientTimeoutMillis),
	)

	cmd := exec.Command("java", args...)
	cmd.Dir = s.project.Root
	master, err := proc.StartDetachedOnPTY(cmd)
	if err != nil {
		return err
	}

	pid := cmd.Process.Pid
	if err := s.state.SaveDaemonPID(pid); err != nil {
		return err
	}
	slog.Debug("Spawned daemon", logfields.PID(pid), logfields.LaunchID(launchID))

	policy := retry.NewPolicy(s.cfg.PortAttempts, s.cfg.PortInterval)
	port, err := AwaitPort(master, policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nailgun server did not respond after %v. Aborting buckd.\n", policy.Bound())
		_ = master.Close()
		s.state.ClearDaemon()
		return nil
	}

	if err := s.state.SaveDaemonPort(port); err != nil {
		return err
	}
	if err := s.state.SaveDaemonVersion(versionUID); err != nil {
		return err
	}
	if err := s.state.SaveRunCount(0); err != nil {
		return err
	}
	slog.Debug("Daemon ready", logfields.PID(pid), logfields.Port(port), logfields.VersionUID(versionUID))
	return nil
}

// Kill terminates the recorded daemon and always clears the persisted
// daemon state. It is idempotent: no recorded daemon is a no-op, and a
// process that is already gone counts as killed.
func (s *Supervisor) Kill() error {
	if raw, present := s.state.DaemonPIDRaw(); present {
		pid, convErr := strconv.Atoi(raw)
		if convErr != nil {
			fmt.Fprintf(os.Stderr, "WARNING: Corrupt buckd pid: '%s'.\n", raw)
		} else if err := s.killAndWait(pid); err != nil {
			return err
		}
	}
	s.state.ClearDaemon()
	return nil
}

// killAndWait signals pid with SIGTERM in a bounded loop, escalating to
// SIGKILL when the bound is exhausted. ESRCH anywhere means the process is
// already gone and counts as success; any other signalling failure is
// fatal.
func (s *Supervisor) killAndWait(pid int) error {
	fmt.Fprintln(os.Stderr, "Terminating existing buckd process...")
	found, err := proc.Signal(pid, syscall.SIGTERM)
	if err != nil {
		return fmt.Errorf("terminate daemon %d: %w", pid, err)
	}
	if !found {
		return nil
	}

	fmt.Fprintln(os.Stderr, "Waiting for existing buckd process to exit...")
	policy := retry.NewPolicy(s.cfg.KillAttempts, s.cfg.KillInterval)
	var signalErr error
	gone := policy.Each(func() bool {
		found, err := proc.Signal(pid, syscall.SIGTERM)
		if err != nil {
			signalErr = err
			return true
		}
		return !found
	})
	if signalErr != nil {
		return fmt.Errorf("terminate daemon %d: %w", pid, signalErr)
	}
	if !gone {
		fmt.Fprintf(os.Stderr, "Could not kill existing buckd process after %v!\n", policy.Bound())
		fmt.Fprintln(os.Stderr, "Force killing existing buckd process.")
		if _, err := proc.Signal(pid, syscall.SIGKILL); err != nil {
			return fmt.Errorf("force kill daemon %d: %w", pid, err)
		}
	}
	return nil
}

// KillAutobuild terminates any recorded background autobuild helper,
// best-effort: a missing process or failed signal is ignored.
func (s *Supervisor) KillAutobuild() {
	pid, ok := s.state.AutobuildPID()
	if !ok {
		return
	}
	if _, err := proc.Signal(pid, syscall.SIGTERM); err != nil {
		slog.Debug("Failed to stop autobuild process", logfields.PID(pid), logfields.Error(err))
	}
}
