// Package launcher is the top-level dispatcher: it wires the project, the
// toolchain checkout, and the daemon supervisor together, then executes the
// user's task either through the nailgun client against a live daemon or as
// a one-shot JVM, forwarding the child's exit behavior as its own.
package launcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-isatty"

	"github.com/saleeh93/buck-cutom/internal/config"
	"github.com/saleeh93/buck-cutom/internal/daemon"
	"github.com/saleeh93/buck-cutom/internal/logfields"
	"github.com/saleeh93/buck-cutom/internal/proc"
	"github.com/saleeh93/buck-cutom/internal/project"
	"github.com/saleeh93/buck-cutom/internal/repo"
	"github.com/saleeh93/buck-cutom/internal/toolchain"
	"github.com/saleeh93/buck-cutom/internal/watch"
)

// Launcher holds one invocation's wired subsystems.
type Launcher struct {
	Project    *project.Project
	Home       *toolchain.Home
	Builder    *toolchain.Builder
	Checkout   *repo.Checkout
	Config     *config.Config
	Env        *config.Env
	Supervisor *daemon.Supervisor

	// TaskArgs are the user's task and arguments, passed through unchanged
	// to the client or the one-shot JVM.
	TaskArgs []string

	// Restart re-executes this launcher with its original arguments. It
	// must not return on success; injectable for tests.
	Restart func() error
}

// Bootstrap locates the project and toolchain for the working directory and
// wires a Launcher around them.
func Bootstrap(taskArgs []string) (*Launcher, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	p, err := project.FindRoot(cwd)
	if err != nil {
		return nil, err
	}
	home, err := toolchain.DiscoverHome()
	if err != nil {
		return nil, err
	}
	logDir, err := p.LogDir()
	if err != nil {
		return nil, err
	}
	builder := toolchain.NewBuilder(home, logDir)

	cfg, err := config.Load(filepath.Join(p.Root, config.FileName))
	if err != nil {
		return nil, err
	}
	env := config.LoadEnvFiles()

	checkout, err := repo.Open(home.Dir)
	if err != nil {
		return nil, err
	}
	mechanism := watch.Detect(p.Root)
	slog.Debug("Launcher bootstrapped",
		logfields.Path(p.Root),
		slog.String("buck_home", home.Dir),
		slog.String("watch", mechanism.String()))

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate launcher binary: %w", err)
	}
	originalArgs := os.Args[1:]

	return &Launcher{
		Project:    p,
		Home:       home,
		Builder:    builder,
		Checkout:   checkout,
		Config:     cfg,
		Env:        env,
		Supervisor: daemon.NewSupervisor(p, home, builder, cfg.Daemon, env, mechanism),
		TaskArgs:   taskArgs,
		Restart: func() error {
			return proc.Relaunch(exe, originalArgs)
		},
	}, nil
}

// Run executes the user's task and returns the exit code to terminate with.
// The sync gate runs first and may relaunch the whole process instead of
// returning.
func (l *Launcher) Run() (int, error) {
	pin, err := l.Project.PinnedVersion()
	if err != nil {
		return 1, err
	}
	gate := repo.NewSyncGate(l.Checkout, l.Builder, l.Restart)
	if err := gate.Ensure(pin, l.Project.HasNoCheck()); err != nil {
		return 1, err
	}

	l.Supervisor.KillAutobuild()
	if l.cleanRequested() || l.Env.NoBuckd {
		if err := l.Supervisor.Kill(); err != nil {
			return 1, err
		}
	}
	if err := l.Builder.EnsureBuilt(); err != nil {
		return 1, err
	}

	uid, err := l.versionUID(pin)
	if err != nil {
		return 1, err
	}
	info, err := l.jvmInfo(uid)
	if err != nil {
		return 1, err
	}

	decision, err := l.Supervisor.ShouldReuse(uid)
	if err != nil {
		return 1, err
	}
	slog.Debug("Daemon decision", slog.String("decision", decision.String()), logfields.VersionUID(uid))
	if decision == daemon.RestartFresh {
		if err := l.Supervisor.Launch(uid, info); err != nil {
			return 1, err
		}
	}

	if decision != daemon.RunDirect && l.Home.HasClient() && l.Supervisor.IsAlive() {
		return l.runClient(info)
	}
	return l.runDirect(info)
}

// KillDaemon terminates any recorded daemon.
func (l *Launcher) KillDaemon() error {
	l.Supervisor.KillAutobuild()
	return l.Supervisor.Kill()
}

// StartDaemon force-recycles the daemon: the sync gate runs, any recorded
// daemon is killed, and a fresh one is launched for the current toolchain
// state regardless of the reuse policy.
func (l *Launcher) StartDaemon() error {
	pin, err := l.Project.PinnedVersion()
	if err != nil {
		return err
	}
	gate := repo.NewSyncGate(l.Checkout, l.Builder, l.Restart)
	if err := gate.Ensure(pin, l.Project.HasNoCheck()); err != nil {
		return err
	}

	l.Supervisor.KillAutobuild()
	if err := l.Supervisor.Kill(); err != nil {
		return err
	}
	if err := l.Builder.EnsureBuilt(); err != nil {
		return err
	}

	uid, err := l.versionUID(pin)
	if err != nil {
		return err
	}
	info, err := l.jvmInfo(uid)
	if err != nil {
		return err
	}
	return l.Supervisor.Launch(uid, info)
}

// cleanRequested reports whether the task is a full clean, which always
// recycles the daemon first.
func (l *Launcher) cleanRequested() bool {
	for _, arg := range l.TaskArgs {
		if arg == "clean" {
			return true
		}
	}
	return false
}

func (l *Launcher) versionUID(pin *project.PinnedVersion) (string, error) {
	return l.Checkout.VersionUID(repo.IdentityOptions{
		PinConfigured:   pin != nil,
		NoCheck:         l.Project.HasNoCheck(),
		DirtyOverride:   l.Env.DirtyOverride,
		SkipCleanPrompt: l.Env.SkipCleanPrompt,
		Interactive:     isatty.IsTerminal(os.Stdout.Fd()),
		PromptIn:        os.Stdin,
		Restart:         l.Restart,
	})
}

func (l *Launcher) jvmInfo(uid string) (toolchain.JVMInfo, error) {
	st, err := l.Checkout.DeriveState(l.Env.DirtyOverride)
	if err != nil {
		return toolchain.JVMInfo{}, err
	}
	return toolchain.JVMInfo{
		VersionUID:      uid,
		GitCommit:       st.Revision,
		CommitTimestamp: st.CommitTimestamp,
		Dirty:           st.Dirty,
		BuckdDir:        l.Project.ScratchDir(),
		DebugMode:       l.Env.DebugMode,
		ProjectArgs:     l.Project.JavaArgs(),
		ExtraArgs:       l.Env.ExtraJavaArgs,
	}, nil
}

// runClient forwards the task through the nailgun client to the daemon. A
// corrupt persisted port means the daemon metadata cannot be trusted: the
// daemon is recycled and the task falls back to a direct run.
func (l *Launcher) runClient(info toolchain.JVMInfo) (int, error) {
	fmt.Fprintln(os.Stderr, "Using buckd.")
	port, ok := l.Supervisor.State().DaemonPort()
	if !ok {
		fmt.Fprintln(os.Stderr, "Daemon port file is corrupt, starting new buck process.")
		if err := l.Supervisor.Kill(); err != nil {
			return 1, err
		}
		return l.runDirect(info)
	}

	args := append([]string{"--nailgun-port", strconv.Itoa(port), toolchain.MainClass}, l.TaskArgs...)
	cmd := exec.Command(l.Home.ClientPath(), args...)
	cmd.Dir = l.Project.Root
	term, err := run(cmd)
	if err != nil {
		return 1, err
	}
	if term.Code == toolchain.ExitCodeDaemonBusy {
		fmt.Fprintln(os.Stderr, `Daemon is busy, please wait or run "buckd --kill" to terminate it.`)
	}
	return term.ExitCode(), nil
}

// runDirect executes the task as a one-shot JVM.
func (l *Launcher) runDirect(info toolchain.JVMInfo) (int, error) {
	tmpDir, err := l.Project.TmpDir()
	if err != nil {
		return 1, err
	}

	args := l.Home.JavaArgs(info)
	args = append(args,
		fmt.Sprintf("-Djava.io.tmpdir=%s", tmpDir),
		"-classpath", l.Home.Classpath(),
		toolchain.MainClass,
	)
	args = append(args, l.TaskArgs...)

	cmd := exec.Command("java", args...)
	cmd.Dir = l.Project.Root
	term, err := run(cmd)
	if err != nil {
		return 1, err
	}
	return term.ExitCode(), nil
}

// run executes cmd with inherited stdio and classifies its termination.
// Failing to start at all is an error; a nonzero exit is not.
func run(cmd *exec.Cmd) (proc.Termination, error) {
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return proc.Termination{}, fmt.Errorf("run %s: %w", cmd.Path, err)
		}
	}
	return proc.TerminationOf(err), nil
}
