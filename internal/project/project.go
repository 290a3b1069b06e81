// Package project models the user's project checkout: root discovery, the
// per-project scratch directory, and the pin/opt-out marker files that drive
// the launcher's self-update gate.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Marker and pin file names, all relative to the project root.
const (
	ConfigFile     = ".buckconfig"
	VersionFile    = ".buckversion"
	NoCheckFile    = ".nobuckcheck"
	JavaArgsFile   = ".buckjavaargs"
	scratchDirName = ".buckd"
	logDirRelative = "buck-out/log"
	tmpDirRelative = "buck-out/tmp"
)

// PinnedVersion is the revision the toolchain checkout is required to be at,
// with an optional branch to narrow the fetch.
type PinnedVersion struct {
	Revision string
	Branch   string
}

// Project is a located project root.
type Project struct {
	Root string
}

// FindRoot walks upward from dir looking for a .buckconfig marker.
func FindRoot(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	for cur := abs; ; cur = filepath.Dir(cur) {
		if _, err := os.Stat(filepath.Join(cur, ConfigFile)); err == nil {
			return &Project{Root: cur}, nil
		}
		if filepath.Dir(cur) == cur {
			return nil, fmt.Errorf("no %s found in %s or any parent directory", ConfigFile, abs)
		}
	}
}

// ScratchDir is the per-project directory holding daemon runtime state.
func (p *Project) ScratchDir() string { return filepath.Join(p.Root, scratchDirName) }

// LogDir returns the build log directory, creating it if needed.
func (p *Project) LogDir() (string, error) {
	dir := filepath.Join(p.Root, filepath.FromSlash(logDirRelative))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	return dir, nil
}

// TmpDir returns the short-lived scratch directory for one-shot invocations,
// creating it if needed.
func (p *Project) TmpDir() (string, error) {
	dir := filepath.Join(p.Root, filepath.FromSlash(tmpDirRelative))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}
	return dir, nil
}

// DaemonTmpDir returns a long-lived temp directory for one daemon launch,
// creating it. Launch IDs keep concurrent launch attempts from sharing it.
func (p *Project) DaemonTmpDir(launchID string) (string, error) {
	dir := filepath.Join(p.ScratchDir(), "tmp", launchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create daemon tmp dir: %w", err)
	}
	return dir, nil
}

// PinnedVersion reads .buckversion: first line the revision, optional second
// line a branch. Returns nil when no pin is configured.
func (p *Project) PinnedVersion() (*PinnedVersion, error) {
	data, err := os.ReadFile(filepath.Join(p.Root, VersionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", VersionFile, err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, nil
	}
	pin := &PinnedVersion{Revision: strings.TrimSpace(lines[0])}
	if len(lines) > 1 {
		pin.Branch = strings.TrimSpace(lines[1])
	}
	return pin, nil
}

// HasNoCheck reports whether the self-update gate is disabled for this
// project via the .nobuckcheck marker.
func (p *Project) HasNoCheck() bool {
	_, err := os.Stat(filepath.Join(p.Root, NoCheckFile))
	return err == nil
}

// JavaArgs reads project-level extra JVM arguments, whitespace separated.
func (p *Project) JavaArgs() []string {
	data, err := os.ReadFile(filepath.Join(p.Root, JavaArgsFile))
	if err != nil {
		return nil
	}
	return strings.Fields(string(data))
}
