// Package toolchain locates the Buck checkout this launcher belongs to,
// rebuilds it with ant, and assembles the JVM invocations for both the
// one-shot CLI and the nailgun daemon.
package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Nailgun protocol constants shared by launch and client paths.
const (
	MainClass          = "com.facebook.buck.cli.Main"
	ServerClass        = "com.martiansoftware.nailgun.NGServer"
	ClientRelativePath = "build/ng"
	SuccessMarkerPath  = "build/successful-build"
	GCMaxPauseMillis   = 15000
	ExitCodeDaemonBusy = 2
)

// Home is the root of the Buck checkout (the directory containing bin/,
// build/, src/ and the third-party jars).
type Home struct {
	Dir string
}

// DiscoverHome derives the checkout root from the running launcher binary,
// which lives in <home>/bin.
func DiscoverHome() (*Home, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate launcher binary: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("resolve launcher binary: %w", err)
	}
	return &Home{Dir: filepath.Dir(filepath.Dir(exe))}, nil
}

// Join resolves a slash-separated checkout-relative path.
func (h *Home) Join(relative string) string {
	return filepath.Join(h.Dir, filepath.FromSlash(relative))
}

// SuccessMarker is the file whose existence (not content) records that a
// full build of the checkout has succeeded.
func (h *Home) SuccessMarker() string { return h.Join(SuccessMarkerPath) }

// ClientPath is the lightweight nailgun client binary produced by the build.
func (h *Home) ClientPath() string { return h.Join(ClientRelativePath) }

// HasClient reports whether the daemon client transport exists on disk.
func (h *Home) HasClient() bool {
	info, err := os.Stat(h.ClientPath())
	return err == nil && !info.IsDir()
}

// IsGit reports whether the checkout is version controlled.
func (h *Home) IsGit() bool {
	info, err := os.Stat(filepath.Join(h.Dir, ".git"))
	return err == nil && info.IsDir()
}

// Classpath joins the checkout-relative classpath entries with the platform
// list separator.
func (h *Home) Classpath() string {
	parts := make([]string, 0, len(classpathEntries))
	for _, entry := range classpathEntries {
		parts = append(parts, h.Join(entry))
	}
	return strings.Join(parts, string(os.PathListSeparator))
}
