package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names the launcher consumes.
const (
	EnvNoBuckd          = "NO_BUCKD"
	EnvRepositoryDirty  = "BUCK_REPOSITORY_DIRTY"
	EnvCleanRepoIfDirty = "BUCK_CLEAN_REPO_IF_DIRTY"
	EnvDebugMode        = "BUCK_DEBUG_MODE"
	EnvExtraJavaArgs    = "BUCK_EXTRA_JAVA_ARGS"
)

// Env captures the launcher's environment switches at startup.
type Env struct {
	// NoBuckd disables daemon usage entirely.
	NoBuckd bool

	// DirtyOverride forces the repository dirty check: "1" dirty, any other
	// non-empty value means clean, nil means no override.
	DirtyOverride *bool

	// SkipCleanPrompt suppresses the interactive clean-repo offer
	// (BUCK_CLEAN_REPO_IF_DIRTY=NO).
	SkipCleanPrompt bool

	// DebugMode attaches a JDWP agent to spawned JVMs.
	DebugMode bool

	// ExtraJavaArgs is passed through to every JVM invocation, split on
	// whitespace.
	ExtraJavaArgs string
}

// LoadEnvFiles loads the first of .env and .env.local that exists, without
// overriding variables already present in the process environment, then
// snapshots the switches.
func LoadEnvFiles() *Env {
	for _, path := range []string{".env", ".env.local"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("Failed to load env file", "path", path, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", path)
		break
	}
	return FromEnviron()
}

// FromEnviron snapshots the launcher switches from the current environment.
func FromEnviron() *Env {
	e := &Env{
		NoBuckd:         os.Getenv(EnvNoBuckd) != "",
		SkipCleanPrompt: os.Getenv(EnvCleanRepoIfDirty) == "NO",
		DebugMode:       os.Getenv(EnvDebugMode) != "",
		ExtraJavaArgs:   os.Getenv(EnvExtraJavaArgs),
	}
	// Set but empty counts as unset.
	if v := os.Getenv(EnvRepositoryDirty); v != "" {
		dirty := v == "1"
		e.DirtyOverride = &dirty
	}
	return e
}
