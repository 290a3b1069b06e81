// Package repo interrogates the toolchain checkout: whether it is version
// controlled, dirty, which revision is on disk, and the stable version UID
// that joins "toolchain on disk" with "toolchain the daemon was built
// from". It also enforces the pinned-revision sync gate.
package repo

import (
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// NotVersionControlled is the version UID sentinel for checkouts without
// version control: no cache participation, daemon compatibility reduces to
// process liveness.
const NotVersionControlled = "N/A"

// State is the repository state derived on demand. It is never cached
// across invocations because it can change between runs.
type State struct {
	IsVersionControlled   bool
	Dirty                 bool
	HasLocalModifications bool
	Revision              string
	CommitTimestamp       int64 // -1 when unknown or dirty-overridden
}

// Checkout wraps an open (or absent) git repository at the toolchain dir.
type Checkout struct {
	dir  string
	repo *git.Repository // nil when not version controlled
}

// Open inspects dir. A missing repository is not an error; it yields a
// Checkout that reports not-version-controlled.
func Open(dir string) (*Checkout, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return &Checkout{dir: dir}, nil
		}
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	return &Checkout{dir: dir, repo: repo}, nil
}

// Dir returns the checkout directory.
func (c *Checkout) Dir() string { return c.dir }

// IsVersionControlled reports whether a git repository backs the checkout.
func (c *Checkout) IsVersionControlled() bool { return c.repo != nil }

// Revision returns the current HEAD hash, or the sentinel when not version
// controlled.
func (c *Checkout) Revision() (string, error) {
	if c.repo == nil {
		return NotVersionControlled, nil
	}
	head, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// CommitTimestamp returns the committer timestamp of HEAD, or -1 when not
// version controlled.
func (c *Checkout) CommitTimestamp() (int64, error) {
	if c.repo == nil {
		return -1, nil
	}
	head, err := c.repo.Head()
	if err != nil {
		return -1, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := c.repo.CommitObject(head.Hash())
	if err != nil {
		return -1, fmt.Errorf("read HEAD commit: %w", err)
	}
	return commit.Committer.When.Unix(), nil
}

// status returns the worktree status.
func (c *Checkout) status() (git.Status, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("compute status: %w", err)
	}
	return status, nil
}

// IsDirty reports whether any path differs from HEAD, honoring the
// environment override when set.
func (c *Checkout) IsDirty(override *bool) (bool, error) {
	if override != nil {
		return *override, nil
	}
	if c.repo == nil {
		return false, nil
	}
	status, err := c.status()
	if err != nil {
		return false, err
	}
	return !status.IsClean(), nil
}

// ModifiedTrackedFiles lists tracked files whose content differs from HEAD
// or the index, sorted. Untracked files are excluded.
func (c *Checkout) ModifiedTrackedFiles() ([]string, error) {
	if c.repo == nil {
		return nil, nil
	}
	status, err := c.status()
	if err != nil {
		return nil, err
	}
	return modifiedTracked(status), nil
}

// DeriveState computes the full repository state in one pass.
func (c *Checkout) DeriveState(dirtyOverride *bool) (State, error) {
	st := State{IsVersionControlled: c.repo != nil, CommitTimestamp: -1}
	if c.repo == nil {
		st.Revision = NotVersionControlled
		return st, nil
	}
	rev, err := c.Revision()
	if err != nil {
		return State{}, err
	}
	st.Revision = rev

	st.Dirty, err = c.IsDirty(dirtyOverride)
	if err != nil {
		return State{}, err
	}
	modified, err := c.ModifiedTrackedFiles()
	if err != nil {
		return State{}, err
	}
	st.HasLocalModifications = len(modified) > 0

	// Dirty-overridden checkouts report the sentinel timestamp so caches
	// never key on it.
	if dirtyOverride == nil {
		if st.CommitTimestamp, err = c.CommitTimestamp(); err != nil {
			return State{}, err
		}
	}
	return st, nil
}

// RevisionExists reports whether the revision is resolvable locally.
func (c *Checkout) RevisionExists(rev string) bool {
	if c.repo == nil {
		return false
	}
	_, err := c.repo.ResolveRevision(plumbing.Revision(rev))
	return err == nil
}
