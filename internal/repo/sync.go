package repo

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	launchererrors "github.com/saleeh93/buck-cutom/internal/errors"
	"github.com/saleeh93/buck-cutom/internal/project"
	"github.com/saleeh93/buck-cutom/internal/toolchain"
)

// SyncGate enforces that the checkout is at the pinned revision before any
// daemon or build logic runs, rebuilding and re-executing the launcher when
// it is not.
type SyncGate struct {
	checkout *Checkout
	builder  *toolchain.Builder

	// Relaunch re-executes the freshly updated launcher with the original
	// arguments. It must not return on success; it is injectable for tests.
	Relaunch func() error
}

// NewSyncGate wires the gate to the checkout and its builder.
func NewSyncGate(checkout *Checkout, builder *toolchain.Builder, relaunch func() error) *SyncGate {
	return &SyncGate{checkout: checkout, builder: builder, Relaunch: relaunch}
}

// Ensure brings the checkout to the pinned revision. It returns normally
// only when the checkout already matches (or no pin applies); after an
// update it re-executes the launcher and never returns.
func (g *SyncGate) Ensure(pin *project.PinnedVersion, noCheck bool) error {
	if pin == nil || noCheck || !g.checkout.IsVersionControlled() {
		return nil
	}

	if !g.checkout.RevisionExists(pin.Revision) {
		if err := g.fetch(pin.Branch); err != nil {
			e := launchererrors.Wrap(err, launchererrors.CategoryGit,
				"Failed to fetch Buck updates from git.")
			return e.WithRemediation(
				"You can disable this by creating a '.nobuckcheck' file in",
				"your repository, but this might lead to strange bugs or",
				"build failures.")
		}
	}

	current, err := g.checkout.Revision()
	if err != nil {
		return err
	}
	if current == pin.Revision {
		return nil
	}

	fmt.Fprintf(os.Stderr, "Buck is at %s, but should be %s.\n", current, pin.Revision)
	fmt.Fprintln(os.Stderr, "Buck is updating itself. To disable this, add a '.nobuckcheck'")
	fmt.Fprintln(os.Stderr, "file to your project root. In general, you should only disable")
	fmt.Fprintln(os.Stderr, "this if you are developing Buck.")

	if err := g.checkoutRevision(pin.Revision); err != nil {
		return err
	}
	g.builder.InvalidateBuild()

	if err := g.builder.CheckAnt(); err != nil {
		return err
	}
	if err := g.builder.Clean(); err != nil {
		return err
	}
	if err := g.builder.Build(); err != nil {
		return err
	}

	// Nothing past this point may run in the old checkout.
	return g.Relaunch()
}

// fetch pulls the pinned branch from origin, or origin's configured refs
// when no branch is specified.
func (g *SyncGate) fetch(branch string) error {
	opts := &git.FetchOptions{RemoteName: "origin", Progress: os.Stderr}
	if branch != "" {
		opts.RefSpecs = []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch)),
		}
	}
	err := g.checkout.repo.Fetch(opts)
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return err
	}
	return nil
}

// checkoutRevision moves the worktree to the revision, detached.
func (g *SyncGate) checkoutRevision(rev string) error {
	hash, err := g.checkout.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return fmt.Errorf("resolve pinned revision %s: %w", rev, err)
	}
	wt, err := g.checkout.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		return fmt.Errorf("checkout %s: %w", rev, err)
	}
	return nil
}
