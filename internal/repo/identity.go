package repo

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// IdentityOptions drives the dirty-checkout branches of VersionUID.
type IdentityOptions struct {
	// PinConfigured reports whether a .buckversion pin exists; without one
	// the dirty checkout is hashed silently.
	PinConfigured bool

	// NoCheck disables the pin policy for this checkout (.nobuckcheck).
	NoCheck bool

	// DirtyOverride forces the dirty determination (BUCK_REPOSITORY_DIRTY).
	DirtyOverride *bool

	// SkipCleanPrompt suppresses the interactive clean offer.
	SkipCleanPrompt bool

	// Interactive reports whether a human is attached to stdout.
	Interactive bool

	// PromptIn is where the clean-offer answer is read from.
	PromptIn io.Reader

	// Restart re-executes the launcher with its original arguments after a
	// clean. It must not return on success.
	Restart func() error
}

// VersionUID computes the stable identity of the checkout state:
// the HEAD revision for clean checkouts, a content hash of the tracked
// files for dirty ones, or the sentinel when not version controlled.
// Identical tracked content always yields an identical UID; the real index
// and working tree are never touched.
func (c *Checkout) VersionUID(opts IdentityOptions) (string, error) {
	if c.repo == nil {
		return NotVersionControlled, nil
	}

	dirty, err := c.IsDirty(opts.DirtyOverride)
	if err != nil {
		return "", err
	}
	if !dirty {
		return c.Revision()
	}

	if opts.NoCheck || !opts.PinConfigured {
		return c.contentHash()
	}

	modified, err := c.ModifiedTrackedFiles()
	if err != nil {
		return "", err
	}
	if len(modified) > 0 {
		fmt.Fprintln(os.Stderr, "::: Your buck directory has local modifications, and therefore")
		fmt.Fprintln(os.Stderr, "::: builds will not be able to use a distributed cache.")
		fmt.Fprintln(os.Stderr, "::: The following files must be either reverted or committed:")
		for _, path := range modified {
			fmt.Fprintf(os.Stderr, ":::   %s\n", path)
		}
	} else if !opts.SkipCleanPrompt {
		fmt.Fprintln(os.Stderr, "::: Your local buck directory is dirty, and therefore builds will")
		fmt.Fprintln(os.Stderr, "::: not be able to use a distributed cache.")
		if opts.Interactive {
			fmt.Fprintln(os.Stderr, "::: Do you want to clean your buck directory? [y/N]")
			if readChoice(opts.PromptIn) == "y" {
				if err := c.CleanUntracked(); err != nil {
					return "", err
				}
				if err := opts.Restart(); err != nil {
					return "", err
				}
				// Restart does not return on success.
			}
		}
	}

	return c.contentHash()
}

func readChoice(r io.Reader) string {
	if r == nil {
		r = os.Stdin
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(line))
}

// CleanUntracked removes untracked files and directories, leaving tracked
// content alone.
func (c *Checkout) CleanUntracked() error {
	wt, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("clean untracked files: %w", err)
	}
	return nil
}

// contentHash hashes a synthesized listing of every tracked path with its
// current blob hash: HEAD entries overlaid with the working-tree content of
// changed tracked files. Untracked files, timestamps, and index ordering
// cannot influence the result.
func (c *Checkout) contentHash() (string, error) {
	entries, err := c.headTreeEntries()
	if err != nil {
		return "", err
	}

	status, err := c.status()
	if err != nil {
		return "", err
	}
	for path, fs := range status {
		if fs.Worktree == git.Untracked || fs.Staging == git.Untracked {
			continue
		}
		abs := filepath.Join(c.dir, filepath.FromSlash(path))
		entry, err := workingTreeEntry(abs)
		if err != nil {
			return "", err
		}
		if entry == nil {
			delete(entries, path)
			continue
		}
		entries[path] = *entry
	}

	paths := make([]string, 0, len(entries))
	for path := range entries {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, path := range paths {
		entry := entries[path]
		fmt.Fprintf(h, "%s %s\t%s\n", entry.mode, entry.hash, path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type treeEntry struct {
	mode filemode.FileMode
	hash plumbing.Hash
}

// headTreeEntries lists every blob in the HEAD tree keyed by slash path.
func (c *Checkout) headTreeEntries() (map[string]treeEntry, error) {
	head, err := c.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := c.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("read HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read HEAD tree: %w", err)
	}

	entries := make(map[string]treeEntry)
	err = tree.Files().ForEach(func(f *object.File) error {
		entries[f.Name] = treeEntry{mode: f.Mode, hash: f.Hash}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk HEAD tree: %w", err)
	}
	return entries, nil
}

// workingTreeEntry hashes the current on-disk content of a tracked path.
// A missing file means the path was deleted and reports nil.
func workingTreeEntry(abs string) (*treeEntry, error) {
	info, err := os.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(abs)
		if err != nil {
			return nil, fmt.Errorf("read symlink %s: %w", abs, err)
		}
		return &treeEntry{
			mode: filemode.Symlink,
			hash: plumbing.ComputeHash(plumbing.BlobObject, []byte(target)),
		}, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	mode := filemode.Regular
	if info.Mode()&0o111 != 0 {
		mode = filemode.Executable
	}
	return &treeEntry{
		mode: mode,
		hash: plumbing.ComputeHash(plumbing.BlobObject, data),
	}, nil
}

// modifiedTracked extracts the sorted tracked files with worktree or staged
// changes from a status, mirroring `git ls-files -m` plus staged edits.
func modifiedTracked(status git.Status) []string {
	var files []string
	for path, fs := range status {
		if fs.Worktree == git.Untracked || fs.Staging == git.Untracked {
			continue
		}
		if fs.Worktree == git.Unmodified && fs.Staging == git.Unmodified {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}
