package repo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var commitStamp = time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC)

// initCheckout creates a real repository with the given files committed and
// opens it through the package under test.
func initCheckout(t *testing.T, files map[string]string) (*Checkout, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	commitFiles(t, dir, repo, files, "initial")

	checkout, err := Open(dir)
	if err != nil {
		t.Fatalf("open checkout: %v", err)
	}
	return checkout, repo
}

func commitFiles(t *testing.T, dir string, repo *git.Repository, files map[string]string, msg string) string {
	t.Helper()
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	sig := &object.Signature{Name: "dev", Email: "dev@example.com", When: commitStamp}
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return hash.String()
}

func TestOpenWithoutRepository(t *testing.T) {
	checkout, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if checkout.IsVersionControlled() {
		t.Fatal("expected plain directory to report not version controlled")
	}

	rev, err := checkout.Revision()
	if err != nil {
		t.Fatalf("Revision failed: %v", err)
	}
	if rev != NotVersionControlled {
		t.Errorf("expected %q revision, got %q", NotVersionControlled, rev)
	}

	ts, err := checkout.CommitTimestamp()
	if err != nil || ts != -1 {
		t.Errorf("expected timestamp -1, got %d (err %v)", ts, err)
	}

	st, err := checkout.DeriveState(nil)
	if err != nil {
		t.Fatalf("DeriveState failed: %v", err)
	}
	if st.IsVersionControlled || st.Dirty || st.Revision != NotVersionControlled {
		t.Errorf("unexpected state for plain directory: %+v", st)
	}
}

func TestRevisionMatchesHead(t *testing.T) {
	checkout, repo := initCheckout(t, map[string]string{"a.txt": "one\n"})

	head, err := repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	rev, err := checkout.Revision()
	if err != nil {
		t.Fatalf("Revision failed: %v", err)
	}
	if rev != head.Hash().String() {
		t.Errorf("Revision = %q, want HEAD %q", rev, head.Hash())
	}
	if !checkout.RevisionExists(rev) {
		t.Error("expected HEAD revision to resolve")
	}
	if checkout.RevisionExists("0000000000000000000000000000000000000000") {
		t.Error("expected unknown revision to not resolve")
	}
}

func TestCommitTimestamp(t *testing.T) {
	checkout, _ := initCheckout(t, map[string]string{"a.txt": "one\n"})

	ts, err := checkout.CommitTimestamp()
	if err != nil {
		t.Fatalf("CommitTimestamp failed: %v", err)
	}
	if ts != commitStamp.Unix() {
		t.Errorf("CommitTimestamp = %d, want %d", ts, commitStamp.Unix())
	}
}

func TestIsDirtyHonorsOverride(t *testing.T) {
	checkout, _ := initCheckout(t, map[string]string{"a.txt": "one\n"})

	forced := true
	dirty, err := checkout.IsDirty(&forced)
	if err != nil || !dirty {
		t.Errorf("override true should win on a clean checkout, got %v (err %v)", dirty, err)
	}

	if err := os.WriteFile(filepath.Join(checkout.Dir(), "a.txt"), []byte("changed\n"), 0o644); err != nil {
		t.Fatalf("modify file: %v", err)
	}
	forced = false
	dirty, err = checkout.IsDirty(&forced)
	if err != nil || dirty {
		t.Errorf("override false should win on a dirty checkout, got %v (err %v)", dirty, err)
	}

	dirty, err = checkout.IsDirty(nil)
	if err != nil || !dirty {
		t.Errorf("expected modified checkout to be dirty, got %v (err %v)", dirty, err)
	}
}

func TestModifiedTrackedFilesExcludesUntracked(t *testing.T) {
	checkout, _ := initCheckout(t, map[string]string{
		"a.txt":     "one\n",
		"sub/b.txt": "two\n",
	})

	if err := os.WriteFile(filepath.Join(checkout.Dir(), "a.txt"), []byte("changed\n"), 0o644); err != nil {
		t.Fatalf("modify file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(checkout.Dir(), "untracked.txt"), []byte("noise\n"), 0o644); err != nil {
		t.Fatalf("write untracked: %v", err)
	}

	files, err := checkout.ModifiedTrackedFiles()
	if err != nil {
		t.Fatalf("ModifiedTrackedFiles failed: %v", err)
	}
	if len(files) != 1 || files[0] != "a.txt" {
		t.Errorf("expected only a.txt, got %v", files)
	}
}

func TestDeriveStateDirtyOverrideMasksTimestamp(t *testing.T) {
	checkout, _ := initCheckout(t, map[string]string{"a.txt": "one\n"})

	forced := true
	st, err := checkout.DeriveState(&forced)
	if err != nil {
		t.Fatalf("DeriveState failed: %v", err)
	}
	if !st.Dirty {
		t.Error("expected overridden state to be dirty")
	}
	if st.CommitTimestamp != -1 {
		t.Errorf("overridden state must not expose a commit timestamp, got %d", st.CommitTimestamp)
	}
	if st.HasLocalModifications {
		t.Error("override must not invent local modifications")
	}
}
