package watch

import "testing"

func TestDetectFindsSomeMechanism(t *testing.T) {
	// On any platform fsnotify supports, a temp dir is watchable, so the
	// result is Watchman or Native, never None.
	m := Detect(t.TempDir())
	if m == None {
		t.Skip("no change-notification mechanism available in this environment")
	}
	if m != Watchman && m != Native {
		t.Errorf("unexpected mechanism %v", m)
	}
}

func TestDetectMissingRoot(t *testing.T) {
	m := Detect("/definitely/not/a/real/path")
	if m == Native {
		t.Error("native watcher should not claim an unwatchable root")
	}
}

func TestMechanismString(t *testing.T) {
	if None.String() != "none" || Watchman.String() != "watchman" || Native.String() != "native" {
		t.Error("unexpected mechanism names")
	}
}
