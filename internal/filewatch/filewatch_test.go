package filewatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMatcherMatchesGlobPattern(t *testing.T) {
	m := Matcher{ID: "ns/app", BaseDir: "/proj", Patterns: []string{"src/**/*.go"}}
	if !m.Matches("/proj/src/pkg/file.go") {
		t.Fatal("expected src/**/*.go to match /proj/src/pkg/file.go")
	}
	if m.Matches("/proj/docs/readme.md") {
		t.Fatal("expected no match outside src/")
	}
}

func TestDirsExpandsGlobToDirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src", "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "pkg", "file.go"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dirs, err := Dirs(root, []string{"src/**"})
	if err != nil {
		t.Fatalf("Dirs: %v", err)
	}
	if len(dirs) < 1 {
		t.Fatalf("expected at least the base dir, got %v", dirs)
	}
	want := filepath.Join(root, "src", "pkg")
	found := false
	for _, d := range dirs {
		if d == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s among the expanded dirs, got %v", want, dirs)
	}
}

func TestDebouncerBatchesWithinWindow(t *testing.T) {
	root := t.TempDir()
	batches := make(chan []string, 4)
	d, err := NewDebouncer(func(paths []string) { batches <- paths })
	if err != nil {
		t.Fatalf("NewDebouncer: %v", err)
	}
	defer d.Close()
	if err := d.Watch(root); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case paths := <-batches:
		if len(paths) == 0 {
			t.Fatal("expected at least one changed path")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
	}
}
