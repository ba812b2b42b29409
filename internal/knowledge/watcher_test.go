package knowledge

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestWalkDirsSkipsConfiguredDirs(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"docs", "docs/guides", ".git", "node_modules"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}

	skip := map[string]bool{".git": true, "node_modules": true}
	dirs := walkDirs(root, skip)

	names := make(map[string]bool)
	for _, d := range dirs {
		names[filepath.Base(d)] = true
	}
	if names[".git"] || names["node_modules"] {
		t.Fatalf("walkDirs did not skip excluded directories: %v", dirs)
	}
	if !names["docs"] || !names["guides"] {
		t.Fatalf("walkDirs missed expected directories: %v", dirs)
	}
}

func TestWalkDirsIncludesRootEvenWhenEmpty(t *testing.T) {
	root := t.TempDir()
	dirs := walkDirs(root, nil)
	sort.Strings(dirs)
	if len(dirs) != 1 || dirs[0] != root {
		t.Fatalf("walkDirs(empty) = %v, want [%s]", dirs, root)
	}
}
