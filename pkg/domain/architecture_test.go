package domain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// The domain package is the dependency floor of the module: every internal
// package imports it, so it must never import back into internal/.
func TestDomainDoesNotImportInternal(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	entries, err := os.ReadDir(wd)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(wd, name)) // #nosec G304: names come from ReadDir
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			imp := quotedImport(strings.TrimSpace(line))
			if imp == "" {
				continue
			}
			if strings.Contains(imp, "/internal/") || strings.HasPrefix(imp, "collectcore/internal") {
				t.Errorf("%s imports %s; the domain package must stay free of internal packages", name, imp)
			}
		}
	}
}

// quotedImport returns the first double-quoted string on a line, which for
// import lines is the import path.
func quotedImport(line string) string {
	start := strings.Index(line, `"`)
	if start == -1 {
		return ""
	}
	rest := line[start+1:]
	end := strings.Index(rest, `"`)
	if end == -1 {
		return ""
	}
	return rest[:end]
}
