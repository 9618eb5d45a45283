package internal

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestGofmtCompliance verifies that all Go source files in the project
// are properly formatted according to gofmt standards.
//
// If this test fails, run: gofmt -w .
func TestGofmtCompliance(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	// Tests in this package run from internal/; the module root is its parent.
	projectRoot := filepath.Dir(wd)
	if filepath.Base(wd) != "internal" {
		projectRoot = wd
	}

	var files []string

	// Root-level sources (main.go and friends).
	rootEntries, err := os.ReadDir(projectRoot)
	if err != nil {
		t.Fatalf("Failed to read project root: %v", err)
	}
	for _, e := range rootEntries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".go") {
			files = append(files, filepath.Join(projectRoot, e.Name()))
		}
	}

	// Everything under internal/.
	err = filepath.Walk(filepath.Join(projectRoot, "internal"), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "vendor" || strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".go") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to walk internal/: %v", err)
	}

	var unformatted []string
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", path, err)
		}
		formatted, err := format.Source(content)
		if err != nil {
			// Skip files that don't parse (generated code, build tags).
			continue
		}
		if !bytes.Equal(content, formatted) {
			relPath, _ := filepath.Rel(projectRoot, path)
			unformatted = append(unformatted, relPath)
		}
	}

	if len(unformatted) > 0 {
		t.Errorf("The following files are not properly formatted:\n")
		for _, f := range unformatted {
			t.Errorf("  - %s\n", f)
		}
		t.Errorf("\nRun 'gofmt -w .' to fix formatting issues.")
	}
}
