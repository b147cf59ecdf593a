package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoBuildFiles indicates that no saved build pages were found.
var ErrNoBuildFiles = errors.New("no build files discovered")

// DefaultDir is where saved build pages are looked up when none are given.
var DefaultDir = filepath.Join(".stepstats", "builds")

// BuildFiles returns saved build page paths relative to root where possible.
//
// Each input may name a file, a directory (its *.json entries are used) or a
// glob pattern. Inputs keep their given order; files expanded from one
// directory or pattern are sorted. Without inputs DefaultDir is scanned.
// Duplicates are dropped.
func BuildFiles(root string, inputs []string) ([]string, error) {
	if len(inputs) == 0 {
		paths, err := expandDir(root, filepath.Join(root, DefaultDir))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, ErrNoBuildFiles
		}
		return paths, nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, input := range inputs {
		paths, err := expandInput(root, input)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoBuildFiles
	}
	return out, nil
}

func expandInput(root, input string) ([]string, error) {
	full := input
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}

	if isPattern(input) {
		matches, err := filepath.Glob(full)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", input, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched no build files", input)
		}
		return relativeSorted(root, matches), nil
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("build file %q not found", input)
		}
		return nil, fmt.Errorf("stat %q: %w", input, err)
	}
	if info.IsDir() {
		paths, err := expandDir(root, full)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("directory %q has no .json build files", input)
		}
		return paths, nil
	}
	return []string{relOrAbs(root, full)}, nil
}

func expandDir(root, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read build dir %q: %w", dir, err)
	}
	var matches []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		matches = append(matches, filepath.Join(dir, entry.Name()))
	}
	return relativeSorted(root, matches), nil
}

func relativeSorted(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, relOrAbs(root, p))
	}
	sort.Strings(out)
	return out
}

func isPattern(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

// relOrAbs returns path relative to root, or cleaned as-is when it lies outside root.
func relOrAbs(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Clean(path)
	}
	rel = filepath.Clean(rel)
	if rel == "." || strings.HasPrefix(rel, "..") {
		return filepath.Clean(path)
	}
	return rel
}
