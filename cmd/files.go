package cmd

import (
	"fmt"
	"os"
	"path/filepath"
)

// collectFiles expands directory arguments into the .las/.LAS files they
// contain (not recursive) and keeps file arguments as given. Duplicates
// are dropped, first occurrence wins.
func collectFiles(args []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	add := func(path string) {
		key := filepath.Clean(path)
		if !seen[key] {
			seen[key] = true
			files = append(files, path)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", arg, err)
		}
		for _, e := range entries {
			if e.IsDir() || !isLASName(e.Name()) {
				continue
			}
			add(filepath.Join(arg, e.Name()))
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no .las files found")
	}
	return files, nil
}

func isLASName(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".las" || ext == ".LAS"
}
