package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("file not found")

// FindUp looks for name in dir and then in each of its parents, returning the first match.
func FindUp(name, dir string) (string, error) {
	curDir := dir
	for {
		candidate := filepath.Join(curDir, name)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("checking %q: %w", candidate, err)
		}
		newDir := filepath.Dir(curDir)
		if newDir == curDir {
			return "", fmt.Errorf("%q in %q or any parent: %w", name, dir, ErrNotFound)
		}
		curDir = newDir
	}
}
