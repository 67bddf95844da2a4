package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// MemoryState keeps cookies and cache in process memory only
	MemoryState = ":memory:"

	appDirName    = "callme"
	stateFileName = "state.db"
)

// DefaultStatePath places the state file under the XDG config home, or
// ~/.config when XDG_CONFIG_HOME is unset. Without a home directory the file
// lands in the working directory.
func DefaultStatePath(getenv Getenv) string {
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return stateFileName
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appDirName, stateFileName)
}

// PrepareStatePath creates the directory that will hold the state file,
// readable by the current user only. In-memory state needs nothing.
func PrepareStatePath(path string) error {
	if path == MemoryState {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return nil
}
