package telemetry

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.graphmem/logs/),
// falling back to a temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".graphmem", "logs")
	}
	return filepath.Join(home, ".graphmem", "logs")
}

// DefaultLogPath returns the default engine log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "graphmem.log")
}

// EnsureLogDir creates the log directory if it doesn't already exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
