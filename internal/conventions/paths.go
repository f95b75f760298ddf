package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default valtask data directory name (relative to home).
	DefaultDataDir = ".valtask"
	// DBFile is the SQLite database filename inside the data directory.
	DBFile = "valtask.db"
	// EnvPrefix is the prefix of the environment variables that set flags.
	EnvPrefix = "VALTASK"
)

// DBPath returns the default database path for a home directory.
func DBPath(home string) string {
	return filepath.Join(home, DefaultDataDir, DBFile)
}
