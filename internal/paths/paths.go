package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// Well-known names under an analyzed project root.
const (
	// WorkspaceDirName is the per-project state directory
	WorkspaceDirName = ".leviatan"
	// SnapshotFileName is the durable analysis snapshot in the project root
	SnapshotFileName = "insightsproject.ia"
	// ConfigFileName is the tool configuration inside the workspace dir
	ConfigFileName = "config.json"
	// AnalyzersFileName is the remote analyzer registry inside the workspace dir
	AnalyzersFileName = "analyzers.toml"
	// SessionsDBFileName is the session/action sqlite database
	SessionsDBFileName = "sessions.db"
	// JobsDBFileName is the background run sqlite database
	JobsDBFileName = "jobs.db"
	// LogsSubdir holds per-subsystem log files
	LogsSubdir = "logs"
	// DaemonPIDFileName is written by serve mode
	DaemonPIDFileName = "leviatan.pid"
)

// WorkspaceDir returns the .leviatan directory for a project root
func WorkspaceDir(projectRoot string) string {
	return filepath.Join(projectRoot, WorkspaceDirName)
}

// SnapshotPath returns the insights snapshot path for a project root
func SnapshotPath(projectRoot string) string {
	return filepath.Join(projectRoot, SnapshotFileName)
}

// ConfigPath returns the config file path for a project root
func ConfigPath(projectRoot string) string {
	return filepath.Join(WorkspaceDir(projectRoot), ConfigFileName)
}

// AnalyzersPath returns the analyzer registry path for a project root
func AnalyzersPath(projectRoot string) string {
	return filepath.Join(WorkspaceDir(projectRoot), AnalyzersFileName)
}

// SessionsDBPath returns the sessions database path for a project root
func SessionsDBPath(projectRoot string) string {
	return filepath.Join(WorkspaceDir(projectRoot), SessionsDBFileName)
}

// JobsDBPath returns the jobs database path for a project root
func JobsDBPath(projectRoot string) string {
	return filepath.Join(WorkspaceDir(projectRoot), JobsDBFileName)
}

// LogsDir returns the log directory for a project root
func LogsDir(projectRoot string) string {
	return filepath.Join(WorkspaceDir(projectRoot), LogsSubdir)
}

// PIDPath returns the serve-mode PID file path for a project root
func PIDPath(projectRoot string) string {
	return filepath.Join(WorkspaceDir(projectRoot), DaemonPIDFileName)
}

// CanonicalizePath converts an absolute path to a project-relative canonical path
// - Resolves symlinks to real paths
// - Makes path relative to the project root
// - Converts backslashes to forward slashes
// - Returns project-relative path with forward slashes
func CanonicalizePath(absolutePath string, projectRoot string) (string, error) {
	// Resolve symlinks
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		// If the file doesn't exist yet, use the path as-is
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	// Make path relative to the project root
	rootResolved, err := filepath.EvalSymlinks(projectRoot)
	if err != nil {
		if os.IsNotExist(err) {
			rootResolved = projectRoot
		} else {
			return "", err
		}
	}

	relativePath, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}

	// Convert to forward slashes (platform independent)
	canonicalPath := filepath.ToSlash(relativePath)

	return canonicalPath, nil
}

// CanonicalAbs resolves symlinks and returns the absolute form of path.
// Used for symlink-cycle detection and as a stable key for per-project locks.
func CanonicalAbs(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = path
		} else {
			return "", err
		}
	}
	return filepath.Abs(resolved)
}

// IsWithinProject checks if a path is within the project root
func IsWithinProject(path string, projectRoot string) bool {
	canonical, err := CanonicalizePath(path, projectRoot)
	if err != nil {
		return false
	}

	// Path is outside the project if it starts with ..
	return !strings.HasPrefix(canonical, "..")
}

// NormalizePath normalizes a path by converting backslashes to forward slashes
// This is useful for paths that are already relative but need normalization
func NormalizePath(path string) string {
	return filepath.ToSlash(path)
}

// JoinProjectPath joins a project root with a canonical path
func JoinProjectPath(projectRoot string, canonicalPath string) string {
	// Ensure we use forward slashes in the canonical path
	normalizedPath := strings.ReplaceAll(canonicalPath, "\\", "/")
	// Convert to OS-specific path separator for joining
	parts := strings.Split(normalizedPath, "/")
	return filepath.Join(append([]string{projectRoot}, parts...)...)
}
