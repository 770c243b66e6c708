package job

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

const sessionFolderLayout = "20060102_150405"

// NewSessionFolder creates and returns a per-job output directory under
// downloadDir, named YYYYMMDD_HHMMSS.
func NewSessionFolder(downloadDir string, now time.Time) (string, error) {
	name := now.Format(sessionFolderLayout)
	path := filepath.Join(downloadDir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// isSessionFolderName reports whether name matches YYYYMMDD_HHMMSS: 15
// characters with an underscore at position 8.
func isSessionFolderName(name string) bool {
	return len(name) == 15 && name[8] == '_'
}

// LatestSessionFolder lists downloadDir, filters to session-folder-shaped
// names, sorts descending, and returns the first entry. Returns "" if none
// match.
func LatestSessionFolder(downloadDir string) (string, error) {
	entries, err := os.ReadDir(downloadDir)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && isSessionFolderName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names[0], nil
}
