package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDataDirectory is used by BuildFileName when no data directory is given.
const DefaultDataDirectory = "./data"

// ErrFileNotFound is returned when a file cannot be located.
var ErrFileNotFound = errors.New("file not found")

// BuildSimpleFileName appends extension unless basename already carries it.
// Names with a directory component are made absolute.
func BuildSimpleFileName(basename, extension string) string {
	if !strings.HasSuffix(basename, extension) {
		basename += extension
	}
	if hasDir(basename) {
		return absPath(basename)
	}
	return basename
}

// BuildFileName places a bare basename under dataDir/sub, adding extension if
// missing. A basename with a directory component is used as is.
func BuildFileName(basename, dataDir, sub, extension string) string {
	if hasDir(basename) {
		return absPath(basename)
	}
	if dataDir == "" {
		dataDir = DefaultDataDirectory
	}
	if sub != "" {
		dataDir = filepath.Join(dataDir, sub)
	}
	if !strings.HasSuffix(basename, extension) {
		basename += extension
	}
	return filepath.Join(dataDir, basename)
}

// FindFileInPath returns the first existing searchPath/filename. A filename
// with a directory component ignores the search path.
func FindFileInPath(filename string, searchPath []string) (string, error) {
	if hasDir(filename) {
		if isFile(filename) {
			return filename, nil
		}
		return "", fmt.Errorf("%w: %s does not exist", ErrFileNotFound, filename)
	}

	for _, dir := range searchPath {
		candidate := filepath.Join(dir, filename)
		if isFile(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: unable to locate %s in search path %v", ErrFileNotFound, filename, searchPath)
}

func hasDir(name string) bool {
	return filepath.Dir(name) != "." || strings.HasPrefix(name, "./")
}

func absPath(name string) string {
	abs, err := filepath.Abs(name)
	if err != nil {
		return name
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func isFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}
