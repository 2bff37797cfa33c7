// Package filex places downloaded files on the local disk.
package filex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const maxAttempts = 100

// EnsureSubDir creates dirName under the working directory if needed and
// returns its absolute path.
func EnsureSubDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// CreateUnique creates a new file named name in dir without overwriting:
// "a.txt" becomes "a (1).txt", "a (2).txt" and so on. Only the base of name
// is used.
func CreateUnique(dir, name string) (*os.File, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "download"
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; i <= maxAttempts; i++ {
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	return nil, fmt.Errorf("no free name for %s in %s", name, dir)
}
