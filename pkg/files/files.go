// Package files wraps local filesystem access behind afero so tests can run
// against an in-memory filesystem.
package files

import (
	"log"
	"os/user"
	"path/filepath"

	"github.com/spf13/afero"

	breverrors "github.com/anaconda/sisyphus/pkg/errors"
)

func GetHomeDir() string {
	usr, err := user.Current()
	if err != nil {
		log.Fatal(err)
	}
	return usr.HomeDir
}

func Exists(fs afero.Fs, path string) (bool, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return false, breverrors.WrapAndTrace(err)
	}
	return exists, nil
}

func EnsureDir(fs afero.Fs, path string) error {
	err := fs.MkdirAll(path, 0o755)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

// RemoveAllIfExists deletes a directory tree, tolerating its absence.
func RemoveAllIfExists(fs afero.Fs, path string) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	if !exists {
		return nil
	}
	err = fs.RemoveAll(path)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}

func WriteString(fs afero.Fs, path string, content string) error {
	err := EnsureDir(fs, filepath.Dir(path))
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	err = afero.WriteFile(fs, path, []byte(content), 0o644)
	if err != nil {
		return breverrors.WrapAndTrace(err)
	}
	return nil
}
