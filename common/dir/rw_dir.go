// Copyright 2025 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package dir

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// CFS is the filesystem used by the helpers of this package. Tests may swap it for an in-memory one.
var CFS afero.Fs = afero.NewOsFs()

func MustExist(path ...string) {
	const perm = 0764 // user rwx, group rw, other r
	for _, p := range path {
		exist, err := Exist(p)
		if err != nil {
			panic(err)
		}
		if exist {
			continue
		}
		if err := CFS.MkdirAll(p, perm); err != nil {
			panic(err)
		}
	}
}

func Exist(path string) (exists bool, err error) {
	_, err = CFS.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// CreateExclusive creates a new file for writing and fails with os.ErrExist if it is already there.
func CreateExclusive(name string) (afero.File, error) {
	return CFS.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

// CreateTemp creates a temporary file next to `file`, named with its base as prefix.
func CreateTemp(file string) (afero.File, error) {
	directory := filepath.Dir(file)
	filename := filepath.Base(file)
	pattern := filename + ".*.tmp"
	return afero.TempFile(CFS, directory, pattern)
}

// WriteFileAtomic writes data into a temporary sibling of name, syncs it and renames it into
// place. Readers see either the old file or the complete new one.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) (err error) {
	tmp, err := CreateTemp(name)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = CFS.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = CFS.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return CFS.Rename(tmp.Name(), name)
}

func ListFiles(dir string, extensions ...string) (paths []string, err error) {
	files, err := afero.ReadDir(CFS, dir)
	if err != nil {
		return nil, err
	}

	paths = make([]string, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if strings.HasPrefix(f.Name(), ".") {
			continue
		}
		match := false
		if len(extensions) == 0 {
			match = true
		}
		for _, ext := range extensions {
			if filepath.Ext(f.Name()) == ext {
				match = true
			}
		}
		if !match {
			continue
		}
		paths = append(paths, filepath.Join(dir, f.Name()))
	}
	return paths, nil
}

// RemoveFiles removes every given path, ignoring the ones that do not exist, and returns the first failure.
func RemoveFiles(paths ...string) error {
	var firstErr error
	for _, p := range paths {
		if err := CFS.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
