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


package datadir

import (
	"errors"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/erigontech/efpostings/common/dir"
)

var ErrDataDirLocked = errors.New("datadir already used by another process")

// EAGAIN, EWOULDBLOCK on linux and darwin, ERROR_SHARING_VIOLATION on windows
var lockedErrNos = map[syscall.Errno]bool{11: true, 32: true, 35: true}

// Dirs is the folder layout of one compressed index destination: bitstreams, lexicons and
// properties live in DataDir, spill files of the bit caches live in Tmp.
type Dirs struct {
	DataDir string
	Tmp     string
}

// New resolves dataDir to an absolute path and creates it along with its temp dir.
func New(dataDir string) Dirs {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		panic(err)
	}
	dirs := Dirs{DataDir: abs, Tmp: filepath.Join(abs, "temp")}
	dir.MustExist(dirs.DataDir, dirs.Tmp)
	return dirs
}

// Lock takes the LOCK file of DataDir without waiting. It fails with ErrDataDirLocked while
// another holder, in this process or another one, has it.
func (dirs Dirs) Lock() (*flock.Flock, error) {
	l := flock.New(filepath.Join(dirs.DataDir, "LOCK"))
	locked, err := l.TryLock()
	if err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) && lockedErrNos[errno] {
			return nil, ErrDataDirLocked
		}
		return nil, err
	}
	if !locked {
		return nil, ErrDataDirLocked
	}
	return l, nil
}

// RemoveStaleTmp deletes the spill files a crashed run left in Tmp. Callers hold the lock.
func (dirs Dirs) RemoveStaleTmp() (int, error) {
	files, err := dir.ListFiles(dirs.Tmp)
	if err != nil {
		return 0, err
	}
	return len(files), dir.RemoveFiles(files...)
}
