// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hostfs is a vfs.Filesystem backed by a real host directory,
// the mirror of samples/roloopbackfs generalized from read-only to
// read-write and from a kernel FUSE mount to an in-process Filesystem.
package hostfs

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	vfs "github.com/wasicore/vfs"
)

// FS roots every operation at a fixed host directory; paths passed in
// are treated as relative to that root, matching the preopen model
// (SPEC_FULL.md §4.8): a resolver never hands hostfs an absolute host
// path, only the portion relative to the preopen's root.
type FS struct {
	Root string
}

// New constructs a Filesystem rooted at root. root must already exist
// and be a directory.
func New(root string) (*FS, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, toFsError(err)
	}
	if !fi.IsDir() {
		return nil, vfs.BaseNotDirectory
	}
	return &FS{Root: root}, nil
}

func (fs *FS) resolve(p string) string {
	return filepath.Join(fs.Root, filepath.FromSlash(p))
}

func (fs *FS) ReadDir(p string) ([]vfs.DirEntry, error) {
	entries, err := os.ReadDir(fs.resolve(p))
	if err != nil {
		return nil, toFsError(err)
	}
	out := make([]vfs.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, vfs.DirEntry{Name: e.Name(), Metadata: metadataFromInfo(info)})
	}
	return out, nil
}

func (fs *FS) CreateDir(p string) error {
	err := os.Mkdir(fs.resolve(p), 0o755)
	return toFsError(err)
}

func (fs *FS) RemoveDir(p string) error {
	err := os.Remove(fs.resolve(p))
	return toFsError(err)
}

func (fs *FS) Rename(from, to string) error {
	err := os.Rename(fs.resolve(from), fs.resolve(to))
	return toFsError(err)
}

func (fs *FS) Metadata(p string) (vfs.Metadata, error) {
	info, err := os.Stat(fs.resolve(p))
	if err != nil {
		return vfs.Metadata{}, toFsError(err)
	}
	return metadataFromInfo(info), nil
}

func (fs *FS) SymlinkMetadata(p string) (vfs.Metadata, error) {
	info, err := os.Lstat(fs.resolve(p))
	if err != nil {
		return vfs.Metadata{}, toFsError(err)
	}
	return metadataFromInfo(info), nil
}

func (fs *FS) ReadLink(p string) (string, error) {
	target, err := os.Readlink(fs.resolve(p))
	if err != nil {
		return "", toFsError(err)
	}
	return target, nil
}

func (fs *FS) RemoveFile(p string) error {
	err := os.Remove(fs.resolve(p))
	return toFsError(err)
}

func (fs *FS) NewOpenOptions() vfs.OpenOptions {
	return &openOptions{fs: fs}
}

func metadataFromInfo(info os.FileInfo) vfs.Metadata {
	ft := vfs.RegularFile
	switch {
	case info.IsDir():
		ft = vfs.Directory
	case info.Mode()&os.ModeSymlink != 0:
		ft = vfs.Symlink
	case info.Mode()&os.ModeCharDevice != 0:
		ft = vfs.CharDevice
	case info.Mode()&os.ModeDevice != 0:
		ft = vfs.BlockDevice
	}

	m := vfs.Metadata{
		FileType:   ft,
		Len:        uint64(info.Size()),
		ModifiedAt: info.ModTime(),
		AccessedAt: info.ModTime(),
		CreatedAt:  info.ModTime(),
	}

	// golang.org/x/sys/unix exposes the finer-grained atim/ctim fields a
	// plain os.FileInfo does not.
	if st, ok := info.Sys().(*unix.Stat_t); ok {
		m.AccessedAt = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		m.ModifiedAt = time.Unix(st.Mtim.Sec, st.Mtim.Nsec)
		m.CreatedAt = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return m
}

func toFsError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case os.IsNotExist(err):
		return vfs.EntryNotFound
	case os.IsPermission(err):
		return vfs.PermissionDenied
	case os.IsExist(err):
		return vfs.AlreadyExists
	}
	if err == io.EOF {
		return err
	}
	return vfs.Io
}
