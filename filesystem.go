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

// Package vfs defines the Filesystem contract that every backing store
// (in-memory, host directory, overlay, ...) implements, and the error
// taxonomies that flow across it.
package vfs

import (
	"io"
	"time"
)

// FileType mirrors the filetype field of a WASI Filestat.
type FileType int

const (
	UnknownFileType FileType = iota
	RegularFile
	Directory
	Symlink
	CharDevice
	BlockDevice
	Socket
	Pipe
)

// Metadata is the subset of POSIX stat(2) fields the core tracks.
type Metadata struct {
	FileType   FileType
	Len        uint64
	AccessedAt time.Time
	ModifiedAt time.Time
	CreatedAt  time.Time
}

func (m Metadata) IsDir() bool  { return m.FileType == Directory }
func (m Metadata) IsFile() bool { return m.FileType == RegularFile }

// DirEntry is a single result of Filesystem.ReadDir.
type DirEntry struct {
	Name     string
	Metadata Metadata
}

// OpenOptionsConfig mirrors std::fs::OpenOptions: which capabilities the
// caller is requesting of Filesystem.NewOpenOptions().Open.
type OpenOptionsConfig struct {
	Read      bool
	Write     bool
	Append    bool
	Truncate  bool
	Create    bool
	CreateNew bool
}

// RequiresMutation reports whether satisfying this config can mutate the
// backing store, even transitively (via file creation). The overlay (C3)
// consults this to decide whether an open against a secondary must be
// rejected with PermissionDenied.
func (c OpenOptionsConfig) RequiresMutation(existsAlready bool) bool {
	if c.Write || c.Append || c.Truncate || c.CreateNew {
		return true
	}
	if c.Create && !existsAlready {
		return true
	}
	return false
}

// OpenOptions is the builder returned by Filesystem.NewOpenOptions.
type OpenOptions interface {
	Read(bool) OpenOptions
	Write(bool) OpenOptions
	Append(bool) OpenOptions
	Truncate(bool) OpenOptions
	Create(bool) OpenOptions
	CreateNew(bool) OpenOptions
	Open(path string) (VirtualFile, error)
}

// VirtualFile is the contract every opened file (real or synthetic:
// memory-backed, host-backed, or a Pipe endpoint) must satisfy.
type VirtualFile interface {
	io.Reader
	io.Writer
	io.Seeker

	Size() uint64
	LastAccessed() time.Time
	LastModified() time.Time
	CreatedTime() time.Time
	SetLen(uint64) error
	Unlink() error

	// BytesAvailableRead reports how many bytes can be read without
	// blocking, and whether the count is exact (false means "at least").
	BytesAvailableRead() (int64, bool)

	// Sync flushes any buffered state to the backing store.
	Sync() error

	// IsOpen reports whether the file handle is still usable.
	IsOpen() bool
}

// Filesystem is the uniform contract (C1) implemented by every backing
// store: in-memory (vfs/memfs), host directory (vfs/hostfs), the union of
// several (vfs/overlay), or a panicking placeholder (FallbackFileSystem).
type Filesystem interface {
	ReadDir(path string) ([]DirEntry, error)
	CreateDir(path string) error
	RemoveDir(path string) error
	Rename(from, to string) error
	Metadata(path string) (Metadata, error)
	SymlinkMetadata(path string) (Metadata, error)
	ReadLink(path string) (string, error)
	RemoveFile(path string) error
	NewOpenOptions() OpenOptions
}
