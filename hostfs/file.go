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

package hostfs

import (
	"os"
	"time"

	"github.com/detailyang/go-fallocate"

	vfs "github.com/wasicore/vfs"
)

type openOptions struct {
	fs                                    *FS
	read, write, appendF, truncate, create bool
	createNew                             bool
}

func (o *openOptions) Read(v bool) vfs.OpenOptions      { o.read = v; return o }
func (o *openOptions) Write(v bool) vfs.OpenOptions     { o.write = v; return o }
func (o *openOptions) Append(v bool) vfs.OpenOptions    { o.appendF = v; return o }
func (o *openOptions) Truncate(v bool) vfs.OpenOptions  { o.truncate = v; return o }
func (o *openOptions) Create(v bool) vfs.OpenOptions    { o.create = v; return o }
func (o *openOptions) CreateNew(v bool) vfs.OpenOptions { o.createNew = v; return o }

func (o *openOptions) Open(p string) (vfs.VirtualFile, error) {
	flags := 0
	switch {
	case o.read && o.write:
		flags = os.O_RDWR
	case o.write:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}
	if o.appendF {
		flags |= os.O_APPEND
	}
	if o.truncate {
		flags |= os.O_TRUNC
	}
	if o.createNew {
		flags |= os.O_CREATE | os.O_EXCL
	} else if o.create {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(o.fs.resolve(p), flags, 0o644)
	if err != nil {
		return nil, toFsError(err)
	}
	return &hostFile{f: f}, nil
}

// hostFile wraps *os.File to satisfy vfs.VirtualFile, preallocating
// extents with go-fallocate when SetLen grows the file rather than
// leaving a sparse hole, which matters for a WASI guest that expects
// ftruncate-then-write to behave like a real POSIX filesystem under
// disk-pressure accounting.
type hostFile struct {
	f *os.File
}

func (h *hostFile) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h *hostFile) Write(p []byte) (int, error) { return h.f.Write(p) }
func (h *hostFile) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}

func (h *hostFile) Size() uint64 {
	fi, err := h.f.Stat()
	if err != nil {
		return 0
	}
	return uint64(fi.Size())
}

func (h *hostFile) LastAccessed() time.Time {
	fi, err := h.f.Stat()
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

func (h *hostFile) LastModified() time.Time {
	fi, err := h.f.Stat()
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

func (h *hostFile) CreatedTime() time.Time {
	return h.LastModified()
}

func (h *hostFile) SetLen(size uint64) error {
	fi, err := h.f.Stat()
	if err != nil {
		return toFsError(err)
	}
	if err := h.f.Truncate(int64(size)); err != nil {
		return toFsError(err)
	}
	if uint64(fi.Size()) < size {
		if err := fallocate.Fallocate(h.f, 0, int64(size)); err != nil {
			// Not fatal: fallocate is an optimization (some filesystems
			// don't support it); the truncate above already established
			// the logical length.
			vfs.Debugf("hostfs: fallocate failed, falling back to sparse file: %v", err)
		}
	}
	return nil
}

func (h *hostFile) Unlink() error {
	return toFsError(os.Remove(h.f.Name()))
}

func (h *hostFile) BytesAvailableRead() (int64, bool) {
	cur, err := h.f.Seek(0, os.SEEK_CUR)
	if err != nil {
		return 0, false
	}
	fi, err := h.f.Stat()
	if err != nil {
		return 0, false
	}
	return fi.Size() - cur, true
}

func (h *hostFile) Sync() error { return toFsError(h.f.Sync()) }

func (h *hostFile) IsOpen() bool { return h.f != nil }
