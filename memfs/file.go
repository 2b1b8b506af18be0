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

package memfs

import (
	"io"
	"time"

	vfs "github.com/wasicore/vfs"
)

type openOptions struct {
	fs                                     *FS
	read, write, append, truncate, create  bool
	createNew                              bool
}

func (o *openOptions) Read(v bool) vfs.OpenOptions      { o.read = v; return o }
func (o *openOptions) Write(v bool) vfs.OpenOptions     { o.write = v; return o }
func (o *openOptions) Append(v bool) vfs.OpenOptions    { o.append = v; return o }
func (o *openOptions) Truncate(v bool) vfs.OpenOptions  { o.truncate = v; return o }
func (o *openOptions) Create(v bool) vfs.OpenOptions    { o.create = v; return o }
func (o *openOptions) CreateNew(v bool) vfs.OpenOptions { o.createNew = v; return o }

func (o *openOptions) Open(p string) (vfs.VirtualFile, error) {
	fs := o.fs

	n, err := fs.lookup(p)
	exists := err == nil

	if !exists && err != vfs.EntryNotFound {
		return nil, err
	}

	if exists && o.createNew {
		return nil, vfs.AlreadyExists
	}

	if !exists {
		if !o.create && !o.createNew {
			return nil, vfs.EntryNotFound
		}
		fs.mu.Lock()
		parent, name, perr := fs.lookupParent(p)
		if perr != nil {
			fs.mu.Unlock()
			return nil, perr
		}
		parent.mu.Lock()
		if existing, ok := parent.entries[name]; ok {
			// Lost a create race; use the winner.
			n = existing
		} else {
			n = newNode(fs.clock, kindFile)
			parent.entries[name] = n
		}
		parent.mu.Unlock()
		fs.mu.Unlock()
	}

	n.mu.Lock()
	if n.k != kindFile {
		n.mu.Unlock()
		return nil, vfs.NotAFile
	}
	if o.truncate {
		n.contents = n.contents[:0]
		n.modifiedAt = fs.clock.Now().UnixNano()
	}
	n.mu.Unlock()

	return &memFile{fs: fs, n: n, appendMode: o.append}, nil
}

// memFile is the VirtualFile returned by openOptions.Open. Its own
// offset is private per-open-handle state (as in the original's
// WasiFile: the offset lives on the FD table entry, not here, but a
// concrete VirtualFile still needs an internal cursor for plain
// io.Reader/io.Writer use outside the FD table, e.g. direct host-side
// driving of stdio).
type memFile struct {
	fs         *FS
	n          *node
	appendMode bool
	offset     int64
}

func (f *memFile) Read(p []byte) (int, error) {
	f.n.mu.RLock()
	defer f.n.mu.RUnlock()

	if f.offset >= int64(len(f.n.contents)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.contents[f.offset:])
	f.offset += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()

	off := f.offset
	if f.appendMode {
		off = int64(len(f.n.contents))
	}

	needed := off + int64(len(p))
	if int64(len(f.n.contents)) < needed {
		padding := make([]byte, needed-int64(len(f.n.contents)))
		f.n.contents = append(f.n.contents, padding...)
	}
	n := copy(f.n.contents[off:], p)
	f.offset = off + int64(n)
	f.n.modifiedAt = f.fs.clock.Now().UnixNano()
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	f.n.mu.RLock()
	size := int64(len(f.n.contents))
	f.n.mu.RUnlock()

	switch whence {
	case io.SeekStart:
		f.offset = offset
	case io.SeekCurrent:
		f.offset += offset
	case io.SeekEnd:
		f.offset = size + offset
	}
	if f.offset < 0 {
		f.offset = 0
	}
	return f.offset, nil
}

func (f *memFile) Size() uint64 {
	f.n.mu.RLock()
	defer f.n.mu.RUnlock()
	return uint64(len(f.n.contents))
}

func (f *memFile) LastAccessed() time.Time {
	f.n.mu.RLock()
	defer f.n.mu.RUnlock()
	return time.Unix(0, f.n.accessedAt)
}

func (f *memFile) LastModified() time.Time {
	f.n.mu.RLock()
	defer f.n.mu.RUnlock()
	return time.Unix(0, f.n.modifiedAt)
}

func (f *memFile) CreatedTime() time.Time {
	f.n.mu.RLock()
	defer f.n.mu.RUnlock()
	return time.Unix(0, f.n.createdAt)
}

func (f *memFile) SetLen(size uint64) error {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()

	n := int(size)
	if n <= len(f.n.contents) {
		f.n.contents = f.n.contents[:n]
	} else {
		padding := make([]byte, n-len(f.n.contents))
		f.n.contents = append(f.n.contents, padding...)
	}
	f.n.modifiedAt = f.fs.clock.Now().UnixNano()
	return nil
}

func (f *memFile) Unlink() error { return nil }

func (f *memFile) BytesAvailableRead() (int64, bool) {
	f.n.mu.RLock()
	defer f.n.mu.RUnlock()
	return int64(len(f.n.contents)) - f.offset, true
}

func (f *memFile) Sync() error { return nil }

func (f *memFile) IsOpen() bool { return true }
