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

// Package memfs is an in-memory vfs.Filesystem, used as the writable
// sandbox primary of an overlay and as a throwaway secondary in tests.
// It stores its tree as path-keyed nodes rather than the numeric inode
// table a kernel-facing filesystem would need, since here the caller
// (vfs/resolver) owns inode numbering; memfs only needs to answer
// "what's at this path".
package memfs

import (
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/timeutil"

	vfs "github.com/wasicore/vfs"
)

type kind int

const (
	kindFile kind = iota
	kindDir
	kindSymlink
)

// node is the memfs analogue of samples/memfs's inode: one mutex-guarded
// record per filesystem entry, stamped by a timeutil.Clock.
type node struct {
	clock timeutil.Clock

	mu sync.RWMutex // GUARDED_BY below

	k        kind
	contents []byte
	target   string
	entries  map[string]*node

	accessedAt, modifiedAt, createdAt int64 // unix nanos; read under mu
}

func newNode(clock timeutil.Clock, k kind) *node {
	now := clock.Now().UnixNano()
	n := &node{clock: clock, k: k, accessedAt: now, modifiedAt: now, createdAt: now}
	if k == kindDir {
		n.entries = make(map[string]*node)
	}
	return n
}

func (n *node) checkInvariants() {
	if n.k != kindDir && len(n.entries) != 0 {
		panic("memfs: non-directory node has entries")
	}
	if n.k != kindFile && len(n.contents) != 0 {
		panic("memfs: non-file node has contents")
	}
	if n.k != kindSymlink && n.target != "" {
		panic("memfs: non-symlink node has a target")
	}
}

func (n *node) metadataLocked() vfs.Metadata {
	ft := vfs.RegularFile
	switch n.k {
	case kindDir:
		ft = vfs.Directory
	case kindSymlink:
		ft = vfs.Symlink
	}
	return vfs.Metadata{
		FileType:   ft,
		Len:        uint64(len(n.contents)),
		AccessedAt: time.Unix(0, n.accessedAt),
		ModifiedAt: time.Unix(0, n.modifiedAt),
		CreatedAt:  time.Unix(0, n.createdAt),
	}
}

// FS is an in-memory Filesystem.
type FS struct {
	clock timeutil.Clock

	mu   sync.Mutex // guards the tree shape (create/remove/rename); GUARDED_BY below
	root *node
}

// New constructs an empty in-memory filesystem rooted at "/".
func New(clock timeutil.Clock) *FS {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	return &FS{clock: clock, root: newNode(clock, kindDir)}
}

func splitPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// walk returns the node at components, and the node's parent plus its
// own name (for callers that need to mutate the parent's entries map).
func (fs *FS) walk(components []string) (n, parent *node, name string, err error) {
	cur := fs.root
	var prev *node
	var prevName string

	for i, c := range components {
		prev = cur
		prevName = c

		cur.mu.RLock()
		if cur.k != kindDir {
			cur.mu.RUnlock()
			return nil, nil, "", vfs.BaseNotDirectory
		}
		child, ok := cur.entries[c]
		cur.mu.RUnlock()

		if !ok {
			return nil, nil, "", vfs.EntryNotFound
		}
		cur = child
		_ = i
	}
	return cur, prev, prevName, nil
}

func (fs *FS) lookup(p string) (*node, error) {
	comps := splitPath(p)
	if len(comps) == 0 {
		return fs.root, nil
	}
	n, _, _, err := fs.walk(comps)
	return n, err
}

func (fs *FS) lookupParent(p string) (parent *node, name string, err error) {
	comps := splitPath(p)
	if len(comps) == 0 {
		return nil, "", vfs.EntryNotFound
	}
	name = comps[len(comps)-1]
	parentComps := comps[:len(comps)-1]
	if len(parentComps) == 0 {
		return fs.root, name, nil
	}
	n, _, _, err := fs.walk(parentComps)
	if err != nil {
		return nil, "", err
	}
	if n.k != kindDir {
		return nil, "", vfs.BaseNotDirectory
	}
	return n, name, nil
}

func (fs *FS) ReadDir(p string) ([]vfs.DirEntry, error) {
	n, err := fs.lookup(p)
	if err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.k != kindDir {
		return nil, vfs.BaseNotDirectory
	}

	out := make([]vfs.DirEntry, 0, len(n.entries))
	for name, child := range n.entries {
		child.mu.RLock()
		out = append(out, vfs.DirEntry{Name: name, Metadata: child.metadataLocked()})
		child.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (fs *FS) CreateDir(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.lookupParent(p)
	if err != nil {
		return err
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if parent.k != kindDir {
		return vfs.BaseNotDirectory
	}
	if _, exists := parent.entries[name]; exists {
		return vfs.AlreadyExists
	}
	parent.entries[name] = newNode(fs.clock, kindDir)
	parent.modifiedAt = fs.clock.Now().UnixNano()
	return nil
}

func (fs *FS) RemoveDir(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.lookupParent(p)
	if err != nil {
		return err
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()

	child, ok := parent.entries[name]
	if !ok {
		return vfs.EntryNotFound
	}
	child.mu.RLock()
	isDir := child.k == kindDir
	nonEmpty := len(child.entries) != 0
	child.mu.RUnlock()
	if !isDir {
		return vfs.NotAFile
	}
	if nonEmpty {
		return vfs.DirectoryNotEmpty
	}
	delete(parent.entries, name)
	return nil
}

func (fs *FS) RemoveFile(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.lookupParent(p)
	if err != nil {
		return err
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()

	child, ok := parent.entries[name]
	if !ok {
		return vfs.EntryNotFound
	}
	child.mu.RLock()
	isDir := child.k == kindDir
	child.mu.RUnlock()
	if isDir {
		return vfs.NotAFile
	}
	delete(parent.entries, name)
	return nil
}

func (fs *FS) Rename(from, to string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fromParent, fromName, err := fs.lookupParent(from)
	if err != nil {
		return err
	}
	toParent, toName, err := fs.lookupParent(to)
	if err != nil {
		return err
	}

	fromParent.mu.Lock()
	child, ok := fromParent.entries[fromName]
	if !ok {
		fromParent.mu.Unlock()
		return vfs.EntryNotFound
	}
	delete(fromParent.entries, fromName)
	fromParent.mu.Unlock()

	toParent.mu.Lock()
	toParent.entries[toName] = child
	toParent.mu.Unlock()
	return nil
}

func (fs *FS) Metadata(p string) (vfs.Metadata, error) {
	n, err := fs.lookup(p)
	if err != nil {
		return vfs.Metadata{}, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.metadataLocked(), nil
}

// SymlinkMetadata does not follow a trailing symlink; since memfs nodes
// are not themselves chased through the tree (that is the resolver's
// job), this is identical to Metadata here.
func (fs *FS) SymlinkMetadata(p string) (vfs.Metadata, error) {
	return fs.Metadata(p)
}

func (fs *FS) ReadLink(p string) (string, error) {
	n, err := fs.lookup(p)
	if err != nil {
		return "", err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.k != kindSymlink {
		return "", vfs.Inval
	}
	return n.target, nil
}

func (fs *FS) NewOpenOptions() vfs.OpenOptions {
	return &openOptions{fs: fs}
}

// Symlink creates a symlink node at p pointing at target. Not part of
// the Filesystem interface (symlinks are created via a dedicated
// resolver-level operation in most WASI adapters) but exposed for tests
// and for hostfs-style embedders that want parity.
func (fs *FS) Symlink(p, target string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent, name, err := fs.lookupParent(p)
	if err != nil {
		return err
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if _, exists := parent.entries[name]; exists {
		return vfs.AlreadyExists
	}
	n := newNode(fs.clock, kindSymlink)
	n.target = target
	parent.entries[name] = n
	return nil
}

