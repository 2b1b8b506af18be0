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

// Package fdtable implements the guest-visible file-descriptor table
// (C6): a map from FD number to (inode, rights, flags, offset, refcnt),
// with clone/close/fork semantics.
package fdtable

import (
	"sync/atomic"

	"github.com/jacobsa/syncutil"

	vfs "github.com/wasicore/vfs"
	"github.com/wasicore/vfs/inode"
)

// Rights is the WASI capability bitmask (§6.1 of SPEC_FULL.md).
type Rights uint64

const (
	RightFdDatasync Rights = 1 << iota
	RightFdRead
	RightFdSeek
	RightFdFdstatSetFlags
	RightFdSync
	RightFdTell
	RightFdWrite
	RightFdAdvise
	RightFdAllocate
	RightPathCreateDirectory
	RightPathCreateFile
	RightPathLinkSource
	RightPathLinkTarget
	RightPathOpen
	RightFdReaddir
	RightPathReadlink
	RightPathRenameSource
	RightPathRenameTarget
	RightPathFilestatGet
	RightPathFilestatSetSize
	RightPathFilestatSetTimes
	RightFdFilestatGet
	RightFdFilestatSetSize
	RightFdFilestatSetTimes
	RightPathSymlink
	RightPathRemoveDirectory
	RightPathUnlinkFile
	RightPollFdReadwrite
	RightSockShutdown
)

// ReadRights and WriteRights mirror the original's STDIN_DEFAULT_RIGHTS /
// STDOUT_DEFAULT_RIGHTS constants.
const (
	ReadRights  = RightFdDatasync | RightFdRead | RightFdSync | RightFdAdvise | RightFdFilestatGet | RightPollFdReadwrite
	WriteRights = RightFdDatasync | RightFdFdstatSetFlags | RightFdSync | RightFdWrite | RightFdAdvise | RightFdAllocate | RightFdFilestatGet | RightFdFilestatSetSize | RightFdFilestatSetTimes | RightPollFdReadwrite
)

// Fdflags is the WASI fdflags bitmask.
type Fdflags uint16

const (
	FdflagAppend Fdflags = 1 << iota
	FdflagDsync
	FdflagNonblock
	FdflagRsync
	FdflagSync
)

// OpenFlags mirrors the original's u16 open_flags bit layout.
type OpenFlags uint16

const (
	OpenRead     OpenFlags = 1
	OpenWrite    OpenFlags = 2
	OpenAppend   OpenFlags = 4
	OpenTruncate OpenFlags = 8
	OpenCreate   OpenFlags = 16
)

// Reserved FD numbers.
const (
	FDStdin  uint32 = 0
	FDStdout uint32 = 1
	FDStderr uint32 = 2
	FDRoot   uint32 = 3
	firstFD  uint32 = 4
)

// entry is the shared, per-handle FD record. Offset and RefCnt are
// pointer-shared across CloneFD/fork so that duplicated FDs observe the
// same cursor and the same liveness count, per SPEC_FULL.md §3's FD
// lifecycle.
type entry struct {
	Inode           inode.Handle
	Rights          Rights
	RightsInherit   Rights
	Flags           Fdflags
	OpenFlags       OpenFlags
	Offset          *uint64
	RefCnt          *int32
	isPreopen       bool
}

// Table is the FD table for one WasiFs (and, after fork, each of its
// descendants).
type Table struct {
	mu     syncutil.InvariantMutex // GUARDED_BY below
	fds    map[uint32]*entry
	nextFD uint32
}

// New constructs an empty table whose next allocation starts at
// firstFD (4); FDs 0-3 are reserved for stdio and the virtual root and
// must be installed explicitly with CreateFDExt.
func New() *Table {
	t := &Table{fds: make(map[uint32]*entry), nextFD: firstFD}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *Table) checkInvariants() {
	for fd := range t.fds {
		if fd >= t.nextFD && fd >= firstFD {
			panic("fdtable: live fd at or beyond nextFD watermark")
		}
	}
}

// CreateFD allocates the next available FD number for ino.
func (t *Table) CreateFD(rights, rightsInherit Rights, flags Fdflags, openFlags OpenFlags, ino inode.Handle) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.nextFD
	t.nextFD++
	t.installLocked(fd, rights, rightsInherit, flags, openFlags, ino)
	return fd
}

// CreateFDExt installs ino at a caller-chosen fd (used for stdio, the
// root, and fork's FD-number-preserving duplication).
func (t *Table) CreateFDExt(fd uint32, rights, rightsInherit Rights, flags Fdflags, openFlags OpenFlags, ino inode.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.installLocked(fd, rights, rightsInherit, flags, openFlags, ino)
	if fd >= t.nextFD {
		t.nextFD = fd + 1
	}
}

func (t *Table) installLocked(fd uint32, rights, rightsInherit Rights, flags Fdflags, openFlags OpenFlags, ino inode.Handle) {
	off := uint64(0)
	rc := int32(1)
	t.fds[fd] = &entry{
		Inode:         ino,
		Rights:        rights,
		RightsInherit: rightsInherit,
		Flags:         flags,
		OpenFlags:     openFlags,
		Offset:        &off,
		RefCnt:        &rc,
	}
}

// MarkPreopen records that fd anchors a preopened directory, so Close
// knows to also remove it from the preopen list.
func (t *Table) MarkPreopen(fd uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.fds[fd]; ok {
		e.isPreopen = true
	}
}

// Get returns the inode and capability state for fd.
func (t *Table) Get(fd uint32) (ino inode.Handle, rights, rightsInherit Rights, flags Fdflags, openFlags OpenFlags, offset *uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.fds[fd]
	if !ok {
		return inode.Handle{}, 0, 0, 0, 0, nil, vfs.Badf
	}
	return e.Inode, e.Rights, e.RightsInherit, e.Flags, e.OpenFlags, e.Offset, nil
}

// GetInode is a convenience accessor returning just the inode handle.
func (t *Table) GetInode(fd uint32) (inode.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.fds[fd]
	if !ok {
		return inode.Handle{}, vfs.Badf
	}
	return e.Inode, nil
}

// CloneFD issues a new FD pointing at the same inode as fd, sharing the
// Offset and RefCnt cells, and bumping RefCnt.
func (t *Table) CloneFD(fd uint32) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.fds[fd]
	if !ok {
		return 0, vfs.Badf
	}
	newFD := t.nextFD
	t.nextFD++
	atomic.AddInt32(e.RefCnt, 1)
	clone := *e
	clone.isPreopen = false
	t.fds[newFD] = &clone
	return newFD, nil
}

// CloseResult reports what CloseFD observed. fdtable holds neither the
// arena nor the backing filesystem, so it performs no inode-level action
// itself.
type CloseResult struct {
	// LastRef is true when this was the final reference to Inode.
	LastRef   bool
	Inode     inode.Handle
	WasPreopen bool
}

// CloseFD decrements the FD's shared ref count and removes fd from the
// table. It does not act on the inode; CloseResult.LastRef reports
// whether this was the last reference to it.
func (t *Table) CloseFD(fd uint32) (CloseResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.fds[fd]
	if !ok {
		return CloseResult{}, vfs.Badf
	}
	delete(t.fds, fd)

	remaining := atomic.AddInt32(e.RefCnt, -1)
	return CloseResult{
		LastRef:    remaining == 0,
		Inode:      e.Inode,
		WasPreopen: e.isPreopen,
	}, nil
}

// CloseAll closes every live FD, ignoring individual errors (mirrors
// close_all in the original, which is best-effort teardown).
func (t *Table) CloseAll() []CloseResult {
	t.mu.Lock()
	fds := make([]uint32, 0, len(t.fds))
	for fd := range t.fds {
		fds = append(fds, fd)
	}
	t.mu.Unlock()

	var results []CloseResult
	for _, fd := range fds {
		if r, err := t.CloseFD(fd); err == nil {
			results = append(results, r)
		}
	}
	return results
}

// Fork deep-copies the table: every surviving FD is duplicated under the
// same number in the new table, sharing Offset/RefCnt pointers with the
// parent (so writes through either table advance a common cursor), with
// RefCnt bumped once per duplicated FD.
func (t *Table) Fork() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	child := New()
	child.nextFD = t.nextFD
	for fd, e := range t.fds {
		atomic.AddInt32(e.RefCnt, 1)
		clone := *e
		child.fds[fd] = &clone
	}
	return child
}

// RightsFromFlags computes the rights/open-flags pair for a preopen from
// its read/write/create booleans, per SPEC_FULL.md §4.8.
func RightsFromFlags(read, write, create bool) (rights Rights, openFlags OpenFlags) {
	if read {
		rights |= RightFdRead | RightPathOpen | RightFdReaddir | RightPathReadlink |
			RightPathFilestatGet | RightPathLinkSource | RightPathRenameSource |
			RightPollFdReadwrite | RightSockShutdown
		openFlags |= OpenRead
	}
	if write {
		rights |= RightFdDatasync | RightFdFdstatSetFlags | RightFdWrite | RightFdSync |
			RightFdAllocate | RightPathRenameTarget | RightPathFilestatSetSize |
			RightPathFilestatSetTimes | RightPathRemoveDirectory | RightPathUnlinkFile |
			RightPollFdReadwrite | RightSockShutdown
		openFlags |= OpenWrite | OpenAppend | OpenTruncate
	}
	if create {
		rights |= RightPathCreateDirectory | RightPathCreateFile | RightPathLinkTarget |
			RightPathRenameTarget | RightPathSymlink
		openFlags |= OpenCreate
	}
	return
}
