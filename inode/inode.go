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

// Package inode implements the generational inode arena (C4): a registry
// of InodeValue records addressed by a (index, generation) handle so that
// a stale handle into a reused slot fails cleanly instead of aliasing.
package inode

import (
	"fmt"
	"sync"

	"github.com/jacobsa/syncutil"

	vfs "github.com/wasicore/vfs"
)

// Handle is a generational index into the arena. The zero Handle is never
// valid; Index 0 is reserved for the Root inode, whose generation is
// fixed at 1 for the lifetime of the arena.
type Handle struct {
	Index      uint64
	Generation uint64
}

// Kind discriminates the InodeValue payload.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindRoot
	KindSymlink
	KindPipe
	KindSocket
	KindBuffer
	KindEventNotifications
)

// FileKind is the payload for Kind == KindFile.
type FileKind struct {
	Handle   vfs.VirtualFile // nil if not currently open
	HostPath string          // empty if purely synthetic
}

// DirKind is the payload for Kind == KindDir or KindRoot. Parent is the
// zero Handle for Root (Root has no parent).
type DirKind struct {
	Parent   Handle
	HostPath string
	Entries  map[string]Handle
}

// SymlinkKind is the payload for Kind == KindSymlink. The target is
// always stored relative to the directory containing the link, per
// SPEC_FULL.md §3.
type SymlinkKind struct {
	BasePreopenFD  uint32
	PathToSymlink  string
	RelativeTarget string
}

// PipeKind is the payload for Kind == KindPipe.
type PipeKind struct {
	Endpoint vfs.VirtualFile
}

// InodeValue is a single arena slot's content.
type InodeValue struct {
	Stat        vfs.Metadata
	InodeNumber uint64
	IsPreopened bool
	Name        string
	Kind        Kind

	File    FileKind
	Dir     DirKind
	Symlink SymlinkKind
	Pipe    PipeKind
}

type slot struct {
	value      *InodeValue
	generation uint64
	occupied   bool

	// statMu guards Stat independently of kindMu so that a metadata read
	// is never blocked behind a long-running kind mutation, and vice
	// versa; see SPEC_FULL.md §5 lock-ordering rules.
	statMu sync.RWMutex
	kindMu sync.RWMutex
}

// Arena is the generational inode registry.
type Arena struct {
	mu         syncutil.InvariantMutex // GUARDS_BY slots, freeList, orphans, nextInode
	slots      []*slot
	freeList   []uint64
	orphans    map[Handle]*InodeValue
	nextInode  uint64
}

// New constructs an empty arena. Inode numbers are assigned starting at
// 1024, matching the original's get_next_inode_index.
func New() *Arena {
	a := &Arena{
		orphans:   make(map[Handle]*InodeValue),
		nextInode: 1024,
	}
	a.mu = syncutil.NewInvariantMutex(a.checkInvariants)
	return a
}

func (a *Arena) checkInvariants() {
	if len(a.freeList) > len(a.slots) {
		panic(fmt.Sprintf("inode: free list %d longer than slot table %d", len(a.freeList), len(a.slots)))
	}
}

// NextInodeNumber returns the next monotonic inode number and advances
// the counter.
func (a *Arena) NextInodeNumber() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.nextInode
	a.nextInode++
	return n
}

// Insert stores v in a free (or new) slot and returns its handle.
func (a *Arena) Insert(v *InodeValue) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.freeList) > 0 {
		idx := a.freeList[len(a.freeList)-1]
		a.freeList = a.freeList[:len(a.freeList)-1]
		s := a.slots[idx]
		s.value = v
		s.occupied = true
		s.generation++
		return Handle{Index: idx, Generation: s.generation}
	}

	idx := uint64(len(a.slots))
	s := &slot{value: v, generation: 1, occupied: true}
	a.slots = append(a.slots, s)
	return Handle{Index: idx, Generation: s.generation}
}

// InsertAt inserts v at a caller-chosen index (used for Root, whose index
// is fixed at 0). The index must not already be occupied.
func (a *Arena) InsertAt(idx uint64, v *InodeValue) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	for uint64(len(a.slots)) <= idx {
		a.slots = append(a.slots, &slot{generation: 0})
	}
	s := a.slots[idx]
	if s.occupied {
		panic(fmt.Sprintf("inode: slot %d already occupied", idx))
	}
	s.value = v
	s.occupied = true
	s.generation++
	return Handle{Index: idx, Generation: s.generation}
}

func (a *Arena) lookupSlot(h Handle) (*slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if h.Index >= uint64(len(a.slots)) {
		return nil, false
	}
	s := a.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return nil, false
	}
	return s, true
}

// Get returns the InodeValue for h, consulting the orphan table if the
// arena slot has already been recycled out from under a still-referenced
// handle.
func (a *Arena) Get(h Handle) (*InodeValue, error) {
	if s, ok := a.lookupSlot(h); ok {
		s.statMu.RLock()
		defer s.statMu.RUnlock()
		return s.value, nil
	}
	a.mu.Lock()
	v, ok := a.orphans[h]
	a.mu.Unlock()
	if ok {
		return v, nil
	}
	return nil, vfs.Badf
}

// WithKind runs fn with an exclusive lock on h's Kind payload held,
// isolated from concurrent Stat reads/writes on the same inode.
func (a *Arena) WithKind(h Handle, fn func(v *InodeValue) error) error {
	s, ok := a.lookupSlot(h)
	if !ok {
		return vfs.Badf
	}
	s.kindMu.Lock()
	defer s.kindMu.Unlock()
	return fn(s.value)
}

// WithKindRead runs fn with a shared lock on h's Kind payload.
func (a *Arena) WithKindRead(h Handle, fn func(v *InodeValue) error) error {
	s, ok := a.lookupSlot(h)
	if !ok {
		return vfs.Badf
	}
	s.kindMu.RLock()
	defer s.kindMu.RUnlock()
	return fn(s.value)
}

// UpdateStat runs fn with an exclusive lock on h's Stat field.
func (a *Arena) UpdateStat(h Handle, fn func(*vfs.Metadata)) error {
	s, ok := a.lookupSlot(h)
	if !ok {
		return vfs.Badf
	}
	s.statMu.Lock()
	defer s.statMu.Unlock()
	fn(&s.value.Stat)
	return nil
}

// Remove evicts h from the arena proper. If orphan is true, the value is
// kept reachable via the orphan table (an FD still references it); the
// caller is responsible for calling ReleaseOrphan once the last FD
// referencing it closes.
func (a *Arena) Remove(h Handle, orphan bool) (*InodeValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if h.Index >= uint64(len(a.slots)) {
		return nil, vfs.Badf
	}
	s := a.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return nil, vfs.Badf
	}

	v := s.value
	s.occupied = false
	s.value = nil
	a.freeList = append(a.freeList, h.Index)

	if orphan {
		a.orphans[h] = v
	}
	return v, nil
}

// ReleaseOrphan drops h from the orphan table once no FD references it
// any longer.
func (a *Arena) ReleaseOrphan(h Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.orphans, h)
}
