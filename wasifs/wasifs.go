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

// Package wasifs glues the inode arena, FD table, and path resolver into
// the WasiFs root (C7) and its preopen initializer (C8).
package wasifs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/timeutil"

	vfs "github.com/wasicore/vfs"
	"github.com/wasicore/vfs/fdtable"
	"github.com/wasicore/vfs/inode"
	"github.com/wasicore/vfs/pipe"
	"github.com/wasicore/vfs/resolver"
)

// PackageVFS stands in for the original's BinaryPackage: a named
// filesystem that may be conditionally unioned into a sandbox root. A
// full archive/webc volume reader is out of scope (SPEC_FULL.md §1); the
// union mechanics themselves are fully implemented.
type PackageVFS struct {
	Name string
	FS   vfs.Filesystem
}

// PreopenConfig describes one directory to expose to the guest at
// initialization.
type PreopenConfig struct {
	Alias    string // guest-visible name; defaults to HostPath if empty
	HostPath string
	Read     bool
	Write    bool
	Create   bool
}

// Root is the WasiFs root: preopens, name map, FD table, current
// directory, and the backing root filesystem (sandbox or opaque).
type Root struct {
	mu sync.Mutex // guards unioned, currentDir; arena/table have their own locks

	clock   timeutil.Clock
	fs      vfs.Filesystem
	arena   *inode.Arena
	table   *fdtable.Table
	root    inode.Handle
	res     *resolver.Resolver
	preopen []resolver.Preopen
	byAlias map[string]resolver.Preopen
	unioned map[string]bool

	currentDir string

	// Host-side ends of the stdio pipes installed at FDs 0-2; exposed so
	// an embedder can drive a guest's standard streams.
	stdinHost, stdoutHost, stderrHost *pipe.Pipe
}

// Stdio returns the host-side pipe endpoints for the guest's stdin,
// stdout, and stderr, so an embedder can write to stdin and read from
// stdout/stderr.
func (r *Root) Stdio() (stdin, stdout, stderr *pipe.Pipe) {
	return r.stdinHost, r.stdoutHost, r.stderrHost
}

// NewWithPreopen builds the initial inode graph and FD table: stdio
// first, then the root directory at FD 3, then one Dir inode per
// preopen, plus any purely virtual vfsPreopens names with no host
// backing (SPEC_FULL.md §4.8).
func NewWithPreopen(fs vfs.Filesystem, clock timeutil.Clock, preopens []PreopenConfig, vfsPreopens []string) (*Root, error) {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	if fs == nil {
		fs = vfs.FallbackFileSystem{}
	}
	r := &Root{
		clock:   clock,
		fs:      fs,
		arena:   inode.New(),
		table:   fdtable.New(),
		byAlias: make(map[string]resolver.Preopen),
		unioned: make(map[string]bool),
	}
	r.res = resolver.New(r)

	now := clock.Now()

	// Root inode fixed at arena index 0.
	rootVal := &inode.InodeValue{
		Stat:        vfs.Metadata{FileType: vfs.Directory, AccessedAt: now, ModifiedAt: now, CreatedAt: now},
		InodeNumber: r.arena.NextInodeNumber(),
		Name:        "/",
		Kind:        inode.KindRoot,
		Dir:         inode.DirKind{Entries: make(map[string]inode.Handle)},
	}
	r.root = r.arena.InsertAt(0, rootVal)

	// stdin/stdout/stderr: pipe-backed, installed with fixed FD numbers,
	// matching the original's new_init (stdin=0, stdout=1, stderr=2
	// created before the root at 3).
	r.installStdio(now)

	r.table.CreateFDExt(fdtable.FDRoot, fdtable.ReadRights, fdtable.ReadRights, 0, fdtable.OpenRead, r.root)

	for _, po := range preopens {
		if err := r.addPreopen(po, now); err != nil {
			return nil, err
		}
	}
	for _, alias := range vfsPreopens {
		if err := r.addVirtualPreopen(alias, now); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// installStdio wires one Pipe endpoint each into FDs 0-2; the other ends
// are kept on the Root for a host-side driver to read stdout/stderr from
// and write stdin into.
func (r *Root) installStdio(now time.Time) {
	stdinHost, stdinGuest := pipe.New(r.clock, true)
	stdoutGuest, stdoutHost := pipe.New(r.clock, true)
	stderrGuest, stderrHost := pipe.New(r.clock, true)
	r.stdinHost, r.stdoutHost, r.stderrHost = stdinHost, stdoutHost, stderrHost

	newPipeInode := func(name string, ep vfs.VirtualFile) inode.Handle {
		val := &inode.InodeValue{
			Stat:        vfs.Metadata{FileType: vfs.Pipe, AccessedAt: now, ModifiedAt: now, CreatedAt: now},
			InodeNumber: r.arena.NextInodeNumber(),
			Name:        name,
			Kind:        inode.KindPipe,
			Pipe:        inode.PipeKind{Endpoint: ep},
		}
		return r.arena.Insert(val)
	}

	stdinInode := newPipeInode("stdin", stdinGuest)
	stdoutInode := newPipeInode("stdout", stdoutGuest)
	stderrInode := newPipeInode("stderr", stderrGuest)

	r.table.CreateFDExt(fdtable.FDStdin, fdtable.ReadRights, fdtable.ReadRights, 0, fdtable.OpenRead, stdinInode)
	r.table.CreateFDExt(fdtable.FDStdout, fdtable.WriteRights, fdtable.WriteRights, 0, fdtable.OpenWrite, stdoutInode)
	r.table.CreateFDExt(fdtable.FDStderr, fdtable.WriteRights, fdtable.WriteRights, 0, fdtable.OpenWrite, stderrInode)
}

func (r *Root) addPreopen(cfg PreopenConfig, now time.Time) error {
	alias := cfg.Alias
	if alias == "" {
		alias = cfg.HostPath
	}
	// Root.Dir.Entries is keyed by single path components (the per-
	// component walk in vfs/resolver strips leading slashes before
	// lookup), so a leading "/" in the alias is display-only here.
	entryName := strings.TrimPrefix(alias, "/")
	if _, exists := r.byAlias[alias]; exists {
		return fmt.Errorf("vfs/wasifs: duplicate preopen entry %q", alias)
	}

	meta, err := r.fs.Metadata(cfg.HostPath)
	if err != nil {
		return err
	}
	if !meta.IsDir() {
		return vfs.Notdir
	}

	val := &inode.InodeValue{
		Stat:        meta,
		InodeNumber: r.arena.NextInodeNumber(),
		IsPreopened: true,
		Name:        alias,
		Kind:        inode.KindDir,
		Dir: inode.DirKind{
			Parent:   r.root,
			HostPath: cfg.HostPath,
			Entries:  make(map[string]inode.Handle),
		},
	}
	h := r.arena.Insert(val)
	if err := r.arena.WithKind(r.root, func(rootVal *inode.InodeValue) error {
		rootVal.Dir.Entries[entryName] = h
		return nil
	}); err != nil {
		return err
	}

	rights, openFlags := fdtable.RightsFromFlags(cfg.Read, cfg.Write, cfg.Create)
	fd := r.table.CreateFD(rights, rights, 0, openFlags, h)
	r.table.MarkPreopen(fd)

	po := resolver.Preopen{FD: fd, HostPath: cfg.HostPath, Inode: h}
	r.preopen = append(r.preopen, po)
	r.byAlias[alias] = po
	return nil
}

func (r *Root) addVirtualPreopen(alias string, now time.Time) error {
	entryName := strings.TrimPrefix(alias, "/")
	if _, exists := r.byAlias[alias]; exists {
		return fmt.Errorf("vfs/wasifs: duplicate preopen entry %q", alias)
	}
	val := &inode.InodeValue{
		Stat:        vfs.Metadata{FileType: vfs.Directory},
		InodeNumber: r.arena.NextInodeNumber(),
		IsPreopened: true,
		Name:        alias,
		Kind:        inode.KindDir,
		Dir: inode.DirKind{
			Parent:  r.root,
			Entries: make(map[string]inode.Handle),
		},
	}
	h := r.arena.Insert(val)
	if err := r.arena.WithKind(r.root, func(rootVal *inode.InodeValue) error {
		rootVal.Dir.Entries[entryName] = h
		return nil
	}); err != nil {
		return err
	}

	rights, openFlags := fdtable.RightsFromFlags(true, true, true)
	fd := r.table.CreateFD(rights, rights, 0, openFlags, h)
	r.table.MarkPreopen(fd)

	po := resolver.Preopen{FD: fd, HostPath: "", Inode: h}
	r.preopen = append(r.preopen, po)
	r.byAlias[alias] = po
	return nil
}

// Arena implements resolver.Backing.
func (r *Root) Arena() *inode.Arena { return r.arena }

// RootHandle implements resolver.Backing.
func (r *Root) RootHandle() inode.Handle { return r.root }

// Preopens implements resolver.Backing.
func (r *Root) Preopens() []resolver.Preopen { return r.preopen }

// FS implements resolver.Backing.
func (r *Root) FS() vfs.Filesystem { return r.fs }

// CurrentDir implements resolver.Backing.
func (r *Root) CurrentDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentDir
}

// SetCurrentDir updates the resolver's current-directory base for WASIX
// relative-path resolution.
func (r *Root) SetCurrentDir(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentDir = p
}

// Resolver returns the path resolver bound to this root.
func (r *Root) Resolver() *resolver.Resolver { return r.res }

// Table returns the FD table.
func (r *Root) Table() *fdtable.Table { return r.table }

// Fork duplicates the FD table (sharing offsets/refcounts with the
// parent) and the current directory (by value), shares the inode arena
// and root filesystem by reference, and resets the union-tracking set,
// per SPEC_FULL.md §3 and §4.7.
func (r *Root) Fork() *Root {
	r.mu.Lock()
	defer r.mu.Unlock()

	child := &Root{
		clock:      r.clock,
		fs:         r.fs,
		arena:      r.arena,
		table:      r.table.Fork(),
		root:       r.root,
		preopen:    append([]resolver.Preopen(nil), r.preopen...),
		byAlias:    make(map[string]resolver.Preopen, len(r.byAlias)),
		unioned:    make(map[string]bool),
		currentDir: r.currentDir,
		stdinHost:  r.stdinHost,
		stdoutHost: r.stdoutHost,
		stderrHost: r.stderrHost,
	}
	for k, v := range r.byAlias {
		child.byAlias[k] = v
	}
	child.res = resolver.New(child)
	child.res.WasixMode = r.res.WasixMode
	return child
}

// ConditionalUnion passes pkg's filesystem to union unless a package of
// the same name was already unioned into this root, and reports whether
// it called union. It does not inspect the root filesystem: where the
// package is attached is up to union (for an *overlay.FS root, its Union
// method appends it as a new secondary).
func (r *Root) ConditionalUnion(pkg PackageVFS, union func(secondary vfs.Filesystem)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unioned[pkg.Name] {
		return false
	}
	union(pkg.FS)
	r.unioned[pkg.Name] = true
	return true
}

// CloseAll removes every FD from the table, used when a guest process
// exits. It runs no per-kind teardown on last references: pipes are not
// closed, open file handles are not dropped, and directory inodes stay in
// their parents' entries.
func (r *Root) CloseAll() {
	r.table.CloseAll()
}
