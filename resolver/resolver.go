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

// Package resolver implements the path resolver (C5): translating a
// (base inode, path string, follow-symlinks) triple into an inode,
// materializing host entries lazily and bounding symlink depth.
package resolver

import (
	"context"
	"path"
	"strings"

	"github.com/jacobsa/reqtrace"

	vfs "github.com/wasicore/vfs"
	"github.com/wasicore/vfs/inode"
)

// MaxSymlinks bounds the number of target substitutions a single
// resolution may perform before giving up with vfs.Mlink.
const MaxSymlinks = 128

// Preopen describes one registered root-level directory.
type Preopen struct {
	FD       uint32
	HostPath string // the path this preopen was mounted at; "" for purely virtual preopens
	Inode    inode.Handle
}

// Backing supplies the filesystem content the resolver materializes
// inodes from. It is satisfied by wasifs.Root.
type Backing interface {
	Arena() *inode.Arena
	RootHandle() inode.Handle
	Preopens() []Preopen
	FS() vfs.Filesystem
	CurrentDir() string
}

// Resolver resolves guest paths against a Backing.
type Resolver struct {
	backing Backing
	// WasixMode selects current-directory-relative resolution of
	// relative paths, per SPEC_FULL.md §4.5's WASIX current-directory
	// variant.
	WasixMode bool
}

// New constructs a Resolver over the given backing.
func New(backing Backing) *Resolver {
	return &Resolver{backing: backing}
}

// Resolve walks base/pathStr component by component, materializing
// directory and file inodes from the backing filesystem on first
// encounter, and following symlinks when followSymlinks is true.
func (r *Resolver) Resolve(ctx context.Context, base inode.Handle, pathStr string, followSymlinks bool) (h inode.Handle, err error) {
	if reqtrace.Enabled() {
		var report reqtrace.ReportFunc
		_, report = reqtrace.StartSpan(ctx, "resolver.Resolve")
		defer func() { report(err) }()
	}

	if r.WasixMode && !strings.HasPrefix(pathStr, "/") {
		if cur := r.backing.CurrentDir(); cur != "" {
			pathStr = path.Join(cur, pathStr)
			if strings.HasPrefix(pathStr, "/") {
				base = r.backing.RootHandle()
			}
		}
	}

	cur := base
	symlinkDepth := 0
	components := splitComponents(pathStr)

	for i := 0; i < len(components); i++ {
		comp := components[i]
		last := i == len(components)-1

		next, err := r.step(cur, comp)
		if err != nil {
			return inode.Handle{}, err
		}

		v, err := r.backing.Arena().Get(next)
		if err != nil {
			return inode.Handle{}, err
		}

		if v.Kind == inode.KindSymlink && (followSymlinks || !last) {
			symlinkDepth++
			if symlinkDepth > MaxSymlinks {
				return inode.Handle{}, vfs.Mlink
			}
			target := composeSymlinkTarget(v)
			rest := strings.Join(components[i+1:], "/")
			composite := target
			if rest != "" {
				composite = target + "/" + rest
			}

			// A relative target was composed with the link's path inside its
			// owning preopen, so it resolves from that preopen. An absolute
			// target resolves against whichever preopen's host path
			// prefixes it, not against cur, per SPEC_FULL.md §4.5.
			resolveBase := cur
			if strings.HasPrefix(target, "/") {
				fd, rel := findOwningPreopen(r.backing.Preopens(), target)
				if fd == 0 && rel == target {
					return inode.Handle{}, vfs.Inval
				}
				for _, po := range r.backing.Preopens() {
					if po.FD == fd {
						resolveBase = po.Inode
						break
					}
				}
				composite = rel
				if rest != "" {
					composite = rel + "/" + rest
				}
			} else {
				for _, po := range r.backing.Preopens() {
					if po.FD == v.Symlink.BasePreopenFD {
						resolveBase = po.Inode
						break
					}
				}
			}
			cur = resolveBase
			components = splitComponents(composite)
			i = -1
			continue
		}

		cur = next
	}

	return cur, nil
}

// ResolveParent splits pathStr into (parent directory inode, final
// component name), resolving the parent but not the final segment.
// Operations that create or rename an entry use this to locate the
// mutable parent directory.
func (r *Resolver) ResolveParent(ctx context.Context, base inode.Handle, pathStr string) (parent inode.Handle, name string, err error) {
	components := splitComponents(pathStr)
	if len(components) == 0 {
		return inode.Handle{}, "", vfs.Inval
	}
	name = components[len(components)-1]
	parentPath := strings.Join(components[:len(components)-1], "/")
	if parentPath == "" {
		return base, name, nil
	}
	parent, err = r.Resolve(ctx, base, parentPath, true)
	return parent, name, err
}

// step resolves a single path component from cur, materializing a new
// inode from the backing filesystem if the component is not already
// present in cur's entries map.
func (r *Resolver) step(cur inode.Handle, comp string) (inode.Handle, error) {
	if comp == "." {
		return cur, nil
	}

	v, err := r.backing.Arena().Get(cur)
	if err != nil {
		return inode.Handle{}, err
	}

	switch v.Kind {
	case inode.KindDir, inode.KindRoot:
		// fallthrough below
	default:
		return inode.Handle{}, vfs.Notdir
	}

	if comp == ".." {
		if v.Kind == inode.KindRoot {
			return cur, nil
		}
		return v.Dir.Parent, nil
	}

	if v.Kind == inode.KindRoot {
		if child, ok := v.Dir.Entries[comp]; ok {
			return child, nil
		}
		return inode.Handle{}, vfs.Notcapable
	}

	if child, ok := v.Dir.Entries[comp]; ok {
		return child, nil
	}

	// Lazily materialize from the backing filesystem.
	childPath := path.Join(v.Dir.HostPath, comp)
	meta, err := r.backing.FS().SymlinkMetadata(childPath)
	if err != nil {
		return inode.Handle{}, toErrno(err)
	}

	var newVal *inode.InodeValue
	switch meta.FileType {
	case vfs.Directory:
		newVal = &inode.InodeValue{
			Stat: meta,
			Kind: inode.KindDir,
			Name: comp,
			Dir: inode.DirKind{
				Parent:   cur,
				HostPath: childPath,
				Entries:  make(map[string]inode.Handle),
			},
		}
	case vfs.Symlink:
		fd, relBase := findOwningPreopen(r.backing.Preopens(), childPath)
		target, err := r.backing.FS().ReadLink(childPath)
		if err != nil {
			return inode.Handle{}, toErrno(err)
		}
		newVal = &inode.InodeValue{
			Stat: meta,
			Kind: inode.KindSymlink,
			Name: comp,
			Symlink: inode.SymlinkKind{
				BasePreopenFD:  fd,
				PathToSymlink:  relBase,
				RelativeTarget: target,
			},
		}
	case vfs.RegularFile, vfs.CharDevice, vfs.BlockDevice, vfs.Socket, vfs.Pipe:
		newVal = &inode.InodeValue{
			Stat: meta,
			Kind: inode.KindFile,
			Name: comp,
			File: inode.FileKind{HostPath: childPath},
		}
	default:
		return inode.Handle{}, vfs.Inval
	}
	newVal.InodeNumber = r.backing.Arena().NextInodeNumber()
	newVal.Stat.FileType = meta.FileType

	h := r.backing.Arena().Insert(newVal)

	if newVal.Kind != inode.KindSymlink {
		err = r.backing.Arena().WithKind(cur, func(parentVal *inode.InodeValue) error {
			parentVal.Dir.Entries[comp] = h
			return nil
		})
		if err != nil {
			return inode.Handle{}, err
		}
	}

	return h, nil
}

func composeSymlinkTarget(v *inode.InodeValue) string {
	if strings.HasPrefix(v.Symlink.RelativeTarget, "/") {
		return v.Symlink.RelativeTarget
	}
	return path.Join(path.Dir(v.Symlink.PathToSymlink), v.Symlink.RelativeTarget)
}

// findOwningPreopen implements the §4.5.1 longest-prefix match: later
// preopens win ties.
func findOwningPreopen(preopens []Preopen, p string) (uint32, string) {
	var best Preopen
	bestLen := -1
	for _, po := range preopens {
		if po.HostPath == "" {
			continue
		}
		if strings.HasPrefix(p, po.HostPath) && len(po.HostPath) >= bestLen {
			best = po
			bestLen = len(po.HostPath)
		}
	}
	if bestLen < 0 {
		return 0, p
	}
	rel := strings.TrimPrefix(p, best.HostPath)
	rel = strings.TrimPrefix(rel, "/")
	return best.FD, rel
}

func splitComponents(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toErrno(err error) error {
	if fe, ok := err.(vfs.FsError); ok {
		return fe.ToErrno()
	}
	return err
}
