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

// Package overlay implements the union filesystem (C3): one writable
// primary composed over an ordered chain of read-only secondaries, with
// shadowing, copy-up-on-create, and deduplicated directory merges.
//
// Grounded on original_source/lib/vfs/src/overlay_fs.rs.
package overlay

import (
	"path"
	"sort"
	"sync"

	vfs "github.com/wasicore/vfs"
)

// FS is the overlay filesystem. Primary is writable; Secondaries are
// consulted in order and are never mutated directly by the overlay
// (write operations against them surface as vfs.PermissionDenied).
type FS struct {
	mu         sync.RWMutex // guards Secondaries, since ConditionalUnion appends at runtime
	Primary    vfs.Filesystem
	Secondaries []vfs.Filesystem
}

// New constructs an overlay with a fixed primary and secondary chain.
func New(primary vfs.Filesystem, secondaries ...vfs.Filesystem) *FS {
	return &FS{Primary: primary, Secondaries: secondaries}
}

// Union appends a new read-only secondary at the end of the chain (the
// lowest-precedence position), used by wasifs.Root.ConditionalUnion.
func (o *FS) Union(secondary vfs.Filesystem) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Secondaries = append(o.Secondaries, secondary)
}

func (o *FS) secondariesSnapshot() []vfs.Filesystem {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]vfs.Filesystem, len(o.Secondaries))
	copy(out, o.Secondaries)
	return out
}

func (o *FS) Metadata(p string) (vfs.Metadata, error) {
	m, err := o.Primary.Metadata(p)
	if err == nil {
		return m, nil
	}
	if err != vfs.EntryNotFound {
		return vfs.Metadata{}, err
	}
	for _, s := range o.secondariesSnapshot() {
		m, err := s.Metadata(p)
		if err == nil {
			return m, nil
		}
		if err != vfs.EntryNotFound {
			return vfs.Metadata{}, err
		}
	}
	return vfs.Metadata{}, vfs.EntryNotFound
}

func (o *FS) SymlinkMetadata(p string) (vfs.Metadata, error) {
	m, err := o.Primary.SymlinkMetadata(p)
	if err == nil {
		return m, nil
	}
	if err != vfs.EntryNotFound {
		return vfs.Metadata{}, err
	}
	for _, s := range o.secondariesSnapshot() {
		m, err := s.SymlinkMetadata(p)
		if err == nil {
			return m, nil
		}
		if err != vfs.EntryNotFound {
			return vfs.Metadata{}, err
		}
	}
	return vfs.Metadata{}, vfs.EntryNotFound
}

func (o *FS) ReadLink(p string) (string, error) {
	target, err := o.Primary.ReadLink(p)
	if err == nil {
		return target, nil
	}
	if err != vfs.EntryNotFound {
		return "", err
	}
	for _, s := range o.secondariesSnapshot() {
		target, err := s.ReadLink(p)
		if err == nil {
			return target, nil
		}
		if err != vfs.EntryNotFound {
			return "", err
		}
	}
	return "", vfs.EntryNotFound
}

// ReadDir accumulates entries from the primary and every secondary that
// succeeds, deduplicating by name with earlier (higher-precedence)
// filesystems winning. If every filesystem reports EntryNotFound, the
// directory does not exist anywhere in the overlay.
func (o *FS) ReadDir(p string) ([]vfs.DirEntry, error) {
	var anySuccess bool
	seen := make(map[string]bool)
	var out []vfs.DirEntry

	layers := append([]vfs.Filesystem{o.Primary}, o.secondariesSnapshot()...)
	for _, fs := range layers {
		entries, err := fs.ReadDir(p)
		if err != nil {
			if err == vfs.EntryNotFound {
				continue
			}
			return nil, err
		}
		anySuccess = true
		for _, e := range entries {
			if seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			out = append(out, e)
		}
	}

	if !anySuccess {
		return nil, vfs.BaseNotDirectory
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// existsAnywhere reports whether p exists on any secondary (used to
// decide between EntryNotFound and PermissionDenied for writes that the
// primary rejected).
func (o *FS) existsAnywhere(p string) bool {
	for _, s := range o.secondariesSnapshot() {
		if _, err := s.SymlinkMetadata(p); err == nil {
			return true
		}
	}
	return false
}

func (o *FS) writeOp(p string, primaryOp func() error) error {
	err := primaryOp()
	if err == nil || err != vfs.EntryNotFound {
		return err
	}
	if o.existsAnywhere(p) {
		return vfs.PermissionDenied
	}
	return vfs.EntryNotFound
}

func (o *FS) CreateDir(p string) error {
	return o.writeOp(p, func() error { return o.Primary.CreateDir(p) })
}

func (o *FS) RemoveDir(p string) error {
	return o.writeOp(p, func() error { return o.Primary.RemoveDir(p) })
}

func (o *FS) RemoveFile(p string) error {
	return o.writeOp(p, func() error { return o.Primary.RemoveFile(p) })
}

func (o *FS) Rename(from, to string) error {
	err := o.Primary.Rename(from, to)
	if err == nil || err != vfs.EntryNotFound {
		return err
	}
	if o.existsAnywhere(from) {
		return vfs.PermissionDenied
	}
	return vfs.EntryNotFound
}

func (o *FS) NewOpenOptions() vfs.OpenOptions {
	return &openOptions{o: o}
}

// copyUpParents creates, on the primary, every ancestor directory of p
// that currently exists only on a secondary, so that a subsequent create
// on the primary succeeds.
func (o *FS) copyUpParents(p string) error {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return nil
	}
	if _, err := o.Primary.Metadata(dir); err == nil {
		return nil
	}
	if !o.existsAnywhere(dir) {
		return vfs.EntryNotFound
	}
	if err := o.copyUpParents(dir); err != nil {
		return err
	}
	if err := o.Primary.CreateDir(dir); err != nil && err != vfs.AlreadyExists {
		return err
	}
	return nil
}
