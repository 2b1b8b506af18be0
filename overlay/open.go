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

package overlay

import (
	vfs "github.com/wasicore/vfs"
)

type openOptions struct {
	o      *FS
	cfg    vfs.OpenOptionsConfig
}

func (b *openOptions) Read(v bool) vfs.OpenOptions      { b.cfg.Read = v; return b }
func (b *openOptions) Write(v bool) vfs.OpenOptions     { b.cfg.Write = v; return b }
func (b *openOptions) Append(v bool) vfs.OpenOptions    { b.cfg.Append = v; return b }
func (b *openOptions) Truncate(v bool) vfs.OpenOptions  { b.cfg.Truncate = v; return b }
func (b *openOptions) Create(v bool) vfs.OpenOptions    { b.cfg.Create = v; return b }
func (b *openOptions) CreateNew(v bool) vfs.OpenOptions { b.cfg.CreateNew = v; return b }

func applyConfig(opts vfs.OpenOptions, cfg vfs.OpenOptionsConfig) vfs.OpenOptions {
	return opts.Read(cfg.Read).Write(cfg.Write).Append(cfg.Append).Truncate(cfg.Truncate).Create(cfg.Create).CreateNew(cfg.CreateNew)
}

// Open implements the §4.3 Open algorithm: try the primary; on
// EntryNotFound for a creating config, copy up the parent chain and
// retry; otherwise, if the config would mutate, refuse with
// PermissionDenied; else fall through the secondaries read-only.
func (b *openOptions) Open(p string) (vfs.VirtualFile, error) {
	o := b.o

	f, err := applyConfig(o.Primary.NewOpenOptions(), b.cfg).Open(p)
	if err == nil {
		return f, nil
	}
	if err != vfs.EntryNotFound {
		return nil, err
	}

	existsOnSecondary := o.existsAnywhere(p)

	if (b.cfg.Create || b.cfg.CreateNew) && !existsOnSecondary {
		if err := o.copyUpParents(p); err != nil {
			return nil, err
		}
		return applyConfig(o.Primary.NewOpenOptions(), b.cfg).Open(p)
	}

	if b.cfg.RequiresMutation(existsOnSecondary) {
		return nil, vfs.PermissionDenied
	}

	for _, s := range o.secondariesSnapshot() {
		f, err := applyConfig(s.NewOpenOptions(), b.cfg).Open(p)
		if err == nil {
			return f, nil
		}
		if err != vfs.EntryNotFound {
			return nil, err
		}
	}
	return nil, vfs.EntryNotFound
}
