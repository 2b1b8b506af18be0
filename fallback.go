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

package vfs

// FallbackFileSystem panics on every call. It exists only as the zero
// value of a root filesystem variant, so that a WasiFs constructed
// without a real backing fails loudly at first use instead of silently
// discarding writes.
type FallbackFileSystem struct{}

const fallbackMsg = "vfs: FallbackFileSystem used — no root filesystem was configured"

func (FallbackFileSystem) ReadDir(string) ([]DirEntry, error)     { panic(fallbackMsg) }
func (FallbackFileSystem) CreateDir(string) error                 { panic(fallbackMsg) }
func (FallbackFileSystem) RemoveDir(string) error                 { panic(fallbackMsg) }
func (FallbackFileSystem) Rename(string, string) error            { panic(fallbackMsg) }
func (FallbackFileSystem) Metadata(string) (Metadata, error)       { panic(fallbackMsg) }
func (FallbackFileSystem) SymlinkMetadata(string) (Metadata, error) { panic(fallbackMsg) }
func (FallbackFileSystem) ReadLink(string) (string, error)        { panic(fallbackMsg) }
func (FallbackFileSystem) RemoveFile(string) error                { panic(fallbackMsg) }
func (FallbackFileSystem) NewOpenOptions() OpenOptions            { panic(fallbackMsg) }
