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

package hostfs_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/jacobsa/ogletest"

	vfs "github.com/wasicore/vfs"
	"github.com/wasicore/vfs/hostfs"
)

func TestOgletest(t *testing.T) { RunTests(t) }

type HostfsTest struct {
	dir string
	fs  *hostfs.FS
}

func init() { RegisterTestSuite(&HostfsTest{}) }

func (t *HostfsTest) SetUp(*TestInfo) {
	dir, err := os.MkdirTemp("", "hostfs_test")
	AssertEq(nil, err)
	t.dir = dir

	fs, err := hostfs.New(dir)
	AssertEq(nil, err)
	t.fs = fs
}

func (t *HostfsTest) TearDown() {
	os.RemoveAll(t.dir)
}

func (t *HostfsTest) NewOnMissingRootFails() {
	_, err := hostfs.New(filepath.Join(t.dir, "does-not-exist"))
	ExpectNe(nil, err)
}

func (t *HostfsTest) CreateDirThenReadDirShowsChild() {
	AssertEq(nil, t.fs.CreateDir("a"))
	entries, err := t.fs.ReadDir(".")
	AssertEq(nil, err)
	AssertEq(1, len(entries))
	ExpectEq("a", entries[0].Name)
}

func (t *HostfsTest) WriteThenReadRoundTripsBytes() {
	f, err := t.fs.NewOpenOptions().Write(true).Create(true).Open("file.txt")
	AssertEq(nil, err)
	_, err = f.Write([]byte("hello"))
	AssertEq(nil, err)
	AssertEq(nil, f.Sync())

	f2, err := t.fs.NewOpenOptions().Read(true).Open("file.txt")
	AssertEq(nil, err)
	buf := make([]byte, 5)
	n, err := f2.Read(buf)
	AssertTrue(err == nil)
	AssertEq(5, n)
	ExpectEq("hello", string(buf))
}

func (t *HostfsTest) MetadataOnMissingFileIsEntryNotFound() {
	_, err := t.fs.Metadata("nope.txt")
	ExpectEq(vfs.EntryNotFound, err)
}

func (t *HostfsTest) SymlinkReadLinkRoundTrips() {
	AssertEq(nil, os.Symlink("target.txt", filepath.Join(t.dir, "link")))

	target, err := t.fs.ReadLink("link")
	AssertEq(nil, err)
	ExpectEq("target.txt", target)

	meta, err := t.fs.SymlinkMetadata("link")
	AssertEq(nil, err)
	ExpectEq(vfs.Symlink, meta.FileType)
}

func (t *HostfsTest) RemoveFileThenMetadataIsEntryNotFound() {
	f, err := t.fs.NewOpenOptions().Write(true).Create(true).Open("gone.txt")
	AssertEq(nil, err)
	f.Write([]byte("x"))

	AssertEq(nil, t.fs.RemoveFile("gone.txt"))
	_, err = t.fs.Metadata("gone.txt")
	ExpectEq(vfs.EntryNotFound, err)
}
