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

package overlay_test

import (
	"testing"

	"github.com/jacobsa/timeutil"
	. "github.com/jacobsa/ogletest"

	vfs "github.com/wasicore/vfs"
	"github.com/wasicore/vfs/memfs"
	"github.com/wasicore/vfs/overlay"
)

func TestOgletest(t *testing.T) { RunTests(t) }

type OverlayTest struct {
	primary    *memfs.FS
	secondary  *memfs.FS
	fs         *overlay.FS
}

func init() { RegisterTestSuite(&OverlayTest{}) }

func (t *OverlayTest) SetUp(*TestInfo) {
	clock := timeutil.RealClock()
	t.primary = memfs.New(clock)
	t.secondary = memfs.New(clock)
	t.fs = overlay.New(t.primary, t.secondary)
}

func writeFile(t *OverlayTest, fs vfs.Filesystem, p, contents string) {
	f, err := fs.NewOpenOptions().Write(true).Create(true).Open(p)
	AssertEq(nil, err)
	_, err = f.Write([]byte(contents))
	AssertEq(nil, err)
}

func (t *OverlayTest) PrimaryShadowsSecondary() {
	writeFile(t, t.secondary, "a.txt", "from-secondary")
	writeFile(t, t.primary, "a.txt", "from-primary")

	f, err := t.fs.NewOpenOptions().Read(true).Open("a.txt")
	AssertEq(nil, err)
	buf := make([]byte, 32)
	n, _ := f.Read(buf)
	ExpectEq("from-primary", string(buf[:n]))
}

func (t *OverlayTest) ReadFallsThroughToSecondary() {
	writeFile(t, t.secondary, "b.txt", "secondary-only")

	f, err := t.fs.NewOpenOptions().Read(true).Open("b.txt")
	AssertEq(nil, err)
	buf := make([]byte, 32)
	n, _ := f.Read(buf)
	ExpectEq("secondary-only", string(buf[:n]))
}

func (t *OverlayTest) RemovingSecondaryOnlyFileIsPermissionDenied() {
	writeFile(t, t.secondary, "c.txt", "x")

	err := t.fs.RemoveFile("c.txt")
	ExpectEq(vfs.PermissionDenied, err)
}

func (t *OverlayTest) RemovingFileMissingEverywhereIsEntryNotFound() {
	err := t.fs.RemoveFile("nope.txt")
	ExpectEq(vfs.EntryNotFound, err)
}

func (t *OverlayTest) AppendingToSecondaryOnlyFileIsPermissionDenied() {
	writeFile(t, t.secondary, "d.txt", "x")

	_, err := t.fs.NewOpenOptions().Append(true).Open("d.txt")
	ExpectEq(vfs.PermissionDenied, err)
}

func (t *OverlayTest) CreateCopiesUpParentDirectories() {
	AssertEq(nil, t.secondary.CreateDir("dir"))

	f, err := t.fs.NewOpenOptions().Write(true).Create(true).Open("dir/e.txt")
	AssertEq(nil, err)
	f.Write([]byte("created-on-primary"))

	m, err := t.primary.Metadata("dir")
	AssertEq(nil, err)
	ExpectTrue(m.IsDir())

	m, err = t.primary.Metadata("dir/e.txt")
	AssertEq(nil, err)
	ExpectTrue(m.IsFile())
}

func (t *OverlayTest) ReadDirDeduplicatesByNamePreferringPrimary() {
	AssertEq(nil, t.secondary.CreateDir("shared"))
	AssertEq(nil, t.primary.CreateDir("shared"))
	writeFile(t, t.secondary, "shared/only-secondary.txt", "x")
	writeFile(t, t.primary, "shared/only-primary.txt", "x")
	writeFile(t, t.secondary, "shared/both.txt", "from-secondary")
	writeFile(t, t.primary, "shared/both.txt", "from-primary")

	entries, err := t.fs.ReadDir("shared")
	AssertEq(nil, err)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
		if e.Name == "both.txt" {
			ExpectEq(uint64(len("from-primary")), e.Metadata.Len)
		}
	}
	ExpectTrue(names["only-secondary.txt"])
	ExpectTrue(names["only-primary.txt"])
	ExpectEq(3, len(entries))
}

func (t *OverlayTest) DirectoryMissingEverywhereIsBaseNotDirectory() {
	_, err := t.fs.ReadDir("missing-dir")
	ExpectEq(vfs.BaseNotDirectory, err)
}
