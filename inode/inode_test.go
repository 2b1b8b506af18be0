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

package inode_test

import (
	"testing"

	. "github.com/jacobsa/ogletest"

	vfs "github.com/wasicore/vfs"
	"github.com/wasicore/vfs/inode"
)

func TestOgletest(t *testing.T) { RunTests(t) }

type InodeTest struct {
	arena *inode.Arena
}

func init() { RegisterTestSuite(&InodeTest{}) }

func (t *InodeTest) SetUp(*TestInfo) {
	t.arena = inode.New()
}

func (t *InodeTest) InsertThenGetRoundTrips() {
	h := t.arena.Insert(&inode.InodeValue{Name: "x", Kind: inode.KindFile})
	v, err := t.arena.Get(h)
	AssertEq(nil, err)
	ExpectEq("x", v.Name)
}

func (t *InodeTest) StaleHandleAfterRemoveFailsCleanly() {
	h := t.arena.Insert(&inode.InodeValue{Name: "x", Kind: inode.KindFile})
	_, err := t.arena.Remove(h, false)
	AssertEq(nil, err)

	_, err = t.arena.Get(h)
	ExpectEq(vfs.Badf, err)
}

func (t *InodeTest) ReusedSlotGetsNewGeneration() {
	h1 := t.arena.Insert(&inode.InodeValue{Name: "first", Kind: inode.KindFile})
	t.arena.Remove(h1, false)
	h2 := t.arena.Insert(&inode.InodeValue{Name: "second", Kind: inode.KindFile})

	ExpectEq(h1.Index, h2.Index)
	ExpectNe(h1.Generation, h2.Generation)

	_, err := t.arena.Get(h1)
	ExpectEq(vfs.Badf, err)

	v, err := t.arena.Get(h2)
	AssertEq(nil, err)
	ExpectEq("second", v.Name)
}

func (t *InodeTest) OrphanedInodeStaysReachableUntilReleased() {
	h := t.arena.Insert(&inode.InodeValue{Name: "orphan", Kind: inode.KindFile})
	t.arena.Remove(h, true)

	v, err := t.arena.Get(h)
	AssertEq(nil, err)
	ExpectEq("orphan", v.Name)

	t.arena.ReleaseOrphan(h)

	_, err = t.arena.Get(h)
	ExpectEq(vfs.Badf, err)
}

func (t *InodeTest) InodeNumbersStartAt1024AndAreMonotonic() {
	n1 := t.arena.NextInodeNumber()
	n2 := t.arena.NextInodeNumber()
	ExpectEq(uint64(1024), n1)
	ExpectEq(uint64(1025), n2)
}

func (t *InodeTest) WithKindMutationIsVisibleThroughGet() {
	h := t.arena.Insert(&inode.InodeValue{
		Name: "dir", Kind: inode.KindDir,
		Dir: inode.DirKind{Entries: map[string]inode.Handle{}},
	})

	err := t.arena.WithKind(h, func(v *inode.InodeValue) error {
		v.Dir.Entries["child"] = inode.Handle{Index: 99, Generation: 1}
		return nil
	})
	AssertEq(nil, err)

	v, err := t.arena.Get(h)
	AssertEq(nil, err)
	ExpectEq(1, len(v.Dir.Entries))
}
