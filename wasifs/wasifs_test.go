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

package wasifs_test

import (
	"sync/atomic"
	"testing"

	"github.com/jacobsa/timeutil"
	. "github.com/jacobsa/ogletest"

	"github.com/wasicore/vfs/fdtable"
	"github.com/wasicore/vfs/memfs"
	"github.com/wasicore/vfs/overlay"
	"github.com/wasicore/vfs/wasifs"
)

func TestOgletest(t *testing.T) { RunTests(t) }

type WasifsTest struct {
	mfs  *memfs.FS
	root *wasifs.Root
}

func init() { RegisterTestSuite(&WasifsTest{}) }

func (t *WasifsTest) SetUp(*TestInfo) {
	clock := timeutil.RealClock()
	t.mfs = memfs.New(clock)
	AssertEq(nil, t.mfs.CreateDir("home"))

	root, err := wasifs.NewWithPreopen(t.mfs, clock, []wasifs.PreopenConfig{
		{Alias: "home", HostPath: "home", Read: true, Write: true, Create: true},
	}, []string{"virtual"})
	AssertEq(nil, err)
	t.root = root
}

func (t *WasifsTest) StdioFDsAreReservedZeroThroughThree() {
	_, err := t.root.Table().GetInode(fdtable.FDStdin)
	AssertEq(nil, err)
	_, err = t.root.Table().GetInode(fdtable.FDStdout)
	AssertEq(nil, err)
	_, err = t.root.Table().GetInode(fdtable.FDStderr)
	AssertEq(nil, err)
	_, err = t.root.Table().GetInode(fdtable.FDRoot)
	AssertEq(nil, err)
}

func (t *WasifsTest) StdioPipesCarryBytesHostToGuest() {
	stdin, _, _ := t.root.Stdio()

	n, err := stdin.Write([]byte("hi"))
	AssertEq(nil, err)
	AssertEq(2, n)

	guestEnd, err := t.root.Table().GetInode(fdtable.FDStdin)
	AssertEq(nil, err)

	v, err := t.root.Arena().Get(guestEnd)
	AssertEq(nil, err)
	buf := make([]byte, 2)
	rn, rerr := v.Pipe.Endpoint.Read(buf)
	AssertTrue(rerr == nil)
	AssertEq(2, rn)
	ExpectEq("hi", string(buf))
}

func (t *WasifsTest) ForkSharesArenaAndDuplicatesFDTableOffsets() {
	fd := fdtable.FDStdout
	_, _, _, _, _, offset, err := t.root.Table().Get(fd)
	AssertEq(nil, err)
	atomic.StoreUint64(offset, 7)

	child := t.root.Fork()

	_, _, _, _, _, childOffset, err := child.Table().Get(fd)
	AssertEq(nil, err)
	ExpectEq(uint64(7), atomic.LoadUint64(childOffset))
	ExpectEq(t.root.Arena(), child.Arena())
}

func (t *WasifsTest) ConditionalUnionIsIdempotentPerPackageName() {
	primary := memfs.New(timeutil.RealClock())
	secondary := memfs.New(timeutil.RealClock())
	ov := overlay.New(primary)

	clock := timeutil.RealClock()
	r, err := wasifs.NewWithPreopen(ov, clock, nil, nil)
	AssertEq(nil, err)

	pkg := wasifs.PackageVFS{Name: "pkg-a", FS: secondary}

	first := r.ConditionalUnion(pkg, ov.Union)
	ExpectTrue(first)

	second := r.ConditionalUnion(pkg, ov.Union)
	ExpectFalse(second)
}
