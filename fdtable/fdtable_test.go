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

package fdtable_test

import (
	"sync/atomic"
	"testing"

	. "github.com/jacobsa/ogletest"

	"github.com/wasicore/vfs/fdtable"
	"github.com/wasicore/vfs/inode"
)

func TestOgletest(t *testing.T) { RunTests(t) }

type FdtableTest struct {
	table *fdtable.Table
}

func init() { RegisterTestSuite(&FdtableTest{}) }

func (t *FdtableTest) SetUp(*TestInfo) {
	t.table = fdtable.New()
}

func (t *FdtableTest) AllocationStartsAtFour() {
	h := inode.Handle{Index: 1, Generation: 1}
	fd := t.table.CreateFD(fdtable.ReadRights, fdtable.ReadRights, 0, fdtable.OpenRead, h)
	ExpectEq(uint32(4), fd)
}

func (t *FdtableTest) CloneSharesOffsetAndRefcount() {
	h := inode.Handle{Index: 1, Generation: 1}
	fd := t.table.CreateFD(fdtable.ReadRights, fdtable.ReadRights, 0, fdtable.OpenRead, h)

	_, _, _, _, _, offset, err := t.table.Get(fd)
	AssertEq(nil, err)
	atomic.StoreUint64(offset, 42)

	fd2, err := t.table.CloneFD(fd)
	AssertEq(nil, err)

	_, _, _, _, _, offset2, err := t.table.Get(fd2)
	AssertEq(nil, err)
	ExpectEq(uint64(42), atomic.LoadUint64(offset2))

	atomic.StoreUint64(offset2, 99)
	ExpectEq(uint64(99), atomic.LoadUint64(offset))
}

func (t *FdtableTest) CloseDecrementsSharedRefcountBeforeLastRef() {
	h := inode.Handle{Index: 1, Generation: 1}
	fd := t.table.CreateFD(fdtable.ReadRights, fdtable.ReadRights, 0, fdtable.OpenRead, h)
	fd2, err := t.table.CloneFD(fd)
	AssertEq(nil, err)

	r1, err := t.table.CloseFD(fd)
	AssertEq(nil, err)
	ExpectFalse(r1.LastRef)

	r2, err := t.table.CloseFD(fd2)
	AssertEq(nil, err)
	ExpectTrue(r2.LastRef)
}

func (t *FdtableTest) ForkSharesOffsetAcrossTables() {
	h := inode.Handle{Index: 1, Generation: 1}
	fd := t.table.CreateFD(fdtable.ReadRights, fdtable.ReadRights, 0, fdtable.OpenRead, h)

	child := t.table.Fork()

	_, _, _, _, _, parentOffset, err := t.table.Get(fd)
	AssertEq(nil, err)
	_, _, _, _, _, childOffset, err := child.Get(fd)
	AssertEq(nil, err)

	atomic.StoreUint64(parentOffset, 7)
	ExpectEq(uint64(7), atomic.LoadUint64(childOffset))
}

func (t *FdtableTest) RightsFromFlagsComputesReadWriteCreate() {
	rights, openFlags := fdtable.RightsFromFlags(true, false, false)
	ExpectTrue(rights&fdtable.RightFdRead != 0)
	ExpectTrue(openFlags&fdtable.OpenRead != 0)
	ExpectTrue(rights&fdtable.RightFdWrite == 0)

	rights, openFlags = fdtable.RightsFromFlags(false, true, true)
	ExpectTrue(rights&fdtable.RightFdWrite != 0)
	ExpectTrue(rights&fdtable.RightPathCreateFile != 0)
	ExpectTrue(openFlags&fdtable.OpenCreate != 0)
}
