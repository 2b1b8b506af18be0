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

package pipe_test

import (
	"context"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	. "github.com/jacobsa/ogletest"

	"github.com/wasicore/vfs/pipe"
)

func TestOgletest(t *testing.T) { RunTests(t) }

type PipeTest struct {
	clock timeutil.Clock
}

func init() { RegisterTestSuite(&PipeTest{}) }

func (t *PipeTest) SetUp(*TestInfo) {
	t.clock = timeutil.RealClock()
}

func (t *PipeTest) RoundTripPreservesBytes() {
	a, b := pipe.New(t.clock, true)

	n, err := a.Write([]byte("hello"))
	AssertEq(nil, err)
	AssertEq(5, n)

	buf := make([]byte, 5)
	n, err = b.Read(buf)
	AssertEq(nil, err)
	ExpectEq(5, n)
	ExpectEq("hello", string(buf))
}

func (t *PipeTest) NonBlockingReadWithNoDataReturnsZero() {
	a, b := pipe.New(t.clock, false)
	_ = a

	buf := make([]byte, 16)
	n, err := b.Read(buf)
	AssertEq(nil, err)
	ExpectEq(0, n)
}

func (t *PipeTest) MultipleWritesConcatenateInOrder() {
	a, b := pipe.New(t.clock, true)

	a.Write([]byte("ab"))
	a.Write([]byte("cd"))
	a.Write([]byte("ef"))

	buf := make([]byte, 6)
	total := 0
	for total < 6 {
		n, err := b.Read(buf[total:])
		AssertEq(nil, err)
		total += n
	}
	ExpectEq("abcdef", string(buf))
}

func (t *PipeTest) RecvTimesOutWhenNoWriter() {
	_, b := pipe.New(t.clock, true)

	buf := make([]byte, 4)
	_, err := b.Recv(context.Background(), buf, 30*time.Millisecond)
	ExpectEq("operation timed out", err.Error())
}

func (t *PipeTest) RecvSucceedsWhenDataArrivesLate() {
	a, b := pipe.New(t.clock, true)

	go func() {
		time.Sleep(10 * time.Millisecond)
		a.Write([]byte("late"))
	}()

	buf := make([]byte, 4)
	n, err := b.Recv(context.Background(), buf, 500*time.Millisecond)
	AssertEq(nil, err)
	ExpectEq(4, n)
	ExpectEq("late", string(buf))
}

func (t *PipeTest) CloseCausesSubsequentReadsToReturnZero() {
	a, b := pipe.New(t.clock, true)
	a.Close()

	buf := make([]byte, 4)
	n, err := b.Read(buf)
	AssertEq(nil, err)
	ExpectEq(0, n)

	_, err = a.Write([]byte("x"))
	ExpectNe(nil, err)
}
