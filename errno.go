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

// Errno is a WASI errno value returned by the path resolver and FD table
// when a guest-visible capability or resource error occurs.
type Errno int

const (
	Badf       Errno = iota + 1 // bad file descriptor
	Access                      // capability check failed
	Noent                       // no such entry
	Isdir                       // is a directory
	Notdir                      // not a directory
	Inval                       // invalid argument
	Mlink                       // too many symlink levels
	Notcapable                  // not capable (missing right)
	Timedout                    // operation timed out
)

var errnoNames = map[Errno]string{
	Badf:       "bad file descriptor",
	Access:     "access denied",
	Noent:      "no such entry",
	Isdir:      "is a directory",
	Notdir:     "not a directory",
	Inval:      "invalid argument",
	Mlink:      "too many levels of symbolic links",
	Notcapable: "capability not available",
	Timedout:   "operation timed out",
}

func (e Errno) Error() string {
	if s, ok := errnoNames[e]; ok {
		return s
	}
	return "unknown errno"
}
