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

import (
	"flag"
	"io"
	"log"
	"os"
	"sync"
)

var fEnableDebug = flag.Bool(
	"vfscore.debug",
	false,
	"Write vfs core debugging messages to stderr.")

var gLogger *log.Logger
var gLoggerOnce sync.Once

func initLogger() {
	var writer io.Writer = io.Discard
	if flag.Parsed() && *fEnableDebug {
		writer = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	gLogger = log.New(writer, "vfscore: ", flags)
}

func getLogger() *log.Logger {
	gLoggerOnce.Do(initLogger)
	return gLogger
}

// SetDebug forces debug logging on or off, bypassing the flag. Tests that
// cannot call flag.Parse use this instead.
func SetDebug(enabled bool) {
	getLogger()
	if enabled {
		gLogger.SetOutput(os.Stderr)
	} else {
		gLogger.SetOutput(io.Discard)
	}
}

// Debugf writes a debug message if debugging is enabled.
func Debugf(format string, v ...interface{}) {
	getLogger().Printf(format, v...)
}
