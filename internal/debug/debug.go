// Copyright 2025 The Rift Language Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package debug includes assertion, trace-logging, and fatal-error helpers
// for the metadata runtime.
//
// Trace logging goes through a process-wide zap logger, which defaults to a
// nop. Records are tagged with the calling goroutine's id so interleaved
// instantiation traces from racing threads can be told apart.
package debug

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/timandy/routine"
	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// SetLogger replaces the runtime's trace logger. Passing nil restores the
// nop logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// Log records a trace event for the given operation.
func Log(op string, format string, args ...any) {
	l := logger.Load()
	if l.Core().Enabled(zap.DebugLevel) {
		l.Debug(fmt.Sprintf(format, args...),
			zap.String("op", op),
			zap.Uint64("goid", routine.Goid()))
	}
}

// Assert panics if cond is false.
//
// These guard invariants that only a buggy caller (or a buggy runtime) can
// violate; they are not part of the error-reporting surface.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Errorf("riftmeta: internal assertion failed: "+format, args...))
	}
}

// Fatal is the sink for unrecoverable runtime conditions: metadata dependency
// cycles and allocator exhaustion. There is no recovery path from these, so
// the default sink terminates the process after writing the diagnostic.
//
// Tests replace the sink to observe diagnostics; a replacement must not
// return to the caller.
var Fatal = func(diagnostic string) {
	l := logger.Load()
	l.Error(diagnostic)
	_ = l.Sync()
	fmt.Fprintln(os.Stderr, diagnostic)
	os.Exit(2)
}

// Fatalf formats a diagnostic and hands it to the fatal sink.
func Fatalf(format string, args ...any) {
	Fatal(fmt.Sprintf(format, args...))
	panic("riftmeta: fatal sink returned")
}
