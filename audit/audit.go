// Package audit defines the best-effort audit sink the measurement engine
// reports security-relevant events to.

// Copyright (c) Facebook, Inc. and its affiliates.
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

package audit

import (
	"sync"
	"time"

	"github.com/facebookincubator/flog"
)

// Kind identifies the engine operation an event describes.
type Kind string

// Event kinds emitted by the engine.
const (
	KindInit        Kind = "init"
	KindExtend      Kind = "extend"
	KindVerifyChain Kind = "verify_chain"
	KindSeal        Kind = "seal"
	KindUnseal      Kind = "unseal"
	KindRandom      Kind = "random"
	KindSignature   Kind = "signature"
	KindCleanup     Kind = "cleanup"
)

// Result is the outcome recorded with an event.
type Result string

// Event results.
const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Event is one audit record. Events carry no secret material; details are
// limited to operation metadata and error text.
type Event struct {
	Kind   Kind
	Result Result
	Detail string
	Time   time.Time
}

// Sink receives audit events. Record is fire-and-forget: the engine never
// blocks on, or fails because of, the sink. Implementations must be safe
// for concurrent use and should return quickly, deferring any slow
// persistence to their own machinery.
type Sink interface {
	Record(ev Event)
}

// LogSink writes audit events to the process log. It is the default sink
// for hosts without a dedicated audit transport.
type LogSink struct{}

// Record implements Sink.
func (LogSink) Record(ev Event) {
	if ev.Result == ResultFailure {
		flog.Warningf("audit: %s failed: %s", ev.Kind, ev.Detail)
		return
	}
	if flog.V(5) {
		flog.Debugf("audit: %s ok %s", ev.Kind, ev.Detail)
	}
}

// MemorySink retains events in memory. Intended for tests and for callers
// that drain events into their own audit pipeline.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Record implements Sink.
func (m *MemorySink) Record(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of all recorded events in order.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Reset discards all recorded events.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
