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

package tme

import (
	"crypto/sha512"
	"fmt"
	"time"

	"github.com/facebookincubator/tme/utils"
)

// This file holds the bounded, append-only measurement log and its
// integrity hash. The log lives for one boot: it is only ever reset by
// full engine re-initialization.

// measurementLog is the engine's internal log state.
type measurementLog struct {
	count      int
	lastUpdate time.Time
	logHash    [DigestSize]byte
	entries    [MaxLogEntries]Measurement
}

// reset wipes the log to its empty state and restores the hash invariant.
func (l *measurementLog) reset() {
	l.entries = [MaxLogEntries]Measurement{}
	l.count = 0
	l.lastUpdate = time.Time{}
	l.rehash()
}

// canAppend reports whether n more entries fit.
func (l *measurementLog) canAppend(n int) bool {
	return l.count+n <= MaxLogEntries
}

// append adds one measurement. Callers must have checked capacity; an
// overflowing append is a programming error and panics rather than
// silently dropping or wrapping.
func (l *measurementLog) append(m Measurement) {
	if l.count >= MaxLogEntries {
		panic("tme: measurement log append past capacity")
	}
	l.entries[l.count] = m
	l.count++
	l.lastUpdate = time.Now()
}

// rehash recomputes the digest over all current entries. A verifier
// detects tampering of any entry by recomputing and comparing.
func (l *measurementLog) rehash() {
	h := sha512.New()
	for i := 0; i < l.count; i++ {
		writeMeasurement(h, &l.entries[i])
	}
	h.Sum(l.logHash[:0])
}

// MeasurementLog is the exported, copied view of the engine log. It is
// the serialization contract verifier tools consume.
type MeasurementLog struct {
	Count      int
	LastUpdate time.Time
	LogHash    [DigestSize]byte
	Entries    []Measurement
}

// ComputeHash recomputes the log digest over Entries the way the engine
// maintains it, letting an external verifier validate LogHash.
func (l *MeasurementLog) ComputeHash() [DigestSize]byte {
	h := sha512.New()
	for i := range l.Entries {
		writeMeasurement(h, &l.Entries[i])
	}
	var out [DigestSize]byte
	h.Sum(out[:0])
	return out
}

// ExportLog returns a defensive copy of the measurement log.
func (e *Engine) ExportLog() (*MeasurementLog, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, ErrNotInitialized
	}

	out := &MeasurementLog{
		Count:      e.mlog.count,
		LastUpdate: e.mlog.lastUpdate,
		LogHash:    e.mlog.logHash,
		Entries:    make([]Measurement, e.mlog.count),
	}
	copy(out.Entries, e.mlog.entries[:e.mlog.count])
	return out, nil
}

// VerifyLog recomputes the log hash and compares it to the stored value,
// detecting out-of-band tampering with log entries.
func (e *Engine) VerifyLog() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return ErrNotInitialized
	}

	h := sha512.New()
	for i := 0; i < e.mlog.count; i++ {
		writeMeasurement(h, &e.mlog.entries[i])
	}
	var want [DigestSize]byte
	h.Sum(want[:0])

	if !utils.ConstantTimeEqual(e.mlog.logHash[:], want[:]) {
		return fmt.Errorf("%w: measurement log hash mismatch", ErrIntegrity)
	}
	return nil
}
