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
	"bytes"
	"errors"
	"testing"

	"github.com/facebookincubator/tme/device"
)

// brokenRNG delegates to a simulator but fails or truncates Random.
type brokenRNG struct {
	*device.Simulator
	fail     bool
	truncate bool
}

func (b *brokenRNG) Random(n int) ([]byte, error) {
	if b.fail {
		return nil, errors.New("rng hardware fault")
	}
	if b.truncate {
		return b.Simulator.Random(n / 2)
	}
	return b.Simulator.Random(n)
}

func TestGetRandom(t *testing.T) {
	eng, _ := newTestEngine(t)

	buf := make([]byte, 64)
	if err := eng.GetRandom(buf); err != nil {
		t.Fatalf("GetRandom failed: %v", err)
	}
	if bytes.Equal(buf, make([]byte, 64)) {
		t.Error("buffer should not remain all zero after GetRandom")
	}
}

func TestGetRandomValidation(t *testing.T) {
	eng, _ := newTestEngine(t)

	if err := eng.GetRandom(nil); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam for empty buffer, got %v", err)
	}
}

func TestGetRandomEntropyFloor(t *testing.T) {
	eng, sim := newTestEngine(t)

	// The source degrades after init.
	sim.SetEntropyEstimate(100)

	buf := make([]byte, 32)
	buf[0] = 0xaa
	if err := eng.GetRandom(buf); !errors.Is(err, ErrEntropyLow) {
		t.Fatalf("expected ErrEntropyLow, got %v", err)
	}
	if !bytes.Equal(buf, make([]byte, 32)) {
		t.Error("buffer must be zeroed when entropy is below the floor")
	}
}

func TestGetRandomDeviceFailure(t *testing.T) {
	dev := &brokenRNG{Simulator: device.NewSimulator(), fail: true}
	eng, err := New(testConfig(), dev)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	buf := make([]byte, 32)
	buf[0] = 0xaa
	if err := eng.GetRandom(buf); !errors.Is(err, ErrSecurity) {
		t.Fatalf("expected ErrSecurity on rng failure, got %v", err)
	}
	if !bytes.Equal(buf, make([]byte, 32)) {
		t.Error("buffer must be zeroed on rng failure")
	}
}

func TestGetRandomShortRead(t *testing.T) {
	dev := &brokenRNG{Simulator: device.NewSimulator(), truncate: true}
	eng, err := New(testConfig(), dev)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	buf := make([]byte, 32)
	if err := eng.GetRandom(buf); !errors.Is(err, ErrSecurity) {
		t.Fatalf("expected ErrSecurity on short read, got %v", err)
	}
	if !bytes.Equal(buf, make([]byte, 32)) {
		t.Error("buffer must be zeroed on short read")
	}
}
