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
	"crypto/sha512"
	"errors"
	"testing"

	"github.com/facebookincubator/tme/device"
)

func TestExtendUpdatesMirror(t *testing.T) {
	eng, _ := newTestEngine(t)

	payload := []byte("kernel image")
	if err := eng.Extend(PCRKernel, payload); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}

	state, err := eng.ReadPCR(PCRKernel)
	if err != nil {
		t.Fatalf("ReadPCR failed: %v", err)
	}
	want := sha512.Sum512(payload)
	if state.Value != want {
		t.Error("mirror should hold the digest of the last extended payload")
	}
	if state.LastExtended.IsZero() {
		t.Error("LastExtended should be set after an extend")
	}
}

func TestExtendChainsInHardware(t *testing.T) {
	eng, sim := newTestEngine(t)

	payload := []byte("same payload twice")
	if err := eng.Extend(PCRConfig, payload); err != nil {
		t.Fatalf("first Extend failed: %v", err)
	}
	first, err := sim.ReadPCR(PCRConfig)
	if err != nil {
		t.Fatalf("simulator ReadPCR failed: %v", err)
	}

	if err := eng.Extend(PCRConfig, payload); err != nil {
		t.Fatalf("second Extend failed: %v", err)
	}
	second, err := sim.ReadPCR(PCRConfig)
	if err != nil {
		t.Fatalf("simulator ReadPCR failed: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Error("repeating an extend must move the hardware register")
	}
}

func TestExtendValidation(t *testing.T) {
	eng, _ := newTestEngine(t)

	if err := eng.Extend(NumPCRBanks, []byte("x")); !errors.Is(err, ErrInvalidPCR) {
		t.Errorf("expected ErrInvalidPCR for out-of-range index, got %v", err)
	}
	if err := eng.Extend(PCRKernel, nil); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam for empty measurement, got %v", err)
	}
}

func TestExtendUninitialized(t *testing.T) {
	eng, err := New(testConfig(), device.NewSimulator())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := eng.Extend(PCRKernel, []byte("x")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestExtendDetectsCorruptedBank(t *testing.T) {
	eng, _ := newTestEngine(t)

	// Tamper with the mirror behind the engine's back.
	eng.banks[PCRKernel].value[0] ^= 0xff

	if err := eng.Extend(PCRKernel, []byte("x")); !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity on corrupted bank, got %v", err)
	}
	if _, err := eng.ReadPCR(PCRKernel); !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity from ReadPCR, got %v", err)
	}
}

func TestReadPCRValidation(t *testing.T) {
	eng, _ := newTestEngine(t)

	if _, err := eng.ReadPCR(NumPCRBanks); !errors.Is(err, ErrInvalidPCR) {
		t.Errorf("expected ErrInvalidPCR, got %v", err)
	}
}

func TestReadPCRReturnsCopy(t *testing.T) {
	eng, _ := newTestEngine(t)

	if err := eng.Extend(PCRRuntime, []byte("runtime")); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	state, err := eng.ReadPCR(PCRRuntime)
	if err != nil {
		t.Fatalf("ReadPCR failed: %v", err)
	}
	state.Value[0] ^= 0xff

	// The engine's copy must be unaffected by mutation of the view.
	if _, err := eng.ReadPCR(PCRRuntime); err != nil {
		t.Errorf("engine state corrupted through returned view: %v", err)
	}
}
