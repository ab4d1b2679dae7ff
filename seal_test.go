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

func TestSealUnsealRoundtrip(t *testing.T) {
	eng, _ := newTestEngine(t)

	if err := eng.Extend(PCRBootChain, []byte("loader")); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}

	secret := []byte("disk encryption key")
	blob, err := eng.Seal(secret)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(blob.Ciphertext, secret) {
		t.Error("ciphertext contains the plaintext")
	}

	got, err := eng.Unseal(blob)
	if err != nil {
		t.Fatalf("Unseal failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Error("unsealed data does not match the sealed payload")
	}
}

func TestUnsealFailsAfterExtend(t *testing.T) {
	eng, _ := newTestEngine(t)

	blob, err := eng.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if err := eng.Extend(PCRRuntime, []byte("late-loaded module")); err != nil {
		t.Fatalf("Extend failed: %v", err)
	}

	if _, err := eng.Unseal(blob); !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity after PCR state moved, got %v", err)
	}
}

func TestSealValidation(t *testing.T) {
	eng, _ := newTestEngine(t)

	if _, err := eng.Seal(nil); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam for empty data, got %v", err)
	}
	big := make([]byte, DefaultMaxSealedDataSize+1)
	if _, err := eng.Seal(big); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam for oversized data, got %v", err)
	}
	if _, err := eng.Seal(make([]byte, DefaultMaxSealedDataSize)); err != nil {
		t.Errorf("payload at the size limit should seal, got %v", err)
	}
}

func TestUnsealValidation(t *testing.T) {
	eng, _ := newTestEngine(t)

	if _, err := eng.Unseal(nil); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam for nil blob, got %v", err)
	}
	if _, err := eng.Unseal(&SealedBlob{}); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam for empty blob, got %v", err)
	}
	if _, err := eng.Unseal(&SealedBlob{Ciphertext: []byte("garbage")}); !errors.Is(err, ErrSecurity) {
		t.Errorf("expected ErrSecurity for malformed ciphertext, got %v", err)
	}
}

func TestSealUninitialized(t *testing.T) {
	eng, err := New(testConfig(), device.NewSimulator())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := eng.Seal([]byte("x")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized from Seal, got %v", err)
	}
	if _, err := eng.Unseal(&SealedBlob{Ciphertext: []byte("x")}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized from Unseal, got %v", err)
	}
}
