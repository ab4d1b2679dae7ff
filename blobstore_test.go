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
)

// The disk store is a process-wide singleton, so all persistence
// coverage lives in one test that points it at a scratch directory
// before first use.
func TestBlobStore(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	eng, _ := newTestEngine(t)

	blob, err := eng.Seal([]byte("persisted secret"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	key, err := SaveSealedBlob("disk-key", blob)
	if err != nil {
		t.Fatalf("SaveSealedBlob failed: %v", err)
	}

	loaded, err := LoadSealedBlob(key)
	if err != nil {
		t.Fatalf("LoadSealedBlob failed: %v", err)
	}
	if !bytes.Equal(loaded.Ciphertext, blob.Ciphertext) {
		t.Error("loaded blob does not match the saved one")
	}

	got, err := eng.Unseal(loaded)
	if err != nil {
		t.Fatalf("Unseal of loaded blob failed: %v", err)
	}
	if !bytes.Equal(got, []byte("persisted secret")) {
		t.Error("unsealed payload does not match")
	}

	if err := DeleteSealedBlob(key); err != nil {
		t.Fatalf("DeleteSealedBlob failed: %v", err)
	}
	if _, err := LoadSealedBlob(key); !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO loading a deleted blob, got %v", err)
	}

	// Content-derived keys when no identifier is given.
	autoKey, err := SaveSealedBlob("", blob)
	if err != nil {
		t.Fatalf("SaveSealedBlob without id failed: %v", err)
	}
	if autoKey == "" {
		t.Error("expected a generated key")
	}

	if _, err := SaveSealedBlob("x", nil); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam for nil blob, got %v", err)
	}
	if _, err := LoadSealedBlob(""); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("expected ErrInvalidParam for empty key, got %v", err)
	}

	// Log snapshots share the store.
	if err := eng.VerifyBootChain(makeChain(2, PCRKernel, 1)); err != nil {
		t.Fatalf("VerifyBootChain failed: %v", err)
	}
	snapKey, err := eng.SaveLogSnapshot()
	if err != nil {
		t.Fatalf("SaveLogSnapshot failed: %v", err)
	}
	snap, err := LoadLogSnapshot(snapKey)
	if err != nil {
		t.Fatalf("LoadLogSnapshot failed: %v", err)
	}
	if snap.Count != 2 {
		t.Errorf("expected 2 entries in snapshot, got %d", snap.Count)
	}
}
