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
	"fmt"
	"time"

	"github.com/facebookincubator/flog"
	"github.com/facebookincubator/tme/diskio"
	"github.com/facebookincubator/tme/utils"
)

// This file persists engine artifacts that must survive a restart. Sealed
// blobs are hardware ciphertext and log snapshots are audit data, so
// neither needs further protection on disk beyond file permissions.

// Keys are plain file names in the diskv store, so prefixes must not
// contain path separators.
const (
	sealedBlobKeyPrefix  = "sealed-"
	logSnapshotKeyPrefix = "log-"
)

// storedBlob is the on-disk form of a sealed blob.
type storedBlob struct {
	Ciphertext []byte
	CreatedAt  time.Time
}

// storedLogSnapshot is the on-disk form of a measurement log snapshot.
type storedLogSnapshot struct {
	Log        MeasurementLog
	CapturedAt time.Time
}

// SaveSealedBlob persists a sealed blob under the given identifier.
// Pass an empty id to have a content-derived key chosen. Returns the key
// used.
func SaveSealedBlob(id string, blob *SealedBlob) (string, error) {
	if blob == nil || len(blob.Ciphertext) == 0 {
		return "", fmt.Errorf("%w: empty sealed blob", ErrInvalidParam)
	}

	db, err := diskio.OpenDB()
	if err != nil {
		return "", fmt.Errorf("%w: open blob store: %v", ErrIO, err)
	}

	encoded, err := utils.MarshalBytes(storedBlob{
		Ciphertext: blob.Ciphertext,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode sealed blob: %v", ErrIO, err)
	}

	var key string
	if id != "" {
		key = sealedBlobKeyPrefix + id
	}
	key, err = db.Save(key, encoded)
	if err != nil {
		return "", fmt.Errorf("%w: save sealed blob: %v", ErrIO, err)
	}
	if flog.V(5) {
		flog.Debugf("Saved sealed blob under key %q", key)
	}
	return key, nil
}

// LoadSealedBlob loads a previously saved sealed blob by the key returned
// from SaveSealedBlob.
func LoadSealedBlob(key string) (*SealedBlob, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidParam)
	}

	db, err := diskio.OpenDB()
	if err != nil {
		return nil, fmt.Errorf("%w: open blob store: %v", ErrIO, err)
	}

	raw, err := db.Load(key)
	if err != nil {
		return nil, fmt.Errorf("%w: load sealed blob %q: %v", ErrIO, key, err)
	}

	var stored storedBlob
	if err := utils.UnmarshalBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("%w: decode sealed blob %q: %v", ErrIO, key, err)
	}
	if len(stored.Ciphertext) == 0 {
		return nil, fmt.Errorf("%w: sealed blob %q is empty", ErrIntegrity, key)
	}
	return &SealedBlob{Ciphertext: stored.Ciphertext}, nil
}

// DeleteSealedBlob removes a sealed blob from the store.
func DeleteSealedBlob(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidParam)
	}

	db, err := diskio.OpenDB()
	if err != nil {
		return fmt.Errorf("%w: open blob store: %v", ErrIO, err)
	}
	if err := db.Delete(key); err != nil {
		return fmt.Errorf("%w: delete sealed blob %q: %v", ErrIO, key, err)
	}
	return nil
}

// SaveLogSnapshot captures the current measurement log and persists it
// for offline audit. Returns the key the snapshot was stored under.
func (e *Engine) SaveLogSnapshot() (string, error) {
	snapshot, err := e.ExportLog()
	if err != nil {
		return "", err
	}

	db, err := diskio.OpenDB()
	if err != nil {
		return "", fmt.Errorf("%w: open blob store: %v", ErrIO, err)
	}

	captured := time.Now()
	encoded, err := utils.MarshalBytes(storedLogSnapshot{
		Log:        *snapshot,
		CapturedAt: captured,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode log snapshot: %v", ErrIO, err)
	}

	key := logSnapshotKeyPrefix + captured.UTC().Format(time.RFC3339Nano)
	if _, err := db.Save(key, encoded); err != nil {
		return "", fmt.Errorf("%w: save log snapshot: %v", ErrIO, err)
	}
	flog.Debugf("Saved measurement log snapshot (%d entries) under key %q", snapshot.Count, key)
	return key, nil
}

// LoadLogSnapshot loads a measurement log snapshot by key and verifies
// its integrity hash before returning it.
func LoadLogSnapshot(key string) (*MeasurementLog, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidParam)
	}

	db, err := diskio.OpenDB()
	if err != nil {
		return nil, fmt.Errorf("%w: open blob store: %v", ErrIO, err)
	}

	raw, err := db.Load(key)
	if err != nil {
		return nil, fmt.Errorf("%w: load log snapshot %q: %v", ErrIO, key, err)
	}

	var stored storedLogSnapshot
	if err := utils.UnmarshalBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("%w: decode log snapshot %q: %v", ErrIO, key, err)
	}

	want := stored.Log.ComputeHash()
	if !utils.ConstantTimeEqual(stored.Log.LogHash[:], want[:]) {
		return nil, fmt.Errorf("%w: log snapshot %q hash mismatch", ErrIntegrity, key)
	}
	return &stored.Log, nil
}
