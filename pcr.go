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

	"github.com/facebookincubator/flog"
	"github.com/facebookincubator/tme/audit"
	"github.com/facebookincubator/tme/utils"
)

// This file holds the PCR bank table and the extend operation.

// pcrBank is one measurement register mirror. value reflects the last
// digest handed to the hardware; the device's own accumulator remains
// authoritative. integrityHash must equal H(value) before any read or
// extend, detecting out-of-band tampering of the in-memory copy.
type pcrBank struct {
	index         uint32
	value         [DigestSize]byte
	lastExtended  time.Time
	integrityHash [DigestSize]byte
}

// reset returns the bank to its power-on state (all-zero value) and
// restores the integrity invariant over it.
func (b *pcrBank) reset(index uint32) {
	b.index = index
	utils.Zeroize(b.value[:])
	b.lastExtended = time.Time{}
	b.rehash()
}

// rehash recomputes integrityHash after a value write.
func (b *pcrBank) rehash() {
	b.integrityHash = sha512.Sum512(b.value[:])
}

// checkIntegrity verifies integrityHash == H(value) in constant time.
func (b *pcrBank) checkIntegrity() bool {
	want := sha512.Sum512(b.value[:])
	return utils.ConstantTimeEqual(b.integrityHash[:], want[:])
}

// BankState is a read-only view of one PCR bank mirror.
type BankState struct {
	Index        uint32
	Value        [DigestSize]byte
	LastExtended time.Time
}

// Extend folds measurement into the PCR at pcrIndex. The payload is
// digested, handed to the hardware extend primitive, and on success the
// bank mirror is updated to the digest along with its integrity hash.
// The hardware chains internally; two identical extends therefore yield
// distinct device-side register values even though the mirror repeats.
func (e *Engine) Extend(pcrIndex uint32, measurement []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.extendLocked(pcrIndex, measurement)
	e.emit(audit.KindExtend, err, fmt.Sprintf("pcr=%d", pcrIndex))
	return err
}

func (e *Engine) extendLocked(pcrIndex uint32, measurement []byte) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if pcrIndex >= NumPCRBanks {
		return fmt.Errorf("%w: %d", ErrInvalidPCR, pcrIndex)
	}
	if len(measurement) == 0 {
		return fmt.Errorf("%w: empty measurement", ErrInvalidParam)
	}

	bank := &e.banks[pcrIndex]
	if !bank.checkIntegrity() {
		flog.Criticalf("PCR bank %d failed integrity self-check", pcrIndex)
		return fmt.Errorf("%w: bank %d state corrupted", ErrIntegrity, pcrIndex)
	}

	digest := sha512.Sum512(measurement)
	defer utils.Zeroize(digest[:])

	if err := e.dev.ExtendPCR(pcrIndex, digest[:]); err != nil {
		return fmt.Errorf("%w: extend on bank %d: %v", ErrIO, pcrIndex, err)
	}

	copy(bank.value[:], digest[:])
	bank.lastExtended = time.Now()
	bank.rehash()

	if flog.V(5) {
		flog.Debugf("Extended PCR %d", pcrIndex)
	}
	return nil
}

// ReadPCR returns the mirrored state of one bank. The same integrity
// precheck as Extend applies; a corrupted mirror is reported, never
// silently repaired.
func (e *Engine) ReadPCR(pcrIndex uint32) (*BankState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, ErrNotInitialized
	}
	if pcrIndex >= NumPCRBanks {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPCR, pcrIndex)
	}

	bank := &e.banks[pcrIndex]
	if !bank.checkIntegrity() {
		return nil, fmt.Errorf("%w: bank %d state corrupted", ErrIntegrity, pcrIndex)
	}

	state := &BankState{
		Index:        bank.index,
		LastExtended: bank.lastExtended,
	}
	copy(state.Value[:], bank.value[:])
	return state, nil
}

// compositeLocked computes the digest over the full bank table, the value
// sealing operations bind to. Every bank must pass its integrity check
// first. Callers own zeroizing the returned buffer.
func (e *Engine) compositeLocked() ([]byte, error) {
	h := sha512.New()
	for i := range e.banks {
		bank := &e.banks[i]
		if !bank.checkIntegrity() {
			return nil, fmt.Errorf("%w: bank %d state corrupted", ErrIntegrity, bank.index)
		}
		h.Write(bank.value[:])
	}
	return h.Sum(nil), nil
}
