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

	"github.com/facebookincubator/flog"
	"github.com/facebookincubator/tme/audit"
	"github.com/facebookincubator/tme/utils"
)

// This file implements boot chain verification.

// VerifyBootChain validates a submitted boot chain and, when every check
// passes, extends the addressed banks and commits the measurements to the
// log. Fail-closed: the first failing check aborts the whole verification.
//
// Verification runs in two phases. Phase one validates the entire chain
// (version, count, per-measurement PCR range, metadata digest compared in
// constant time, strictly increasing sequence numbers) without touching
// any state, so a chain that cannot fully verify extends nothing
// and logs nothing. Phase two performs the extends and then commits all
// log entries in one batch, so the log hash is recomputed exactly once
// and a device failure partway through leaves the log untouched.
func (e *Engine) VerifyBootChain(chain *BootChain) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.verifyBootChainLocked(chain)
	e.emit(audit.KindVerifyChain, err, "")
	return err
}

func (e *Engine) verifyBootChainLocked(chain *BootChain) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if chain == nil {
		return fmt.Errorf("%w: nil boot chain", ErrInvalidParam)
	}
	if chain.Version != BootChainVersion {
		return fmt.Errorf(
			"%w: got %#04x, support %#04x",
			ErrInvalidVersion, chain.Version, BootChainVersion,
		)
	}
	n := len(chain.Measurements)
	if n < 1 || n > MaxLogEntries {
		return fmt.Errorf("%w: %d measurements", ErrInvalidMeasurement, n)
	}
	if !e.mlog.canAppend(n) {
		return fmt.Errorf(
			"%w: %d entries would exceed capacity %d",
			ErrOverflow, e.mlog.count+n, MaxLogEntries,
		)
	}

	// Phase one: validate everything before mutating anything.
	var lastSeq uint64
	for i := range chain.Measurements {
		m := &chain.Measurements[i]

		if m.PCRIndex >= NumPCRBanks {
			return fmt.Errorf(
				"%w: measurement %d addresses bank %d",
				ErrInvalidPCR, i, m.PCRIndex,
			)
		}
		if !e.banks[m.PCRIndex].checkIntegrity() {
			return fmt.Errorf(
				"%w: bank %d state corrupted",
				ErrIntegrity, m.PCRIndex,
			)
		}

		want := MetadataDigest(m.PCRIndex, m.Timestamp, m.SequenceNumber)
		if !utils.ConstantTimeEqual(want[:], m.Hash[:]) {
			return fmt.Errorf(
				"%w: measurement %d metadata digest mismatch",
				ErrIntegrity, i,
			)
		}

		if i > 0 && m.SequenceNumber <= lastSeq {
			return fmt.Errorf(
				"%w: measurement %d sequence %d after %d",
				ErrSequenceInvalid, i, m.SequenceNumber, lastSeq,
			)
		}
		lastSeq = m.SequenceNumber
	}

	// Phase two: extend, then batch-commit the log. A device failure here
	// aborts with the hardware partially extended but the log unchanged;
	// the caller must treat the boot as unverified either way.
	for i := range chain.Measurements {
		m := &chain.Measurements[i]
		if err := e.extendLocked(m.PCRIndex, m.Hash[:]); err != nil {
			flog.Warningf("Boot chain aborted at measurement %d: %v", i, err)
			return err
		}
	}
	for i := range chain.Measurements {
		e.mlog.append(chain.Measurements[i])
	}
	e.mlog.rehash()

	flog.Debugf("Verified boot chain of %d measurements", n)
	return nil
}
