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
	"errors"
	"fmt"

	"github.com/facebookincubator/tme/audit"
	"github.com/facebookincubator/tme/device"
	"github.com/facebookincubator/tme/utils"
)

// This file implements sealing secrets to measured state.

// SealedBlob is opaque hardware ciphertext bound to the PCR composite
// captured at seal time. The binding is enforced by the device, not by
// any engine-visible state.
type SealedBlob struct {
	Ciphertext []byte
}

// Seal binds data to the current measured state. The payload is staged
// into ephemeral key material scoped to this call and handed to the
// hardware seal primitive along with the current PCR composite; both
// buffers are zeroed before return on every path.
//
// The returned blob can be recovered with Unseal only while the PCR
// composite is unchanged.
func (e *Engine) Seal(data []byte) (*SealedBlob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	blob, err := e.sealLocked(data)
	e.emit(audit.KindSeal, err, "")
	return blob, err
}

func (e *Engine) sealLocked(data []byte) (*SealedBlob, error) {
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	if len(data) == 0 || len(data) > e.cfg.MaxSealedDataSize {
		return nil, fmt.Errorf(
			"%w: data length %d outside 1..%d",
			ErrInvalidParam, len(data), e.cfg.MaxSealedDataSize,
		)
	}

	keyMaterial := make([]byte, len(data))
	copy(keyMaterial, data)
	defer utils.Zeroize(keyMaterial)

	composite, err := e.compositeLocked()
	if err != nil {
		return nil, err
	}
	defer utils.Zeroize(composite)

	ciphertext, err := e.dev.Seal(keyMaterial, composite)
	if err != nil {
		return nil, fmt.Errorf("%w: seal: %v", ErrSecurity, err)
	}
	return &SealedBlob{Ciphertext: ciphertext}, nil
}

// Unseal recovers data previously sealed to measured state. The current
// PCR composite is recomputed and passed to the hardware as the unseal
// authorization; the digest buffer is zeroed after use regardless of
// outcome. A PCR state mismatch surfaces as ErrIntegrity and no partial
// plaintext is ever returned on failure.
func (e *Engine) Unseal(blob *SealedBlob) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := e.unsealLocked(blob)
	e.emit(audit.KindUnseal, err, "")
	return data, err
}

func (e *Engine) unsealLocked(blob *SealedBlob) ([]byte, error) {
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	if blob == nil || len(blob.Ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty sealed blob", ErrInvalidParam)
	}

	digest, err := e.compositeLocked()
	if err != nil {
		return nil, err
	}
	defer utils.Zeroize(digest)

	data, err := e.dev.Unseal(blob.Ciphertext, digest)
	if err != nil {
		if errors.Is(err, device.ErrPCRMismatch) {
			return nil, fmt.Errorf("%w: pcr state changed since seal", ErrIntegrity)
		}
		return nil, fmt.Errorf("%w: unseal: %v", ErrSecurity, err)
	}
	return data, nil
}
