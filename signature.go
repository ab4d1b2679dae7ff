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
	"crypto"
	"crypto/rsa"
	"crypto/sha512"
	"fmt"

	"github.com/facebookincubator/tme/audit"
)

// VerifySignature checks an RSA-PSS signature over data against the
// configured verification key. The signature length must exactly match
// the key's size before any cryptographic work happens; after that, every
// verification failure is reported uniformly as ErrSecurity with no
// distinction between malformed and wrong at the timing level.
func (e *Engine) VerifySignature(data, signature []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.verifySignatureLocked(data, signature)
	e.emit(audit.KindSignature, err, "")
	return err
}

func (e *Engine) verifySignatureLocked(data, signature []byte) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if e.cfg.VerificationKey == nil {
		return fmt.Errorf("%w: no verification key configured", ErrInvalidParam)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty data", ErrInvalidParam)
	}
	if len(signature) != e.cfg.VerificationKey.Size() {
		return fmt.Errorf(
			"%w: signature length %d, expected %d",
			ErrInvalidParam, len(signature), e.cfg.VerificationKey.Size(),
		)
	}

	digest := sha512.Sum512(data)
	opts := &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA512,
	}
	if err := rsa.VerifyPSS(e.cfg.VerificationKey, crypto.SHA512, digest[:], signature, opts); err != nil {
		return ErrSecurity
	}
	return nil
}
