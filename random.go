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

	"github.com/facebookincubator/tme/audit"
	"github.com/facebookincubator/tme/utils"
)

// GetRandom fills buffer with hardware-generated random bytes. The
// device's entropy health estimate must meet the configured floor before
// any bytes are requested. On any failure the buffer is zeroed before the
// error returns, so callers never observe a partially filled buffer as if
// it were fully random.
func (e *Engine) GetRandom(buffer []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.getRandomLocked(buffer)
	e.emit(audit.KindRandom, err, fmt.Sprintf("len=%d", len(buffer)))
	return err
}

func (e *Engine) getRandomLocked(buffer []byte) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if len(buffer) == 0 {
		return fmt.Errorf("%w: empty buffer", ErrInvalidParam)
	}

	bits, err := e.dev.EntropyEstimate()
	if err != nil {
		utils.Zeroize(buffer)
		return fmt.Errorf("%w: entropy estimate: %v", ErrIO, err)
	}
	if bits < e.cfg.EntropyFloor {
		utils.Zeroize(buffer)
		return fmt.Errorf(
			"%w: %d bits below floor of %d",
			ErrEntropyLow, bits, e.cfg.EntropyFloor,
		)
	}

	random, err := e.dev.Random(len(buffer))
	if err != nil {
		utils.Zeroize(buffer)
		return fmt.Errorf("%w: hardware rng: %v", ErrSecurity, err)
	}
	if len(random) != len(buffer) {
		utils.ZeroizeAll(buffer, random)
		return fmt.Errorf(
			"%w: hardware rng returned %d of %d bytes",
			ErrSecurity, len(random), len(buffer),
		)
	}

	copy(buffer, random)
	utils.Zeroize(random)
	return nil
}
