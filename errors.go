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

import "errors"

// Errors returned by engine operations. Every security decision fails
// closed: the first violated check aborts the operation with one of these,
// and no partial state is committed. Use errors.Is to classify wrapped
// returns.
var (
	// ErrInvalidParam indicates a malformed or out-of-range argument.
	ErrInvalidParam = errors.New("tme: invalid parameter")

	// ErrNotInitialized indicates the engine has not been initialized.
	ErrNotInitialized = errors.New("tme: engine not initialized")

	// ErrAlreadyInitialized indicates Init was called on a live engine.
	// Initialization is deliberately not idempotent.
	ErrAlreadyInitialized = errors.New("tme: engine already initialized")

	// ErrIntegrity indicates a hash, signature or log mismatch: in-memory
	// bank state failed its self-check, a measurement's metadata digest did
	// not verify, or sealed data was bound to a different PCR state.
	ErrIntegrity = errors.New("tme: integrity check failed")

	// ErrInvalidPCR indicates a PCR index outside the bank table.
	ErrInvalidPCR = errors.New("tme: pcr index out of range")

	// ErrInvalidVersion indicates a boot chain with an unsupported
	// protocol version.
	ErrInvalidVersion = errors.New("tme: unsupported boot chain version")

	// ErrInvalidMeasurement indicates a boot chain with a measurement
	// count outside 1..MaxLogEntries.
	ErrInvalidMeasurement = errors.New("tme: invalid measurement count")

	// ErrSequenceInvalid indicates out-of-order or repeated sequence
	// numbers within a boot chain.
	ErrSequenceInvalid = errors.New("tme: measurement sequence not strictly increasing")

	// ErrEntropyLow indicates the device's entropy estimate is below the
	// configured floor.
	ErrEntropyLow = errors.New("tme: entropy estimate below required floor")

	// ErrOverflow indicates the measurement log cannot hold further
	// entries. Overflow is a hard error, never a silent drop.
	ErrOverflow = errors.New("tme: measurement log full")

	// ErrSecurity indicates a cryptographic or hardware denial. Signature
	// verification failures are reported uniformly as ErrSecurity with no
	// distinction between malformed and wrong.
	ErrSecurity = errors.New("tme: security violation")

	// ErrIO indicates a device-transport failure.
	ErrIO = errors.New("tme: device i/o failure")
)
