// Package device abstracts the hardware attestation device (a TPM 2.0 or
// compatible secure element) behind a narrow interface the measurement
// engine consumes.

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

package device

import "errors"

// Capability bits reported by the hardware device. The engine requires
// CapSHA512 and CapRSA at initialization time.
const (
	// CapSHA512 indicates the device supports 512-bit hash extension.
	CapSHA512 uint64 = 1 << 0

	// CapRSA indicates the device supports RSA signature operations.
	CapRSA uint64 = 1 << 1

	// CapECC indicates the device supports ECC signature operations.
	CapECC uint64 = 1 << 2

	// CapSealing indicates the device supports sealing data to PCR state.
	CapSealing uint64 = 1 << 3

	// CapHardwareRNG indicates the device has a hardware entropy source.
	CapHardwareRNG uint64 = 1 << 4
)

// Common errors returned by device implementations.
var (
	// ErrUnavailable indicates the device could not be reached or opened.
	ErrUnavailable = errors.New("device: unavailable")

	// ErrPCRMismatch indicates an unseal operation was rejected because the
	// presented PCR digest does not match the state the data was sealed to.
	ErrPCRMismatch = errors.New("device: pcr policy mismatch")

	// ErrInvalidIndex indicates a PCR index outside the device's bank range.
	ErrInvalidIndex = errors.New("device: invalid pcr index")

	// ErrClosed indicates the device handle has been closed.
	ErrClosed = errors.New("device: closed")
)

// Capabilities describes the hardware device as reported at open time. The
// engine reads this once during initialization and treats it as immutable
// afterward.
type Capabilities struct {
	// VersionMajor and VersionMinor identify the implemented specification
	// version. TPM 2.0 devices report 2 and 0.
	VersionMajor uint8
	VersionMinor uint8

	// Manufacturer is the vendor ID as reported by the device.
	Manufacturer uint32

	// Capabilities is the capability bitset (CapSHA512, CapRSA, ...).
	Capabilities uint64

	// FirmwareVersion is the vendor firmware revision.
	FirmwareVersion uint32

	// SecurityLevel is the security certification level claimed by the
	// vendor (e.g. FIPS 140-2 level). Zero when unknown.
	SecurityLevel uint32
}

// Device is the interface to anything providing hardware measurement,
// sealing and random generation primitives. This could be a discrete TPM,
// a firmware TPM, or a software simulator for tests.
//
// All methods are synchronous and safe to call from one goroutine at a
// time; serialization across callers is the responsibility of the engine.
type Device interface {
	// QueryCapabilities reads the device description. It is called once at
	// engine initialization.
	QueryCapabilities() (*Capabilities, error)

	// ExtendPCR folds digest into the device's PCR at the given index. The
	// device chains internally: the new register value is a one-way
	// function of the previous value and the digest. The digest must be
	// exactly the device's digest width.
	ExtendPCR(index uint32, digest []byte) error

	// Seal binds keyMaterial to the presented PCR composite and returns an
	// opaque ciphertext. The ciphertext can only be unsealed while the
	// device can be shown the same composite.
	Seal(keyMaterial, pcrComposite []byte) ([]byte, error)

	// Unseal recovers data previously sealed with Seal. pcrDigest is the
	// caller's claim of the current PCR composite; the device rejects the
	// operation with ErrPCRMismatch if it does not match the sealed state.
	Unseal(ciphertext, pcrDigest []byte) ([]byte, error)

	// Random returns n bytes from the device's hardware RNG.
	Random(n int) ([]byte, error)

	// EntropyEstimate reports the device's current entropy health estimate
	// in bits.
	EntropyEstimate() (uint32, error)

	// Close releases the device handle. Calls after Close fail with
	// ErrClosed.
	Close() error
}
