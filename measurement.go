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
	"encoding/binary"
	"hash"
)

// This file defines the measurement and boot chain structures the engine
// shares with boot loaders and verifier tools. Field widths are fixed;
// integers are encoded little-endian wherever a digest covers them.

const (
	// DigestSize is the width of every digest the engine handles (SHA-512).
	DigestSize = sha512.Size

	// NumPCRBanks is the number of measurement registers in the bank table.
	NumPCRBanks = 24

	// MaxLogEntries is the measurement log capacity for one boot.
	MaxLogEntries = 32

	// MaxSignatureSize is the widest measurement signature accepted
	// (RSA-4096).
	MaxSignatureSize = 512

	// BootChainVersion is the protocol version VerifyBootChain accepts.
	BootChainVersion uint16 = 0x0100
)

// Well-known PCR bank assignments.
const (
	// PCRBootChain records boot chain measurements.
	PCRBootChain uint32 = 0
	// PCRKernel records kernel image measurements.
	PCRKernel uint32 = 1
	// PCRModules records kernel module measurements.
	PCRModules uint32 = 2
	// PCRConfig records configuration measurements.
	PCRConfig uint32 = 3
	// PCRRuntime records runtime measurements.
	PCRRuntime uint32 = 4
)

// Measurement is one attested fact about system state: the digest of a
// measured payload plus the metadata binding it into a boot chain.
// Immutable once constructed.
type Measurement struct {
	// PCRIndex addresses the bank this measurement extends.
	PCRIndex uint32

	// Hash is the measurement digest. Within a boot chain submitted for
	// verification it must equal MetadataDigest over the other fields.
	Hash [DigestSize]byte

	// Signature is an asymmetric signature over the measurement, produced
	// by the measuring component. Sized for the largest supported key.
	Signature [MaxSignatureSize]byte

	// Timestamp is when the measurement was taken, in Unix nanoseconds.
	Timestamp uint64

	// SequenceNumber orders measurements within one boot chain. Strictly
	// increasing; reuse is treated as replay.
	SequenceNumber uint64
}

// BootChain is an ordered set of measurements submitted once for
// verification, typically assembled by the boot loader.
type BootChain struct {
	// Version must equal BootChainVersion.
	Version uint16

	// Measurements holds 1..MaxLogEntries entries in extension order.
	Measurements []Measurement

	// Log is the submitter's own measurement log, carried for audit
	// tooling. Verification rebuilds the engine log from Measurements and
	// does not consult this copy.
	Log MeasurementLog
}

// MetadataDigest computes the integrity digest a valid measurement must
// carry: SHA-512 over the little-endian encoding of (pcrIndex, timestamp,
// sequenceNumber). This covers metadata only; payload digests are a
// separate contract handled by Extend.
func MetadataDigest(pcrIndex uint32, timestamp, sequenceNumber uint64) [DigestSize]byte {
	var buf [20]byte
	binary.LittleEndian.PutUint32(buf[0:4], pcrIndex)
	binary.LittleEndian.PutUint64(buf[4:12], timestamp)
	binary.LittleEndian.PutUint64(buf[12:20], sequenceNumber)
	return sha512.Sum512(buf[:])
}

// writeMeasurement feeds a measurement's canonical encoding into h. Used
// for the running log hash.
func writeMeasurement(h hash.Hash, m *Measurement) {
	var buf [20]byte
	binary.LittleEndian.PutUint32(buf[0:4], m.PCRIndex)
	binary.LittleEndian.PutUint64(buf[4:12], m.Timestamp)
	binary.LittleEndian.PutUint64(buf[12:20], m.SequenceNumber)
	h.Write(buf[:])
	h.Write(m.Hash[:])
	h.Write(m.Signature[:])
}
