//go:build linux
// +build linux

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

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/facebookincubator/flog"
	"github.com/google/go-attestation/attest"
	"github.com/google/go-tpm/legacy/tpm2"
	"github.com/google/go-tpm/tpmutil"
)

// This file contains the Device implementation backed by a physical (or
// firmware) TPM 2.0 on Linux.

const (
	// tpmPCRCount is the number of PCR banks on a standard TPM 2.0.
	tpmPCRCount = 24

	// tpmEntropyBits is the entropy estimate reported for a healthy TPM.
	// TPM 2.0 does not expose a raw entropy measurement; GetRandom output
	// is DRBG-conditioned, so a device that answers commands at all is
	// credited with full-strength output.
	tpmEntropyBits = 512

	maxRandomChunk = 32
)

// TPM is the Device implementation talking to a hardware TPM 2.0.
type TPM struct {
	rwc  io.ReadWriteCloser
	path string
}

// OpenTPM opens the TPM character device at path. Unless you have a good
// reason, path should be "/dev/tpmrm0" so the kernel resource manager
// arbitrates access.
func OpenTPM(path string) (*TPM, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if (os.ModeDevice|os.ModeCharDevice|os.ModeSocket)&info.Mode() == 0 {
		return nil, fmt.Errorf(
			"%w: path %q is not a character device or socket",
			ErrUnavailable, path,
		)
	}

	rwc, err := tpm2.OpenTPM(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	flog.Debugf("Opened TPM device: %s", path)

	return &TPM{rwc: rwc, path: path}, nil
}

// QueryCapabilities implements Device. Vendor identity comes from the
// attestation stack; algorithm support is probed from the device itself.
func (t *TPM) QueryCapabilities() (*Capabilities, error) {
	if t.rwc == nil {
		return nil, ErrClosed
	}

	attestConfig := &attest.OpenConfig{
		TPMVersion:     attest.TPMVersion20,
		CommandChannel: &tpmCommandChannel{t.rwc},
	}
	attestHandle, err := attest.OpenTPM(attestConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	info, err := attestHandle.Info()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	caps := &Capabilities{
		Manufacturer:    uint32(info.Manufacturer),
		FirmwareVersion: uint32(info.FirmwareVersionMajor)<<16 | uint32(info.FirmwareVersionMinor),
		Capabilities:    CapSealing | CapHardwareRNG,
	}
	if info.Version == attest.TPMVersion20 {
		caps.VersionMajor = 2
		caps.VersionMinor = 0
	} else {
		caps.VersionMajor = 1
		caps.VersionMinor = 2
	}

	caps.Capabilities |= t.probeAlgorithms()

	if flog.V(5) {
		flog.Debugf("TPM capabilities: %+v (vendor info %q)", caps, info.VendorInfo)
	}
	return caps, nil
}

// probeAlgorithms determines hash and asymmetric algorithm support. A
// failed capability read degrades to an empty bitset, which the engine
// treats as an unsupported device.
func (t *TPM) probeAlgorithms() uint64 {
	var bits uint64

	// A successful SHA-512 bank read proves 512-bit extend support.
	if _, err := tpm2.ReadPCR(t.rwc, 0, tpm2.AlgSHA512); err == nil {
		bits |= CapSHA512
	}

	vals, _, err := tpm2.GetCapability(t.rwc, tpm2.CapabilityAlgs, tpmPCRCount*4, 0)
	if err != nil {
		flog.Warningf("TPM algorithm capability read failed: %v", err)
		return bits
	}
	for _, v := range vals {
		desc, ok := v.(tpm2.AlgorithmDescription)
		if !ok {
			continue
		}
		switch desc.ID {
		case tpm2.AlgRSA:
			bits |= CapRSA
		case tpm2.AlgECC:
			bits |= CapECC
		}
	}
	return bits
}

// ExtendPCR implements Device.
func (t *TPM) ExtendPCR(index uint32, digest []byte) error {
	if t.rwc == nil {
		return ErrClosed
	}
	if index >= tpmPCRCount {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}

	if err := tpm2.PCRExtend(t.rwc, tpmutil.Handle(index), tpm2.AlgSHA512, digest, ""); err != nil {
		return fmt.Errorf("pcr extend failed on bank %d: %w", index, err)
	}
	return nil
}

// Seal implements Device. The key material is sealed under a primary
// storage key with the PCR composite as the object authorization, so
// recovery requires presenting the same composite.
func (t *TPM) Seal(keyMaterial, pcrComposite []byte) ([]byte, error) {
	if t.rwc == nil {
		return nil, ErrClosed
	}

	srk, err := t.createSRK()
	if err != nil {
		return nil, err
	}
	defer tpm2.FlushContext(t.rwc, srk)

	priv, pub, err := tpm2.Seal(t.rwc, srk, "", compositeAuth(pcrComposite), nil, keyMaterial)
	if err != nil {
		return nil, fmt.Errorf("seal failed: %w", err)
	}

	return packSealedBlob(pub, priv), nil
}

// Unseal implements Device.
func (t *TPM) Unseal(ciphertext, pcrDigest []byte) ([]byte, error) {
	if t.rwc == nil {
		return nil, ErrClosed
	}

	pub, priv, err := unpackSealedBlob(ciphertext)
	if err != nil {
		return nil, err
	}

	srk, err := t.createSRK()
	if err != nil {
		return nil, err
	}
	defer tpm2.FlushContext(t.rwc, srk)

	obj, _, err := tpm2.Load(t.rwc, srk, "", pub, priv)
	if err != nil {
		return nil, fmt.Errorf("sealed object load failed: %w", err)
	}
	defer tpm2.FlushContext(t.rwc, obj)

	data, err := tpm2.Unseal(t.rwc, obj, compositeAuth(pcrDigest))
	if err != nil {
		// An authorization failure means the presented composite does not
		// match seal-time state.
		return nil, fmt.Errorf("%w: %v", ErrPCRMismatch, err)
	}
	return data, nil
}

// Random implements Device. GetRandom returns at most a command buffer's
// worth of bytes per call, so large requests are accumulated.
func (t *TPM) Random(n int) ([]byte, error) {
	if t.rwc == nil {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, fmt.Errorf("device: invalid random length %d", n)
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		want := n - len(out)
		if want > maxRandomChunk {
			want = maxRandomChunk
		}
		chunk, err := tpm2.GetRandom(t.rwc, uint16(want))
		if err != nil {
			return nil, fmt.Errorf("hardware rng failure: %w", err)
		}
		if len(chunk) == 0 {
			return nil, errors.New("device: hardware rng returned no data")
		}
		out = append(out, chunk...)
	}
	return out[:n], nil
}

// EntropyEstimate implements Device. The device is probed for liveness; a
// responsive TPM reports conditioned full-strength output.
func (t *TPM) EntropyEstimate() (uint32, error) {
	if t.rwc == nil {
		return 0, ErrClosed
	}
	if _, err := tpm2.GetManufacturer(t.rwc); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tpmEntropyBits, nil
}

// Close implements Device.
func (t *TPM) Close() error {
	if t.rwc == nil {
		return ErrClosed
	}
	err := t.rwc.Close()
	t.rwc = nil
	t.path = ""
	return err
}

// createSRK generates the primary storage key sealing objects live under.
// Primary keys are derived from the hierarchy seed, so the same template
// always yields the same key and nothing needs to be persisted.
func (t *TPM) createSRK() (tpmutil.Handle, error) {
	template := tpm2.Public{
		Type:       tpm2.AlgECC,
		NameAlg:    tpm2.AlgSHA256,
		Attributes: tpm2.FlagStorageDefault,
		ECCParameters: &tpm2.ECCParams{
			Symmetric: &tpm2.SymScheme{
				Alg:     tpm2.AlgAES,
				KeyBits: 128,
				Mode:    tpm2.AlgCFB,
			},
			CurveID: tpm2.CurveNISTP256,
		},
	}
	srk, _, err := tpm2.CreatePrimary(t.rwc, tpm2.HandleOwner, tpm2.PCRSelection{}, "", "", template)
	if err != nil {
		return 0, fmt.Errorf("primary key creation failed: %w", err)
	}
	return srk, nil
}

// compositeAuth converts a PCR composite digest into the object auth
// password presented to the TPM.
func compositeAuth(composite []byte) string {
	return string(composite)
}

func packSealedBlob(pub, priv []byte) []byte {
	blob := make([]byte, 0, 4+len(pub)+len(priv))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(pub)))
	blob = append(blob, lenBuf[:]...)
	blob = append(blob, pub...)
	blob = append(blob, priv...)
	return blob
}

func unpackSealedBlob(blob []byte) (pub, priv []byte, err error) {
	if len(blob) < 4 {
		return nil, nil, errors.New("device: sealed blob truncated")
	}
	pubLen := int(binary.BigEndian.Uint32(blob[:4]))
	if pubLen <= 0 || 4+pubLen >= len(blob) {
		return nil, nil, errors.New("device: sealed blob malformed")
	}
	return blob[4 : 4+pubLen], blob[4+pubLen:], nil
}

// tpmCommandChannel adapts the raw device handle to the attestation
// stack's command channel interface.
type tpmCommandChannel struct {
	io.ReadWriteCloser
}

func (c *tpmCommandChannel) MeasurementLog() ([]byte, error) {
	return os.ReadFile("/sys/kernel/security/tpm0/binary_bios_measurements")
}
