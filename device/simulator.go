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
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"sync"
)

// This file implements a software attestation device. It reproduces the
// semantics the engine relies on from real hardware: PCR extension chains
// one-way (new = H(old || digest)), sealing binds ciphertext to a PCR
// composite, and unsealing fails closed when the composite has moved.

const (
	// SimulatorPCRCount is the number of PCRs the simulator provides.
	SimulatorPCRCount = 24

	// simDigestSize is the simulator's register width (SHA-512).
	simDigestSize = sha512.Size

	simNonceSize = 16
	simTagSize   = 32
)

// Simulator is a deterministic, in-memory Device implementation used for
// tests and for hosts without a hardware TPM.
type Simulator struct {
	mu          sync.Mutex
	closed      bool
	caps        Capabilities
	pcrs        [SimulatorPCRCount][simDigestSize]byte
	entropyBits uint32
}

// NewSimulator returns a Simulator reporting a fully capable TPM 2.0
// device with a healthy entropy source.
func NewSimulator() *Simulator {
	return &Simulator{
		caps: Capabilities{
			VersionMajor:    2,
			VersionMinor:    0,
			Manufacturer:    0x53494d30, // "SIM0"
			Capabilities:    CapSHA512 | CapRSA | CapECC | CapSealing | CapHardwareRNG,
			FirmwareVersion: 1,
			SecurityLevel:   2,
		},
		entropyBits: 512,
	}
}

// SetCapabilities overrides the reported device description. Used by tests
// to model down-level or crippled hardware.
func (s *Simulator) SetCapabilities(caps Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caps = caps
}

// SetEntropyEstimate overrides the reported entropy health estimate.
func (s *Simulator) SetEntropyEstimate(bits uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entropyBits = bits
}

// QueryCapabilities implements Device.
func (s *Simulator) QueryCapabilities() (*Capabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	caps := s.caps
	return &caps, nil
}

// ExtendPCR implements Device. The register chains: the new value is
// SHA-512(old value || digest), so extension is one-way and ordering
// sensitive.
func (s *Simulator) ExtendPCR(index uint32, digest []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if index >= SimulatorPCRCount {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if len(digest) != simDigestSize {
		return fmt.Errorf("device: digest must be %d bytes, got %d", simDigestSize, len(digest))
	}

	h := sha512.New()
	h.Write(s.pcrs[index][:])
	h.Write(digest)
	h.Sum(s.pcrs[index][:0])
	return nil
}

// ReadPCR returns a copy of the current register value. Not part of the
// Device interface; tests use it to observe the hardware-side chain.
func (s *Simulator) ReadPCR(index uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if index >= SimulatorPCRCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	out := make([]byte, simDigestSize)
	copy(out, s.pcrs[index][:])
	return out, nil
}

// Seal implements Device. The ciphertext is nonce || tag || body where the
// body is keyMaterial encrypted under a key derived from the PCR composite
// and the nonce. No state is retained; the binding lives entirely in the
// ciphertext.
func (s *Simulator) Seal(keyMaterial, pcrComposite []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(keyMaterial) == 0 {
		return nil, fmt.Errorf("device: empty key material")
	}

	nonce := make([]byte, simNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	key := sealingKey(pcrComposite, nonce)
	mac := hmac.New(sha512.New, key)
	mac.Write(keyMaterial)
	tag := mac.Sum(nil)[:simTagSize]

	body := make([]byte, len(keyMaterial))
	xorKeystream(body, keyMaterial, key)

	ct := make([]byte, 0, simNonceSize+simTagSize+len(body))
	ct = append(ct, nonce...)
	ct = append(ct, tag...)
	ct = append(ct, body...)
	return ct, nil
}

// Unseal implements Device. Fails with ErrPCRMismatch when pcrDigest does
// not reproduce the composite the data was sealed under; no partial
// plaintext escapes on failure.
func (s *Simulator) Unseal(ciphertext, pcrDigest []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(ciphertext) < simNonceSize+simTagSize+1 {
		return nil, fmt.Errorf("device: ciphertext too short")
	}

	nonce := ciphertext[:simNonceSize]
	tag := ciphertext[simNonceSize : simNonceSize+simTagSize]
	body := ciphertext[simNonceSize+simTagSize:]

	key := sealingKey(pcrDigest, nonce)
	plaintext := make([]byte, len(body))
	xorKeystream(plaintext, body, key)

	mac := hmac.New(sha512.New, key)
	mac.Write(plaintext)
	want := mac.Sum(nil)[:simTagSize]
	if !hmac.Equal(tag, want) {
		for i := range plaintext {
			plaintext[i] = 0
		}
		return nil, ErrPCRMismatch
	}
	return plaintext, nil
}

// Random implements Device.
func (s *Simulator) Random(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, fmt.Errorf("device: invalid random length %d", n)
	}
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// EntropyEstimate implements Device.
func (s *Simulator) EntropyEstimate() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.entropyBits, nil
}

// Close implements Device.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	for i := range s.pcrs {
		for j := range s.pcrs[i] {
			s.pcrs[i][j] = 0
		}
	}
	return nil
}

func sealingKey(composite, nonce []byte) []byte {
	h := sha512.New()
	h.Write([]byte("tme-sim-seal"))
	h.Write(nonce)
	h.Write(composite)
	return h.Sum(nil)
}

// xorKeystream XORs src into dst with a keystream expanded from key in
// SHA-512 counter mode. dst and src must be the same length.
func xorKeystream(dst, src, key []byte) {
	var ctr [8]byte
	var block [sha512.Size]byte
	for off, i := 0, uint64(0); off < len(src); i++ {
		binary.BigEndian.PutUint64(ctr[:], i)
		h := sha512.New()
		h.Write(key)
		h.Write(ctr[:])
		h.Sum(block[:0])
		n := len(src) - off
		if n > len(block) {
			n = len(block)
		}
		for j := 0; j < n; j++ {
			dst[off+j] = src[off+j] ^ block[j]
		}
		off += n
	}
}
