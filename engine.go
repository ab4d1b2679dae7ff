// Package tme implements the trusted measurement and attestation engine:
// an append-only, hardware-chained record of what code and configuration
// a system loaded, verification of that record, and sealing of secrets to
// the measured state.

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
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/flog"
	"github.com/facebookincubator/tme/audit"
	"github.com/facebookincubator/tme/device"
)

// Engine defaults.
const (
	// DefaultRetryCount is how many device probes Init attempts.
	DefaultRetryCount = 3

	// DefaultRetryDelay is the fixed pause between Init probes.
	DefaultRetryDelay = 100 * time.Millisecond

	// DefaultEntropyFloor is the minimum accepted entropy estimate, in
	// bits.
	DefaultEntropyFloor = 256

	// DefaultMaxSealedDataSize is the largest payload Seal accepts.
	DefaultMaxSealedDataSize = 1024
)

// Config supplies engine parameters. The zero value is completed with the
// defaults above by New.
type Config struct {
	// RetryCount is the number of device probe attempts during Init.
	RetryCount int

	// RetryDelay is the fixed delay after each Init probe. The delay is
	// applied whether or not the probe succeeded, so attempt timing does
	// not reveal where in the sequence a failure occurred.
	RetryDelay time.Duration

	// EntropyFloor is the minimum device entropy estimate, in bits,
	// required by Init and GetRandom.
	EntropyFloor uint32

	// MaxSealedDataSize caps the payload accepted by Seal.
	MaxSealedDataSize int

	// VerificationKey is the public key measurements signatures are
	// verified against. Required for VerifySignature; other operations do
	// not consult it.
	VerificationKey *rsa.PublicKey

	// Audit receives best-effort operation events. Nil disables audit
	// emission. The engine never blocks on the sink.
	Audit audit.Sink
}

func (c *Config) applyDefaults() {
	if c.RetryCount <= 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.EntropyFloor == 0 {
		c.EntropyFloor = DefaultEntropyFloor
	}
	if c.MaxSealedDataSize <= 0 {
		c.MaxSealedDataSize = DefaultMaxSealedDataSize
	}
}

// Engine is the measurement and attestation engine. All operations are
// serialized by one internal lock: concurrent callers block, they are not
// rejected, and operations observe a total order. The engine owns no
// goroutines and never suspends except on the lock and on device calls.
type Engine struct {
	mu  sync.Mutex
	cfg Config
	dev device.Device

	initialized bool
	caps        *device.Capabilities
	banks       [NumPCRBanks]pcrBank
	mlog        measurementLog
}

// New constructs an engine over the given hardware device. The engine is
// returned uninitialized; call Init before any other operation. The
// caller retains ownership of the device handle.
func New(cfg Config, dev device.Device) (*Engine, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidParam)
	}
	cfg.applyDefaults()
	return &Engine{cfg: cfg, dev: dev}, nil
}

// Init brings the engine to its operational state: the device is probed
// and validated, and the bank table and measurement log are zeroed.
//
// Init on a live engine fails with ErrAlreadyInitialized; re-running
// requires an intervening Close (modeling a power cycle). On any failure
// all partial state is securely wiped before returning.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		e.emit(audit.KindInit, ErrAlreadyInitialized, "")
		return ErrAlreadyInitialized
	}

	var caps *device.Capabilities
	var err error
	for attempt := 0; attempt < e.cfg.RetryCount; attempt++ {
		caps, err = e.probeDevice()
		// The pause is unconditional so the duration of an attempt does
		// not depend on its outcome.
		time.Sleep(e.cfg.RetryDelay)
		if err == nil {
			break
		}
		flog.Warningf("Device probe attempt %d failed: %v", attempt+1, err)
	}
	if err != nil {
		e.wipeLocked()
		e.emit(audit.KindInit, err, "")
		return err
	}

	for i := range e.banks {
		e.banks[i].reset(uint32(i))
	}
	e.mlog.reset()
	e.caps = caps
	e.initialized = true

	flog.Debugf(
		"Attestation engine initialized (device version %d.%d, manufacturer %#x)",
		caps.VersionMajor, caps.VersionMinor, caps.Manufacturer,
	)
	e.emit(audit.KindInit, nil, "")
	return nil
}

// probeDevice reads and validates the device description and entropy
// health. Called only from Init.
func (e *Engine) probeDevice() (*device.Capabilities, error) {
	caps, err := e.dev.QueryCapabilities()
	if err != nil {
		return nil, fmt.Errorf("%w: capability query: %v", ErrIO, err)
	}

	if caps.VersionMajor < 2 {
		return nil, fmt.Errorf(
			"%w: device version %d.%d below required 2.0",
			ErrSecurity, caps.VersionMajor, caps.VersionMinor,
		)
	}
	const required = device.CapSHA512 | device.CapRSA
	if caps.Capabilities&required != required {
		return nil, fmt.Errorf(
			"%w: device lacks required capabilities (have %#x)",
			ErrSecurity, caps.Capabilities,
		)
	}

	bits, err := e.dev.EntropyEstimate()
	if err != nil {
		return nil, fmt.Errorf("%w: entropy estimate: %v", ErrIO, err)
	}
	if bits < e.cfg.EntropyFloor {
		return nil, fmt.Errorf(
			"%w: %d bits below floor of %d",
			ErrEntropyLow, bits, e.cfg.EntropyFloor,
		)
	}

	return caps, nil
}

// Capabilities returns the device description captured at Init.
func (e *Engine) Capabilities() (*device.Capabilities, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, ErrNotInitialized
	}
	caps := *e.caps
	return &caps, nil
}

// Close tears the engine down: the bank table, measurement log and
// captured capabilities are securely wiped and the engine returns to its
// uninitialized state. The device handle is not closed; the caller owns
// it. Close on an uninitialized engine is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil
	}
	e.wipeLocked()
	e.emit(audit.KindCleanup, nil, "")
	return nil
}

// wipeLocked zeroes all engine state. Safe to call on a partially
// initialized engine.
func (e *Engine) wipeLocked() {
	for i := range e.banks {
		e.banks[i].reset(uint32(i))
	}
	e.mlog.reset()
	e.caps = nil
	e.initialized = false
}

// emit reports an operation outcome to the audit sink, if one is
// configured. Fire-and-forget: the sink's behavior never affects the
// operation's result.
func (e *Engine) emit(kind audit.Kind, opErr error, detail string) {
	if e.cfg.Audit == nil {
		return
	}
	ev := audit.Event{
		Kind:   kind,
		Result: audit.ResultSuccess,
		Detail: detail,
		Time:   time.Now(),
	}
	if opErr != nil {
		ev.Result = audit.ResultFailure
		if detail != "" {
			ev.Detail = detail + ": " + opErr.Error()
		} else {
			ev.Detail = opErr.Error()
		}
	}
	e.cfg.Audit.Record(ev)
}
