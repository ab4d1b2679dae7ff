// Package utils implements basic utilities needed for the library

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

package utils

import "crypto/subtle"

// This file contains utility functions for handling sensitive byte buffers:
// secure wiping and constant-time comparison.

// Zeroize overwrites every byte of b with zero. Buffers holding key material,
// PCR digests or partially-filled random output must be zeroized on every
// exit path before they go out of scope.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroizeAll zeroizes each of the given buffers in order.
func ZeroizeAll(bufs ...[]byte) {
	for _, b := range bufs {
		Zeroize(b)
	}
}

// ConstantTimeEqual compares two byte slices in time independent of their
// contents. Slices of different lengths compare unequal, and the length check
// itself is not secret.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
