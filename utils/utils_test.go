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

import (
	"bytes"
	"testing"
)

func TestZeroize(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	Zeroize(buf)
	if !bytes.Equal(buf, make([]byte, 4)) {
		t.Errorf("buffer not zeroed: %v", buf)
	}
	Zeroize(nil) // must not panic
}

func TestZeroizeAll(t *testing.T) {
	a := []byte{1, 2}
	b := []byte{3, 4, 5}
	ZeroizeAll(a, b, nil)
	if !bytes.Equal(a, make([]byte, 2)) || !bytes.Equal(b, make([]byte, 3)) {
		t.Errorf("buffers not zeroed: %v %v", a, b)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual([]byte("abc"), []byte("abc")) {
		t.Error("equal slices compared unequal")
	}
	if ConstantTimeEqual([]byte("abc"), []byte("abd")) {
		t.Error("different slices compared equal")
	}
	if ConstantTimeEqual([]byte("abc"), []byte("ab")) {
		t.Error("different lengths compared equal")
	}
	if !ConstantTimeEqual(nil, nil) {
		t.Error("two empty slices should compare equal")
	}
}

func TestMarshalRoundtrip(t *testing.T) {
	type record struct {
		Name  string
		Value [8]byte
		Count int
	}
	in := record{Name: "pcr", Value: [8]byte{1, 2, 3}, Count: 7}

	raw, err := MarshalBytes(in)
	if err != nil {
		t.Fatalf("MarshalBytes failed: %v", err)
	}

	var out record
	if err := UnmarshalBytes(raw, &out); err != nil {
		t.Fatalf("UnmarshalBytes failed: %v", err)
	}
	if out != in {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", out, in)
	}

	if err := UnmarshalBytes([]byte("not gob"), &out); err == nil {
		t.Error("expected an error decoding garbage")
	}
}
