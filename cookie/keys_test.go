/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package cookie

import (
	"bytes"
	"testing"
)

func TestPrecomputeKeysDomainSeparation(t *testing.T) {
	var input [InputSize]byte
	for i := range input {
		input[i] = byte(i)
	}

	mac1Key, cookieKey := precomputeKeys(&input)
	if bytes.Equal(mac1Key[:], cookieKey[:]) {
		t.Fatal("mac1_key and cookie_key must differ for the same input")
	}
}

func TestPrecomputeDeterministic(t *testing.T) {
	var input [InputSize]byte
	for i := range input {
		input[i] = byte(i * 7)
	}

	a := precompute(mac1Label, &input)
	b := precompute(mac1Label, &input)
	if a != b {
		t.Fatal("precompute must be deterministic for identical inputs")
	}

	var other [InputSize]byte
	copy(other[:], input[:])
	other[0] ^= 0xff
	c := precompute(mac1Label, &other)
	if a == c {
		t.Fatal("precompute must differ for different inputs")
	}
}
