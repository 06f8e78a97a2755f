/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package cookie

import "golang.zx2c4.com/wgcookie/primitives"

// precompute derives a 32-byte key from an 8-byte domain label and the
// 32-byte identity input (the responder's static public key) via unkeyed
// BLAKE2s-256.
func precompute(label []byte, input *[InputSize]byte) [KeySize]byte {
	h, _ := primitives.NewHash(nil)
	h.Write(label)
	h.Write(input[:])
	var out [KeySize]byte
	h.Sum(out[:0])
	return out
}

func precomputeKeys(input *[InputSize]byte) (mac1Key, cookieKey [KeySize]byte) {
	mac1Key = precompute(mac1Label, input)
	cookieKey = precompute(cookieLabel, input)
	return
}

// computeMac1 authenticates buf with mac1Key, proving the sender knows a
// value derived from the responder's static identity.
func computeMac1(buf []byte, mac1Key *[KeySize]byte) [MACSize]byte {
	mac, _ := primitives.NewMAC(mac1Key[:])
	mac.Write(buf)
	var out [MACSize]byte
	mac.Sum(out[:0])
	return out
}

// computeMac2 authenticates buf and the mac1 already computed over it,
// keyed by the cookie, proving recent knowledge of the responder's
// endpoint-bound cookie.
func computeMac2(buf []byte, cookieValue *[CookieSize]byte, mac1 *[MACSize]byte) [MACSize]byte {
	mac, _ := primitives.NewMAC(cookieValue[:])
	mac.Write(buf)
	mac.Write(mac1[:])
	var out [MACSize]byte
	mac.Sum(out[:0])
	return out
}
