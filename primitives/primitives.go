/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2020 WireGuard LLC. All Rights Reserved.
 */

// Package primitives is a thin, opaque facade over the cryptographic and
// system primitives the cookie subsystem is built on: keyed/unkeyed
// BLAKE2s, XChaCha20-Poly1305, SipHash, a CSPRNG byte source and a
// constant-time comparator. Nothing above this package touches the
// underlying libraries directly.
package primitives

import (
	"crypto/rand"
	"crypto/subtle"
	"hash"
	"runtime"

	"github.com/dchest/siphash"
	"golang.org/x/crypto/blake2s"

	"golang.zx2c4.com/wgcookie/xchacha20poly1305"
)

const (
	// HashSize is the output length of an unkeyed/precompute BLAKE2s digest.
	HashSize = blake2s.Size
	// MACSize is the output length of a keyed BLAKE2s MAC (mac1, mac2, cookie).
	MACSize = blake2s.Size128
	// AEADKeySize is the XChaCha20-Poly1305 key length.
	AEADKeySize = 32
	// AEADNonceSize is the XChaCha20 nonce length.
	AEADNonceSize = 24
	// AEADOverhead is the Poly1305 tag length added by Seal.
	AEADOverhead = 16
	// SipHashKeySize is the length of a SipHash key.
	SipHashKeySize = 16
)

// NewHash returns an unkeyed (or keyed, if key is non-nil) BLAKE2s hash with
// a 32-byte digest, used for key derivation.
func NewHash(key []byte) (hash.Hash, error) {
	return blake2s.New256(key)
}

// NewMAC returns a BLAKE2s hash keyed with key and truncated to a 16-byte
// digest, used for mac1, mac2 and cookie derivation.
func NewMAC(key []byte) (hash.Hash, error) {
	return blake2s.New128(key)
}

// RandomBytes fills buf with unpredictable bytes from the system CSPRNG.
func RandomBytes(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// ConstantTimeCompare reports whether a and b are equal in a way that does
// not depend on the position of the first differing byte.
func ConstantTimeCompare(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}

// Zero overwrites b with zeros through a compiler barrier, so the write is
// never optimized away even though b is about to go out of scope.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// Seal XChaCha20-Poly1305-encrypts plaintext under key, appending the
// result to dst. nonce must be AEADNonceSize bytes.
func Seal(dst []byte, nonce []byte, plaintext, additionalData []byte, key *[AEADKeySize]byte) []byte {
	var n [AEADNonceSize]byte
	copy(n[:], nonce)
	return xchacha20poly1305.Encrypt(dst, &n, plaintext, additionalData, key)
}

// Open XChaCha20-Poly1305-decrypts ciphertext under key, appending the
// plaintext to dst. Returns an error iff the Poly1305 tag does not verify.
func Open(dst []byte, nonce []byte, ciphertext, additionalData []byte, key *[AEADKeySize]byte) ([]byte, error) {
	var n [AEADNonceSize]byte
	copy(n[:], nonce)
	return xchacha20poly1305.Decrypt(dst, &n, ciphertext, additionalData, key)
}

// SipHash64 computes SipHash-2-4 over p keyed with a 16-byte key, used to
// shard the rate limiter's prefix table.
func SipHash64(key [SipHashKeySize]byte, p []byte) uint64 {
	h := siphash.New(key[:])
	h.Write(p)
	return h.Sum64()
}
