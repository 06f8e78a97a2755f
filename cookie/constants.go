/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package cookie implements the responder-side (Checker) and initiator-side
// (Maker) halves of the MAC1/MAC2/cookie-reply DoS mitigation described in
// the subsystem spec: proving knowledge of the responder's static identity,
// and, under load, recent knowledge of a responder-issued endpoint cookie.
package cookie

import "time"

const (
	MACSize             = 16
	KeySize             = 32
	CookieSize          = 16
	SecretSize          = 32
	InputSize           = 32
	NonceSize           = 24
	EncryptedCookieSize = CookieSize + 16

	SecretMaxAge  = 120 * time.Second
	SecretLatency = 5 * time.Second
)

var (
	mac1Label   = []byte("mac1----")
	cookieLabel = []byte("cookie--")
)

// MacPair is the mac1/mac2 trailer attached to a handshake message.
type MacPair struct {
	Mac1 [MACSize]byte
	Mac2 [MACSize]byte
}
