/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package cookie

import (
	"sync"
	"time"

	"golang.zx2c4.com/wgcookie/logger"
	"golang.zx2c4.com/wgcookie/primitives"
)

// Maker is the initiator-side half of the subsystem: it stamps outbound
// handshake messages with mac1 (and mac2, once it holds a fresh cookie) and
// consumes the responder's encrypted cookie replies. One Maker is created
// per peer, when the peer is configured with a remote static key, and is
// destroyed with the peer.
type Maker struct {
	mu        sync.Mutex
	mac1Key   [KeySize]byte
	cookieKey [KeySize]byte

	mac1Last  [MACSize]byte
	mac1Valid bool

	cookie          [CookieSize]byte
	cookieBirthdate time.Time

	log logger.Logger
}

// NewMaker precomputes both labeled keys from the remote static public key.
func NewMaker(input *[InputSize]byte, log logger.Logger) *Maker {
	if log == nil {
		log = logger.NewLogger(logger.LogLevelSilent, "")
	}
	mac1Key, cookieKey := precomputeKeys(input)
	return &Maker{mac1Key: mac1Key, cookieKey: cookieKey, log: log}
}

// ApplyMACs stamps cm.Mac1 over buf and remembers it as mac1_last, marking
// mac1_valid. cm.Mac2 is filled in only if the held cookie is still fresh
// enough, minus SecretLatency, to protect against the responder rotating
// its secret between send and receive; otherwise it is zeroed and the
// stale cookie is forgotten.
func (m *Maker) ApplyMACs(cm *MacPair, buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mac1 := computeMac1(buf, &m.mac1Key)
	cm.Mac1 = mac1
	m.mac1Last = mac1
	m.mac1Valid = true

	if m.cookieBirthdate.IsZero() {
		primitives.Zero(cm.Mac2[:])
		return
	}
	if time.Since(m.cookieBirthdate) >= SecretMaxAge-SecretLatency {
		m.cookieBirthdate = time.Time{}
		primitives.Zero(cm.Mac2[:])
		return
	}
	cm.Mac2 = computeMac2(buf, &m.cookie, &cm.Mac1)
}

// ConsumeCookieReply decrypts an encrypted cookie reply, authenticated
// against the mac1 this Maker most recently emitted. It requires mac1_valid
// (ErrNotReady otherwise) and consumes that binding: on success mac1_valid
// becomes false, so a second reply without an intervening ApplyMACs fails.
func (m *Maker) ConsumeCookieReply(nonce []byte, encryptedCookie []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mac1Valid {
		return ErrNotReady
	}

	plain, err := primitives.Open(nil, nonce, encryptedCookie, m.mac1Last[:], &m.cookieKey)
	if err != nil {
		return ErrInvalid
	}

	copy(m.cookie[:], plain)
	primitives.Zero(plain)
	m.cookieBirthdate = time.Now()
	m.mac1Valid = false
	return nil
}
