/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package cookie

import (
	"net"
	"sync"
	"time"

	"golang.zx2c4.com/wgcookie/logger"
	"golang.zx2c4.com/wgcookie/primitives"
	"golang.zx2c4.com/wgcookie/ratelimiter"
)

// Checker is the responder-side half of the subsystem: it authenticates
// mac1 against the responder's own identity and, under load, validates
// mac2 against a rotating, endpoint-bound cookie before finally consulting
// the rate limiter. One Checker is created per responder and lives for the
// responder's lifetime; its keys may be updated or cleared at any time.
type Checker struct {
	keyMu     sync.RWMutex
	mac1Key   [KeySize]byte
	cookieKey [KeySize]byte
	haveKeys  bool

	secretMu        sync.Mutex
	secret          [SecretSize]byte
	secretBirthdate time.Time

	limiters *ratelimiter.Limiters
	log      logger.Logger
}

// NewChecker constructs a Checker with no identity configured yet; call
// Update before the first ValidateMACs/CreateCookieReply.
func NewChecker(limiters *ratelimiter.Limiters, log logger.Logger) *Checker {
	if log == nil {
		log = logger.NewLogger(logger.LogLevelSilent, "")
	}
	return &Checker{limiters: limiters, log: log}
}

// Update recomputes mac1_key/cookie_key from input, or zeroes both if input
// is nil. Zeroing always happens on the clear path, whether or not keys had
// previously been set.
func (c *Checker) Update(input *[InputSize]byte) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if input != nil {
		c.mac1Key, c.cookieKey = precomputeKeys(input)
		c.haveKeys = true
		return
	}
	primitives.Zero(c.mac1Key[:])
	primitives.Zero(c.cookieKey[:])
	c.haveKeys = false
}

// cookieFor derives the current cookie for sa, rotating the responder's
// secret first if it has aged past SecretMaxAge. Unsupported families get a
// uniform random cookie so the code path never becomes a family oracle.
func (c *Checker) cookieFor(sa *net.UDPAddr) [CookieSize]byte {
	_, addrBytes, port, ok := splitAddr(sa)
	if !ok {
		var out [CookieSize]byte
		_ = primitives.RandomBytes(out[:])
		return out
	}

	c.secretMu.Lock()
	if c.secretBirthdate.IsZero() || time.Since(c.secretBirthdate) > SecretMaxAge {
		_ = primitives.RandomBytes(c.secret[:])
		c.secretBirthdate = time.Now()
	}
	secretCopy := c.secret
	c.secretMu.Unlock()

	mac, _ := primitives.NewMAC(secretCopy[:])
	mac.Write(addrBytes)
	p := portBytes(port)
	mac.Write(p[:])
	var out [CookieSize]byte
	mac.Sum(out[:0])
	primitives.Zero(secretCopy[:])
	return out
}

// CreateCookieReply derives a fresh cookie for sa, samples a nonce, and
// AEAD-encrypts the cookie under cookie_key with incomingMac1 as associated
// data. The plaintext cookie buffer is wiped before returning.
func (c *Checker) CreateCookieReply(incomingMac1 *[MACSize]byte, sa *net.UDPAddr) (nonce [NonceSize]byte, encrypted [EncryptedCookieSize]byte, err error) {
	cookiePlain := c.cookieFor(sa)
	if err = primitives.RandomBytes(nonce[:]); err != nil {
		return
	}

	c.keyMu.RLock()
	key := c.cookieKey
	c.keyMu.RUnlock()

	sealed := primitives.Seal(nil, nonce[:], cookiePlain[:], incomingMac1[:], &key)
	copy(encrypted[:], sealed)

	primitives.Zero(cookiePlain[:])
	primitives.Zero(key[:])
	return
}

// ValidateMACs checks cm.Mac1 against buf, then — only when busy — checks
// cm.Mac2 against the current cookie for sa and finally consults the rate
// limiter. See the error variables in errors.go for what each outcome means
// to the caller.
func (c *Checker) ValidateMACs(cm *MacPair, buf []byte, busy bool, sa *net.UDPAddr) error {
	c.keyMu.RLock()
	mac1Key := c.mac1Key
	haveKeys := c.haveKeys
	c.keyMu.RUnlock()

	if !haveKeys {
		return ErrInvalid
	}

	expectedMac1 := computeMac1(buf, &mac1Key)
	primitives.Zero(mac1Key[:])

	if !primitives.ConstantTimeCompare(expectedMac1[:], cm.Mac1[:]) {
		c.log.Debugf("cookie: mac1 mismatch, dropping packet")
		return ErrInvalid
	}

	if !busy {
		return nil
	}

	expectedCookie := c.cookieFor(sa)
	expectedMac2 := computeMac2(buf, &expectedCookie, &cm.Mac1)
	primitives.Zero(expectedCookie[:])

	if !primitives.ConstantTimeCompare(expectedMac2[:], cm.Mac2[:]) {
		c.log.Debugf("cookie: mac2 mismatch, requesting cookie reply")
		return ErrNeedCookie
	}

	family, _, _, ok := splitAddr(sa)
	if !ok {
		return ErrUnsupportedFamily
	}

	var (
		allowed bool
		rlErr   error
	)
	switch family {
	case ratelimiter.V4:
		allowed, rlErr = c.limiters.V4.Allow(sa.IP)
	case ratelimiter.V6:
		allowed, rlErr = c.limiters.V6.Allow(sa.IP)
	default:
		return ErrUnsupportedFamily
	}
	if rlErr != nil {
		c.log.Debugf("cookie: rate limiter out of resources")
		return ErrNoResources
	}
	if !allowed {
		c.log.Debugf("cookie: rate limited")
		return ErrRateLimited
	}
	return nil
}
