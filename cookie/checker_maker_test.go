/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package cookie

import (
	"errors"
	"net"
	"testing"
	"time"

	"golang.zx2c4.com/wgcookie/logger"
	"golang.zx2c4.com/wgcookie/ratelimiter"
)

func newTestPair(t *testing.T) (*Checker, *Maker, *ratelimiter.Limiters) {
	t.Helper()
	var input [InputSize]byte
	for i := range input {
		input[i] = byte(i)
	}
	limiters, err := ratelimiter.NewLimiters(logger.NewLogger(logger.LogLevelSilent, ""))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(limiters.Close)

	checker := NewChecker(limiters, logger.NewLogger(logger.LogLevelSilent, ""))
	checker.Update(&input)
	maker := NewMaker(&input, logger.NewLogger(logger.LogLevelSilent, ""))
	return checker, maker, limiters
}

func testAddr(n int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: n}
}

// S1: not busy, no cookie yet — mac2 stays zero, validate succeeds.
func TestS1NotBusyNoCookie(t *testing.T) {
	checker, maker, _ := newTestPair(t)
	buf := []byte("hello")

	var cm MacPair
	maker.ApplyMACs(&cm, buf)

	var zero [MACSize]byte
	if cm.Mac2 != zero {
		t.Fatal("expected mac2 to be zero before any cookie is held")
	}

	if err := checker.ValidateMACs(&cm, buf, false, testAddr(1)); err != nil {
		t.Fatalf("expected Ok, got %v", err)
	}
}

// S2: busy without a cookie yields NeedCookie; after consuming a cookie
// reply, a subsequent ApplyMACs produces a non-zero mac2 that validates.
func TestS2BusyThenCookieExchange(t *testing.T) {
	checker, maker, _ := newTestPair(t)
	buf := []byte("hello")

	var cm MacPair
	maker.ApplyMACs(&cm, buf)

	if err := checker.ValidateMACs(&cm, buf, true, testAddr(2)); !errors.Is(err, ErrNeedCookie) {
		t.Fatalf("expected ErrNeedCookie, got %v", err)
	}

	nonce, encrypted, err := checker.CreateCookieReply(&cm.Mac1, testAddr(2))
	if err != nil {
		t.Fatal(err)
	}
	if err := maker.ConsumeCookieReply(nonce[:], encrypted[:]); err != nil {
		t.Fatalf("expected cookie reply to be accepted, got %v", err)
	}

	var cm2 MacPair
	maker.ApplyMACs(&cm2, buf)

	var zero [MACSize]byte
	if cm2.Mac2 == zero {
		t.Fatal("expected mac2 to be non-zero once a fresh cookie is held")
	}

	if err := checker.ValidateMACs(&cm2, buf, true, testAddr(2)); err != nil {
		t.Fatalf("expected Ok on first attempt after cookie exchange, got %v", err)
	}
}

// S3: 6 back-to-back busy calls from the same IPv4 source within one tick —
// the first 5 succeed, the 6th is rate limited.
func TestS3Burst(t *testing.T) {
	checker, maker, _ := newTestPair(t)
	buf := []byte("hello")
	addr := testAddr(3)

	var cm MacPair
	maker.ApplyMACs(&cm, buf)
	if err := checker.ValidateMACs(&cm, buf, true, addr); !errors.Is(err, ErrNeedCookie) {
		t.Fatalf("expected ErrNeedCookie priming call, got %v", err)
	}
	nonce, encrypted, err := checker.CreateCookieReply(&cm.Mac1, addr)
	if err != nil {
		t.Fatal(err)
	}
	if err := maker.ConsumeCookieReply(nonce[:], encrypted[:]); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < ratelimiter.InitiationsBurstable; i++ {
		var c MacPair
		maker.ApplyMACs(&c, buf)
		if err := checker.ValidateMACs(&c, buf, true, addr); err != nil {
			t.Fatalf("call %d: expected Ok, got %v", i, err)
		}
	}

	var c MacPair
	maker.ApplyMACs(&c, buf)
	if err := checker.ValidateMACs(&c, buf, true, addr); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on burst+1, got %v", err)
	}
}

// S4: two IPv6 peers differing only in the low 64 bits share a rate-limit
// budget; cumulative allowed across both, once each holds a valid cookie,
// is exactly InitiationsBurstable.
func TestS4IPv6SharedPrefixBudget(t *testing.T) {
	var input [InputSize]byte
	for i := range input {
		input[i] = byte(i)
	}
	limiters, err := ratelimiter.NewLimiters(logger.NewLogger(logger.LogLevelSilent, ""))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(limiters.Close)
	checker := NewChecker(limiters, logger.NewLogger(logger.LogLevelSilent, ""))
	checker.Update(&input)

	addrs := []*net.UDPAddr{
		{IP: net.ParseIP("2001:db8::1"), Port: 1},
		{IP: net.ParseIP("2001:db8::ffff"), Port: 2},
	}
	buf := []byte("hello")
	makers := []*Maker{
		NewMaker(&input, logger.NewLogger(logger.LogLevelSilent, "")),
		NewMaker(&input, logger.NewLogger(logger.LogLevelSilent, "")),
	}

	// prime each peer with a real cookie for its own endpoint.
	for i, maker := range makers {
		var cm MacPair
		maker.ApplyMACs(&cm, buf)
		if err := checker.ValidateMACs(&cm, buf, true, addrs[i]); !errors.Is(err, ErrNeedCookie) {
			t.Fatalf("peer %d: expected ErrNeedCookie priming, got %v", i, err)
		}
		nonce, encrypted, err := checker.CreateCookieReply(&cm.Mac1, addrs[i])
		if err != nil {
			t.Fatal(err)
		}
		if err := maker.ConsumeCookieReply(nonce[:], encrypted[:]); err != nil {
			t.Fatal(err)
		}
	}

	allowed := 0
	for i := 0; i < ratelimiter.InitiationsBurstable+2; i++ {
		peer := i % 2
		var c MacPair
		makers[peer].ApplyMACs(&c, buf)
		err := checker.ValidateMACs(&c, buf, true, addrs[peer])
		if err == nil {
			allowed++
		} else if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if allowed != ratelimiter.InitiationsBurstable {
		t.Fatalf("expected exactly %d allowed across the shared prefix, got %d", ratelimiter.InitiationsBurstable, allowed)
	}
}

// S5: tampering mac1 is always Invalid, busy or not.
func TestS5TamperedMac1(t *testing.T) {
	checker, maker, _ := newTestPair(t)
	buf := []byte("hello")

	var cm MacPair
	maker.ApplyMACs(&cm, buf)
	cm.Mac1[0] ^= 0xff

	if err := checker.ValidateMACs(&cm, buf, false, testAddr(5)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid (not busy), got %v", err)
	}
	if err := checker.ValidateMACs(&cm, buf, true, testAddr(5)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid (busy), got %v", err)
	}
}

// S6: waiting past SecretMaxAge changes the cookie plaintext for the same sa.
func TestS6SecretRotationChangesCookie(t *testing.T) {
	checker := NewChecker(nil, logger.NewLogger(logger.LogLevelSilent, ""))
	var input [InputSize]byte
	checker.Update(&input)

	addr := testAddr(6)
	first := checker.cookieFor(addr)

	checker.secretMu.Lock()
	checker.secretBirthdate = time.Now().Add(-(SecretMaxAge + time.Second))
	checker.secretMu.Unlock()

	second := checker.cookieFor(addr)
	if first == second {
		t.Fatal("expected the cookie to change after secret rotation")
	}
}

// Invariant 4: a second ConsumeCookieReply without an intervening ApplyMACs
// fails with ErrNotReady.
func TestCookieConsumeRequiresFreshApplyMACs(t *testing.T) {
	checker, maker, _ := newTestPair(t)
	buf := []byte("hello")

	var cm MacPair
	maker.ApplyMACs(&cm, buf)
	nonce, encrypted, err := checker.CreateCookieReply(&cm.Mac1, testAddr(7))
	if err != nil {
		t.Fatal(err)
	}
	if err := maker.ConsumeCookieReply(nonce[:], encrypted[:]); err != nil {
		t.Fatal(err)
	}
	if err := maker.ConsumeCookieReply(nonce[:], encrypted[:]); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady on second consume, got %v", err)
	}
}

// Invariant 3: cookie binding is exact — a cookie reply encrypted with a
// different incoming mac1 (i.e. a different AD) does not decrypt.
func TestCookieBindingToMac1(t *testing.T) {
	checker, maker, _ := newTestPair(t)
	buf := []byte("hello")

	var cm MacPair
	maker.ApplyMACs(&cm, buf)

	var wrongMac1 [MACSize]byte
	copy(wrongMac1[:], cm.Mac1[:])
	wrongMac1[0] ^= 0xff

	nonce, encrypted, err := checker.CreateCookieReply(&wrongMac1, testAddr(8))
	if err != nil {
		t.Fatal(err)
	}
	if err := maker.ConsumeCookieReply(nonce[:], encrypted[:]); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for mismatched AD, got %v", err)
	}
}

// A cookie older than SecretMaxAge-SecretLatency is treated as though no
// cookie were held: mac2 reverts to zero on the next ApplyMACs.
func TestMakerCookieStalenessLatency(t *testing.T) {
	_, maker, _ := newTestPair(t)
	buf := []byte("hello")

	maker.mu.Lock()
	var out [CookieSize]byte
	out[0] = 0x42
	maker.cookie = out
	maker.cookieBirthdate = time.Now().Add(-(SecretMaxAge - SecretLatency + time.Second))
	maker.mu.Unlock()

	var cm MacPair
	maker.ApplyMACs(&cm, buf)

	var zero [MACSize]byte
	if cm.Mac2 != zero {
		t.Fatal("expected mac2 to be zero once the held cookie is stale")
	}
}
