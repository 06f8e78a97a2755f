/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2019 WireGuard LLC. All Rights Reserved.
 */

// Package ratelimiter implements a per-address-family, hash-sharded token
// bucket keyed on a SipHashed source-address prefix. Two instances are
// expected per process, one for IPv4 (keyed on the full address) and one
// for IPv6 (keyed on the top /64), wired together as a Limiters pair.
package ratelimiter

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"time"

	"golang.zx2c4.com/wgcookie/logger"
	"golang.zx2c4.com/wgcookie/primitives"
)

// ErrNoResources is returned by Allow when a previously unseen prefix
// cannot be admitted because the table is at TABLE_MAX_ENTRIES. This is
// distinct from an ordinary token-bucket refusal: it fails closed on
// capacity rather than on rate.
var ErrNoResources = errors.New("ratelimiter: table at capacity")

const (
	InitiationsPerSecond = 20
	InitiationsBurstable = 5
	ElementTimeout       = time.Second
	IPv4PrefixBytes      = net.IPv4len
	IPv6PrefixBytes      = 8
	TableBuckets         = 8192
	TableMaxEntries      = 65536

	ticksPerSecond = int64(time.Second)
	packetCost     = ticksPerSecond / InitiationsPerSecond
	maxTokens      = packetCost * InitiationsBurstable
)

// Family is the closed set of address families the rate limiter handles.
// Unlike build-tag dispatch elsewhere in the pack, this is a runtime
// variant: unsupported families are a runtime error, not a compile-time
// elision.
type Family int

const (
	V4 Family = iota
	V6
)

type entry struct {
	family   Family
	prefix   [IPv6PrefixBytes]byte
	lastTime time.Time
	tokens   int64
	next     *entry
}

// RateLimiter is a single address family's sharded token-bucket table.
type RateLimiter struct {
	mu        sync.Mutex
	family    Family
	prefixLen int
	secret    [primitives.SipHashKeySize]byte
	buckets   []*entry
	count     int

	stopCh    chan struct{}
	gcRunning bool
	gcDone    chan struct{}
	closed    bool

	log logger.Logger
}

// Limiters bundles the process-wide IPv4 and IPv6 rate limiter singletons.
// Tests construct their own pair instead of reaching for global state.
type Limiters struct {
	V4 *RateLimiter
	V6 *RateLimiter
}

// NewLimiters allocates a fresh IPv4/IPv6 rate limiter pair, each with its
// own random SipHash secret.
func NewLimiters(log logger.Logger) (*Limiters, error) {
	if log == nil {
		log = logger.NewLogger(logger.LogLevelSilent, "")
	}
	v4, err := newTable(V4, IPv4PrefixBytes, log)
	if err != nil {
		return nil, err
	}
	v6, err := newTable(V6, IPv6PrefixBytes, log)
	if err != nil {
		return nil, err
	}
	return &Limiters{V4: v4, V6: v6}, nil
}

// Close tears down both tables: pending GC is cancelled and drained, all
// entries are force-swept, and the per-family secrets are zeroed.
func (l *Limiters) Close() {
	l.V4.Close()
	l.V6.Close()
}

func newTable(family Family, prefixLen int, log logger.Logger) (*RateLimiter, error) {
	rl := &RateLimiter{
		family:    family,
		prefixLen: prefixLen,
		buckets:   make([]*entry, TableBuckets),
		stopCh:    make(chan struct{}),
		log:       log,
	}
	if err := primitives.RandomBytes(rl.secret[:]); err != nil {
		return nil, err
	}
	return rl, nil
}

func (rl *RateLimiter) extractPrefix(ip net.IP) ([]byte, bool) {
	switch rl.family {
	case V4:
		v4 := ip.To4()
		if v4 == nil {
			return nil, false
		}
		return v4, true
	case V6:
		if ip.To4() != nil {
			return nil, false
		}
		v6 := ip.To16()
		if v6 == nil {
			return nil, false
		}
		return v6[:IPv6PrefixBytes], true
	default:
		return nil, false
	}
}

// Allow applies the token-bucket algorithm to ip's prefix, creating a new
// entry on first sight. It fails closed: a capacity limit returns
// ErrNoResources rather than letting the initiation through
// unauthenticated; an unrecognized family is simply refused (false, nil),
// since the caller is expected to have already dispatched on family.
func (rl *RateLimiter) Allow(ip net.IP) (bool, error) {
	prefix, ok := rl.extractPrefix(ip)
	if !ok {
		return false, nil
	}

	h := primitives.SipHash64(rl.secret, prefix)
	idx := h % TableBuckets
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for e := rl.buckets[idx]; e != nil; e = e.next {
		if e.family != rl.family || !bytes.Equal(e.prefix[:rl.prefixLen], prefix) {
			continue
		}
		dt := now.Sub(e.lastTime)
		if dt < 0 {
			dt = 0
		}
		e.lastTime = now
		tokens := e.tokens + dt.Nanoseconds()
		if tokens > maxTokens {
			tokens = maxTokens
		}
		if tokens >= packetCost {
			e.tokens = tokens - packetCost
			return true, nil
		}
		e.tokens = tokens
		return false, nil
	}

	if rl.count >= TableMaxEntries {
		rl.log.Debugf("ratelimiter: table at capacity, refusing new prefix")
		return false, ErrNoResources
	}

	ne := &entry{
		family:   rl.family,
		lastTime: now,
		tokens:   maxTokens - packetCost,
		next:     rl.buckets[idx],
	}
	copy(ne.prefix[:], prefix)
	rl.buckets[idx] = ne
	rl.count++
	rl.scheduleGCLocked()
	return true, nil
}

// scheduleGCLocked starts the periodic sweep goroutine if one is not
// already running. Must be called with mu held.
func (rl *RateLimiter) scheduleGCLocked() {
	if rl.gcRunning || rl.closed {
		return
	}
	rl.gcRunning = true
	done := make(chan struct{})
	rl.gcDone = done
	go rl.gcLoop(done)
}

func (rl *RateLimiter) gcLoop(done chan struct{}) {
	ticker := time.NewTicker(ElementTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			rl.sweep(true)
			close(done)
			return
		case <-ticker.C:
			remaining := rl.sweep(false)
			if remaining == 0 {
				rl.mu.Lock()
				if rl.count > 0 {
					// an Allow inserted a prefix after the sweep; keep running
					rl.mu.Unlock()
					continue
				}
				rl.gcRunning = false
				rl.mu.Unlock()
				close(done)
				return
			}
		}
	}
}

// sweep removes every entry idle longer than ElementTimeout (or, if force,
// every entry regardless of age) and returns the resulting live count.
func (rl *RateLimiter) sweep(force bool) int {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for i, head := range rl.buckets {
		var prev *entry
		for e := head; e != nil; {
			next := e.next
			if force || now.Sub(e.lastTime) > ElementTimeout {
				if prev == nil {
					rl.buckets[i] = next
				} else {
					prev.next = next
				}
				rl.count--
			} else {
				prev = e
			}
			e = next
		}
	}
	return rl.count
}

// Close cancels any pending GC, waits for it to drain, force-sweeps every
// entry and zeroes the per-family SipHash secret.
func (rl *RateLimiter) Close() {
	rl.mu.Lock()
	if rl.closed {
		rl.mu.Unlock()
		return
	}
	rl.closed = true
	running := rl.gcRunning
	done := rl.gcDone
	rl.mu.Unlock()

	if running {
		close(rl.stopCh)
		<-done
	} else {
		rl.sweep(true)
	}
	primitives.Zero(rl.secret[:])
}
