/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package cookie

import "errors"

var (
	// ErrInvalid is returned for a mac1 mismatch or a failed cookie-reply
	// AEAD tag. The caller drops the packet silently.
	ErrInvalid = errors.New("cookie: invalid mac or tag")
	// ErrNeedCookie is returned when mac2 is required and did not match;
	// it is not an error of the initiator, it is the cookie-exchange
	// trigger, and the caller should send a cookie reply.
	ErrNeedCookie = errors.New("cookie: mac2 required")
	// ErrRateLimited is returned when the per-prefix token bucket refused
	// the initiation. The caller drops the packet without response.
	ErrRateLimited = errors.New("cookie: rate limited")
	// ErrNotReady is returned by ConsumeCookieReply when no mac1 is
	// currently pending (mac1Valid is false).
	ErrNotReady = errors.New("cookie: no mac1 pending")
	// ErrUnsupportedFamily is returned when the source address is neither
	// IPv4 nor IPv6 and a cookie decision was actually required.
	ErrUnsupportedFamily = errors.New("cookie: unsupported address family")
	// ErrNoResources is returned when the rate limiter cannot allocate a
	// new entry; it fails closed rather than admitting unauthenticated.
	ErrNoResources = errors.New("cookie: rate limiter out of resources")
)
