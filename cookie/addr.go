/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package cookie

import (
	"encoding/binary"
	"net"

	"golang.zx2c4.com/wgcookie/ratelimiter"
)

// splitAddr extracts the address-family-specific bytes the spec uses to key
// a cookie: the raw address followed by the port, both in network byte
// order, exactly as delivered by the socket layer.
func splitAddr(sa *net.UDPAddr) (family ratelimiter.Family, addrBytes []byte, port uint16, ok bool) {
	if sa == nil || sa.IP == nil {
		return 0, nil, 0, false
	}
	if v4 := sa.IP.To4(); v4 != nil {
		return ratelimiter.V4, v4, uint16(sa.Port), true
	}
	if v6 := sa.IP.To16(); v6 != nil {
		return ratelimiter.V6, v6, uint16(sa.Port), true
	}
	return 0, nil, 0, false
}

func portBytes(port uint16) [2]byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], port)
	return b
}
