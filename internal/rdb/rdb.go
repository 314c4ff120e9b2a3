// Package rdb implements the subset of the snapshot binary format this
// server needs: loading plain-string entries with optional expiry (§4.5),
// and producing the canonical empty snapshot blob sent to a freshly
// synced replica.
package rdb

const (
	magicString = "REDIS"
	version     = "0011"

	opEOF       = 0xFF
	opSelectDB  = 0xFE
	opExpireSec = 0xFD
	opExpireMS  = 0xFC
	opResizeDB  = 0xFB
	opAux       = 0xFA
	typeString  = 0x00
)
