package rdb

import (
	"bytes"
	"encoding/binary"
	"hash/crc64"
)

var crcTable = crc64.MakeTable(crc64.ECMA)

// EmptySnapshot returns the canonical empty snapshot blob the primary
// sends as the bulk payload of a PSYNC FULLRESYNC response (§4.3): a
// header, a zero-entry DB section, and an EOF+CRC64 trailer. Open
// Question (b) in spec.md §9 treats "a valid empty snapshot" as
// sufficient; this is not required to be byte-identical to any other
// implementation's empty file.
func EmptySnapshot() []byte {
	var buf bytes.Buffer
	buf.WriteString(magicString)
	buf.WriteString(version)
	buf.WriteByte(opSelectDB)
	buf.WriteByte(0)
	buf.WriteByte(opResizeDB)
	buf.WriteByte(0) // hash table size
	buf.WriteByte(0) // expires size
	buf.WriteByte(opEOF)

	checksum := crc64.Checksum(buf.Bytes(), crcTable)
	var trailer [8]byte
	binary.LittleEndian.PutUint64(trailer[:], checksum)
	buf.Write(trailer[:])

	return buf.Bytes()
}
