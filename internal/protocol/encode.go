package protocol

import (
	"bytes"
	"strconv"
)

// Encode serializes f using the same grammar Decode accepts: byte length
// (not character count) for BulkString content, CRLF terminators
// throughout, except RawBlob which has no trailing CRLF.
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	encodeInto(&buf, f)
	return buf.Bytes()
}

func encodeInto(buf *bytes.Buffer, f Frame) {
	switch f.Kind {
	case SimpleString:
		buf.WriteByte('+')
		buf.WriteString(f.Str)
		buf.Write(crlf)

	case BulkString:
		buf.WriteByte('$')
		buf.WriteString(strconv.Itoa(len(f.Bytes)))
		buf.Write(crlf)
		buf.Write(f.Bytes)
		buf.Write(crlf)

	case NullBulk:
		buf.WriteString("$-1")
		buf.Write(crlf)

	case RawBlob:
		buf.WriteByte('$')
		buf.WriteString(strconv.Itoa(len(f.Bytes)))
		buf.Write(crlf)
		buf.Write(f.Bytes)

	case Array:
		buf.WriteByte('*')
		buf.WriteString(strconv.Itoa(len(f.Elems)))
		buf.Write(crlf)
		for _, e := range f.Elems {
			encodeInto(buf, e)
		}
	}
}
