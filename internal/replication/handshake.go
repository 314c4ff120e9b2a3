package replication

import (
	"fmt"
	"net"

	"kvserver/internal/protocol"
	"kvserver/internal/rdb"
)

// FullResync writes the two-part PSYNC response (§4.3): the FULLRESYNC line,
// then the snapshot payload framed as a RawBlob (§4.1's "$<n>\r\n" header
// plus n raw bytes, no trailing CRLF) via the same protocol.Encode/
// DecodeRawBlob pair consumeSnapshot decodes on the secondary side. The
// caller is responsible for moving conn into the registry afterward.
func FullResync(conn net.Conn, replID string) error {
	line := protocol.Encode(protocol.NewSimpleString(fmt.Sprintf("FULLRESYNC %s 0", replID)))
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("replication: writing FULLRESYNC line: %w", err)
	}

	payload := protocol.Encode(protocol.NewRawBlob(rdb.EmptySnapshot()))
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("replication: writing snapshot payload: %w", err)
	}
	return nil
}
