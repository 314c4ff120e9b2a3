package replication

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"kvserver/internal/protocol"
)

// DialUpstream performs the secondary's strict, synchronous outbound
// handshake (§4.4): PING, REPLCONF listening-port, REPLCONF capa psync2,
// PSYNC ? -1, each step reading and validating the upstream's reply
// before sending the next. Any deviation returns an error, which is fatal
// at the caller — there is no retry and no partial-resync fallback, the
// same contract original_source/replication.rs enforces for its upstream
// handshake.
//
// On success it returns the live connection (already past the handshake,
// with the snapshot bytes consumed) ready to be handed to the session
// loop as a replication-stream consumer, plus the buffered reader holding
// any bytes read past the snapshot that belong to the stream.
func DialUpstream(upstreamAddr string, ownPort string) (net.Conn, *bufio.Reader, error) {
	conn, err := net.Dial("tcp", upstreamAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("replication: dialing upstream %s: %w", upstreamAddr, err)
	}

	r := bufio.NewReader(conn)

	if err := step(conn, r, protocol.BulkStringArray("PING"), "+PONG"); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := step(conn, r, protocol.BulkStringArray("REPLCONF", "listening-port", ownPort), "+OK"); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := step(conn, r, protocol.BulkStringArray("REPLCONF", "capa", "psync2"), "+OK"); err != nil {
		conn.Close()
		return nil, nil, err
	}

	if _, err := conn.Write(protocol.Encode(protocol.BulkStringArray("PSYNC", "?", "-1"))); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("replication: sending PSYNC: %w", err)
	}
	line, err := readLine(r)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("replication: reading FULLRESYNC line: %w", err)
	}
	if !strings.HasPrefix(line, "+FULLRESYNC") {
		conn.Close()
		return nil, nil, fmt.Errorf("replication: expected +FULLRESYNC, got %q", line)
	}

	if _, err := consumeSnapshot(r); err != nil {
		conn.Close()
		return nil, nil, err
	}

	return conn, r, nil
}

// step sends cmd and requires the upstream's reply line to start with
// want, failing fast on any other response.
func step(conn net.Conn, r *bufio.Reader, cmd protocol.Frame, want string) error {
	if _, err := conn.Write(protocol.Encode(cmd)); err != nil {
		return fmt.Errorf("replication: writing command: %w", err)
	}
	line, err := readLine(r)
	if err != nil {
		return fmt.Errorf("replication: reading reply: %w", err)
	}
	if !strings.HasPrefix(line, want) {
		return fmt.Errorf("replication: expected %q, got %q", want, line)
	}
	return nil
}

// consumeSnapshot reads the RawBlob frame FullResync wrote via
// protocol.Encode(protocol.NewRawBlob(...)): "$<n>\r\n" followed by exactly
// n raw bytes with no trailing CRLF. It grows buf one byte at a time and
// hands each grown buffer to protocol.DecodeRawBlob, the same decoder the
// primary's encoder is paired with, rather than re-parsing the header itself.
func consumeSnapshot(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		f, _, err := protocol.DecodeRawBlob(buf, 0)
		if err == nil {
			return f.Bytes, nil
		}
		if err != protocol.ErrNeedMore {
			return nil, fmt.Errorf("replication: reading snapshot: %w", err)
		}
		b, rerr := r.ReadByte()
		if rerr != nil {
			return nil, fmt.Errorf("replication: reading snapshot payload: %w", rerr)
		}
		buf = append(buf, b)
	}
}

// readLine reads up to the next CRLF and returns the line without it.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
