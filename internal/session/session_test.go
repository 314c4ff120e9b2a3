package session

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvserver/internal/config"
	"kvserver/internal/protocol"
	"kvserver/internal/replication"
	"kvserver/internal/store"
)

func newTestServer() *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Server{
		Config: &config.Config{
			Role:          config.RolePrimary,
			ReplicationID: "abcd1234abcd1234abcd1234abcd1234abcd1234",
		},
		Store:    store.New(),
		Registry: replication.NewRegistry(log.WithField("component", "registry")),
		Log:      log,
	}
}

func dialSession(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	go New(srv, server).Serve()
	t.Cleanup(func() { client.Close() })
	return client
}

func readFrame(t *testing.T, r *bufio.Reader) protocol.Frame {
	t.Helper()
	var buf []byte
	for {
		frames, consumed, err := protocol.Decode(buf)
		require.NoError(t, err)
		if len(frames) > 0 {
			_ = consumed
			return frames[0]
		}
		b, err := r.ReadByte()
		require.NoError(t, err)
		buf = append(buf, b)
	}
}

// S1: PING
func TestScenarioPing(t *testing.T) {
	srv := newTestServer()
	conn := dialSession(t, srv)
	r := bufio.NewReader(conn)

	_, err := conn.Write(protocol.Encode(protocol.BulkStringArray("PING")))
	require.NoError(t, err)

	f := readFrame(t, r)
	assert.Equal(t, protocol.NewSimpleString("PONG"), f)
}

// S2: SET/GET
func TestScenarioSetGet(t *testing.T) {
	srv := newTestServer()
	conn := dialSession(t, srv)
	r := bufio.NewReader(conn)

	_, err := conn.Write(protocol.Encode(protocol.BulkStringArray("SET", "mykey", "myvalue")))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewSimpleString("OK"), readFrame(t, r))

	_, err = conn.Write(protocol.Encode(protocol.BulkStringArray("GET", "mykey")))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewBulkString([]byte("myvalue")), readFrame(t, r))
}

// S3: SET with PX expiry
func TestScenarioSetPXExpiry(t *testing.T) {
	srv := newTestServer()
	conn := dialSession(t, srv)
	r := bufio.NewReader(conn)

	_, err := conn.Write(protocol.Encode(protocol.BulkStringArray("SET", "k", "v", "PX", "100")))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewSimpleString("OK"), readFrame(t, r))

	_, err = conn.Write(protocol.Encode(protocol.BulkStringArray("GET", "k")))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewBulkString([]byte("v")), readFrame(t, r))

	time.Sleep(150 * time.Millisecond)

	_, err = conn.Write(protocol.Encode(protocol.BulkStringArray("GET", "k")))
	require.NoError(t, err)
	assert.Equal(t, protocol.NewNullBulk(), readFrame(t, r))
}

// S4: INFO on primary
func TestScenarioInfo(t *testing.T) {
	srv := newTestServer()
	conn := dialSession(t, srv)
	r := bufio.NewReader(conn)

	_, err := conn.Write(protocol.Encode(protocol.BulkStringArray("INFO")))
	require.NoError(t, err)

	f := readFrame(t, r)
	require.Equal(t, protocol.BulkString, f.Kind)
	assert.Equal(t, "role:master\nmaster_replid:abcd1234abcd1234abcd1234abcd1234abcd1234\nmaster_repl_offset:0", string(f.Bytes))
}

// S5: handshake to primary
func TestScenarioHandshake(t *testing.T) {
	srv := newTestServer()
	conn := dialSession(t, srv)
	r := bufio.NewReader(conn)

	send := func(args ...string) {
		_, err := conn.Write(protocol.Encode(protocol.BulkStringArray(args...)))
		require.NoError(t, err)
	}

	send("PING")
	assert.Equal(t, protocol.NewSimpleString("PONG"), readFrame(t, r))

	send("REPLCONF", "listening-port", "6380")
	assert.Equal(t, protocol.NewSimpleString("OK"), readFrame(t, r))

	send("REPLCONF", "capa", "psync2")
	assert.Equal(t, protocol.NewSimpleString("OK"), readFrame(t, r))

	send("PSYNC", "?", "-1")

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "+FULLRESYNC abcd1234abcd1234abcd1234abcd1234abcd1234 0")

	header, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, len(header) > 1 && header[0] == '$')

	n := parseSnapshotLen(header)
	_, err = io.ReadFull(r, make([]byte, n))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return srv.Registry.Len() == 1 }, time.Second, 5*time.Millisecond)
}

// parseSnapshotLen extracts n from a "$<n>\r\n" header line.
func parseSnapshotLen(header string) int {
	n := 0
	for _, c := range header[1 : len(header)-2] {
		n = n*10 + int(c-'0')
	}
	return n
}

// S6: replication propagation
func TestScenarioPropagation(t *testing.T) {
	srv := newTestServer()

	replicaConn := dialSession(t, srv)
	r := bufio.NewReader(replicaConn)

	send := func(conn net.Conn, args ...string) {
		_, err := conn.Write(protocol.Encode(protocol.BulkStringArray(args...)))
		require.NoError(t, err)
	}

	send(replicaConn, "PING")
	readFrame(t, r)
	send(replicaConn, "REPLCONF", "listening-port", "6380")
	readFrame(t, r)
	send(replicaConn, "REPLCONF", "capa", "psync2")
	readFrame(t, r)
	send(replicaConn, "PSYNC", "?", "-1")

	_, err := r.ReadString('\n')
	require.NoError(t, err)
	header, err := r.ReadString('\n')
	require.NoError(t, err)
	snapshot := make([]byte, parseSnapshotLen(header))
	_, err = io.ReadFull(r, snapshot)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return srv.Registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	propagatedCh := make(chan protocol.Frame, 1)
	go func() { propagatedCh <- readFrame(t, r) }()

	clientConn := dialSession(t, srv)
	cr := bufio.NewReader(clientConn)
	send(clientConn, "SET", "foo", "bar")
	assert.Equal(t, protocol.NewSimpleString("OK"), readFrame(t, cr))

	select {
	case propagated := <-propagatedCh:
		args, ok := propagated.Args()
		require.True(t, ok)
		assert.Equal(t, []string{"SET", "foo", "bar"}, args)
	case <-time.After(time.Second):
		t.Fatal("propagated write never arrived")
	}
}
