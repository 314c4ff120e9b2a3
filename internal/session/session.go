// Package session implements the per-connection read loop: decode,
// dispatch, writeback, and the PSYNC-triggered promotion into a
// replication outbound (§4.6).
package session

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kvserver/internal/command"
	"kvserver/internal/config"
	"kvserver/internal/protocol"
	"kvserver/internal/replication"
	"kvserver/internal/store"
)

const initialBufSize = 4096

// Server is the shared state every session dispatches against.
type Server struct {
	Config   *config.Config
	Store    *store.Store
	Registry *replication.Registry
	Log      *logrus.Logger
}

// Session is one accepted connection's read/dispatch/write loop.
type Session struct {
	srv  *Server
	conn net.Conn
	id   uuid.UUID
	log  *logrus.Entry

	buf         []byte
	lastCommand command.Kind
}

// New wraps conn in a session with a freshly generated id for log
// correlation.
func New(srv *Server, conn net.Conn) *Session {
	id := uuid.New()
	return &Session{
		srv:  srv,
		conn: conn,
		id:   id,
		log:  srv.Log.WithField("conn", id),
		buf:  make([]byte, 0, initialBufSize),
	}
}

// Serve runs the session loop until the connection closes, errors, or is
// promoted into the replica registry by a served PSYNC.
func (s *Session) Serve() {
	defer func() {
		if s.lastCommand != command.Psync {
			s.conn.Close()
		}
	}()

	read := make([]byte, initialBufSize)
	for {
		n, err := s.conn.Read(read)
		if n > 0 {
			s.buf = append(s.buf, read[:n]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.WithError(err).Debug("connection read error")
			}
			return
		}

		frames, consumed, derr := protocol.Decode(s.buf)
		if derr != nil {
			s.log.WithError(derr).Warn("protocol decode error, closing connection")
			return
		}
		s.buf = s.buf[consumed:]

		for _, f := range frames {
			if !s.dispatch(f) {
				return
			}
		}
	}
}

// dispatch handles one parsed frame. It returns false when the session
// loop must stop (PSYNC served, or a write failed).
func (s *Session) dispatch(f protocol.Frame) bool {
	cmd := command.Parse(f)
	if cmd.Kind != command.Psync {
		s.lastCommand = cmd.Kind
	}

	switch cmd.Kind {
	case command.Ping:
		return s.reply(protocol.NewSimpleString("PONG"))

	case command.Echo:
		return s.reply(protocol.NewBulkString([]byte(cmd.Arg)))

	case command.Set:
		s.srv.Store.Set(cmd.Key, cmd.Value, cmd.TTL)
		s.srv.Registry.Propagate(cmd.Key, cmd.Value)
		return s.reply(protocol.NewSimpleString("OK"))

	case command.Get:
		v, ok := s.srv.Store.Get(cmd.Arg)
		if !ok {
			return s.reply(protocol.NewNullBulk())
		}
		return s.reply(protocol.NewBulkString(v))

	case command.ConfigGet:
		var value string
		switch cmd.Arg {
		case "dir":
			value = s.srv.Config.SnapshotDir
		case "dbfilename":
			value = s.srv.Config.SnapshotFilename
		}
		return s.reply(protocol.NewArray(
			protocol.NewBulkString([]byte(cmd.Arg)),
			protocol.NewBulkString([]byte(value)),
		))

	case command.Keys:
		keys := s.srv.Store.Keys()
		elems := make([]protocol.Frame, len(keys))
		for i, k := range keys {
			elems[i] = protocol.NewBulkString([]byte(k))
		}
		return s.reply(protocol.NewArray(elems...))

	case command.Info:
		body := fmt.Sprintf("role:%s\nmaster_replid:%s\nmaster_repl_offset:0",
			s.srv.Config.Role, s.srv.Config.ReplicationID)
		return s.reply(protocol.NewBulkString([]byte(body)))

	case command.ReplconfListeningPort, command.ReplconfCapa:
		return s.reply(protocol.NewSimpleString("OK"))

	case command.Psync:
		if err := replication.FullResync(s.conn, s.srv.Config.ReplicationID); err != nil {
			s.log.WithError(err).Warn("PSYNC handshake failed")
			return false
		}
		s.lastCommand = command.Psync
		s.srv.Registry.Register(s.conn)
		return false

	default:
		return s.reply(protocol.NewSimpleString("ERR Unknown command"))
	}
}

func (s *Session) reply(f protocol.Frame) bool {
	if _, err := s.conn.Write(protocol.Encode(f)); err != nil {
		s.log.WithError(err).Debug("write error, closing connection")
		return false
	}
	return true
}

// ServeReplicationStream feeds a connection that has already completed the
// secondary's outbound handshake into the ordinary dispatch loop, except
// no replies are ever written back on it (§4.4). seed holds any bytes the
// handshake reader buffered past the snapshot payload.
func ServeReplicationStream(srv *Server, conn net.Conn, seed *bufio.Reader) {
	log := srv.Log.WithField("role", "replica-stream")
	s := &Session{srv: srv, conn: conn, id: uuid.New(), log: log, buf: make([]byte, 0, initialBufSize)}

	if seed.Buffered() > 0 {
		leftover := make([]byte, seed.Buffered())
		if _, err := seed.Read(leftover); err == nil {
			s.buf = append(s.buf, leftover...)
		}
	}

	read := make([]byte, initialBufSize)
	for {
		frames, consumed, derr := protocol.Decode(s.buf)
		if derr != nil {
			log.WithError(derr).Warn("replication stream decode error")
			conn.Close()
			return
		}
		s.buf = s.buf[consumed:]

		for _, f := range frames {
			c := command.Parse(f)
			if c.Kind == command.Set {
				srv.Store.Set(c.Key, c.Value, c.TTL)
			}
		}

		n, err := conn.Read(read)
		if n > 0 {
			s.buf = append(s.buf, read[:n]...)
		}
		if err != nil {
			log.WithError(err).Debug("replication stream closed")
			conn.Close()
			return
		}
	}
}
