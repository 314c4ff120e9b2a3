// Package replication implements both sides of the single-primary
// replication topology: the primary's replica registry and handshake
// responder, and the secondary's outbound handshake and stream consumer.
package replication

import (
	"crypto/rand"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"kvserver/internal/protocol"
)

// GenerateID returns a 40-hex-character replication ID, stable for the
// process lifetime (§3 Configuration).
func GenerateID() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("replication: crypto/rand unavailable: %v", err))
	}
	return fmt.Sprintf("%x", b)
}

// handle is one registered replica's outbound write side.
type handle struct {
	id   uuid.UUID
	conn net.Conn
}

// Registry is the primary's collection of outbound replica handles — one
// per secondary that has completed PSYNC. Registration and fan-out both
// take exclusive access; the lock is held across the network writes
// during propagation, a known bottleneck (see design notes).
type Registry struct {
	mu      sync.Mutex
	handles []*handle
	log     *logrus.Entry
}

func NewRegistry(log *logrus.Entry) *Registry {
	return &Registry{log: log}
}

// Register appends a freshly PSYNC'd connection to the registry.
func (r *Registry) Register(conn net.Conn) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.handles = append(r.handles, &handle{id: id, conn: conn})
	r.mu.Unlock()
	r.log.WithField("replica", id).Info("replica registered")
	return id
}

// Len reports the number of currently registered replicas.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Propagate serializes a SET as Array[SET,k,v] (TTL is not propagated —
// see design notes) and writes it to every registered replica. A write
// failure is logged and evicts that replica; it never surfaces to the
// caller, who must still reply +OK to the originating client.
func (r *Registry) Propagate(key string, value []byte) {
	frame := protocol.BulkStringArray("SET", key, string(value))
	payload := protocol.Encode(frame)

	r.mu.Lock()
	defer r.mu.Unlock()

	live := r.handles[:0]
	for _, h := range r.handles {
		if _, err := h.conn.Write(payload); err != nil {
			r.log.WithField("replica", h.id).WithError(err).Warn("propagation failed, evicting replica")
			h.conn.Close()
			continue
		}
		live = append(live, h)
	}
	r.handles = live
}
