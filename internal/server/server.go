// Package server wires configuration, store, snapshot loading, and
// replication into the accept loop (§2 control flow).
package server

import (
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"

	"kvserver/internal/config"
	"kvserver/internal/rdb"
	"kvserver/internal/replication"
	"kvserver/internal/session"
	"kvserver/internal/store"
)

// Run loads the snapshot, performs the secondary handshake if configured,
// and then accepts connections indefinitely: every accept error, including
// one from a closed listener, is logged and the loop continues. A failed
// secondary handshake is fatal and returned to the caller, who exits the
// process with code 1 (§6, §7).
func Run(cfg *config.Config, log *logrus.Logger) error {
	st := store.New()

	if err := rdb.Load(cfg.SnapshotDir, cfg.SnapshotFilename, st); err != nil {
		return fmt.Errorf("server: snapshot load: %w", err)
	}

	srv := &session.Server{
		Config:   cfg,
		Store:    st,
		Registry: replication.NewRegistry(log.WithField("component", "registry")),
		Log:      log,
	}

	if cfg.Role == config.RoleSecondary {
		conn, reader, err := replication.DialUpstream(cfg.UpstreamEndpoint, strconv.Itoa(cfg.ListenPort))
		if err != nil {
			return fmt.Errorf("server: secondary handshake: %w", err)
		}
		log.WithField("upstream", cfg.UpstreamEndpoint).Info("replication handshake complete")
		go session.ServeReplicationStream(srv, conn, reader)
	}

	addr := "127.0.0.1:" + strconv.Itoa(cfg.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	log.WithField("addr", addr).Info("listening")

	return accept(srv, ln, log)
}

func accept(srv *session.Server, ln net.Listener, log *logrus.Logger) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.WithError(err).Warn("accept error, continuing")
			continue
		}
		go session.New(srv, conn).Serve()
	}
}
