// Package config builds and validates the immutable configuration record
// (§3 Configuration) handed to the core once at startup. Parsing CLI
// flags is the bootstrap collaborator's job; this package loads the
// optional YAML file and validates the merged result.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"kvserver/internal/replication"
)

// Role is the server's replication role.
type Role string

const (
	RolePrimary   Role = "master"
	RoleSecondary Role = "slave"
)

// Config is the validated record the core operates on.
type Config struct {
	SnapshotDir      string
	SnapshotFilename string
	Role             Role
	ListenPort       int
	ReplicationID    string
	UpstreamEndpoint string // host:port, required iff Role == RoleSecondary
}

// File is the optional on-disk document loaded via --config and merged
// under flag-wins-over-file precedence by the CLI layer.
type File struct {
	Dir        string `yaml:"dir"`
	DBFilename string `yaml:"dbfilename"`
	Port       int    `yaml:"port"`
	ReplicaOf  string `yaml:"replicaof"`
}

// LoadFile reads an optional YAML config document. A missing path is not
// an error — it simply means no file-level overrides exist.
func LoadFile(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &f, nil
}

// Build validates the merged dir/dbfilename/port/replicaof values and
// produces the immutable Config. replicaof is "" for a primary, or
// "<host> <port>" (as the CLI flag documents it) for a secondary — it is
// normalized here to the "host:port" form net.Dial expects. A new
// replication ID is minted for this process lifetime.
func Build(dir, dbfilename string, port int, replicaof string) (*Config, error) {
	if (dir == "") != (dbfilename == "") {
		return nil, fmt.Errorf("config: dir and dbfilename must both be set or both be empty")
	}

	cfg := &Config{
		SnapshotDir:      dir,
		SnapshotFilename: dbfilename,
		Role:             RolePrimary,
		ListenPort:       port,
		ReplicationID:    replication.GenerateID(),
	}

	if replicaof != "" {
		host, hostPort, ok := strings.Cut(strings.TrimSpace(replicaof), " ")
		if !ok {
			return nil, fmt.Errorf("config: replicaof must be \"<host> <port>\", got %q", replicaof)
		}
		cfg.Role = RoleSecondary
		cfg.UpstreamEndpoint = host + ":" + strings.TrimSpace(hostPort)
	}

	return cfg, nil
}
