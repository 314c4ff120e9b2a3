// Package command maps a parsed top-level Array frame onto an internal
// command variant (§4.2), ready for dispatch by the connection session.
package command

import (
	"strconv"
	"strings"
	"time"

	"kvserver/internal/protocol"
)

// Kind identifies which command variant Parse produced.
type Kind int

const (
	Unknown Kind = iota
	Ping
	Echo
	Set
	Get
	ConfigGet
	Keys
	Info
	ReplconfListeningPort
	ReplconfCapa
	Psync
)

// Command is the parsed, typed form of a client request.
type Command struct {
	Kind Kind

	// Echo, Get, Keys, ConfigGet (name), Info (section, optional)
	Arg string

	// Set
	Key   string
	Value []byte
	TTL   time.Duration // zero means no expiry

	// ReplconfListeningPort
	Port string
}

// Parse matches f against the command table in §4.2. Any arity/shape
// mismatch, or an unrecognized verb, yields Unknown.
func Parse(f protocol.Frame) Command {
	args, ok := f.Args()
	if !ok || len(args) == 0 {
		return Command{Kind: Unknown}
	}

	verb := strings.ToUpper(args[0])
	switch verb {
	case "PING":
		if len(args) == 1 {
			return Command{Kind: Ping}
		}

	case "ECHO":
		if len(args) == 2 {
			return Command{Kind: Echo, Arg: args[1]}
		}

	case "SET":
		return parseSet(args)

	case "GET":
		if len(args) == 2 {
			return Command{Kind: Get, Arg: args[1]}
		}

	case "CONFIG":
		if len(args) == 3 && strings.EqualFold(args[1], "GET") {
			name := strings.ToLower(args[2])
			if name == "dir" || name == "dbfilename" {
				return Command{Kind: ConfigGet, Arg: name}
			}
		}

	case "KEYS":
		if len(args) == 2 {
			return Command{Kind: Keys, Arg: args[1]}
		}

	case "INFO":
		if len(args) == 1 {
			return Command{Kind: Info}
		}
		if len(args) == 2 {
			return Command{Kind: Info, Arg: args[1]}
		}

	case "REPLCONF":
		if len(args) == 3 {
			switch {
			case strings.EqualFold(args[1], "listening-port"):
				return Command{Kind: ReplconfListeningPort, Port: args[2]}
			case strings.EqualFold(args[1], "capa") && strings.EqualFold(args[2], "psync2"):
				return Command{Kind: ReplconfCapa}
			}
		}

	case "PSYNC":
		if len(args) == 3 && args[1] == "?" && args[2] == "-1" {
			return Command{Kind: Psync}
		}
	}

	return Command{Kind: Unknown}
}

// parseSet handles "SET k v" (arity 3) and "SET k v PX ttl_ms" (arity 5).
// The TTL is unsigned decimal milliseconds; overflow or non-numeric input
// downgrades the whole command to Unknown.
func parseSet(args []string) Command {
	switch len(args) {
	case 3:
		return Command{Kind: Set, Key: args[1], Value: []byte(args[2])}
	case 5:
		if !strings.EqualFold(args[3], "PX") {
			return Command{Kind: Unknown}
		}
		ms, err := strconv.ParseUint(args[4], 10, 64)
		if err != nil {
			return Command{Kind: Unknown}
		}
		return Command{
			Kind:  Set,
			Key:   args[1],
			Value: []byte(args[2]),
			TTL:   time.Duration(ms) * time.Millisecond,
		}
	default:
		return Command{Kind: Unknown}
	}
}
