package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kvserver/internal/config"
	"kvserver/internal/logging"
	"kvserver/internal/server"
)

func main() {
	var (
		dir        string
		dbfilename string
		port       int
		replicaof  string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "kvserver",
		Short: "An in-memory key/value server with snapshot persistence and replication",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}

			if dir == "" {
				dir = file.Dir
			}
			if dbfilename == "" {
				dbfilename = file.DBFilename
			}
			if !cmd.Flags().Changed("port") && file.Port != 0 {
				port = file.Port
			}
			if replicaof == "" {
				replicaof = file.ReplicaOf
			}

			cfg, err := config.Build(dir, dbfilename, port, replicaof)
			if err != nil {
				return err
			}

			log := logging.New()
			log.WithField("role", cfg.Role).Info("starting")
			return server.Run(cfg, log)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dir, "dir", "", "directory containing the snapshot file")
	flags.StringVar(&dbfilename, "dbfilename", "", "snapshot file name")
	flags.IntVar(&port, "port", 6379, "TCP listen port")
	flags.StringVar(&replicaof, "replicaof", "", "\"<host> <port>\" of the upstream primary")
	flags.StringVar(&configPath, "config", "", "optional YAML config file")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
