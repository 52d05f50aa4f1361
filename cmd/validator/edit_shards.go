// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luxfi/sidechain/config"
)

func editShardsCmd() *cobra.Command {
	var (
		serverPath  string
		numShards   int
		host        string
		port        string
		metricsPort string
	)

	cmd := &cobra.Command{
		Use:   "edit-shards",
		Short: "Rewrite a validator's shard topology in place",
		Long: `Regenerates the shards[] section of a validator options file with
num-shards entries, templating any run of '%' characters in --host,
--port and --metrics-port with the zero-padded shard index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(serverPath)
			if err != nil {
				return err
			}
			if err := config.EditShards(opts, numShards, host, port, metricsPort); err != nil {
				return err
			}
			if err := config.Save(serverPath, opts); err != nil {
				return err
			}
			fmt.Printf("wrote %d shards to %s\n", numShards, serverPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverPath, "server", "", "path to the validator options file to edit")
	cmd.Flags().IntVar(&numShards, "num-shards", 0, "number of shards to generate")
	cmd.Flags().StringVar(&host, "host", "", "host template, '%...%' is replaced by the shard index")
	cmd.Flags().StringVar(&port, "port", "", "port template, '%...%' is replaced by the shard index")
	cmd.Flags().StringVar(&metricsPort, "metrics-port", "", "metrics port template")
	cmd.MarkFlagRequired("server")
	cmd.MarkFlagRequired("num-shards")
	cmd.MarkFlagRequired("host")
	cmd.MarkFlagRequired("port")

	return cmd
}
