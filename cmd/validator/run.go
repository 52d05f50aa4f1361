// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"time"

	"github.com/luxfi/ids"
	"github.com/spf13/cobra"

	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/config"
	"github.com/luxfi/sidechain/crypto"
	sidelog "github.com/luxfi/sidechain/log"
	"github.com/luxfi/sidechain/server"
	"github.com/luxfi/sidechain/storage"
)

func runCmd() *cobra.Command {
	var (
		serverPath    string
		storageKind   string
		shard         int
		gracePeriodMS int
		wasmRuntime   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one validator shard",
		Long:  `Loads a validator options file, opens its storage contract, and serves the shard until SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(serverPath)
			if err != nil {
				return err
			}

			store, err := openStorage(storageKind)
			if err != nil {
				return err
			}

			keys, err := crypto.GenerateKeyPair()
			if err != nil {
				return fmt.Errorf("generating shard signing key: %w", err)
			}
			self := ids.GenerateTestNodeID()

			genesis, err := committee.New(0, []committee.Member{{NodeID: self, PublicKey: keys.Public, Weight: 1}})
			if err != nil {
				return fmt.Errorf("building bootstrap committee: %w", err)
			}

			logger, err := sidelog.NewProductionLogger()
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}

			shardServer, err := server.New(server.Options{
				ValidatorOptions: opts,
				ShardIndex:       shard,
				Store:            store,
				Committees:       committee.NewStatic(genesis),
				SelfNodeID:       self,
				Keys:             keys,
				GracePeriod:      time.Duration(gracePeriodMS) * time.Millisecond,
				ClockDrift:       time.Minute,
				Log:              logger,
			})
			if err != nil {
				return err
			}

			_ = wasmRuntime // execution engine selection is external to this core (spec §1 Non-goals)
			return server.RunUntilSignal(shardServer)
		},
	}

	cmd.Flags().StringVar(&serverPath, "server", "", "path to the validator options file")
	cmd.Flags().StringVar(&storageKind, "storage", "memory", "storage backend configuration")
	cmd.Flags().IntVar(&shard, "shard", 0, "index of the shard this process hosts")
	cmd.Flags().IntVar(&gracePeriodMS, "grace-period-ms", 2000, "round timeout grace period in milliseconds")
	cmd.Flags().StringVar(&wasmRuntime, "wasm-runtime", "", "execution engine identifier (opaque to the consensus core)")
	cmd.MarkFlagRequired("server")

	return cmd
}

func openStorage(kind string) (storage.Contract, error) {
	switch kind {
	case "memory", "":
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", kind)
	}
}
