// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command validator runs and manages one validator process: its
// shards, committee generation, and shard topology edits (spec §6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "validator",
	Short: "Run and manage a sidechain validator",
	Long: `The validator command runs a validator shard, generates a committee
from a set of validator descriptions, and edits a validator's shard
topology in place.`,
}

func main() {
	rootCmd.AddCommand(
		runCmd(),
		generateCmd(),
		editShardsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
