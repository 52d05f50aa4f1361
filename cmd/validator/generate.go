// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"

	"github.com/luxfi/ids"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/sidechain/committee"
)

// validatorDescriptor is one line of a `generate --validators` input
// file: a node identity, its ed25519 public key, and its committee
// weight (spec §6 generate).
type validatorDescriptor struct {
	NodeID    string `yaml:"node_id"`
	PublicKey string `yaml:"public_key"` // hex-encoded ed25519 public key
	Weight    uint64 `yaml:"weight"`
}

// committeeDescriptor is the generated committee file's on-disk shape.
type committeeDescriptor struct {
	Epoch      uint64                `yaml:"epoch"`
	Validators []validatorDescriptor `yaml:"validators"`
}

func generateCmd() *cobra.Command {
	var (
		validatorPaths []string
		committeePath  string
		prngSeed       int64
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a committee from a set of validator descriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(validatorPaths) == 0 {
				return fmt.Errorf("at least one --validators path is required")
			}

			var members []committee.Member
			for _, path := range validatorPaths {
				descs, err := loadValidatorDescriptors(path)
				if err != nil {
					return err
				}
				for _, d := range descs {
					member, err := toMember(d)
					if err != nil {
						return fmt.Errorf("parsing validator entry in %s: %w", path, err)
					}
					members = append(members, member)
				}
			}

			if prngSeed != 0 {
				rand.New(rand.NewSource(prngSeed)).Shuffle(len(members), func(i, j int) {
					members[i], members[j] = members[j], members[i]
				})
			}

			comm, err := committee.New(0, members)
			if err != nil {
				return fmt.Errorf("building committee: %w", err)
			}

			if committeePath == "" {
				return nil
			}
			return saveCommittee(committeePath, comm)
		},
	}

	cmd.Flags().StringSliceVar(&validatorPaths, "validators", nil, "validator description files (repeatable)")
	cmd.Flags().StringVar(&committeePath, "committee", "", "output path for the generated committee")
	cmd.Flags().Int64Var(&prngSeed, "testing-prng-seed", 0, "deterministic seed for test-only committee member ordering")

	return cmd
}

func loadValidatorDescriptors(path string) ([]validatorDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var descs []validatorDescriptor
	if err := yaml.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return descs, nil
}

func toMember(d validatorDescriptor) (committee.Member, error) {
	nodeID, err := ids.NodeIDFromString(d.NodeID)
	if err != nil {
		return committee.Member{}, fmt.Errorf("invalid node_id %q: %w", d.NodeID, err)
	}
	keyBytes, err := hex.DecodeString(d.PublicKey)
	if err != nil {
		return committee.Member{}, fmt.Errorf("invalid public_key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return committee.Member{}, fmt.Errorf("public_key must be %d bytes, got %d", ed25519.PublicKeySize, len(keyBytes))
	}
	if d.Weight == 0 {
		return committee.Member{}, fmt.Errorf("weight must be positive")
	}
	return committee.Member{NodeID: nodeID, PublicKey: ed25519.PublicKey(keyBytes), Weight: d.Weight}, nil
}

func saveCommittee(path string, comm *committee.Committee) error {
	desc := committeeDescriptor{Epoch: comm.Epoch}
	for _, m := range comm.Members() {
		desc.Validators = append(desc.Validators, validatorDescriptor{
			NodeID:    m.NodeID.String(),
			PublicKey: hex.EncodeToString(m.PublicKey),
			Weight:    m.Weight,
		})
	}
	data, err := yaml.Marshal(desc)
	if err != nil {
		return fmt.Errorf("marshaling committee: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
