// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package benchmark

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBpsSharesDistributesRemainder(t *testing.T) {
	require.Equal(t, []int{25, 25, 25, 25}, bpsShares(100, 4))

	shares := bpsShares(101, 4)
	require.Equal(t, []int{26, 25, 25, 25}, shares)
	sum := 0
	for _, s := range shares {
		sum += s
	}
	require.Equal(t, 101, sum)
}

func TestChainGroupsRoundRobin(t *testing.T) {
	groups := chainGroups(6, 4)
	require.Equal(t, [][]int{{0, 4}, {1, 5}, {2}, {3}}, groups)
}
