package server_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/config"
	"github.com/luxfi/sidechain/crypto"
	"github.com/luxfi/sidechain/server"
	"github.com/luxfi/sidechain/storage"
)

func TestNewRejectsOutOfRangeShardIndex(t *testing.T) {
	opts, err := config.NewBuilder("/tmp/server.json", "127.0.0.1", 9000).
		AddShard("127.0.0.1", 19000, 19001).
		Build()
	require.NoError(t, err)

	_, err = server.New(server.Options{ValidatorOptions: opts, ShardIndex: 5})
	require.Error(t, err)
}

func TestShardServesMetricsAndShutsDownOnCancel(t *testing.T) {
	opts, err := config.NewBuilder("/tmp/server.json", "127.0.0.1", 9000).
		AddShard("127.0.0.1", 19010, 19011).
		Build()
	require.NoError(t, err)

	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	nodeID := ids.GenerateTestNodeID()
	comm, err := committee.New(0, []committee.Member{{NodeID: nodeID, PublicKey: kp.Public, Weight: 1}})
	require.NoError(t, err)

	shard, err := server.New(server.Options{
		ValidatorOptions: opts,
		ShardIndex:       0,
		Store:            storage.NewMemory(),
		Committees:       committee.NewStatic(comm),
		SelfNodeID:       nodeID,
		Keys:             kp,
		GracePeriod:      time.Second,
		ClockDrift:       time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- shard.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:19011/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("shard did not shut down in time")
	}
}
