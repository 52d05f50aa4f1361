package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/sidechain/config"
)

func TestBuilderBuildsValidOptions(t *testing.T) {
	opts, err := config.NewBuilder("/etc/validator/server.json", "0.0.0.0", 9000).
		AddShard("shard-0.internal", 10000, 10001).
		AddShard("shard-1.internal", 10010, 10011).
		AddProxy("proxy.example.com", 443, 10100, "0.0.0.0", 10101).
		Build()
	require.NoError(t, err)
	require.Len(t, opts.Shards, 2)
}

func TestBuilderRejectsMissingShards(t *testing.T) {
	_, err := config.NewBuilder("/etc/validator/server.json", "0.0.0.0", 9000).Build()
	require.Error(t, err)
}

func TestBuilderRejectsBadProxy(t *testing.T) {
	_, err := config.NewBuilder("/etc/validator/server.json", "0.0.0.0", 9000).
		AddShard("shard-0.internal", 10000, 10001).
		AddProxy("", 0, 0, "", 0).
		Build()
	require.Error(t, err)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	opts, err := config.NewBuilder("/etc/validator/server.json", "0.0.0.0", 9000).
		AddShard("shard-0.internal", 10000, 10001).
		Build()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "validator.yaml")
	require.NoError(t, config.Save(path, opts))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, opts.Host, loaded.Host)
	require.Equal(t, opts.Shards, loaded.Shards)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestTemplateShardString(t *testing.T) {
	require.Equal(t, "shard-03.internal", config.TemplateShardString("shard-%%.internal", 3))
	require.Equal(t, "10007", config.TemplateShardString("100%%", 7))
	require.Equal(t, "no-template", config.TemplateShardString("no-template", 5))
}

func TestEditShards(t *testing.T) {
	opts, err := config.NewBuilder("/etc/validator/server.json", "0.0.0.0", 9000).
		AddShard("old.internal", 1, 2).
		Build()
	require.NoError(t, err)

	require.NoError(t, config.EditShards(opts, 3, "shard-%%.internal", "1000%", "2000%"))
	require.Len(t, opts.Shards, 3)
	require.Equal(t, "shard-01.internal", opts.Shards[1].Host)
	require.Equal(t, 10001, opts.Shards[1].Port)
	require.Equal(t, 20001, opts.Shards[1].MetricsPort)
}

func TestEditShardsRejectsBadCount(t *testing.T) {
	opts := &config.ValidatorOptions{}
	require.Error(t, config.EditShards(opts, 0, "h", "1", ""))
}
