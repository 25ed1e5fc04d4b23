package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bipbbb/core/blockweight"
	"bipbbb/core/config"
	"bipbbb/core/storage"
	"bipbbb/miner"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(viper.New())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFindVote(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"findvote", "/pool//BIPBBB/X42/"}, "42\n"},
		{[]string{"findvote", "no vote here"}, "0\n"},
		{[]string{"findvote", "--hex", "2f4249504242422f58372f"}, "7\n"},
	}
	for _, tt := range tests {
		out, err := execute(t, tt.args...)
		require.NoError(t, err, "%v", tt.args)
		assert.Equal(t, tt.want, out, "%v", tt.args)
	}
}

func TestFindVoteBadHex(t *testing.T) {
	_, err := execute(t, "findvote", "--hex", "zz")
	assert.Error(t, err)
}

func TestParams(t *testing.T) {
	out, err := execute(t, "params", "--network", "regtest", "--interval", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "interval:    8\n")
	assert.Contains(t, out, "raise index: 2\n")
	assert.Contains(t, out, "lower index: 5\n")

	out, err = execute(t, "params", "--network", "mainnet")
	require.NoError(t, err)
	assert.Contains(t, out, "interval:    2016\n")
	assert.Contains(t, out, "raise index: 504\n")
	assert.Contains(t, out, "lower index: 1511\n")
}

func TestParamsErrors(t *testing.T) {
	_, err := execute(t, "params", "--network", "nowhere")
	assert.ErrorIs(t, err, config.ErrUnknownNetwork)

	_, err = execute(t, "params", "--interval", "1")
	assert.ErrorIs(t, err, blockweight.ErrInvalidInterval)
}

func testConfig(t *testing.T, set map[string]interface{}) *config.Node {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set(config.Cfg_store_backend, storage.BackendMemory)
	v.Set(config.Cfg_p2p_listen, []string{})
	v.Set(config.Cfg_api_listen, "")
	v.Set(config.Cfg_bipbbb_interval, 8)
	for k, val := range set {
		v.Set(k, val)
	}
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func gaugeValue(t *testing.T, d *daemon, name string) float64 {
	t.Helper()
	families, err := d.registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestDaemonRetargetsMinedVotes(t *testing.T) {
	cfg := testConfig(t, map[string]interface{}{
		config.Cfg_bipbbb_enable: true,
		config.Cfg_mining_enable: true,
		config.Cfg_mining_vote:   4,
	})

	ctx, cancel := context.WithCancel(context.Background())
	d, err := newDaemon(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() {
		cancel()
		assert.NoError(t, d.close())
	}()
	require.NotNil(t, d.gen)
	assert.Nil(t, d.p2p)
	assert.Nil(t, d.drop)

	require.NoError(t, miner.MineN(d.chain, d.gen, 15))
	assert.Equal(t, uint32(2), d.engine.Multiplier())

	require.NoError(t, miner.MineN(d.chain, d.gen, 8))
	assert.Equal(t, uint32(3), d.engine.Multiplier())
	assert.Equal(t, float64(3), gaugeValue(t, d, "bipbbb_multiplier"))
	assert.Equal(t, float64(23), gaugeValue(t, d, "bipbbb_last_retarget_height"))

	hash := d.chain.Tip().Hash()
	msg, err := d.chain.FetchBlock(&hash)
	require.NoError(t, err)
	d.logMined(msg)
}

func TestDaemonOverride(t *testing.T) {
	cfg := testConfig(t, map[string]interface{}{
		config.Cfg_bipbbb_mult:    10,
		config.Cfg_dropdir_enable: true,
		config.Cfg_dropdir_path:   t.TempDir(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	d, err := newDaemon(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, uint32(10), d.engine.Multiplier())
	assert.Equal(t, float64(10), gaugeValue(t, d, "bipbbb_multiplier"))
	require.NotNil(t, d.drop)

	errCh := make(chan error, 1)
	d.start(ctx, errCh)
	cancel()
	assert.NoError(t, d.close())
	assert.Empty(t, errCh)
}

func TestDaemonBadBackend(t *testing.T) {
	cfg := testConfig(t, map[string]interface{}{
		config.Cfg_store_backend: "sqlite",
	})
	_, err := newDaemon(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
