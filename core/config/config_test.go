package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bipbbb/core/blockweight"
)

func TestDifficultyAdjustmentInterval(t *testing.T) {
	for _, name := range Networks() {
		p, err := ParamsForNetwork(name, 0)
		require.NoError(t, err, name)
		assert.Equal(t, uint64(2016), p.RetargetInterval, name)
		assert.Equal(t, blockweight.Params{Interval: 2016}, p.BlockWeight())
	}
}

func TestParamsForNetwork(t *testing.T) {
	p, err := ParamsForNetwork("RegTest", 144)
	require.NoError(t, err)
	assert.Equal(t, uint64(144), p.RetargetInterval)
	assert.Equal(t, "regtest", p.Chain.Name)

	_, err = ParamsForNetwork("litecoin", 0)
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, "regtest", c.Network)
	assert.Equal(t, "badger", c.StoreBackend)
	assert.Equal(t, blockweight.Config{}, c.BlockWeight)
	assert.Equal(t, filepath.Join("./data", "blocks"), c.DropDir.Path)
	assert.Equal(t, 10*time.Second, c.Mining.Interval)
	assert.Equal(t, 500*time.Millisecond, c.DropDir.Poll)
	assert.True(t, c.P2P.MDNS)
}

func TestLoadBlockWeightKeys(t *testing.T) {
	v := newViper()
	v.Set(Cfg_bipbbb_enable, true)
	v.Set(Cfg_bipbbb_mult, 10)
	v.Set(Cfg_bipbbb_scan, true)

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, blockweight.Config{Enabled: true, OverrideMultiplier: 10, RescanToBoundary: true}, c.BlockWeight)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]func(v *viper.Viper){
		"network":  func(v *viper.Viper) { v.Set(Cfg_network, "nope") },
		"interval": func(v *viper.Viper) { v.Set(Cfg_bipbbb_interval, 1) },
		"vote":     func(v *viper.Viper) { v.Set(Cfg_mining_vote, 100000) },
		"mining": func(v *viper.Viper) {
			v.Set(Cfg_mining_enable, true)
			v.Set(Cfg_mining_interval, "0s")
		},
		"dropdir": func(v *viper.Viper) {
			v.Set(Cfg_dropdir_enable, true)
			v.Set(Cfg_dropdir_poll, "-1s")
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			v := newViper()
			mutate(v)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestReadConfigFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bbbd.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
network: simnet
bipbbb:
  enable: true
  interval: 8
mining:
  vote: 42
`), 0o644))

	v := newViper()
	require.NoError(t, ReadConfigFile(v, file))
	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "simnet", c.Network)
	assert.True(t, c.BlockWeight.Enabled)
	assert.Equal(t, uint32(42), c.Mining.Vote)

	p, err := c.Params()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), p.RetargetInterval)
}

func TestReadConfigFileMissing(t *testing.T) {
	assert.NoError(t, ReadConfigFile(newViper(), ""))
}
