package config

import (
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"bipbbb/core/blockweight"
)

const (
	Cfg_network         = "network"
	Cfg_datadir         = "datadir"
	Cfg_store_backend   = "store.backend"
	Cfg_bipbbb_enable   = "bipbbb.enable"
	Cfg_bipbbb_mult     = "bipbbb.multiplier"
	Cfg_bipbbb_scan     = "bipbbb.scan"
	Cfg_bipbbb_interval = "bipbbb.interval"
	Cfg_log_level       = "log.level"
	Cfg_log_file        = "log.file"
	Cfg_api_listen      = "api.listen"
	Cfg_p2p_listen      = "p2p.listen"
	Cfg_p2p_peers       = "p2p.peers"
	Cfg_p2p_mdns        = "p2p.mdns"
	Cfg_mining_enable   = "mining.enable"
	Cfg_mining_vote     = "mining.vote"
	Cfg_mining_interval = "mining.interval"
	Cfg_dropdir_enable  = "dropdir.enable"
	Cfg_dropdir_path    = "dropdir.path"
	Cfg_dropdir_poll    = "dropdir.poll"
)

var (
	defaults = map[string]interface{}{
		Cfg_network:         "regtest",
		Cfg_datadir:         "./data",
		Cfg_store_backend:   "badger",
		Cfg_bipbbb_enable:   false,
		Cfg_bipbbb_mult:     0,
		Cfg_bipbbb_scan:     false,
		Cfg_bipbbb_interval: 0,
		Cfg_log_level:       "info",
		Cfg_log_file:        "",
		Cfg_api_listen:      "127.0.0.1:8332",
		Cfg_p2p_listen:      []string{"/ip4/0.0.0.0/tcp/8713"},
		Cfg_p2p_peers:       []string{},
		Cfg_p2p_mdns:        true,
		Cfg_mining_enable:   false,
		Cfg_mining_vote:     0,
		Cfg_mining_interval: "10s",
		Cfg_dropdir_enable:  false,
		Cfg_dropdir_path:    "",
		Cfg_dropdir_poll:    "500ms",
	}
)

// SetDefaults registers the node defaults on v.
func SetDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Node is the complete node configuration.
type Node struct {
	Network      string
	DataDir      string
	StoreBackend string

	// RetargetInterval overrides the network's interval when non-zero.
	RetargetInterval uint64

	BlockWeight blockweight.Config

	Log struct {
		Level string
		File  string
	}

	API struct {
		Listen string
	}

	P2P struct {
		Listen []string
		Peers  []string
		MDNS   bool
	}

	Mining struct {
		Enable   bool
		Vote     uint32
		Interval time.Duration
	}

	DropDir struct {
		Enable bool
		Path   string
		Poll   time.Duration
	}
}

// ReadConfigFile loads bbbd.yaml from the usual locations into v. A missing
// file is not an error.
func ReadConfigFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName("bbbd")
		v.AddConfigPath("/etc/bbbd/")
		v.AddConfigPath("$HOME/.bbbd")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("BBBD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return errors.Wrap(err, "reading config file")
	}
	return nil
}

// Load builds the node configuration from v.
func Load(v *viper.Viper) (*Node, error) {
	c := &Node{
		Network:          v.GetString(Cfg_network),
		DataDir:          v.GetString(Cfg_datadir),
		StoreBackend:     v.GetString(Cfg_store_backend),
		RetargetInterval: v.GetUint64(Cfg_bipbbb_interval),
		BlockWeight: blockweight.Config{
			Enabled:            v.GetBool(Cfg_bipbbb_enable),
			OverrideMultiplier: v.GetUint32(Cfg_bipbbb_mult),
			RescanToBoundary:   v.GetBool(Cfg_bipbbb_scan),
		},
	}

	if _, err := ParamsForNetwork(c.Network, 0); err != nil {
		return nil, err
	}
	if c.RetargetInterval == 1 {
		return nil, errors.Wrap(blockweight.ErrInvalidInterval, Cfg_bipbbb_interval)
	}

	c.Log.Level = v.GetString(Cfg_log_level)
	c.Log.File = v.GetString(Cfg_log_file)
	c.API.Listen = v.GetString(Cfg_api_listen)

	c.P2P.Listen = v.GetStringSlice(Cfg_p2p_listen)
	c.P2P.Peers = v.GetStringSlice(Cfg_p2p_peers)
	c.P2P.MDNS = v.GetBool(Cfg_p2p_mdns)

	c.Mining.Enable = v.GetBool(Cfg_mining_enable)
	c.Mining.Vote = v.GetUint32(Cfg_mining_vote)
	c.Mining.Interval = v.GetDuration(Cfg_mining_interval)
	if c.Mining.Vote >= blockweight.MaxOverrideMultiplier {
		return nil, errors.Errorf("%s: vote %d does not fit in 5 digits", Cfg_mining_vote, c.Mining.Vote)
	}
	if c.Mining.Enable && c.Mining.Interval <= 0 {
		return nil, errors.Errorf("%s must be positive", Cfg_mining_interval)
	}

	c.DropDir.Enable = v.GetBool(Cfg_dropdir_enable)
	c.DropDir.Path = v.GetString(Cfg_dropdir_path)
	if c.DropDir.Path == "" {
		c.DropDir.Path = filepath.Join(c.DataDir, "blocks")
	}
	c.DropDir.Poll = v.GetDuration(Cfg_dropdir_poll)
	if c.DropDir.Enable && c.DropDir.Poll <= 0 {
		return nil, errors.Errorf("%s must be positive", Cfg_dropdir_poll)
	}

	return c, nil
}

// Params returns the consensus parameters selected by c.
func (c *Node) Params() (*Params, error) {
	return ParamsForNetwork(c.Network, c.RetargetInterval)
}
