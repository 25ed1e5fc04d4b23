package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bipbbb/core/config"
)

// Execute runs the bbbd command line.
func Execute() error {
	return newRootCmd(viper.New()).Execute()
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "bbbd",
		Short:         "Block weight multiplier node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ReadConfigFile(v, cfgFile)
		},
	}
	config.SetDefaults(v)

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default bbbd.yaml in /etc/bbbd, $HOME/.bbbd or .)")
	root.PersistentFlags().String("network", "regtest", "network: mainnet, testnet3, regtest, simnet or signet")
	root.PersistentFlags().Uint64("interval", 0, "retarget interval override, test networks only")
	v.BindPFlag(config.Cfg_network, root.PersistentFlags().Lookup("network"))
	v.BindPFlag(config.Cfg_bipbbb_interval, root.PersistentFlags().Lookup("interval"))

	root.AddCommand(newRunCmd(v), newFindVoteCmd(), newParamsCmd(v))
	return root
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), v)
		},
	}

	f := cmd.Flags()
	f.String("datadir", "./data", "directory for chain data")
	f.String("store", "badger", "block store backend: badger, leveldb or memory")
	f.Bool("enableBIPBBB", false, "enable vote driven block weight retargeting")
	f.Uint32("blockmaxweightmultiplier", 0, "force the multiplier, 1 to 99999")
	f.Bool("scanblockmaxweightmultiplier", false, "rescan to the previous interval boundary at startup")
	f.String("log-level", "info", "log level")
	f.String("log-file", "", "also write JSON logs to this file")
	f.String("api", "127.0.0.1:8332", "API listen address, empty to disable")
	f.Bool("mine", false, "mine blocks")
	f.Uint32("vote", 0, "multiplier vote placed in mined coinbases")
	f.Bool("dropdir", false, "import blocks dropped into the drop directory")

	for key, flag := range map[string]string{
		config.Cfg_datadir:        "datadir",
		config.Cfg_store_backend:  "store",
		config.Cfg_bipbbb_enable:  "enableBIPBBB",
		config.Cfg_bipbbb_mult:    "blockmaxweightmultiplier",
		config.Cfg_bipbbb_scan:    "scanblockmaxweightmultiplier",
		config.Cfg_log_level:      "log-level",
		config.Cfg_log_file:       "log-file",
		config.Cfg_api_listen:     "api",
		config.Cfg_mining_enable:  "mine",
		config.Cfg_mining_vote:    "vote",
		config.Cfg_dropdir_enable: "dropdir",
	} {
		v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func waitExit(ctx context.Context) <-chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	return sigs
}
