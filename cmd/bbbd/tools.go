package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bipbbb/core/blockweight"
	"bipbbb/core/config"
)

func newFindVoteCmd() *cobra.Command {
	var isHex bool

	cmd := &cobra.Command{
		Use:   "findvote <coinbase>",
		Short: "Print the multiplier vote found in coinbase text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := []byte(args[0])
			if isHex {
				var err error
				text, err = hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
				if err != nil {
					return errors.Wrap(err, "decoding coinbase hex")
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), blockweight.FindVote(text))
			return nil
		},
	}
	cmd.Flags().BoolVar(&isHex, "hex", false, "argument is hex encoded script bytes")
	return cmd
}

func newParamsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the retarget parameters of the selected network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := config.ParamsForNetwork(v.GetString(config.Cfg_network), v.GetUint64(config.Cfg_bipbbb_interval))
			if err != nil {
				return err
			}
			interval := params.RetargetInterval
			if interval < 2 {
				return errors.Wrapf(blockweight.ErrInvalidInterval, "%d", interval)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "network:     %s\n", params.Chain.Name)
			fmt.Fprintf(out, "interval:    %d\n", interval)
			fmt.Fprintf(out, "raise index: %d\n", blockweight.RaiseIndex(interval))
			fmt.Fprintf(out, "lower index: %d\n", blockweight.LowerIndex(interval))
			return nil
		},
	}
}
