// Package config holds the consensus parameters of the supported networks
// and the node configuration read through viper.
package config

import (
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"

	"bipbbb/core/blockweight"
)

// ErrUnknownNetwork is returned for a network name without parameters.
var ErrUnknownNetwork = errors.New("unknown network")

// Params are the consensus parameters of one network.
type Params struct {
	Chain *chaincfg.Params

	// RetargetInterval is the number of blocks between multiplier
	// retargets, the difficulty adjustment interval.
	RetargetInterval uint64
}

var networks = map[string]*chaincfg.Params{
	"mainnet":  &chaincfg.MainNetParams,
	"testnet3": &chaincfg.TestNet3Params,
	"regtest":  &chaincfg.RegressionNetParams,
	"simnet":   &chaincfg.SimNetParams,
	"signet":   &chaincfg.SigNetParams,
}

// Networks returns the supported network names.
func Networks() []string {
	return []string{"mainnet", "testnet3", "regtest", "simnet", "signet"}
}

// DifficultyAdjustmentInterval is the number of blocks per difficulty
// period of chain.
func DifficultyAdjustmentInterval(chain *chaincfg.Params) uint64 {
	return uint64(chain.TargetTimespan / chain.TargetTimePerBlock)
}

// ParamsForNetwork returns the parameters of the named network. A non-zero
// interval replaces the network's retarget interval, which only makes sense
// on test networks.
func ParamsForNetwork(name string, interval uint64) (*Params, error) {
	chain, ok := networks[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNetwork, "%q", name)
	}

	p := &Params{
		Chain:            chain,
		RetargetInterval: DifficultyAdjustmentInterval(chain),
	}
	if interval != 0 {
		p.RetargetInterval = interval
	}
	return p, nil
}

// BlockWeight returns the parameters the retarget engine needs.
func (p *Params) BlockWeight() blockweight.Params {
	return blockweight.Params{Interval: p.RetargetInterval}
}
