package main

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"bipbbb/api"
	"bipbbb/core"
	"bipbbb/core/blockweight"
	"bipbbb/core/config"
	"bipbbb/core/storage"
	"bipbbb/logger"
	"bipbbb/metrics"
	"bipbbb/miner"
	"bipbbb/net"
)

// daemon is a running node: the chain with its retarget engine and the
// optional p2p, mining and drop directory services around it.
type daemon struct {
	cfg      *config.Node
	log      *zap.Logger
	store    storage.BlockStore
	chain    *core.Chain
	engine   *blockweight.Engine
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	p2p      *net.Node
	gen      *miner.Generator
	drop     *core.DropDir

	wg sync.WaitGroup
}

func newDaemon(ctx context.Context, cfg *config.Node, log *zap.Logger) (*daemon, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}

	d := &daemon{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
	}

	d.store, err = storage.Open(cfg.StoreBackend, cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "opening block store")
	}

	d.chain, err = core.NewChain(params, d.store, core.WithChainLogger(log.Named("chain")))
	if err != nil {
		d.close()
		return nil, errors.Wrap(err, "loading chain")
	}

	d.metrics, err = metrics.New(d.registry)
	if err != nil {
		d.close()
		return nil, err
	}

	sinks := blockweight.MultiSink{blockweight.NewLogSink(log.Named("blockweight")), d.metrics}

	if len(cfg.P2P.Listen) > 0 {
		d.p2p, err = net.NewNode(ctx, net.Config{
			Network: params.Chain.Name,
			Listen:  cfg.P2P.Listen,
			Peers:   cfg.P2P.Peers,
			MDNS:    cfg.P2P.MDNS,
		}, log.Named("p2p"))
		if err != nil {
			d.close()
			return nil, errors.Wrap(err, "starting p2p node")
		}
		sinks = append(sinks, d.p2p)
	}

	d.engine, err = blockweight.NewEngine(params.BlockWeight(), cfg.BlockWeight, d.chain,
		blockweight.WithSink(sinks))
	if err != nil {
		d.close()
		return nil, errors.Wrap(err, "creating retarget engine")
	}
	d.metrics.SetMultiplier(d.engine.Multiplier())

	d.chain.AddTipHook(func(tip *core.BlockNode) { d.engine.OnNewTip(tip) })
	d.engine.OnNewTip(d.chain.Tip())

	if cfg.Mining.Enable {
		d.gen, err = miner.NewGenerator(params, cfg.Mining.Vote)
		if err != nil {
			d.close()
			return nil, err
		}
	}

	if cfg.DropDir.Enable {
		d.drop, err = core.NewDropDir(cfg.DropDir.Path, d.chain, log.Named("dropdir"))
		if err != nil {
			d.close()
			return nil, err
		}
	}

	log.Info("node ready",
		zap.String("network", params.Chain.Name),
		zap.Uint64("interval", params.RetargetInterval),
		zap.Uint64("tipHeight", d.chain.Tip().Height()),
		zap.Uint32("multiplier", d.engine.Multiplier()))
	return d, nil
}

// start launches the background services, which stop with ctx. Errors from
// the API server are sent on errCh.
func (d *daemon) start(ctx context.Context, errCh chan<- error) {
	if d.gen != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			miner.WorkLoop(ctx, d.chain, d.gen, d.cfg.Mining.Interval, d.logMined, d.log.Named("miner"))
		}()
	}
	if d.drop != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.drop.Run(ctx, d.cfg.DropDir.Poll)
		}()
	}
	if d.cfg.API.Listen != "" {
		r := mux.NewRouter()
		api.RegisterRoutes(r, api.NewHandler(d.chain, d.engine, d.log.Named("api")), d.registry)
		go func() {
			if err := api.Serve(ctx, d.cfg.API.Listen, r, d.log.Named("api")); err != nil {
				errCh <- err
			}
		}()
	}
}

func (d *daemon) logMined(msg *wire.MsgBlock) {
	hash := msg.BlockHash()
	node := d.chain.NodeByHash(hash)
	if node == nil {
		return
	}
	vote, err := blockweight.BlockVote(msg, node.Height())
	if err != nil {
		d.log.Warn("mined block has no readable vote", zap.Stringer("hash", hash), zap.Error(err))
		return
	}
	d.log.Info("mined block",
		zap.Uint64("height", node.Height()),
		zap.Stringer("hash", hash),
		zap.Uint32("vote", vote),
		zap.Uint32("multiplier", d.engine.Multiplier()))
}

// close waits for the services started by start, so ctx must be done.
func (d *daemon) close() error {
	d.wg.Wait()

	var firstErr error
	if d.p2p != nil {
		if err := d.p2p.Close(); err != nil {
			firstErr = err
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func runDaemon(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log, _, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d, err := newDaemon(ctx, cfg, log)
	if err != nil {
		return errors.Wrap(err, "initing node")
	}

	errCh := make(chan error, 1)
	d.start(ctx, errCh)

	select {
	case err = <-errCh:
	case sig := <-waitExit(ctx):
		log.Info("shutting down", zap.Stringer("signal", sig))
	}

	cancel()
	if cerr := d.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
