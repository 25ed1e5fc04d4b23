// Package net gossips retarget outcomes between bipbbb nodes over libp2p so
// operators notice when peers computed a different multiplier.
package net

import (
	"context"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"bipbbb/core/blockweight"
)

const (
	mdnsService = "bipbbb-mdns"

	// queueSize bounds announcements waiting to be published.
	queueSize = 64

	// decisionsKept bounds the local decisions remembered for comparison.
	decisionsKept = 32
)

var _ blockweight.Sink = (*Node)(nil)

// Config configures the gossip node.
type Config struct {
	Network string
	Listen  []string
	Peers   []string
	MDNS    bool
}

// Observer is told about each peer announcement. diverged is set when the
// peer reports a different multiplier for a height decided locally.
type Observer func(from peer.ID, a Announcement, diverged bool)

// Node is a libp2p host publishing this node's retarget decisions and
// comparing them with its peers'.
type Node struct {
	host  host.Host
	ps    *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	mdns  mdns.Service
	log   *zap.Logger
	cfg   Config

	queue  chan Announcement
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	decisions map[uint64]uint32
	order     []uint64
	observer  Observer
}

// NewNode starts a libp2p host, joins the retarget topic and connects to the
// configured peers.
func NewNode(ctx context.Context, cfg Config, log *zap.Logger) (*Node, error) {
	addrs := make([]multiaddr.Multiaddr, 0, len(cfg.Listen))
	for _, a := range cfg.Listen {
		ma, err := multiaddr.NewMultiaddr(a)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing listen address %q", a)
		}
		addrs = append(addrs, ma)
	}

	h, err := libp2p.New(libp2p.ListenAddrs(addrs...))
	if err != nil {
		return nil, errors.Wrap(err, "creating libp2p host")
	}

	ctx, cancel := context.WithCancel(ctx)
	n := &Node{
		host:      h,
		log:       log,
		cfg:       cfg,
		queue:     make(chan Announcement, queueSize),
		cancel:    cancel,
		decisions: make(map[uint64]uint32),
	}

	if err := n.join(ctx); err != nil {
		cancel()
		h.Close()
		return nil, err
	}

	if cfg.MDNS {
		n.mdns = mdns.NewMdnsService(h, mdnsService, &mdnsNotifee{n: n, ctx: ctx})
		if err := n.mdns.Start(); err != nil {
			n.Close()
			return nil, errors.Wrap(err, "starting mdns")
		}
		log.Info("mDNS peer discovery enabled")
	}

	for _, p := range cfg.Peers {
		if err := n.Connect(ctx, p); err != nil {
			log.Warn("failed to connect to peer", zap.String("peer", p), zap.Error(err))
		}
	}

	n.wg.Add(2)
	go n.publishLoop(ctx)
	go n.readLoop(ctx)

	log.Info("p2p node started",
		zap.Stringer("id", h.ID()),
		zap.Any("addrs", h.Addrs()))
	return n, nil
}

func (n *Node) join(ctx context.Context) error {
	ps, err := pubsub.NewGossipSub(ctx, n.host)
	if err != nil {
		return errors.Wrap(err, "creating gossipsub router")
	}
	topic, err := ps.Join(TopicRetarget)
	if err != nil {
		return errors.Wrap(err, "joining retarget topic")
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return errors.Wrap(err, "subscribing to retarget topic")
	}
	n.ps, n.topic, n.sub = ps, topic, sub
	return nil
}

// ID returns the host's peer id.
func (n *Node) ID() peer.ID {
	return n.host.ID()
}

// Addrs returns the host's full p2p addresses.
func (n *Node) Addrs() []multiaddr.Multiaddr {
	info := peer.AddrInfo{ID: n.host.ID(), Addrs: n.host.Addrs()}
	addrs, _ := peer.AddrInfoToP2pAddrs(&info)
	return addrs
}

// Peers returns the connected peers.
func (n *Node) Peers() []peer.ID {
	return n.host.Network().Peers()
}

// Connect dials a peer given as a /p2p multiaddr.
func (n *Node) Connect(ctx context.Context, addr string) error {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return errors.Wrap(err, "parsing peer multiaddr")
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return errors.Wrap(err, "peer address")
	}
	return n.host.Connect(ctx, *info)
}

// SetObserver installs o to be called for each peer announcement.
func (n *Node) SetObserver(o Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observer = o
}

// Emit queues retarget outcomes for publication. It never blocks; when the
// queue is full the announcement is dropped.
func (n *Node) Emit(ev blockweight.Event) {
	a, ok := announcementFor(n.cfg.Network, ev)
	if !ok {
		return
	}
	n.remember(a)

	select {
	case n.queue <- a:
	default:
		n.log.Warn("dropping retarget announcement, queue full", zap.Uint64("height", a.Height))
	}
}

func (n *Node) remember(a Announcement) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.decisions[a.Height]; !ok {
		n.order = append(n.order, a.Height)
	}
	n.decisions[a.Height] = a.After
	for len(n.order) > decisionsKept {
		delete(n.decisions, n.order[0])
		n.order = n.order[1:]
	}
}

// compare reports whether a disagrees with the local decision at its height.
func (n *Node) compare(a Announcement) (diverged bool, observer Observer) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if a.Network != n.cfg.Network {
		return false, n.observer
	}
	local, ok := n.decisions[a.Height]
	return ok && local != a.After, n.observer
}

func (n *Node) publishLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-n.queue:
			data, err := encodeAnnouncement(a)
			if err != nil {
				n.log.Warn("encoding announcement", zap.Error(err))
				continue
			}
			if err := n.topic.Publish(ctx, data); err != nil && ctx.Err() == nil {
				n.log.Warn("publishing announcement", zap.Error(err))
			}
		}
	}
}

func (n *Node) readLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}

		a, err := decodeAnnouncement(msg.Data)
		if err != nil {
			n.log.Debug("bad announcement", zap.Stringer("peer", msg.ReceivedFrom), zap.Error(err))
			continue
		}

		diverged, observer := n.compare(a)
		if diverged {
			n.log.Warn("peer disagrees on block weight multiplier",
				zap.Stringer("peer", msg.ReceivedFrom),
				zap.Uint64("height", a.Height),
				zap.Uint32("peerMultiplier", a.After))
		} else {
			n.log.Debug("peer announcement",
				zap.Stringer("peer", msg.ReceivedFrom),
				zap.String("kind", a.Kind),
				zap.Uint64("height", a.Height),
				zap.Uint32("multiplier", a.After))
		}
		if observer != nil {
			observer(msg.ReceivedFrom, a, diverged)
		}
	}
}

// Close stops the loops and the host.
func (n *Node) Close() error {
	n.cancel()
	n.sub.Cancel()
	n.wg.Wait()
	if n.mdns != nil {
		n.mdns.Close()
	}
	return n.host.Close()
}

type mdnsNotifee struct {
	n   *Node
	ctx context.Context
}

func (m *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == m.n.host.ID() {
		return
	}
	m.n.log.Debug("mDNS discovered peer", zap.Stringer("peer", info.ID))
	if err := m.n.host.Connect(m.ctx, info); err != nil {
		m.n.log.Debug("connecting to discovered peer", zap.Error(err))
	}
}
