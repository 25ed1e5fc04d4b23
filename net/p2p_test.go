package net

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bipbbb/core/blockweight"
)

func TestAnnouncementFor(t *testing.T) {
	_, ok := announcementFor("regtest", blockweight.Event{Kind: blockweight.EventVote})
	assert.False(t, ok)
	_, ok = announcementFor("regtest", blockweight.Event{Kind: blockweight.EventTally})
	assert.False(t, ok)

	a, ok := announcementFor("regtest", blockweight.Event{
		Kind: blockweight.EventRetarget, Height: 2015, Before: 1, After: 2,
	})
	require.True(t, ok)
	assert.Equal(t, Announcement{Network: "regtest", Kind: "retarget", Height: 2015, Before: 1, After: 2}, a)

	data, err := encodeAnnouncement(a)
	require.NoError(t, err)
	got, err := decodeAnnouncement(data)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = decodeAnnouncement([]byte{0xc1})
	assert.Error(t, err)
	_, err = decodeAnnouncement(make([]byte, maxWireAnnouncement+1))
	assert.Error(t, err)
}

func newOffline(network string) *Node {
	return &Node{
		cfg:       Config{Network: network},
		log:       zap.NewNop(),
		queue:     make(chan Announcement, 1),
		decisions: make(map[uint64]uint32),
	}
}

func TestCompareDetectsDivergence(t *testing.T) {
	n := newOffline("regtest")
	n.Emit(blockweight.Event{Kind: blockweight.EventRetarget, Height: 15, Before: 1, After: 2})

	diverged, _ := n.compare(Announcement{Network: "regtest", Height: 15, After: 2})
	assert.False(t, diverged)
	diverged, _ = n.compare(Announcement{Network: "regtest", Height: 15, After: 3})
	assert.True(t, diverged)

	// Unknown heights and other networks are never divergent.
	diverged, _ = n.compare(Announcement{Network: "regtest", Height: 23, After: 3})
	assert.False(t, diverged)
	diverged, _ = n.compare(Announcement{Network: "mainnet", Height: 15, After: 3})
	assert.False(t, diverged)
}

func TestEmitNeverBlocks(t *testing.T) {
	n := newOffline("regtest")
	for h := uint64(0); h < 3*decisionsKept; h++ {
		n.Emit(blockweight.Event{Kind: blockweight.EventUnmoved, Height: h, Before: 1, After: 1})
	}
	assert.Len(t, n.queue, 1)
	assert.Len(t, n.decisions, decisionsKept)
	assert.Len(t, n.order, decisionsKept)

	_, ok := n.decisions[3*decisionsKept-1]
	assert.True(t, ok)
	_, ok = n.decisions[0]
	assert.False(t, ok)
}

func TestGossipBetweenNodes(t *testing.T) {
	if testing.Short() {
		t.Skip("starts libp2p hosts")
	}
	ctx := context.Background()
	cfg := Config{Network: "regtest", Listen: []string{"/ip4/127.0.0.1/tcp/0"}}

	a, err := NewNode(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	cfgB := cfg
	cfgB.Peers = []string{a.Addrs()[0].String()}
	b, err := NewNode(ctx, cfgB, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	var (
		mu       sync.Mutex
		seen     []Announcement
		diverged bool
	)
	b.SetObserver(func(from peer.ID, ann Announcement, d bool) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, a.ID(), from)
		seen = append(seen, ann)
		diverged = diverged || d
	})

	// b decided 2 at height 15; a announces 3.
	b.remember(Announcement{Network: "regtest", Height: 15, After: 2})

	require.Eventually(t, func() bool {
		a.Emit(blockweight.Event{Kind: blockweight.EventRetarget, Height: 15, Before: 1, After: 3})
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 20*time.Second, 200*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, uint32(3), seen[0].After)
	assert.True(t, diverged)
	assert.Contains(t, b.Peers(), a.ID())
}
