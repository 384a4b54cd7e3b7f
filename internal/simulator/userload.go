package simulator

import (
	"math/rand"

	"github.com/das67333/ipfs-simulator/internal/dht"
	"github.com/das67333/ipfs-simulator/internal/sim"
	"github.com/das67333/ipfs-simulator/pkg/config"
	"github.com/das67333/ipfs-simulator/pkg/key"
)

// userLoad produces background traffic: on every tick a random peer
// either publishes a random block from a fixed pool or retrieves one of
// the pool's keys. Draws happen in a fixed order per tick (peer, coin,
// block or key), keeping runs reproducible.
type userLoad struct {
	sched    *sim.Scheduler
	rng      *rand.Rand
	peers    []*dht.Peer
	blocks   [][]byte
	keys     []key.Key
	interval float64
}

func newUserLoad(cfg *config.Config, sched *sim.Scheduler, rng *rand.Rand, peers []*dht.Peer) *userLoad {
	blocks := make([][]byte, cfg.UserLoadBlocksPoolSize)
	keys := make([]key.Key, cfg.UserLoadBlocksPoolSize)
	for i := range blocks {
		block := make([]byte, cfg.UserLoadBlockSize)
		for j := range block {
			block[j] = byte(rng.Intn(256))
		}
		blocks[i] = block
		keys[i] = key.FromData(block)
	}
	return &userLoad{
		sched:    sched,
		rng:      rng,
		peers:    peers,
		blocks:   blocks,
		keys:     keys,
		interval: cfg.UserLoadEventsInterval,
	}
}

func (u *userLoad) start() {
	u.sched.Schedule(u.interval, "user_load", u.tick)
}

func (u *userLoad) tick() {
	peer := u.peers[u.rng.Intn(len(u.peers))]
	if u.rng.Float64() < 0.5 {
		block := u.blocks[u.rng.Intn(len(u.blocks))]
		peer.PublishData(block, nil)
	} else {
		k := u.keys[u.rng.Intn(len(u.keys))]
		peer.RetrieveData(k, nil)
	}
	u.sched.Schedule(u.interval, "user_load", u.tick)
}
