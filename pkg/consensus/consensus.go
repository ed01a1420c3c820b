// Package consensus implements the longest-chain-wins rule nodes use to
// converge on a single blockchain: fetch every peer's chain, keep the
// longest valid one, and break length ties by preferring the chain whose
// tip was mined earliest.
package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ramonaguilera/simplechain/pkg/block"
	"github.com/ramonaguilera/simplechain/pkg/chain"
	"github.com/ramonaguilera/simplechain/pkg/logger"
)

// Config controls how a Consensus instance talks to peers.
type Config struct {
	RequestTimeout time.Duration
}

// DefaultConfig returns the default 1-second per-peer fetch timeout; a
// node with a handful of unreachable peers should not stall mining for
// long.
func DefaultConfig() *Config {
	return &Config{RequestTimeout: time.Second}
}

// Consensus resolves disagreement between a node's own chain and its
// peers' chains. Run assumes the caller already holds chain's lock — this
// lets Run() be invoked both as the top-level entry point and,
// cooperatively, from inside the proof-of-work loop without any re-entrant
// locking machinery.
type Consensus struct {
	Chain  *chain.Chain
	Logger *logger.Logger
	client *http.Client

	// NotReady holds the peers whose fetch failed or timed out during the
	// most recent round. A failing peer is never dropped from the peer
	// list; it is simply skipped this round and retried on the next one.
	NotReady []string
}

// New builds a Consensus bound to c, using cfg's request timeout (or
// DefaultConfig's, if cfg is nil).
func New(c *chain.Chain, log *logger.Logger, cfg *Config) *Consensus {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Consensus{
		Chain:  c,
		Logger: log,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Run fetches every listed peer's chain, validates each, and replaces the
// local chain with the best candidate found (including, possibly, the
// local chain itself). It reports whether the local chain was replaced.
// Caller must hold Chain's lock for the full duration of Run. The peer
// cache (BlockchainsNodos) is cleared at the start of every round, so it
// never grows unbounded across a long-running node.
func (cs *Consensus) Run() bool {
	round := uuid.New().String()
	rlog := cs.roundLogger(round)
	peers := cs.Chain.ListadoNodos
	cs.Chain.BlockchainsNodos = cs.Chain.BlockchainsNodos[:0]
	cs.NotReady = nil

	if len(peers) == 0 {
		return false
	}

	candidates, notReady := cs.DiscoverPeerChains(round, peers)
	cs.NotReady = notReady
	best := cs.Chain.Blockchain
	replaced := false

	for _, candidate := range candidates {
		if candidate == nil || !cs.IsChainValid(candidate) {
			continue
		}
		cs.Chain.BlockchainsNodos = append(cs.Chain.BlockchainsNodos, candidate)
		if isBetterChain(candidate, best) {
			best = candidate
			replaced = true
		}
	}

	if replaced {
		cs.Chain.Replace(best)
		if rlog != nil {
			rlog.WithFields(map[string]interface{}{"height": len(best)}).Info("consensus: adopted a longer chain")
		}
	}
	return replaced
}

// roundLogger scopes cs.Logger to round, or returns nil if no logger is
// configured; every caller that logs during a round derives from this
// instead of tagging round onto each call's format string by hand.
func (cs *Consensus) roundLogger(round string) *logger.Logger {
	if cs.Logger == nil {
		return nil
	}
	return cs.Logger.WithFields(map[string]interface{}{"round": round})
}

// DiscoverPeerChains fans peer chain downloads out concurrently, one
// goroutine per peer joined by an errgroup. It returns one chain slot per
// peer (in peers' order), nil where that peer's fetch or decode failed,
// plus the not-ready list: the peers behind those nil slots, which the
// caller can retry later.
func (cs *Consensus) DiscoverPeerChains(round string, peers []string) (chains [][]*block.Block, notReady []string) {
	results := make([][]*block.Block, len(peers))
	failed := make([]bool, len(peers))
	rlog := cs.roundLogger(round)

	g, ctx := errgroup.WithContext(context.Background())
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			chainBlocks, err := cs.fetchPeerChain(ctx, peer)
			if err != nil {
				failed[i] = true
				if rlog != nil {
					rlog.WithFields(map[string]interface{}{"peer": peer}).Warn("consensus: peer fetch failed: %v", err)
				}
				return nil
			}
			results[i] = chainBlocks
			return nil
		})
	}
	_ = g.Wait()

	for i, peer := range peers {
		if failed[i] {
			notReady = append(notReady, peer)
		}
	}
	return results, notReady
}

// fetchPeerChain retrieves and decodes a single peer's /blockchain
// response. It performs no validation; IsChainValid does that separately
// so a malformed or malicious peer can never short-circuit validation.
func (cs *Consensus) fetchPeerChain(ctx context.Context, peerURL string) ([]*block.Block, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerURL+"/blockchain", nil)
	if err != nil {
		return nil, fmt.Errorf("consensus: build request: %w", err)
	}

	resp, err := cs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("consensus: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("consensus: peer returned status %d", resp.StatusCode)
	}

	var blocks []*block.Block
	if err := json.NewDecoder(resp.Body).Decode(&blocks); err != nil {
		return nil, fmt.Errorf("consensus: decode: %w", err)
	}
	return blocks, nil
}

// IsChainValid reports whether blocks forms a well-linked, correctly
// mined chain: every block's hash_previo must match its predecessor's
// hash, and every block except genesis (index 0) must satisfy the
// chain's own difficulty and recompute to its stated hash. Genesis is
// exempt deliberately — its fixed hash does not satisfy any positive
// difficulty by construction.
func (cs *Consensus) IsChainValid(blocks []*block.Block) bool {
	if len(blocks) == 0 {
		return false
	}
	for i, b := range blocks {
		if b == nil || b.Cabecera == nil {
			return false
		}
		if i == 0 {
			continue
		}
		if b.Cabecera.HashPrevio != blocks[i-1].Hash {
			return false
		}
		if !cs.Chain.IsHashValid(b, b.Hash) {
			return false
		}
	}
	return true
}

// isBetterChain reports whether candidate should replace current: longer
// wins outright; a tie in length is broken in favor of the chain whose
// tip was mined earliest, rewarding the node that finished its round of
// work first.
func isBetterChain(candidate, current []*block.Block) bool {
	if len(candidate) != len(current) {
		return len(candidate) > len(current)
	}
	if len(candidate) == 0 {
		return false
	}
	ct := candidate[len(candidate)-1].Cabecera
	cu := current[len(current)-1].Cabecera
	if ct == nil || cu == nil {
		return false
	}
	return ct.Timestamp < cu.Timestamp
}
