package consensus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ramonaguilera/simplechain/pkg/block"
	"github.com/ramonaguilera/simplechain/pkg/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChain(t *testing.T, peers []string) *chain.Chain {
	t.Helper()
	cfg := chain.DefaultConfig()
	cfg.Dificultad = 0
	cfg.ListadoNodos = peers
	return chain.New(cfg)
}

func mineOneBlock(t *testing.T, c *chain.Chain) *block.Block {
	t.Helper()
	tip := c.Tip()
	txs := []block.Transaction{block.NewTransaction("a", "b", "1", "x", "2024-01-01")}
	b := block.New(tip.Indice+1, txs)
	b.BuildHeader(tip.Hash, txs, c.Dificultad)
	hash := b.ComputeHash()
	b.Hash = hash
	require.True(t, c.AddBlock(b, hash))
	return b
}

func serveChain(t *testing.T, blocks []*block.Block) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(blocks)
	}))
}

func TestRunAdoptsLongerPeerChain(t *testing.T) {
	peerChain := newTestChain(t, nil)
	mineOneBlock(t, peerChain)
	mineOneBlock(t, peerChain)

	srv := serveChain(t, peerChain.Blockchain)
	defer srv.Close()

	local := newTestChain(t, []string{srv.URL})
	cs := New(local, nil, nil)

	replaced := cs.Run()
	assert.True(t, replaced)
	assert.Len(t, local.Blockchain, 3)
}

func TestRunKeepsLocalChainWhenPeerIsShorter(t *testing.T) {
	local := newTestChain(t, nil)
	mineOneBlock(t, local)
	mineOneBlock(t, local)

	peerChain := newTestChain(t, nil)
	srv := serveChain(t, peerChain.Blockchain)
	defer srv.Close()

	local.ListadoNodos = []string{srv.URL}
	cs := New(local, nil, nil)

	replaced := cs.Run()
	assert.False(t, replaced)
	assert.Len(t, local.Blockchain, 3)
}

func TestRunReportsUnreachablePeerAsNotReady(t *testing.T) {
	local := newTestChain(t, []string{"http://127.0.0.1:59999"})
	cs := New(local, nil, nil)

	start := time.Now()
	replaced := cs.Run()
	elapsed := time.Since(start)

	assert.False(t, replaced)
	assert.Len(t, local.Blockchain, 1)
	assert.Equal(t, []string{"http://127.0.0.1:59999"}, cs.NotReady)
	assert.Less(t, elapsed, 1500*time.Millisecond)
}

func TestRunClearsNotReadyOncePeerRecovers(t *testing.T) {
	peerChain := newTestChain(t, nil)
	srv := serveChain(t, peerChain.Blockchain)
	defer srv.Close()

	local := newTestChain(t, []string{srv.URL})
	cs := New(local, nil, nil)
	cs.NotReady = []string{srv.URL}

	cs.Run()
	assert.Empty(t, cs.NotReady)
}

func TestRunIgnoresMalformedPeerChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	local := newTestChain(t, []string{srv.URL})
	cs := New(local, nil, nil)

	replaced := cs.Run()
	assert.False(t, replaced)
	assert.Len(t, local.Blockchain, 1)
}

func TestRunAdoptsEqualLengthChainWithEarlierTip(t *testing.T) {
	peerChain := newTestChain(t, nil)
	earlier := mineOneBlock(t, peerChain)
	earlier.Cabecera.Timestamp -= 1000
	earlier.Hash = earlier.ComputeHash()

	srv := serveChain(t, peerChain.Blockchain)
	defer srv.Close()

	local := newTestChain(t, []string{srv.URL})
	mineOneBlock(t, local)
	cs := New(local, nil, nil)

	replaced := cs.Run()
	assert.True(t, replaced)
	assert.Equal(t, earlier.Hash, local.Tip().Hash)
}

func TestIsChainValidExemptsGenesisFromDifficulty(t *testing.T) {
	c := newTestChain(t, nil)
	c.Dificultad = 5
	cs := New(c, nil, nil)

	assert.True(t, cs.IsChainValid(c.Blockchain))
}

func TestIsChainValidRejectsBrokenLink(t *testing.T) {
	c := newTestChain(t, nil)
	mineOneBlock(t, c)
	cs := New(c, nil, nil)

	broken := append([]*block.Block{}, c.Blockchain...)
	broken[1].Cabecera.HashPrevio = "tampered"

	assert.False(t, cs.IsChainValid(broken))
}

func TestIsBetterChainBreaksTiesByEarliestTip(t *testing.T) {
	a := []*block.Block{{Cabecera: &block.Header{Timestamp: 100}}}
	b := []*block.Block{{Cabecera: &block.Header{Timestamp: 50}}}

	assert.True(t, isBetterChain(b, a))
	assert.False(t, isBetterChain(a, b))
}
