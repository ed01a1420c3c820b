package miner

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ramonaguilera/simplechain/pkg/block"
	"github.com/ramonaguilera/simplechain/pkg/chain"
	"github.com/ramonaguilera/simplechain/pkg/consensus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiner(t *testing.T, dificultad int) *Miner {
	t.Helper()
	cfg := chain.DefaultConfig()
	cfg.Dificultad = dificultad
	cfg.NumeroMinero = "1"
	cfg.DireccionMinero = "minero-1"
	c := chain.New(cfg)
	cs := consensus.New(c, nil, nil)
	return New(c, cs, nil)
}

func TestMineReturnsFalseOnEmptyMempool(t *testing.T) {
	m := newTestMiner(t, 0)

	ok := m.Mine()
	assert.False(t, ok)
	assert.Len(t, m.Chain.Blockchain, 1)
}

func TestMineAppendsBlockAtZeroDifficulty(t *testing.T) {
	m := newTestMiner(t, 0)
	m.Chain.AddRewardTransaction()

	ok := m.Mine()
	require.True(t, ok)
	assert.Len(t, m.Chain.Blockchain, 2)
	assert.Equal(t, "1", m.Chain.Tip().MinadoPor)
}

func TestMineSatisfiesDifficulty(t *testing.T) {
	m := newTestMiner(t, 2)
	m.Chain.AddRewardTransaction()

	require.True(t, m.Mine())
	tip := m.Chain.Tip()
	assert.True(t, block.HasLeadingZeros(tip.Hash, 2))
	assert.Equal(t, tip.Hash, m.Chain.Blockchain[1].ComputeHash())
}

func TestMineConsumesMempool(t *testing.T) {
	m := newTestMiner(t, 0)
	m.Chain.AddRewardTransaction()

	require.True(t, m.Mine())
	assert.Empty(t, m.Chain.TransaccionesNoConfirmadas)
}

func TestCooperativeCheckpointMatchesDifficulty(t *testing.T) {
	assert.Equal(t, uint64(0), cooperativeCheckpoint(0))
	assert.Equal(t, uint64(1), cooperativeCheckpoint(1))
	assert.Equal(t, uint64(11), cooperativeCheckpoint(2))
	assert.Equal(t, uint64(111), cooperativeCheckpoint(3))
}

func TestMineIncludesRewardTransaction(t *testing.T) {
	m := newTestMiner(t, 0)
	m.Chain.AddRewardTransaction()
	require.True(t, m.Mine())

	mined := m.Chain.Tip()
	require.NotEmpty(t, mined.Transacciones)
	found := false
	for _, tx := range mined.Transacciones {
		if tx.Para() == "minero-1" {
			found = true
		}
	}
	assert.True(t, found)
}

// TestMinePreemptionLeavesMempoolUntouched drives the cooperative
// checkpoint for real: a peer serves a chain that is always longer than
// the local one, so the consensus round run mid-search adopts it and the
// in-progress block is abandoned. At difficulty 1 the checkpoint fires at
// every nonce, so the only way an attempt is not preempted is a lucky
// nonce-0 hash (1 in 16); a few attempts make that vanishingly unlikely.
func TestMinePreemptionLeavesMempoolUntouched(t *testing.T) {
	source := chain.New(&chain.Config{Dificultad: 1})
	for i := 0; i < 60; i++ {
		mineBlockOnto(t, source)
	}

	var served int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Each fetch serves a slightly longer prefix, so the peer stays
		// ahead of the local chain across attempts.
		n := int(atomic.AddInt32(&served, 1))
		length := 3 + n
		if length > len(source.Blockchain) {
			length = len(source.Blockchain)
		}
		_ = json.NewEncoder(w).Encode(source.Blockchain[:length])
	}))
	defer srv.Close()

	cfg := chain.DefaultConfig()
	cfg.Dificultad = 1
	cfg.NumeroMinero = "1"
	cfg.DireccionMinero = "minero-1"
	cfg.ListadoNodos = []string{srv.URL}
	c := chain.New(cfg)
	m := New(c, consensus.New(c, nil, nil), nil)

	for attempt := 0; attempt < 5; attempt++ {
		c.TransaccionesNoConfirmadas = nil
		c.AddRewardTransaction()

		if !m.Mine() {
			// Preempted: the block was discarded and the mempool is
			// exactly as it was at entry.
			assert.Len(t, c.TransaccionesNoConfirmadas, 1)
			return
		}
	}
	t.Fatal("mining was never preempted by the longer peer chain")
}

// mineBlockOnto brute-forces one valid block onto c's tip at c's own
// difficulty.
func mineBlockOnto(t *testing.T, c *chain.Chain) {
	t.Helper()
	tip := c.Tip()
	txs := []block.Transaction{block.NewTransaction("a", "b", "1", "x", "2024-01-01")}
	b := block.New(tip.Indice+1, txs)
	b.BuildHeader(tip.Hash, txs, c.Dificultad)

	for nonce := uint64(0); ; nonce++ {
		b.Cabecera.Nonce = nonce
		h := b.ComputeHash()
		if block.HasLeadingZeros(h, c.Dificultad) {
			b.Hash = h
			break
		}
	}
	require.True(t, c.AddBlock(b, b.Hash))
}

func TestMineLinksToPreviousTip(t *testing.T) {
	m := newTestMiner(t, 0)
	genesisHash := m.Chain.Tip().Hash

	m.Chain.AddRewardTransaction()
	require.True(t, m.Mine())

	assert.Equal(t, genesisHash, m.Chain.Tip().Cabecera.HashPrevio)
}
