// Package miner performs cooperative proof-of-work mining: periodically,
// mid-search, it checks whether a peer has already published a longer
// chain and abandons the current block if so, rather than wasting work on
// a block that can never be appended.
package miner

import (
	"strings"
	"time"

	"github.com/ramonaguilera/simplechain/pkg/block"
	"github.com/ramonaguilera/simplechain/pkg/chain"
	"github.com/ramonaguilera/simplechain/pkg/consensus"
	"github.com/ramonaguilera/simplechain/pkg/logger"
)

// Miner ties a chain to the consensus round that runs, cooperatively,
// during its proof-of-work search and, unconditionally, after every block
// it mines or fails to mine.
type Miner struct {
	Chain     *chain.Chain
	Consensus *consensus.Consensus
	Logger    *logger.Logger
}

// New builds a Miner over chain c, using cs to resolve forks.
func New(c *chain.Chain, cs *consensus.Consensus, log *logger.Logger) *Miner {
	return &Miner{Chain: c, Consensus: cs, Logger: log}
}

// Mine builds a block from the current mempool (which the outer driver
// has already filled with a reward transaction and at least one signed
// user transaction), searches for a valid proof of work, and appends it
// if the search completes before a peer's longer chain preempts it. It
// takes the chain's lock for its full duration — including the nested,
// lock-free Consensus.Run() call the cooperative check makes mid-search —
// and always runs one final consensus round before returning, win or
// lose. It reports whether its own block was appended. An empty mempool
// means there is nothing to mine: Mine returns false without touching
// the chain.
func (m *Miner) Mine() bool {
	m.Chain.Lock()
	defer m.Chain.Unlock()

	if len(m.Chain.TransaccionesNoConfirmadas) == 0 {
		return false
	}
	txs := append([]block.Transaction{}, m.Chain.TransaccionesNoConfirmadas...)

	tip := m.Chain.Tip()
	newBlock := block.New(tip.Indice+1, txs)
	newBlock.BuildHeader(tip.Hash, txs, m.Chain.Dificultad)

	start := time.Now()
	hash, preempted := m.proofOfWork(newBlock)

	appended := false
	if !preempted {
		// The mempool empties into this block only once the search has
		// actually completed; a preempted attempt leaves it exactly as it
		// was at entry, so those transactions ride into the next attempt.
		m.Chain.TransaccionesNoConfirmadas = m.Chain.TransaccionesNoConfirmadas[:0]

		elapsed := time.Since(start)
		newBlock.Hash = hash
		newBlock.TiempoMinado = elapsed.Seconds()
		newBlock.PotenciaComputacion = float64(newBlock.Cabecera.Nonce) / elapsed.Seconds() / 1000
		newBlock.MinadoPor = m.Chain.NumeroMinero
		newBlock.ComputeSize()

		appended = m.Chain.AddBlock(newBlock, hash)
		if appended && m.Logger != nil {
			m.Logger.WithFields(map[string]interface{}{
				"miner":  m.Chain.NumeroMinero,
				"height": newBlock.Indice,
				"hash":   hash,
			}).Info("miner: appended block")
		}
	}

	m.Consensus.Run()
	return appended
}

// cooperativeCheckpoint is the nonce step read before trying each nonce:
// when difficulty is d, it is int("1"*d) — the smallest number made of d
// ones. At every positive multiple of this step the search pauses to run
// a consensus round.
func cooperativeCheckpoint(dificultad int) uint64 {
	if dificultad <= 0 {
		return 0
	}
	s := strings.Repeat("1", dificultad)
	var n uint64
	for _, r := range s {
		n = n*10 + uint64(r-'0')
	}
	return n
}

// proofOfWork searches nonces from 0 upward until newBlock's hash
// satisfies the chain's difficulty. Every time the nonce is a positive
// multiple of cooperativeCheckpoint, it runs a consensus round (the chain
// lock is already held by the caller, Mine, so this is safe reentry, not a
// second lock) and aborts the search if that round adopted a better chain,
// since newBlock's parent link is then stale.
func (m *Miner) proofOfWork(newBlock *block.Block) (hash string, preempted bool) {
	checkpoint := cooperativeCheckpoint(m.Chain.Dificultad)

	for nonce := uint64(0); ; nonce++ {
		newBlock.Cabecera.Nonce = nonce

		if checkpoint > 0 && nonce > 0 && nonce%checkpoint == 0 {
			if m.Consensus.Run() {
				return "", true
			}
		}

		h := newBlock.ComputeHash()
		if block.HasLeadingZeros(h, m.Chain.Dificultad) {
			return h, false
		}
	}
}
