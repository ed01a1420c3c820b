// Package rewrite implements the history-rewrite attack used to test a
// node's resistance to a malicious actor splicing fabricated transactions
// into an already-mined chain and re-mining everything after the splice
// point.
package rewrite

import (
	"fmt"
	"time"

	"github.com/ramonaguilera/simplechain/pkg/block"
	"github.com/ramonaguilera/simplechain/pkg/chain"
	"github.com/ramonaguilera/simplechain/pkg/consensus"
	"github.com/ramonaguilera/simplechain/pkg/logger"
	"github.com/ramonaguilera/simplechain/pkg/signer"
)

// MaliciousChain re-mines a suffix of a chain non-cooperatively: unlike
// Miner.Mine, its proof-of-work search never pauses to check for a better
// peer chain mid-search, since the entire point of the attack is to win
// the fork race by finishing first.
type MaliciousChain struct {
	Chain                 *chain.Chain
	Consensus             *consensus.Consensus
	Logger                *logger.Logger
	MaliciousTransactions []block.Transaction
}

// New builds a MaliciousChain bound to c.
func New(c *chain.Chain, cs *consensus.Consensus, log *logger.Logger) *MaliciousChain {
	return &MaliciousChain{Chain: c, Consensus: cs, Logger: log}
}

// AddMaliciousTransaction signs and stages a transaction for the splice
// block through the same signing path an honest transaction takes — the
// forgery is in where the transaction ends up, not in its signature.
func (mc *MaliciousChain) AddMaliciousTransaction(from, priv, to, amount, concept string) (ok bool, reason string) {
	tx, ok, reason := chain.NewSignedTransaction(from, priv, to, amount, concept)
	if !ok {
		return false, reason
	}
	mc.MaliciousTransactions = append(mc.MaliciousTransactions, tx)
	return true, ""
}

// AddMaliciousRewardTransaction stages a reward transaction paying out to
// the attacker's own wallet, dated now.
func (mc *MaliciousChain) AddMaliciousRewardTransaction() {
	date := signer.FormatDate(time.Now())
	mc.MaliciousTransactions = append(mc.MaliciousTransactions, block.NewRewardTransaction(mc.Chain.DireccionMinero, date))
}

// RewriteChain replaces the transactions of the block at index k with
// MaliciousTransactions and re-mines that block and every one after it,
// non-cooperatively, so the forged chain ends up the same length as the
// original with a consistent suffix of fresh proofs of work. It runs one
// consensus round after adopting the forged chain and reports whether the
// forgery survived it (a peer may already hold something longer). It
// takes the chain's lock for its full duration.
func (mc *MaliciousChain) RewriteChain(k int) (bool, error) {
	mc.Chain.Lock()
	defer mc.Chain.Unlock()

	if k <= 0 || k >= len(mc.Chain.Blockchain) {
		return false, fmt.Errorf("rewrite: index %d out of range for chain of length %d", k, len(mc.Chain.Blockchain))
	}

	original := mc.Chain.Blockchain
	start := time.Now()

	rewritten := make([]*block.Block, 0, len(original))
	hashPrevio := ""
	for _, orig := range original {
		if orig.Indice < k {
			// Untouched prefix: the original blocks themselves, not copies,
			// so they stay byte-identical to the pre-rewrite chain.
			rewritten = append(rewritten, orig)
			hashPrevio = orig.Hash
			continue
		}

		b := orig.Clone()
		if b.Indice == k {
			// Only the splice block gets the forged transaction list; its
			// header is rebuilt with the same hash_previo and difficulty
			// and the attack claims its mining credit.
			b.Transacciones = append([]block.Transaction(nil), mc.MaliciousTransactions...)
			b.BuildHeader(b.Cabecera.HashPrevio, b.Transacciones, b.Cabecera.Dificultad)
			b.Hash = mc.mineNonCooperative(b)
			b.MinadoPor = mc.Chain.NumeroMinero
		} else {
			// Blocks past the splice keep their own transactions, timestamp
			// and mining attribution; only the parent link moves, which
			// forces a fresh nonce search.
			b.Cabecera.HashPrevio = hashPrevio
			b.Hash = mc.mineNonCooperative(b)
		}
		b.ComputeSize()

		rewritten = append(rewritten, b)
		hashPrevio = b.Hash
	}
	rewritten[len(rewritten)-1].TiempoMinado = time.Since(start).Seconds()

	forgedTip := rewritten[len(rewritten)-1].Hash
	mc.Chain.Replace(rewritten)

	// A consensus round can still overturn this the instant it lands, if a
	// peer has meanwhile published something longer; "won" reports whether
	// the forged chain actually stuck.
	mc.Consensus.Run()
	won := mc.Chain.Tip().Hash == forgedTip

	if mc.Logger != nil {
		mc.Logger.Info("rewrite: spliced %d transactions at index %d, re-mined %d blocks (won=%t)",
			len(mc.MaliciousTransactions), k, len(rewritten)-k, won)
	}

	return won, nil
}

// mineNonCooperative searches nonces without ever yielding to a consensus
// round; the attacker's re-mine is a race it intends to win outright, not
// a cooperative search that might abandon itself mid-way.
func (mc *MaliciousChain) mineNonCooperative(b *block.Block) string {
	for nonce := uint64(0); ; nonce++ {
		b.Cabecera.Nonce = nonce
		h := b.ComputeHash()
		if block.HasLeadingZeros(h, mc.Chain.Dificultad) {
			return h
		}
	}
}
