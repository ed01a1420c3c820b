// Package chain owns the block sequence and the mempool of unconfirmed
// transactions for a single node, and enforces the append and transaction
// validity rules described in the block hash contract.
package chain

import (
	"fmt"
	"sync"
	"time"

	"github.com/ramonaguilera/simplechain/pkg/block"
	"github.com/ramonaguilera/simplechain/pkg/forensics"
	"github.com/ramonaguilera/simplechain/pkg/signer"
)

// Genesis constants. Fixed so that every node, regardless of when it
// starts, produces a byte-identical genesis block (P3).
const (
	GenesisHashPrevio = "0000000000000000000000000000000000000000000000000000000000000000"
	GenesisTimestamp  = 1654065166.5091279
	GenesisNonce      = 4266222
	GenesisHash       = "0000000000000000000000000000000000000000000000000000000000000001"
)

// Config holds the fixed, startup-time identity and network parameters of
// a node's chain.
type Config struct {
	Dificultad         int
	IP                 string
	Puerto             int
	ListadoNodos       []string
	NumeroMinero       string
	DireccionMinero    string
	ClavePrivadaMinero string
}

// DefaultConfig returns sane defaults for a single-node, peerless chain at
// the standard difficulty of five leading zero digits.
func DefaultConfig() *Config {
	return &Config{
		Dificultad:   5,
		IP:           "127.0.0.1",
		Puerto:       8000,
		ListadoNodos: nil,
	}
}

// Chain is the block sequence plus the mempool of unconfirmed transactions.
// One mutex, held by the entry points (Miner.Mine, rewrite.RewriteChain,
// the HTTP read handlers) for the duration of their critical section,
// guards every field below. Apart from Lock, Unlock and Snapshot (which
// takes the lock itself), methods on Chain never lock internally and
// assume the caller already holds the lock.
type Chain struct {
	mu sync.Mutex

	Dificultad         int
	IP                 string
	Puerto             int
	ListadoNodos       []string
	NumeroMinero       string
	DireccionMinero    string
	ClavePrivadaMinero string

	TransaccionesNoConfirmadas []block.Transaction
	Blockchain                 []*block.Block
	BlockchainsNodos           [][]*block.Block

	// Forensics, when set, receives every block this chain ever accepts —
	// via AddBlock or wholesale Replace — independent of whether a later
	// reorg discards it from the live Blockchain. Nil disables recording
	// entirely; the live chain never depends on it being present.
	Forensics *forensics.Log
}

// New builds a chain seeded with the deterministic genesis block.
func New(cfg *Config) *Chain {
	c := &Chain{
		Dificultad:         cfg.Dificultad,
		IP:                 cfg.IP,
		Puerto:             cfg.Puerto,
		ListadoNodos:       cfg.ListadoNodos,
		NumeroMinero:       cfg.NumeroMinero,
		DireccionMinero:    cfg.DireccionMinero,
		ClavePrivadaMinero: cfg.ClavePrivadaMinero,
		Blockchain:         []*block.Block{genesisBlock(cfg.Dificultad)},
	}
	return c
}

// genesisBlock builds the fixed genesis block described in the data model:
// index 0, one fixed transaction, a hash that intentionally does not
// satisfy any positive difficulty. Consensus exempts index 0 from the
// difficulty check for exactly this reason; treat it as normative, not a
// bug (see consensus.Consensus.IsChainValid).
func genesisBlock(dificultad int) *block.Block {
	txs := []block.Transaction{block.GenesisTransaction()}
	b := block.New(0, txs)
	b.Cabecera = &block.Header{
		Version:    1,
		HashPrevio: GenesisHashPrevio,
		RaizMerkle: merkleRootFor(txs),
		Timestamp:  GenesisTimestamp,
		Dificultad: dificultad,
		Nonce:      GenesisNonce,
	}
	b.Hash = GenesisHash
	b.TiempoMinado = "-"
	b.PotenciaComputacion = "-"
	b.MinadoPor = "-"
	b.ComputeSize()
	return b
}

func merkleRootFor(txs []block.Transaction) string {
	tmp := block.New(0, txs)
	tmp.BuildHeader(GenesisHashPrevio, txs, 0)
	return tmp.Cabecera.RaizMerkle
}

// SetForensics attaches log as this chain's audit trail and immediately
// records every block currently on the chain (at minimum, genesis), so a
// node that enables forensics from startup never has a gap before its
// first AddBlock or Replace call.
func (c *Chain) SetForensics(log *forensics.Log) {
	c.Forensics = log
	for _, b := range c.Blockchain {
		c.record(b)
	}
}

// Lock acquires the chain's single exclusive lock.
func (c *Chain) Lock() { c.mu.Lock() }

// Unlock releases the chain's single exclusive lock.
func (c *Chain) Unlock() { c.mu.Unlock() }

// Tip returns the last block of the chain. Caller must hold the lock.
func (c *Chain) Tip() *block.Block {
	return c.Blockchain[len(c.Blockchain)-1]
}

// Height returns the number of blocks in the chain. Caller must hold the lock.
func (c *Chain) Height() int {
	return len(c.Blockchain)
}

// NewSignedTransaction signs a transaction's timestamp with priv and
// verifies the result against from before handing the transaction back.
// priv must be exactly 64 hex characters. On failure the zero transaction
// is returned along with a description of why; no error ever crosses
// further than this call.
func NewSignedTransaction(from, priv, to, amount, concept string) (tx block.Transaction, ok bool, reason string) {
	if len(priv) != 64 {
		return tx, false, "¡Dirección errónea o longitud de clave no válida!"
	}

	sig, date, err := signer.Sign(priv)
	if err != nil {
		return tx, false, "Firma no válida."
	}

	tx = block.NewTransaction(from, to, amount, concept, date)
	if !signer.Verify(from, sig, date) {
		return block.Transaction{}, false, "Firma no válida."
	}
	return tx, true, ""
}

// AddTransaction signs and appends a user transaction to the mempool,
// rejecting it on a bad key length or a signature that does not verify.
// Caller must hold the lock.
func (c *Chain) AddTransaction(from, priv, to, amount, concept string) (ok bool, reason string) {
	tx, ok, reason := NewSignedTransaction(from, priv, to, amount, concept)
	if !ok {
		return false, reason
	}
	c.TransaccionesNoConfirmadas = append(c.TransaccionesNoConfirmadas, tx)
	return true, ""
}

// AddRewardTransaction appends the fixed-form, unsigned mining reward
// transaction to the mempool. Caller must hold the lock.
func (c *Chain) AddRewardTransaction() {
	date := signer.FormatDate(time.Now())
	tx := block.NewRewardTransaction(c.DireccionMinero, date)
	c.TransaccionesNoConfirmadas = append(c.TransaccionesNoConfirmadas, tx)
}

// IsHashValid reports whether hash both satisfies the chain's difficulty
// and equals the block's own recomputed hash.
func (c *Chain) IsHashValid(b *block.Block, hash string) bool {
	if !block.HasLeadingZeros(hash, c.Dificultad) {
		return false
	}
	return hash == b.ComputeHash()
}

// AddBlock appends b to the chain if its parent link matches the current
// tip and hash is a valid proof of work for it. Caller must hold the lock.
func (c *Chain) AddBlock(b *block.Block, hash string) bool {
	tip := c.Tip()
	if b.Cabecera.HashPrevio != tip.Hash {
		return false
	}
	if !c.IsHashValid(b, hash) {
		return false
	}
	c.Blockchain = append(c.Blockchain, b)
	c.record(b)
	return true
}

// Replace assigns the chain's block list wholesale to newBlocks. No partial
// grafting: the caller must already have decided newBlocks is the winner.
// Every block in newBlocks is recorded to Forensics, including ones this
// chain already saw — recording the same hash twice is harmless. Caller
// must hold the lock.
func (c *Chain) Replace(newBlocks []*block.Block) {
	c.Blockchain = newBlocks
	for _, b := range newBlocks {
		c.record(b)
	}
}

// record is a best-effort write to Forensics: a forensics failure must
// never block mining or consensus, so its error is dropped rather than
// surfaced through AddBlock/Replace's existing signatures.
func (c *Chain) record(b *block.Block) {
	if c.Forensics == nil {
		return
	}
	_ = c.Forensics.Record(b)
}

// Snapshot clones the current block list under the lock, for safe use by a
// caller (an HTTP handler) that does not otherwise participate in the
// chain's critical sections.
func (c *Chain) Snapshot() []*block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*block.Block, len(c.Blockchain))
	copy(out, c.Blockchain)
	return out
}

func (c *Chain) String() string {
	return fmt.Sprintf("Chain{height=%d minero=%s dificultad=%d}", len(c.Blockchain), c.NumeroMinero, c.Dificultad)
}
