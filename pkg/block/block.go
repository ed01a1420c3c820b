// Package block defines the block and transaction record types mined and
// exchanged by a chain, and the hash contract that binds a block's header
// to its identity.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the set of fields hashed to produce a block's identity, in the
// exact order the hash contract requires.
type Header struct {
	Version    int     `json:"version"`
	HashPrevio string  `json:"hash_previo"`
	RaizMerkle string  `json:"raiz_merkle"`
	Timestamp  float64 `json:"timestamp"`
	Dificultad int     `json:"dificultad"`
	Nonce      uint64  `json:"nonce"`
}

// Block is one entry in a chain: a header, its transactions, and the
// informational fields stamped on it once mining finishes.
type Block struct {
	Indice                int           `json:"indice"`
	Tamano                int           `json:"tamano"`
	Cabecera              *Header       `json:"cabecera"`
	ContadorTransacciones int           `json:"contador_transacciones"`
	Transacciones         []Transaction `json:"transacciones"`
	Hash                  string        `json:"hash"`

	// TiempoMinado, PotenciaComputacion and MinadoPor carry either a number
	// or the literal "-" (the genesis block never ran PoW), so they are
	// stored as interface{} and encoded as whichever JSON value they hold.
	TiempoMinado        interface{} `json:"tiempo_minado"`
	PotenciaComputacion interface{} `json:"potencia_computacion"`
	MinadoPor           interface{} `json:"minado_por"`
}

// New creates a block at the given index holding the given transactions,
// with an empty header. Call BuildHeader before hashing it.
func New(indice int, transacciones []Transaction) *Block {
	return &Block{
		Indice:                indice,
		ContadorTransacciones: len(transacciones),
		Transacciones:         transacciones,
		TiempoMinado:          "-",
		PotenciaComputacion:   "-",
		MinadoPor:             "-",
	}
}

// BuildHeader sets Cabecera to {version:1, hash_previo, raiz_merkle, timestamp:now, dificultad, nonce:0}.
// raiz_merkle is a single SHA-256 over the textual form of the transaction
// list, not a Merkle tree: this is an intentional stand-in, not a bug, and
// must stay this way for hash compatibility across nodes.
func (b *Block) BuildHeader(hashPrevio string, transacciones []Transaction, dificultad int) {
	b.Cabecera = &Header{
		Version:    1,
		HashPrevio: hashPrevio,
		RaizMerkle: merkleStandIn(transacciones),
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
		Dificultad: dificultad,
		Nonce:      0,
	}
	b.ContadorTransacciones = len(transacciones)
}

// merkleStandIn hashes the textual form of a transaction list with a single
// SHA-256 pass. It is deliberately not a tree.
func merkleStandIn(transacciones []Transaction) string {
	sum := sha256.Sum256([]byte(txListRepr(transacciones)))
	return hex.EncodeToString(sum[:])
}

func txListRepr(transacciones []Transaction) string {
	parts := make([]string, len(transacciones))
	for i, tx := range transacciones {
		inner := make([]string, len(tx.Fields))
		for j, f := range tx.Fields {
			inner[j] = "'" + f + "'"
		}
		parts[i] = "[" + strings.Join(inner, ", ") + "]"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// headerRepr renders the header the way a Python dict literal's str() would,
// which is what the hash contract is built on: the hash is computed over a
// string representation of the header, not its raw bytes.
func headerRepr(h *Header) string {
	return fmt.Sprintf(
		"{'version': %d, 'hash_previo': '%s', 'raiz_merkle': '%s', 'timestamp': %s, 'dificultad': %d, 'nonce': %d}",
		h.Version, h.HashPrevio, h.RaizMerkle, formatTimestamp(h.Timestamp), h.Dificultad, h.Nonce)
}

func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', -1, 64)
}

// ComputeHash sets and returns Hash per the hash contract:
// hash = SHA256(hex(SHA256(JSON-stringify(stringify(header))))).
// The header is first rendered to a string, that string is JSON-encoded
// (producing a quoted, escaped literal), hashed, hex-encoded, and the
// resulting hex string is hashed again. Both hashes must be reproduced
// exactly for cross-node consensus to agree on block identity.
func (b *Block) ComputeHash() string {
	repr := headerRepr(b.Cabecera)
	encoded, err := json.Marshal(repr)
	if err != nil {
		// repr is always a valid Go string, so this cannot fail.
		panic(fmt.Sprintf("block: failed to json-encode header repr: %v", err))
	}
	inner := sha256.Sum256(encoded)
	innerHex := hex.EncodeToString(inner[:])
	outer := sha256.Sum256([]byte(innerHex))
	b.Hash = hex.EncodeToString(outer[:])
	return b.Hash
}

// ComputeSize sets and returns Tamano, the in-memory size of the block in
// bytes. This is informational only and is approximated by the size of the
// block's own JSON encoding rather than a true deep-size walk.
func (b *Block) ComputeSize() int {
	buf, err := json.Marshal(b)
	if err != nil {
		return 0
	}
	b.Tamano = len(buf)
	return b.Tamano
}

// Clone returns a deep copy of b: header and transaction list are copied,
// so mutating the clone never touches the original.
func (b *Block) Clone() *Block {
	nb := *b
	if b.Cabecera != nil {
		h := *b.Cabecera
		nb.Cabecera = &h
	}
	nb.Transacciones = append([]Transaction(nil), b.Transacciones...)
	return &nb
}

// HasLeadingZeros reports whether hash has at least dificultad leading hex
// '0' digits.
func HasLeadingZeros(hash string, dificultad int) bool {
	if dificultad <= 0 {
		return true
	}
	if len(hash) < dificultad {
		return false
	}
	return hash[:dificultad] == strings.Repeat("0", dificultad)
}

func (b *Block) String() string {
	return fmt.Sprintf("Block{indice=%d hash=%s txs=%d}", b.Indice, b.Hash, len(b.Transacciones))
}
