package chain

import (
	"testing"

	"github.com/ramonaguilera/simplechain/pkg/block"
	"github.com/ramonaguilera/simplechain/pkg/forensics"
	"github.com/ramonaguilera/simplechain/pkg/signer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NumeroMinero = "1"
	cfg.DireccionMinero = "minero-1"
	c := New(cfg)
	return c
}

func TestNewChainSeedsGenesis(t *testing.T) {
	c := newTestChain(t)
	require.Len(t, c.Blockchain, 1)

	g := c.Blockchain[0]
	assert.Equal(t, 0, g.Indice)
	assert.Equal(t, GenesisHash, g.Hash)
	assert.Equal(t, GenesisNonce, int(g.Cabecera.Nonce))
	assert.Equal(t, GenesisTimestamp, g.Cabecera.Timestamp)
}

func TestTwoFreshChainsHaveIdenticalGenesis(t *testing.T) {
	c1 := newTestChain(t)
	c2 := newTestChain(t)
	assert.Equal(t, c1.Blockchain[0].Hash, c2.Blockchain[0].Hash)
	assert.Equal(t, c1.Blockchain[0].Cabecera, c2.Blockchain[0].Cabecera)
}

func TestAddTransactionValidSignature(t *testing.T) {
	c := newTestChain(t)
	priv, pub, err := signer.GenerateKeys()
	require.NoError(t, err)

	ok, reason := c.AddTransaction(pub, priv, "bob", "10", "pago")
	assert.True(t, ok)
	assert.Empty(t, reason)
	require.Len(t, c.TransaccionesNoConfirmadas, 1)
}

func TestAddTransactionRejectsShortKey(t *testing.T) {
	c := newTestChain(t)
	ok, reason := c.AddTransaction("alice", "deadbeef", "bob", "10", "pago")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
	assert.Empty(t, c.TransaccionesNoConfirmadas)
}

func TestAddTransactionRejectsMismatchedKey(t *testing.T) {
	c := newTestChain(t)
	_, pub, err := signer.GenerateKeys()
	require.NoError(t, err)
	otherPriv, _, err := signer.GenerateKeys()
	require.NoError(t, err)

	// Correct key length, wrong key for this address: the signature
	// verifies against the signer's own public key, not pub.
	ok, reason := c.AddTransaction(pub, otherPriv, "bob", "10", "pago")
	assert.False(t, ok)
	assert.Equal(t, "Firma no válida.", reason)
	assert.Empty(t, c.TransaccionesNoConfirmadas)
}

func TestAddRewardTransaction(t *testing.T) {
	c := newTestChain(t)
	c.AddRewardTransaction()
	require.Len(t, c.TransaccionesNoConfirmadas, 1)
	assert.Equal(t, "minero-1", c.TransaccionesNoConfirmadas[0].Para())
}

func TestAddBlockRejectsWrongParent(t *testing.T) {
	c := newTestChain(t)
	txs := []block.Transaction{block.NewTransaction("a", "b", "1", "x", "2024-01-01")}
	b := block.New(1, txs)
	b.BuildHeader("not-the-tip", txs, 0)
	hash := b.ComputeHash()

	assert.False(t, c.AddBlock(b, hash))
	assert.Len(t, c.Blockchain, 1)
}

func TestAddBlockAcceptsValidChild(t *testing.T) {
	c := newTestChain(t)
	c.Dificultad = 0

	tip := c.Tip()
	txs := []block.Transaction{block.NewTransaction("a", "b", "1", "x", "2024-01-01")}
	b := block.New(1, txs)
	b.BuildHeader(tip.Hash, txs, 0)
	hash := b.ComputeHash()
	b.Hash = hash

	assert.True(t, c.AddBlock(b, hash))
	assert.Len(t, c.Blockchain, 2)
	assert.Equal(t, b, c.Tip())
}

func TestAddBlockRecordsToForensicsWhenSet(t *testing.T) {
	c := newTestChain(t)
	c.Dificultad = 0

	log, err := forensics.Open(t.TempDir())
	require.NoError(t, err)
	defer log.Close()
	c.SetForensics(log)

	tip := c.Tip()
	txs := []block.Transaction{block.NewTransaction("a", "b", "1", "x", "2024-01-01")}
	b := block.New(1, txs)
	b.BuildHeader(tip.Hash, txs, 0)
	hash := b.ComputeHash()
	b.Hash = hash

	require.True(t, c.AddBlock(b, hash))

	seen, err := log.Seen(hash)
	require.NoError(t, err)
	assert.True(t, seen)

	genesisSeen, err := log.Seen(tip.Hash)
	require.NoError(t, err)
	assert.True(t, genesisSeen, "SetForensics should have recorded the existing genesis block")
}

func TestReplaceRecordsEveryBlockToForensics(t *testing.T) {
	c := newTestChain(t)

	log, err := forensics.Open(t.TempDir())
	require.NoError(t, err)
	defer log.Close()
	c.SetForensics(log)

	other := block.New(1, nil)
	other.BuildHeader(c.Tip().Hash, nil, 0)
	other.Hash = other.ComputeHash()

	c.Replace([]*block.Block{c.Blockchain[0], other})

	seen, err := log.Seen(other.Hash)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	c := newTestChain(t)
	snap := c.Snapshot()
	require.Len(t, snap, 1)

	c.Blockchain = append(c.Blockchain, c.Blockchain[0])
	assert.Len(t, snap, 1)
}
