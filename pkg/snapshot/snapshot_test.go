package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ramonaguilera/simplechain/pkg/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteChainRoundTrips(t *testing.T) {
	c := chain.New(chain.DefaultConfig())
	path := filepath.Join(t.TempDir(), FileName("1"))

	require.NoError(t, WriteChain(path, c.Blockchain))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 1)
}

func TestFileNamesDifferForMaliciousChains(t *testing.T) {
	assert.NotEqual(t, FileName("1"), MaliciousFileName("1"))
}
