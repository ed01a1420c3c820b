package nodeserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ramonaguilera/simplechain/pkg/block"
	"github.com/ramonaguilera/simplechain/pkg/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleBlockchainReturnsSnapshot(t *testing.T) {
	c := chain.New(chain.DefaultConfig())
	s := New(c, nil, DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/blockchain", nil)
	rec := httptest.NewRecorder()
	s.handleBlockchain(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var blocks []*block.Block
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &blocks))
	assert.Len(t, blocks, 1)
	assert.Equal(t, chain.GenesisHash, blocks[0].Hash)
}

func TestHandleIndexReturnsHTML(t *testing.T) {
	c := chain.New(chain.DefaultConfig())
	s := New(c, nil, DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handleIndex(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<html>")
}

func TestHandleShutdownRespondsOK(t *testing.T) {
	c := chain.New(chain.DefaultConfig())
	s := New(c, nil, DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/apagado", nil)
	rec := httptest.NewRecorder()
	s.handleShutdown(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
