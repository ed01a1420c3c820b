package nodeconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPeersDropsBlanks(t *testing.T) {
	out := cleanPeers([]string{" http://a ", "", "http://b"})
	assert.Equal(t, []string{"http://a", "http://b"}, out)
}

func TestDefaultHasUnboundedIterationsAndDisabledRewrite(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0, cfg.Iterations)
	assert.Equal(t, -1, cfg.RewriteAt)
	assert.Equal(t, -1, cfg.StopAfter)
}

func TestDefaultHasNoWalletFilesConfigured(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.WalletFile)
	assert.Empty(t, cfg.EmisorWallet)
	assert.Empty(t, cfg.ReceptorWallet)
	assert.Empty(t, cfg.MaliciosoWallet)
}
