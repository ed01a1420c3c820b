// Package snapshot dumps a node's chain to a JSON file for a later
// comparison across nodes. The node binary rewrites the file after every
// mining iteration, so once a run ends it holds the final chain; the live
// chain itself never reads from or writes to disk.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ramonaguilera/simplechain/pkg/block"
)

// WriteChain marshals blocks as a JSON array and writes them to path,
// overwriting any existing file.
func WriteChain(path string, blocks []*block.Block) error {
	buf, err := json.MarshalIndent(blocks, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}

// FileName builds the conventional snapshot file name for a node's
// regular chain: blockchain-<miner>.json.
func FileName(miner string) string {
	return fmt.Sprintf("blockchain-%s.json", miner)
}

// MaliciousFileName builds the conventional snapshot file name for a
// node's forged chain, kept separate from its honest one so a comparison
// pass can tell them apart.
func MaliciousFileName(miner string) string {
	return fmt.Sprintf("blockchain-malicioso-%s.json", miner)
}
