// Package report consolidates the per-node chain snapshots a test run
// leaves behind into a single result: a fork check (do all nodes agree on
// one chain?) and a flattened CSV of per-block mining statistics.
//
// No dataframe or spreadsheet library exists anywhere in this project's
// dependency set, so the tabular output uses the standard library's
// encoding/csv.
package report

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ramonaguilera/simplechain/pkg/block"
)

// ChainFile is one node's snapshot: its source path and decoded blocks.
type ChainFile struct {
	Path     string
	Checksum string
	Blocks   []*block.Block
}

// Collect reads every blockchain-*.json file in dir and checksums it.
func Collect(dir string) ([]ChainFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("report: read %s: %w", dir, err)
	}

	var files []ChainFile
	for _, e := range entries {
		if e.IsDir() || !matchesSnapshotName(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("report: read %s: %w", path, err)
		}

		var blocks []*block.Block
		if err := json.Unmarshal(data, &blocks); err != nil {
			return nil, fmt.Errorf("report: decode %s: %w", path, err)
		}

		sum := sha256.Sum256(data)
		files = append(files, ChainFile{
			Path:     path,
			Checksum: hex.EncodeToString(sum[:]),
			Blocks:   blocks,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func matchesSnapshotName(name string) bool {
	return len(name) > len("blockchain-") && name[:len("blockchain-")] == "blockchain-" && filepath.Ext(name) == ".json"
}

// ForkReport describes whether every collected chain file is byte-for-byte
// identical.
type ForkReport struct {
	Consistent bool
	Groups     map[string][]string // checksum -> paths sharing it
}

// CheckForFork groups files by checksum. A consistent run has exactly one
// group; more than one means nodes disagree on the chain, i.e. a fork.
func CheckForFork(files []ChainFile) ForkReport {
	groups := make(map[string][]string)
	for _, f := range files {
		groups[f.Checksum] = append(groups[f.Checksum], f.Path)
	}
	return ForkReport{Consistent: len(groups) <= 1, Groups: groups}
}

// WriteCSV flattens every block of every chain file into one row per
// block: file, index, miner, mining time, hashpower, transaction count.
func WriteCSV(path string, files []ChainFile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"archivo", "indice", "minado_por", "tiempo_minado", "potencia_computacion", "num_transacciones"}); err != nil {
		return fmt.Errorf("report: write header: %w", err)
	}

	for _, cf := range files {
		for _, b := range cf.Blocks {
			row := []string{
				cf.Path,
				fmt.Sprintf("%d", b.Indice),
				fmt.Sprintf("%v", b.MinadoPor),
				fmt.Sprintf("%v", b.TiempoMinado),
				fmt.Sprintf("%v", b.PotenciaComputacion),
				fmt.Sprintf("%d", len(b.Transacciones)),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("report: write row: %w", err)
			}
		}
	}
	return nil
}
