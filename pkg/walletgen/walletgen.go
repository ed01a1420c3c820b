// Package walletgen generates SECP256k1 miner keypairs and writes them to
// a wallet file in key=value form, which LoadWallet reads back when a node
// is pointed at the file with one of its wallet flags.
package walletgen

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ramonaguilera/simplechain/pkg/signer"
)

// Wallet is a generated keypair before it is written to disk.
type Wallet struct {
	DireccionMinero    string
	ClavePrivadaMinero string
}

// Generate produces a fresh SECP256k1 keypair.
func Generate() (*Wallet, error) {
	priv, pub, err := signer.GenerateKeys()
	if err != nil {
		return nil, fmt.Errorf("walletgen: %w", err)
	}
	return &Wallet{DireccionMinero: pub, ClavePrivadaMinero: priv}, nil
}

// WriteFile writes w to path in "key = value" form, one key per line,
// overwriting any existing file at that path.
func (w *Wallet) WriteFile(path string) error {
	contents := fmt.Sprintf("direccion_minero = %s\nclave_privada_minero = %s\n",
		w.DireccionMinero, w.ClavePrivadaMinero)

	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		return fmt.Errorf("walletgen: write %s: %w", path, err)
	}
	return nil
}

// LoadWallet reads a wallet file in the "key = value" form WriteFile
// produces: a direccion_minero and clave_privada_minero line, in either
// order, blank lines and extra whitespace ignored.
func LoadWallet(path string) (*Wallet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("walletgen: open %s: %w", path, err)
	}
	defer f.Close()

	w := &Wallet{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "direccion_minero":
			w.DireccionMinero = value
		case "clave_privada_minero":
			w.ClavePrivadaMinero = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("walletgen: read %s: %w", path, err)
	}
	if w.DireccionMinero == "" || w.ClavePrivadaMinero == "" {
		return nil, fmt.Errorf("walletgen: %s missing direccion_minero or clave_privada_minero", path)
	}
	return w, nil
}
