// Package signer implements key generation, signing and verification for
// transaction timestamps over ECDSA/SECP256k1.
//
// Only the transaction's Fecha (timestamp) string is ever signed — not the
// sender, receiver, amount or concept. A valid signature therefore binds a
// signer only to the act of signing at a given time, not to what the
// transaction actually says. This is a known weakness inherited from the
// system this node reimplements and is preserved deliberately, not fixed.
package signer

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
)

type derSignature struct {
	R, S *big.Int
}

// GenerateKeys produces a new SECP256k1 keypair: a 32-byte private key as a
// hex string, and the raw (uncompressed) public key point bytes, base64
// encoded for compact wallet storage.
func GenerateKeys() (privateKeyHex, publicKeyB64 string, err error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", "", fmt.Errorf("signer: generate key: %w", err)
	}

	privateKeyHex = hex.EncodeToString(priv.Serialize())
	publicKeyB64 = base64.StdEncoding.EncodeToString(priv.PubKey().SerializeUncompressed())
	return privateKeyHex, publicKeyB64, nil
}

// Sign signs the current timestamp with privateKeyHex and returns the
// base64-encoded DER signature alongside the exact date string it covers.
// privateKeyHex must be 64 hex characters (32 bytes); callers validate key
// length before calling Sign.
func Sign(privateKeyHex string) (signatureB64, dateString string, err error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", "", fmt.Errorf("signer: decode private key: %w", err)
	}

	privKey, _ := btcec.PrivKeyFromBytes(keyBytes)
	priv := privKey.ToECDSA()
	dateString = FormatDate(time.Now())

	digest := sha256.Sum256([]byte(dateString))
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return "", "", fmt.Errorf("signer: sign: %w", err)
	}

	der, err := asn1.Marshal(derSignature{R: r, S: s})
	if err != nil {
		return "", "", fmt.Errorf("signer: encode signature: %w", err)
	}

	signatureB64 = base64.StdEncoding.EncodeToString(der)
	return signatureB64, dateString, nil
}

// Verify reports whether signatureB64 is a valid signature by publicKeyB64
// over dateString. Any malformed input results in false; Verify never
// panics or returns an error.
func Verify(publicKeyB64, signatureB64, dateString string) bool {
	pubBytes, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return false
	}

	pubKey, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}

	sigBytes, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}

	var sig derSignature
	if _, err := asn1.Unmarshal(sigBytes, &sig); err != nil {
		return false
	}
	if sig.R == nil || sig.S == nil {
		return false
	}

	digest := sha256.Sum256([]byte(dateString))
	return ecdsa.Verify(pubKey.ToECDSA(), digest[:], sig.R, sig.S)
}

// FormatDate renders t the way the date string is carried in transactions
// and signed: a fixed-width, sortable local timestamp.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000000")
}
