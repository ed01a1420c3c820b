package block

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Transaction is a fixed-schema record of five labeled string fields,
// wire-encoded as a flat JSON array (not an object) to match the schema
// every node decodes and rehashes: ["De: ...", "Para: ...", "Cantidad: ...",
// "concepto: ...", "Fecha: ..."].
type Transaction struct {
	Fields [5]string
}

const (
	fieldDe       = 0
	fieldPara     = 1
	fieldCantidad = 2
	fieldConcepto = 3
	fieldFecha    = 4
)

// NewTransaction builds a user transaction. concepto is lowercase-labeled,
// matching the label the original signer produces for ordinary transfers
// (the genesis and reward transactions use a capitalized label instead —
// preserved exactly since it is part of the textual form that gets hashed).
func NewTransaction(de, para, cantidad, concepto, fecha string) Transaction {
	return Transaction{Fields: [5]string{
		"De: " + de,
		"Para: " + para,
		"Cantidad: " + cantidad,
		"concepto: " + concepto,
		"Fecha: " + fecha,
	}}
}

// NewRewardTransaction builds the fixed-form mining reward transaction.
func NewRewardTransaction(direccionMinero, fecha string) Transaction {
	return Transaction{Fields: [5]string{
		"De: Red blockchain",
		"Para: " + direccionMinero,
		"Cantidad: 50",
		"Concepto: Transaccion recompensa",
		"Fecha: " + fecha,
	}}
}

// GenesisTransaction builds the single deterministic genesis transaction.
func GenesisTransaction() Transaction {
	return Transaction{Fields: [5]string{
		"De: Red blockchain",
		"Para: Nadie",
		"Cantidad: 50",
		"Concepto: Transaccion Genesis",
		"Fecha: Indeterminado",
	}}
}

// Fecha returns the raw date string, with the "Fecha: " label stripped —
// this is the exact value the signature covers, never the labeled field.
func (t Transaction) Fecha() string {
	return strings.TrimPrefix(t.Fields[fieldFecha], "Fecha: ")
}

// De returns the raw sender field with its label stripped.
func (t Transaction) De() string {
	return strings.TrimPrefix(t.Fields[fieldDe], "De: ")
}

// Para returns the raw recipient field with its label stripped.
func (t Transaction) Para() string {
	return strings.TrimPrefix(t.Fields[fieldPara], "Para: ")
}

// MarshalJSON encodes the transaction as a flat array of five strings.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Fields[:])
}

// UnmarshalJSON populates the transaction purely by positional assignment
// from a five-element JSON array — no validation, no recomputation. This
// mirrors the attribute-construction path used to reconstruct peer chains;
// validating the result is the caller's responsibility.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	if len(raw) != 5 {
		return fmt.Errorf("transaction: expected 5 fields, got %d", len(raw))
	}
	copy(t.Fields[:], raw)
	return nil
}
