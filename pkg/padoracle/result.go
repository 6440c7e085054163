package padoracle

import (
	"hash"
	"math/big"
	"time"
)

// RecoveryResult contains the result of a plaintext recovery.
type RecoveryResult struct {
	Plaintext []byte   // Recovered block, exactly k bytes
	Value     *big.Int // Recovered block as an integer
	Attack    string   // Name of the attack that produced it
	Verified  bool     // Whether Value re-encrypts to the ciphertext

	BlindingFactor *big.Int // s0 (Bleichenbacher only, 1 when no blinding was needed)

	Rounds   int           // Narrowing rounds or bisection steps
	Queries  int64         // Oracle queries spent
	Duration time.Duration // Wall-clock time of the attack
}

// Message strips the PKCS#1 v1.5 padding from the recovered block.
func (r *RecoveryResult) Message() ([]byte, error) {
	return ParsePKCS1v15Block(r.Plaintext)
}

// OAEPMessage decodes the recovered block as OAEP with the given hash and
// label.
func (r *RecoveryResult) OAEPMessage(h hash.Hash, label []byte) ([]byte, error) {
	return DecodeOAEP(r.Plaintext, h, label)
}
