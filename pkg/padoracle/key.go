package padoracle

import (
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/mahdiidarabi/rsa-oracle/internal/arith"
)

// PublicKey is the RSA public key under attack.
type PublicKey struct {
	N *big.Int // modulus
	E *big.Int // public exponent
}

// NewPublicKey converts a crypto/rsa public key.
func NewPublicKey(pub *rsa.PublicKey) *PublicKey {
	return &PublicKey{
		N: new(big.Int).Set(pub.N),
		E: big.NewInt(int64(pub.E)),
	}
}

// Size returns k, the byte length of every ciphertext under this key.
func (k *PublicKey) Size() int {
	return arith.Size(k.N)
}

// Validate checks that the key can be attacked.
func (k *PublicKey) Validate() error {
	if k == nil || k.N == nil || k.E == nil {
		return fmt.Errorf("%w: missing modulus or exponent", ErrInvalidKey)
	}
	if k.N.Sign() <= 0 || k.N.Bit(0) == 0 {
		return fmt.Errorf("%w: modulus must be odd and positive", ErrInvalidKey)
	}
	if k.E.Cmp(big.NewInt(2)) <= 0 {
		return fmt.Errorf("%w: exponent must be larger than 2", ErrInvalidKey)
	}
	if k.Size() < 11 {
		return fmt.Errorf("%w: modulus of %d bytes is too small", ErrUnsupportedModulus, k.Size())
	}
	return nil
}

// Encrypt computes x^e mod n.
func (k *PublicKey) Encrypt(x *big.Int) *big.Int {
	return arith.Encrypt(x, k.E, k.N)
}

// Encode returns x as exactly k big-endian bytes.
func (k *PublicKey) Encode(x *big.Int) []byte {
	return arith.LeftPad(x, k.Size())
}

// Blind returns the encoded ciphertext c * s^e mod n.
func (k *PublicKey) Blind(c, s *big.Int) []byte {
	return k.Encode(arith.Blind(c, s, k.E, k.N))
}

// DefaultCiphertext returns the canonical block 00 01 01 ... 01 attacked
// when no ciphertext is given.
func DefaultCiphertext(k int) []byte {
	block := make([]byte, k)
	for i := 1; i < k; i++ {
		block[i] = 0x01
	}
	return block
}
