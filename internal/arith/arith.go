// Package arith holds the exact big-integer helpers shared by the attacks.
// Every division goes through integer quotient/remainder; nothing in here
// touches floating point.
package arith

import (
	"errors"
	"math/big"
)

// ErrNoInverse is returned by ModInverse when gcd(a, m) != 1.
var ErrNoInverse = errors.New("modular inverse does not exist")

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

// DivCeil returns ceil(a / b). b must be positive.
func DivCeil(a, b *big.Int) *big.Int {
	q, r := new(big.Int), new(big.Int)
	q.DivMod(a, b, r)
	if r.Sign() != 0 {
		q.Add(q, one)
	}
	return q
}

// DivFloor returns floor(a / b). b must be positive.
//
// big.Int.Div is Euclidean division, which for a positive divisor is the
// floor for negative numerators as well.
func DivFloor(a, b *big.Int) *big.Int {
	return new(big.Int).Div(a, b)
}

// Divides reports whether b divides a exactly.
func Divides(a, b *big.Int) bool {
	return new(big.Int).Mod(a, b).Sign() == 0
}

// ModInverse returns x in [0, m) with a*x = 1 (mod m), computed with the
// extended Euclidean algorithm.
func ModInverse(a, m *big.Int) (*big.Int, error) {
	if m.Sign() <= 0 {
		return nil, errors.New("modulus must be positive")
	}

	// Invariants: oldR = oldS*a (mod m), r = s*a (mod m)
	oldR := new(big.Int).Mod(a, m)
	r := new(big.Int).Set(m)
	oldS := big.NewInt(1)
	s := big.NewInt(0)

	q := new(big.Int)
	tmp := new(big.Int)
	for r.Sign() != 0 {
		q.Div(oldR, r)

		tmp.Mul(q, r)
		oldR, r = r, new(big.Int).Sub(oldR, tmp)

		tmp.Mul(q, s)
		oldS, s = s, new(big.Int).Sub(oldS, tmp)
	}

	if oldR.Cmp(one) != 0 {
		return nil, ErrNoInverse
	}
	return oldS.Mod(oldS, m), nil
}

// Size returns the byte length of n.
func Size(n *big.Int) int {
	return (n.BitLen() + 7) / 8
}

// LeftPad encodes x as exactly k big-endian bytes. Values that do not fit
// keep their k least significant bytes.
func LeftPad(x *big.Int, k int) []byte {
	if x.Sign() < 0 {
		x = new(big.Int).Neg(x)
	}
	b := x.Bytes()
	if len(b) > k {
		return b[len(b)-k:]
	}
	out := make([]byte, k)
	copy(out[k-len(b):], b)
	return out
}

// Encrypt computes the raw RSA permutation x^e mod n.
func Encrypt(x, e, n *big.Int) *big.Int {
	return new(big.Int).Exp(x, e, n)
}

// MulMod returns a*b mod n.
func MulMod(a, b, n *big.Int) *big.Int {
	z := new(big.Int).Mul(a, b)
	return z.Mod(z, n)
}

// Blind returns c * s^e mod n, the ciphertext whose plaintext is the
// plaintext of c multiplied by s.
func Blind(c, s, e, n *big.Int) *big.Int {
	z := new(big.Int).Exp(s, e, n)
	z.Mul(z, c)
	return z.Mod(z, n)
}

// IsZero reports whether x == 0.
func IsZero(x *big.Int) bool {
	return x.Cmp(zero) == 0
}
