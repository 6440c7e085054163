package padoracle

import (
	"context"
	"crypto/rsa"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/cronokirby/safenum"
	"github.com/mahdiidarabi/rsa-oracle/internal/arith"
)

// decrypter computes c^d mod n for c < n.
type decrypter interface {
	decrypt(c *big.Int) *big.Int
}

// crtDecrypter decrypts with math/big using the CRT values of the key. It
// is the fast path used by default.
type crtDecrypter struct {
	p, q, dp, dq, qinv *big.Int
}

func newCRTDecrypter(priv *rsa.PrivateKey) *crtDecrypter {
	p, q := priv.Primes[0], priv.Primes[1]
	one := big.NewInt(1)
	return &crtDecrypter{
		p:    p,
		q:    q,
		dp:   new(big.Int).Mod(priv.D, new(big.Int).Sub(p, one)),
		dq:   new(big.Int).Mod(priv.D, new(big.Int).Sub(q, one)),
		qinv: new(big.Int).ModInverse(q, p),
	}
}

func (d *crtDecrypter) decrypt(c *big.Int) *big.Int {
	m1 := new(big.Int).Exp(c, d.dp, d.p)
	m2 := new(big.Int).Exp(c, d.dq, d.q)

	// h = qinv * (m1 - m2) mod p
	h := m1.Sub(m1, m2)
	h.Mul(h, d.qinv)
	h.Mod(h, d.p)

	h.Mul(h, d.q)
	return h.Add(h, m2)
}

// ctDecrypter decrypts in constant time with safenum.
type ctDecrypter struct {
	n *safenum.Modulus
	d *safenum.Nat
}

func newCTDecrypter(priv *rsa.PrivateKey) *ctDecrypter {
	return &ctDecrypter{
		n: safenum.ModulusFromBytes(priv.N.Bytes()),
		d: new(safenum.Nat).SetBytes(priv.D.Bytes()),
	}
}

func (d *ctDecrypter) decrypt(c *big.Int) *big.Int {
	x := new(safenum.Nat).SetBytes(c.Bytes())
	m := new(safenum.Nat).Exp(x, d.d, d.n)
	return new(big.Int).SetBytes(m.Bytes())
}

// LocalOption configures the oracles backed by a private key.
type LocalOption func(*localOptions)

type localOptions struct {
	constantTime bool
	conformance  Conformance
}

// WithConstantTime makes the oracle decrypt with constant-time arithmetic
// instead of math/big.
func WithConstantTime() LocalOption {
	return func(o *localOptions) { o.constantTime = true }
}

// WithMathBig forces the math/big CRT decrypter.
func WithMathBig() LocalOption {
	return func(o *localOptions) { o.constantTime = false }
}

// WithConformance selects the PKCS#1 v1.5 check of a PKCS1v15Oracle.
func WithConformance(c Conformance) LocalOption {
	return func(o *localOptions) { o.conformance = c }
}

func (o localOptions) decrypter(priv *rsa.PrivateKey) decrypter {
	if o.constantTime || len(priv.Primes) != 2 {
		return newCTDecrypter(priv)
	}
	return newCRTDecrypter(priv)
}

// localOracle holds what every key-backed oracle shares.
type localOracle struct {
	k       int
	n       *big.Int
	dec     decrypter
	queries int64
}

func newLocalOracle(priv *rsa.PrivateKey, opts localOptions) localOracle {
	return localOracle{
		k:   priv.Size(),
		n:   new(big.Int).Set(priv.N),
		dec: opts.decrypter(priv),
	}
}

// open decrypts content after checking it is a valid ciphertext.
func (o *localOracle) open(ctx context.Context, content []byte) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	atomic.AddInt64(&o.queries, 1)

	if len(content) != o.k {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidQuery, len(content), o.k)
	}
	c := new(big.Int).SetBytes(content)
	if c.Cmp(o.n) >= 0 {
		return nil, fmt.Errorf("%w: ciphertext not below the modulus", ErrInvalidQuery)
	}
	return o.dec.decrypt(c), nil
}

// Queries returns the number of queries answered so far.
func (o *localOracle) Queries() int64 {
	return atomic.LoadInt64(&o.queries)
}

// Conformance selects how strictly a PKCS1v15Oracle checks the block.
type Conformance int

const (
	// ConformPrefix accepts every block starting with 00 02.
	ConformPrefix Conformance = iota
	// ConformStrict additionally requires a zero separator after at least
	// eight non-zero padding bytes.
	ConformStrict
)

func (c Conformance) String() string {
	switch c {
	case ConformPrefix:
		return "prefix"
	case ConformStrict:
		return "strict"
	default:
		return fmt.Sprintf("Conformance(%d)", int(c))
	}
}

// PKCS1v15Oracle answers whether a ciphertext decrypts to a PKCS#1 v1.5
// encryption block.
type PKCS1v15Oracle struct {
	localOracle
	conformance Conformance
}

// NewPKCS1v15Oracle returns a Bleichenbacher oracle for priv. The default
// check is ConformPrefix with math/big decryption.
func NewPKCS1v15Oracle(priv *rsa.PrivateKey, opts ...LocalOption) *PKCS1v15Oracle {
	var o localOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &PKCS1v15Oracle{
		localOracle: newLocalOracle(priv, o),
		conformance: o.conformance,
	}
}

// Query implements Oracle.
func (o *PKCS1v15Oracle) Query(ctx context.Context, content []byte) (bool, error) {
	m, err := o.open(ctx, content)
	if err != nil {
		return false, err
	}
	return Conforms(arith.LeftPad(m, o.k), o.conformance), nil
}

// Conforms reports whether em is a PKCS#1 v1.5 encryption block under the
// given check.
func Conforms(em []byte, c Conformance) bool {
	if len(em) < 11 || em[0] != 0x00 || em[1] != 0x02 {
		return false
	}
	if c == ConformPrefix {
		return true
	}
	for i := 2; i < len(em); i++ {
		if em[i] == 0 {
			return i >= 10
		}
	}
	return false
}

// OAEPThresholdOracle answers whether a ciphertext decrypts to a value
// below B = 2^(8(k-1)), i.e. whether the first byte of the block is zero.
type OAEPThresholdOracle struct {
	localOracle
	bound *big.Int
}

// NewOAEPThresholdOracle returns a Manger oracle for priv. It decrypts in
// constant time unless WithMathBig is given.
func NewOAEPThresholdOracle(priv *rsa.PrivateKey, opts ...LocalOption) *OAEPThresholdOracle {
	o := localOptions{constantTime: true}
	for _, opt := range opts {
		opt(&o)
	}
	k := priv.Size()
	return &OAEPThresholdOracle{
		localOracle: newLocalOracle(priv, o),
		bound:       new(big.Int).Lsh(big.NewInt(1), uint(8*(k-1))),
	}
}

// Query implements Oracle.
func (o *OAEPThresholdOracle) Query(ctx context.Context, content []byte) (bool, error) {
	m, err := o.open(ctx, content)
	if err != nil {
		return false, err
	}
	return m.Cmp(o.bound) < 0, nil
}

// HalfOracle answers whether a ciphertext decrypts to a value above n/2.
type HalfOracle struct {
	localOracle
	half *big.Int
}

// NewHalfOracle returns a parity-style oracle for priv. It decrypts in
// constant time unless WithMathBig is given.
func NewHalfOracle(priv *rsa.PrivateKey, opts ...LocalOption) *HalfOracle {
	o := localOptions{constantTime: true}
	for _, opt := range opts {
		opt(&o)
	}
	return &HalfOracle{
		localOracle: newLocalOracle(priv, o),
		half:        new(big.Int).Rsh(priv.N, 1),
	}
}

// Query implements Oracle.
func (o *HalfOracle) Query(ctx context.Context, content []byte) (bool, error) {
	m, err := o.open(ctx, content)
	if err != nil {
		return false, err
	}
	return m.Cmp(o.half) > 0, nil
}
