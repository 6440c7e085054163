package padoracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/mahdiidarabi/rsa-oracle/internal/arith"
)

// HalfAttack recovers any plaintext from an oracle that reports whether a
// ciphertext decrypts to a value above n/2.
//
// The answer for c*(2^i)^e is bit i+1 of the binary expansion of m/n, so
// the bitlen(n) queries are independent and are sent as one batch.
type HalfAttack struct {
	Config AttackConfig
}

// NewHalfAttack creates the attack with default settings.
func NewHalfAttack() *HalfAttack {
	return &HalfAttack{Config: DefaultAttackConfig()}
}

// WithConfig sets the attack configuration.
func (a *HalfAttack) WithConfig(config AttackConfig) *HalfAttack {
	a.Config = config
	return a
}

// Name returns the name of this attack.
func (a *HalfAttack) Name() string {
	return "Half"
}

// Recover implements Attack.
func (a *HalfAttack) Recover(ctx context.Context, key *PublicKey, ciphertext *big.Int, oracle *Ensemble) (*RecoveryResult, error) {
	start := time.Now()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if ciphertext.Sign() < 0 || ciphertext.Cmp(key.N) >= 0 {
		return nil, fmt.Errorf("%w: ciphertext is not below the modulus", ErrInvalidQuery)
	}

	rep := newReporter(a.Config)
	n := key.N
	bits := n.BitLen()

	rep.phase("Starting half attack: %d-bit modulus, %d queries over %d oracles", bits, bits, oracle.Len())

	// contents[i] = c * (2^i)^e
	doubler := key.Encrypt(big.NewInt(2))
	contents := make([][]byte, bits)
	cur := new(big.Int).Set(ciphertext)
	for i := range contents {
		contents[i] = key.Encode(cur)
		cur = arith.MulMod(cur, doubler, n)
	}

	answers, warnings, err := oracle.QueryAll(ctx, contents)
	rep.warnAll(warnings)
	if err != nil {
		return nil, fmt.Errorf("failed to query oracles: %w", err)
	}

	// m/n lies in [l/2^bits, (l+1)/2^bits).
	l := new(big.Int)
	for _, above := range answers {
		l.Lsh(l, 1)
		if above {
			l.SetBit(l, 0, 1)
		}
	}
	m := arith.DivCeil(new(big.Int).Mul(n, l), new(big.Int).Lsh(big.NewInt(1), uint(bits)))

	if value, ok := a.verify(key, ciphertext, m); ok {
		rep.phase("✓ Recovered plaintext with %d queries", len(contents))
		return &RecoveryResult{
			Plaintext: key.Encode(value),
			Value:     value,
			Attack:    a.Name(),
			Verified:  true,
			Rounds:    1,
			Queries:   int64(len(contents)),
			Duration:  time.Since(start),
		}, nil
	}
	return nil, ErrVerificationFailed
}

// verify checks m, then m±d for d up to NeighbourSearch, to absorb a few
// wrong answers in the low bits.
func (a *HalfAttack) verify(key *PublicKey, ciphertext, m *big.Int) (*big.Int, bool) {
	if key.Encrypt(m).Cmp(ciphertext) == 0 {
		return m, true
	}
	for d := 1; d <= a.Config.NeighbourSearch; d++ {
		offset := big.NewInt(int64(d))
		for _, candidate := range []*big.Int{new(big.Int).Add(m, offset), new(big.Int).Sub(m, offset)} {
			if candidate.Sign() < 0 || candidate.Cmp(key.N) >= 0 {
				continue
			}
			if key.Encrypt(candidate).Cmp(ciphertext) == 0 {
				return candidate, true
			}
		}
	}
	return nil, false
}
