package padoracle

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
)

var (
	keyCacheMu sync.Mutex
	keyCache   = map[int]*rsa.PrivateKey{}
)

// testKey returns a private key of the given size, generated once per test
// binary. Keys are built from two primes directly so that sizes below 1024
// bits work on every Go version.
func testKey(t testing.TB, bits int) *rsa.PrivateKey {
	t.Helper()

	keyCacheMu.Lock()
	defer keyCacheMu.Unlock()
	if priv, ok := keyCache[bits]; ok {
		return priv
	}

	priv := generateKey(t, bits)
	keyCache[bits] = priv
	return priv
}

// generateKey always returns a fresh key.
func generateKey(t testing.TB, bits int) *rsa.PrivateKey {
	t.Helper()

	e := big.NewInt(65537)
	one := big.NewInt(1)
	for {
		p, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			t.Fatalf("Failed to generate prime: %v", err)
		}
		q, err := rand.Prime(rand.Reader, bits-bits/2)
		if err != nil {
			t.Fatalf("Failed to generate prime: %v", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}

		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}
		phi := new(big.Int).Mul(new(big.Int).Sub(p, one), new(big.Int).Sub(q, one))
		d := new(big.Int).ModInverse(e, phi)
		if d == nil {
			continue
		}

		return &rsa.PrivateKey{
			PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
			D:         d,
			Primes:    []*big.Int{p, q},
		}
	}
}

// quietConfig is DefaultAttackConfig without output.
func quietConfig() AttackConfig {
	cfg := DefaultAttackConfig()
	cfg.Output = io.Discard
	return cfg
}

// rawDecrypt computes c^d mod n without any padding check.
func rawDecrypt(priv *rsa.PrivateKey, c *big.Int) *big.Int {
	return new(big.Int).Exp(c, priv.D, priv.N)
}

// encryptBlock encrypts a PKCS#1 v1.5 block around msg.
func encryptBlock(t testing.TB, priv *rsa.PrivateKey, msg []byte) *big.Int {
	t.Helper()

	key := NewPublicKey(&priv.PublicKey)
	eb, err := EncodePKCS1v15Block(rand.Reader, msg, key.Size())
	if err != nil {
		t.Fatalf("Failed to encode block: %v", err)
	}
	return key.Encrypt(new(big.Int).SetBytes(eb))
}

// randomMessage returns n random bytes.
func randomMessage(t testing.TB, n int) []byte {
	t.Helper()

	msg := make([]byte, n)
	if _, err := rand.Read(msg); err != nil {
		t.Fatalf("Failed to read random bytes: %v", err)
	}
	return msg
}

// newTestEnsemble builds an ensemble and closes it when the test ends.
func newTestEnsemble(t testing.TB, oracles ...Oracle) *Ensemble {
	t.Helper()

	ens, err := NewEnsemble(oracles...)
	if err != nil {
		t.Fatalf("Failed to create ensemble: %v", err)
	}
	t.Cleanup(func() { ens.Close() })
	return ens
}

// countingOracle counts the queries it forwards.
type countingOracle struct {
	inner Oracle
	count int64
}

func (o *countingOracle) Query(ctx context.Context, content []byte) (bool, error) {
	atomic.AddInt64(&o.count, 1)
	return o.inner.Query(ctx, content)
}

func (o *countingOracle) Count() int64 {
	return atomic.LoadInt64(&o.count)
}
