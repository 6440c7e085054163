package padoracle

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"
)

func TestDecrypters_AgreeWithTextbookRSA(t *testing.T) {
	priv := testKey(t, 512)
	decrypters := map[string]decrypter{
		"crt":     newCRTDecrypter(priv),
		"safenum": newCTDecrypter(priv),
	}

	for i := 0; i < 20; i++ {
		c, err := rand.Int(rand.Reader, priv.N)
		if err != nil {
			t.Fatalf("Failed to draw ciphertext: %v", err)
		}
		want := rawDecrypt(priv, c)
		for name, d := range decrypters {
			if got := d.decrypt(c); got.Cmp(want) != 0 {
				t.Errorf("%s decrypt mismatch for c=%s", name, c.Text(16))
			}
		}
	}
}

func TestConforms(t *testing.T) {
	block := func(prefix []byte, sepAt int) []byte {
		em := bytes.Repeat([]byte{0xab}, 64)
		copy(em, prefix)
		if sepAt > 0 {
			em[sepAt] = 0
		}
		return em
	}

	cases := []struct {
		name   string
		em     []byte
		prefix bool
		strict bool
	}{
		{"valid", block([]byte{0, 2}, 20), true, true},
		{"separator at 10", block([]byte{0, 2}, 10), true, true},
		{"separator at 9", block([]byte{0, 2}, 9), true, false},
		{"no separator", block([]byte{0, 2}, 0), true, false},
		{"block type 1", block([]byte{0, 1}, 20), false, false},
		{"leading non-zero", block([]byte{1, 2}, 20), false, false},
		{"too short", []byte{0, 2, 1, 0}, false, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Conforms(c.em, ConformPrefix); got != c.prefix {
				t.Errorf("Conforms(prefix) = %v, want %v", got, c.prefix)
			}
			if got := Conforms(c.em, ConformStrict); got != c.strict {
				t.Errorf("Conforms(strict) = %v, want %v", got, c.strict)
			}
		})
	}
}

func TestPKCS1v15Oracle(t *testing.T) {
	priv := testKey(t, 1024)
	key := NewPublicKey(&priv.PublicKey)
	ctx := context.Background()

	c, err := rsa.EncryptPKCS1v15(rand.Reader, &priv.PublicKey, []byte("attack at dawn"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	// 00 02 followed by non-zero bytes only: conforming for the prefix
	// check, not for the strict one.
	noSep := key.Encode(key.Encrypt(new(big.Int).SetBytes(append([]byte{0, 2}, bytes.Repeat([]byte{1}, key.Size()-2)...))))

	for _, opts := range [][]LocalOption{nil, {WithConstantTime()}} {
		prefix := NewPKCS1v15Oracle(priv, opts...)
		strict := NewPKCS1v15Oracle(priv, append(opts, WithConformance(ConformStrict))...)

		for name, o := range map[string]*PKCS1v15Oracle{"prefix": prefix, "strict": strict} {
			ok, err := o.Query(ctx, c)
			if err != nil || !ok {
				t.Errorf("%s: Query(valid) = %v, %v; want true", name, ok, err)
			}
		}

		if ok, _ := prefix.Query(ctx, noSep); !ok {
			t.Error("prefix oracle rejected a block without separator")
		}
		if ok, _ := strict.Query(ctx, noSep); ok {
			t.Error("strict oracle accepted a block without separator")
		}
		if got := prefix.Queries(); got != 2 {
			t.Errorf("Queries = %d, want 2", got)
		}
	}
}

func TestLocalOracle_InvalidQuery(t *testing.T) {
	priv := testKey(t, 512)
	o := NewPKCS1v15Oracle(priv)

	if _, err := o.Query(context.Background(), []byte{1, 2, 3}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("short query error = %v, want ErrInvalidQuery", err)
	}

	tooBig := bytes.Repeat([]byte{0xff}, priv.Size())
	if _, err := o.Query(context.Background(), tooBig); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("query above n error = %v, want ErrInvalidQuery", err)
	}
}

func TestOAEPThresholdOracle(t *testing.T) {
	priv := testKey(t, 1024)
	key := NewPublicKey(&priv.PublicKey)
	ctx := context.Background()

	c, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &priv.PublicKey, []byte("secret"), nil)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	bound := new(big.Int).Lsh(big.NewInt(1), uint(8*(key.Size()-1)))
	atBound := key.Encode(key.Encrypt(bound))
	belowBound := key.Encode(key.Encrypt(new(big.Int).Sub(bound, big.NewInt(1))))

	for name, o := range map[string]*OAEPThresholdOracle{
		"safenum":  NewOAEPThresholdOracle(priv),
		"math/big": NewOAEPThresholdOracle(priv, WithMathBig()),
	} {
		if ok, err := o.Query(ctx, c); err != nil || !ok {
			t.Errorf("%s: OAEP ciphertext = %v, %v; want true", name, ok, err)
		}
		if ok, _ := o.Query(ctx, atBound); ok {
			t.Errorf("%s: B answered below B", name)
		}
		if ok, _ := o.Query(ctx, belowBound); !ok {
			t.Errorf("%s: B-1 answered not below B", name)
		}
	}
}

func TestHalfOracle(t *testing.T) {
	priv := testKey(t, 512)
	key := NewPublicKey(&priv.PublicKey)
	ctx := context.Background()

	half := new(big.Int).Rsh(priv.N, 1)
	cases := []struct {
		m    *big.Int
		want bool
	}{
		{big.NewInt(1), false},
		{half, false},
		{new(big.Int).Add(half, big.NewInt(1)), true},
		{new(big.Int).Sub(priv.N, big.NewInt(1)), true},
	}

	o := NewHalfOracle(priv)
	for _, c := range cases {
		got, err := o.Query(ctx, key.Encode(key.Encrypt(c.m)))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if got != c.want {
			t.Errorf("Query(m=%s) = %v, want %v", c.m.Text(16), got, c.want)
		}
	}
}
