package parser

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestParseRawPublicKey(t *testing.T) {
	data := []byte{0x00, 0xc3, 0x51, 0x00, 0x00, 0x03}

	key, err := ParseRawPublicKey(data, 3)
	if err != nil {
		t.Fatalf("Failed to parse raw key: %v", err)
	}
	if key.N.Int64() != 0xc351 {
		t.Errorf("N = %x, want c351", key.N)
	}
	if key.E.Int64() != 3 {
		t.Errorf("E = %d, want 3", key.E)
	}

	inferred, err := ParseRawPublicKey(data, 0)
	if err != nil {
		t.Fatalf("Failed to parse raw key with inferred width: %v", err)
	}
	if inferred.N.Cmp(key.N) != 0 || inferred.E.Cmp(key.E) != 0 {
		t.Errorf("inferred key %v differs from %v", inferred, key)
	}

	if _, err := ParseRawPublicKey(data, 4); err == nil {
		t.Error("expected an error for a short key file")
	}
	if _, err := ParseRawPublicKey(data[:5], 0); err == nil {
		t.Error("expected an error for an odd-length key file")
	}
}

func TestParseJSONPublicKey(t *testing.T) {
	cases := []struct {
		name  string
		input string
		wantN int64
		wantE int64
	}{
		{"hex prefixed", `{"n": "0xc351", "e": 65537}`, 0xc351, 65537},
		{"decimal strings", `{"n": "50001", "e": "3"}`, 50001, 3},
		{"hex unprefixed", `{"n": "c351", "e": "0x10001"}`, 0xc351, 65537},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			key, err := ParseJSONPublicKey([]byte(c.input), "", "")
			if err != nil {
				t.Fatalf("Failed to parse JSON key: %v", err)
			}
			if key.N.Int64() != c.wantN {
				t.Errorf("N = %d, want %d", key.N.Int64(), c.wantN)
			}
			if key.E.Int64() != c.wantE {
				t.Errorf("E = %d, want %d", key.E.Int64(), c.wantE)
			}
		})
	}

	if _, err := ParseJSONPublicKey([]byte(`{"n": "12"}`), "", ""); err == nil {
		t.Error("expected an error for a missing exponent")
	}
	if _, err := ParseJSONPublicKey([]byte(`{"modulus": "0x12", "exp": 3}`), "modulus", "exp"); err != nil {
		t.Errorf("custom field names failed: %v", err)
	}
}

func TestParseCiphertext(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04}

	c, err := ParseCiphertext(raw, 4)
	if err != nil {
		t.Fatalf("Failed to parse raw ciphertext: %v", err)
	}
	if c.Int64() != 0x01020304 {
		t.Errorf("raw ciphertext = %x", c)
	}

	c, err = ParseCiphertext([]byte("0x1020304\n"), 4)
	if err != nil {
		t.Fatalf("Failed to parse hex ciphertext: %v", err)
	}
	if c.Int64() != 0x01020304 {
		t.Errorf("hex ciphertext = %x", c)
	}

	if _, err := ParseCiphertext([]byte("zz"), 4); err == nil {
		t.Error("expected an error for garbage input")
	}
	if _, err := ParseCiphertext([]byte("0102030405"), 4); err == nil {
		t.Error("expected an error for an oversized ciphertext")
	}
}

func TestParseBigInt(t *testing.T) {
	big1, _ := new(big.Int).SetString("123456789012345678901234567890", 16)

	cases := []struct {
		in   interface{}
		want *big.Int
	}{
		{"42", big.NewInt(42)},
		{"0x2a", big.NewInt(42)},
		{"ff", big.NewInt(255)},
		{json.Number("65537"), big.NewInt(65537)},
		{int64(7), big.NewInt(7)},
		{7, big.NewInt(7)},
		{float64(3), big.NewInt(3)},
		{"123456789012345678901234567890", big1},
	}

	for _, c := range cases {
		got, err := ParseBigInt(c.in)
		if err != nil {
			t.Errorf("ParseBigInt(%v) failed: %v", c.in, err)
			continue
		}
		if got.Cmp(c.want) != 0 {
			t.Errorf("ParseBigInt(%v) = %s, want %s", c.in, got, c.want)
		}
	}

	if _, err := ParseBigInt([]int{1}); err == nil {
		t.Error("expected an error for an unsupported type")
	}
}
