// Package parser decodes RSA public key and ciphertext material from the
// raw and textual formats used by the challenge servers.
package parser

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// RawKey is an RSA public key as stored in a challenge key file.
type RawKey struct {
	N *big.Int // modulus
	E *big.Int // public exponent
}

// ParseRawPublicKey parses the fixed-width key file format: the modulus as a
// k-byte big-endian integer followed by the exponent as a k-byte big-endian
// integer. When k is 0 it is taken as half the input length.
func ParseRawPublicKey(data []byte, k int) (*RawKey, error) {
	if k <= 0 {
		if len(data) == 0 || len(data)%2 != 0 {
			return nil, fmt.Errorf("raw key has odd or zero length %d", len(data))
		}
		k = len(data) / 2
	}
	if len(data) != 2*k {
		return nil, fmt.Errorf("raw key must be %d bytes, got %d", 2*k, len(data))
	}

	return &RawKey{
		N: new(big.Int).SetBytes(data[:k]),
		E: new(big.Int).SetBytes(data[k:]),
	}, nil
}

// ParseJSONPublicKey parses {"n": ..., "e": ...} where both values are hex
// strings, decimal strings or JSON numbers.
//
// Expected format:
//
//	{"n": "0xc5a1...", "e": 65537}
func ParseJSONPublicKey(data []byte, nField, eField string) (*RawKey, error) {
	if nField == "" {
		nField = "n"
	}
	if eField == "" {
		eField = "e"
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber() // Preserve large numbers as json.Number instead of float64

	var item map[string]interface{}
	if err := decoder.Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	nVal, ok := item[nField]
	if !ok {
		return nil, fmt.Errorf("missing %s field", nField)
	}
	n, err := ParseBigInt(nVal)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", nField, err)
	}

	eVal, ok := item[eField]
	if !ok {
		return nil, fmt.Errorf("missing %s field", eField)
	}
	e, err := ParseBigInt(eVal)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", eField, err)
	}

	return &RawKey{N: n, E: e}, nil
}

// ParseCiphertext decodes a ciphertext file. Exactly k raw bytes are taken
// as the big-endian ciphertext; otherwise the content is read as a hex
// string (surrounding whitespace and a 0x prefix allowed).
func ParseCiphertext(data []byte, k int) (*big.Int, error) {
	if len(data) == k {
		return new(big.Int).SetBytes(data), nil
	}

	text := strings.TrimSpace(string(data))
	text = strings.TrimPrefix(text, "0x")
	text = strings.TrimPrefix(text, "0X")
	if len(text)%2 != 0 {
		text = "0" + text
	}
	raw, err := hex.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("ciphertext is neither %d raw bytes nor hex: %w", k, err)
	}
	if len(raw) > k {
		return nil, fmt.Errorf("ciphertext has %d bytes, modulus has %d", len(raw), k)
	}
	return new(big.Int).SetBytes(raw), nil
}

// ParseBigInt parses a big integer from various formats (hex string, decimal string, number).
func ParseBigInt(val interface{}) (*big.Int, error) {
	switch v := val.(type) {
	case string:
		s := strings.TrimSpace(v)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			z := new(big.Int)
			if _, ok := z.SetString(s[2:], 16); !ok {
				return nil, fmt.Errorf("invalid hex number: %s", v)
			}
			return z, nil
		}

		// Unprefixed strings with hex digits (or too long to be a plausible
		// decimal exponent) are hex.
		if strings.ContainsAny(s, "abcdefABCDEF") || len(s) > 20 {
			z := new(big.Int)
			if _, ok := z.SetString(s, 16); ok {
				return z, nil
			}
		}

		z := new(big.Int)
		if _, ok := z.SetString(s, 10); !ok {
			return nil, fmt.Errorf("invalid number format: %s", v)
		}
		return z, nil

	case json.Number:
		z := new(big.Int)
		if _, ok := z.SetString(string(v), 10); !ok {
			return nil, fmt.Errorf("invalid number format: %s", v)
		}
		return z, nil

	case float64:
		s := fmt.Sprintf("%.0f", v)
		z := new(big.Int)
		if _, ok := z.SetString(s, 10); !ok {
			return nil, fmt.Errorf("invalid number format: %v", v)
		}
		return z, nil

	case int64:
		return big.NewInt(v), nil

	case int:
		return big.NewInt(int64(v)), nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", val)
	}
}
