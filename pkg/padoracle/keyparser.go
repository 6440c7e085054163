package padoracle

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/mahdiidarabi/rsa-oracle/internal/parser"
)

// KeyParser defines the interface for loading the attacked public key from
// various sources.
type KeyParser interface {
	// ParseKey parses a public key from a source (usually a file path).
	ParseKey(source string) (*PublicKey, error)
}

// RawKeyParser parses the raw format written by the challenge tooling: n
// then e, each as a big-endian integer of k bytes.
type RawKeyParser struct {
	Bits int // Modulus length in bits (0 = half the file length)
}

// ParseKey parses a raw public key file.
func (p *RawKeyParser) ParseKey(path string) (*PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	raw, err := parser.ParseRawPublicKey(data, p.Bits/8)
	if err != nil {
		return nil, fmt.Errorf("failed to parse raw key: %w", err)
	}
	return &PublicKey{N: raw.N, E: raw.E}, nil
}

// PEMKeyParser parses PEM files holding a PKIX or PKCS#1 public key, a
// PKCS#1 or PKCS#8 private key, or a certificate.
type PEMKeyParser struct{}

// ParseKey parses the first PEM block of a file.
func (p *PEMKeyParser) ParseKey(path string) (*PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParsePEMPublicKey(data)
}

// ParsePEMPublicKey extracts the RSA public key of the first PEM block in
// data.
func ParsePEMPublicKey(data []byte) (*PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidKey)
	}

	var key interface{}
	var err error
	switch block.Type {
	case "PUBLIC KEY":
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "CERTIFICATE":
		var cert *x509.Certificate
		cert, err = x509.ParseCertificate(block.Bytes)
		if err == nil {
			key = cert.PublicKey
		}
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block %q", ErrInvalidKey, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", strings.ToLower(block.Type), err)
	}

	switch k := key.(type) {
	case *rsa.PublicKey:
		return NewPublicKey(k), nil
	case *rsa.PrivateKey:
		return NewPublicKey(&k.PublicKey), nil
	default:
		return nil, fmt.Errorf("%w: %T is not an RSA key", ErrInvalidKey, key)
	}
}

// JSONKeyParser parses keys from JSON files.
type JSONKeyParser struct {
	NField string // Field name for the modulus (default: "n")
	EField string // Field name for the exponent (default: "e")
}

// ParseKey parses a JSON public key file.
//
// Expected format:
//
//	{"n": "0xc0ffee...", "e": 65537}
func (p *JSONKeyParser) ParseKey(path string) (*PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	raw, err := parser.ParseJSONPublicKey(data, p.NField, p.EField)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON key: %w", err)
	}
	return &PublicKey{N: raw.N, E: raw.E}, nil
}

// ParserFor returns the parser matching format ("raw", "pem" or "json").
// An empty format is guessed from the file extension.
func ParserFor(format, path string, bits int) (KeyParser, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pem", ".crt", ".pub":
			format = "pem"
		case ".json":
			format = "json"
		default:
			format = "raw"
		}
	}

	switch strings.ToLower(format) {
	case "raw":
		return &RawKeyParser{Bits: bits}, nil
	case "pem":
		return &PEMKeyParser{}, nil
	case "json":
		return &JSONKeyParser{}, nil
	default:
		return nil, fmt.Errorf("unknown key format %q", format)
	}
}

// LoadCiphertext reads a ciphertext file holding either k raw bytes or a
// hex string.
func LoadCiphertext(path string, k int) (*big.Int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	c, err := parser.ParseCiphertext(data, k)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ciphertext: %w", err)
	}
	return c, nil
}

// ParseKeyFromFile parses a public key with the parser ParserFor picks.
func ParseKeyFromFile(path, format string, bits int) (*PublicKey, error) {
	p, err := ParserFor(format, path, bits)
	if err != nil {
		return nil, err
	}
	return p.ParseKey(path)
}
