package padoracle

import (
	"context"
	"fmt"
	"math/big"
)

// Attack defines the interface of a plaintext recovery attack. Implement it
// to plug a custom attack into a Client.
type Attack interface {
	// Recover returns the plaintext of ciphertext under key, using oracle
	// to ask questions about chosen ciphertexts. The context can be used
	// for cancellation.
	Recover(ctx context.Context, key *PublicKey, ciphertext *big.Int, oracle *Ensemble) (*RecoveryResult, error)

	// Name returns a human-readable name for this attack.
	Name() string
}

// Client wires a key parser, an attack and a set of oracles together.
type Client struct {
	attack Attack
	parser KeyParser
}

// NewClient creates a client running the Bleichenbacher attack on raw key
// files.
func NewClient() *Client {
	return &Client{
		attack: NewBleichenbacherAttack(),
		parser: &RawKeyParser{},
	}
}

// WithAttack sets the attack to run.
func (c *Client) WithAttack(attack Attack) *Client {
	c.attack = attack
	return c
}

// WithKeyParser sets the parser used for key files.
func (c *Client) WithKeyParser(parser KeyParser) *Client {
	c.parser = parser
	return c
}

// Attack returns the configured attack.
func (c *Client) Attack() Attack {
	return c.attack
}

// Recover loads the public key from keyFile and attacks ciphertext (k
// big-endian bytes, or nil for the canonical 00 01 01 ... block).
func (c *Client) Recover(ctx context.Context, keyFile string, ciphertext []byte, oracles ...Oracle) (*RecoveryResult, error) {
	key, err := c.parser.ParseKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	return c.RecoverWithKey(ctx, key, ciphertext, oracles...)
}

// RecoverWithKey attacks ciphertext under an already parsed key.
func (c *Client) RecoverWithKey(ctx context.Context, key *PublicKey, ciphertext []byte, oracles ...Oracle) (*RecoveryResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if ciphertext == nil {
		ciphertext = DefaultCiphertext(key.Size())
	}
	if len(ciphertext) > key.Size() {
		return nil, fmt.Errorf("ciphertext has %d bytes, modulus has %d", len(ciphertext), key.Size())
	}

	ens, err := NewEnsemble(oracles...)
	if err != nil {
		return nil, err
	}
	defer ens.Close()

	result, err := c.attack.Recover(ctx, key, new(big.Int).SetBytes(ciphertext), ens)
	if err != nil {
		return nil, fmt.Errorf("%s attack failed: %w", c.attack.Name(), err)
	}
	return result, nil
}
