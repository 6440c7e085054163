package padoracle

import (
	"crypto/rand"
	"io"
	"os"
	"time"
)

// AttackConfig configures the attacks.
type AttackConfig struct {
	// BruteForceThreshold stops the Bleichenbacher narrowing once a single
	// interval of at most this width remains and tries every candidate in
	// it. 0 narrows down to a single point; negative values are rejected.
	BruteForceThreshold int64

	// Verbosity is 0 for phase lines only, 1 to add per-round progress and
	// warnings, 2 to dump the interval set every round.
	Verbosity int

	// Output receives the progress lines (default: os.Stdout)
	Output io.Writer

	// Rand is the source of blinding factors (default: crypto/rand)
	Rand io.Reader

	// NeighbourSearch bounds the ±d search the half attack runs when the
	// reconstructed value does not re-encrypt to the ciphertext.
	NeighbourSearch int
}

// DefaultAttackConfig returns a sensible default configuration.
func DefaultAttackConfig() AttackConfig {
	return AttackConfig{
		BruteForceThreshold: 0,
		Verbosity:           0,
		Output:              os.Stdout,
		Rand:                rand.Reader,
		NeighbourSearch:     500,
	}
}

func (c AttackConfig) output() io.Writer {
	if c.Output == nil {
		return os.Stdout
	}
	return c.Output
}

func (c AttackConfig) random() io.Reader {
	if c.Rand == nil {
		return rand.Reader
	}
	return c.Rand
}

// TransportConfig configures the remote oracles.
type TransportConfig struct {
	// Timeout bounds every read from the server. A query whose answer does
	// not arrive in time is answered false.
	Timeout time.Duration

	// DialTimeout bounds connecting to the server.
	DialTimeout time.Duration

	// Identity is the PSK identity sent with every key exchange
	// (default: "Client_identity")
	Identity []byte
}

// DefaultTransportConfig returns the settings the reference servers expect.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Timeout:     time.Second,
		DialTimeout: 5 * time.Second,
	}
}
