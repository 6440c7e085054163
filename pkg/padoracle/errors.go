package padoracle

import (
	"errors"

	"github.com/mahdiidarabi/rsa-oracle/internal/arith"
	"github.com/mahdiidarabi/rsa-oracle/internal/wire"
)

var (
	// ErrNoInverse is returned when the blinding factor is not coprime to the
	// modulus.
	ErrNoInverse = arith.ErrNoInverse

	// ErrOracleUnavailable is returned when no oracle of an ensemble could be
	// reached.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrVerificationFailed is returned when the recovered candidate does not
	// re-encrypt to the attacked ciphertext.
	ErrVerificationFailed = errors.New("recovered plaintext does not re-encrypt to the ciphertext")

	// ErrMalformedResponse is returned by remote oracles for answers that do
	// not follow the wire protocol.
	ErrMalformedResponse = wire.ErrMalformed

	// ErrInconsistentOracle is returned when the oracle's answers contradict
	// each other, leaving no candidate plaintext.
	ErrInconsistentOracle = errors.New("oracle answers are inconsistent")

	// ErrUnsupportedModulus is returned when the modulus is too small for the
	// attack's bound B.
	ErrUnsupportedModulus = errors.New("unsupported modulus size")

	// ErrInvalidKey is returned for public keys that cannot be attacked.
	ErrInvalidKey = errors.New("invalid public key")

	// ErrInvalidQuery is returned by local oracles for content that is not a
	// k-byte ciphertext below the modulus.
	ErrInvalidQuery = errors.New("invalid oracle query")

	// ErrInvalidPadding is returned by the padding decoders.
	ErrInvalidPadding = errors.New("invalid padding")
)
