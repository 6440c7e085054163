package padoracle

import "context"

// Oracle answers a single yes/no question about the decryption of content,
// a k-byte big-endian ciphertext. What the answer means depends on the
// attack the oracle serves: PKCS#1 v1.5 conformance for Bleichenbacher,
// "decrypts below B" for Manger, "decrypts above n/2" for the half attack.
//
// An Oracle is used by a single goroutine at a time. Ensembles give every
// oracle its own worker, so implementations may keep per-connection state
// without locking.
type Oracle interface {
	Query(ctx context.Context, content []byte) (bool, error)
}

// OracleFunc adapts an ordinary function to the Oracle interface.
type OracleFunc func(ctx context.Context, content []byte) (bool, error)

// Query calls f(ctx, content).
func (f OracleFunc) Query(ctx context.Context, content []byte) (bool, error) {
	return f(ctx, content)
}
