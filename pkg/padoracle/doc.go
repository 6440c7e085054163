// Package padoracle recovers RSA plaintexts from one-bit decryption oracles.
//
// It implements Bleichenbacher's attack on PKCS#1 v1.5 encryption, Manger's
// attack on RSAES-OAEP and the "half" attack on an oracle that reveals
// whether a plaintext lies above n/2. None of them needs the private key:
// every question is a ciphertext of the form c·s^e mod n sent to an Oracle.
//
// # Quick Start
//
//	import "github.com/mahdiidarabi/rsa-oracle/pkg/padoracle"
//
//	cfg := padoracle.DefaultTransportConfig()
//	oracles := []padoracle.Oracle{
//	    padoracle.NewTLSOracle("10.0.0.1:4433", cfg),
//	    padoracle.NewTLSOracle("10.0.0.1:4434", cfg),
//	}
//
//	client := padoracle.NewClient()
//	result, err := client.Recover(ctx, "pubkey.bin", ciphertext, oracles...)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Recovered block: %x\n", result.Plaintext)
//
// # Oracles
//
// Remote oracles speak the wire protocol of the challenge servers
// (TLSOracle, IntroOracle). Local oracles wrap a private key and are meant
// for tests and experiments (PKCS1v15Oracle, OAEPThresholdOracle,
// HalfOracle). Any function can be used through OracleFunc.
//
// Oracles are grouped in an Ensemble. Each oracle gets its own worker, so
// a batch of n candidates costs one round-trip when n servers answer in
// parallel, and the smallest conforming candidate always wins regardless
// of which server answers first.
//
// # Custom Attacks
//
// Implement the Attack interface to plug in another attack:
//
//	type MyAttack struct{}
//
//	func (a *MyAttack) Recover(ctx context.Context, key *padoracle.PublicKey, c *big.Int, oracle *padoracle.Ensemble) (*padoracle.RecoveryResult, error) {
//	    // Your attack
//	}
//
//	func (a *MyAttack) Name() string {
//	    return "MyAttack"
//	}
//
//	client := padoracle.NewClient().WithAttack(&MyAttack{})
package padoracle
