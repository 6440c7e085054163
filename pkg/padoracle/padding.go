package padoracle

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Block types of a PKCS#1 v1.5 encryption block (RFC 2313).
const (
	BlockTypeZero    = 0x00
	BlockTypeFF      = 0x01
	BlockTypePublic  = 0x02
	minPaddingLength = 8
)

// ParsePKCS1v15Block returns the data carried by an RFC 2313 encryption
// block 00 || BT || PS || 00 || D.
//
// BT 0 requires the byte after BT to be zero and strips leading zeros from
// the data. BT 1 requires PS to be all 0xFF. BT 2 accepts any non-zero PS.
func ParsePKCS1v15Block(eb []byte) ([]byte, error) {
	if len(eb) < 3 || eb[0] != 0x00 {
		return nil, fmt.Errorf("%w: block does not start with 00", ErrInvalidPadding)
	}

	sep := bytes.IndexByte(eb[2:], 0x00)
	if sep < 0 {
		return nil, fmt.Errorf("%w: no zero separator", ErrInvalidPadding)
	}
	sep += 2

	switch eb[1] {
	case BlockTypeZero:
		if sep != 2 {
			return nil, fmt.Errorf("%w: block type 0 must be followed by a zero", ErrInvalidPadding)
		}
		return bytes.TrimLeft(eb[3:], "\x00"), nil
	case BlockTypeFF:
		for _, b := range eb[2:sep] {
			if b != 0xFF {
				return nil, fmt.Errorf("%w: block type 1 padding is not all FF", ErrInvalidPadding)
			}
		}
		return eb[sep+1:], nil
	case BlockTypePublic:
		return eb[sep+1:], nil
	default:
		return nil, fmt.Errorf("%w: unknown block type %d", ErrInvalidPadding, eb[1])
	}
}

// EncodePKCS1v15Block builds a block type 2 encryption block of k bytes
// around data, drawing the padding from random.
func EncodePKCS1v15Block(random io.Reader, data []byte, k int) ([]byte, error) {
	if len(data) > k-3-minPaddingLength {
		return nil, fmt.Errorf("message of %d bytes too long for a %d-byte block", len(data), k)
	}

	eb := make([]byte, k)
	eb[1] = BlockTypePublic
	ps := eb[2 : k-len(data)-1]
	if _, err := io.ReadFull(random, ps); err != nil {
		return nil, fmt.Errorf("failed to read padding: %w", err)
	}
	for i := range ps {
		for ps[i] == 0 {
			if _, err := io.ReadFull(random, ps[i:i+1]); err != nil {
				return nil, fmt.Errorf("failed to read padding: %w", err)
			}
		}
	}
	copy(eb[k-len(data):], data)
	return eb, nil
}

var hashes = map[string]func() hash.Hash{
	"sha1":     sha1.New,
	"sha256":   sha256.New,
	"sha512":   sha512.New,
	"sha3-256": sha3.New256,
	"sha3-512": sha3.New512,
}

// HashByName returns the constructor of an OAEP hash: sha1, sha256, sha512,
// sha3-256 or sha3-512.
func HashByName(name string) (func() hash.Hash, error) {
	h, ok := hashes[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown hash %q (supported: %s)", name, strings.Join(HashNames(), ", "))
	}
	return h, nil
}

// HashNames lists the names HashByName accepts.
func HashNames() []string {
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeOAEP removes RSAES-OAEP padding (RFC 8017, MGF1 with the same hash)
// from the k-byte block em.
func DecodeOAEP(em []byte, h hash.Hash, label []byte) ([]byte, error) {
	hLen := h.Size()
	k := len(em)
	if k < 2*hLen+2 {
		return nil, fmt.Errorf("%w: block of %d bytes too short for OAEP", ErrInvalidPadding, k)
	}

	h.Reset()
	h.Write(label)
	lHash := h.Sum(nil)

	seed := append([]byte(nil), em[1:1+hLen]...)
	db := append([]byte(nil), em[1+hLen:]...)

	mgf1XOR(seed, h, db)
	mgf1XOR(db, h, seed)

	if em[0] != 0 {
		return nil, fmt.Errorf("%w: first byte is not zero", ErrInvalidPadding)
	}
	if subtle.ConstantTimeCompare(db[:hLen], lHash) != 1 {
		return nil, fmt.Errorf("%w: label hash mismatch", ErrInvalidPadding)
	}

	rest := db[hLen:]
	i := 0
	for i < len(rest) && rest[i] == 0 {
		i++
	}
	if i == len(rest) || rest[i] != 0x01 {
		return nil, fmt.Errorf("%w: missing 01 separator", ErrInvalidPadding)
	}
	return rest[i+1:], nil
}

// mgf1XOR XORs out with MGF1(seed) using h.
func mgf1XOR(out []byte, h hash.Hash, seed []byte) {
	var counter [4]byte
	var digest []byte

	done := 0
	for done < len(out) {
		h.Reset()
		h.Write(seed)
		h.Write(counter[:])
		digest = h.Sum(digest[:0])

		for i := 0; i < len(digest) && done < len(out); i++ {
			out[done] ^= digest[i]
			done++
		}

		for i := 3; i >= 0; i-- {
			counter[i]++
			if counter[i] != 0 {
				break
			}
		}
	}
}
