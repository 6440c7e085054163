// Package wire implements the framing spoken by the reference oracle
// servers: a TLS-like handshake followed by PSK-RSA client key exchange
// messages answered with alerts, and the one-shot "intro" protocol.
package wire

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// RecordHandshake is the record type of handshake messages.
	RecordHandshake = 0x16
	// RecordAlert is the record type of alert messages.
	RecordAlert = 0x15
	// Version is TLS 1.2.
	Version = 0x0303

	// HandshakeClientKeyExchange is the handshake type of the query message.
	HandshakeClientKeyExchange = 0x10
	// HandshakeServerHelloDone terminates the server's handshake flight.
	HandshakeServerHelloDone = 0x0E

	// AlertLevelFatal is the only alert level the server sends.
	AlertLevelFatal = 0x02
	// DescriptionInvalidPadding is sent when the PMS does not decrypt to a
	// conforming block.
	DescriptionInvalidPadding = 91
	// DescriptionValidPadding is what the reference server sends otherwise.
	DescriptionValidPadding = 92
)

// DefaultIdentity is the PSK identity sent with every key exchange.
var DefaultIdentity = []byte("Client_identity")

// clientHello is the fixed hello sent right after connecting.
var clientHello = mustDecodeHex("16030300610100005d030362ac2c12d90b74d84a688188a36a11df1455920891da9ab4cfc2cfb8f0ba0a7d00000400b600ff010000300000000e000c0000096c6f63616c686f7374000d000e000c060306010503050104030401001600000017000000230000")

// ClientHelloLen is the length of the handshake preamble.
const ClientHelloLen = 102

var (
	// ErrMalformed is wrapped by every framing error on the response path.
	ErrMalformed = errors.New("malformed response")

	errUnexpectedType   = fmt.Errorf("%w: unexpected record type", ErrMalformed)
	errUnexpectedLength = fmt.Errorf("%w: unexpected alert length", ErrMalformed)
	errUnexpectedLevel  = fmt.Errorf("%w: unexpected alert level", ErrMalformed)
)

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// ClientHello returns a copy of the handshake preamble.
func ClientHello() []byte {
	out := make([]byte, len(clientHello))
	copy(out, clientHello)
	return out
}

// BuildKeyExchange frames content (the encrypted PMS) as a client key
// exchange record. A nil identity means DefaultIdentity.
func BuildKeyExchange(content, identity []byte) []byte {
	if identity == nil {
		identity = DefaultIdentity
	}
	paramsLen := 4 + len(identity) + len(content)

	msg := make([]byte, 0, 5+4+paramsLen)
	msg = append(msg, RecordHandshake)
	msg = binary.BigEndian.AppendUint16(msg, Version)
	msg = binary.BigEndian.AppendUint16(msg, uint16(paramsLen+4))
	msg = append(msg, HandshakeClientKeyExchange, 0)
	msg = binary.BigEndian.AppendUint16(msg, uint16(paramsLen))
	msg = binary.BigEndian.AppendUint16(msg, uint16(len(identity)))
	msg = append(msg, identity...)
	msg = binary.BigEndian.AppendUint16(msg, uint16(len(content)))
	msg = append(msg, content...)
	return msg
}

// ParseKeyExchange is the inverse of BuildKeyExchange. It reads one record
// from r and returns the identity and content it carries.
func ParseKeyExchange(r io.Reader) (identity, content []byte, err error) {
	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, nil, err
	}
	if hdr[0] != RecordHandshake || binary.BigEndian.Uint16(hdr[1:3]) != Version || hdr[5] != HandshakeClientKeyExchange {
		return nil, nil, fmt.Errorf("%w: not a client key exchange", ErrMalformed)
	}
	recordLen := int(binary.BigEndian.Uint16(hdr[3:5]))
	paramsLen := int(hdr[6])<<16 | int(binary.BigEndian.Uint16(hdr[7:9]))
	if paramsLen != recordLen-4 || paramsLen < 4 {
		return nil, nil, fmt.Errorf("%w: invalid params length %d", ErrMalformed, paramsLen)
	}

	params := make([]byte, paramsLen)
	if _, err := io.ReadFull(r, params); err != nil {
		return nil, nil, err
	}
	identLen := int(binary.BigEndian.Uint16(params[0:2]))
	if 2+identLen+2 > paramsLen {
		return nil, nil, fmt.Errorf("%w: invalid identity length %d", ErrMalformed, identLen)
	}
	identity = params[2 : 2+identLen]
	rest := params[2+identLen:]
	contentLen := int(binary.BigEndian.Uint16(rest[0:2]))
	if contentLen != len(rest)-2 {
		return nil, nil, fmt.Errorf("%w: invalid content length %d", ErrMalformed, contentLen)
	}
	return identity, rest[2:], nil
}

// RecordHeader is the (type, version, length, subtype) prefix of every
// record in the server's handshake flight.
type RecordHeader struct {
	Type    byte
	Version uint16
	Length  uint16
	Subtype byte
}

// ReadServerHello consumes the server's handshake flight up to and including
// the ServerHelloDone message and returns the number of records read.
func ReadServerHello(r io.Reader) (int, error) {
	var raw [6]byte
	for records := 1; ; records++ {
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return records - 1, fmt.Errorf("failed to read record header: %w", err)
		}
		hdr := RecordHeader{
			Type:    raw[0],
			Version: binary.BigEndian.Uint16(raw[1:3]),
			Length:  binary.BigEndian.Uint16(raw[3:5]),
			Subtype: raw[5],
		}
		if hdr.Length == 0 {
			return records, fmt.Errorf("%w: empty handshake record", ErrMalformed)
		}
		if _, err := io.CopyN(io.Discard, r, int64(hdr.Length)-1); err != nil {
			return records, fmt.Errorf("failed to skip record body: %w", err)
		}
		if hdr.Subtype == HandshakeServerHelloDone {
			return records, nil
		}
	}
}

// BuildHandshakeRecord frames one handshake message of the given subtype.
// The reference server flight (ServerHello ... ServerHelloDone) is built
// from these.
func BuildHandshakeRecord(subtype byte, body []byte) []byte {
	msg := make([]byte, 0, 6+len(body))
	msg = append(msg, RecordHandshake)
	msg = binary.BigEndian.AppendUint16(msg, Version)
	msg = binary.BigEndian.AppendUint16(msg, uint16(len(body)+1))
	msg = append(msg, subtype)
	return append(msg, body...)
}

// Alert is the server's answer to a key exchange.
type Alert struct {
	Level       byte
	Description byte
}

// InvalidPadding reports whether the alert signals a non-conforming PMS.
func (a Alert) InvalidPadding() bool {
	return a.Description == DescriptionInvalidPadding
}

// BuildAlert frames an alert record.
func BuildAlert(level, description byte) []byte {
	return []byte{RecordAlert, Version >> 8, Version & 0xff, 0x00, 0x02, level, description}
}

// ReadAlert reads the server's answer to a key exchange. io.EOF or a
// timeout error from r is returned unchanged when no byte arrived.
func ReadAlert(r io.Reader) (Alert, error) {
	var typ [1]byte
	if _, err := io.ReadFull(r, typ[:]); err != nil {
		return Alert{}, err
	}
	if typ[0] != RecordAlert {
		return Alert{}, errUnexpectedType
	}

	var rest [4]byte
	if _, err := io.ReadFull(r, rest[:]); err != nil {
		return Alert{}, fmt.Errorf("%w: truncated alert header: %v", ErrMalformed, err)
	}
	if binary.BigEndian.Uint16(rest[2:4]) != 0x0002 {
		return Alert{}, errUnexpectedLength
	}

	var body [2]byte
	if _, err := io.ReadFull(r, body[:]); err != nil {
		return Alert{}, fmt.Errorf("%w: truncated alert body: %v", ErrMalformed, err)
	}
	if body[0] != AlertLevelFatal {
		return Alert{}, errUnexpectedLevel
	}
	return Alert{Level: body[0], Description: body[1]}, nil
}

// BuildIntroQuery frames a ciphertext for the intro server: a 2-byte
// big-endian length followed by the ciphertext.
func BuildIntroQuery(content []byte) []byte {
	msg := make([]byte, 0, 2+len(content))
	msg = binary.BigEndian.AppendUint16(msg, uint16(len(content)))
	return append(msg, content...)
}

// ReadIntroAnswer reads the single answer byte of the intro server.
func ReadIntroAnswer(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: intro answer %d", ErrMalformed, b[0])
	}
}

// ReadIntroQuery is the server side of BuildIntroQuery.
func ReadIntroQuery(r io.Reader, maxLen int) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if n == 0 || n > maxLen {
		return nil, fmt.Errorf("%w: invalid length %d", ErrMalformed, n)
	}
	content := make([]byte, n)
	if _, err := io.ReadFull(r, content); err != nil {
		return nil, err
	}
	return content, nil
}
