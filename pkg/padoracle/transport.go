package padoracle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/mahdiidarabi/rsa-oracle/internal/wire"
)

// TLSOracle queries a server speaking the TLS-like PSK-RSA protocol. It
// keeps one connection open across queries: after the hello exchange every
// query is a client key exchange answered by an alert, and alert 91 means
// the content did not decrypt to a conforming block.
type TLSOracle struct {
	addr   string
	cfg    TransportConfig
	dialer net.Dialer

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewTLSOracle returns an oracle for the server at addr ("host:port"). The
// connection is opened by the first query.
func NewTLSOracle(addr string, cfg TransportConfig) *TLSOracle {
	return &TLSOracle{
		addr:   addr,
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Addr returns the server address.
func (o *TLSOracle) Addr() string {
	return o.addr
}

// Query implements Oracle.
//
// A read timeout is answered false and the connection is reset. A response
// that does not follow the protocol is answered false with an error
// wrapping ErrMalformedResponse. A broken connection is re-established
// once; if that fails too the error wraps ErrOracleUnavailable.
func (o *TLSOracle) Query(ctx context.Context, content []byte) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if o.conn == nil {
			if err := o.connect(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		answer, err := o.exchange(ctx, content)
		switch {
		case err == nil:
			return answer, nil
		case ctx.Err() != nil:
			o.reset()
			return false, ctx.Err()
		case isTimeout(err):
			o.reset()
			return false, nil
		case errors.Is(err, wire.ErrMalformed):
			o.reset()
			return false, fmt.Errorf("%s: %w", o.addr, err)
		default:
			o.reset()
			lastErr = err
		}
	}
	return false, fmt.Errorf("%w: %s: %v", ErrOracleUnavailable, o.addr, lastErr)
}

// connect dials the server and runs the hello exchange.
func (o *TLSOracle) connect(ctx context.Context) error {
	conn, err := o.dialer.DialContext(ctx, "tcp", o.addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	stop := watchContext(ctx, conn)
	defer stop()

	if _, err := conn.Write(wire.ClientHello()); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send client hello: %w", err)
	}

	reader := bufio.NewReader(conn)
	if err := conn.SetReadDeadline(o.deadline(ctx)); err != nil {
		conn.Close()
		return err
	}
	if _, err := wire.ReadServerHello(reader); err != nil {
		conn.Close()
		return fmt.Errorf("failed to read server hello: %w", err)
	}

	o.conn, o.reader = conn, reader
	return nil
}

// exchange sends one key exchange and reads the alert.
func (o *TLSOracle) exchange(ctx context.Context, content []byte) (bool, error) {
	stop := watchContext(ctx, o.conn)
	defer stop()

	if err := o.conn.SetWriteDeadline(o.deadline(ctx)); err != nil {
		return false, err
	}
	if _, err := o.conn.Write(wire.BuildKeyExchange(content, o.cfg.Identity)); err != nil {
		return false, fmt.Errorf("failed to send key exchange: %w", err)
	}

	if err := o.conn.SetReadDeadline(o.deadline(ctx)); err != nil {
		return false, err
	}
	alert, err := wire.ReadAlert(o.reader)
	if err != nil {
		return false, err
	}
	return !alert.InvalidPadding(), nil
}

func (o *TLSOracle) deadline(ctx context.Context) time.Time {
	return deadline(ctx, o.cfg.Timeout)
}

// reset drops the connection. The next query reconnects.
func (o *TLSOracle) reset() {
	if o.conn != nil {
		o.conn.Close()
	}
	o.conn, o.reader = nil, nil
}

// Close closes the connection.
func (o *TLSOracle) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conn == nil {
		return nil
	}
	err := o.conn.Close()
	o.conn, o.reader = nil, nil
	return err
}

// IntroOracle queries the intro server, which answers one query per
// connection with a single byte: 1 when the plaintext is above n/2.
type IntroOracle struct {
	addr   string
	cfg    TransportConfig
	dialer net.Dialer
}

// NewIntroOracle returns an oracle for the intro server at addr.
func NewIntroOracle(addr string, cfg TransportConfig) *IntroOracle {
	return &IntroOracle{
		addr:   addr,
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Query implements Oracle with the same error mapping as TLSOracle.
func (o *IntroOracle) Query(ctx context.Context, content []byte) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		conn, err := o.dialer.DialContext(ctx, "tcp", o.addr)
		if err != nil {
			lastErr = fmt.Errorf("failed to connect: %w", err)
			continue
		}
		answer, err := o.roundTrip(ctx, conn, content)
		conn.Close()

		switch {
		case err == nil:
			return answer, nil
		case ctx.Err() != nil:
			return false, ctx.Err()
		case isTimeout(err):
			return false, nil
		case errors.Is(err, wire.ErrMalformed):
			return false, fmt.Errorf("%s: %w", o.addr, err)
		default:
			lastErr = err
		}
	}
	return false, fmt.Errorf("%w: %s: %v", ErrOracleUnavailable, o.addr, lastErr)
}

func (o *IntroOracle) roundTrip(ctx context.Context, conn net.Conn, content []byte) (bool, error) {
	stop := watchContext(ctx, conn)
	defer stop()

	if err := conn.SetDeadline(deadline(ctx, o.cfg.Timeout)); err != nil {
		return false, err
	}
	if _, err := conn.Write(wire.BuildIntroQuery(content)); err != nil {
		return false, fmt.Errorf("failed to send query: %w", err)
	}
	answer, err := wire.ReadIntroAnswer(conn)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return false, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
	}
	return answer, err
}

// deadline returns now+timeout, or the context deadline if it is earlier.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	if timeout <= 0 {
		timeout = DefaultTransportConfig().Timeout
	}
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

// watchContext unblocks I/O on conn when ctx is cancelled. The returned
// function must be called once the I/O is done.
func watchContext(ctx context.Context, conn net.Conn) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.SetDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()
	return func() { close(done) }
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
