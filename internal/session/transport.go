// Package session implements the per-connection transport and state
// machine driving one agency's interaction with the server: recv_exact /
// send_all framing on top of the protocol codec, and the RUNNING -> DRAWN
// -> CLOSED handler that coordinates with peers via the draw barrier.
package session

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/fedepagnotta/lottery-server/internal/protocol"
)

// ErrConnectionClosed indicates the peer closed the connection mid-frame.
var ErrConnectionClosed = errors.New("session: connection closed by peer")

// MessageReceptionError wraps any codec or I/O failure encountered while
// receiving a message, including an unknown kind tag. A peer that closes the
// connection is reported as ErrConnectionClosed instead.
type MessageReceptionError struct {
	Err error
}

func (e *MessageReceptionError) Error() string {
	return fmt.Sprintf("message reception failed: %v", e.Err)
}

func (e *MessageReceptionError) Unwrap() error { return e.Err }

// Transport owns one accepted connection. It exposes recv_exact/send_all
// framing and the per-kind message surface the handler drives; it closes
// the socket when the session ends.
type Transport struct {
	conn net.Conn
}

// NewTransport wraps an accepted connection.
func NewTransport(conn net.Conn) *Transport { return &Transport{conn: conn} }

// RemoteAddr returns the peer's address, for logging.
func (t *Transport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

// Close closes the underlying connection.
func (t *Transport) Close() error { return t.conn.Close() }

// RecvExact reads exactly n bytes, looping over short reads, or fails with
// ErrConnectionClosed if the peer closes before n bytes arrive.
func (t *Transport) RecvExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, wrapIOErr(err)
	}
	return buf, nil
}

// SendAll writes the full buffer, looping over short writes, or fails.
func (t *Transport) SendAll(b []byte) error {
	for len(b) > 0 {
		n, err := t.conn.Write(b)
		if err != nil {
			return wrapIOErr(err)
		}
		b = b[n:]
	}
	return nil
}

func wrapIOErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrConnectionClosed
	}
	return err
}

// kindUnread is returned by RecvMessage when no valid kind tag was read. It
// is not a wire kind, so it never compares equal to KindBetBatch (which is 0).
const kindUnread protocol.Kind = 0xFF

// RecvMessage reads the 1-byte kind tag and dispatches to the codec for the
// rest. It returns the kind alongside any error so callers can tell whether
// a partially-decoded message was attempting a BET_BATCH (the decoded kind is
// returned even when the body failed to decode; kindUnread is returned when
// the tag itself could not be read or is unknown).
func (t *Transport) RecvMessage() (protocol.Kind, any, error) {
	kind, err := protocol.DecodeKind(t.conn)
	if err != nil {
		return kindUnread, nil, wrapRecvErr(err)
	}
	switch kind {
	case protocol.KindBetBatch:
		batch, err := protocol.DecodeBetBatch(t.conn)
		if err != nil {
			return kind, nil, wrapRecvErr(err)
		}
		return kind, batch, nil
	case protocol.KindFinalization:
		f, err := protocol.DecodeFinalization(t.conn)
		if err != nil {
			return kind, nil, wrapRecvErr(err)
		}
		return kind, f, nil
	case protocol.KindGetWinners:
		g, err := protocol.DecodeGetWinners(t.conn)
		if err != nil {
			return kind, nil, wrapRecvErr(err)
		}
		return kind, g, nil
	default:
		return kind, nil, &MessageReceptionError{Err: fmt.Errorf("unexpected client-to-server kind %s", kind)}
	}
}

func wrapRecvErr(err error) error {
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrConnectionClosed
	}
	return &MessageReceptionError{Err: err}
}

// SendBatchSuccess replies BATCH_CONFIRMATION(success=1).
func (t *Transport) SendBatchSuccess() error {
	return t.SendAll(protocol.EncodeBatchConfirmation(protocol.BatchConfirmation{Success: true}))
}

// SendBatchFailure replies BATCH_CONFIRMATION(success=0).
func (t *Transport) SendBatchFailure() error {
	return t.SendAll(protocol.EncodeBatchConfirmation(protocol.BatchConfirmation{Success: false}))
}

// SendNoWinnersYet replies NO_WINNERS_YET (legacy poll-fallback path only).
func (t *Transport) SendNoWinnersYet() error {
	return t.SendAll(protocol.EncodeNoWinnersYet())
}

// SendWinners replies WINNERS with the given documents.
func (t *Transport) SendWinners(documents []string) error {
	wire, err := protocol.EncodeWinners(protocol.Winners{Documents: documents})
	if err != nil {
		return err
	}
	return t.SendAll(wire)
}
