package session

import (
	"errors"
	"net"
	"testing"

	"github.com/fedepagnotta/lottery-server/internal/protocol"
)

func TestTransportSendAllRecvExact(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	st := NewTransport(server)
	done := make(chan error, 1)
	go func() { done <- st.SendAll([]byte("hello")) }()

	buf := make([]byte, 5)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 5 || string(buf) != "hello" {
		t.Fatalf("read = %q, want %q", buf[:n], "hello")
	}
	if err := <-done; err != nil {
		t.Fatalf("SendAll: %v", err)
	}
}

func TestTransportRecvMessageBatch(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	st := NewTransport(server)
	bets := []protocol.Bet{{Agency: "1", FirstName: "Ana", LastName: "P", Document: "1", Birthdate: "2000-01-01", Number: "1"}}
	wire, err := protocol.EncodeBetBatch(protocol.BetBatch{Bets: bets})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	go func() { _, _ = client.Write(wire) }()

	kind, payload, err := st.RecvMessage()
	if err != nil {
		t.Fatalf("RecvMessage: %v", err)
	}
	if kind != protocol.KindBetBatch {
		t.Fatalf("kind = %v, want BetBatch", kind)
	}
	batch, ok := payload.(protocol.BetBatch)
	if !ok {
		t.Fatalf("payload type = %T, want BetBatch", payload)
	}
	if len(batch.Bets) != 1 || batch.Bets[0].Document != "1" {
		t.Fatalf("batch = %+v", batch)
	}
}

func TestTransportRecvMessageUnexpectedKindIsWrapped(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	st := NewTransport(server)
	go func() { _, _ = client.Write([]byte{byte(protocol.KindWinners), 0}) }()

	_, _, err := st.RecvMessage()
	if err == nil {
		t.Fatal("expected error for server-to-client kind received as client message")
	}
	var mre *MessageReceptionError
	if !errors.As(err, &mre) {
		t.Fatalf("error = %v (%T), want *MessageReceptionError", err, err)
	}
}

func TestTransportRecvMessagePeerClosedIsConnectionClosed(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	st := NewTransport(server)
	client.Close()

	_, _, err := st.RecvMessage()
	if err != ErrConnectionClosed {
		t.Fatalf("err = %v, want ErrConnectionClosed", err)
	}
}
