package server

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/fedepagnotta/lottery-server/internal/barrier"
	"github.com/fedepagnotta/lottery-server/internal/protocol"
	"github.com/fedepagnotta/lottery-server/internal/store"
)

func newTestServer(t *testing.T, numberOfClients int, barrierTimeout time.Duration, winningNumber string) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "bets.csv"), winningNumber)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	srv := New(
		WithListenAddr("127.0.0.1:0"),
		WithNumberOfClients(numberOfClients),
		WithAcceptPollInterval(50*time.Millisecond),
		WithStore(st),
		WithBarrier(barrier.New(numberOfClients, barrierTimeout)),
	)
	return srv
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	return conn
}

func sendBatch(t *testing.T, conn net.Conn, bets []protocol.Bet) {
	t.Helper()
	wire, err := protocol.EncodeBetBatch(protocol.BetBatch{Bets: bets})
	if err != nil {
		t.Fatalf("encode batch: %v", err)
	}
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	kind, err := protocol.DecodeKind(conn)
	if err != nil {
		t.Fatalf("decode confirmation kind: %v", err)
	}
	if kind != protocol.KindBatchConfirmation {
		t.Fatalf("kind = %v, want BatchConfirmation", kind)
	}
	conf, err := protocol.DecodeBatchConfirmation(conn)
	if err != nil {
		t.Fatalf("decode confirmation: %v", err)
	}
	if !conf.Success {
		t.Fatalf("batch rejected")
	}
}

func finalize(t *testing.T, conn net.Conn, agencyID string) {
	t.Helper()
	wire, err := protocol.EncodeFinalization(protocol.Finalization{AgencyID: agencyID})
	if err != nil {
		t.Fatalf("encode finalization: %v", err)
	}
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("write finalization: %v", err)
	}
}

func getWinners(t *testing.T, conn net.Conn, agencyID string) []string {
	t.Helper()
	wire, err := protocol.EncodeGetWinners(protocol.GetWinners{AgencyID: agencyID})
	if err != nil {
		t.Fatalf("encode get_winners: %v", err)
	}
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("write get_winners: %v", err)
	}
	kind, err := protocol.DecodeKind(conn)
	if err != nil {
		t.Fatalf("decode winners kind: %v", err)
	}
	if kind != protocol.KindWinners {
		t.Fatalf("kind = %v, want Winners", kind)
	}
	w, err := protocol.DecodeWinners(conn)
	if err != nil {
		t.Fatalf("decode winners: %v", err)
	}
	return w.Documents
}

func TestServerSingleAgencyWin(t *testing.T) {
	srv := newTestServer(t, 1, time.Second, "7574")
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	<-srv.Ready()

	conn := dial(t, srv.Addr())
	defer conn.Close()

	sendBatch(t, conn, []protocol.Bet{
		{Agency: "1", FirstName: "Ana", LastName: "P", Document: "111", Birthdate: "2000-01-01", Number: "7574"},
		{Agency: "1", FirstName: "Bob", LastName: "Q", Document: "222", Birthdate: "2000-01-02", Number: "1"},
	})
	finalize(t, conn, "1")
	winners := getWinners(t, conn, "1")
	if len(winners) != 1 || winners[0] != "111" {
		t.Fatalf("winners = %v, want [111]", winners)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after serving its single agency")
	}
}

func TestServerTwoAgenciesGatedDraw(t *testing.T) {
	srv := newTestServer(t, 2, time.Second, "7574")
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	<-srv.Ready()

	conn1 := dial(t, srv.Addr())
	defer conn1.Close()
	conn2 := dial(t, srv.Addr())
	defer conn2.Close()

	sendBatch(t, conn1, []protocol.Bet{{Agency: "1", FirstName: "Ana", LastName: "P", Document: "111", Birthdate: "2000-01-01", Number: "7574"}})
	sendBatch(t, conn2, []protocol.Bet{{Agency: "2", FirstName: "Cal", LastName: "R", Document: "333", Birthdate: "2000-01-03", Number: "7574"}})
	finalize(t, conn1, "1")
	finalize(t, conn2, "2")

	type result struct {
		winners []string
	}
	results := make(chan result, 2)
	go func() { results <- result{getWinners(t, conn1, "1")} }()
	go func() { results <- result{getWinners(t, conn2, "2")} }()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			for _, doc := range r.winners {
				seen[doc] = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("draw did not complete for both agencies")
		}
	}
	if !seen["111"] || !seen["333"] {
		t.Fatalf("expected both agencies to see their own winner, got %v", seen)
	}

	<-done
}

func TestServerBarrierTimeoutWhenPeerDisappears(t *testing.T) {
	srv := newTestServer(t, 2, 100*time.Millisecond, "7574")
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	<-srv.Ready()

	conn1 := dial(t, srv.Addr())
	defer conn1.Close()
	conn2 := dial(t, srv.Addr())

	finalize(t, conn1, "1")
	finalize(t, conn2, "2")
	conn2.Close()

	wire, err := protocol.EncodeGetWinners(protocol.GetWinners{AgencyID: "1"})
	if err != nil {
		t.Fatalf("encode get_winners: %v", err)
	}
	if _, err := conn1.Write(wire); err != nil {
		t.Fatalf("write get_winners: %v", err)
	}

	conn1.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	n, err := conn1.Read(buf)
	if n != 0 && err == nil {
		t.Fatalf("expected no WINNERS reply after peer vanished, got byte %d", buf[0])
	}

	<-done
}

func TestServerRejectsInvalidUTF8Batch(t *testing.T) {
	srv := newTestServer(t, 1, time.Second, "7574")
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	<-srv.Ready()

	conn := dial(t, srv.Addr())
	defer conn.Close()

	var frame []byte
	frame = append(frame, byte(protocol.KindBetBatch))
	frame = append(frame, 0, 0, 0, 1)
	frame = append(frame, 1, 0xFF)
	frame = append(frame, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("write malformed batch: %v", err)
	}

	kind, err := protocol.DecodeKind(conn)
	if err != nil {
		t.Fatalf("decode reply kind: %v", err)
	}
	if kind != protocol.KindBatchConfirmation {
		t.Fatalf("kind = %v, want BatchConfirmation", kind)
	}
	conf, err := protocol.DecodeBatchConfirmation(conn)
	if err != nil {
		t.Fatalf("decode confirmation: %v", err)
	}
	if conf.Success {
		t.Fatalf("expected BATCH_FAILURE for invalid UTF-8 field")
	}

	<-done
}

func TestServerShutdownClosesListenerBeforeAllAgenciesArrive(t *testing.T) {
	srv := newTestServer(t, 2, time.Second, "7574")
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()
	<-srv.Ready()

	conn := dial(t, srv.Addr())

	srv.RequestShutdown()
	conn.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after RequestShutdown")
	}
}
