// Package server implements the TCP supervisor that accepts exactly N
// agency connections, spawns one session per connection, and owns the
// shared coordination primitives (shutdown flag, store, draw barrier)
// that sessions use but never construct themselves.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fedepagnotta/lottery-server/internal/barrier"
	"github.com/fedepagnotta/lottery-server/internal/logging"
	"github.com/fedepagnotta/lottery-server/internal/metrics"
	"github.com/fedepagnotta/lottery-server/internal/session"
	"github.com/fedepagnotta/lottery-server/internal/store"
)

const defaultAcceptPollInterval = 5 * time.Second

// Server owns the listener, the expected agency count, and the primitives
// every session shares: the bet store, the draw barrier, and the shutdown
// flag.
type Server struct {
	mu   sync.Mutex
	addr string

	numberOfClients    int
	acceptPollInterval time.Duration
	store              *store.Store
	barrier            *barrier.Barrier
	pollFallback       *session.FinalizedCounter

	shouldExit atomic.Bool
	listener   *net.TCPListener
	wg         sync.WaitGroup

	readyCh   chan struct{}
	readyOnce sync.Once
}

// Option configures a Server at construction.
type Option func(*Server)

// WithListenAddr sets the TCP address to listen on, e.g. ":12345".
func WithListenAddr(addr string) Option { return func(s *Server) { s.addr = addr } }

// WithNumberOfClients sets N, the number of agency connections to accept
// before the supervisor stops accepting new sessions.
func WithNumberOfClients(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.numberOfClients = n
		}
	}
}

// WithAcceptPollInterval bounds how long Accept blocks before the
// supervisor re-checks the shutdown flag.
func WithAcceptPollInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.acceptPollInterval = d
		}
	}
}

// WithStore sets the shared bet store every session writes through.
func WithStore(st *store.Store) Option { return func(s *Server) { s.store = st } }

// WithBarrier sets the shared N-party draw barrier.
func WithBarrier(b *barrier.Barrier) Option { return func(s *Server) { s.barrier = b } }

// WithPollFallback switches every spawned session to the legacy
// NO_WINNERS_YET polling path instead of the barrier.
func WithPollFallback(counter *session.FinalizedCounter) Option {
	return func(s *Server) { s.pollFallback = counter }
}

// New builds a Server ready to Run once opts have supplied a store, a
// barrier, and a positive numberOfClients.
func New(opts ...Option) *Server {
	s := &Server{
		numberOfClients:    1,
		acceptPollInterval: defaultAcceptPollInterval,
		readyCh:            make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

// Addr returns the bound listener address, valid only after Run has
// started listening; callers should read from Ready() first.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Run listens, accepts up to numberOfClients agency connections, and
// blocks until every spawned session has returned or the shutdown flag
// stops the accept loop early. It returns a wrapped ErrListen on bind
// failure, or nil on a clean stop (flag observed or N sessions joined).
func (s *Server) Run() error {
	if s.store == nil || s.barrier == nil {
		return fmt.Errorf("%w: server requires a store and a barrier", ErrFatalServer)
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(metrics.ErrAccept)
		return wrap
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("%w: expected a TCP listener", ErrFatalServer)
	}
	s.mu.Lock()
	s.listener = tcpLn
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	metrics.SetReadinessFunc(func() bool { return true })
	logging.L().Infof(logging.Fields("action", "listen", "result", "success", "addr", s.Addr()))

	accepted := 0
	for accepted < s.numberOfClients {
		if s.shouldExit.Load() {
			logging.L().Infof(logging.Fields("action", "accept_loop", "result", "stop", "reason", "shutdown flag"))
			break
		}
		logging.L().Infof(logging.Fields("action", "accept_connections", "result", "in_progress"))
		conn, err := s.acceptOnce(tcpLn)
		if err != nil {
			if errors.Is(err, errAcceptTimeout) {
				continue
			}
			if s.shouldExit.Load() {
				break
			}
			wrap := fmt.Errorf("%w: %v", ErrAccept, err)
			metrics.IncError(metrics.ErrAccept)
			logging.L().Warningf(logging.Fields("action", "accept", "result", "fail", "error", wrap))
			continue
		}
		logging.L().Infof(logging.Fields("action", "accept_connections", "result", "success", "ip", peerIP(conn)))
		accepted++
		metrics.SessionsAccepted.Inc()
		metrics.SessionsActive.Inc()
		s.spawn(conn)
	}

	s.wg.Wait()
	_ = tcpLn.Close()
	return nil
}

var errAcceptTimeout = errors.New("server: accept poll timeout")

func (s *Server) acceptOnce(ln *net.TCPListener) (net.Conn, error) {
	if err := ln.SetDeadline(time.Now().Add(s.acceptPollInterval)); err != nil {
		return nil, err
	}
	conn, err := ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, errAcceptTimeout
		}
		return nil, err
	}
	return conn, nil
}

// peerIP extracts the bare IP from a connection's remote address, dropping
// the port (matches the original accept_connections log's `ip` field).
func peerIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (s *Server) spawn(conn net.Conn) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.SessionsActive.Dec()
		t := session.NewTransport(conn)
		var opts []session.Option
		if s.pollFallback != nil {
			opts = append(opts, session.WithPollFallback(s.pollFallback))
		}
		h := session.NewHandler(t, s.store, s.barrier, &s.shouldExit, opts...)
		logging.L().Infof(logging.Fields("action", "session_start", "result", "success", "remote", conn.RemoteAddr()))
		h.Run()
		logging.L().Infof(logging.Fields("action", "session_end", "result", "success", "remote", conn.RemoteAddr(), "state", h.State()))
	}()
}

// RequestShutdown flips the shutdown flag and closes the listener so a
// pending Accept returns immediately instead of waiting out the poll
// interval. Safe to call multiple times and from any goroutine.
func (s *Server) RequestShutdown() {
	s.shouldExit.Store(true)
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
}

// Wait blocks until every spawned session has returned.
func (s *Server) Wait() { s.wg.Wait() }
