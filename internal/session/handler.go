package session

import (
	"sync/atomic"

	"github.com/fedepagnotta/lottery-server/internal/barrier"
	"github.com/fedepagnotta/lottery-server/internal/logging"
	"github.com/fedepagnotta/lottery-server/internal/metrics"
	"github.com/fedepagnotta/lottery-server/internal/protocol"
	"github.com/fedepagnotta/lottery-server/internal/store"
)

// State is the session handler's explicit state.
type State int

const (
	StateRunning State = iota
	StateDrawn
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateDrawn:
		return "DRAWN"
	default:
		return "CLOSED"
	}
}

// Handler drives one agency's connection through RUNNING -> DRAWN -> CLOSED,
// coordinating with peers via the draw barrier (or, optionally, the legacy
// poll fallback) and the shared shutdown flag.
type Handler struct {
	transport  *Transport
	store      *store.Store
	barrier    *barrier.Barrier
	shouldExit *atomic.Bool

	// finalizedCounter, when non-nil, switches GET_WINNERS handling to the
	// legacy poll-based fallback instead of the barrier.
	finalizedCounter *FinalizedCounter

	agencyID  string
	finalized bool
	state     State
}

// Option configures a Handler at construction.
type Option func(*Handler)

// WithPollFallback enables the legacy NO_WINNERS_YET polling path instead
// of the barrier. Retained for backward compatibility; not the default.
func WithPollFallback(counter *FinalizedCounter) Option {
	return func(h *Handler) { h.finalizedCounter = counter }
}

// NewHandler builds a Handler for one accepted connection.
func NewHandler(t *Transport, st *store.Store, b *barrier.Barrier, shouldExit *atomic.Bool, opts ...Option) *Handler {
	h := &Handler{transport: t, store: st, barrier: b, shouldExit: shouldExit, state: StateRunning}
	for _, o := range opts {
		o(h)
	}
	return h
}

// State returns the handler's current state.
func (h *Handler) State() State { return h.state }

// Run drives the session loop until the connection ends, an error closes
// it, shutdown is observed, or the draw completes. It always closes the
// transport before returning.
func (h *Handler) Run() {
	defer h.transport.Close()
	for {
		if h.shouldExit.Load() {
			h.state = StateClosed
			return
		}
		kind, payload, err := h.transport.RecvMessage()
		if err != nil {
			h.handleRecvError(kind, err)
			h.state = StateClosed
			return
		}
		switch kind {
		case protocol.KindBetBatch:
			h.handleBatch(payload.(protocol.BetBatch))
		case protocol.KindFinalization:
			h.handleFinalization(payload.(protocol.Finalization))
		case protocol.KindGetWinners:
			if done := h.handleGetWinners(payload.(protocol.GetWinners)); done {
				return
			}
		}
	}
}

func (h *Handler) handleRecvError(kind protocol.Kind, err error) {
	if err == ErrConnectionClosed {
		logging.L().Infof(logging.Fields("action", "receive_message", "result", "fail", "error", "connection closed"))
		return
	}
	metrics.IncError(metrics.ErrProtocol)
	logging.L().Warningf(logging.Fields("action", "receive_message", "result", "fail", "error", err))
	if kind == protocol.KindBetBatch {
		_ = h.transport.SendBatchFailure()
	}
}

func (h *Handler) handleBatch(batch protocol.BetBatch) {
	if err := h.store.Store(batch.Bets); err != nil {
		metrics.IncError(metrics.ErrStore)
		metrics.IncBatchResult("failure")
		logging.L().Errorf(logging.Fields("action", "apuesta_recibida", "result", "fail", "cantidad", len(batch.Bets)))
		_ = h.transport.SendBatchFailure()
		return
	}
	metrics.BetsStored.Add(float64(len(batch.Bets)))
	metrics.IncBatchResult("success")
	logging.L().Infof(logging.Fields("action", "apuesta_recibida", "result", "success", "cantidad", len(batch.Bets)))
	if err := h.transport.SendBatchSuccess(); err != nil {
		logging.L().Warningf(logging.Fields("action", "send_batch_confirmation", "result", "fail", "error", err))
	}
}

// handleFinalization records that this session's agency has finalized.
// Extra FINALIZATIONs from the same agency are accepted and ignored.
func (h *Handler) handleFinalization(f protocol.Finalization) {
	h.agencyID = f.AgencyID
	if !h.finalized && h.finalizedCounter != nil {
		h.finalizedCounter.MarkFinalized()
	}
	h.finalized = true
}

// handleGetWinners dispatches to the barrier path (normative) or the
// legacy poll fallback, returning whether the session loop should end.
func (h *Handler) handleGetWinners(g protocol.GetWinners) bool {
	if h.agencyID == "" {
		h.agencyID = g.AgencyID
	}
	if h.finalizedCounter != nil {
		return h.handleGetWinnersPolling()
	}
	return h.handleGetWinnersBarrier()
}

// handleGetWinnersBarrier is the synchronization point: GET_WINNERS is
// treated as an implicit finalization, then the session waits on the
// barrier before drawing and replying.
func (h *Handler) handleGetWinnersBarrier() bool {
	h.finalized = true

	if err := h.barrier.Wait(); err != nil {
		metrics.BarrierTimeouts.Inc()
		metrics.IncError(metrics.ErrBarrier)
		logging.L().Warningf(logging.Fields("action", "sorteo", "result", "fail", "agencia", h.agencyID, "error", err))
		h.state = StateClosed
		return true
	}

	winners, err := h.store.DrawWinnersFor(h.agencyID)
	if err != nil {
		logging.L().Errorf(logging.Fields("action", "sorteo", "result", "fail", "agencia", h.agencyID, "error", err))
		h.state = StateClosed
		return true
	}
	metrics.DrawsCompleted.Inc()
	logging.L().Infof(logging.Fields("action", "sorteo", "result", "success", "agencia", h.agencyID, "cantidad_ganadores", len(winners)))
	if err := h.transport.SendWinners(winners); err != nil {
		logging.L().Warningf(logging.Fields("action", "send_winners", "result", "fail", "error", err))
		h.state = StateClosed
		return true
	}
	h.state = StateDrawn
	return true
}

// handleGetWinnersPolling is the legacy fallback: reply NO_WINNERS_YET and
// remain RUNNING until every agency has finalized.
func (h *Handler) handleGetWinnersPolling() bool {
	if !h.finalizedCounter.AllFinalized() {
		if err := h.transport.SendNoWinnersYet(); err != nil {
			logging.L().Warningf(logging.Fields("action", "send_no_winners_yet", "result", "fail", "error", err))
			h.state = StateClosed
			return true
		}
		return false
	}
	winners, err := h.store.DrawWinnersFor(h.agencyID)
	if err != nil {
		logging.L().Errorf(logging.Fields("action", "sorteo", "result", "fail", "agencia", h.agencyID, "error", err))
		h.state = StateClosed
		return true
	}
	metrics.DrawsCompleted.Inc()
	logging.L().Infof(logging.Fields("action", "sorteo", "result", "success", "agencia", h.agencyID, "cantidad_ganadores", len(winners)))
	if err := h.transport.SendWinners(winners); err != nil {
		logging.L().Warningf(logging.Fields("action", "send_winners", "result", "fail", "error", err))
		h.state = StateClosed
		return true
	}
	h.state = StateDrawn
	return true
}
