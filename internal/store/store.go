// Package store is the bet store facade: a serialized wrapper around a
// CSV-backed persistence layer. It owns the mutex that stands in for the
// spec's cross-session file_lock, and the fresh-scan draw step that must
// observe every bet stored before the barrier released.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fedepagnotta/lottery-server/internal/protocol"
)

// Store is the only writer-contended resource shared across sessions.
// Concurrent callers of Store are serialized by mu; DrawWinnersFor takes no
// lock because callers only invoke it after the draw barrier has released,
// by which point every Store call has already returned.
type Store struct {
	mu            sync.Mutex
	path          string
	winningNumber string
}

// Open creates the store's backing CSV file if it does not already exist,
// and returns a Store ready to serialize writes against it.
func Open(path string, winningNumber string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open bets file %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close bets file %q: %w", path, err)
	}
	return &Store{path: path, winningNumber: winningNumber}, nil
}

// Store appends every bet in bets to the backing file under mu. An empty
// slice is a legal no-op.
func (s *Store) Store(bets []protocol.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(bets) == 0 {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open bets file %q: %w", s.path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	for _, b := range bets {
		row := []string{b.Agency, b.FirstName, b.LastName, b.Document, b.Birthdate, b.Number}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write bet: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// DrawWinnersFor scans the backing file top to bottom and returns the
// documents of every bet belonging to agencyID for which HasWon is true,
// preserving scan order. It takes no lock: callers must only invoke it
// once every writer is known to be done (after the draw barrier releases).
func (s *Store) DrawWinnersFor(agencyID string) ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open bets file %q: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6
	var winners []string
	for {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read bets file %q: %w", s.path, err)
		}
		b := protocol.Bet{
			Agency:    row[0],
			FirstName: row[1],
			LastName:  row[2],
			Document:  row[3],
			Birthdate: row[4],
			Number:    row[5],
		}
		if b.Agency == agencyID && s.HasWon(b) {
			winners = append(winners, b.Document)
		}
	}
	return winners, nil
}

// HasWon reports whether bet matches the configured winning number. The
// spec treats this predicate as an opaque external collaborator; this
// implementation makes it concrete (and configurable) so draws are
// deterministic and testable.
func (s *Store) HasWon(bet protocol.Bet) bool {
	return bet.Number == s.winningNumber
}
