// storage package keeps the finalization records of the tally service. The
// records live in a prefixed key-value store; the following prefixes are
// used:
//   - 't/' for finalized tallies, keyed by contract address
//   - 'r/' for reservations of tallies being finalized, keyed by contract
//     address
//
// A reservation acts as the one-shot guard: it is taken before the
// finalizer runs, replaced by the tally record once the transaction is
// confirmed and released if the finalization fails.
package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db"
)

var (
	// Prefixes for the keys in the database.
	tallyPrefix       = []byte("t/")
	reservationPrefix = []byte("r/")
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyFinalized is returned when reserving a contract that already
	// has a tally record.
	ErrAlreadyFinalized = &tally.Error{Kind: tally.KindAlreadyFinalized, Err: errors.New("tally already finalized")}
	// ErrInProgress is returned when reserving a contract that is already
	// reserved.
	ErrInProgress = &tally.Error{Kind: tally.KindFinalizationInProgress, Err: errors.New("finalization in progress")}
)

// Reservation marks a contract whose tally is being finalized.
type Reservation struct {
	RequestID string `json:"requestId" cbor:"0,keyasint,omitempty"`
	Timestamp int64  `json:"timestamp" cbor:"1,keyasint,omitempty"`
}

// Storage wraps the database with the finalization records.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err.Error())
	}
}

// Reserve takes the one-shot guard for contract. It fails with
// ErrAlreadyFinalized if a tally record exists and with ErrInProgress if
// another request holds the reservation.
func (s *Storage) Reserve(contract common.Address, requestID string) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if _, err := s.getArtifact(tallyPrefix, contract.Bytes()); err == nil {
		return ErrAlreadyFinalized
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("get tally: %w", err)
	}
	data, err := s.getArtifact(reservationPrefix, contract.Bytes())
	if err == nil {
		r := &Reservation{}
		if derr := decodeArtifact(data, r); derr == nil {
			return fmt.Errorf("%w: request %s", ErrInProgress, r.RequestID)
		}
		return ErrInProgress
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("get reservation: %w", err)
	}
	return s.setArtifact(reservationPrefix, contract.Bytes(), &Reservation{
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

// Release drops the reservation of contract, if any.
func (s *Storage) Release(contract common.Address) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if err := s.deleteArtifact(reservationPrefix, contract.Bytes()); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// Reservation returns the reservation held on contract.
func (s *Storage) Reservation(contract common.Address) (*Reservation, error) {
	data, err := s.getArtifact(reservationPrefix, contract.Bytes())
	if err != nil {
		return nil, err
	}
	r := &Reservation{}
	if err := decodeArtifact(data, r); err != nil {
		return nil, fmt.Errorf("decode reservation: %w", err)
	}
	return r, nil
}

// ClearReservations drops every reservation. It is called on startup, when
// no finalization can be in flight.
func (s *Storage) ClearReservations() (int, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	keys, err := s.listArtifacts(reservationPrefix)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := s.deleteArtifact(reservationPrefix, k); err != nil {
			return 0, fmt.Errorf("delete reservation: %w", err)
		}
	}
	return len(keys), nil
}
