// Package reserve tracks UTXOs held by in-flight sends so that concurrent
// or back-to-back sends from one address never pick the same output.
package reserve

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/utxowallet/internal/log"
	"github.com/Klingon-tech/utxowallet/internal/storage"
	"github.com/Klingon-tech/utxowallet/internal/wallet"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrReserved is returned when an outpoint is already held.
var ErrReserved = errors.New("utxo already reserved")

// DefaultTTL is how long a reservation lasts when none is given.
const DefaultTTL = 10 * time.Minute

var keyPrefix = []byte("reserve/")

// record is the stored form of a reservation.
type record struct {
	Expires time.Time `json:"expires"`
	TxID    string    `json:"txid,omitempty"`
}

// Store keeps reservations in a storage.DB. Its methods are safe for
// concurrent use within one process; the Badger directory lock keeps
// other processes out.
type Store struct {
	mu  sync.Mutex
	db  *storage.PrefixDB
	now func() time.Time
}

// New creates a reservation store in its own namespace of db.
func New(db storage.DB) *Store {
	return &Store{
		db:  storage.NewPrefixDB(db, keyPrefix),
		now: time.Now,
	}
}

func outpointKey(op wire.OutPoint) []byte {
	return []byte(op.String())
}

// held returns the live reservation for op, if any.
func (s *Store) held(op wire.OutPoint, now time.Time) (*record, error) {
	data, err := s.db.Get(outpointKey(op))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reservation %v: %w", op, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode reservation %v: %w", op, err)
	}
	if !now.Before(rec.Expires) {
		return nil, nil
	}
	return &rec, nil
}

// Available filters out UTXOs that are currently reserved.
func (s *Store) Available(utxos []wallet.UTXO) ([]wallet.UTXO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var free []wallet.UTXO
	for _, u := range utxos {
		rec, err := s.held(u.Outpoint, now)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			log.Reserve.Debug().Str("outpoint", u.Outpoint.String()).Time("expires", rec.Expires).Msg("Skipping reserved UTXO")
			continue
		}
		free = append(free, u)
	}
	return free, nil
}

// Reserve holds every outpoint for ttl. Either all are reserved or, if
// any is already held, none is and ErrReserved is returned.
func (s *Store) Reserve(outpoints []wire.OutPoint, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, op := range outpoints {
		rec, err := s.held(op, now)
		if err != nil {
			return err
		}
		if rec != nil {
			return fmt.Errorf("%w: %v until %s", ErrReserved, op, rec.Expires.Format(time.RFC3339))
		}
	}
	if err := s.write(outpoints, record{Expires: now.Add(ttl)}); err != nil {
		return err
	}
	log.Reserve.Debug().Int("count", len(outpoints)).Dur("ttl", ttl).Msg("UTXOs reserved")
	return nil
}

// Release drops the reservations of outpoints.
func (s *Store) Release(outpoints []wire.OutPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewBatch()
	for _, op := range outpoints {
		if err := b.Delete(outpointKey(op)); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("release reservations: %w", err)
	}
	return nil
}

// Commit records the transaction that spent outpoints. The hold stays in
// place until it expires so the indexer has time to see the spend.
func (s *Store) Commit(outpoints []wire.OutPoint, txid chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, op := range outpoints {
		rec, err := s.held(op, now)
		if err != nil {
			return err
		}
		expires := now.Add(DefaultTTL)
		if rec != nil && rec.Expires.After(expires) {
			expires = rec.Expires
		}
		if err := s.write([]wire.OutPoint{op}, record{Expires: expires, TxID: txid.String()}); err != nil {
			return err
		}
	}
	log.Reserve.Debug().Str("txid", txid.String()).Int("count", len(outpoints)).Msg("Reservations committed")
	return nil
}

// SpentBy returns the txid recorded for a live reservation of op.
func (s *Store) SpentBy(op wire.OutPoint) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.held(op, s.now())
	if err != nil || rec == nil || rec.TxID == "" {
		return "", false, err
	}
	return rec.TxID, true, nil
}

// Prune deletes reservations that expired at or before now and returns
// how many were removed.
func (s *Store) Prune(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale [][]byte
	err := s.db.ForEach(nil, func(key, value []byte) error {
		var rec record
		if err := json.Unmarshal(value, &rec); err != nil || !now.Before(rec.Expires) {
			stale = append(stale, append([]byte{}, key...))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan reservations: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	b := s.db.NewBatch()
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(); err != nil {
		return 0, fmt.Errorf("prune reservations: %w", err)
	}
	log.Reserve.Debug().Int("count", len(stale)).Msg("Expired reservations pruned")
	return len(stale), nil
}

func (s *Store) write(outpoints []wire.OutPoint, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	for _, op := range outpoints {
		if err := b.Put(outpointKey(op), data); err != nil {
			return err
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("write reservations: %w", err)
	}
	return nil
}
