package consensus

import (
	"fmt"
	"sync"
	"time"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/result"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/store"
)

// TxStatus is the lifecycle state of a submitted transaction.
type TxStatus byte

const (
	TxPending TxStatus = iota
	TxAccepted
	TxFinalized
	TxRejected
	TxTimedOut
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "Pending"
	case TxAccepted:
		return "Accepted"
	case TxFinalized:
		return "Finalized"
	case TxRejected:
		return "Rejected"
	case TxTimedOut:
		return "TimedOut"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

// StatusChange is one entry of a transaction's status history.
type StatusChange struct {
	Status  TxStatus         `json:"status"`
	Code    result.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message,omitempty"`
	At      time.Time        `json:"at"`
}

// StatusRecord is the persisted status of one transaction, current
// state plus the full history of changes.
type StatusRecord struct {
	TxID    common.Hash    `json:"txId"`
	Current TxStatus       `json:"current"`
	History []StatusChange `json:"history"`
}

const (
	txKeyPrefix     = "tx/"
	statusKeyPrefix = "st/"
	roundKeyPrefix  = "rd/"
)

// StatusRecorder persists transactions, their status history, and the
// round-by-round consensus audit trail.
type StatusRecorder struct {
	kv store.Store
	mu sync.Mutex
}

// NewStatusRecorder creates a recorder over the given store.
func NewStatusRecorder(kv store.Store) *StatusRecorder {
	return &StatusRecorder{kv: kv}
}

func txKey(txID common.Hash) common.Bytes {
	return append(common.Bytes(txKeyPrefix), txID.Bytes()...)
}

func statusKey(txID common.Hash) common.Bytes {
	return append(common.Bytes(statusKeyPrefix), txID.Bytes()...)
}

func roundKey(txID common.Hash, round uint32) common.Bytes {
	key := append(common.Bytes(roundKeyPrefix), txID.Bytes()...)
	return append(key, []byte(fmt.Sprintf("/%08d", round))...)
}

// Admit persists a newly admitted transaction with a Pending status.
// Returns false if the transaction is already known.
func (sr *StatusRecorder) Admit(tx *core.Transaction) (bool, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	txID := tx.ID()
	var existing StatusRecord
	if err := sr.kv.Get(statusKey(txID), &existing); err == nil {
		return false, nil
	} else if err != store.ErrKeyNotFound {
		return false, err
	}

	if err := sr.kv.Put(txKey(txID), tx); err != nil {
		return false, err
	}
	record := &StatusRecord{
		TxID:    txID,
		Current: TxPending,
		History: []StatusChange{{Status: TxPending, At: time.Now()}},
	}
	return true, sr.kv.Put(statusKey(txID), record)
}

// SetStatus appends a status change for the transaction.
func (sr *StatusRecorder) SetStatus(txID common.Hash, status TxStatus, res result.Result) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	var record StatusRecord
	if err := sr.kv.Get(statusKey(txID), &record); err != nil {
		return err
	}
	record.Current = status
	record.History = append(record.History, StatusChange{
		Status:  status,
		Code:    res.Code,
		Message: res.Message,
		At:      time.Now(),
	})
	return sr.kv.Put(statusKey(txID), &record)
}

// Status returns the status record of a transaction.
func (sr *StatusRecorder) Status(txID common.Hash) (*StatusRecord, error) {
	record := &StatusRecord{}
	if err := sr.kv.Get(statusKey(txID), record); err != nil {
		return nil, err
	}
	return record, nil
}

// Transaction returns the persisted transaction body.
func (sr *StatusRecorder) Transaction(txID common.Hash) (*core.Transaction, error) {
	tx := &core.Transaction{}
	if err := sr.kv.Get(txKey(txID), tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// RecordRound persists one terminal consensus round for audit.
func (sr *StatusRecorder) RecordRound(round *core.ConsensusRound) error {
	return sr.kv.Put(roundKey(round.TxID, round.Round), round)
}

// Round returns the persisted round, if present.
func (sr *StatusRecorder) Round(txID common.Hash, round uint32) (*core.ConsensusRound, error) {
	r := &core.ConsensusRound{}
	if err := sr.kv.Get(roundKey(txID, round), r); err != nil {
		return nil, err
	}
	return r, nil
}
