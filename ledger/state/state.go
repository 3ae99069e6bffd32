package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/util"
	"github.com/agoralabs/agora/store"
	"github.com/agoralabs/agora/store/database"
)

var logger = util.GetLoggerForModule("ledger")

var (
	// ErrContractBusy is returned when a contract already has an
	// outstanding provisional commit.
	ErrContractBusy = errors.New("ContractBusy")
	// ErrUnknownCommit is returned for a txID with no pending commit.
	ErrUnknownCommit = errors.New("UnknownCommit")
)

const (
	durablePrefix = "ls/kv/"
	pendingPrefix = "ls/pending/"
)

// pendingCommit is the overlay produced by one provisionally accepted
// transaction, held back until its challenge window resolves.
type pendingCommit struct {
	TxID     common.Hash             `json:"txId"`
	Contract string                  `json:"contract"`
	Delta    map[string]common.Bytes `json:"delta"`
}

// CommitPipeline moves accepted state deltas through the
// provisional/final lifecycle. A provisional commit is held as an
// overlay: external reads see only finalized state, and at most one
// provisional commit may be outstanding per contract so a revert never
// has to unwind a dependent commit. Overlays are persisted so a restart
// does not lose provisionally accepted results.
type CommitPipeline struct {
	db database.Database
	kv store.Store

	mu         sync.RWMutex
	pending    map[common.Hash]*pendingCommit
	byContract map[string]common.Hash
}

// NewCommitPipeline creates a pipeline over db, reloading any
// provisional overlays persisted by a previous run.
func NewCommitPipeline(db database.Database, kv store.Store) (*CommitPipeline, error) {
	p := &CommitPipeline{
		db:         db,
		kv:         kv,
		pending:    make(map[common.Hash]*pendingCommit),
		byContract: make(map[string]common.Hash),
	}

	it := db.NewIteratorWithPrefix([]byte(pendingPrefix))
	defer it.Release()
	for it.Next() {
		var pc pendingCommit
		if err := p.kv.Get(common.CopyBytes(it.Key()), &pc); err != nil {
			return nil, fmt.Errorf("corrupt pending commit at %q: %v", it.Key(), err)
		}
		p.pending[pc.TxID] = &pc
		p.byContract[pc.Contract] = pc.TxID
	}
	if len(p.pending) > 0 {
		logger.Infof("Reloaded %v provisional commits", len(p.pending))
	}
	return p, nil
}

func pendingKey(txID common.Hash) common.Bytes {
	return append(common.Bytes(pendingPrefix), txID.Bytes()...)
}

func durableKey(key string) common.Bytes {
	return append(common.Bytes(durablePrefix), []byte(key)...)
}

// Apply stages the delta of a provisionally accepted transaction.
// Returns ErrContractBusy while the contract's previous commit is still
// inside its challenge window.
func (p *CommitPipeline) Apply(txID common.Hash, contract string, delta map[string]common.Bytes) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.byContract[contract]; ok && existing != txID {
		return ErrContractBusy
	}
	if _, ok := p.pending[txID]; ok {
		return nil
	}

	pc := &pendingCommit{TxID: txID, Contract: contract, Delta: delta}
	if err := p.kv.Put(pendingKey(txID), pc); err != nil {
		return err
	}
	p.pending[txID] = pc
	p.byContract[contract] = txID
	return nil
}

// Finalize promotes the pending commit to durable state. The delta and
// the overlay removal land in one batch.
func (p *CommitPipeline) Finalize(txID common.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.pending[txID]
	if !ok {
		return ErrUnknownCommit
	}

	batch := p.db.NewBatch()
	for key, value := range pc.Delta {
		if err := batch.Put(durableKey(key), value); err != nil {
			return err
		}
	}
	if err := batch.Delete(pendingKey(txID)); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}

	delete(p.pending, txID)
	delete(p.byContract, pc.Contract)
	logger.WithFields(logFields(txID, pc.Contract)).Debug("Finalized commit")
	return nil
}

// Revert discards the pending commit. Durable state is untouched since
// a provisional delta never reaches it.
func (p *CommitPipeline) Revert(txID common.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.pending[txID]
	if !ok {
		return ErrUnknownCommit
	}
	if err := p.db.Delete(pendingKey(txID)); err != nil && err != store.ErrKeyNotFound {
		return err
	}
	delete(p.pending, txID)
	delete(p.byContract, pc.Contract)
	logger.WithFields(logFields(txID, pc.Contract)).Debug("Reverted commit")
	return nil
}

// Get reads finalized state. Provisional overlays are invisible here:
// external readers never observe a value that can still be reverted.
func (p *CommitPipeline) Get(key string) (common.Bytes, error) {
	return p.db.Get(durableKey(key))
}

// PendingFor returns the txID of the contract's outstanding provisional
// commit, if any.
func (p *CommitPipeline) PendingFor(contract string) (common.Hash, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	txID, ok := p.byContract[contract]
	return txID, ok
}

// PendingCount returns the number of outstanding provisional commits.
func (p *CommitPipeline) PendingCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pending)
}

func logFields(txID common.Hash, contract string) map[string]interface{} {
	return map[string]interface{}{"tx": txID, "contract": contract}
}
