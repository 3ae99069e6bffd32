package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/result"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/ledger/state"
	"github.com/agoralabs/agora/metrics"
	"github.com/agoralabs/agora/store"
)

// RoundRunner reruns consensus for an appeal. Implemented by the
// engine.
type RoundRunner interface {
	RunAppealRound(ctx context.Context, tx *core.Transaction, committee *core.Committee, round uint32) (*core.ConsensusRound, *core.CandidateResult)
}

const (
	finalityKeyPrefix = "fn/"
	appealKeyPrefix   = "ap/"
)

// FinalityManager tracks provisionally accepted results through their
// challenge windows: it finalizes commits whose window expires
// unchallenged and resolves appeals by rerunning consensus with an
// expanded committee.
type FinalityManager struct {
	kv       store.Store
	pipeline *state.CommitPipeline
	recorder *StatusRecorder
	selector *CommitteeSelector
	runner   RoundRunner

	mu         sync.Mutex
	records    map[common.Hash]*core.FinalityRecord
	contracts  map[common.Hash]string
	openAppeal map[common.Hash]*core.Appeal

	appeals chan *core.Appeal

	// Life cycle
	wg      *sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool

	window        time.Duration
	maxDepth      uint32
	expansionSize int
	minBond       uint64
	sweepInterval time.Duration
}

// NewFinalityManager creates a finality manager.
func NewFinalityManager(kv store.Store, pipeline *state.CommitPipeline, recorder *StatusRecorder,
	selector *CommitteeSelector, runner RoundRunner) *FinalityManager {
	return &FinalityManager{
		kv:       kv,
		pipeline: pipeline,
		recorder: recorder,
		selector: selector,
		runner:   runner,

		records:    make(map[common.Hash]*core.FinalityRecord),
		contracts:  make(map[common.Hash]string),
		openAppeal: make(map[common.Hash]*core.Appeal),

		appeals: make(chan *core.Appeal, 64),

		wg: &sync.WaitGroup{},

		window:        time.Duration(viper.GetInt(common.CfgAppealWindowSecs)) * time.Second,
		maxDepth:      uint32(viper.GetInt(common.CfgAppealMaxDepth)),
		expansionSize: viper.GetInt(common.CfgAppealExpansionSize),
		minBond:       uint64(viper.GetInt64(common.CfgAppealMinBond)),
		sweepInterval: time.Duration(viper.GetInt(common.CfgAppealSweepIntervalMs)) * time.Millisecond,
	}
}

func finalityKey(txID common.Hash, depth uint32) common.Bytes {
	return common.Bytes(fmt.Sprintf("%s%v/%04d", finalityKeyPrefix, txID, depth))
}

func appealKey(txID common.Hash, depth uint32) common.Bytes {
	return common.Bytes(fmt.Sprintf("%s%v/%04d", appealKeyPrefix, txID, depth))
}

// Start launches the challenge-window sweeper.
func (fm *FinalityManager) Start(ctx context.Context) {
	c, cancel := context.WithCancel(ctx)
	fm.ctx = c
	fm.cancel = cancel

	go fm.mainLoop()
}

// Stop notifies all goroutines to stop without blocking.
func (fm *FinalityManager) Stop() {
	fm.cancel()
}

// Wait blocks until all goroutines stop.
func (fm *FinalityManager) Wait() {
	fm.wg.Wait()
}

func (fm *FinalityManager) mainLoop() {
	fm.wg.Add(1)
	defer fm.wg.Done()

	ticker := time.NewTicker(fm.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fm.ctx.Done():
			fm.stopped = true
			return
		case appeal := <-fm.appeals:
			fm.resolveAppeal(appeal)
		case <-ticker.C:
			fm.sweep(time.Now())
		}
	}
}

// Track opens the challenge window for a provisionally accepted result.
func (fm *FinalityManager) Track(txID common.Hash, contract string, digest common.Hash, round uint32) {
	fm.trackAtDepth(txID, contract, digest, round, 0)
}

func (fm *FinalityManager) trackAtDepth(txID common.Hash, contract string, digest common.Hash, round uint32, depth uint32) {
	now := time.Now()
	record := &core.FinalityRecord{
		TxID:         txID,
		ResultDigest: digest,
		Round:        round,
		WindowOpen:   now,
		WindowClose:  now.Add(fm.window),
		Depth:        depth,
		Status:       core.Provisional,
	}

	fm.mu.Lock()
	fm.records[txID] = record
	fm.contracts[txID] = contract
	fm.mu.Unlock()

	if err := fm.kv.Put(finalityKey(txID, depth), record); err != nil {
		logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Failed to persist finality record")
	}
}

// Record returns the current finality record for a transaction.
func (fm *FinalityManager) Record(txID common.Hash) (*core.FinalityRecord, bool) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	record, ok := fm.records[txID]
	if !ok {
		return nil, false
	}
	cp := *record
	return &cp, true
}

// AppealStatus returns the appeal at the given depth.
func (fm *FinalityManager) AppealStatus(txID common.Hash, depth uint32) (*core.Appeal, error) {
	appeal := &core.Appeal{}
	if err := fm.kv.Get(appealKey(txID, depth), appeal); err != nil {
		return nil, err
	}
	return appeal, nil
}

// SubmitAppeal validates and queues a bonded challenge. A transaction
// can carry at most one open appeal; resubmitting while one is open is
// rejected, so appeals are idempotent per window.
func (fm *FinalityManager) SubmitAppeal(appeal *core.Appeal) result.Result {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	record, ok := fm.records[appeal.TxID]
	if !ok {
		return result.Error("no provisional result for %v", appeal.TxID).WithErrorCode(result.CodeInvalidAppeal)
	}
	if record.Status != core.Provisional {
		return result.Error("result is %v, not appealable", record.Status).WithErrorCode(result.CodeInvalidAppeal)
	}
	if !record.WindowIsOpen(time.Now()) {
		return result.Error("challenge window is closed").WithErrorCode(result.CodeInvalidAppeal)
	}
	if appeal.Bond < fm.minBond {
		return result.Error("bond %v below minimum %v", appeal.Bond, fm.minBond).WithErrorCode(result.CodeInvalidAppeal)
	}
	if record.Depth >= fm.maxDepth {
		return result.Error("appeal depth %v exhausted", record.Depth).WithErrorCode(result.CodeInvalidAppeal)
	}
	if _, open := fm.openAppeal[appeal.TxID]; open {
		return result.Error("an appeal is already open for %v", appeal.TxID).WithErrorCode(result.CodeInvalidAppeal)
	}

	appeal.TargetRound = record.Round
	appeal.Depth = record.Depth
	appeal.SubmittedAt = time.Now()
	appeal.Status = core.AppealOpen
	if err := fm.kv.Put(appealKey(appeal.TxID, appeal.Depth), appeal); err != nil {
		return result.Error("failed to persist appeal: %v", err)
	}
	fm.openAppeal[appeal.TxID] = appeal

	select {
	case fm.appeals <- appeal:
		return result.OK
	default:
		delete(fm.openAppeal, appeal.TxID)
		return result.Error("appeal queue is full")
	}
}

// resolveAppeal reruns consensus with an expanded committee. A rerun
// that confirms the original digest, or fails to reach agreement at
// all, denies the appeal; a rerun accepting a different result upholds
// it and replaces the provisional commit.
func (fm *FinalityManager) resolveAppeal(appeal *core.Appeal) {
	txID := appeal.TxID

	fm.mu.Lock()
	record := fm.records[txID]
	contract := fm.contracts[txID]
	fm.mu.Unlock()
	if record == nil {
		fm.closeAppeal(appeal, core.AppealDenied)
		return
	}

	tx, err := fm.recorder.Transaction(txID)
	if err != nil {
		logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Appealed transaction not found")
		fm.closeAppeal(appeal, core.AppealDenied)
		fm.finalize(record)
		return
	}

	committee, err := fm.selector.SelectCommittee(txID)
	if err != nil {
		logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Cannot seat appeal committee")
		fm.closeAppeal(appeal, core.AppealDenied)
		fm.finalize(record)
		return
	}
	expanded := fm.selector.ExpandCommittee(committee, fm.expansionSize*int(appeal.Depth+1))

	r, accepted := fm.runner.RunAppealRound(fm.ctx, tx, expanded, record.Round+1)

	if r.Status != core.RoundAccepted || r.ResultDigest == record.ResultDigest {
		// The challenge produced nothing better than the original. Denial
		// finalizes the record on the spot, so the same depth cannot be
		// appealed again during the remaining window.
		fm.closeAppeal(appeal, core.AppealDenied)
		fm.finalize(record)
		logger.WithFields(log.Fields{"tx": txID, "depth": appeal.Depth}).Info("Appeal denied")
		return
	}

	// Upheld: revert the provisional commit and stage the replacement.
	fm.mu.Lock()
	record.Status = core.Reverted
	if err := fm.kv.Put(finalityKey(txID, record.Depth), record); err != nil {
		logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Failed to persist finality record")
	}
	fm.mu.Unlock()

	if err := fm.pipeline.Revert(txID); err != nil && err != state.ErrUnknownCommit {
		logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Failed to revert commit")
	}
	if err := fm.pipeline.Apply(txID, contract, accepted.StateDelta); err != nil {
		logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Failed to stage appeal result")
	}
	metrics.PendingCommits.Set(float64(fm.pipeline.PendingCount()))

	fm.recorder.SetStatus(txID, TxAccepted, result.OKWith("result replaced on appeal, round %v", r.Round))
	fm.closeAppeal(appeal, core.AppealUpheld)
	fm.trackAtDepth(txID, contract, r.ResultDigest, r.Round, appeal.Depth+1)
	logger.WithFields(log.Fields{"tx": txID, "depth": appeal.Depth}).Info("Appeal upheld")
}

func (fm *FinalityManager) closeAppeal(appeal *core.Appeal, status core.AppealStatus) {
	appeal.Status = status
	if err := fm.kv.Put(appealKey(appeal.TxID, appeal.Depth), appeal); err != nil {
		logger.WithFields(log.Fields{"tx": appeal.TxID, "error": err}).Error("Failed to persist appeal")
	}
	metrics.AppealsTotal.WithLabelValues(status.String()).Inc()

	fm.mu.Lock()
	delete(fm.openAppeal, appeal.TxID)
	fm.mu.Unlock()
}

// sweep finalizes provisional records whose challenge window has closed
// with no open appeal. Finality is monotonic: a Final record never
// leaves that state.
func (fm *FinalityManager) sweep(now time.Time) {
	fm.mu.Lock()
	var expired []*core.FinalityRecord
	for txID, record := range fm.records {
		if record.Status != core.Provisional || now.Before(record.WindowClose) {
			continue
		}
		if _, open := fm.openAppeal[txID]; open {
			continue
		}
		expired = append(expired, record)
	}
	fm.mu.Unlock()

	for _, record := range expired {
		fm.finalize(record)
	}
}

func (fm *FinalityManager) finalize(record *core.FinalityRecord) {
	txID := record.TxID
	if err := fm.pipeline.Finalize(txID); err != nil && err != state.ErrUnknownCommit {
		logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Failed to finalize commit")
		return
	}
	metrics.PendingCommits.Set(float64(fm.pipeline.PendingCount()))

	fm.mu.Lock()
	record.Status = core.Final
	if err := fm.kv.Put(finalityKey(txID, record.Depth), record); err != nil {
		logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Failed to persist finality record")
	}
	fm.mu.Unlock()

	fm.recorder.SetStatus(txID, TxFinalized, result.OK)
	metrics.TransactionsTotal.WithLabelValues(TxFinalized.String()).Inc()
	logger.WithFields(log.Fields{"tx": txID, "round": record.Round}).Info("Result finalized")
}
