package consensus

import (
	"bytes"
	"context"
	"math"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/result"
	"github.com/agoralabs/agora/common/util"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/equivalence"
	"github.com/agoralabs/agora/ledger/state"
	"github.com/agoralabs/agora/metrics"
)

var logger = util.GetLoggerForModule("consensus")

// CandidateExecutor produces one validator's candidate result for a
// transaction. Implemented by the sandbox.
type CandidateExecutor interface {
	Execute(ctx context.Context, tx *core.Transaction, validatorID string) (*core.CandidateResult, result.Result)
}

// Engine drives transactions through consensus rounds: it seats the
// committee, solicits candidate results, judges equivalence, and hands
// accepted results to the state pipeline and the finality manager.
type Engine struct {
	selector  *CommitteeSelector
	executor  CandidateExecutor
	evaluator *equivalence.Evaluator
	pipeline  *state.CommitPipeline
	recorder  *StatusRecorder
	finality  *FinalityManager

	incoming chan *core.Transaction

	// Life cycle
	wg      *sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool

	quorumRatio    float64
	maxRounds      uint32
	leaderTimeout  time.Duration
	collectTimeout time.Duration
}

// NewEngine creates an engine. The finality manager is attached
// separately since it needs the engine as its round runner.
func NewEngine(selector *CommitteeSelector, executor CandidateExecutor, evaluator *equivalence.Evaluator,
	pipeline *state.CommitPipeline, recorder *StatusRecorder) *Engine {
	return &Engine{
		selector:  selector,
		executor:  executor,
		evaluator: evaluator,
		pipeline:  pipeline,
		recorder:  recorder,

		incoming: make(chan *core.Transaction, viper.GetInt(common.CfgConsensusMessageQueueSize)),

		wg: &sync.WaitGroup{},

		quorumRatio:    viper.GetFloat64(common.CfgConsensusMinQuorumRatio),
		maxRounds:      uint32(viper.GetInt(common.CfgConsensusMaxRounds)),
		leaderTimeout:  time.Duration(viper.GetInt(common.CfgConsensusLeaderTimeoutSecs)) * time.Second,
		collectTimeout: time.Duration(viper.GetInt(common.CfgConsensusCollectTimeoutSecs)) * time.Second,
	}
}

// SetFinalityManager attaches the finality manager. Must be called
// before Start.
func (e *Engine) SetFinalityManager(fm *FinalityManager) {
	e.finality = fm
}

// Recorder returns the engine's status recorder.
func (e *Engine) Recorder() *StatusRecorder {
	return e.recorder
}

// Start is the main event loop.
func (e *Engine) Start(ctx context.Context) {
	c, cancel := context.WithCancel(ctx)
	e.ctx = c
	e.cancel = cancel

	go e.mainLoop()
}

// Stop notifies all goroutines to stop without blocking.
func (e *Engine) Stop() {
	e.cancel()
}

// Wait blocks until all goroutines stop.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// AddTransaction queues an admitted transaction for consensus.
func (e *Engine) AddTransaction(tx *core.Transaction) result.Result {
	select {
	case e.incoming <- tx:
		return result.OK
	default:
		return result.Error("consensus queue is full").WithErrorCode(result.CodeGenericError)
	}
}

func (e *Engine) mainLoop() {
	e.wg.Add(1)
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			e.stopped = true
			return
		case tx := <-e.incoming:
			e.processTransaction(tx)
		}
	}
}

// quorum returns the minimum agreeing-cluster size for a committee.
func (e *Engine) quorum(committeeSize int) int {
	return int(math.Ceil(e.quorumRatio * float64(committeeSize)))
}

// processTransaction runs a transaction through up to maxRounds
// consensus rounds and commits the first accepted result.
func (e *Engine) processTransaction(tx *core.Transaction) {
	txID := tx.ID()

	committee, err := e.selector.SelectCommittee(txID)
	if err != nil {
		logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Cannot seat committee")
		e.recorder.SetStatus(txID, TxRejected, result.ValidatorFault("cannot seat committee: %v", err))
		metrics.TransactionsTotal.WithLabelValues(TxRejected.String()).Inc()
		return
	}

	timedOut := 0
	divergent := false
	for round := uint32(0); round < e.maxRounds; round++ {
		start := time.Now()
		r, accepted := e.runRound(e.ctx, tx, committee, round)
		metrics.RoundDuration.Observe(time.Since(start).Seconds())
		metrics.RoundsTotal.WithLabelValues(r.Status.String()).Inc()
		e.recorder.RecordRound(r)

		logger.WithFields(log.Fields{
			"tx":      txID,
			"round":   round,
			"leader":  r.Leader,
			"results": r.ResultCount(),
			"status":  r.Status,
		}).Info("Round finished")

		if r.Status == core.RoundAccepted {
			e.commitAccepted(tx, r, accepted)
			return
		}
		if r.Status == core.RoundTimedOut {
			timedOut++
		}
		if r.Status == core.RoundRejected && roundDivergent(r) {
			divergent = true
		}
		if e.ctx.Err() != nil {
			return
		}
	}

	// The terminal status names what actually exhausted the budget: an
	// unresponsive committee is TimedOut, a divergent block is a
	// divergence fault, everything else an execution fault.
	if timedOut == int(e.maxRounds) {
		e.recorder.SetStatus(txID, TxTimedOut,
			result.TimeoutFault("no quorum after %v rounds", e.maxRounds))
		metrics.TransactionsTotal.WithLabelValues(TxTimedOut.String()).Inc()
		return
	}
	res := result.ExecutionFault("no agreement after %v rounds", e.maxRounds)
	if divergent {
		res = result.DivergenceFault("no agreement after %v rounds", e.maxRounds)
	}
	e.recorder.SetStatus(txID, TxRejected, res)
	metrics.TransactionsTotal.WithLabelValues(TxRejected.String()).Inc()
}

// roundDivergent indicates whether any block verdict in the round came
// back Divergent.
func roundDivergent(r *core.ConsensusRound) bool {
	for _, verdict := range r.Verdicts {
		if verdict.Outcome == core.Divergent {
			return true
		}
	}
	return false
}

// commitAccepted stages the accepted delta and opens the challenge
// window. Waits out a predecessor still holding the contract slot.
func (e *Engine) commitAccepted(tx *core.Transaction, r *core.ConsensusRound, accepted *core.CandidateResult) {
	txID := tx.ID()
	for {
		err := e.pipeline.Apply(txID, tx.Contract, accepted.StateDelta)
		if err == nil {
			break
		}
		if err != state.ErrContractBusy {
			logger.WithFields(log.Fields{"tx": txID, "error": err}).Error("Failed to stage accepted result")
			e.recorder.SetStatus(txID, TxRejected, result.ExecutionFault("staging failed: %v", err))
			metrics.TransactionsTotal.WithLabelValues(TxRejected.String()).Inc()
			return
		}
		select {
		case <-e.ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	metrics.PendingCommits.Set(float64(e.pipeline.PendingCount()))

	e.recorder.SetStatus(txID, TxAccepted, result.OKWith("round %v", r.Round))
	metrics.TransactionsTotal.WithLabelValues(TxAccepted.String()).Inc()
	e.finality.Track(txID, tx.Contract, r.ResultDigest, r.Round)
}

// RunAppealRound reruns consensus with an expanded committee on behalf
// of the finality manager.
func (e *Engine) RunAppealRound(ctx context.Context, tx *core.Transaction, committee *core.Committee, round uint32) (*core.ConsensusRound, *core.CandidateResult) {
	r, accepted := e.runRound(ctx, tx, committee, round)
	metrics.RoundsTotal.WithLabelValues(r.Status.String()).Inc()
	e.recorder.RecordRound(r)
	return r, accepted
}

// runRound performs one consensus round: leader first, then the rest of
// the committee in parallel, then evaluation.
func (e *Engine) runRound(ctx context.Context, tx *core.Transaction, committee *core.Committee, round uint32) (*core.ConsensusRound, *core.CandidateResult) {
	r := core.NewConsensusRound(tx.ID(), round, committee)

	leaderRes, leaderID := e.collectLeader(ctx, tx, committee, round)
	if leaderRes == nil {
		r.Status = core.RoundTimedOut
		return r, nil
	}
	r.Leader = leaderID
	r.AddResult(leaderRes)

	collectCtx, cancel := context.WithTimeout(ctx, e.collectTimeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(collectCtx)
	for _, member := range committee.Members() {
		if member.ID() == leaderID {
			continue
		}
		member := member
		g.Go(func() error {
			res, execRes := e.executor.Execute(gctx, tx, member.ID())
			if execRes.IsError() {
				logger.WithFields(log.Fields{
					"tx":        r.TxID,
					"validator": member.ID(),
					"error":     execRes.Message,
				}).Warn("Validator failed to produce a candidate result")
				return nil
			}
			mu.Lock()
			r.AddResult(res)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	r.Status = core.RoundEvaluating
	quorum := e.quorum(committee.Size())
	if r.ResultCount() < quorum {
		r.Status = core.RoundTimedOut
		return r, nil
	}

	accepted := e.evaluateRound(ctx, tx, r, quorum)
	return r, accepted
}

// evaluateRound judges the collected results: the deterministic portion
// must agree at quorum and every block must be equivalent under its
// declared principle.
func (e *Engine) evaluateRound(ctx context.Context, tx *core.Transaction, r *core.ConsensusRound, quorum int) *core.CandidateResult {
	groups := make(map[common.Hash][]string)
	for validator, res := range r.Results {
		digest := res.DeterministicDigest()
		groups[digest] = append(groups[digest], validator)
	}
	var majority common.Hash
	best := 0
	for digest, members := range groups {
		if len(members) > best || (len(members) == best && bytes.Compare(digest[:], majority[:]) < 0) {
			majority = digest
			best = len(members)
		}
	}

	flagged := make(map[string]bool)
	for digest, members := range groups {
		if digest == majority {
			continue
		}
		for _, v := range members {
			flagged[v] = true
		}
	}

	if best < quorum {
		r.FlaggedValidators = sortedKeys(flagged)
		r.Status = core.RoundRejected
		return nil
	}

	// Every counted output enters evaluation, including outputs from
	// validators whose deterministic portion dissented.
	for _, decl := range tx.Blocks {
		outputs := r.BlockOutputs(decl.ID)
		verdict, err := e.evaluator.Evaluate(ctx, decl, outputs, quorum)
		if err != nil {
			logger.WithFields(log.Fields{
				"tx":    r.TxID,
				"block": decl.ID,
				"error": err,
			}).Warn("Equivalence evaluation failed")
			r.FlaggedValidators = sortedKeys(flagged)
			r.Status = core.RoundTimedOut
			return nil
		}
		r.Verdicts[decl.ID] = verdict
		for _, v := range verdict.Dissenters {
			flagged[v] = true
		}
		if verdict.Outcome == core.Divergent {
			r.FlaggedValidators = sortedKeys(flagged)
			r.Status = core.RoundRejected
			return nil
		}
	}
	r.FlaggedValidators = sortedKeys(flagged)

	// The accepted result is the leader's when the leader sits in the
	// majority group, otherwise the smallest-ID majority member's.
	representative := ""
	for _, v := range groups[majority] {
		if v == r.Leader {
			representative = v
			break
		}
		if representative == "" || v < representative {
			representative = v
		}
	}
	accepted := r.Results[representative]
	r.ResultDigest = accepted.Digest
	r.Status = core.RoundAccepted
	return accepted
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
