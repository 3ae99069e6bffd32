package consensus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agoralabs/agora/capability"
	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/result"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/equivalence"
	"github.com/agoralabs/agora/ledger/state"
	"github.com/agoralabs/agora/store/database/backend"
	"github.com/agoralabs/agora/store/kvstore"
)

// scriptedExecutor fabricates candidate results per validator, standing
// in for the sandbox.
type scriptedExecutor struct {
	mu      sync.Mutex
	outputs func(validator string) common.Bytes
	fail    map[string]bool
}

func (s *scriptedExecutor) Execute(ctx context.Context, tx *core.Transaction, validatorID string) (*core.CandidateResult, result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail[validatorID] {
		return nil, result.TimeoutFault("scripted failure")
	}
	out := s.outputs(validatorID)
	res := &core.CandidateResult{
		TxID:        tx.ID(),
		Validator:   validatorID,
		ReturnValue: []byte(`{"ok":true}`),
		StateDelta:  map[string]common.Bytes{tx.Contract + "/answer": out},
		BlockOutputs: map[string]common.Bytes{
			tx.Blocks[0].ID: out,
		},
	}
	res.Seal()
	return res, result.OK
}

func (s *scriptedExecutor) setOutputs(f func(validator string) common.Bytes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = f
}

func uniform(out string) func(string) common.Bytes {
	return func(string) common.Bytes { return []byte(out) }
}

// literalArbiter answers comparative questions by literal comparison.
var literalArbiter = capability.ProviderFunc(func(ctx context.Context, spec capability.BlockSpec) (common.Bytes, error) {
	var pair struct {
		OutputA string `json:"outputA"`
		OutputB string `json:"outputB"`
	}
	if err := json.Unmarshal(spec.Payload, &pair); err != nil {
		return nil, err
	}
	if pair.OutputA == pair.OutputB {
		return []byte("yes"), nil
	}
	return []byte("no"), nil
})

type harness struct {
	engine   *Engine
	finality *FinalityManager
	pipeline *state.CommitPipeline
	recorder *StatusRecorder
}

func newHarness(t *testing.T, exec CandidateExecutor, arbiter capability.Provider) *harness {
	db := backend.NewMemDatabase()
	kv := kvstore.NewKVStore(db)
	pipeline, err := state.NewCommitPipeline(db, kv)
	assert.Nil(t, err)
	recorder := NewStatusRecorder(kv)

	registry := core.NewValidatorSet()
	for _, id := range []string{"v1", "v2", "v3", "v4", "v5"} {
		registry.AddValidator(core.NewValidator(id, 100))
	}
	selector := NewCommitteeSelector(registry)

	engine := NewEngine(selector, exec, equivalence.NewEvaluator(arbiter), pipeline, recorder)
	fm := NewFinalityManager(kv, pipeline, recorder, selector, engine)
	engine.SetFinalityManager(fm)

	// Drive both synchronously instead of starting their loops.
	engine.ctx, engine.cancel = context.WithCancel(context.Background())
	fm.ctx, fm.cancel = context.WithCancel(context.Background())

	return &harness{engine: engine, finality: fm, pipeline: pipeline, recorder: recorder}
}

func (h *harness) run(t *testing.T, tx *core.Transaction) {
	admitted, err := h.recorder.Admit(tx)
	assert.Nil(t, err)
	assert.True(t, admitted)
	h.engine.processTransaction(tx)
}

func comparativeTx() *core.Transaction {
	return &core.Transaction{
		Sender:   "alice",
		Contract: "oracle",
		Method:   "settle",
		Nonce:    1,
		Blocks: []core.BlockDecl{{
			ID:        "price",
			Kind:      core.CapabilityWeb,
			Payload:   []byte(`{"url": "https://feeds.example/price"}`),
			Principle: core.PrincipleComparative,
			Question:  "Do the responses report the same price?",
		}},
	}
}

func strictTx() *core.Transaction {
	tx := comparativeTx()
	tx.Blocks[0].Principle = core.PrincipleStrict
	tx.Blocks[0].Question = ""
	return tx
}

func TestEngineAcceptsAndFinalizes(t *testing.T) {
	assert := assert.New(t)

	exec := &scriptedExecutor{outputs: uniform(`"42000"`)}
	h := newHarness(t, exec, literalArbiter)

	tx := comparativeTx()
	h.run(t, tx)
	txID := tx.ID()

	status, err := h.recorder.Status(txID)
	assert.Nil(err)
	assert.Equal(TxAccepted, status.Current)

	// The result is provisional: state is staged but not readable.
	record, ok := h.finality.Record(txID)
	assert.True(ok)
	assert.Equal(core.Provisional, record.Status)
	_, err = h.pipeline.Get("oracle/answer")
	assert.NotNil(err)

	// The audit trail keeps the round.
	round, err := h.recorder.Round(txID, 0)
	assert.Nil(err)
	assert.Equal(core.RoundAccepted, round.Status)
	assert.Equal(5, round.ResultCount())
	assert.Empty(round.FlaggedValidators)

	// Window expiry finalizes the commit.
	h.finality.sweep(record.WindowClose.Add(time.Second))
	status, err = h.recorder.Status(txID)
	assert.Nil(err)
	assert.Equal(TxFinalized, status.Current)

	v, err := h.pipeline.Get("oracle/answer")
	assert.Nil(err)
	assert.Equal(common.Bytes(`"42000"`), v)

	record, _ = h.finality.Record(txID)
	assert.Equal(core.Final, record.Status)
}

func TestEngineAcceptsWithDissenter(t *testing.T) {
	assert := assert.New(t)

	exec := &scriptedExecutor{outputs: func(v string) common.Bytes {
		if v == "v4" {
			return []byte(`"41900"`)
		}
		return []byte(`"42000"`)
	}}
	h := newHarness(t, exec, literalArbiter)

	tx := comparativeTx()
	h.run(t, tx)

	status, err := h.recorder.Status(tx.ID())
	assert.Nil(err)
	assert.Equal(TxAccepted, status.Current, "a 4-of-5 cluster meets quorum")

	round, err := h.recorder.Round(tx.ID(), 0)
	assert.Nil(err)
	assert.Equal([]string{"v4"}, round.FlaggedValidators)
	assert.Equal(core.Equivalent, round.Verdicts["price"].Outcome)
	assert.Equal(common.Bytes(`"42000"`), round.Verdicts["price"].CanonicalOutput)
}

func TestEngineStrictDivergenceRejects(t *testing.T) {
	assert := assert.New(t)

	exec := &scriptedExecutor{outputs: func(v string) common.Bytes {
		if v == "v4" {
			return []byte(`"41999"`)
		}
		return []byte(`"42000"`)
	}}
	h := newHarness(t, exec, nil)

	tx := strictTx()
	h.run(t, tx)

	status, err := h.recorder.Status(tx.ID())
	assert.Nil(err)
	assert.Equal(TxRejected, status.Current, "strict admits no dissent even above quorum")
	assert.Equal(result.CodeDivergenceFault, status.History[len(status.History)-1].Code)

	// Every round of the budget was tried and rejected.
	for round := uint32(0); round < h.engine.maxRounds; round++ {
		r, err := h.recorder.Round(tx.ID(), round)
		assert.Nil(err)
		assert.Equal(core.RoundRejected, r.Status)
	}

	// Nothing was staged.
	assert.Equal(0, h.pipeline.PendingCount())
	_, ok := h.finality.Record(tx.ID())
	assert.False(ok)
}

func TestEngineQuorumTimeout(t *testing.T) {
	assert := assert.New(t)

	exec := &scriptedExecutor{
		outputs: uniform(`"42000"`),
		fail:    map[string]bool{"v2": true, "v3": true},
	}
	h := newHarness(t, exec, literalArbiter)

	tx := comparativeTx()
	h.run(t, tx)

	// Every round of the budget timed out, so the transaction reports
	// TimedOut rather than a rejection.
	status, err := h.recorder.Status(tx.ID())
	assert.Nil(err)
	assert.Equal(TxTimedOut, status.Current)
	assert.Equal(result.CodeTimeoutFault, status.History[len(status.History)-1].Code)

	for round := uint32(0); round < h.engine.maxRounds; round++ {
		r, err := h.recorder.Round(tx.ID(), round)
		assert.Nil(err)
		assert.Equal(core.RoundTimedOut, r.Status, "3 of 5 responses misses the 4-member quorum")
	}
}

func TestEngineLeaderRotation(t *testing.T) {
	assert := assert.New(t)

	tx := comparativeTx()
	committee, err := NewCommitteeSelector(fiveValidatorRegistry()).SelectCommittee(tx.ID())
	assert.Nil(err)
	firstLeader := committee.Leader(0, 0).ID()

	exec := &scriptedExecutor{
		outputs: uniform(`"42000"`),
		fail:    map[string]bool{firstLeader: true},
	}
	h := newHarness(t, exec, literalArbiter)
	h.run(t, tx)

	// One member down still leaves the 4-member quorum; a different
	// leader took over.
	status, err := h.recorder.Status(tx.ID())
	assert.Nil(err)
	assert.Equal(TxAccepted, status.Current)

	r, err := h.recorder.Round(tx.ID(), 0)
	assert.Nil(err)
	assert.Equal(committee.Leader(0, 1).ID(), r.Leader)
}

func fiveValidatorRegistry() *core.ValidatorSet {
	registry := core.NewValidatorSet()
	for _, id := range []string{"v1", "v2", "v3", "v4", "v5"} {
		registry.AddValidator(core.NewValidator(id, 100))
	}
	return registry
}

func TestEngineRejectsWithoutMinCommittee(t *testing.T) {
	assert := assert.New(t)

	db := backend.NewMemDatabase()
	kv := kvstore.NewKVStore(db)
	pipeline, err := state.NewCommitPipeline(db, kv)
	assert.Nil(err)
	recorder := NewStatusRecorder(kv)

	registry := core.NewValidatorSet()
	registry.AddValidator(core.NewValidator("v1", 100))
	selector := NewCommitteeSelector(registry)

	exec := &scriptedExecutor{outputs: uniform(`"1"`)}
	engine := NewEngine(selector, exec, equivalence.NewEvaluator(nil), pipeline, recorder)
	engine.SetFinalityManager(NewFinalityManager(kv, pipeline, recorder, selector, engine))
	engine.ctx, engine.cancel = context.WithCancel(context.Background())

	tx := strictTx()
	_, err = recorder.Admit(tx)
	assert.Nil(err)
	engine.processTransaction(tx)

	status, err := recorder.Status(tx.ID())
	assert.Nil(err)
	assert.Equal(TxRejected, status.Current)
	assert.Equal(result.CodeValidatorFault, status.History[len(status.History)-1].Code)
}

func TestEngineSerializesPerContract(t *testing.T) {
	assert := assert.New(t)

	exec := &scriptedExecutor{outputs: uniform(`"42000"`)}
	h := newHarness(t, exec, literalArbiter)

	tx1 := comparativeTx()
	h.run(t, tx1)

	// The second transaction targets the same contract while tx1 is
	// provisional. It is accepted by consensus but its commit waits for
	// tx1 to leave the pipeline.
	tx2 := comparativeTx()
	tx2.Nonce = 2

	done := make(chan struct{})
	go func() {
		h.run(t, tx2)
		close(done)
	}()

	select {
	case <-done:
		assert.Fail("tx2 committed while tx1 held the contract")
	case <-time.After(200 * time.Millisecond):
	}

	// Finalizing tx1 releases the slot.
	record, _ := h.finality.Record(tx1.ID())
	h.finality.sweep(record.WindowClose.Add(time.Second))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		assert.Fail("tx2 never committed after tx1 finalized")
	}

	status, err := h.recorder.Status(tx2.ID())
	assert.Nil(err)
	assert.Equal(TxAccepted, status.Current)
}

func TestEngineAddTransactionQueue(t *testing.T) {
	assert := assert.New(t)

	exec := &scriptedExecutor{outputs: uniform(`"1"`)}
	h := newHarness(t, exec, literalArbiter)
	assert.True(h.engine.AddTransaction(strictTx()).IsOK())
}
