package mempool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agoralabs/agora/common/result"
	"github.com/agoralabs/agora/consensus"
	"github.com/agoralabs/agora/core"
	"github.com/agoralabs/agora/equivalence"
	"github.com/agoralabs/agora/ledger/state"
	"github.com/agoralabs/agora/store/database/backend"
	"github.com/agoralabs/agora/store/kvstore"
)

func newTestMempool(t *testing.T) *Mempool {
	db := backend.NewMemDatabase()
	kv := kvstore.NewKVStore(db)
	pipeline, err := state.NewCommitPipeline(db, kv)
	assert.Nil(t, err)

	registry := core.NewValidatorSet()
	for _, id := range []string{"v1", "v2", "v3"} {
		registry.AddValidator(core.NewValidator(id, 100))
	}
	selector := consensus.NewCommitteeSelector(registry)
	engine := consensus.NewEngine(selector, nil, equivalence.NewEvaluator(nil), pipeline, consensus.NewStatusRecorder(kv))
	return CreateMempool(engine)
}

func testTx(nonce uint64) *core.Transaction {
	return &core.Transaction{
		Sender:   "alice",
		Contract: "oracle",
		Method:   "settle",
		Nonce:    nonce,
		Blocks: []core.BlockDecl{{
			ID:        "price",
			Kind:      core.CapabilityWeb,
			Payload:   []byte(`{"url": "https://feeds.example/price"}`),
			Principle: core.PrincipleStrict,
		}},
	}
}

func TestProcessTransaction(t *testing.T) {
	assert := assert.New(t)

	mp := newTestMempool(t)
	assert.True(mp.ProcessTransaction(testTx(1)).IsOK())
	assert.True(mp.ProcessTransaction(testTx(2)).IsOK())
	assert.Equal(2, mp.Size())

	mp.Flush()
	assert.Equal(0, mp.Size())
}

func TestRejectsDuplicates(t *testing.T) {
	assert := assert.New(t)

	mp := newTestMempool(t)
	assert.True(mp.ProcessTransaction(testTx(1)).IsOK())

	res := mp.ProcessTransaction(testTx(1))
	assert.True(res.IsError())
	assert.Equal(result.CodeInvalidTransaction, res.Code)
	assert.Equal(1, mp.Size())
}

func TestRejectsInvalidTransaction(t *testing.T) {
	assert := assert.New(t)

	mp := newTestMempool(t)
	tx := testTx(1)
	tx.Sender = ""
	res := mp.ProcessTransaction(tx)
	assert.True(res.IsError())
	assert.Equal(0, mp.Size())
}

func TestDrainsInArrivalOrder(t *testing.T) {
	assert := assert.New(t)

	mp := newTestMempool(t)
	first := testTx(1)
	second := testTx(2)
	third := testTx(3)
	assert.True(mp.ProcessTransaction(first).IsOK())
	assert.True(mp.ProcessTransaction(second).IsOK())
	assert.True(mp.ProcessTransaction(third).IsOK())

	got := mp.txCandidates.Pop().(*mempoolTransaction)
	assert.Equal(first.ID(), got.tx.ID())
	got = mp.txCandidates.Pop().(*mempoolTransaction)
	assert.Equal(second.ID(), got.tx.ID())
	got = mp.txCandidates.Pop().(*mempoolTransaction)
	assert.Equal(third.ID(), got.tx.ID())
}
