package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agoralabs/agora/common"
)

func testCandidate(txID common.Hash, validator string, ret string, outputs map[string]common.Bytes) *CandidateResult {
	res := &CandidateResult{
		TxID:         txID,
		Validator:    validator,
		ReturnValue:  []byte(ret),
		StateDelta:   map[string]common.Bytes{"price": []byte("100")},
		BlockOutputs: outputs,
	}
	res.Seal()
	return res
}

func TestCandidateDeterministicDigest(t *testing.T) {
	assert := assert.New(t)

	txID := common.DigestBytes([]byte("tx-a"))
	a := testCandidate(txID, "v1", "ok", map[string]common.Bytes{"b1": []byte("sunny")})
	b := testCandidate(txID, "v2", "ok", map[string]common.Bytes{"b1": []byte("clear skies")})

	// The deterministic digest ignores block outputs; the full digest
	// does not.
	assert.Equal(a.DeterministicDigest(), b.DeterministicDigest())
	assert.NotEqual(a.Digest, b.Digest)

	c := testCandidate(txID, "v3", "fail", map[string]common.Bytes{"b1": []byte("sunny")})
	assert.NotEqual(a.DeterministicDigest(), c.DeterministicDigest())
}

func TestCandidateCopy(t *testing.T) {
	assert := assert.New(t)

	txID := common.DigestBytes([]byte("tx-a"))
	orig := testCandidate(txID, "v1", "ok", map[string]common.Bytes{"b1": []byte("sunny")})
	cp := orig.Copy()
	assert.Equal(orig.Digest, cp.Digest)

	cp.StateDelta["price"] = []byte("999")
	cp.BlockOutputs["b1"] = []byte("rain")
	assert.Equal(common.Bytes("100"), orig.StateDelta["price"])
	assert.Equal(common.Bytes("sunny"), orig.BlockOutputs["b1"])
}

func TestConsensusRoundAddResult(t *testing.T) {
	assert := assert.New(t)

	txID := common.DigestBytes([]byte("tx-a"))
	committee := NewCommittee(txID, testValidators("v1", "v2", "v3"))
	round := NewConsensusRound(txID, 0, committee)
	assert.Equal(RoundCollecting, round.Status)
	assert.False(round.Status.IsTerminal())

	assert.True(round.AddResult(testCandidate(txID, "v1", "ok", nil)))
	assert.True(round.AddResult(testCandidate(txID, "v2", "ok", nil)))
	assert.Equal(2, round.ResultCount())

	// Non-members and duplicate submissions are ignored.
	assert.False(round.AddResult(testCandidate(txID, "v9", "ok", nil)))
	assert.False(round.AddResult(testCandidate(txID, "v1", "other", nil)))
	assert.Equal(2, round.ResultCount())
	assert.Equal(common.Bytes("ok"), round.Results["v1"].ReturnValue)

	assert.Equal([]string{"v1", "v2"}, round.Responders())
}

func TestConsensusRoundBlockOutputs(t *testing.T) {
	assert := assert.New(t)

	txID := common.DigestBytes([]byte("tx-a"))
	committee := NewCommittee(txID, testValidators("v1", "v2", "v3"))
	round := NewConsensusRound(txID, 0, committee)

	round.AddResult(testCandidate(txID, "v1", "ok", map[string]common.Bytes{"b1": []byte("sunny")}))
	round.AddResult(testCandidate(txID, "v2", "ok", map[string]common.Bytes{"b1": []byte("clear")}))
	round.AddResult(testCandidate(txID, "v3", "ok", nil))

	outputs := round.BlockOutputs("b1")
	assert.Equal(2, len(outputs))
	assert.Equal(common.Bytes("sunny"), outputs["v1"])
	assert.Equal(common.Bytes("clear"), outputs["v2"])
}

func TestFinalityWindow(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	fr := &FinalityRecord{
		TxID:        common.DigestBytes([]byte("tx-a")),
		WindowOpen:  now,
		WindowClose: now.Add(30 * time.Second),
		Status:      Provisional,
	}

	assert.True(fr.WindowIsOpen(now))
	assert.True(fr.WindowIsOpen(now.Add(29 * time.Second)))
	assert.False(fr.WindowIsOpen(now.Add(30*time.Second)), "window close is exclusive")
	assert.False(fr.WindowIsOpen(now.Add(-time.Second)))

	fr.Status = Final
	assert.False(fr.WindowIsOpen(now), "a final record accepts no appeals")
}
