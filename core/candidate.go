package core

import (
	"crypto/sha256"
	"fmt"

	"github.com/agoralabs/agora/common"
)

// CandidateResult is the outcome of one validator's sandbox run. It is
// owned exclusively by the producing validator until submitted to the
// consensus coordinator.
type CandidateResult struct {
	TxID      common.Hash `json:"txId"`
	Validator string      `json:"validator"`

	// Deterministic portion: byte-identical across honest validators.
	ReturnValue common.Bytes            `json:"returnValue"`
	StateDelta  map[string]common.Bytes `json:"stateDelta,omitempty"`

	// Raw output of each non-deterministic block, captured verbatim.
	BlockOutputs map[string]common.Bytes `json:"blockOutputs,omitempty"`

	Digest common.Hash `json:"digest"`
}

// DeterministicDigest digests only the deterministic portion (return
// value and state delta). Honest validators agree on this digest even
// when their non-deterministic outputs legitimately differ.
func (r *CandidateResult) DeterministicDigest() common.Hash {
	h := sha256.New()
	h.Write(r.ReturnValue)
	h.Write([]byte{0})
	delta := common.DigestMap(r.StateDelta)
	h.Write(delta.Bytes())
	return common.BytesToHash(h.Sum(nil))
}

// Seal computes and stores the digest over the full candidate result.
func (r *CandidateResult) Seal() {
	h := sha256.New()
	h.Write(r.TxID.Bytes())
	det := r.DeterministicDigest()
	h.Write(det.Bytes())
	outputs := common.DigestMap(r.BlockOutputs)
	h.Write(outputs.Bytes())
	r.Digest = common.BytesToHash(h.Sum(nil))
}

// Copy creates a deep copy of the candidate result.
func (r *CandidateResult) Copy() *CandidateResult {
	ret := &CandidateResult{
		TxID:        r.TxID,
		Validator:   r.Validator,
		ReturnValue: common.CopyBytes(r.ReturnValue),
		Digest:      r.Digest,
	}
	if r.StateDelta != nil {
		ret.StateDelta = make(map[string]common.Bytes, len(r.StateDelta))
		for k, v := range r.StateDelta {
			ret.StateDelta[k] = common.CopyBytes(v)
		}
	}
	if r.BlockOutputs != nil {
		ret.BlockOutputs = make(map[string]common.Bytes, len(r.BlockOutputs))
		for k, v := range r.BlockOutputs {
			ret.BlockOutputs[k] = common.CopyBytes(v)
		}
	}
	return ret
}

func (r *CandidateResult) String() string {
	return fmt.Sprintf("CandidateResult{tx: %v, validator: %v, digest: %v}", r.TxID, r.Validator, r.Digest)
}
