package core

import (
	"fmt"
	"sort"

	"github.com/agoralabs/agora/common"
)

// RoundStatus is the state of a consensus round.
type RoundStatus byte

const (
	RoundCollecting RoundStatus = iota
	RoundEvaluating
	RoundAccepted
	RoundRejected
	RoundTimedOut
)

func (s RoundStatus) String() string {
	switch s {
	case RoundCollecting:
		return "Collecting"
	case RoundEvaluating:
		return "Evaluating"
	case RoundAccepted:
		return "Accepted"
	case RoundRejected:
		return "Rejected"
	case RoundTimedOut:
		return "TimedOut"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

// IsTerminal indicates whether the status is final for the round.
func (s RoundStatus) IsTerminal() bool {
	return s == RoundAccepted || s == RoundRejected || s == RoundTimedOut
}

// VerdictOutcome is the outcome of an equivalence evaluation.
type VerdictOutcome byte

const (
	Equivalent VerdictOutcome = iota
	Divergent
)

func (o VerdictOutcome) String() string {
	if o == Equivalent {
		return "Equivalent"
	}
	return "Divergent"
}

// EquivalenceVerdict is the evaluator's decision for one
// non-deterministic block across the collected candidate results.
type EquivalenceVerdict struct {
	BlockID string         `json:"blockId"`
	Outcome VerdictOutcome `json:"outcome"`

	// CanonicalOutput is the elected output when Equivalent. Under the
	// non-comparative principle "canonical" means "accepted": each
	// validator keeps its own output, recorded in PerValidator.
	CanonicalOutput common.Bytes            `json:"canonicalOutput,omitempty"`
	PerValidator    map[string]common.Bytes `json:"perValidator,omitempty"`

	// Dissenters lists validators outside the agreeing cluster.
	Dissenters []string `json:"dissenters,omitempty"`
}

// ConsensusRound is one attempt to reach agreement on a transaction.
// Rounds are append-only history: once a round reaches a terminal
// status it is never mutated.
type ConsensusRound struct {
	TxID      common.Hash `json:"txId"`
	Round     uint32      `json:"round"`
	Leader    string      `json:"leader"`
	Committee []string    `json:"committee"`

	Results  map[string]*CandidateResult    `json:"results,omitempty"`
	Verdicts map[string]*EquivalenceVerdict `json:"verdicts,omitempty"`

	// FlaggedValidators lists members whose deterministic portion
	// disagreed with the majority; reported to the (external)
	// staking subsystem, never penalized here.
	FlaggedValidators []string `json:"flaggedValidators,omitempty"`

	// ResultDigest is the digest of the accepted result when the round
	// reaches Accepted.
	ResultDigest common.Hash `json:"resultDigest,omitempty"`

	Status RoundStatus `json:"status"`
}

// NewConsensusRound creates a round in the Collecting state.
func NewConsensusRound(txID common.Hash, round uint32, committee *Committee) *ConsensusRound {
	return &ConsensusRound{
		TxID:      txID,
		Round:     round,
		Committee: committee.MemberIDs(),
		Results:   make(map[string]*CandidateResult),
		Verdicts:  make(map[string]*EquivalenceVerdict),
		Status:    RoundCollecting,
	}
}

// AddResult records a committee member's candidate result. The first
// submission per validator wins; later ones are ignored.
func (r *ConsensusRound) AddResult(res *CandidateResult) bool {
	member := false
	for _, id := range r.Committee {
		if id == res.Validator {
			member = true
			break
		}
	}
	if !member {
		return false
	}
	if _, ok := r.Results[res.Validator]; ok {
		return false
	}
	r.Results[res.Validator] = res
	return true
}

// ResultCount returns the number of collected candidate results.
func (r *ConsensusRound) ResultCount() int {
	return len(r.Results)
}

// BlockOutputs collects the raw outputs for one block across all
// counted candidate results, keyed by validator.
func (r *ConsensusRound) BlockOutputs(blockID string) map[string]common.Bytes {
	outputs := make(map[string]common.Bytes, len(r.Results))
	for validator, res := range r.Results {
		if out, ok := res.BlockOutputs[blockID]; ok {
			outputs[validator] = out
		}
	}
	return outputs
}

// Responders returns the sorted identifiers of members that responded.
func (r *ConsensusRound) Responders() []string {
	ids := make([]string, 0, len(r.Results))
	for id := range r.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *ConsensusRound) String() string {
	return fmt.Sprintf("ConsensusRound{tx: %v, round: %d, leader: %v, results: %d, status: %v}",
		r.TxID, r.Round, r.Leader, len(r.Results), r.Status)
}
