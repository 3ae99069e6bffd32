package core

import (
	"fmt"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/result"
)

// PrincipleType names the equivalence principle declared for a
// non-deterministic block. It is fixed by the transaction author at
// declaration time and never chosen by validators.
type PrincipleType byte

const (
	// PrincipleStrict accepts only byte-identical outputs after canonicalization.
	PrincipleStrict PrincipleType = iota
	// PrincipleComparative clusters outputs by pairwise semantic agreement.
	PrincipleComparative
	// PrincipleNonComparative judges each output independently against author criteria.
	PrincipleNonComparative
)

func (p PrincipleType) String() string {
	switch p {
	case PrincipleStrict:
		return "strict"
	case PrincipleComparative:
		return "comparative"
	case PrincipleNonComparative:
		return "non-comparative"
	default:
		return fmt.Sprintf("unknown(%d)", byte(p))
	}
}

// CapabilityKind names the external capability a block invokes.
type CapabilityKind string

const (
	CapabilityLLM CapabilityKind = "llm"
	CapabilityWeb CapabilityKind = "web"
)

// BlockDecl declares one non-deterministic block of a transaction: the
// capability it invokes and the equivalence principle used to judge the
// outputs collected from the committee.
type BlockDecl struct {
	ID        string         `json:"id"`
	Kind      CapabilityKind `json:"kind"`
	Payload   common.Bytes   `json:"payload"`
	Principle PrincipleType  `json:"principle"`

	// Question is the natural-language equivalence question for the
	// comparative principle.
	Question string `json:"question,omitempty"`
	// Criteria is the author-supplied acceptance criteria for the
	// non-comparative principle.
	Criteria string `json:"criteria,omitempty"`

	// State-access markers produced by the (external) contract
	// validator. A block touching contract state is rejected at
	// admission, never at runtime.
	ReadsState  bool `json:"readsState,omitempty"`
	WritesState bool `json:"writesState,omitempty"`
}

// Transaction is a request to execute a contract method whose execution
// may include non-deterministic blocks. Immutable once admitted.
type Transaction struct {
	Sender   string       `json:"sender"`
	Contract string       `json:"contract"`
	Method   string       `json:"method"`
	Args     common.Bytes `json:"args"`
	Nonce    uint64       `json:"nonce"`
	Blocks   []BlockDecl  `json:"blocks"`
}

// ID returns the digest identifying the transaction.
func (tx *Transaction) ID() common.Hash {
	h, err := common.DigestJSON(tx)
	if err != nil {
		// Transaction fields are all JSON-serializable by construction.
		panic(fmt.Sprintf("failed to digest transaction: %v", err))
	}
	return h
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("Transaction{id: %v, sender: %v, contract: %v, method: %v, blocks: %d}",
		tx.ID(), tx.Sender, tx.Contract, tx.Method, len(tx.Blocks))
}

// Validate checks a transaction at admission time.
func (tx *Transaction) Validate() result.Result {
	if tx.Sender == "" {
		return result.Error("transaction has no sender").WithErrorCode(result.CodeInvalidTransaction)
	}
	if tx.Contract == "" {
		return result.Error("transaction has no target contract").WithErrorCode(result.CodeInvalidTransaction)
	}
	if tx.Method == "" {
		return result.Error("transaction has no method").WithErrorCode(result.CodeInvalidTransaction)
	}

	seen := make(map[string]bool)
	for _, block := range tx.Blocks {
		if block.ID == "" {
			return result.Error("non-deterministic block has no identifier").WithErrorCode(result.CodeInvalidTransaction)
		}
		if seen[block.ID] {
			return result.Error("duplicate non-deterministic block: %v", block.ID).WithErrorCode(result.CodeInvalidTransaction)
		}
		seen[block.ID] = true

		// Isolation boundary: a non-deterministic block may not read or
		// write contract state.
		if block.ReadsState || block.WritesState {
			return result.Error("block %v accesses contract state", block.ID).WithErrorCode(result.CodeInvalidTransaction)
		}

		switch block.Kind {
		case CapabilityLLM, CapabilityWeb:
		default:
			return result.Error("block %v has unknown capability kind: %v", block.ID, block.Kind).WithErrorCode(result.CodeInvalidTransaction)
		}

		switch block.Principle {
		case PrincipleStrict:
		case PrincipleComparative:
			if block.Question == "" {
				return result.Error("comparative block %v has no question", block.ID).WithErrorCode(result.CodeInvalidTransaction)
			}
		case PrincipleNonComparative:
			if block.Criteria == "" {
				return result.Error("non-comparative block %v has no criteria", block.ID).WithErrorCode(result.CodeInvalidTransaction)
			}
		default:
			return result.Error("block %v has unknown principle: %v", block.ID, block.Principle).WithErrorCode(result.CodeInvalidTransaction)
		}
	}

	return result.OK
}

// Block returns the declaration of the block with the given ID.
func (tx *Transaction) Block(id string) (BlockDecl, bool) {
	for _, block := range tx.Blocks {
		if block.ID == id {
			return block, true
		}
	}
	return BlockDecl{}, false
}
