package core

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"github.com/agoralabs/agora/common"
)

var (
	// ErrValidatorNotFound for ID is not found in validator set.
	ErrValidatorNotFound = errors.New("ValidatorNotFound")
)

// Validator contains the public information of a validator.
type Validator struct {
	id    string
	stake uint64
}

// NewValidator creates a new validator instance.
func NewValidator(id string, stake uint64) Validator {
	return Validator{id, stake}
}

// ID returns the identifier of the validator.
func (v Validator) ID() string {
	return v.id
}

// Stake returns the stake of the validator.
func (v Validator) Stake() uint64 {
	return v.stake
}

func (v Validator) String() string {
	return fmt.Sprintf("Validator{id: %v, stake: %v}", v.id, v.stake)
}

// ValidatorSet represents a read-only registry snapshot of validators.
type ValidatorSet struct {
	validators []Validator
}

// NewValidatorSet returns a new instance of ValidatorSet.
func NewValidatorSet() *ValidatorSet {
	return &ValidatorSet{
		validators: []Validator{},
	}
}

// Copy creates a copy of this validator set.
func (s *ValidatorSet) Copy() *ValidatorSet {
	ret := NewValidatorSet()
	for _, v := range s.Validators() {
		ret.AddValidator(v)
	}
	return ret
}

// Size returns the number of the validators in the validator set.
func (s *ValidatorSet) Size() int {
	return len(s.validators)
}

// GetValidator returns a validator if a matching ID is found.
func (s *ValidatorSet) GetValidator(id string) (Validator, error) {
	for _, v := range s.validators {
		if v.ID() == id {
			return v, nil
		}
	}
	return Validator{}, ErrValidatorNotFound
}

// AddValidator adds a validator to the validator set.
func (s *ValidatorSet) AddValidator(validator Validator) {
	s.validators = append(s.validators, validator)
}

// TotalStake returns the total stake of the validators in the set.
func (s *ValidatorSet) TotalStake() uint64 {
	ret := uint64(0)
	for _, v := range s.validators {
		ret += v.Stake()
	}
	return ret
}

// Validators returns a slice of validators.
func (s *ValidatorSet) Validators() []Validator {
	return s.validators
}

// Committee is the ordered set of validators assigned to one
// transaction. The order is a deterministic function of the transaction
// identifier, so every honest node derives the same leader rotation.
// Composition is immutable for the transaction's lifetime except for the
// explicit expansion performed on appeal.
type Committee struct {
	txID    common.Hash
	members []Validator
}

// NewCommittee creates a committee for the given transaction, ordering
// members by their per-transaction rank.
func NewCommittee(txID common.Hash, members []Validator) *Committee {
	c := &Committee{txID: txID}
	for _, m := range members {
		if c.Has(m.ID()) {
			continue
		}
		c.members = append(c.members, m)
	}
	sort.Slice(c.members, func(i, j int) bool {
		ri := memberRank(txID, c.members[i].ID())
		rj := memberRank(txID, c.members[j].ID())
		return bytes.Compare(ri[:], rj[:]) < 0
	})
	return c
}

// memberRank derives the rotation rank of a validator for a transaction.
func memberRank(txID common.Hash, validatorID string) common.Hash {
	h := sha256.New()
	h.Write(txID.Bytes())
	h.Write([]byte(validatorID))
	return common.BytesToHash(h.Sum(nil))
}

// TxID returns the transaction the committee is assigned to.
func (c *Committee) TxID() common.Hash {
	return c.txID
}

// Size returns the number of committee members.
func (c *Committee) Size() int {
	return len(c.members)
}

// Members returns the ordered committee members.
func (c *Committee) Members() []Validator {
	return c.members
}

// MemberIDs returns the ordered member identifiers.
func (c *Committee) MemberIDs() []string {
	ids := make([]string, len(c.members))
	for i, m := range c.members {
		ids[i] = m.ID()
	}
	return ids
}

// Has indicates whether the given validator is a committee member.
func (c *Committee) Has(validatorID string) bool {
	for _, m := range c.members {
		if m.ID() == validatorID {
			return true
		}
	}
	return false
}

// Leader returns the committee member soliciting the first candidate
// result for the given round and in-round attempt. Recomputed per round
// so repeated leader failures advance to a different member.
func (c *Committee) Leader(round uint32, attempt int) Validator {
	if len(c.members) == 0 {
		panic("leader requested from an empty committee")
	}
	idx := (int(round) + attempt) % len(c.members)
	return c.members[idx]
}

// Expand returns a new committee containing the current members plus
// the given additional validators, reordered under the same
// per-transaction rank.
func (c *Committee) Expand(extra []Validator) *Committee {
	merged := make([]Validator, 0, len(c.members)+len(extra))
	merged = append(merged, c.members...)
	merged = append(merged, extra...)
	return NewCommittee(c.txID, merged)
}

func (c *Committee) String() string {
	return fmt.Sprintf("Committee{tx: %v, members: %v}", c.txID, c.MemberIDs())
}
