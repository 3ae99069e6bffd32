package consensus

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"sort"

	"github.com/spf13/viper"

	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/core"
)

// ErrCommitteeTooSmall is returned when the registry cannot seat the
// minimum legal committee.
var ErrCommitteeTooSmall = errors.New("CommitteeTooSmall")

// CommitteeSelector draws per-transaction committees from a registry
// snapshot. Selection is a pure function of the transaction identifier
// and the registry, so every honest node derives the same committee.
type CommitteeSelector struct {
	registry      *core.ValidatorSet
	committeeSize int
	minSize       int
}

// NewCommitteeSelector creates a selector over the registry snapshot.
func NewCommitteeSelector(registry *core.ValidatorSet) *CommitteeSelector {
	return &CommitteeSelector{
		registry:      registry,
		committeeSize: viper.GetInt(common.CfgConsensusCommitteeSize),
		minSize:       viper.GetInt(common.CfgConsensusMinCommitteeSize),
	}
}

// rankedValidators orders the registry by per-transaction rank.
func (cs *CommitteeSelector) rankedValidators(txID common.Hash) []core.Validator {
	ranked := append([]core.Validator{}, cs.registry.Validators()...)
	sort.Slice(ranked, func(i, j int) bool {
		ri := selectorRank(txID, ranked[i].ID())
		rj := selectorRank(txID, ranked[j].ID())
		return bytes.Compare(ri[:], rj[:]) < 0
	})
	return ranked
}

func selectorRank(txID common.Hash, validatorID string) common.Hash {
	h := sha256.New()
	h.Write([]byte("select/"))
	h.Write(txID.Bytes())
	h.Write([]byte(validatorID))
	return common.BytesToHash(h.Sum(nil))
}

// SelectCommittee draws the committee for a transaction.
func (cs *CommitteeSelector) SelectCommittee(txID common.Hash) (*core.Committee, error) {
	if cs.registry.Size() < cs.minSize {
		return nil, ErrCommitteeTooSmall
	}
	ranked := cs.rankedValidators(txID)
	if len(ranked) > cs.committeeSize {
		ranked = ranked[:cs.committeeSize]
	}
	return core.NewCommittee(txID, ranked), nil
}

// ExpandCommittee returns the committee grown by up to extra registry
// validators not already seated, for an appeal round. When the registry
// has no spare validators the committee is returned unchanged.
func (cs *CommitteeSelector) ExpandCommittee(committee *core.Committee, extra int) *core.Committee {
	var spare []core.Validator
	for _, v := range cs.rankedValidators(committee.TxID()) {
		if len(spare) == extra {
			break
		}
		if !committee.Has(v.ID()) {
			spare = append(spare, v)
		}
	}
	if len(spare) == 0 {
		return committee
	}
	return committee.Expand(spare)
}
