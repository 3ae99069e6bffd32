package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agoralabs/agora/common"
)

func testValidators(ids ...string) []Validator {
	vals := make([]Validator, len(ids))
	for i, id := range ids {
		vals[i] = NewValidator(id, 100)
	}
	return vals
}

func TestValidatorSet(t *testing.T) {
	assert := assert.New(t)

	s := NewValidatorSet()
	s.AddValidator(NewValidator("v1", 100))
	s.AddValidator(NewValidator("v2", 200))
	assert.Equal(2, s.Size())
	assert.Equal(uint64(300), s.TotalStake())

	v, err := s.GetValidator("v2")
	assert.Nil(err)
	assert.Equal(uint64(200), v.Stake())

	_, err = s.GetValidator("v9")
	assert.Equal(ErrValidatorNotFound, err)

	c := s.Copy()
	c.AddValidator(NewValidator("v3", 50))
	assert.Equal(2, s.Size())
	assert.Equal(3, c.Size())
}

func TestCommitteeOrderIsDeterministic(t *testing.T) {
	assert := assert.New(t)

	txID := common.DigestBytes([]byte("tx-a"))
	c1 := NewCommittee(txID, testValidators("v1", "v2", "v3", "v4", "v5"))
	c2 := NewCommittee(txID, testValidators("v5", "v3", "v1", "v4", "v2"))
	assert.Equal(c1.MemberIDs(), c2.MemberIDs(), "order must not depend on insertion order")

	// A different transaction yields a different rotation.
	other := NewCommittee(common.DigestBytes([]byte("tx-b")), testValidators("v1", "v2", "v3", "v4", "v5"))
	assert.NotEqual(c1.MemberIDs(), other.MemberIDs())
}

func TestCommitteeDedup(t *testing.T) {
	assert := assert.New(t)

	txID := common.DigestBytes([]byte("tx-a"))
	c := NewCommittee(txID, testValidators("v1", "v2", "v1", "v3", "v2"))
	assert.Equal(3, c.Size())
	assert.True(c.Has("v1"))
	assert.False(c.Has("v4"))
}

func TestCommitteeLeaderRotation(t *testing.T) {
	assert := assert.New(t)

	txID := common.DigestBytes([]byte("tx-a"))
	c := NewCommittee(txID, testValidators("v1", "v2", "v3", "v4", "v5"))
	members := c.Members()

	assert.Equal(members[0], c.Leader(0, 0))
	assert.Equal(members[1], c.Leader(1, 0))
	assert.Equal(members[1], c.Leader(0, 1), "a failed attempt advances the leader")
	assert.Equal(members[0], c.Leader(0, 5), "rotation wraps around")
	assert.Equal(members[2], c.Leader(1, 1))
}

func TestCommitteeExpand(t *testing.T) {
	assert := assert.New(t)

	txID := common.DigestBytes([]byte("tx-a"))
	c := NewCommittee(txID, testValidators("v1", "v2", "v3"))
	expanded := c.Expand(testValidators("v4", "v5"))

	assert.Equal(3, c.Size(), "original committee is unchanged")
	assert.Equal(5, expanded.Size())
	for _, id := range c.MemberIDs() {
		assert.True(expanded.Has(id))
	}

	// Reference ordering from scratch matches the expanded committee.
	ref := NewCommittee(txID, testValidators("v1", "v2", "v3", "v4", "v5"))
	assert.Equal(ref.MemberIDs(), expanded.MemberIDs())
}
