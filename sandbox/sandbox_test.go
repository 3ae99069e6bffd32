package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agoralabs/agora/capability"
	"github.com/agoralabs/agora/common"
	"github.com/agoralabs/agora/common/result"
	"github.com/agoralabs/agora/core"
)

func testTx() *core.Transaction {
	return &core.Transaction{
		Sender:   "alice",
		Contract: "weather",
		Method:   "report",
		Nonce:    1,
		Blocks: []core.BlockDecl{
			{
				ID:        "forecast",
				Kind:      core.CapabilityLLM,
				Payload:   []byte(`{"prompt": "forecast for tomorrow"}`),
				Principle: core.PrincipleStrict,
			},
		},
	}
}

func fixedProvider(out string) capability.Provider {
	return capability.ProviderFunc(func(ctx context.Context, spec capability.BlockSpec) (common.Bytes, error) {
		return []byte(out), nil
	})
}

func TestSandboxExecute(t *testing.T) {
	assert := assert.New(t)

	sb := NewSandbox(fixedProvider(`{"temp": 21}`), NewEchoRunner())
	res, r := sb.Execute(context.Background(), testTx(), "v1")
	assert.True(r.IsOK())
	assert.Equal("v1", res.Validator)
	assert.Equal(testTx().ID(), res.TxID)
	assert.Equal(common.Bytes(`{"temp": 21}`), res.BlockOutputs["forecast"], "block outputs are captured verbatim")
	assert.Equal(common.Bytes(`{"temp":21}`), res.StateDelta["weather/block/forecast"])
	assert.False(res.Digest.IsEmpty())
}

func TestSandboxDeterministicDigestAgreement(t *testing.T) {
	assert := assert.New(t)

	// Two validators observing canonically equal outputs agree on the
	// deterministic digest even though the raw bytes differ.
	sb1 := NewSandbox(fixedProvider(`{"temp": 21, "sky": "clear"}`), NewEchoRunner())
	sb2 := NewSandbox(fixedProvider(`{"sky":"clear","temp":21}`), NewEchoRunner())

	res1, r1 := sb1.Execute(context.Background(), testTx(), "v1")
	assert.True(r1.IsOK())
	res2, r2 := sb2.Execute(context.Background(), testTx(), "v2")
	assert.True(r2.IsOK())

	assert.Equal(res1.DeterministicDigest(), res2.DeterministicDigest())
	assert.NotEqual(res1.Digest, res2.Digest, "the full digest still sees the raw outputs")
}

func TestSandboxRetryBudgetExhausted(t *testing.T) {
	assert := assert.New(t)

	calls := 0
	provider := capability.ProviderFunc(func(ctx context.Context, spec capability.BlockSpec) (common.Bytes, error) {
		calls++
		return nil, capability.NewFault(spec.Kind, errors.New("gateway unreachable"))
	})

	sb := NewSandbox(provider, NewEchoRunner())
	sb.maxRetries = 2
	sb.backoff = 0

	res, r := sb.Execute(context.Background(), testTx(), "v1")
	assert.Nil(res)
	assert.True(r.IsError())
	assert.Equal(result.CodeExecutionFault, r.Code, "an exhausted retry budget is an execution fault")
	assert.Equal(3, calls, "the retry budget is exhausted before giving up")
}

func TestSandboxRetryRecovers(t *testing.T) {
	assert := assert.New(t)

	calls := 0
	provider := capability.ProviderFunc(func(ctx context.Context, spec capability.BlockSpec) (common.Bytes, error) {
		calls++
		if calls < 3 {
			return nil, capability.NewFault(spec.Kind, errors.New("transient"))
		}
		return []byte(`"ok"`), nil
	})

	sb := NewSandbox(provider, NewEchoRunner())
	sb.maxRetries = 3
	sb.backoff = 0

	res, r := sb.Execute(context.Background(), testTx(), "v1")
	assert.True(r.IsOK())
	assert.Equal(common.Bytes(`"ok"`), res.BlockOutputs["forecast"])
	assert.Equal(3, calls)
}

type failingRunner struct{}

func (failingRunner) Run(tx *core.Transaction, outputs map[string]common.Bytes) (common.Bytes, map[string]common.Bytes, error) {
	return nil, nil, errors.New("division by zero")
}

func TestSandboxExecutionFault(t *testing.T) {
	assert := assert.New(t)

	sb := NewSandbox(fixedProvider(`"ok"`), failingRunner{})
	res, r := sb.Execute(context.Background(), testTx(), "v1")
	assert.Nil(res)
	assert.Equal(result.CodeExecutionFault, r.Code)
}

type rawRunner struct{}

func (rawRunner) Run(tx *core.Transaction, outputs map[string]common.Bytes) (common.Bytes, map[string]common.Bytes, error) {
	return []byte("not json"), nil, nil
}

func TestSandboxNonSerializableResult(t *testing.T) {
	assert := assert.New(t)

	sb := NewSandbox(fixedProvider(`"ok"`), rawRunner{})
	res, r := sb.Execute(context.Background(), testTx(), "v1")
	assert.Nil(res)
	assert.Equal(result.CodeExecutionFault, r.Code)
}
